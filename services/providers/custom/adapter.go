package custom

import (
	"context"
	"net/http"

	"github.com/mozaika228/hephaestus/config"
	"github.com/mozaika228/hephaestus/services/providers"
	"github.com/mozaika228/hephaestus/services/providers/plainjson"
	"go.uber.org/zap"
)

const defaultReply = "Custom provider replied."

// CustomAdapter implements the Provider interface for an arbitrary HTTP
// endpoint with an optional static auth header
type CustomAdapter struct {
	config config.CustomConfig
	client *plainjson.Client
}

// NewCustomAdapter creates a new custom provider adapter
func NewCustomAdapter(cfg config.CustomConfig, httpClient providers.Doer, logger *zap.Logger) *CustomAdapter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &CustomAdapter{
		config: cfg,
		client: &plainjson.Client{HTTP: httpClient, Logger: logger},
	}
}

// Builder returns a registry builder
func Builder(httpClient providers.Doer, logger *zap.Logger) providers.Builder {
	return func(cfg config.ProvidersConfig) providers.Provider {
		return NewCustomAdapter(cfg.Custom, httpClient, logger)
	}
}

// ID returns the provider identity
func (a *CustomAdapter) ID() providers.ID {
	return providers.Custom
}

// Stream replays a single call as one delta
func (a *CustomAdapter) Stream(ctx context.Context, req providers.Request, sink providers.Sink) {
	if a.config.Endpoint == "" {
		err := providers.MissingConfig(providers.Custom, "endpoint")
		providers.FailWith(sink, err.Code, err.Message)
		return
	}
	a.client.Stream(ctx, a.endpoint(), req, sink)
}

// Single posts the message to the endpoint
func (a *CustomAdapter) Single(ctx context.Context, req providers.Request) providers.Result {
	if a.config.Endpoint == "" {
		return providers.MissingConfig(providers.Custom, "endpoint").Result()
	}
	return a.client.Single(ctx, a.endpoint(), req)
}

func (a *CustomAdapter) endpoint() plainjson.Endpoint {
	ep := plainjson.Endpoint{
		Provider:     providers.Custom,
		URL:          a.config.Endpoint,
		DefaultReply: defaultReply,
	}
	// a half-configured header is ignored
	if a.config.AuthHeader != "" && a.config.AuthValue != "" {
		ep.Headers = map[string]string{a.config.AuthHeader: a.config.AuthValue}
	}
	return ep
}
