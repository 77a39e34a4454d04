package local

import (
	"context"
	"net/http"

	"github.com/mozaika228/hephaestus/config"
	"github.com/mozaika228/hephaestus/services/providers"
	"github.com/mozaika228/hephaestus/services/providers/plainjson"
	"go.uber.org/zap"
)

const defaultReply = "Local model replied."

// LocalAdapter implements the Provider interface for a self-hosted model
// endpoint
type LocalAdapter struct {
	config config.LocalConfig
	client *plainjson.Client
}

// NewLocalAdapter creates a new local model adapter
func NewLocalAdapter(cfg config.LocalConfig, httpClient providers.Doer, logger *zap.Logger) *LocalAdapter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &LocalAdapter{
		config: cfg,
		client: &plainjson.Client{HTTP: httpClient, Logger: logger},
	}
}

// Builder returns a registry builder
func Builder(httpClient providers.Doer, logger *zap.Logger) providers.Builder {
	return func(cfg config.ProvidersConfig) providers.Provider {
		return NewLocalAdapter(cfg.Local, httpClient, logger)
	}
}

// ID returns the provider identity
func (a *LocalAdapter) ID() providers.ID {
	return providers.Local
}

// Stream replays a single call as one delta
func (a *LocalAdapter) Stream(ctx context.Context, req providers.Request, sink providers.Sink) {
	if a.config.Endpoint == "" {
		err := providers.MissingConfig(providers.Local, "endpoint")
		providers.FailWith(sink, err.Code, err.Message)
		return
	}
	a.client.Stream(ctx, a.endpoint(), req, sink)
}

// Single posts the message to the endpoint
func (a *LocalAdapter) Single(ctx context.Context, req providers.Request) providers.Result {
	if a.config.Endpoint == "" {
		return providers.MissingConfig(providers.Local, "endpoint").Result()
	}
	return a.client.Single(ctx, a.endpoint(), req)
}

func (a *LocalAdapter) endpoint() plainjson.Endpoint {
	return plainjson.Endpoint{
		Provider:     providers.Local,
		URL:          a.config.Endpoint,
		DefaultReply: defaultReply,
	}
}
