package azure

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/mozaika228/hephaestus/config"
	"github.com/mozaika228/hephaestus/services/providers"
	"github.com/mozaika228/hephaestus/services/providers/responses"
	"go.uber.org/zap"
)

// AzureAdapter implements the Provider interface for Azure OpenAI. The
// deployment name is sent as the model.
type AzureAdapter struct {
	config config.AzureConfig
	client *responses.Client
}

// NewAzureAdapter creates a new Azure OpenAI adapter
func NewAzureAdapter(cfg config.AzureConfig, httpClient providers.Doer, logger *zap.Logger) *AzureAdapter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &AzureAdapter{
		config: cfg,
		client: &responses.Client{HTTP: httpClient, Logger: logger},
	}
}

// Builder returns a registry builder. skip, when set, is called for every
// malformed stream record.
func Builder(httpClient providers.Doer, logger *zap.Logger, skip func(payload []byte)) providers.Builder {
	return func(cfg config.ProvidersConfig) providers.Provider {
		a := NewAzureAdapter(cfg.Azure, httpClient, logger)
		a.client.SkipHook = skip
		return a
	}
}

// ID returns the provider identity
func (a *AzureAdapter) ID() providers.ID {
	return providers.Azure
}

// Stream performs a streaming Responses API call against the deployment
func (a *AzureAdapter) Stream(ctx context.Context, req providers.Request, sink providers.Sink) {
	if !a.configured() {
		err := providers.MissingConfig(providers.Azure, "config")
		providers.FailWith(sink, err.Code, err.Message)
		return
	}
	a.client.Stream(ctx, a.endpoint(), req, sink)
}

// Single performs a non-streaming Responses API call against the deployment
func (a *AzureAdapter) Single(ctx context.Context, req providers.Request) providers.Result {
	if !a.configured() {
		return providers.MissingConfig(providers.Azure, "config").Result()
	}
	return a.client.Single(ctx, a.endpoint(), req)
}

func (a *AzureAdapter) configured() bool {
	return a.config.APIKey != "" && a.config.Endpoint != "" && a.config.Deployment != ""
}

func (a *AzureAdapter) endpoint() responses.Endpoint {
	return responses.Endpoint{
		Provider: providers.Azure,
		URL:      ResponsesURL(a.config.Endpoint, a.config.APIVersion),
		Headers:  map[string]string{"api-key": a.config.APIKey},
		Model:    a.config.Deployment,
	}
}

// ResponsesURL builds the v1 Responses route for an Azure resource endpoint
func ResponsesURL(endpoint, apiVersion string) string {
	u := strings.TrimRight(endpoint, "/") + "/openai/v1/responses"
	if apiVersion != "" {
		u += "?api-version=" + url.QueryEscape(apiVersion)
	}
	return u
}
