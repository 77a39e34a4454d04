package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/mozaika228/hephaestus/config"
	"github.com/mozaika228/hephaestus/services/providers"
	"github.com/mozaika228/hephaestus/services/providers/responses"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"

	// FilePurpose is the purpose attached to uploaded analysis inputs
	FilePurpose = "user_data"
)

// OpenAIAdapter implements the Provider interface for OpenAI
type OpenAIAdapter struct {
	config config.OpenAIConfig
	client *responses.Client
}

// NewOpenAIAdapter creates a new OpenAI adapter
func NewOpenAIAdapter(cfg config.OpenAIConfig, httpClient providers.Doer, logger *zap.Logger) *OpenAIAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &OpenAIAdapter{
		config: cfg,
		client: &responses.Client{HTTP: httpClient, Logger: logger},
	}
}

// Builder returns a registry builder. skip, when set, is called for every
// malformed stream record.
func Builder(httpClient providers.Doer, logger *zap.Logger, skip func(payload []byte)) providers.Builder {
	return func(cfg config.ProvidersConfig) providers.Provider {
		a := NewOpenAIAdapter(cfg.OpenAI, httpClient, logger)
		a.client.SkipHook = skip
		return a
	}
}

// ID returns the provider identity
func (a *OpenAIAdapter) ID() providers.ID {
	return providers.OpenAI
}

// Stream performs a streaming Responses API call
func (a *OpenAIAdapter) Stream(ctx context.Context, req providers.Request, sink providers.Sink) {
	if a.config.APIKey == "" {
		err := providers.MissingConfig(providers.OpenAI, "API key")
		providers.FailWith(sink, err.Code, err.Message)
		return
	}
	a.client.Stream(ctx, a.endpoint(req), req, sink)
}

// Single performs a non-streaming Responses API call
func (a *OpenAIAdapter) Single(ctx context.Context, req providers.Request) providers.Result {
	if a.config.APIKey == "" {
		return providers.MissingConfig(providers.OpenAI, "API key").Result()
	}
	return a.client.Single(ctx, a.endpoint(req), req)
}

func (a *OpenAIAdapter) endpoint(req providers.Request) responses.Endpoint {
	model := a.config.Model
	if req.Analysis && a.config.AnalysisModel != "" {
		model = a.config.AnalysisModel
	}
	return responses.Endpoint{
		Provider:     providers.OpenAI,
		URL:          a.baseURL() + "/responses",
		Headers:      map[string]string{"Authorization": "Bearer " + a.config.APIKey},
		Model:        model,
		Instructions: a.config.Instructions,
	}
}

func (a *OpenAIAdapter) baseURL() string {
	return strings.TrimRight(a.config.BaseURL, "/")
}

// UploadFile sends content to the Files API and returns the file id the
// Responses API accepts as input_file
func (a *OpenAIAdapter) UploadFile(ctx context.Context, name, contentType string, content io.Reader) (string, error) {
	if a.config.APIKey == "" {
		return "", providers.MissingConfig(providers.OpenAI, "API key")
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("purpose", FilePurpose); err != nil {
		return "", err
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := form.CreatePart(header)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", err
	}
	if err := form.Close(); err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL()+"/files", &body)
	if err != nil {
		return "", providers.NewProviderError(providers.OpenAI, providers.CodeInvalidConfiguration, "OpenAI endpoint is invalid.", 0, err)
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)

	resp, err := a.client.HTTP.Do(httpReq)
	if err != nil {
		return "", providers.TransportError(providers.OpenAI, err)
	}
	defer resp.Body.Close()

	if !providers.IsSuccess(resp.StatusCode) {
		perr := providers.StatusError(providers.OpenAI, resp)
		if a.client.Logger != nil {
			a.client.Logger.Debug("file upload error body",
				zap.Int("status", resp.StatusCode),
				zap.String("body", perr.Body),
			)
		}
		return "", perr
	}

	raw, err := providers.ReadBody(providers.OpenAI, resp)
	if err != nil {
		return "", err
	}
	var uploaded struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &uploaded); err != nil || uploaded.ID == "" {
		return "", providers.NewProviderError(providers.OpenAI, providers.CodeProviderError, "OpenAI returned no file id.", resp.StatusCode, err)
	}
	return uploaded.ID, nil
}
