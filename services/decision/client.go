// Package decision produces the routing decision for a request: the intent
// classification and the provider policy. A remote decision service is
// consulted first when enabled; any failure falls back to the in-process
// classifier and resolver.
package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mozaika228/hephaestus/config"
	"github.com/mozaika228/hephaestus/internal/observability"
	"github.com/mozaika228/hephaestus/services/intent"
	"github.com/mozaika228/hephaestus/services/policy"
	"github.com/mozaika228/hephaestus/services/providers"
	"go.uber.org/zap"
)

// Decision sources
const (
	SourceRemote = "python"
	SourceLocal  = "node_fallback"
)

// DefaultTimeout bounds the remote decision call
const DefaultTimeout = 1800 * time.Millisecond

const maxDecisionBody = 64 << 10

// Decision is the routing outcome for one request
type Decision struct {
	Route  intent.Decision `json:"route"`
	Policy policy.Policy   `json:"policy"`
	Source string          `json:"source"`
}

// ProviderFlags reports per-provider availability to the remote service
type ProviderFlags struct {
	OpenAIConfigured bool `json:"openaiConfigured"`
	AzureConfigured  bool `json:"azureConfigured"`
	LocalConfigured  bool `json:"localConfigured"`
	CustomConfigured bool `json:"customConfigured"`
}

// FlagsFor derives the availability flags from a configuration snapshot
func FlagsFor(cfg config.ProvidersConfig) ProviderFlags {
	return ProviderFlags{
		OpenAIConfigured: cfg.OpenAIConfigured(),
		AzureConfigured:  cfg.AzureConfigured(),
		LocalConfigured:  cfg.LocalConfigured(),
		CustomConfigured: cfg.CustomConfigured(),
	}
}

// Request is the remote decision request body
type Request struct {
	Mode               string        `json:"mode"`
	Message            string        `json:"message,omitempty"`
	FileID             string        `json:"fileId,omitempty"`
	Mime               string        `json:"mime,omitempty"`
	RequestedProvider  string        `json:"requestedProvider,omitempty"`
	ConfiguredProvider string        `json:"configuredProvider"`
	Providers          ProviderFlags `json:"providers"`
}

// Client resolves decisions
type Client struct {
	http    providers.Doer
	metrics *observability.Collector
	logger  *zap.Logger
}

// NewClient creates a decision client. httpClient defaults to
// http.DefaultClient; metrics may be nil.
func NewClient(httpClient providers.Doer, metrics *observability.Collector, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{http: httpClient, metrics: metrics, logger: logger}
}

// ResolveChat decides how a chat message is routed
func (c *Client) ResolveChat(ctx context.Context, cfg *config.Config, message, fileID, requested string) Decision {
	remote, ok := c.remote(ctx, cfg, Request{
		Mode:               "chat",
		Message:            message,
		FileID:             fileID,
		RequestedProvider:  requested,
		ConfiguredProvider: cfg.Providers.ActiveOrDefault(),
		Providers:          FlagsFor(cfg.Providers),
	})
	if ok {
		c.metrics.RecordDecision(SourceRemote)
		return remote
	}
	c.metrics.RecordDecision(SourceLocal)
	return LocalChat(cfg.Providers, message, fileID, requested)
}

// ResolveFile decides how a stored file of the given MIME type is analyzed
func (c *Client) ResolveFile(ctx context.Context, cfg *config.Config, mime, requested string) Decision {
	remote, ok := c.remote(ctx, cfg, Request{
		Mode:               "file",
		Mime:               mime,
		RequestedProvider:  requested,
		ConfiguredProvider: cfg.Providers.ActiveOrDefault(),
		Providers:          FlagsFor(cfg.Providers),
	})
	if ok {
		c.metrics.RecordDecision(SourceRemote)
		return remote
	}
	c.metrics.RecordDecision(SourceLocal)
	return LocalFile(cfg.Providers, mime, requested)
}

// LocalChat classifies and resolves in process
func LocalChat(cfg config.ProvidersConfig, message, fileID, requested string) Decision {
	route := intent.Classify(message, fileID)
	return Decision{
		Route:  route,
		Policy: policy.Resolve(policy.AvailableProviders(cfg), route.Intent, requested, cfg.ActiveOrDefault()),
		Source: SourceLocal,
	}
}

// LocalFile classifies a MIME type and resolves in process
func LocalFile(cfg config.ProvidersConfig, mime, requested string) Decision {
	route := intent.ClassifyFile(mime)
	return Decision{
		Route:  route,
		Policy: policy.Resolve(policy.AvailableProviders(cfg), route.Intent, requested, cfg.ActiveOrDefault()),
		Source: SourceLocal,
	}
}

type remotePolicy struct {
	Provider  string   `json:"provider"`
	Fallback  []string `json:"fallbackProviders"`
	Available []string `json:"availableProviders"`
	Reason    string   `json:"reason"`
}

type remoteResponse struct {
	Route  *intent.Decision `json:"route"`
	Policy *remotePolicy    `json:"policy"`
}

func (c *Client) remote(ctx context.Context, cfg *config.Config, body Request) (Decision, bool) {
	if !cfg.Decision.Enabled || cfg.Decision.ServiceURL == "" {
		return Decision{}, false
	}
	logger := observability.FromContext(ctx, c.logger)

	timeout := cfg.Decision.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	parsed, err := c.post(ctx, strings.TrimRight(cfg.Decision.ServiceURL, "/")+"/logic/decision", body)
	if err != nil {
		logger.Debug("remote decision unavailable, using local logic", zap.String("mode", body.Mode), zap.Error(err))
		return Decision{}, false
	}

	available := policy.AvailableProviders(cfg.Providers)
	pol, ok := normalize(*parsed.Policy, available, cfg.Providers.ActiveOrDefault())
	if !ok {
		logger.Debug("remote decision selected an unavailable provider, using local logic",
			zap.String("provider", parsed.Policy.Provider),
		)
		return Decision{}, false
	}

	return Decision{Route: normalizeRoute(*parsed.Route), Policy: pol, Source: SourceRemote}, true
}

func (c *Client) post(ctx context.Context, url string, body Request) (*remoteResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !providers.IsSuccess(resp.StatusCode) {
		return nil, fmt.Errorf("decision service returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDecisionBody))
	if err != nil {
		return nil, err
	}
	var parsed remoteResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode decision: %w", err)
	}
	if parsed.Route == nil || parsed.Policy == nil {
		return nil, fmt.Errorf("decision is missing route or policy")
	}
	return &parsed, nil
}

// normalize keeps only known providers that are available locally. The
// remote answer is rejected when it selects a provider this process cannot
// call.
func normalize(remote remotePolicy, available []providers.ID, configured string) (policy.Policy, bool) {
	if len(available) == 0 {
		selected := providers.ID(strings.ToLower(strings.TrimSpace(remote.Provider)))
		if _, known := providers.ParseID(string(selected)); !known {
			selected = providers.ID(configured)
		}
		return policy.Policy{
			Selected:      selected,
			FallbackOrder: []providers.ID{},
			Available:     []providers.ID{},
			Reason:        policy.ReasonNoProvider,
		}, true
	}

	selected, known := providers.ParseID(remote.Provider)
	if !known || !containsID(available, selected) {
		return policy.Policy{}, false
	}

	fallback := make([]providers.ID, 0, len(available))
	for _, raw := range remote.Fallback {
		id, known := providers.ParseID(raw)
		if !known || id == selected || !containsID(available, id) || containsID(fallback, id) {
			continue
		}
		fallback = append(fallback, id)
	}

	reason := remote.Reason
	if reason == "" {
		reason = policy.ReasonIntentPolicy
	}
	return policy.Policy{
		Selected:      selected,
		FallbackOrder: fallback,
		Available:     append([]providers.ID(nil), available...),
		Reason:        reason,
	}, true
}

func normalizeRoute(route intent.Decision) intent.Decision {
	if route.Intent == "" {
		route.Intent = intent.Chat
	}
	if route.Confidence < 0 {
		route.Confidence = 0
	}
	if route.Confidence > 1 {
		route.Confidence = 1
	}
	return route
}

func containsID(list []providers.ID, id providers.ID) bool {
	for _, candidate := range list {
		if candidate == id {
			return true
		}
	}
	return false
}
