// Package chat ties routing decisions to provider calls for the /chat
// endpoints.
package chat

import (
	"context"

	"github.com/mozaika228/hephaestus/config"
	"github.com/mozaika228/hephaestus/internal/observability"
	"github.com/mozaika228/hephaestus/services"
	"github.com/mozaika228/hephaestus/services/decision"
	"github.com/mozaika228/hephaestus/services/intent"
	"github.com/mozaika228/hephaestus/services/policy"
	"github.com/mozaika228/hephaestus/services/providers"
	"go.uber.org/zap"
)

// Request is the body of POST /chat and POST /chat/single
type Request struct {
	Message  string `json:"message" validate:"notblank,max=32000"`
	Provider string `json:"provider,omitempty" validate:"omitempty,oneof=openai azure local custom"`
	FileID   string `json:"fileId,omitempty" validate:"omitempty,max=255"`
}

// Reply is a successful non-streaming answer
type Reply struct {
	Text     string          `json:"text"`
	Provider providers.ID    `json:"provider"`
	Route    intent.Decision `json:"route"`
	Policy   policy.Policy   `json:"policy"`
	Source   string          `json:"source"`
}

// Decider resolves a route and provider policy
type Decider interface {
	ResolveChat(ctx context.Context, cfg *config.Config, message, fileID, requested string) decision.Decision
	ResolveFile(ctx context.Context, cfg *config.Config, mime, requested string) decision.Decision
}

// Runner invokes providers in policy order
type Runner interface {
	Stream(ctx context.Context, cfg config.ProvidersConfig, p policy.Policy, req providers.Request, sink providers.Sink)
	Single(ctx context.Context, cfg config.ProvidersConfig, p policy.Policy, req providers.Request) providers.Result
}

// Service answers chat requests
type Service struct {
	cfg     *config.Config
	decider Decider
	runner  Runner
	logger  *zap.Logger
}

// NewService creates a chat service
func NewService(cfg *config.Config, decider Decider, runner Runner, logger *zap.Logger) *Service {
	return &Service{
		cfg:     cfg,
		decider: decider,
		runner:  runner,
		logger:  logger,
	}
}

// Decide returns the routing decision for req without calling a provider
func (s *Service) Decide(ctx context.Context, req Request) decision.Decision {
	return s.decider.ResolveChat(ctx, s.cfg, req.Message, req.FileID, req.Provider)
}

// Stream relays the selected provider's answer to sink. The sink always
// receives a terminal Done unless ctx is cancelled.
func (s *Service) Stream(ctx context.Context, req Request, sink providers.Sink) decision.Decision {
	d := s.Decide(ctx, req)

	observability.FromContext(ctx, s.logger).Info("chat stream",
		zap.String("intent", string(d.Route.Intent)),
		zap.String("provider", string(d.Policy.Selected)),
		zap.String("source", d.Source),
	)

	s.runner.Stream(ctx, s.cfg.Providers, d.Policy, toProviderRequest(req), sink)
	return d
}

// Single returns one complete answer, falling back across providers on
// retryable failures
func (s *Service) Single(ctx context.Context, req Request) (*Reply, error) {
	d := s.Decide(ctx, req)
	logger := observability.FromContext(ctx, s.logger)

	res := s.runner.Single(ctx, s.cfg.Providers, d.Policy, toProviderRequest(req))
	if !res.OK {
		logger.Warn("chat request failed",
			zap.String("provider", string(res.Provider)),
			zap.String("code", string(res.Code)),
			zap.String("error", res.Error),
		)
		return nil, ResultError(res)
	}

	logger.Info("chat reply",
		zap.String("intent", string(d.Route.Intent)),
		zap.String("provider", string(res.Provider)),
		zap.String("source", d.Source),
	)

	return &Reply{
		Text:     res.Text,
		Provider: res.Provider,
		Route:    d.Route,
		Policy:   d.Policy,
		Source:   d.Source,
	}, nil
}

// ResultError converts a failed provider result into a domain error.
// Missing configuration and exhaustion are unavailable; every other code is
// an upstream failure carrying the provider code and id.
func ResultError(res providers.Result) error {
	switch res.Code {
	case providers.CodeInvalidConfiguration, providers.CodeProviderUnavailable:
		return services.NewDomainError(services.ErrorTypeUnavailable, res.Error, nil).
			WithCode(string(res.Code))
	default:
		err := services.NewDomainError(services.ErrorTypeExternal, res.Error, nil).
			WithCode(string(providers.CodeProviderError)).
			WithDetail("providerCode", string(res.Code))
		if res.Provider != "" {
			err.WithDetail("provider", string(res.Provider))
		}
		return err
	}
}

func toProviderRequest(req Request) providers.Request {
	return providers.Request{
		Message: req.Message,
		FileID:  req.FileID,
	}
}
