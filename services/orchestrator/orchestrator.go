// Package orchestrator invokes provider adapters in policy order.
//
// Streaming calls go to the selected provider only: once a delta has reached
// the client a transparent retry is impossible. Non-streaming calls walk the
// selected provider and then the fallback order, advancing only on
// retryable failures.
package orchestrator

import (
	"context"
	"time"

	"github.com/mozaika228/hephaestus/config"
	"github.com/mozaika228/hephaestus/internal/observability"
	"github.com/mozaika228/hephaestus/services/policy"
	"github.com/mozaika228/hephaestus/services/providers"
	"go.uber.org/zap"
)

// Messages surfaced when the policy leaves nothing to call
const (
	MessageNoProvider = "No AI provider is configured."
	MessageExhausted  = "All providers are unavailable."
)

// Call modes recorded in metrics
const (
	ModeStream = "stream"
	ModeSingle = "single"
)

// Orchestrator sequences adapters built from a registry
type Orchestrator struct {
	registry *providers.Registry
	metrics  *observability.Collector
	logger   *zap.Logger
	now      func() time.Time
}

// New creates an orchestrator. metrics may be nil.
func New(registry *providers.Registry, metrics *observability.Collector, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		registry: registry,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Stream relays the selected provider's events to sink. It never falls back.
func (o *Orchestrator) Stream(ctx context.Context, cfg config.ProvidersConfig, p policy.Policy, req providers.Request, sink providers.Sink) {
	logger := observability.FromContext(ctx, o.logger)

	if !p.HasProvider() {
		logger.Warn("no provider available for stream", zap.String("reason", p.Reason))
		providers.FailWith(sink, providers.CodeInvalidConfiguration, MessageNoProvider)
		return
	}

	adapter, err := o.registry.Resolve(p.Selected, cfg)
	if err != nil {
		logger.Error("provider not registered", zap.String("provider", string(p.Selected)), zap.Error(err))
		providers.FailWith(sink, providers.CodeProviderUnavailable, p.Selected.DisplayName()+" is not registered.")
		return
	}

	watch := &outcomeSink{next: sink}
	start := o.now()
	adapter.Stream(ctx, req, watch)

	if ctx.Err() != nil {
		logger.Debug("stream cancelled by client", zap.String("provider", string(p.Selected)))
	}
	o.metrics.RecordProviderRequest(string(p.Selected), ModeStream, outcome(watch.failed, watch.code), o.now().Sub(start))
}

// Single returns the first ok result, or the first terminal failure, from
// the selected provider and then the fallback order
func (o *Orchestrator) Single(ctx context.Context, cfg config.ProvidersConfig, p policy.Policy, req providers.Request) providers.Result {
	logger := observability.FromContext(ctx, o.logger)

	if !p.HasProvider() {
		logger.Warn("no provider available", zap.String("reason", p.Reason))
		return providers.Failure(providers.CodeInvalidConfiguration, MessageNoProvider)
	}

	for _, id := range p.Candidates() {
		if err := ctx.Err(); err != nil {
			return providers.Failure(providers.CodeTimeout, "Request cancelled.")
		}

		adapter, err := o.registry.Resolve(id, cfg)
		if err != nil {
			logger.Error("provider not registered", zap.String("provider", string(id)), zap.Error(err))
			continue
		}

		start := o.now()
		res := adapter.Single(ctx, req)
		o.metrics.RecordProviderRequest(string(id), ModeSingle, outcome(!res.OK, res.Code), o.now().Sub(start))

		if res.OK {
			res.Provider = id
			return res
		}
		if !res.Retryable() {
			res.Provider = id
			return res
		}

		logger.Warn("provider failed, trying next",
			zap.String("provider", string(id)),
			zap.String("code", string(res.Code)),
			zap.String("error", res.Error),
		)
	}

	return providers.Failure(providers.CodeProviderUnavailable, MessageExhausted)
}

func outcome(failed bool, code providers.Code) string {
	switch {
	case !failed:
		return observability.OutcomeOK
	case code.Retryable():
		return observability.OutcomeRetry
	default:
		return observability.OutcomeTerminal
	}
}

// outcomeSink remembers the first error event
type outcomeSink struct {
	next   providers.Sink
	failed bool
	code   providers.Code
}

func (s *outcomeSink) Send(ev providers.Event) error {
	if ev.Type == providers.EventError && !s.failed {
		s.failed = true
		s.code = ev.Code
	}
	return s.next.Send(ev)
}
