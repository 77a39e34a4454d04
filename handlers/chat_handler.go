package handlers

import (
	"context"
	"net/http"

	"github.com/mozaika228/hephaestus/config"
	"github.com/mozaika228/hephaestus/middleware"
	"github.com/mozaika228/hephaestus/services/chat"
	"github.com/mozaika228/hephaestus/services/decision"
	"github.com/mozaika228/hephaestus/services/intent"
	"github.com/mozaika228/hephaestus/services/policy"
	"github.com/mozaika228/hephaestus/services/providers"
	"github.com/mozaika228/hephaestus/services/relay"
	"github.com/mozaika228/hephaestus/utils"
	"go.uber.org/zap"
)

// ChatService defines the chat operations used by the handler
type ChatService interface {
	Stream(ctx context.Context, req chat.Request, sink providers.Sink) decision.Decision
	Single(ctx context.Context, req chat.Request) (*chat.Reply, error)
}

// SingleResponse is the body of a successful POST /chat/single
type SingleResponse struct {
	OK       bool            `json:"ok"`
	Text     string          `json:"text"`
	Provider providers.ID    `json:"provider"`
	Route    intent.Decision `json:"route"`
	Policy   policy.Policy   `json:"policy"`
}

// DecisionRequest is the body of POST /logic/decision. Missing provider
// flags and configured provider are taken from this gateway.
type DecisionRequest struct {
	Mode               string                  `json:"mode" validate:"omitempty,oneof=chat file"`
	Message            string                  `json:"message" validate:"max=32000"`
	FileID             string                  `json:"fileId" validate:"max=255"`
	Mime               string                  `json:"mime" validate:"max=255"`
	RequestedProvider  string                  `json:"requestedProvider" validate:"max=32"`
	ConfiguredProvider string                  `json:"configuredProvider" validate:"max=32"`
	Providers          *decision.ProviderFlags `json:"providers"`
}

// DecisionResponse mirrors the decision service protocol
type DecisionResponse struct {
	Status string          `json:"status"`
	Route  intent.Decision `json:"route"`
	Policy policy.Policy   `json:"policy"`
	Source string          `json:"source"`
}

// ChatHandler handles chat HTTP requests
type ChatHandler struct {
	service   ChatService
	providers config.ProvidersConfig
	logger    *zap.Logger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(service ChatService, providersCfg config.ProvidersConfig, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		service:   service,
		providers: providersCfg,
		logger:    logger,
	}
}

// HandleStream handles POST /chat. Invalid input is answered with a JSON
// 400 before any event is written; after that every outcome is an event.
func (h *ChatHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	sink := relay.NewSSEWriter(w)
	d := h.service.Stream(r.Context(), req, sink)

	if !sink.Finished() {
		h.logger.Debug("chat stream ended without done",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.String("provider", string(d.Policy.Selected)),
			zap.Error(r.Context().Err()))
	}
}

// HandleSingle handles POST /chat/single
func (h *ChatHandler) HandleSingle(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	reply, err := h.service.Single(r.Context(), req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, SingleResponse{
		OK:       true,
		Text:     reply.Text,
		Provider: reply.Provider,
		Route:    reply.Route,
		Policy:   reply.Policy,
	})
}

// HandleDecision handles POST /logic/decision. It always answers locally so
// it can serve as the decision service of another gateway.
func (h *ChatHandler) HandleDecision(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	flags := decision.FlagsFor(h.providers)
	if req.Providers != nil {
		flags = *req.Providers
	}
	configured := req.ConfiguredProvider
	if configured == "" {
		configured = h.providers.ActiveOrDefault()
	}

	d := decision.Evaluate(decision.Request{
		Mode:               req.Mode,
		Message:            req.Message,
		FileID:             req.FileID,
		Mime:               req.Mime,
		RequestedProvider:  req.RequestedProvider,
		ConfiguredProvider: configured,
		Providers:          flags,
	})

	_ = utils.WriteOK(w, DecisionResponse{
		Status: "ok",
		Route:  d.Route,
		Policy: d.Policy,
		Source: d.Source,
	})
}
