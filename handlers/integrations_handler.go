package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mozaika228/hephaestus/models"
	"github.com/mozaika228/hephaestus/services/integrations"
	"github.com/mozaika228/hephaestus/utils"
	"go.uber.org/zap"
)

// IntegrationsService defines the catalog operations used by the handler
type IntegrationsService interface {
	List(ctx context.Context) []models.Integration
	Connect(ctx context.Context, id string) (models.Integration, error)
}

// IntegrationsHandler handles integration catalog requests
type IntegrationsHandler struct {
	service IntegrationsService
	logger  *zap.Logger
}

// NewIntegrationsHandler creates a new IntegrationsHandler
func NewIntegrationsHandler(service IntegrationsService, logger *zap.Logger) *IntegrationsHandler {
	return &IntegrationsHandler{service: service, logger: logger}
}

// HandleList handles GET /integrations
func (h *IntegrationsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, map[string]interface{}{
		"ok":           true,
		"integrations": h.service.List(r.Context()),
	})
}

// HandleConnect handles POST /integrations/{id}/connect
func (h *IntegrationsHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	integration, err := h.service.Connect(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, map[string]interface{}{
		"ok":          true,
		"integration": integration,
		"message":     integrations.MessageConnectPlaceholder,
	})
}
