// Package integrations exposes the third-party connector catalog.
package integrations

import (
	"context"
	"sync"

	"github.com/mozaika228/hephaestus/models"
	"github.com/mozaika228/hephaestus/services"
	"github.com/mozaika228/hephaestus/services/cache"
	"go.uber.org/zap"
)

const (
	listCacheKey = "integrations:list"

	// MessageConnectPlaceholder is returned by Connect until real OAuth
	// flows exist
	MessageConnectPlaceholder = "Integration connect placeholder."
)

// Service holds the catalog for the process lifetime
type Service struct {
	mu      sync.Mutex
	catalog []models.Integration
	cache   cache.Cache
	logger  *zap.Logger
}

// NewService creates a service seeded with the built-in catalog
func NewService(c cache.Cache, logger *zap.Logger) *Service {
	return &Service{
		catalog: models.DefaultIntegrations(),
		cache:   c,
		logger:  logger,
	}
}

// List returns the catalog
func (s *Service) List(ctx context.Context) []models.Integration {
	var cached []models.Integration
	if cache.GetJSON(ctx, s.cache, listCacheKey, &cached) {
		return cached
	}

	s.mu.Lock()
	out := append([]models.Integration(nil), s.catalog...)
	s.mu.Unlock()

	if err := cache.SetJSON(ctx, s.cache, listCacheKey, out, 0); err != nil {
		s.logger.Warn("failed to cache integrations", zap.Error(err))
	}
	return out
}

// Connect marks an integration as pending
func (s *Service) Connect(ctx context.Context, id string) (models.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.catalog {
		if s.catalog[i].ID == id {
			s.catalog[i].Status = models.IntegrationPending
			s.cache.InvalidatePrefix(ctx, listCacheKey)
			s.logger.Info("integration connect requested", zap.String("integration", id))
			return s.catalog[i], nil
		}
	}
	return models.Integration{}, services.NewDomainError(services.ErrorTypeNotFound, "Not found", nil).
		WithCode("not_found").
		WithDetail("integration", id)
}
