// Package planner manages planner tasks.
package planner

import (
	"context"
	"errors"
	"time"

	"github.com/mozaika228/hephaestus/models"
	"github.com/mozaika228/hephaestus/repositories"
	"github.com/mozaika228/hephaestus/services"
	"github.com/mozaika228/hephaestus/services/cache"
	"go.uber.org/zap"
)

// listCacheKey caches GET /planner/tasks
const listCacheKey = "planner:tasks"

// CreateRequest is the body of POST /planner/tasks
type CreateRequest struct {
	Title    string     `json:"title" validate:"max=500"`
	DueAt    *time.Time `json:"dueAt"`
	Priority string     `json:"priority" validate:"max=32"`
}

// Service manages planner tasks
type Service struct {
	tasks  repositories.TaskRepository
	cache  cache.Cache
	logger *zap.Logger
}

// NewService creates a planner service
func NewService(tasks repositories.TaskRepository, c cache.Cache, logger *zap.Logger) *Service {
	return &Service{tasks: tasks, cache: c, logger: logger}
}

// List returns every task, newest first
func (s *Service) List(ctx context.Context) ([]*models.Task, error) {
	var cached []*models.Task
	if cache.GetJSON(ctx, s.cache, listCacheKey, &cached) {
		return cached, nil
	}

	tasks, err := s.tasks.List(ctx)
	if err != nil {
		return nil, services.WrapInternal("failed to list tasks", err)
	}
	if err := cache.SetJSON(ctx, s.cache, listCacheKey, tasks, 0); err != nil {
		s.logger.Warn("failed to cache task list", zap.Error(err))
	}
	return tasks, nil
}

// Create adds a task with the title and priority defaults applied
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Task, error) {
	task := models.NewTask(req.Title, req.DueAt, req.Priority)
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, services.WrapInternal("failed to create task", err)
	}
	s.cache.InvalidatePrefix(ctx, listCacheKey)

	s.logger.Debug("task created", zap.String("task_id", task.ID))
	return task, nil
}

// Get returns one task
func (s *Service) Get(ctx context.Context, id string) (*models.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err)
	}
	return task, nil
}

// Update merges the set fields of patch into the task
func (s *Service) Update(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	task, err := s.tasks.Update(ctx, id, func(t *models.Task) error {
		patch.Apply(t)
		return nil
	})
	if err != nil {
		return nil, lookupError(err)
	}
	s.cache.InvalidatePrefix(ctx, listCacheKey)
	return task, nil
}

func lookupError(err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return services.NewDomainError(services.ErrorTypeNotFound, "Not found", err).WithCode("not_found")
	}
	return services.WrapInternal("task store failed", err)
}
