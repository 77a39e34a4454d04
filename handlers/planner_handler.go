package handlers

import (
	"context"
	"net/http"

	"github.com/mozaika228/hephaestus/models"
	"github.com/mozaika228/hephaestus/services/planner"
	"github.com/mozaika228/hephaestus/utils"
	"go.uber.org/zap"
)

// PlannerService defines the task operations used by the handler
type PlannerService interface {
	List(ctx context.Context) ([]*models.Task, error)
	Create(ctx context.Context, req planner.CreateRequest) (*models.Task, error)
	Get(ctx context.Context, id string) (*models.Task, error)
	Update(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error)
}

// TaskResponse wraps one task
type TaskResponse struct {
	OK   bool         `json:"ok"`
	Task *models.Task `json:"task"`
}

// TaskListResponse wraps the task list
type TaskListResponse struct {
	OK    bool           `json:"ok"`
	Tasks []*models.Task `json:"tasks"`
}

// PlannerHandler handles planner HTTP requests
type PlannerHandler struct {
	service PlannerService
	logger  *zap.Logger
}

// NewPlannerHandler creates a new PlannerHandler
func NewPlannerHandler(service PlannerService, logger *zap.Logger) *PlannerHandler {
	return &PlannerHandler{service: service, logger: logger}
}

// HandleList handles GET /planner/tasks
func (h *PlannerHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.List(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	_ = utils.WriteOK(w, TaskListResponse{OK: true, Tasks: tasks})
}

// HandleCreate handles POST /planner/tasks
func (h *PlannerHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req planner.CreateRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	task, err := h.service.Create(r.Context(), req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, TaskResponse{OK: true, Task: task})
}

// HandleGet handles GET /planner/tasks/{id}
func (h *PlannerHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r, models.PrefixTask)
	if !ok {
		return
	}

	task, err := h.service.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, TaskResponse{OK: true, Task: task})
}

// HandleUpdate handles PATCH /planner/tasks/{id}
func (h *PlannerHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r, models.PrefixTask)
	if !ok {
		return
	}

	var patch models.TaskPatch
	if !decodeJSON(w, r, &patch, h.logger) {
		return
	}

	task, err := h.service.Update(r.Context(), id, patch)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, TaskResponse{OK: true, Task: task})
}
