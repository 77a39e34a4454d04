package handlers

import (
	"context"
	"net/http"

	"github.com/mozaika228/hephaestus/models"
	"github.com/mozaika228/hephaestus/services/jobs"
	"github.com/mozaika228/hephaestus/utils"
	"go.uber.org/zap"
)

// JobsService defines the job operations used by the handler
type JobsService interface {
	Create(ctx context.Context, req jobs.CreateRequest) (*models.Job, error)
	Get(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context) ([]*models.Job, error)
}

// JobResponse wraps one job
type JobResponse struct {
	OK  bool        `json:"ok"`
	Job *models.Job `json:"job"`
}

// JobListResponse wraps the job list
type JobListResponse struct {
	OK   bool          `json:"ok"`
	Jobs []*models.Job `json:"jobs"`
}

// JobsHandler handles background job requests
type JobsHandler struct {
	service JobsService
	logger  *zap.Logger
}

// NewJobsHandler creates a new JobsHandler
func NewJobsHandler(service JobsService, logger *zap.Logger) *JobsHandler {
	return &JobsHandler{service: service, logger: logger}
}

// HandleList handles GET /jobs
func (h *JobsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if list == nil {
		list = []*models.Job{}
	}
	_ = utils.WriteOK(w, JobListResponse{OK: true, Jobs: list})
}

// HandleCreate handles POST /jobs. The job is queued and runs in the
// background.
func (h *JobsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req jobs.CreateRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	job, err := h.service.Create(r.Context(), req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, JobResponse{OK: true, Job: job})
}

// HandleGet handles GET /jobs/{id}
func (h *JobsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r, models.PrefixJob)
	if !ok {
		return
	}

	job, err := h.service.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, JobResponse{OK: true, Job: job})
}
