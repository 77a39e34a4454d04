package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mozaika228/hephaestus/models"
	"github.com/mozaika228/hephaestus/repositories"
)

// UploadRepository keeps uploads in memory
type UploadRepository struct {
	store *store[models.Upload]
}

// NewUploadRepository creates an empty upload repository
func NewUploadRepository() repositories.UploadRepository {
	return &UploadRepository{store: newStore(cloneUpload,
		func(u *models.Upload) time.Time { return u.CreatedAt },
		func(u *models.Upload, now time.Time) { u.UpdatedAt = now },
	)}
}

func (r *UploadRepository) Create(_ context.Context, upload *models.Upload) error {
	r.store.create(upload.ID, upload)
	return nil
}

func (r *UploadRepository) GetByID(_ context.Context, id string) (*models.Upload, error) {
	return r.store.get(id)
}

func (r *UploadRepository) Update(_ context.Context, id string, fn func(*models.Upload) error) (*models.Upload, error) {
	return r.store.update(id, fn)
}

func (r *UploadRepository) List(context.Context) ([]*models.Upload, error) {
	return r.store.list(), nil
}

func cloneUpload(u *models.Upload) *models.Upload {
	out := *u
	out.Analysis = cloneRaw(u.Analysis)
	if u.LocalMeta != nil {
		meta := *u.LocalMeta
		out.LocalMeta = &meta
	}
	return &out
}

// TaskRepository keeps planner tasks in memory
type TaskRepository struct {
	store *store[models.Task]
}

// NewTaskRepository creates an empty task repository
func NewTaskRepository() repositories.TaskRepository {
	return &TaskRepository{store: newStore(cloneTask,
		func(t *models.Task) time.Time { return t.CreatedAt },
		func(t *models.Task, now time.Time) { t.UpdatedAt = now },
	)}
}

func (r *TaskRepository) Create(_ context.Context, task *models.Task) error {
	r.store.create(task.ID, task)
	return nil
}

func (r *TaskRepository) GetByID(_ context.Context, id string) (*models.Task, error) {
	return r.store.get(id)
}

func (r *TaskRepository) Update(_ context.Context, id string, fn func(*models.Task) error) (*models.Task, error) {
	return r.store.update(id, fn)
}

func (r *TaskRepository) List(context.Context) ([]*models.Task, error) {
	return r.store.list(), nil
}

func cloneTask(t *models.Task) *models.Task {
	out := *t
	if t.DueAt != nil {
		due := *t.DueAt
		out.DueAt = &due
	}
	return &out
}

// JobRepository keeps jobs in memory
type JobRepository struct {
	store *store[models.Job]
}

// NewJobRepository creates an empty job repository
func NewJobRepository() repositories.JobRepository {
	return &JobRepository{store: newStore(cloneJob,
		func(j *models.Job) time.Time { return j.CreatedAt },
		func(j *models.Job, now time.Time) { j.UpdatedAt = now },
	)}
}

func (r *JobRepository) Create(_ context.Context, job *models.Job) error {
	r.store.create(job.ID, job)
	return nil
}

func (r *JobRepository) GetByID(_ context.Context, id string) (*models.Job, error) {
	return r.store.get(id)
}

func (r *JobRepository) Update(_ context.Context, id string, fn func(*models.Job) error) (*models.Job, error) {
	return r.store.update(id, fn)
}

func (r *JobRepository) List(context.Context) ([]*models.Job, error) {
	return r.store.list(), nil
}

func cloneJob(j *models.Job) *models.Job {
	out := *j
	out.Result = cloneRaw(j.Result)
	return &out
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
