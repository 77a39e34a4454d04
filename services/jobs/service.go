// Package jobs runs asynchronous analysis jobs.
//
// A created job is queued, picked up by its own goroutine after a short
// delay, marked running and then finished as done or failed. Pending and
// running workers stop when the service shuts down.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/mozaika228/hephaestus/models"
	"github.com/mozaika228/hephaestus/repositories"
	"github.com/mozaika228/hephaestus/services"
	"github.com/mozaika228/hephaestus/services/files"
	"go.uber.org/zap"
)

// DefaultDelay is how long a job waits in the queue before it runs
const DefaultDelay = 300 * time.Millisecond

// Analyzer analyzes uploads and records the outcome
type Analyzer interface {
	RunAnalysis(ctx context.Context, upload *models.Upload) files.Analysis
	RecordAnalysis(ctx context.Context, id string, analysis files.Analysis) (*models.Upload, error)
}

// CreateRequest is the body of POST /jobs
type CreateRequest struct {
	Kind     string `json:"kind" validate:"max=64"`
	UploadID string `json:"uploadId" validate:"max=255"`
}

// Option configures a Service
type Option func(*Service)

// WithDelay overrides the queue delay
func WithDelay(d time.Duration) Option {
	return func(s *Service) {
		s.delay = d
	}
}

// Service creates jobs and runs their workers
type Service struct {
	jobs     repositories.JobRepository
	uploads  repositories.UploadRepository
	tx       repositories.TransactionManager
	analyzer Analyzer
	delay    time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a jobs service
func NewService(repos *repositories.Repositories, analyzer Analyzer, logger *zap.Logger, opts ...Option) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		jobs:     repos.Jobs,
		uploads:  repos.Uploads,
		tx:       repos.Transactions,
		analyzer: analyzer,
		delay:    DefaultDelay,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a queued job and schedules its worker
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Job, error) {
	job := models.NewJob(req.Kind, req.UploadID)
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, services.WrapInternal("failed to create job", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, services.NewDomainError(services.ErrorTypeUnavailable, "Job queue is shutting down.", nil).
			WithCode("unavailable")
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(job.ID)

	s.logger.Info("job queued",
		zap.String("job_id", job.ID),
		zap.String("kind", job.Kind),
		zap.String("upload_id", job.Payload.UploadID),
	)
	return job, nil
}

// Get returns one job
func (s *Service) Get(ctx context.Context, id string) (*models.Job, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.NewDomainError(services.ErrorTypeNotFound, "Not found", err).WithCode("not_found")
		}
		return nil, services.WrapInternal("failed to get job", err)
	}
	return job, nil
}

// List returns every job, newest first
func (s *Service) List(ctx context.Context) ([]*models.Job, error) {
	jobs, err := s.jobs.List(ctx)
	if err != nil {
		return nil, services.WrapInternal("failed to list jobs", err)
	}
	return jobs, nil
}

// Shutdown stops queued workers and waits for running ones until ctx is done
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) run(id string) {
	defer s.wg.Done()

	timer := time.NewTimer(s.delay)
	defer timer.Stop()

	select {
	case <-s.ctx.Done():
		s.logger.Debug("job dropped on shutdown", zap.String("job_id", id))
		return
	case <-timer.C:
	}

	if err := s.process(s.ctx, id); err != nil && s.ctx.Err() == nil {
		s.logger.Error("job processing failed", zap.String("job_id", id), zap.Error(err))
	}
}

func (s *Service) process(ctx context.Context, id string) error {
	job, err := s.jobs.Update(ctx, id, func(j *models.Job) error {
		j.Status = models.JobRunning
		return nil
	})
	if err != nil {
		return err
	}

	uploadID := job.Payload.UploadID
	if uploadID == "" {
		return s.finish(ctx, id, models.JobDone, map[string]string{"message": "No payload"})
	}

	upload, err := s.uploads.GetByID(ctx, uploadID)
	if errors.Is(err, repositories.ErrNotFound) {
		return s.finish(ctx, id, models.JobFailed, map[string]string{"error": "Upload not found"})
	}
	if err != nil {
		return err
	}

	analysis := s.analyzer.RunAnalysis(ctx, upload)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := models.JobDone
	if !analysis.OK {
		status = models.JobFailed
	}
	result, err := json.Marshal(analysis)
	if err != nil {
		return err
	}

	err = services.WithTransaction(ctx, s.tx, func(ctx context.Context, _ repositories.Transaction) error {
		if _, err := s.analyzer.RecordAnalysis(ctx, uploadID, analysis); err != nil {
			return err
		}
		_, err := s.jobs.Update(ctx, id, func(j *models.Job) error {
			j.Status = status
			j.Result = result
			return nil
		})
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("job finished",
		zap.String("job_id", id),
		zap.String("status", string(status)),
		zap.String("upload_id", uploadID),
	)
	return nil
}

func (s *Service) finish(ctx context.Context, id string, status models.JobStatus, result map[string]string) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	_, err = s.jobs.Update(ctx, id, func(j *models.Job) error {
		j.Status = status
		j.Result = raw
		return nil
	})
	if err == nil {
		s.logger.Info("job finished", zap.String("job_id", id), zap.String("status", string(status)))
	}
	return err
}
