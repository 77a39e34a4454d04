package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mozaika228/hephaestus/models"
	"github.com/mozaika228/hephaestus/repositories"
	"go.uber.org/zap"
)

const jobColumns = `id, kind, status, payload, result, created_at, updated_at`

// JobRepository implements the repositories.JobRepository interface
type JobRepository struct {
	db     *DB
	tx     repositories.TransactionManager
	logger *zap.Logger
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *DB, logger *zap.Logger) repositories.JobRepository {
	return &JobRepository{
		db:     db,
		tx:     NewTransactionManager(db, logger),
		logger: logger,
	}
}

// Create creates a new job
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode job payload: %w", err)
	}

	executor := GetExecutor(ctx, r.db)
	_, err = executor.ExecContext(ctx, query,
		job.ID,
		job.Kind,
		job.Status,
		payload,
		nullableJSON(job.Result),
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	r.logger.Debug("job created", zap.String("id", job.ID), zap.String("kind", job.Kind))
	return nil
}

// GetByID retrieves a job by ID
func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	job, err := scanJob(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// Update locks the row, applies fn and writes the result back
func (r *JobRepository) Update(ctx context.Context, id string, fn func(*models.Job) error) (*models.Job, error) {
	var updated *models.Job
	err := r.tx.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		executor := GetExecutor(ctx, r.db)

		query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1 FOR UPDATE`
		job, err := scanJob(executor.QueryRowContext(ctx, query, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return repositories.ErrNotFound
			}
			return fmt.Errorf("failed to lock job: %w", err)
		}

		if err := fn(job); err != nil {
			return err
		}
		job.UpdatedAt = time.Now().UTC()

		_, err = executor.ExecContext(ctx, `
			UPDATE jobs SET status = $2, result = $3, updated_at = $4 WHERE id = $1
		`,
			job.ID,
			job.Status,
			nullableJSON(job.Result),
			job.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update job: %w", err)
		}

		updated = job
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("job updated", zap.String("id", id), zap.String("status", string(updated.Status)))
	return updated, nil
}

// List returns jobs, newest first
func (r *JobRepository) List(ctx context.Context) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*models.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		job     models.Job
		payload []byte
		result  []byte
	)
	err := row.Scan(
		&job.ID,
		&job.Kind,
		&job.Status,
		&payload,
		&result,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &job.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode job payload: %w", err)
		}
	}
	job.Result = copyJSON(result)
	return &job, nil
}
