package repositories

import (
	"context"
	"errors"

	"github.com/mozaika228/hephaestus/models"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction. The returned Transaction's Context
	// carries it, so repositories called with that context join it.
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// UploadRepository handles upload records
type UploadRepository interface {
	// Create inserts a new upload
	Create(ctx context.Context, upload *models.Upload) error

	// GetByID retrieves an upload by ID
	GetByID(ctx context.Context, id string) (*models.Upload, error)

	// Update locks the record, applies fn and stores the result.
	// UpdatedAt is set by the repository.
	Update(ctx context.Context, id string, fn func(*models.Upload) error) (*models.Upload, error)

	// List returns uploads, newest first
	List(ctx context.Context) ([]*models.Upload, error)
}

// TaskRepository handles planner tasks
type TaskRepository interface {
	// Create inserts a new task
	Create(ctx context.Context, task *models.Task) error

	// GetByID retrieves a task by ID
	GetByID(ctx context.Context, id string) (*models.Task, error)

	// Update locks the record, applies fn and stores the result
	Update(ctx context.Context, id string, fn func(*models.Task) error) (*models.Task, error)

	// List returns tasks, newest first
	List(ctx context.Context) ([]*models.Task, error)
}

// JobRepository handles background jobs
type JobRepository interface {
	// Create inserts a new job
	Create(ctx context.Context, job *models.Job) error

	// GetByID retrieves a job by ID
	GetByID(ctx context.Context, id string) (*models.Job, error)

	// Update locks the record, applies fn and stores the result
	Update(ctx context.Context, id string, fn func(*models.Job) error) (*models.Job, error)

	// List returns jobs, newest first
	List(ctx context.Context) ([]*models.Job, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Uploads      UploadRepository
	Tasks        TaskRepository
	Jobs         JobRepository
	Transactions TransactionManager
}
