package models

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle of a background job
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// DefaultJobKind is used when a job is created without a kind
const DefaultJobKind = "analysis"

// JobPayload is the input of a job
type JobPayload struct {
	UploadID string `json:"uploadId,omitempty"`
}

// Job is an asynchronous unit of work
type Job struct {
	ID        string          `json:"id" db:"id"`
	Kind      string          `json:"kind" db:"kind"`
	Status    JobStatus       `json:"status" db:"status"`
	Payload   JobPayload      `json:"payload" db:"payload"` // JSONB
	Result    json.RawMessage `json:"result" db:"result"`   // JSONB
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time       `json:"updatedAt" db:"updated_at"`
}

// TableName returns the table name for the Job model
func (Job) TableName() string {
	return "jobs"
}

// NewJob creates a queued job
func NewJob(kind, uploadID string) *Job {
	if kind == "" {
		kind = DefaultJobKind
	}
	now := time.Now().UTC()
	return &Job{
		ID:        NewID(PrefixJob),
		Kind:      kind,
		Status:    JobQueued,
		Payload:   JobPayload{UploadID: uploadID},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Finished reports whether the job reached a terminal status
func (j *Job) Finished() bool {
	return j.Status == JobDone || j.Status == JobFailed
}
