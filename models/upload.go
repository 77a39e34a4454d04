package models

import (
	"encoding/json"
	"time"
)

// UploadStatus tracks a file through registration, storage and analysis
type UploadStatus string

const (
	UploadQueued         UploadStatus = "queued"
	UploadStored         UploadStatus = "stored"
	UploadAnalyzed       UploadStatus = "analyzed"
	UploadAnalysisFailed UploadStatus = "analysis_failed"
	UploadProcessed      UploadStatus = "processed"
)

// DefaultUploadName and DefaultUploadType fill registrations without metadata
const (
	DefaultUploadName = "untitled"
	DefaultUploadType = "application/octet-stream"
)

// LocalMeta describes the stored copy of an ingested file
type LocalMeta struct {
	SHA256       string `json:"sha256"`
	DetectedType string `json:"detectedType,omitempty"`
}

// Upload is a registered or ingested file
type Upload struct {
	ID             string          `json:"id" db:"id"`
	Name           string          `json:"name" db:"name"`
	Type           string          `json:"type" db:"type"`
	Size           int64           `json:"size" db:"size"`
	Status         UploadStatus    `json:"status" db:"status"`
	ProviderFileID string          `json:"providerFileId,omitempty" db:"provider_file_id"`
	LocalPath      string          `json:"localPath,omitempty" db:"local_path"`
	Analysis       json.RawMessage `json:"analysis,omitempty" db:"analysis"`
	LocalMeta      *LocalMeta      `json:"localMeta,omitempty" db:"local_meta"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt" db:"updated_at"`
}

// TableName returns the table name for the Upload model
func (Upload) TableName() string {
	return "uploads"
}

// NewUpload creates a queued upload record, applying the name and type
// defaults
func NewUpload(name, contentType string, size int64) *Upload {
	if name == "" {
		name = DefaultUploadName
	}
	if contentType == "" {
		contentType = DefaultUploadType
	}
	now := time.Now().UTC()
	return &Upload{
		ID:        NewID(PrefixFile),
		Name:      name,
		Type:      contentType,
		Size:      size,
		Status:    UploadQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
