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

const uploadColumns = `id, name, type, size, status, provider_file_id, local_path, analysis, local_meta, created_at, updated_at`

// UploadRepository implements the repositories.UploadRepository interface
type UploadRepository struct {
	db     *DB
	tx     repositories.TransactionManager
	logger *zap.Logger
}

// NewUploadRepository creates a new upload repository
func NewUploadRepository(db *DB, logger *zap.Logger) repositories.UploadRepository {
	return &UploadRepository{
		db:     db,
		tx:     NewTransactionManager(db, logger),
		logger: logger,
	}
}

// Create creates a new upload
func (r *UploadRepository) Create(ctx context.Context, upload *models.Upload) error {
	query := `
		INSERT INTO uploads (` + uploadColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	meta, err := marshalJSONB(upload.LocalMeta)
	if err != nil {
		return err
	}

	executor := GetExecutor(ctx, r.db)
	_, err = executor.ExecContext(ctx, query,
		upload.ID,
		upload.Name,
		upload.Type,
		upload.Size,
		upload.Status,
		upload.ProviderFileID,
		upload.LocalPath,
		nullableJSON(upload.Analysis),
		meta,
		upload.CreatedAt,
		upload.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create upload: %w", err)
	}

	r.logger.Debug("upload created", zap.String("id", upload.ID), zap.String("name", upload.Name))
	return nil
}

// GetByID retrieves an upload by ID
func (r *UploadRepository) GetByID(ctx context.Context, id string) (*models.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads WHERE id = $1`
	upload, err := scanUpload(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}
	return upload, nil
}

// Update locks the row, applies fn and writes the result back
func (r *UploadRepository) Update(ctx context.Context, id string, fn func(*models.Upload) error) (*models.Upload, error) {
	var updated *models.Upload
	err := r.tx.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		executor := GetExecutor(ctx, r.db)

		query := `SELECT ` + uploadColumns + ` FROM uploads WHERE id = $1 FOR UPDATE`
		upload, err := scanUpload(executor.QueryRowContext(ctx, query, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return repositories.ErrNotFound
			}
			return fmt.Errorf("failed to lock upload: %w", err)
		}

		if err := fn(upload); err != nil {
			return err
		}
		upload.UpdatedAt = time.Now().UTC()

		meta, err := marshalJSONB(upload.LocalMeta)
		if err != nil {
			return err
		}

		_, err = executor.ExecContext(ctx, `
			UPDATE uploads
			SET name = $2, type = $3, size = $4, status = $5, provider_file_id = $6,
				local_path = $7, analysis = $8, local_meta = $9, updated_at = $10
			WHERE id = $1
		`,
			upload.ID,
			upload.Name,
			upload.Type,
			upload.Size,
			upload.Status,
			upload.ProviderFileID,
			upload.LocalPath,
			nullableJSON(upload.Analysis),
			meta,
			upload.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update upload: %w", err)
		}

		updated = upload
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("upload updated", zap.String("id", id), zap.String("status", string(updated.Status)))
	return updated, nil
}

// List returns uploads, newest first
func (r *UploadRepository) List(ctx context.Context) ([]*models.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads ORDER BY created_at DESC`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	uploads := make([]*models.Upload, 0)
	for rows.Next() {
		upload, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		uploads = append(uploads, upload)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating uploads: %w", err)
	}
	return uploads, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUpload(row rowScanner) (*models.Upload, error) {
	var (
		upload         models.Upload
		providerFileID sql.NullString
		localPath      sql.NullString
		analysis       []byte
		meta           []byte
	)
	err := row.Scan(
		&upload.ID,
		&upload.Name,
		&upload.Type,
		&upload.Size,
		&upload.Status,
		&providerFileID,
		&localPath,
		&analysis,
		&meta,
		&upload.CreatedAt,
		&upload.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	upload.ProviderFileID = providerFileID.String
	upload.LocalPath = localPath.String
	upload.Analysis = copyJSON(analysis)
	if len(meta) > 0 {
		upload.LocalMeta = &models.LocalMeta{}
		if err := json.Unmarshal(meta, upload.LocalMeta); err != nil {
			return nil, fmt.Errorf("failed to decode local_meta: %w", err)
		}
	}
	return &upload, nil
}
