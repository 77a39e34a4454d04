// Package files registers, stores and analyzes user uploads.
package files

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mozaika228/hephaestus/config"
	"github.com/mozaika228/hephaestus/internal/observability"
	"github.com/mozaika228/hephaestus/models"
	"github.com/mozaika228/hephaestus/repositories"
	"github.com/mozaika228/hephaestus/services"
	"github.com/mozaika228/hephaestus/services/cache"
	"github.com/mozaika228/hephaestus/services/chat"
	"github.com/mozaika228/hephaestus/services/providers"
	"go.uber.org/zap"
)

// Client-facing messages
const (
	MessageRegistered      = "Upload registered. Binary ingestion is handled via /files/ingest."
	MessageStoredAndShared = "Stored locally and uploaded to OpenAI files."
	MessageStoredOnly      = "Stored locally. OpenAI upload skipped."
	MessageNoFile          = "No file uploaded"
	MessageNotFound        = "Not found"
)

const (
	analysisPromptTemplate = "Analyze the attached file %q (%s, %d bytes). Summarize its contents and point out anything notable."
	cacheKeyPrefix         = "files:"
)

// FileUploader sends content to a provider's file store and returns its id
type FileUploader interface {
	UploadFile(ctx context.Context, name, contentType string, content io.Reader) (string, error)
}

// RegisterRequest is the body of POST /files/upload
type RegisterRequest struct {
	Name string `json:"name" validate:"max=512"`
	Type string `json:"type" validate:"max=255"`
	Size int64  `json:"size" validate:"gte=0"`
}

// Analysis is the stored outcome of analyzing an upload
type Analysis struct {
	OK       bool   `json:"ok"`
	Text     string `json:"text,omitempty"`
	Error    string `json:"error,omitempty"`
	Code     string `json:"code,omitempty"`
	Provider string `json:"provider,omitempty"`
	Intent   string `json:"intent,omitempty"`
	Source   string `json:"source,omitempty"`
}

// Service manages upload records
type Service struct {
	cfg      *config.Config
	uploads  repositories.UploadRepository
	storage  *Storage
	uploader FileUploader
	decider  chat.Decider
	runner   chat.Runner
	cache    cache.Cache
	logger   *zap.Logger
}

// NewService creates a files service. uploader may be nil, in which case
// ingested files are only stored locally.
func NewService(
	cfg *config.Config,
	uploads repositories.UploadRepository,
	storage *Storage,
	uploader FileUploader,
	decider chat.Decider,
	runner chat.Runner,
	c cache.Cache,
	logger *zap.Logger,
) *Service {
	return &Service{
		cfg:      cfg,
		uploads:  uploads,
		storage:  storage,
		uploader: uploader,
		decider:  decider,
		runner:   runner,
		cache:    c,
		logger:   logger,
	}
}

// Register records upload metadata without content
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.Upload, error) {
	upload := models.NewUpload(req.Name, req.Type, req.Size)
	if err := s.uploads.Create(ctx, upload); err != nil {
		return nil, services.WrapInternal("failed to register upload", err)
	}
	return upload, nil
}

// Ingest stores content locally and, when OpenAI is configured, shares it
// with the OpenAI files API. It returns the record and a status message.
func (s *Service) Ingest(ctx context.Context, name, contentType string, content io.Reader) (*models.Upload, string, error) {
	if content == nil {
		return nil, "", services.NewDomainError(services.ErrorTypeValidation, MessageNoFile, nil).WithCode("bad_request")
	}
	logger := observability.FromContext(ctx, s.logger)

	upload := models.NewUpload(safeName(name), "", 0)
	stored, err := s.storage.Save(upload.ID, upload.Name, content)
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			return nil, "", services.NewDomainError(services.ErrorTypeValidation, "File is too large.", err).
				WithCode("bad_request").
				WithDetail("maxBytes", s.cfg.Storage.MaxUploadBytes)
		}
		return nil, "", services.WrapInternal("failed to store upload", err)
	}

	upload.Type = effectiveType(contentType, stored.DetectedType)
	upload.Size = stored.Size
	upload.Status = models.UploadStored
	upload.LocalPath = stored.Path
	upload.LocalMeta = &models.LocalMeta{SHA256: stored.SHA256, DetectedType: stored.DetectedType}
	upload.ProviderFileID = s.share(ctx, upload)

	if err := s.uploads.Create(ctx, upload); err != nil {
		return nil, "", services.WrapInternal("failed to record upload", err)
	}

	logger.Info("upload ingested",
		zap.String("upload_id", upload.ID),
		zap.String("type", upload.Type),
		zap.Int64("size", upload.Size),
		zap.Bool("shared", upload.ProviderFileID != ""),
	)

	if upload.ProviderFileID != "" {
		return upload, MessageStoredAndShared, nil
	}
	return upload, MessageStoredOnly, nil
}

// share uploads the stored copy to OpenAI. Any failure leaves the file
// local-only.
func (s *Service) share(ctx context.Context, upload *models.Upload) string {
	if s.uploader == nil || !s.cfg.Providers.OpenAIConfigured() {
		return ""
	}

	f, err := os.Open(upload.LocalPath)
	if err != nil {
		s.logger.Warn("failed to reopen stored upload", zap.String("upload_id", upload.ID), zap.Error(err))
		return ""
	}
	defer f.Close()

	id, err := s.uploader.UploadFile(ctx, upload.Name, upload.Type, f)
	if err != nil {
		observability.FromContext(ctx, s.logger).Warn("openai file upload skipped",
			zap.String("upload_id", upload.ID),
			zap.Error(err),
		)
		return ""
	}
	return id
}

// Get returns an upload, served from the cache when fresh
func (s *Service) Get(ctx context.Context, id string) (*models.Upload, error) {
	var cached models.Upload
	if cache.GetJSON(ctx, s.cache, cacheKey(id), &cached) {
		return &cached, nil
	}

	upload, err := s.uploads.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err)
	}
	if err := cache.SetJSON(ctx, s.cache, cacheKey(id), upload, 0); err != nil {
		s.logger.Warn("failed to cache upload", zap.String("upload_id", id), zap.Error(err))
	}
	return upload, nil
}

// Analyze runs the analysis for a stored upload and records the outcome
func (s *Service) Analyze(ctx context.Context, id string) (*models.Upload, Analysis, error) {
	upload, err := s.uploads.GetByID(ctx, id)
	if err != nil {
		return nil, Analysis{}, lookupError(err)
	}

	analysis := s.RunAnalysis(ctx, upload)
	updated, err := s.RecordAnalysis(ctx, id, analysis)
	if err != nil {
		return nil, analysis, err
	}
	return updated, analysis, nil
}

// RunAnalysis asks the file decision for a policy and calls the providers.
// It never fails; provider errors are reported inside the Analysis.
func (s *Service) RunAnalysis(ctx context.Context, upload *models.Upload) Analysis {
	mime := upload.Type
	if upload.LocalMeta != nil && upload.LocalMeta.DetectedType != "" && mime == models.DefaultUploadType {
		mime = upload.LocalMeta.DetectedType
	}

	d := s.decider.ResolveFile(ctx, s.cfg, mime, "")
	req := providers.Request{
		Message:  fmt.Sprintf(analysisPromptTemplate, upload.Name, upload.Type, upload.Size),
		FileID:   upload.ProviderFileID,
		Analysis: true,
	}

	res := s.runner.Single(ctx, s.cfg.Providers, d.Policy, req)
	analysis := Analysis{
		OK:       res.OK,
		Text:     res.Text,
		Error:    res.Error,
		Code:     string(res.Code),
		Provider: string(res.Provider),
		Intent:   string(d.Route.Intent),
		Source:   d.Source,
	}

	observability.FromContext(ctx, s.logger).Info("upload analyzed",
		zap.String("upload_id", upload.ID),
		zap.String("intent", analysis.Intent),
		zap.String("provider", analysis.Provider),
		zap.Bool("ok", analysis.OK),
	)
	return analysis
}

// RecordAnalysis stores an analysis on the upload and sets its status
func (s *Service) RecordAnalysis(ctx context.Context, id string, analysis Analysis) (*models.Upload, error) {
	raw, err := json.Marshal(analysis)
	if err != nil {
		return nil, services.WrapInternal("failed to encode analysis", err)
	}

	updated, err := s.uploads.Update(ctx, id, func(u *models.Upload) error {
		u.Analysis = raw
		if analysis.OK {
			u.Status = models.UploadAnalyzed
		} else {
			u.Status = models.UploadAnalysisFailed
		}
		return nil
	})
	if err != nil {
		return nil, lookupError(err)
	}

	s.cache.InvalidatePrefix(ctx, cacheKey(id))
	return updated, nil
}

// Complete marks an upload as processed
func (s *Service) Complete(ctx context.Context, id string) (*models.Upload, error) {
	updated, err := s.uploads.Update(ctx, id, func(u *models.Upload) error {
		u.Status = models.UploadProcessed
		return nil
	})
	if err != nil {
		return nil, lookupError(err)
	}

	s.cache.InvalidatePrefix(ctx, cacheKey(id))
	return updated, nil
}

func cacheKey(id string) string {
	return cacheKeyPrefix + id
}

func lookupError(err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return services.NewDomainError(services.ErrorTypeNotFound, MessageNotFound, err).WithCode("not_found")
	}
	return services.WrapInternal("upload store failed", err)
}
