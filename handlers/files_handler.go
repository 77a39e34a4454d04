package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/mozaika228/hephaestus/middleware"
	"github.com/mozaika228/hephaestus/models"
	"github.com/mozaika228/hephaestus/services/files"
	"github.com/mozaika228/hephaestus/utils"
	"go.uber.org/zap"
)

const (
	// multipartOverhead is the allowance for form boundaries and headers on
	// top of the file size limit
	multipartOverhead = 1 << 20

	// multipartMemory is kept in memory; larger parts spill to temp files
	multipartMemory = 8 << 20
)

// FilesService defines the upload operations used by the handler
type FilesService interface {
	Register(ctx context.Context, req files.RegisterRequest) (*models.Upload, error)
	Ingest(ctx context.Context, name, contentType string, content io.Reader) (*models.Upload, string, error)
	Get(ctx context.Context, id string) (*models.Upload, error)
	Analyze(ctx context.Context, id string) (*models.Upload, files.Analysis, error)
	Complete(ctx context.Context, id string) (*models.Upload, error)
}

// FileResponse is the body of every successful files response
type FileResponse struct {
	OK       bool            `json:"ok"`
	File     *models.Upload  `json:"file"`
	Message  string          `json:"message,omitempty"`
	Analysis *files.Analysis `json:"analysis,omitempty"`
}

// FilesHandler handles upload HTTP requests
type FilesHandler struct {
	service        FilesService
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewFilesHandler creates a new FilesHandler
func NewFilesHandler(service FilesService, maxUploadBytes int64, logger *zap.Logger) *FilesHandler {
	return &FilesHandler{
		service:        service,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// HandleRegister handles POST /files/upload
func (h *FilesHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req files.RegisterRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	upload, err := h.service.Register(r.Context(), req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, FileResponse{OK: true, File: upload, Message: files.MessageRegistered})
}

// HandleIngest handles POST /files/ingest with a multipart "file" part
func (h *FilesHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	}

	var (
		name, contentType string
		content           io.Reader
	)
	file, header, err := h.formFile(r)
	switch {
	case err == nil:
		defer file.Close()
		name = header.Filename
		contentType = header.Header.Get("Content-Type")
		content = file
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		// the service answers "No file uploaded"
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			_ = utils.WriteBadRequest(w, "File is too large.", map[string]interface{}{"maxBytes": h.maxUploadBytes})
			return
		}
		h.logger.Warn("failed to parse multipart body",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid multipart body", nil)
		return
	}

	upload, message, err := h.service.Ingest(ctx, name, contentType, content)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, FileResponse{OK: true, File: upload, Message: message})
}

func (h *FilesHandler) formFile(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, nil, err
	}
	return r.FormFile("file")
}

// HandleGet handles GET /files/{id}
func (h *FilesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r, models.PrefixFile)
	if !ok {
		return
	}

	upload, err := h.service.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, FileResponse{OK: true, File: upload})
}

// HandleAnalyze handles POST /files/{id}/analyze. A failed analysis is
// still a 200; the outcome is in the analysis field.
func (h *FilesHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r, models.PrefixFile)
	if !ok {
		return
	}

	upload, analysis, err := h.service.Analyze(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, FileResponse{OK: true, File: upload, Analysis: &analysis})
}

// HandleComplete handles POST /files/{id}/complete
func (h *FilesHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r, models.PrefixFile)
	if !ok {
		return
	}

	upload, err := h.service.Complete(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, FileResponse{OK: true, File: upload})
}
