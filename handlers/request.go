package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mozaika228/hephaestus/middleware"
	"github.com/mozaika228/hephaestus/utils"
	"go.uber.org/zap"
)

// maxJSONBody bounds every JSON request body
const maxJSONBody = 10 << 20

// decodeJSON reads an optional JSON body into dst and validates it. An empty
// body leaves dst untouched. It writes the 400 itself and returns false on
// failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, logger *zap.Logger) bool {
	requestID := middleware.GetRequestIDFromContext(r.Context())

	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return false
	}

	if err := utils.ValidateStruct(dst); err != nil {
		logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, logger)
		return false
	}
	return true
}

// recordID returns the {id} URL parameter when it is a well-formed id with
// the given prefix. Anything else is answered with 404.
func recordID(w http.ResponseWriter, r *http.Request, prefix string) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := utils.ValidateRecordID(id, prefix); err != nil {
		_ = utils.WriteNotFound(w, "Not found")
		return "", false
	}
	return id, true
}
