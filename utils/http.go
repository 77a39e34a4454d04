package utils

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every failed JSON response:
// {"ok":false,"error":{"code":...,"message":...,<details>}}
type ErrorResponse struct {
	OK    bool        `json:"ok"`
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the error code and message. Details are flattened into
// the same object when marshaled.
type ErrorDetail struct {
	Code    string
	Message string
	Details map[string]interface{}
}

// MarshalJSON flattens Details next to code and message. Details never
// override code or message.
func (d ErrorDetail) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(d.Details)+2)
	for k, v := range d.Details {
		out[k] = v
	}
	out["code"] = d.Code
	out["message"] = d.Message
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON
func (d *ErrorDetail) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.Code, _ = raw["code"].(string)
	d.Message, _ = raw["message"].(string)
	delete(raw, "code")
	delete(raw, "message")
	if len(raw) > 0 {
		d.Details = raw
	}
	return nil
}

// NewErrorResponse builds an error body
func NewErrorResponse(code, message string, details map[string]interface{}) ErrorResponse {
	return ErrorResponse{
		OK:    false,
		Error: ErrorDetail{Code: code, Message: message, Details: details},
	}
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes a 200 OK response
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a 201 Created response
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteBadRequest writes a 400 Bad Request response with error details
func WriteBadRequest(w http.ResponseWriter, message string, details map[string]interface{}) error {
	return WriteError(w, http.StatusBadRequest, "bad_request", message, details)
}

// WriteUnauthorized writes a 401 Unauthorized response
func WriteUnauthorized(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Authentication required"
	}
	return WriteError(w, http.StatusUnauthorized, "unauthorized", message, nil)
}

// WriteNotFound writes a 404 Not Found response
func WriteNotFound(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Not found"
	}
	return WriteError(w, http.StatusNotFound, "not_found", message, nil)
}

// WriteTooManyRequests writes a 429 Too Many Requests response
func WriteTooManyRequests(w http.ResponseWriter, message string, retryAfterMs int64) error {
	if message == "" {
		message = "Too many requests. Retry later."
	}
	return WriteError(w, http.StatusTooManyRequests, "rate_limited", message, map[string]interface{}{
		"retryAfterMs": retryAfterMs,
	})
}

// WriteInternalServerError writes a 500 Internal Server Error response
func WriteInternalServerError(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Internal server error"
	}
	return WriteError(w, http.StatusInternalServerError, "internal_error", message, nil)
}

// WriteError writes an error body. An empty code is derived from the status.
func WriteError(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) error {
	if code == "" {
		code = codeForStatus(status)
	}
	return WriteJSON(w, status, NewErrorResponse(code, message, details))
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusBadGateway:
		return "bad_gateway"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "internal_error"
	}
}
