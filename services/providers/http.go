package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// MaxErrorBody caps how much of a failed upstream body is read
	MaxErrorBody = 64 << 10

	// MaxResponseBody caps a successful non-streaming upstream body
	MaxResponseBody = 16 << 20
)

// Doer is the subset of *http.Client adapters need
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns a client for upstream calls. timeout bounds the wait
// for response headers only, so long streams are not cut off.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if timeout > 0 {
		transport.ResponseHeaderTimeout = timeout
	}
	return &http.Client{Transport: transport}
}

// PostJSON marshals body and POSTs it to url with ctx attached.
// A transport failure is returned as a *ProviderError.
func PostJSON(ctx context.Context, client Doer, provider ID, url string, headers map[string]string, body interface{}) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, NewProviderError(provider, CodeBadRequest, "Failed to encode request.", 0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, NewProviderError(provider, CodeInvalidConfiguration, fmt.Sprintf("%s endpoint is invalid.", provider.DisplayName()), 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, TransportError(provider, err)
	}
	return resp, nil
}

// StatusError reads at most MaxErrorBody bytes of a non-2xx response and
// converts it to a ProviderError. The body is closed by the caller.
func StatusError(provider ID, resp *http.Response) *ProviderError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBody))
	perr := NewProviderError(provider, CodeForStatus(resp.StatusCode), ExtractErrorMessage(provider, body, resp.StatusCode), resp.StatusCode, nil)
	perr.Body = string(body)
	return perr
}

// ExtractErrorMessage prefers {"error":{"message":...}}, then {"error":"..."}.
// Any other body is never echoed; a fixed message naming the provider and
// status is returned instead.
func ExtractErrorMessage(provider ID, body []byte, status int) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &nested); err == nil && strings.TrimSpace(nested.Message) != "" {
			return nested.Message
		}
		var flat string
		if err := json.Unmarshal(envelope.Error, &flat); err == nil && strings.TrimSpace(flat) != "" {
			return flat
		}
	}
	return fmt.Sprintf("%s returned status %d.", provider.DisplayName(), status)
}

// ReadBody reads at most MaxResponseBody bytes of a successful response
func ReadBody(provider ID, resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBody))
	if err != nil {
		return nil, TransportError(provider, err)
	}
	return body, nil
}

// IsSuccess reports whether status is 2xx
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
