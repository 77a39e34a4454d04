// Package client talks to a Hephaestus gateway over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mozaika228/hephaestus/services/chat"
	"github.com/mozaika228/hephaestus/services/intent"
	"github.com/mozaika228/hephaestus/services/policy"
	"github.com/mozaika228/hephaestus/services/providers"
	"github.com/mozaika228/hephaestus/services/relay"
	"github.com/mozaika228/hephaestus/utils"
	"go.uber.org/zap"
)

const maxErrorBody = 64 << 10

// ErrIncompleteStream is returned when the gateway closes a stream without Done
var ErrIncompleteStream = errors.New("stream ended without done event")

// APIError is a non-2xx gateway answer
type APIError struct {
	Status  int
	Code    string
	Message string
	Details map[string]interface{}
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("gateway returned %d (%s): %s", e.Status, e.Code, e.Message)
}

// Reply is a successful POST /chat/single answer
type Reply struct {
	OK       bool            `json:"ok"`
	Text     string          `json:"text"`
	Provider providers.ID    `json:"provider"`
	Route    intent.Decision `json:"route"`
	Policy   policy.Policy   `json:"policy"`
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithToken sends token as a bearer credential
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithLogger sets the logger used for skipped stream records
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client calls the chat endpoints of one gateway
type Client struct {
	baseURL *url.URL
	http    *http.Client
	token   string
	logger  *zap.Logger
}

// New creates a client for the gateway at baseURL
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: must be absolute", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")

	c := &Client{baseURL: u, http: http.DefaultClient, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Stream posts req to /chat and relays the gateway's events to sink. It
// returns nil once Done arrives.
func (c *Client) Stream(ctx context.Context, req chat.Request, sink providers.Sink) error {
	resp, err := c.post(ctx, "/chat", req, "text/event-stream")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tracked := &doneTracker{next: sink}
	if err := relay.Relay(ctx, resp.Body, translateEvent, tracked, relay.WithLogger(c.logger)); err != nil {
		return err
	}
	if !tracked.done {
		return ErrIncompleteStream
	}
	return nil
}

// Single posts req to /chat/single
func (c *Client) Single(ctx context.Context, req chat.Request) (*Reply, error) {
	resp, err := c.post(ctx, "/chat/single", req, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var reply Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return &reply, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}, accept string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	target := *c.baseURL
	target.Path += path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body utils.ErrorResponse
	if err := json.Unmarshal(raw, &body); err != nil || body.Error.Message == "" {
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	return &APIError{
		Status:  resp.StatusCode,
		Code:    body.Error.Code,
		Message: body.Error.Message,
		Details: body.Error.Details,
	}
}

// translateEvent decodes the gateway's own event records
func translateEvent(payload json.RawMessage) ([]providers.Event, bool) {
	var ev providers.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, false
	}
	switch ev.Type {
	case providers.EventDelta, providers.EventError:
		return []providers.Event{ev}, false
	case providers.EventDone:
		return []providers.Event{ev}, true
	default:
		return nil, false
	}
}

type doneTracker struct {
	next providers.Sink
	done bool
}

func (d *doneTracker) Send(ev providers.Event) error {
	if err := d.next.Send(ev); err != nil {
		return err
	}
	if ev.Type == providers.EventDone {
		d.done = true
	}
	return nil
}
