// Package plainjson implements the single-shot JSON exchange used by the
// self-hosted and custom endpoint adapters. Those upstreams do not stream;
// stream mode replays the single reply as one delta.
package plainjson

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mozaika228/hephaestus/services/providers"
	"go.uber.org/zap"
)

// Request is the upstream request body
type Request struct {
	Message string `json:"message"`
	Stream  bool   `json:"stream"`
	FileID  string `json:"fileId,omitempty"`
}

// Endpoint describes one plain JSON upstream
type Endpoint struct {
	Provider providers.ID
	URL      string
	Headers  map[string]string

	// DefaultReply is streamed when the upstream answers with empty text
	DefaultReply string
}

// Client performs exchanges against an Endpoint
type Client struct {
	HTTP   providers.Doer
	Logger *zap.Logger
}

// Single posts the message and reads text, then message, from the reply
func (c *Client) Single(ctx context.Context, ep Endpoint, req providers.Request) providers.Result {
	res, _ := c.single(ctx, ep, req)
	return res
}

func (c *Client) single(ctx context.Context, ep Endpoint, req providers.Request) (providers.Result, bool) {
	body := Request{Message: req.Message, FileID: req.FileID}

	resp, err := providers.PostJSON(ctx, c.HTTP, ep.Provider, ep.URL, ep.Headers, body)
	if err != nil {
		var perr *providers.ProviderError
		if errors.As(err, &perr) {
			return perr.Result(), perr.IsTransport()
		}
		return providers.Failure(providers.CodeProviderError, err.Error()), false
	}
	defer resp.Body.Close()

	if !providers.IsSuccess(resp.StatusCode) {
		perr := providers.StatusError(ep.Provider, resp)
		c.logger().Warn("provider returned error status",
			zap.String("provider", string(ep.Provider)),
			zap.Int("status", resp.StatusCode),
			zap.String("code", string(perr.Code)),
		)
		c.logger().Debug("provider error body",
			zap.String("provider", string(ep.Provider)),
			zap.String("body", perr.Body),
		)
		return perr.Result(), false
	}

	raw, err := providers.ReadBody(ep.Provider, resp)
	if err != nil {
		var perr *providers.ProviderError
		errors.As(err, &perr)
		return perr.Result(), true
	}

	var payload json.RawMessage
	if json.Valid(raw) {
		payload = raw
	}
	return providers.Success(ReplyText(raw), payload), false
}

// Stream runs Single and replays the outcome as canonical events. A failed
// connection is reported as provider_stream_error.
func (c *Client) Stream(ctx context.Context, ep Endpoint, req providers.Request, sink providers.Sink) {
	res, transport := c.single(ctx, ep, req)
	if ctx.Err() != nil {
		return
	}

	if !res.OK {
		if transport {
			c.logger().Warn("provider stream connect failed", zap.String("provider", string(ep.Provider)))
			providers.FailWith(sink, providers.CodeStreamError, ep.Provider.DisplayName()+" stream failed.")
			return
		}
		providers.FailWith(sink, res.Code, res.Error)
		return
	}

	text := res.Text
	if text == "" {
		text = ep.DefaultReply
	}
	if err := sink.Send(providers.Delta(text)); err != nil {
		return
	}
	_ = sink.Send(providers.Done())
}

func (c *Client) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// ReplyText returns payload.text, then payload.message, then "". Non-object
// bodies give "".
func ReplyText(body []byte) string {
	var payload struct {
		Text    string `json:"text"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Text != "" {
		return payload.Text
	}
	return payload.Message
}
