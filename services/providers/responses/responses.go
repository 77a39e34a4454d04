// Package responses implements the Responses API exchange shared by the
// OpenAI and Azure OpenAI adapters.
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mozaika228/hephaestus/services/providers"
	"github.com/mozaika228/hephaestus/services/relay"
	"go.uber.org/zap"
)

// InputContent is one part of a user message
type InputContent struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	FileID string `json:"file_id,omitempty"`
}

// InputMessage is one entry of the input array
type InputMessage struct {
	Role    string         `json:"role"`
	Content []InputContent `json:"content"`
}

// Request is the upstream request body
type Request struct {
	Model        string         `json:"model"`
	Input        []InputMessage `json:"input"`
	Instructions string         `json:"instructions,omitempty"`
	Stream       bool           `json:"stream"`
}

// NewRequest builds the body for req. The text part is always present;
// the file part only when req has a file ID.
func NewRequest(model, instructions string, req providers.Request, stream bool) Request {
	content := []InputContent{{Type: "input_text", Text: req.Message}}
	if req.FileID != "" {
		content = append(content, InputContent{Type: "input_file", FileID: req.FileID})
	}
	return Request{
		Model:        model,
		Input:        []InputMessage{{Role: "user", Content: content}},
		Instructions: instructions,
		Stream:       stream,
	}
}

// Endpoint describes one Responses API deployment
type Endpoint struct {
	Provider     providers.ID
	URL          string
	Headers      map[string]string
	Model        string
	Instructions string
}

// Client performs Responses API exchanges against an Endpoint
type Client struct {
	HTTP     providers.Doer
	Logger   *zap.Logger
	SkipHook func(payload []byte)
}

// Single performs a non-streaming exchange
func (c *Client) Single(ctx context.Context, ep Endpoint, req providers.Request) providers.Result {
	resp, err := providers.PostJSON(ctx, c.HTTP, ep.Provider, ep.URL, ep.Headers, NewRequest(ep.Model, ep.Instructions, req, false))
	if err != nil {
		return resultFor(err)
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
		return perr.Result()
	}

	body, err := providers.ReadBody(ep.Provider, resp)
	if err != nil {
		return resultFor(err)
	}
	if !json.Valid(body) {
		return providers.Failure(providers.CodeProviderError, ep.Provider.DisplayName()+" returned an invalid response.")
	}
	return providers.Success(ExtractText(body), json.RawMessage(body))
}

// Stream performs a streaming exchange and relays canonical events to sink.
// Nothing is written once ctx is done.
func (c *Client) Stream(ctx context.Context, ep Endpoint, req providers.Request, sink providers.Sink) {
	out := &terminalSink{next: sink}

	resp, err := providers.PostJSON(ctx, c.HTTP, ep.Provider, ep.URL, ep.Headers, NewRequest(ep.Model, ep.Instructions, req, true))
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		var perr *providers.ProviderError
		if errors.As(err, &perr) && perr.IsTransport() {
			c.logger().Warn("provider stream connect failed",
				zap.String("provider", string(ep.Provider)),
				zap.Error(err),
			)
			providers.FailWith(out, providers.CodeStreamError, ep.Provider.DisplayName()+" stream failed.")
			return
		}
		res := resultFor(err)
		providers.FailWith(out, res.Code, res.Error)
		return
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
		providers.FailWith(out, perr.Code, perr.Message)
		return
	}

	opts := []relay.Option{relay.WithLogger(c.logger().With(zap.String("provider", string(ep.Provider))))}
	if c.SkipHook != nil {
		opts = append(opts, relay.WithSkipHook(c.SkipHook))
	}

	err = relay.Relay(ctx, resp.Body, Translator(ep.Provider), out, opts...)
	var readErr *relay.ReadError
	switch {
	case ctx.Err() != nil:
		return
	case errors.As(err, &readErr):
		c.logger().Warn("provider stream interrupted",
			zap.String("provider", string(ep.Provider)),
			zap.Error(err),
		)
		providers.FailWith(out, providers.CodeStreamError, ep.Provider.DisplayName()+" stream failed.")
	case err != nil:
		// the downstream sink refused the event; the client is gone
		return
	case !out.done:
		_ = out.Send(providers.Done())
	}
}

func (c *Client) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func resultFor(err error) providers.Result {
	var perr *providers.ProviderError
	if errors.As(err, &perr) {
		return perr.Result()
	}
	return providers.Failure(providers.CodeProviderError, err.Error())
}

// terminalSink remembers whether Done went through
type terminalSink struct {
	next providers.Sink
	done bool
}

func (s *terminalSink) Send(ev providers.Event) error {
	if err := s.next.Send(ev); err != nil {
		return err
	}
	if ev.Type == providers.EventDone {
		s.done = true
	}
	return nil
}

type errorDetail struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type streamEvent struct {
	Type     string       `json:"type"`
	Delta    string       `json:"delta"`
	Message  string       `json:"message"`
	Code     string       `json:"code"`
	Error    *errorDetail `json:"error"`
	Response *struct {
		Error *errorDetail `json:"error"`
	} `json:"response"`
}

// Translator maps Responses API stream events to canonical events. Unknown
// event types are ignored.
func Translator(provider providers.ID) relay.Translator {
	return func(payload json.RawMessage) ([]providers.Event, bool) {
		var ev streamEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, false
		}

		switch ev.Type {
		case "response.output_text.delta", "response.refusal.delta":
			if ev.Delta == "" {
				return nil, false
			}
			return []providers.Event{providers.Delta(ev.Delta)}, false
		case "response.completed":
			return []providers.Event{providers.Done()}, true
		case "response.failed", "error":
			msg := fmt.Sprintf("%s response failed: %s", provider.DisplayName(), failureDetail(ev))
			return []providers.Event{providers.ErrorEvent(providers.CodeProviderError, msg), providers.Done()}, true
		default:
			return nil, false
		}
	}
}

// failureDetail looks in error, then response.error, then the top-level
// fields of a bare error event
func failureDetail(ev streamEvent) string {
	var candidates []string
	if ev.Error != nil {
		candidates = append(candidates, ev.Error.Message, ev.Error.Code)
	}
	if ev.Response != nil && ev.Response.Error != nil {
		candidates = append(candidates, ev.Response.Error.Message, ev.Response.Error.Code)
	}
	candidates = append(candidates, ev.Message, ev.Code)

	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return "unknown_error"
}

type outputPayload struct {
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

// ExtractText joins the output_text parts of every message item
func ExtractText(body []byte) string {
	var payload outputPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}

	var b strings.Builder
	for _, item := range payload.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" {
				b.WriteString(part.Text)
			}
		}
	}
	return strings.TrimSpace(b.String())
}
