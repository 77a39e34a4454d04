package providers

import (
	"context"
	"encoding/json"
	"strings"
)

// ID identifies one backend kind
type ID string

const (
	OpenAI ID = "openai"
	Azure  ID = "azure"
	Local  ID = "local"
	Custom ID = "custom"
)

// All lists every known provider in availability order
var All = []ID{OpenAI, Azure, Local, Custom}

// ParseID lower-cases s and reports whether it names a known provider
func ParseID(s string) (ID, bool) {
	id := ID(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range All {
		if id == known {
			return id, true
		}
	}
	return id, false
}

// DisplayName is the human-readable provider name used in error messages
func (id ID) DisplayName() string {
	switch id {
	case OpenAI:
		return "OpenAI"
	case Azure:
		return "Azure OpenAI"
	case Local:
		return "Local model"
	case Custom:
		return "Custom provider"
	default:
		return string(id)
	}
}

// Provider is the capability surface every backend adapter exposes
type Provider interface {
	// ID returns the provider identity
	ID() ID

	// Stream sends req upstream and writes canonical events to sink.
	// It always finishes with a Done event unless ctx is cancelled first.
	Stream(ctx context.Context, req Request, sink Sink)

	// Single sends req upstream and returns one normalized result
	Single(ctx context.Context, req Request) Result
}

// Request is the provider-neutral chat request
type Request struct {
	// Message is the user text
	Message string

	// FileID references a file previously uploaded to the provider
	FileID string

	// Analysis selects the provider's file analysis model when it has one
	Analysis bool
}

// Result is the normalized non-streaming outcome
type Result struct {
	OK       bool            `json:"ok"`
	Text     string          `json:"text,omitempty"`
	Code     Code            `json:"code,omitempty"`
	Error    string          `json:"error,omitempty"`
	Provider ID              `json:"provider,omitempty"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

// Success builds an ok result
func Success(text string, raw json.RawMessage) Result {
	return Result{OK: true, Text: text, Raw: raw}
}

// Failure builds a failed result
func Failure(code Code, message string) Result {
	return Result{OK: false, Code: code, Error: message}
}

// Retryable reports whether the orchestrator may advance to the next provider
func (r Result) Retryable() bool {
	return !r.OK && r.Code.Retryable()
}

// EventType tags a canonical stream event
type EventType string

const (
	EventDelta EventType = "delta"
	EventError EventType = "error"
	EventDone  EventType = "done"
)

// Event is the only vocabulary clients observe on a stream
type Event struct {
	Type    EventType
	Text    string
	Code    Code
	Message string
}

// Delta builds a text event
func Delta(text string) Event {
	return Event{Type: EventDelta, Text: text}
}

// ErrorEvent builds an error event
func ErrorEvent(code Code, message string) Event {
	return Event{Type: EventError, Code: code, Message: message}
}

// Done builds the terminal event
func Done() Event {
	return Event{Type: EventDone}
}

type deltaJSON struct {
	Type EventType `json:"type"`
	Text string    `json:"text"`
}

type errorJSON struct {
	Type    EventType `json:"type"`
	Code    Code      `json:"code"`
	Message string    `json:"message"`
}

type doneJSON struct {
	Type EventType `json:"type"`
}

// MarshalJSON writes exactly the fields of the event's variant
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventDelta:
		return json.Marshal(deltaJSON{Type: e.Type, Text: e.Text})
	case EventError:
		return json.Marshal(errorJSON{Type: e.Type, Code: e.Code, Message: e.Message})
	default:
		return json.Marshal(doneJSON{Type: EventDone})
	}
}

// UnmarshalJSON reads any of the three variants
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type    EventType `json:"type"`
		Text    string    `json:"text"`
		Code    Code      `json:"code"`
		Message string    `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Event{Type: raw.Type, Text: raw.Text, Code: raw.Code, Message: raw.Message}
	return nil
}

// Sink receives canonical events in order
type Sink interface {
	Send(ev Event) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ev Event) error

// Send implements Sink
func (f SinkFunc) Send(ev Event) error {
	return f(ev)
}

// Collector is a Sink that records events in memory
type Collector struct {
	Events []Event
}

// Send implements Sink
func (c *Collector) Send(ev Event) error {
	c.Events = append(c.Events, ev)
	return nil
}

// Text concatenates every delta
func (c *Collector) Text() string {
	var b strings.Builder
	for _, ev := range c.Events {
		if ev.Type == EventDelta {
			b.WriteString(ev.Text)
		}
	}
	return b.String()
}

// FailWith writes an error event followed by Done
func FailWith(sink Sink, code Code, message string) {
	_ = sink.Send(ErrorEvent(code, message))
	_ = sink.Send(Done())
}
