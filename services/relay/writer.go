package relay

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/mozaika228/hephaestus/services/providers"
)

// SetHeaders applies the canonical event-stream response headers
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// WriteEvent writes one "data: <json>\n\n" record
func WriteEvent(w io.Writer, ev providers.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, len(payload)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, payload...)
	buf = append(buf, '\n', '\n')
	_, err = w.Write(buf)
	return err
}

// SSEWriter is the downstream Sink for an HTTP client. Every event is
// flushed immediately. Events after Done are dropped.
type SSEWriter struct {
	mu       sync.Mutex
	w        io.Writer
	flusher  http.Flusher
	started  bool
	finished bool
	err      error
}

// NewSSEWriter wraps w. Headers are written lazily on the first event so a
// handler can still reply with a JSON error before streaming starts.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	flusher, _ := w.(http.Flusher)
	return &SSEWriter{w: w, flusher: flusher}
}

// Send implements providers.Sink
func (s *SSEWriter) Send(ev providers.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return nil
	}
	if s.err != nil {
		return s.err
	}

	if !s.started {
		if rw, ok := s.w.(http.ResponseWriter); ok {
			SetHeaders(rw.Header())
			rw.WriteHeader(http.StatusOK)
		}
		s.started = true
	}

	if err := WriteEvent(s.w, ev); err != nil {
		s.err = err
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	if ev.Type == providers.EventDone {
		s.finished = true
	}
	return nil
}

// Finished reports whether Done has been written
func (s *SSEWriter) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Started reports whether any event has been written
func (s *SSEWriter) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
