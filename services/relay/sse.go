// Package relay moves server-sent events between an upstream provider and a
// downstream sink.
//
// Upstream bytes are buffered and split into records before any decoding, so
// records and multi-byte characters split across reads are reassembled intact.
// Each data payload is handed to a provider-specific Translator that emits the
// canonical delta/error/done vocabulary.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mozaika228/hephaestus/services/providers"
	"go.uber.org/zap"
)

const readChunkSize = 32 << 10

var (
	dataPrefix   = []byte("data:")
	doneSentinel = []byte("[DONE]")
)

// Translator maps one upstream JSON payload to canonical events.
// terminal reports that the upstream stream has finished.
type Translator func(payload json.RawMessage) (events []providers.Event, terminal bool)

// ReadError reports that the upstream connection failed mid-stream
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("relay: read upstream: %v", e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Option configures a relay run
type Option func(*options)

type options struct {
	logger *zap.Logger
	onSkip func(payload []byte)
}

// WithLogger sets the logger used for skipped records
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithSkipHook is called for every data payload that is not valid JSON
func WithSkipHook(fn func(payload []byte)) Option {
	return func(o *options) { o.onSkip = fn }
}

// Relay reads body until EOF, a terminal translation, a read failure or ctx
// cancellation.
//
// It returns nil on EOF and on terminal events, ctx.Err() when ctx is done,
// *ReadError when the upstream read fails, and the sink's error when a send
// fails. Nothing is sent after ctx is done.
func Relay(ctx context.Context, body io.Reader, translate Translator, sink providers.Sink, opts ...Option) error {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	var pending bytes.Buffer
	chunk := make([]byte, readChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := body.Read(chunk)
		if n > 0 {
			pending.Write(chunk[:n])
			for {
				idx, width := nextBoundary(pending.Bytes())
				if idx < 0 {
					break
				}
				record := pending.Next(idx + width)[:idx]
				terminal, err := dispatch(ctx, record, translate, sink, &o)
				if err != nil {
					return err
				}
				if terminal {
					return nil
				}
			}
		}

		if readErr == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(readErr, io.EOF) {
			// An upstream may close without a final blank line
			if pending.Len() > 0 {
				if _, err := dispatch(ctx, pending.Bytes(), translate, sink, &o); err != nil {
					return err
				}
			}
			return nil
		}
		return &ReadError{Err: readErr}
	}
}

// nextBoundary finds the earliest record separator. LF LF is canonical; CRLF
// line endings are tolerated.
func nextBoundary(data []byte) (idx, width int) {
	idx, width = -1, 0
	for _, sep := range [][]byte{[]byte("\n\n"), []byte("\r\n\r\n"), []byte("\n\r\n")} {
		if i := bytes.Index(data, sep); i >= 0 && (idx < 0 || i < idx) {
			idx, width = i, len(sep)
		}
	}
	return idx, width
}

func dispatch(ctx context.Context, record []byte, translate Translator, sink providers.Sink, o *options) (bool, error) {
	for _, line := range bytes.Split(record, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := bytes.TrimSpace(line[len(dataPrefix):])
		if len(payload) == 0 || bytes.Equal(payload, doneSentinel) {
			continue
		}
		if !json.Valid(payload) {
			o.logger.Debug("skipping malformed sse record", zap.ByteString("payload", truncate(payload, 256)))
			if o.onSkip != nil {
				o.onSkip(payload)
			}
			continue
		}

		if err := ctx.Err(); err != nil {
			return false, err
		}

		// payload aliases the read buffer; translators may retain it
		events, terminal := translate(json.RawMessage(bytes.Clone(payload)))
		for _, ev := range events {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			if err := sink.Send(ev); err != nil {
				return false, err
			}
		}
		if terminal {
			return true, nil
		}
	}
	return false, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
