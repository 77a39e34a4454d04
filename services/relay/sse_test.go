package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/mozaika228/hephaestus/services/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// chunkedReader returns data split at the given offsets, one piece per Read
type chunkedReader struct {
	pieces [][]byte
	err    error
}

func newChunkedReader(data []byte, cuts []int) *chunkedReader {
	sort.Ints(cuts)
	r := &chunkedReader{}
	prev := 0
	for _, c := range cuts {
		if c <= prev || c >= len(data) {
			continue
		}
		r.pieces = append(r.pieces, data[prev:c])
		prev = c
	}
	r.pieces = append(r.pieces, data[prev:])
	return r
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.pieces) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.pieces[0])
	if n < len(r.pieces[0]) {
		r.pieces[0] = r.pieces[0][n:]
	} else {
		r.pieces = r.pieces[1:]
	}
	return n, nil
}

// echoTranslator understands {"kind":"text","v":...} and {"kind":"end"}
func echoTranslator(payload json.RawMessage) ([]providers.Event, bool) {
	var ev struct {
		Kind string `json:"kind"`
		V    string `json:"v"`
	}
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, false
	}
	switch ev.Kind {
	case "text":
		return []providers.Event{providers.Delta(ev.V)}, false
	case "end":
		return []providers.Event{providers.Done()}, true
	}
	return nil, false
}

func record(kind, v string) string {
	b, _ := json.Marshal(map[string]string{"kind": kind, "v": v})
	return "data: " + string(b) + "\n\n"
}

func TestRelay_DeliversInOrder(t *testing.T) {
	stream := record("text", "Hel") + record("text", "lo") + record("end", "")
	sink := &providers.Collector{}

	err := Relay(context.Background(), strings.NewReader(stream), echoTranslator, sink)
	require.NoError(t, err)

	assert.Equal(t, []providers.Event{
		providers.Delta("Hel"),
		providers.Delta("lo"),
		providers.Done(),
	}, sink.Events)
}

func TestRelay_StopsAtTerminal(t *testing.T) {
	stream := record("text", "a") + record("end", "") + record("text", "ignored")
	sink := &providers.Collector{}

	require.NoError(t, Relay(context.Background(), strings.NewReader(stream), echoTranslator, sink))
	assert.Equal(t, "a", sink.Text())
	assert.Len(t, sink.Events, 2)
}

func TestRelay_SkipsMalformedRecords(t *testing.T) {
	stream := record("text", "one") +
		"data: {not json\n\n" +
		"event: ping\n\n" +
		"data: [DONE]\n\n" +
		"data:    \n\n" +
		": comment\n\n" +
		record("text", "two")

	var skipped [][]byte
	sink := &providers.Collector{}
	err := Relay(context.Background(), strings.NewReader(stream), echoTranslator, sink,
		WithSkipHook(func(p []byte) { skipped = append(skipped, p) }))
	require.NoError(t, err)

	assert.Equal(t, "onetwo", sink.Text())
	require.Len(t, skipped, 1)
	assert.Equal(t, "{not json", string(skipped[0]))
}

func TestRelay_ToleratesCRLF(t *testing.T) {
	stream := "data: {\"kind\":\"text\",\"v\":\"x\"}\r\n\r\ndata: {\"kind\":\"text\",\"v\":\"y\"}\r\n\r\n"
	sink := &providers.Collector{}

	require.NoError(t, Relay(context.Background(), strings.NewReader(stream), echoTranslator, sink))
	assert.Equal(t, "xy", sink.Text())
}

func TestRelay_TrailingRecordWithoutBlankLine(t *testing.T) {
	stream := record("text", "a") + `data: {"kind":"text","v":"b"}`
	sink := &providers.Collector{}

	require.NoError(t, Relay(context.Background(), strings.NewReader(stream), echoTranslator, sink))
	assert.Equal(t, "ab", sink.Text())
}

func TestRelay_MultipleDataLinesInOneRecord(t *testing.T) {
	stream := "event: message\ndata: {\"kind\":\"text\",\"v\":\"1\"}\ndata: {\"kind\":\"text\",\"v\":\"2\"}\n\n"
	sink := &providers.Collector{}

	require.NoError(t, Relay(context.Background(), strings.NewReader(stream), echoTranslator, sink))
	assert.Equal(t, "12", sink.Text())
}

func TestRelay_ReadError(t *testing.T) {
	boom := errors.New("connection reset by peer")
	r := newChunkedReader([]byte(record("text", "partial")), nil)
	r.err = boom
	sink := &providers.Collector{}

	err := Relay(context.Background(), r, echoTranslator, sink)

	var readErr *ReadError
	require.ErrorAs(t, err, &readErr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "partial", sink.Text())
}

func TestRelay_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &providers.Collector{}

	err := Relay(ctx, strings.NewReader(record("text", "late")), echoTranslator, sink)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.Events)
}

func TestRelay_CancelledMidStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stream := record("text", "first") + record("text", "second")
	sink := providers.SinkFunc(func(ev providers.Event) error {
		cancel()
		return nil
	})

	var sent []providers.Event
	counting := providers.SinkFunc(func(ev providers.Event) error {
		sent = append(sent, ev)
		return sink.Send(ev)
	})

	err := Relay(ctx, strings.NewReader(stream), echoTranslator, counting)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, sent, 1)
}

func TestRelay_SinkError(t *testing.T) {
	broken := errors.New("client gone")
	sink := providers.SinkFunc(func(ev providers.Event) error { return broken })

	err := Relay(context.Background(), strings.NewReader(record("text", "x")), echoTranslator, sink)
	assert.ErrorIs(t, err, broken)

	var readErr *ReadError
	assert.False(t, errors.As(err, &readErr))
}

func TestRelay_SplitInsideMultibyteCharacter(t *testing.T) {
	stream := []byte(record("text", "привет") + record("end", ""))
	// Cut inside the two-byte encoding of the first Cyrillic letter
	idx := strings.Index(string(stream), "п") + 1

	sink := &providers.Collector{}
	err := Relay(context.Background(), newChunkedReader(stream, []int{idx}), echoTranslator, sink)
	require.NoError(t, err)
	assert.Equal(t, "привет", sink.Text())
}

func TestRelay_ArbitrarySplitsProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		texts := rapid.SliceOfN(rapid.SampledFrom([]string{
			"hello", "мир", "сәлем", "🙂 ok", "a\"b", "line\nbreak", "日本語",
		}), 1, 8).Draw(rt, "texts")

		var b strings.Builder
		for _, s := range texts {
			b.WriteString(record("text", s))
		}
		b.WriteString(record("end", ""))
		data := []byte(b.String())

		cuts := rapid.SliceOfN(rapid.IntRange(1, len(data)-1), 0, 12).Draw(rt, "cuts")

		sink := &providers.Collector{}
		err := Relay(context.Background(), newChunkedReader(data, cuts), echoTranslator, sink)
		if err != nil {
			rt.Fatalf("relay failed: %v", err)
		}
		if got, want := sink.Text(), strings.Join(texts, ""); got != want {
			rt.Fatalf("text mismatch: got %q want %q", got, want)
		}
		if len(sink.Events) != len(texts)+1 {
			rt.Fatalf("expected %d events, got %d", len(texts)+1, len(sink.Events))
		}
	})
}

func TestNextBoundary(t *testing.T) {
	tests := []struct {
		in        string
		wantIdx   int
		wantWidth int
	}{
		{"abc", -1, 0},
		{"a\n\nb", 1, 2},
		{"a\r\n\r\nb", 1, 4},
		{"a\n\r\nb", 1, 3},
		{"a\nb\n\nc\r\n\r\n", 3, 2},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.in), func(t *testing.T) {
			idx, width := nextBoundary([]byte(tt.in))
			assert.Equal(t, tt.wantIdx, idx)
			assert.Equal(t, tt.wantWidth, width)
		})
	}
}
