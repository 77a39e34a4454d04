package responses

import (
	"encoding/json"
	"testing"

	"github.com/mozaika228/hephaestus/services/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	plain := NewRequest("m", "", providers.Request{Message: "hi"}, true)
	body, err := json.Marshal(plain)
	require.NoError(t, err)
	assert.JSONEq(t, `{"model":"m","stream":true,"input":[{"role":"user","content":[{"type":"input_text","text":"hi"}]}]}`, string(body))

	withFile := NewRequest("m", "sys", providers.Request{Message: "read", FileID: "file-1"}, false)
	body, err = json.Marshal(withFile)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"model":"m","instructions":"sys","stream":false,
		"input":[{"role":"user","content":[
			{"type":"input_text","text":"read"},
			{"type":"input_file","file_id":"file-1"}
		]}]
	}`, string(body))
}

func TestTranslator(t *testing.T) {
	translate := Translator(providers.Azure)

	tests := []struct {
		name         string
		payload      string
		want         []providers.Event
		wantTerminal bool
	}{
		{"text delta", `{"type":"response.output_text.delta","delta":"hi"}`, []providers.Event{providers.Delta("hi")}, false},
		{"refusal delta", `{"type":"response.refusal.delta","delta":"no"}`, []providers.Event{providers.Delta("no")}, false},
		{"empty delta", `{"type":"response.output_text.delta","delta":""}`, nil, false},
		{"completed", `{"type":"response.completed"}`, []providers.Event{providers.Done()}, true},
		{"unknown type", `{"type":"response.in_progress"}`, nil, false},
		{"not an object", `[1,2]`, nil, false},
		{
			"failed with nested message",
			`{"type":"response.failed","response":{"error":{"message":"quota gone"}}}`,
			[]providers.Event{providers.ErrorEvent(providers.CodeProviderError, "Azure OpenAI response failed: quota gone"), providers.Done()},
			true,
		},
		{
			"failed with nothing",
			`{"type":"response.failed"}`,
			[]providers.Event{providers.ErrorEvent(providers.CodeProviderError, "Azure OpenAI response failed: unknown_error"), providers.Done()},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, terminal := translate(json.RawMessage(tt.payload))
			assert.Equal(t, tt.want, events)
			assert.Equal(t, tt.wantTerminal, terminal)
		})
	}
}

func TestFailureDetail(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"error message first", `{"error":{"message":"a","code":"b"},"response":{"error":{"message":"c"}},"message":"d"}`, "a"},
		{"error code", `{"error":{"code":"b"},"response":{"error":{"message":"c"}}}`, "b"},
		{"response error message", `{"response":{"error":{"message":"c","code":"x"}}}`, "c"},
		{"response error code", `{"response":{"error":{"code":"x"}}}`, "x"},
		{"top level message", `{"message":"d","code":"e"}`, "d"},
		{"top level code", `{"code":"e"}`, "e"},
		{"nothing", `{}`, "unknown_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ev streamEvent
			require.NoError(t, json.Unmarshal([]byte(tt.payload), &ev))
			assert.Equal(t, tt.want, failureDetail(ev))
		})
	}
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			"joins message parts",
			`{"output":[{"type":"message","content":[{"type":"output_text","text":"a"},{"type":"output_text","text":"b"}]}]}`,
			"ab",
		},
		{
			"skips non message items",
			`{"output":[{"type":"function_call","content":[{"type":"output_text","text":"x"}]},{"type":"message","content":[{"type":"output_text","text":" y "}]}]}`,
			"y",
		},
		{"no output", `{"id":"r"}`, ""},
		{"invalid json", `nope`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractText([]byte(tt.body)))
		})
	}
}

func TestTerminalSink(t *testing.T) {
	inner := &providers.Collector{}
	sink := &terminalSink{next: inner}

	require.NoError(t, sink.Send(providers.Delta("x")))
	assert.False(t, sink.done)
	require.NoError(t, sink.Send(providers.Done()))
	assert.True(t, sink.done)
	assert.Len(t, inner.Events, 2)
}
