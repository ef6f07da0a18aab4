package synth

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llamaproxy/internal/sse"
	"llamaproxy/internal/types"
)

type sseEvent struct {
	Type string
	Data map[string]interface{}
}

func parseEvents(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	blocks := strings.Split(strings.TrimRight(body, "\n"), "\n\n")
	for _, b := range blocks {
		if b == "" {
			continue
		}
		lines := strings.SplitN(b, "\n", 2)
		require.Len(t, lines, 2)
		eventType := strings.TrimPrefix(lines[0], "event: ")
		dataLine := strings.TrimPrefix(lines[1], "data: ")
		var data map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(dataLine), &data))
		events = append(events, sseEvent{Type: eventType, Data: data})
	}
	return events
}

func TestAnthropicChunkStreamEventOrderAndTermination(t *testing.T) {
	msg := &types.AnthropicMessage{
		ID:         "msg_1",
		Type:       "message",
		Role:       "assistant",
		Model:      "local-model",
		StopReason: "end_turn",
		Usage:      types.AnthropicUsage{InputTokens: 10, OutputTokens: 5},
		Content: []types.ContentBlock{
			{Type: "text", Text: "hello emoji test: 😀😀 with spaces"},
		},
	}

	rec := httptest.NewRecorder()
	w := sse.NewWriter(rec)
	require.NoError(t, AnthropicChunkStream(w, msg, 6))

	events := parseEvents(t, rec.Body.String())
	require.GreaterOrEqual(t, len(events), 5)
	assert.Equal(t, "message_start", events[0].Type)
	assert.Equal(t, "content_block_start", events[1].Type)
	assert.Equal(t, "content_block_stop", events[len(events)-3].Type)
	assert.Equal(t, "message_delta", events[len(events)-2].Type)
	assert.Equal(t, "message_stop", events[len(events)-1].Type)

	var accumulated strings.Builder
	for _, ev := range events {
		if ev.Type != "content_block_delta" {
			continue
		}
		delta := ev.Data["delta"].(map[string]interface{})
		if text, ok := delta["text"].(string); ok {
			accumulated.WriteString(text)
		}
	}
	assert.Equal(t, msg.Content[0].Text, accumulated.String())
}

func TestAnthropicChunkStreamToolUseInputJSON(t *testing.T) {
	msg := &types.AnthropicMessage{
		ID:         "msg_2",
		StopReason: "tool_use",
		Content: []types.ContentBlock{
			{Type: "tool_use", ID: "toolu_1", Name: "get_weather", Input: json.RawMessage(`{"city":"Tokyo"}`)},
		},
	}

	rec := httptest.NewRecorder()
	w := sse.NewWriter(rec)
	require.NoError(t, AnthropicChunkStream(w, msg, 5))

	events := parseEvents(t, rec.Body.String())
	var accumulated strings.Builder
	for _, ev := range events {
		if ev.Type != "content_block_delta" {
			continue
		}
		delta := ev.Data["delta"].(map[string]interface{})
		if pj, ok := delta["partial_json"].(string); ok {
			accumulated.WriteString(pj)
		}
	}
	assert.Equal(t, `{"city":"Tokyo"}`, accumulated.String())
}

func TestAnthropicChunkStreamThinkingWithSignature(t *testing.T) {
	msg := &types.AnthropicMessage{
		ID:         "msg_3",
		StopReason: "end_turn",
		Content: []types.ContentBlock{
			{Type: "thinking", Thinking: "reasoning text", Signature: "sig-abc"},
		},
	}

	rec := httptest.NewRecorder()
	w := sse.NewWriter(rec)
	require.NoError(t, AnthropicChunkStream(w, msg, 50))

	events := parseEvents(t, rec.Body.String())
	var sawSignatureDelta bool
	for _, ev := range events {
		if ev.Type != "content_block_delta" {
			continue
		}
		delta := ev.Data["delta"].(map[string]interface{})
		if delta["type"] == "signature_delta" {
			sawSignatureDelta = true
			assert.Equal(t, "sig-abc", delta["signature"])
		}
	}
	assert.True(t, sawSignatureDelta)
}
