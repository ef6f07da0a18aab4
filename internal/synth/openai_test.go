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

func finishReason(s string) *string { return &s }

func TestOpenAIChunkStreamAccumulatesToOriginalContent(t *testing.T) {
	resp := &types.ChatResponse{
		ID:    "abc",
		Model: "local-model",
		Choices: []types.ChatChoice{{
			Index:        0,
			Message:      types.ChatMessage{Role: "assistant", Content: "hello there, friend! this is a longer sentence to exercise chunk boundaries."},
			FinishReason: finishReason("stop"),
		}},
	}

	rec := httptest.NewRecorder()
	w := sse.NewWriter(rec)
	require.NoError(t, OpenAIChunkStream(w, resp, "chatcmpl-1", 1700000000, 10))

	var accumulated strings.Builder
	var sawRoleChunk, sawFinish bool
	for _, line := range strings.Split(rec.Body.String(), "\n\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			continue
		}
		var chunk types.ChatStreamChunk
		require.NoError(t, json.Unmarshal([]byte(payload), &chunk))
		require.Len(t, chunk.Choices, 1)
		if chunk.Choices[0].Delta.Role == "assistant" {
			sawRoleChunk = true
		}
		accumulated.WriteString(chunk.Choices[0].Delta.Content)
		if chunk.Choices[0].FinishReason != nil {
			sawFinish = true
			assert.Equal(t, "stop", *chunk.Choices[0].FinishReason)
		}
	}

	assert.True(t, sawRoleChunk)
	assert.True(t, sawFinish)
	assert.Equal(t, resp.Choices[0].Message.Content, accumulated.String())
	assert.True(t, strings.HasSuffix(rec.Body.String(), "data: [DONE]\n\n"))
}

func TestOpenAIChunkStreamToolCallArguments(t *testing.T) {
	resp := &types.ChatResponse{
		ID:    "abc",
		Model: "local-model",
		Choices: []types.ChatChoice{{
			Message: types.ChatMessage{
				Role: "assistant",
				ToolCalls: []types.ChatToolCall{{
					ID:       "call_1",
					Type:     "function",
					Function: types.ChatToolCallFunction{Name: "get_weather", Arguments: `{"city":"Paris","unit":"celsius"}`},
				}},
			},
			FinishReason: finishReason("tool_calls"),
		}},
	}

	rec := httptest.NewRecorder()
	w := sse.NewWriter(rec)
	require.NoError(t, OpenAIChunkStream(w, resp, "chatcmpl-2", 1700000000, 8))

	var accumulatedArgs strings.Builder
	var sawName bool
	for _, line := range strings.Split(rec.Body.String(), "\n\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			continue
		}
		var chunk types.ChatStreamChunk
		require.NoError(t, json.Unmarshal([]byte(payload), &chunk))
		for _, tc := range chunk.Choices[0].Delta.ToolCalls {
			if tc.Function.Name != "" {
				sawName = true
				assert.Equal(t, "get_weather", tc.Function.Name)
			}
			accumulatedArgs.WriteString(tc.Function.Arguments)
		}
	}

	assert.True(t, sawName)
	assert.Equal(t, `{"city":"Paris","unit":"celsius"}`, accumulatedArgs.String())
}
