// Package synth turns a single fully-buffered upstream response into a
// lazily-emitted SSE byte stream in the client's grammar of choice. Both
// directions are adapted from a live-stream state machine
// (other_examples' tingly-box stream package) down to a single pass over a
// response that already exists in full: block/tool-call index bookkeeping
// survives, the `stream.Next()` polling loop does not.
package synth

import (
	"encoding/json"

	"llamaproxy/internal/sse"
	"llamaproxy/internal/textutil"
	"llamaproxy/internal/types"
)

// DefaultTextChunkSize is the target text_delta chunk size in bytes (before
// UTF-8/whitespace snapping), per the synthesis chunking algorithm.
const DefaultTextChunkSize = 20

// OpenAIChunkStream writes resp as a sequence of OpenAI
// chat.completion.chunk SSE frames followed by the literal [DONE]
// terminator. id is the stable chunk id shared by every frame in the
// stream; chunkSize is the text_delta target size (DefaultTextChunkSize if
// <= 0).
func OpenAIChunkStream(w *sse.Writer, resp *types.ChatResponse, id string, created int64, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = DefaultTextChunkSize
	}
	if len(resp.Choices) == 0 {
		return w.WriteDone()
	}
	choice := resp.Choices[0]

	if err := w.WriteData(openAIChunk(id, resp.Model, created, types.ChatStreamDelta{Role: "assistant"}, nil)); err != nil {
		return err
	}

	for _, piece := range textutil.ChunkText(choice.Message.Content, chunkSize) {
		if err := w.WriteData(openAIChunk(id, resp.Model, created, types.ChatStreamDelta{Content: piece}, nil)); err != nil {
			return err
		}
	}

	for i, tc := range choice.Message.ToolCalls {
		idx := i
		startDelta := types.ChatStreamDelta{
			ToolCalls: []types.ChatToolCall{{
				Index: &idx,
				ID:    tc.ID,
				Type:  "function",
				Function: types.ChatToolCallFunction{
					Name:      tc.Function.Name,
					Arguments: "",
				},
			}},
		}
		if err := w.WriteData(openAIChunk(id, resp.Model, created, startDelta, nil)); err != nil {
			return err
		}

		for _, piece := range textutil.ChunkText(tc.Function.Arguments, chunkSize) {
			argDelta := types.ChatStreamDelta{
				ToolCalls: []types.ChatToolCall{{
					Index:    &idx,
					Function: types.ChatToolCallFunction{Arguments: piece},
				}},
			}
			if err := w.WriteData(openAIChunk(id, resp.Model, created, argDelta, nil)); err != nil {
				return err
			}
		}
	}

	if err := w.WriteData(openAIChunk(id, resp.Model, created, types.ChatStreamDelta{}, choice.FinishReason)); err != nil {
		return err
	}
	return w.WriteDone()
}

func openAIChunk(id, model string, created int64, delta types.ChatStreamDelta, finishReason *string) types.ChatStreamChunk {
	return types.ChatStreamChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
		Choices: []types.ChatStreamChoice{{
			Index:        0,
			Delta:        delta,
			FinishReason: finishReason,
		}},
	}
}

// ToolCallArgumentsJSON normalizes tc's arguments to a compact JSON string,
// falling back to the raw value when it is not valid JSON (a fix's job,
// not synthesis's, to have already repaired it by this point).
func ToolCallArgumentsJSON(tc types.ChatToolCall) string {
	if json.Valid([]byte(tc.Function.Arguments)) {
		var compact interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &compact); err == nil {
			if b, err := json.Marshal(compact); err == nil {
				return string(b)
			}
		}
	}
	return tc.Function.Arguments
}
