package synth

import (
	"encoding/json"

	"llamaproxy/internal/sse"
	"llamaproxy/internal/textutil"
	"llamaproxy/internal/types"
)

// AnthropicChunkStream writes msg as the six-event-type Anthropic Messages
// streaming sequence: message_start, one content_block_start/delta.../stop
// triple per content block, message_delta, message_stop.
func AnthropicChunkStream(w *sse.Writer, msg *types.AnthropicMessage, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = DefaultTextChunkSize
	}

	if err := w.WriteNamed("message_start", map[string]interface{}{
		"type": "message_start",
		"message": map[string]interface{}{
			"id":            msg.ID,
			"type":          "message",
			"role":          "assistant",
			"model":         msg.Model,
			"content":       []interface{}{},
			"stop_reason":   nil,
			"stop_sequence": nil,
			"usage": map[string]interface{}{
				"input_tokens":  msg.Usage.InputTokens,
				"output_tokens": 0,
			},
		},
	}); err != nil {
		return err
	}

	for i, block := range msg.Content {
		if err := emitContentBlock(w, i, block, chunkSize); err != nil {
			return err
		}
	}

	if err := w.WriteNamed("message_delta", map[string]interface{}{
		"type": "message_delta",
		"delta": map[string]interface{}{
			"stop_reason":   msg.StopReason,
			"stop_sequence": msg.StopSequence,
		},
		"usage": map[string]interface{}{
			"output_tokens": msg.Usage.OutputTokens,
		},
	}); err != nil {
		return err
	}

	return w.WriteNamed("message_stop", map[string]interface{}{"type": "message_stop"})
}

func emitContentBlock(w *sse.Writer, index int, block types.ContentBlock, chunkSize int) error {
	skeleton, deltas, err := blockSkeletonAndDeltas(block, chunkSize)
	if err != nil {
		return err
	}

	if err := w.WriteNamed("content_block_start", map[string]interface{}{
		"type":          "content_block_start",
		"index":         index,
		"content_block": skeleton,
	}); err != nil {
		return err
	}

	for _, delta := range deltas {
		if err := w.WriteNamed("content_block_delta", map[string]interface{}{
			"type":  "content_block_delta",
			"index": index,
			"delta": delta,
		}); err != nil {
			return err
		}
	}

	return w.WriteNamed("content_block_stop", map[string]interface{}{
		"type":  "content_block_stop",
		"index": index,
	})
}

// blockSkeletonAndDeltas returns the empty content_block_start skeleton for
// block and the ordered content_block_delta payloads that fill it in.
func blockSkeletonAndDeltas(block types.ContentBlock, chunkSize int) (interface{}, []map[string]interface{}, error) {
	switch block.Type {
	case "text":
		skeleton := map[string]interface{}{"type": "text", "text": ""}
		var deltas []map[string]interface{}
		for _, piece := range textutil.ChunkText(block.Text, chunkSize) {
			deltas = append(deltas, map[string]interface{}{"type": "text_delta", "text": piece})
		}
		return skeleton, deltas, nil

	case "thinking":
		skeleton := map[string]interface{}{"type": "thinking", "thinking": ""}
		var deltas []map[string]interface{}
		for _, piece := range textutil.ChunkText(block.Thinking, chunkSize) {
			deltas = append(deltas, map[string]interface{}{"type": "thinking_delta", "thinking": piece})
		}
		if block.Signature != "" {
			deltas = append(deltas, map[string]interface{}{"type": "signature_delta", "signature": block.Signature})
		}
		return skeleton, deltas, nil

	case "tool_use":
		skeleton := map[string]interface{}{
			"type":  "tool_use",
			"id":    block.ID,
			"name":  block.Name,
			"input": map[string]interface{}{},
		}
		input := compactJSON(block.Input)
		var deltas []map[string]interface{}
		for _, piece := range textutil.ChunkText(input, chunkSize) {
			deltas = append(deltas, map[string]interface{}{"type": "input_json_delta", "partial_json": piece})
		}
		return skeleton, deltas, nil

	default:
		return map[string]interface{}{"type": block.Type}, nil, nil
	}
}

// compactJSON re-encodes raw as a minified JSON string, used when a block's
// input must be re-serialized before chunking (mirrors the OpenAI side's
// ToolCallArgumentsJSON).
func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(b)
}
