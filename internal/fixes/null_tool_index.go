package fixes

import "llamaproxy/internal/types"

// NullToolIndex substitutes 0 for a streamed tool_calls delta's index
// when the upstream sent a JSON null there, before any other fix (or the
// synthesis engine's own accumulate-by-index bookkeeping) has to assume
// the index is always a valid integer.
//
// It has nothing to do on a whole, non-streaming response: index is only
// meaningful inside a streaming delta.
type NullToolIndex struct{}

func (f *NullToolIndex) Name() string { return "null_tool_index" }

func (f *NullToolIndex) Description() string {
	return "substitutes index 0 for a null tool-call index in a streaming delta"
}

func (f *NullToolIndex) Applies(resp *types.ChatResponse) bool { return false }

func (f *NullToolIndex) Apply(resp *types.ChatResponse, req *types.ChatRequest) (*types.ChatResponse, error) {
	return resp, nil
}

func (f *NullToolIndex) ApplyStream(chunk *types.ChatStreamChunk, acc *FixAccumulator, req *types.ChatRequest) (*types.ChatStreamChunk, []byte, error) {
	if chunk == nil {
		return chunk, nil, nil
	}
	zero := 0
	for ci, choice := range chunk.Choices {
		for ti, tc := range choice.Delta.ToolCalls {
			if tc.Index == nil {
				chunk.Choices[ci].Delta.ToolCalls[ti].Index = &zero
			}
		}
	}
	return chunk, nil, nil
}
