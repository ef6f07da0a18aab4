package fixes

import (
	"encoding/json"
	"strings"

	"llamaproxy/internal/types"
)

// brokenKeyPattern is the corruption this fix repairs: a value was
// injected where a key belongs, rendering as an empty object literal
// immediately followed by a stray quote and colon.
const brokenKeyPattern = `{}":`

// ArgumentKeyRecovery repairs tool-call arguments where a key has gone
// missing and been replaced by `{}":`, substituting the first required
// parameter name from the matching tool's schema in the originating
// request.
type ArgumentKeyRecovery struct{}

func (f *ArgumentKeyRecovery) Name() string { return "argument_key_recovery" }

func (f *ArgumentKeyRecovery) Description() string {
	return "recovers a missing argument key using the first required schema parameter"
}

func (f *ArgumentKeyRecovery) Applies(resp *types.ChatResponse) bool {
	if resp == nil {
		return false
	}
	for _, choice := range resp.Choices {
		for _, tc := range choice.Message.ToolCalls {
			if strings.Contains(tc.Function.Arguments, brokenKeyPattern) {
				return true
			}
		}
	}
	return false
}

func (f *ArgumentKeyRecovery) Apply(resp *types.ChatResponse, req *types.ChatRequest) (*types.ChatResponse, error) {
	out := *resp
	out.Choices = make([]types.ChatChoice, len(resp.Choices))
	copy(out.Choices, resp.Choices)

	for ci, choice := range out.Choices {
		if len(choice.Message.ToolCalls) == 0 {
			continue
		}
		calls := make([]types.ChatToolCall, len(choice.Message.ToolCalls))
		copy(calls, choice.Message.ToolCalls)
		for ti, tc := range calls {
			if strings.Contains(tc.Function.Arguments, brokenKeyPattern) {
				param := firstRequiredParam(req, tc.Function.Name)
				if param != "" {
					tc.Function.Arguments = strings.Replace(
						tc.Function.Arguments, brokenKeyPattern, `"`+param+`":`, 1)
				}
			}
			calls[ti] = tc
		}
		choice.Message.ToolCalls = calls
		out.Choices[ci] = choice
	}
	return &out, nil
}

// ApplyStream repairs the pattern inside each chunk's incremental
// argument text and remembers the matching tool's name (carried on the
// chunk's first delta for that index) in the accumulator so a later
// chunk that carries the pattern can still be resolved. The pattern is
// matched within one chunk's text only; a pattern split across two
// chunks is not detected.
func (f *ArgumentKeyRecovery) ApplyStream(chunk *types.ChatStreamChunk, acc *FixAccumulator, req *types.ChatRequest) (*types.ChatStreamChunk, []byte, error) {
	if chunk == nil {
		return chunk, nil, nil
	}
	for ci, choice := range chunk.Choices {
		for ti, tc := range choice.Delta.ToolCalls {
			if tc.Index == nil {
				continue
			}
			st := acc.State(*tc.Index)
			if tc.Function.Name != "" {
				st.SchemaHint = tc.Function.Name
			}
			if !strings.Contains(tc.Function.Arguments, brokenKeyPattern) {
				continue
			}
			param := firstRequiredParam(req, st.SchemaHint)
			if param == "" {
				continue
			}
			rewritten := tc
			rewritten.Function.Arguments = strings.Replace(
				tc.Function.Arguments, brokenKeyPattern, `"`+param+`":`, 1)
			chunk.Choices[ci].Delta.ToolCalls[ti] = rewritten
		}
	}
	return chunk, nil, nil
}

// firstRequiredParam looks up toolName in req's tool definitions and
// returns the first entry of its JSON schema's "required" array, or ""
// if the tool, its schema, or a required list cannot be found.
func firstRequiredParam(req *types.ChatRequest, toolName string) string {
	if req == nil || toolName == "" {
		return ""
	}
	for _, t := range req.Tools {
		if t.Function.Name != toolName {
			continue
		}
		var schema struct {
			Required []string `json:"required"`
		}
		if err := json.Unmarshal(t.Function.Parameters, &schema); err != nil {
			return ""
		}
		if len(schema.Required) == 0 {
			return ""
		}
		return schema.Required[0]
	}
	return ""
}
