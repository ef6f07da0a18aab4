package fixes

import (
	"fmt"
	"strings"

	"llamaproxy/internal/types"
)

// DedupToolArguments repairs the two corruption patterns real model
// output occasionally produces inside a tool call's JSON arguments
// string: a duplicated object key, and a dropped colon between a key and
// its value (which, read naively, looks like `"key"value` instead of
// `"key":value`). It is the mandatory baseline fix named in the response-
// fix registry.
//
// RemoveDuplicate selects the repair policy for a genuine duplicate key:
// true keeps the first occurrence and drops the second; false keeps both,
// renaming the second occurrence's key with a numeric suffix.
type DedupToolArguments struct {
	RemoveDuplicate bool
}

func (f *DedupToolArguments) Name() string { return "dedup_tool_arguments" }

func (f *DedupToolArguments) Description() string {
	return "repairs duplicate or colon-missing keys in tool call argument JSON"
}

func (f *DedupToolArguments) Applies(resp *types.ChatResponse) bool {
	if resp == nil {
		return false
	}
	for _, choice := range resp.Choices {
		for _, tc := range choice.Message.ToolCalls {
			repaired, complete := repairArguments(tc.Function.Arguments, f.RemoveDuplicate)
			if complete && repaired != tc.Function.Arguments {
				return true
			}
		}
	}
	return false
}

func (f *DedupToolArguments) Apply(resp *types.ChatResponse, req *types.ChatRequest) (*types.ChatResponse, error) {
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
			repaired, complete := repairArguments(tc.Function.Arguments, f.RemoveDuplicate)
			if complete {
				tc.Function.Arguments = repaired
			}
			calls[ti] = tc
		}
		choice.Message.ToolCalls = calls
		out.Choices[ci] = choice
	}
	return &out, nil
}

// ApplyStream accumulates each chunk's argument substrings per tool-call
// index and emits, as its delta, exactly the newly-completed repaired
// key/value pairs. Pairs are never reopened once emitted — the dedup
// decision for a key is only made once its second full occurrence has
// arrived — so the emitted prefix only ever grows, satisfying the
// delta-safety contract without needing to re-derive or compare against
// a previously emitted buffer. st.BytesEmitted is read-only here: the
// registry is the sole writer, advancing it by exactly the delta length
// after every fix in the chain has run.
func (f *DedupToolArguments) ApplyStream(chunk *types.ChatStreamChunk, acc *FixAccumulator, req *types.ChatRequest) (*types.ChatStreamChunk, []byte, error) {
	if chunk == nil {
		return chunk, nil, nil
	}

	var lastDelta []byte
	for ci, choice := range chunk.Choices {
		for ti, tc := range choice.Delta.ToolCalls {
			if tc.Index == nil {
				continue
			}
			idx := *tc.Index
			st := acc.State(idx)
			st.Buffer = append(st.Buffer, []byte(tc.Function.Arguments)...)

			repairedView := buildRepairedView(string(st.Buffer), f.RemoveDuplicate)
			if len(repairedView) <= st.BytesEmitted {
				continue
			}
			delta := []byte(repairedView[st.BytesEmitted:])
			lastDelta = delta

			rewritten := tc
			rewritten.Function.Arguments = string(delta)
			chunk.Choices[ci].Delta.ToolCalls[ti] = rewritten
		}
	}
	return chunk, lastDelta, nil
}

// buildRepairedView renders the portion of the argument object that can
// be safely considered final right now: every fully-parsed key/value
// pair, deduplicated per policy, joined back into object syntax without
// a closing brace unless the object itself is already complete.
func buildRepairedView(buf string, removeDuplicate bool) string {
	pairs, complete := scanObjectPairs(buf)
	resolved := resolveDuplicates(pairs, removeDuplicate)

	var b strings.Builder
	b.WriteByte('{')
	for i, p := range resolved {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%q:%s", p.Key, p.ValueRaw)
	}
	if complete {
		b.WriteByte('}')
	}
	return b.String()
}

// repairArguments runs buildRepairedView but only reports a result when
// the input was a syntactically complete object (used by the
// whole-response Apply path, which never wants a partial rewrite).
func repairArguments(buf string, removeDuplicate bool) (string, bool) {
	pairs, complete := scanObjectPairs(buf)
	if !complete {
		return buf, false
	}
	resolved := resolveDuplicates(pairs, removeDuplicate)

	var b strings.Builder
	b.WriteByte('{')
	for i, p := range resolved {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%q:%s", p.Key, p.ValueRaw)
	}
	b.WriteByte('}')
	return b.String(), true
}

// resolveDuplicates applies the repair policy for repeated keys: the
// first occurrence is always kept; each later occurrence is either
// dropped (removeDuplicate) or kept under a suffixed key name. When a
// colon was missing and the recovered value is identical to the first
// occurrence's, it is always treated as a duplicate regardless of
// policy's name — the suffixing branch still applies if
// removeDuplicate is false, matching the "fix syntax and keep both"
// wording.
func resolveDuplicates(pairs []objectPair, removeDuplicate bool) []objectPair {
	seen := make(map[string]int, len(pairs))
	counts := make(map[string]int, len(pairs))
	out := make([]objectPair, 0, len(pairs))

	for _, p := range pairs {
		if _, isDup := seen[p.Key]; !isDup {
			seen[p.Key] = len(out)
			out = append(out, p)
			continue
		}
		if removeDuplicate {
			continue
		}
		counts[p.Key]++
		suffixed := p
		suffixed.Key = fmt.Sprintf("%s_dup%d", p.Key, counts[p.Key])
		out = append(out, suffixed)
	}
	return out
}
