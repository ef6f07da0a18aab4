package bridge

// stop-reason mapping tables (spec §3): end_turn<->stop, max_tokens<->length,
// tool_use<->tool_calls, stop_sequence->stop (many-to-one; reverse defaults
// to end_turn).

var anthropicToOpenAIFinish = map[string]string{
	"end_turn":      "stop",
	"max_tokens":    "length",
	"tool_use":      "tool_calls",
	"stop_sequence": "stop",
}

var openAIToAnthropicStop = map[string]string{
	"stop":          "end_turn",
	"length":        "max_tokens",
	"tool_calls":    "tool_use",
	"content_filter": "end_turn",
}

// AnthropicStopReasonToFinishReason maps an Anthropic stop_reason to its
// OpenAI finish_reason. Unknown input maps to "stop", the safest default.
func AnthropicStopReasonToFinishReason(stopReason string) string {
	if fr, ok := anthropicToOpenAIFinish[stopReason]; ok {
		return fr
	}
	return "stop"
}

// FinishReasonToAnthropicStopReason maps an OpenAI finish_reason to its
// Anthropic stop_reason. Unknown input (and "content_filter", which has
// no first-class Anthropic equivalent) maps to "end_turn".
func FinishReasonToAnthropicStopReason(finishReason string) string {
	if sr, ok := openAIToAnthropicStop[finishReason]; ok {
		return sr
	}
	return "end_turn"
}
