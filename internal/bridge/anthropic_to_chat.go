package bridge

import (
	"strings"

	"llamaproxy/internal/types"
)

// AnthropicMessageToChat converts a complete Anthropic Messages API
// response into its OpenAI Chat Completions equivalent. Thinking blocks
// are concatenated into the returned message's ReasoningContent field;
// any block carrying a non-empty Signature has that signature dropped —
// documented lossy, spec.md Open Question (ii).
//
// Unsupported block types (document, search_result, server_tool_use,
// web_search_tool_result, redacted_thinking) are omitted from the
// converted view and reported back as errors; the conversion still
// completes.
func AnthropicMessageToChat(m types.AnthropicMessage) (types.ChatResponse, []error) {
	var errs []error
	var textParts []string
	var reasoningParts []string
	var toolCalls []types.ChatToolCall

	for _, b := range m.Content {
		switch b.Type {
		case "text":
			textParts = append(textParts, b.Text)
		case "thinking":
			reasoningParts = append(reasoningParts, b.Thinking)
		case "image":
			if b.Source != nil {
				uri := imageSourceToURI(b.Source.MediaType, b.Source.Data, b.Source.URL, b.Source.Type)
				textParts = append(textParts, imageLineSentinel+uri)
			}
		case "tool_use":
			toolCalls = append(toolCalls, types.ChatToolCall{
				ID:   b.ID,
				Type: "function",
				Function: types.ChatToolCallFunction{
					Name:      b.Name,
					Arguments: string(b.Input),
				},
			})
		default:
			errs = append(errs, unsupportedBlockError(b.Type))
		}
	}

	finishReason := AnthropicStopReasonToFinishReason(m.StopReason)
	msg := types.ChatMessage{
		Role:             "assistant",
		Content:          strings.Join(textParts, "\n"),
		ToolCalls:        toolCalls,
		ReasoningContent: strings.Join(reasoningParts, "\n"),
	}

	resp := types.ChatResponse{
		ID:      m.ID,
		Object:  "chat.completion",
		Model:   m.Model,
		Choices: []types.ChatChoice{{Index: 0, Message: msg, FinishReason: &finishReason}},
		Usage: types.ChatUsage{
			PromptTokens:     m.Usage.InputTokens,
			CompletionTokens: m.Usage.OutputTokens,
			TotalTokens:      m.Usage.InputTokens + m.Usage.OutputTokens,
		},
	}
	return resp, errs
}
