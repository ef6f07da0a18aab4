package bridge

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"llamaproxy/internal/types"
)

// newToolUseID synthesizes an Anthropic tool_use id for an OpenAI tool
// call that arrived without one, per spec.md §4.A.
func newToolUseID() string {
	return "toolu_" + uuid.NewString()
}

// splitChatContent reverses the text/image flattening ChatResponseToAnthropic
// (and AnthropicMessageToChat before it) performs on ChatMessage.Content,
// recovering an ordered list of text and image content blocks.
func splitChatContent(content string) []types.ContentBlock {
	if content == "" {
		return nil
	}
	var blocks []types.ContentBlock
	var textLines []string

	flushText := func() {
		if len(textLines) == 0 {
			return
		}
		text := strings.Join(textLines, "\n")
		if text != "" {
			blocks = append(blocks, types.ContentBlock{Type: "text", Text: text})
		}
		textLines = nil
	}

	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, imageLineSentinel) {
			flushText()
			uri := strings.TrimPrefix(line, imageLineSentinel)
			sourceType, mediaType, data, url := uriToImageSource(uri)
			blocks = append(blocks, types.ContentBlock{
				Type: "image",
				Source: &types.AnthropicSource{
					Type:      sourceType,
					MediaType: mediaType,
					Data:      data,
					URL:       url,
				},
			})
			continue
		}
		textLines = append(textLines, line)
	}
	flushText()
	return blocks
}

// ChatResponseToAnthropic converts a complete OpenAI Chat Completions
// response's first choice into an Anthropic Messages API response.
// ReasoningContent, if present, becomes a leading thinking block; exact
// interleaving of thinking with text/image content cannot be recovered
// once it has been flattened into the side field, so the thinking block
// is always emitted first — a documented ordering loss, not a content
// loss.
func ChatResponseToAnthropic(r types.ChatResponse) (types.AnthropicMessage, []error) {
	var errs []error

	msg := types.AnthropicMessage{
		ID:    r.ID,
		Type:  "message",
		Role:  "assistant",
		Model: r.Model,
		Usage: types.AnthropicUsage{
			InputTokens:  r.Usage.PromptTokens,
			OutputTokens: r.Usage.CompletionTokens,
		},
	}

	if len(r.Choices) == 0 {
		msg.Content = []types.ContentBlock{}
		msg.StopReason = "end_turn"
		return msg, errs
	}

	choice := r.Choices[0]

	var content []types.ContentBlock
	if choice.Message.ReasoningContent != "" {
		content = append(content, types.ContentBlock{Type: "thinking", Thinking: choice.Message.ReasoningContent})
	}
	content = append(content, splitChatContent(choice.Message.Content)...)

	for _, tc := range choice.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = newToolUseID()
		}
		input := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(input) {
			errs = append(errs, unsupportedBlockError("tool_use:invalid_arguments_json"))
			input = json.RawMessage("{}")
		}
		content = append(content, types.ContentBlock{
			Type:  "tool_use",
			ID:    id,
			Name:  tc.Function.Name,
			Input: input,
		})
	}

	msg.Content = content

	finishReason := ""
	if choice.FinishReason != nil {
		finishReason = *choice.FinishReason
	}
	msg.StopReason = FinishReasonToAnthropicStopReason(finishReason)

	return msg, errs
}
