package bridge

import (
	"strings"

	"llamaproxy/internal/types"
)

// AnthropicRequestToChat converts an inbound /v1/messages request into
// the ChatRequest the upstream (OpenAI-grammar-only) inference server
// expects. The system field, if present, becomes a leading system
// message. Extra fields travel through unchanged.
//
// tool_result content blocks are a structural transformation, not an
// in-place one: each becomes its own role=tool message immediately after
// whatever text/image content preceded it in the same Anthropic message,
// preserving conversation order (spec.md §4.A, scenario 5).
func AnthropicRequestToChat(req types.AnthropicRequest) (types.ChatRequest, []error) {
	var errs []error
	var messages []types.ChatMessage

	if sys := req.SystemText(); sys != "" {
		messages = append(messages, types.ChatMessage{Role: "system", Content: sys})
	}

	for _, m := range req.Messages {
		blocks, err := m.Blocks()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		converted, convErrs := convertRequestMessage(m.Role, blocks)
		errs = append(errs, convErrs...)
		messages = append(messages, converted...)
	}

	tools := make([]types.ChatTool, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, types.ChatTool{
			Type: "function",
			Function: types.ChatToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}

	return types.ChatRequest{
		Model:    req.Model,
		Messages: messages,
		Tools:    tools,
		Stream:   req.Stream,
		Extra:    req.Extra,
	}, errs
}

func convertRequestMessage(role string, blocks []types.ContentBlock) ([]types.ChatMessage, []error) {
	if role == "user" {
		return convertUserBlocks(blocks)
	}
	return convertAssistantBlocks(blocks)
}

// convertUserBlocks flushes accumulated text/image content into a user
// message whenever a tool_result block is encountered, emitting the tool
// message for that result, then resumes accumulating. This keeps the
// original interleaving of plain content and tool results intact.
func convertUserBlocks(blocks []types.ContentBlock) ([]types.ChatMessage, []error) {
	var errs []error
	var out []types.ChatMessage
	var pending []types.ContentBlock

	flush := func() {
		if len(pending) == 0 {
			return
		}
		out = append(out, types.ChatMessage{Role: "user", Content: renderContentBlocks(pending)})
		pending = nil
	}

	for _, b := range blocks {
		switch b.Type {
		case "tool_result":
			flush()
			out = append(out, types.ChatMessage{
				Role:       "tool",
				ToolCallID: b.ToolUseID,
				Content:    b.Content,
			})
		case "text", "image":
			pending = append(pending, b)
		default:
			errs = append(errs, unsupportedBlockError(b.Type))
		}
	}
	flush()
	return out, errs
}

func convertAssistantBlocks(blocks []types.ContentBlock) ([]types.ChatMessage, []error) {
	var errs []error
	var content []types.ContentBlock
	var reasoningParts []string
	var toolCalls []types.ChatToolCall

	for _, b := range blocks {
		switch b.Type {
		case "text", "image":
			content = append(content, b)
		case "thinking":
			reasoningParts = append(reasoningParts, b.Thinking)
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

	msg := types.ChatMessage{
		Role:             "assistant",
		Content:          renderContentBlocks(content),
		ToolCalls:        toolCalls,
		ReasoningContent: strings.Join(reasoningParts, "\n"),
	}
	return []types.ChatMessage{msg}, errs
}

// renderContentBlocks flattens an ordered run of text/image blocks into
// the single string ChatMessage.Content carries, mirroring
// splitChatContent's reverse.
func renderContentBlocks(blocks []types.ContentBlock) string {
	var lines []string
	for _, b := range blocks {
		if b.Type == "image" {
			if b.Source != nil {
				uri := imageSourceToURI(b.Source.MediaType, b.Source.Data, b.Source.URL, b.Source.Type)
				lines = append(lines, imageLineSentinel+uri)
			}
			continue
		}
		lines = append(lines, b.Text)
	}
	return strings.Join(lines, "\n")
}
