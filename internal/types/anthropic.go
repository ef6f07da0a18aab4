package types

import "encoding/json"

// AnthropicSource is the payload of an image content block: either a
// base64-encoded blob with a media type, or a bare URL.
type AnthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// ContentBlock is a tagged variant over every Anthropic content block type
// the bridge knows how to convert. Type discriminates which of the
// remaining fields are populated; every other field is the zero value.
//
// document, search_result, server_tool_use, web_search_tool_result and
// redacted_thinking are recognized by Type but carry no dedicated fields
// here — the bridge rejects them with a typed ConversionError rather than
// attempt a lossy best-effort mapping.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	// image
	Source *AnthropicSource `json:"source,omitempty"`
}

// AnthropicUsage carries Anthropic-style token accounting.
type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// AnthropicMessage is a complete, non-streaming Anthropic Messages API
// response.
type AnthropicMessage struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Model        string         `json:"model,omitempty"`
	Content      []ContentBlock `json:"content"`
	StopReason   string         `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence,omitempty"`
	Usage        AnthropicUsage `json:"usage"`
}

// AnthropicTool is an Anthropic-format tool definition, carried through
// unparsed on the request path so the fix registry can consult its
// schema for argument-key recovery.
type AnthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// AnthropicRequestMessage is one turn of an inbound Anthropic Messages
// request. Content may be a bare string or an array of content blocks;
// RawContent preserves whichever the client sent so Blocks can decode it
// correctly.
type AnthropicRequestMessage struct {
	Role       string          `json:"role"`
	RawContent json.RawMessage `json:"content"`
}

// Blocks decodes RawContent as an array of content blocks. If the client
// sent a bare string, it is returned as a single text block.
func (m AnthropicRequestMessage) Blocks() ([]ContentBlock, error) {
	var asString string
	if err := json.Unmarshal(m.RawContent, &asString); err == nil {
		return []ContentBlock{{Type: "text", Text: asString}}, nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(m.RawContent, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

// AnthropicRequest is the inbound /v1/messages request body. Extra
// preserves every field the client sent that isn't named here.
type AnthropicRequest struct {
	Model     string                    `json:"model"`
	Messages  []AnthropicRequestMessage `json:"messages"`
	System    json.RawMessage           `json:"system,omitempty"`
	Tools     []AnthropicTool           `json:"tools,omitempty"`
	MaxTokens int                       `json:"max_tokens,omitempty"`
	Stream    bool                      `json:"stream,omitempty"`
	Extra     map[string]json.RawMessage `json:"-"`
}

var anthropicRequestKnownFields = map[string]bool{
	"model": true, "messages": true, "system": true, "tools": true,
	"max_tokens": true, "stream": true,
}

// UnmarshalJSON decodes an AnthropicRequest, preserving unrecognized
// fields into Extra (mirrors ChatRequest.UnmarshalJSON).
func (r *AnthropicRequest) UnmarshalJSON(data []byte) error {
	type alias AnthropicRequest
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = AnthropicRequest(a)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		if anthropicRequestKnownFields[k] {
			continue
		}
		extra[k] = v
	}
	r.Extra = extra
	return nil
}

// MarshalJSON re-encodes an AnthropicRequest, merging Extra back in.
func (r AnthropicRequest) MarshalJSON() ([]byte, error) {
	type alias AnthropicRequest
	base, err := json.Marshal(alias(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// SystemText flattens the system field, which Anthropic clients send as
// either a bare string or an array of {type:"text", text:"..."} blocks.
func (r AnthropicRequest) SystemText() string {
	if len(r.System) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(r.System, &asString); err == nil {
		return asString
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(r.System, &blocks); err != nil {
		return ""
	}
	out := ""
	for i, b := range blocks {
		if i > 0 {
			out += "\n"
		}
		out += b.Text
	}
	return out
}
