package transform

import (
	"encoding/json"
	"fmt"

	"github.com/nulpointcorp/llm-gateway/internal/gwerr"
	"github.com/nulpointcorp/llm-gateway/internal/uif"
)

// anthropicMessagesRequest mirrors the client-facing body of POST
// /v2/messages, generalized from internal/providers/anthropic/types.go's
// provider-side messagesRequest to carry the client's tool/content shape.
type anthropicMessagesRequest struct {
	Model       string              `json:"model"`
	Messages    []anthropicMessage  `json:"messages"`
	System      json.RawMessage     `json:"system,omitempty"` // string or []anthropicContentBlock
	MaxTokens   int                 `json:"max_tokens"`
	Stream      bool                `json:"stream,omitempty"`
	Temperature float64             `json:"temperature,omitempty"`
	TopP        float64             `json:"top_p,omitempty"`
	StopSequences []string          `json:"stop_sequences,omitempty"`
	Tools       []anthropicTool     `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"` // string or []anthropicContentBlock
}

type anthropicContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Source *anthropicImageSource `json:"source,omitempty"`

	ID    string          `json:"id,omitempty"`    // tool_use
	Name  string          `json:"name,omitempty"`  // tool_use
	Input json.RawMessage `json:"input,omitempty"` // tool_use

	ToolUseID string          `json:"tool_use_id,omitempty"` // tool_result
	Content2  json.RawMessage `json:"content,omitempty"`     // tool_result (shadows Content above on that variant)
	IsError   bool            `json:"is_error,omitempty"`

	Thinking string `json:"thinking,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicMessagesResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Role       string                  `json:"role"`
	Model      string                  `json:"model"`
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

type anthropicStreamEvent struct {
	Type         string                  `json:"type"`
	Index        int                     `json:"index,omitempty"`
	Delta        *anthropicStreamDelta   `json:"delta,omitempty"`
	ContentBlock *anthropicContentBlock  `json:"content_block,omitempty"`
	Message      *anthropicMessagesResponse `json:"message,omitempty"`
	Usage        *anthropicUsage         `json:"usage,omitempty"`
}

type anthropicStreamDelta struct {
	Type         string `json:"type"`
	Text         string `json:"text,omitempty"`
	PartialJSON  string `json:"partial_json,omitempty"`
	StopReason   string `json:"stop_reason,omitempty"`
}

// AnthropicMessages implements the request_out/response_out pair for the
// anthropic_messages protocol tag.
type AnthropicMessages struct{}

func (AnthropicMessages) Tag() uif.ProtocolTag { return uif.AnthropicMessages }

func (AnthropicMessages) RequestOut(body []byte) (uif.RequestUIF, error) {
	var req anthropicMessagesRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return uif.RequestUIF{}, gwerr.Wrap(gwerr.TransformError, "decode anthropic_messages request", err)
	}
	if req.Model == "" {
		return uif.RequestUIF{}, gwerr.New(gwerr.TransformError, "model is required")
	}

	out := uif.RequestUIF{
		Model:  req.Model,
		Stream: req.Stream,
		Sampling: uif.SamplingParams{
			Temperature:   req.Temperature,
			TopP:          req.TopP,
			MaxTokens:     req.MaxTokens,
			StopSequences: req.StopSequences,
		},
	}
	if len(req.System) > 0 {
		sys, err := decodeAnthropicText(req.System)
		if err != nil {
			return uif.RequestUIF{}, err
		}
		out.System = sys
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, uif.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			ParamsJSON:  string(t.InputSchema),
		})
	}
	for _, m := range req.Messages {
		parts, err := decodeAnthropicContentBlocks(m.Content)
		if err != nil {
			return uif.RequestUIF{}, err
		}
		role := uif.Role(m.Role)
		if role != uif.RoleUser && role != uif.RoleAssistant {
			role = uif.RoleUser
		}
		out.Messages = append(out.Messages, uif.Message{Role: role, Content: parts})
	}
	return out, nil
}

func decodeAnthropicText(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	parts, err := decodeAnthropicContentBlocks(raw)
	if err != nil {
		return "", err
	}
	var out string
	for _, p := range parts {
		if p.Kind == uif.PartText {
			out += p.Text
		}
	}
	return out, nil
}

func decodeAnthropicContentBlocks(raw json.RawMessage) ([]uif.ContentPart, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []uif.ContentPart{{Kind: uif.PartText, Text: s}}, nil
	}
	var blocks []anthropicContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, gwerr.Wrap(gwerr.TransformError, "decode anthropic_messages content blocks", err)
	}
	out := make([]uif.ContentPart, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case "text":
			out = append(out, uif.ContentPart{Kind: uif.PartText, Text: b.Text})
		case "image":
			ref := ""
			if b.Source != nil {
				ref = b.Source.Type + ":" + b.Source.MediaType + ":" + b.Source.Data
			}
			out = append(out, uif.ContentPart{Kind: uif.PartImage, ImageRef: ref})
		case "tool_use":
			out = append(out, uif.ContentPart{
				Kind:         uif.PartToolCall,
				ToolCallID:   b.ID,
				ToolName:     b.Name,
				ToolArgsJSON: string(b.Input),
			})
		case "tool_result":
			text, _ := decodeAnthropicText(b.Content2)
			out = append(out, uif.ContentPart{
				Kind:            uif.PartToolResult,
				ToolResultForID: b.ToolUseID,
				ToolResultJSON:  text,
				ToolResultError: b.IsError,
			})
		case "thinking":
			out = append(out, uif.ContentPart{Kind: uif.PartThinking, Thinking: b.Thinking})
		}
	}
	return out, nil
}

// ResponseOut renders a UIF response as a complete Anthropic Messages body.
func (AnthropicMessages) ResponseOut(r uif.ResponseUIF) ([]byte, error) {
	resp := anthropicMessagesResponse{
		ID:         r.ID,
		Type:       "message",
		Role:       string(uif.RoleAssistant),
		Model:      r.Model,
		Content:    encodeAnthropicBlocks(r.Content),
		StopReason: anthropicStopReason(r.FinishReason),
		Usage: anthropicUsage{
			InputTokens:  r.Usage.PromptTokens,
			OutputTokens: r.Usage.CompletionTokens,
		},
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.TransformError, "encode anthropic_messages response", err)
	}
	return body, nil
}

func encodeAnthropicBlocks(parts []uif.ContentPart) []anthropicContentBlock {
	out := make([]anthropicContentBlock, 0, len(parts))
	for _, p := range parts {
		switch p.Kind {
		case uif.PartText:
			out = append(out, anthropicContentBlock{Type: "text", Text: p.Text})
		case uif.PartToolCall:
			out = append(out, anthropicContentBlock{
				Type: "tool_use", ID: p.ToolCallID, Name: p.ToolName,
				Input: json.RawMessage(p.ToolArgsJSON),
			})
		case uif.PartThinking:
			out = append(out, anthropicContentBlock{Type: "thinking", Thinking: p.Thinking})
		}
	}
	return out
}

// ResponseOutChunk renders one streaming Delta as an Anthropic SSE "event:
// .../data: ..." pair. terminal emits the closing message_stop event.
func (AnthropicMessages) ResponseOutChunk(d uif.Delta, terminal bool) ([]byte, error) {
	if terminal {
		return encodeAnthropicEvent(anthropicStreamEvent{Type: "message_stop"})
	}
	if d.ContentPart != nil && d.ContentPart.Kind == uif.PartText {
		return encodeAnthropicEvent(anthropicStreamEvent{
			Type:  "content_block_delta",
			Delta: &anthropicStreamDelta{Type: "text_delta", Text: d.ContentPart.Text},
		})
	}
	if d.FinishReason != "" {
		return encodeAnthropicEvent(anthropicStreamEvent{
			Type:  "message_delta",
			Delta: &anthropicStreamDelta{StopReason: anthropicStopReason(d.FinishReason)},
		})
	}
	return encodeAnthropicEvent(anthropicStreamEvent{Type: "ping"})
}

func encodeAnthropicEvent(ev anthropicStreamEvent) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.TransformError, "encode anthropic_messages event", err)
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Type, body)), nil
}

func anthropicStopReason(f uif.FinishReason) string {
	switch f {
	case uif.FinishStop, "":
		return "end_turn"
	case uif.FinishLength:
		return "max_tokens"
	case uif.FinishToolCalls:
		return "tool_use"
	case uif.FinishContentFilter:
		return "stop_sequence"
	default:
		return "end_turn"
	}
}
