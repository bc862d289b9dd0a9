// Package transform implements the four-hook UIF transform pipeline (C5):
// request_out (client wire -> UIF), request_in (UIF -> provider call),
// response_in (provider response -> UIF), response_out (UIF -> client
// wire). Each client protocol gets its own file; provider.go holds the
// shared request_in/response_in adapter onto the existing provider
// backends.
package transform

import (
	"encoding/json"
	"fmt"

	"github.com/nulpointcorp/llm-gateway/internal/gwerr"
	"github.com/nulpointcorp/llm-gateway/internal/uif"
)

// openaiChatRequest mirrors the client-facing body of POST /v1/chat/completions
// and /v2/chat/completions, generalized from the teacher's inboundRequest to
// carry tool calls and multi-part content.
type openaiChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openaiChatMessage `json:"messages"`
	Stream      bool                `json:"stream,omitempty"`
	Temperature float64             `json:"temperature,omitempty"`
	TopP        float64             `json:"top_p,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Stop        []string            `json:"stop,omitempty"`
	Tools       []openaiTool        `json:"tools,omitempty"`
}

type openaiChatMessage struct {
	Role       string           `json:"role"`
	Content    json.RawMessage  `json:"content,omitempty"` // string or []openaiContentPart
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openaiImageURL `json:"image_url,omitempty"`
}

type openaiImageURL struct {
	URL string `json:"url"`
}

type openaiToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openaiToolCallFunc `json:"function"`
}

type openaiToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openaiTool struct {
	Type     string             `json:"type"`
	Function openaiToolFunction `json:"function"`
}

type openaiToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openaiChoice struct {
	Index        int               `json:"index"`
	Message      openaiChatMessage `json:"message,omitempty"`
	Delta        *openaiChatMessage `json:"delta,omitempty"`
	FinishReason *string           `json:"finish_reason"`
}

type openaiChatResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Usage   *openaiUsage   `json:"usage,omitempty"`
}

// OpenAIChat implements the request_out/response_out pair for the
// openai_chat protocol tag.
type OpenAIChat struct{}

func (OpenAIChat) Tag() uif.ProtocolTag { return uif.OpenAIChat }

// RequestOut parses a client-submitted OpenAI Chat Completions body into
// UIF.
func (OpenAIChat) RequestOut(body []byte) (uif.RequestUIF, error) {
	var req openaiChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return uif.RequestUIF{}, gwerr.Wrap(gwerr.TransformError, "decode openai_chat request", err)
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
			StopSequences: req.Stop,
		},
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, uif.ToolDefinition{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			ParamsJSON:  string(t.Function.Parameters),
		})
	}
	for _, m := range req.Messages {
		msg, isSystem, sysText, err := decodeOpenAIMessage(m)
		if err != nil {
			return uif.RequestUIF{}, err
		}
		if isSystem {
			if out.System != "" {
				out.System += "\n"
			}
			out.System += sysText
			continue
		}
		out.Messages = append(out.Messages, msg)
	}
	return out, nil
}

func decodeOpenAIMessage(m openaiChatMessage) (uif.Message, bool, string, error) {
	role := uif.Role(m.Role)
	if role == uif.RoleSystem || m.Role == "developer" {
		text, err := decodeOpenAIContentText(m.Content)
		if err != nil {
			return uif.Message{}, false, "", err
		}
		return uif.Message{}, true, text, nil
	}

	var parts []uif.ContentPart
	for _, tc := range m.ToolCalls {
		parts = append(parts, uif.ContentPart{
			Kind:         uif.PartToolCall,
			ToolCallID:   tc.ID,
			ToolName:     tc.Function.Name,
			ToolArgsJSON: tc.Function.Arguments,
		})
	}
	if m.ToolCallID != "" {
		text, _ := decodeOpenAIContentText(m.Content)
		parts = append(parts, uif.ContentPart{
			Kind:            uif.PartToolResult,
			ToolResultForID: m.ToolCallID,
			ToolResultJSON:  text,
		})
	} else if len(m.Content) > 0 {
		contentParts, err := decodeOpenAIContentParts(m.Content)
		if err != nil {
			return uif.Message{}, false, "", err
		}
		parts = append(parts, contentParts...)
	}

	if role == "" {
		role = uif.RoleUser
	}
	return uif.Message{Role: role, Content: parts}, false, "", nil
}

// decodeOpenAIContentText handles the common case where content is a bare
// JSON string.
func decodeOpenAIContentText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	parts, err := decodeOpenAIContentParts(raw)
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

// decodeOpenAIContentParts handles the multi-part array content shape.
func decodeOpenAIContentParts(raw json.RawMessage) ([]uif.ContentPart, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []uif.ContentPart{{Kind: uif.PartText, Text: s}}, nil
	}
	var arr []openaiContentPart
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, gwerr.Wrap(gwerr.TransformError, "decode openai_chat content parts", err)
	}
	out := make([]uif.ContentPart, 0, len(arr))
	for _, p := range arr {
		switch p.Type {
		case "text":
			out = append(out, uif.ContentPart{Kind: uif.PartText, Text: p.Text})
		case "image_url":
			ref := ""
			if p.ImageURL != nil {
				ref = p.ImageURL.URL
			}
			out = append(out, uif.ContentPart{Kind: uif.PartImage, ImageRef: ref})
		}
	}
	return out, nil
}

// ResponseOut renders a UIF response as a complete (non-streaming)
// OpenAI Chat Completions body.
func (OpenAIChat) ResponseOut(r uif.ResponseUIF) ([]byte, error) {
	msg := openaiChatMessage{Role: string(uif.RoleAssistant)}
	text, toolCalls := splitAssistantParts(r.Content)
	msg.Content, _ = json.Marshal(text)
	msg.ToolCalls = toolCalls

	finish := openaiFinishReason(r.FinishReason)
	resp := openaiChatResponse{
		ID:      r.ID,
		Object:  "chat.completion",
		Created: r.Timing.Start.Unix(),
		Model:   r.Model,
		Choices: []openaiChoice{{Index: 0, Message: msg, FinishReason: &finish}},
		Usage: &openaiUsage{
			PromptTokens:     r.Usage.PromptTokens,
			CompletionTokens: r.Usage.CompletionTokens,
			TotalTokens:      r.Usage.TotalTokens,
		},
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.TransformError, "encode openai_chat response", err)
	}
	return body, nil
}

// ResponseOutChunk renders one streaming Delta as an SSE "data: ..." line,
// including the terminal "[DONE]" sentinel when d is the terminal chunk.
func (OpenAIChat) ResponseOutChunk(id, model string, d uif.Delta, terminal bool) ([]byte, error) {
	if terminal {
		return []byte("data: [DONE]\n\n"), nil
	}
	delta := openaiChatMessage{}
	if d.ContentPart != nil {
		switch d.ContentPart.Kind {
		case uif.PartText:
			delta.Content, _ = json.Marshal(d.ContentPart.Text)
		case uif.PartToolCall:
			delta.ToolCalls = []openaiToolCall{{
				ID:   d.ContentPart.ToolCallID,
				Type: "function",
				Function: openaiToolCallFunc{
					Name:      d.ContentPart.ToolName,
					Arguments: d.ContentPart.ToolArgsJSON,
				},
			}}
		}
	}
	var finish *string
	if d.FinishReason != "" {
		f := openaiFinishReason(d.FinishReason)
		finish = &f
	}
	chunk := struct {
		ID      string         `json:"id"`
		Object  string         `json:"object"`
		Model   string         `json:"model"`
		Choices []openaiChoice `json:"choices"`
	}{
		ID:      id,
		Object:  "chat.completion.chunk",
		Model:   model,
		Choices: []openaiChoice{{Index: 0, Delta: &delta, FinishReason: finish}},
	}
	body, err := json.Marshal(chunk)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.TransformError, "encode openai_chat chunk", err)
	}
	return []byte(fmt.Sprintf("data: %s\n\n", body)), nil
}

func splitAssistantParts(parts []uif.ContentPart) (string, []openaiToolCall) {
	var text string
	var calls []openaiToolCall
	for _, p := range parts {
		switch p.Kind {
		case uif.PartText:
			text += p.Text
		case uif.PartToolCall:
			calls = append(calls, openaiToolCall{
				ID:   p.ToolCallID,
				Type: "function",
				Function: openaiToolCallFunc{
					Name:      p.ToolName,
					Arguments: p.ToolArgsJSON,
				},
			})
		case uif.PartThinking:
			// Dropped from the openai_chat body (Open Question (c)); still
			// present on r.Content for the observer to log.
		}
	}
	return text, calls
}

func openaiFinishReason(f uif.FinishReason) string {
	switch f {
	case uif.FinishStop, "":
		return "stop"
	case uif.FinishLength:
		return "length"
	case uif.FinishToolCalls:
		return "tool_calls"
	case uif.FinishContentFilter:
		return "content_filter"
	default:
		return "stop"
	}
}
