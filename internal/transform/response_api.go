package transform

import (
	"encoding/json"
	"fmt"

	"github.com/nulpointcorp/llm-gateway/internal/gwerr"
	"github.com/nulpointcorp/llm-gateway/internal/uif"
)

// responseAPIRequest mirrors the client-facing body of POST /v2/responses.
// No teacher precedent exists for this protocol (it post-dates the
// teacher's feature set); built in the same struct-per-hook idiom as
// openai.go/anthropic.go.
type responseAPIRequest struct {
	Model       string              `json:"model"`
	Input       json.RawMessage     `json:"input"` // string or []responseAPIItem
	Instructions string             `json:"instructions,omitempty"`
	Stream      bool                `json:"stream,omitempty"`
	Temperature float64             `json:"temperature,omitempty"`
	TopP        float64             `json:"top_p,omitempty"`
	MaxOutputTokens int             `json:"max_output_tokens,omitempty"`
	Tools       []responseAPITool   `json:"tools,omitempty"`
}

type responseAPIItem struct {
	Type    string                  `json:"type"` // "message" | "function_call" | "function_call_output"
	Role    string                  `json:"role,omitempty"`
	Content []responseAPIContent    `json:"content,omitempty"`

	CallID string          `json:"call_id,omitempty"`
	Name   string          `json:"name,omitempty"`
	Arguments string       `json:"arguments,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
}

type responseAPIContent struct {
	Type     string `json:"type"` // "input_text" | "output_text" | "input_image" | "reasoning"
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type responseAPITool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type responseAPIUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type responseAPIResponse struct {
	ID     string             `json:"id"`
	Object string             `json:"object"`
	Model  string             `json:"model"`
	Status string             `json:"status"`
	Output []responseAPIItem  `json:"output"`
	Usage  responseAPIUsage   `json:"usage"`
}

type responseAPIEvent struct {
	Type     string               `json:"type"`
	Delta    string               `json:"delta,omitempty"`
	Response *responseAPIResponse `json:"response,omitempty"`
}

// ResponseAPI implements the request_out/response_out pair for the
// response_api protocol tag.
type ResponseAPI struct{}

func (ResponseAPI) Tag() uif.ProtocolTag { return uif.ResponseAPI }

func (ResponseAPI) RequestOut(body []byte) (uif.RequestUIF, error) {
	var req responseAPIRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return uif.RequestUIF{}, gwerr.Wrap(gwerr.TransformError, "decode response_api request", err)
	}
	if req.Model == "" {
		return uif.RequestUIF{}, gwerr.New(gwerr.TransformError, "model is required")
	}

	out := uif.RequestUIF{
		Model:  req.Model,
		System: req.Instructions,
		Stream: req.Stream,
		Sampling: uif.SamplingParams{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			MaxTokens:   req.MaxOutputTokens,
		},
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, uif.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			ParamsJSON:  string(t.Parameters),
		})
	}

	items, err := decodeResponseAPIInput(req.Input)
	if err != nil {
		return uif.RequestUIF{}, err
	}
	for _, item := range items {
		msg, err := decodeResponseAPIItem(item)
		if err != nil {
			return uif.RequestUIF{}, err
		}
		out.Messages = append(out.Messages, msg)
	}
	return out, nil
}

func decodeResponseAPIInput(raw json.RawMessage) ([]responseAPIItem, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []responseAPIItem{{
			Type: "message", Role: "user",
			Content: []responseAPIContent{{Type: "input_text", Text: s}},
		}}, nil
	}
	var items []responseAPIItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, gwerr.Wrap(gwerr.TransformError, "decode response_api input", err)
	}
	return items, nil
}

func decodeResponseAPIItem(item responseAPIItem) (uif.Message, error) {
	switch item.Type {
	case "function_call":
		return uif.Message{
			Role: uif.RoleAssistant,
			Content: []uif.ContentPart{{
				Kind: uif.PartToolCall, ToolCallID: item.CallID,
				ToolName: item.Name, ToolArgsJSON: item.Arguments,
			}},
		}, nil
	case "function_call_output":
		return uif.Message{
			Role: uif.RoleTool,
			Content: []uif.ContentPart{{
				Kind: uif.PartToolResult, ToolResultForID: item.CallID,
				ToolResultJSON: string(item.Output),
			}},
		}, nil
	default: // "message"
		role := uif.Role(item.Role)
		if role == "" {
			role = uif.RoleUser
		}
		parts := make([]uif.ContentPart, 0, len(item.Content))
		for _, c := range item.Content {
			switch c.Type {
			case "input_text", "output_text":
				parts = append(parts, uif.ContentPart{Kind: uif.PartText, Text: c.Text})
			case "input_image":
				parts = append(parts, uif.ContentPart{Kind: uif.PartImage, ImageRef: c.ImageURL})
			case "reasoning":
				parts = append(parts, uif.ContentPart{Kind: uif.PartThinking, Thinking: c.Text})
			}
		}
		return uif.Message{Role: role, Content: parts}, nil
	}
}

// ResponseOut renders a UIF response as a complete Response API body.
func (ResponseAPI) ResponseOut(r uif.ResponseUIF) ([]byte, error) {
	resp := responseAPIResponse{
		ID:     r.ID,
		Object: "response",
		Model:  r.Model,
		Status: "completed",
		Output: encodeResponseAPIOutput(r.Content),
		Usage: responseAPIUsage{
			InputTokens:  r.Usage.PromptTokens,
			OutputTokens: r.Usage.CompletionTokens,
			TotalTokens:  r.Usage.TotalTokens,
		},
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.TransformError, "encode response_api response", err)
	}
	return body, nil
}

func encodeResponseAPIOutput(parts []uif.ContentPart) []responseAPIItem {
	var content []responseAPIContent
	var items []responseAPIItem
	for _, p := range parts {
		switch p.Kind {
		case uif.PartText:
			content = append(content, responseAPIContent{Type: "output_text", Text: p.Text})
		case uif.PartToolCall:
			items = append(items, responseAPIItem{
				Type: "function_call", CallID: p.ToolCallID,
				Name: p.ToolName, Arguments: p.ToolArgsJSON,
			})
		case uif.PartThinking:
			content = append(content, responseAPIContent{Type: "reasoning", Text: p.Thinking})
		}
	}
	out := make([]responseAPIItem, 0, len(items)+1)
	if len(content) > 0 {
		out = append(out, responseAPIItem{Type: "message", Role: string(uif.RoleAssistant), Content: content})
	}
	out = append(out, items...)
	return out
}

// ResponseOutChunk renders one streaming Delta as a response_api SSE event.
// The terminal event is response.completed per spec §4.5.
func (ResponseAPI) ResponseOutChunk(r uif.ResponseUIF, d uif.Delta, terminal bool) ([]byte, error) {
	if terminal {
		full, err := ResponseAPI{}.ResponseOut(r)
		if err != nil {
			return nil, err
		}
		var resp responseAPIResponse
		if err := json.Unmarshal(full, &resp); err != nil {
			return nil, gwerr.Wrap(gwerr.TransformError, "re-decode response_api terminal body", err)
		}
		return encodeResponseAPIEvent(responseAPIEvent{Type: "response.completed", Response: &resp})
	}
	if d.ContentPart != nil && d.ContentPart.Kind == uif.PartText {
		return encodeResponseAPIEvent(responseAPIEvent{Type: "response.output_text.delta", Delta: d.ContentPart.Text})
	}
	return encodeResponseAPIEvent(responseAPIEvent{Type: "response.in_progress"})
}

func encodeResponseAPIEvent(ev responseAPIEvent) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.TransformError, "encode response_api event", err)
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Type, body)), nil
}
