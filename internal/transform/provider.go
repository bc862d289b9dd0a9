package transform

import (
	"encoding/json"
	"strings"

	"github.com/nulpointcorp/llm-gateway/internal/providers"
	"github.com/nulpointcorp/llm-gateway/internal/uif"
)

// ToProviderRequest implements request_in: UIF -> the wire shape the
// existing provider backends (internal/providers/*) speak. req.Tools
// carries straight through as ProxyRequest.Tools (spec §4.5 "transformers
// must preserve tool definitions"). Per message, a PartToolCall/PartToolResult
// content part becomes a structured Message.ToolCalls/ToolCallID entry
// instead of opaque text, so a tool-using request actually round-trips
// through a provider backend's native tool fields; any accompanying text
// parts still flatten onto Message.Content. Images are referenced by URL
// and thinking blocks are dropped (they never leave the gateway as
// provider input; see DESIGN.md Open Question (c)). The full ContentPart
// list survives on the RequestUIF handed to the observer regardless.
func ToProviderRequest(req uif.RequestUIF, workspaceID, apiKeyID, apiKey, requestID string) *providers.ProxyRequest {
	out := &providers.ProxyRequest{
		Model:       req.Model,
		Stream:      req.Stream,
		Temperature: req.Sampling.Temperature,
		MaxTokens:   req.Sampling.MaxTokens,
		Tools:       toProviderTools(req.Tools),
		WorkspaceID: workspaceID,
		APIKey:      apiKey,
		APIKeyID:    apiKeyID,
		RequestID:   requestID,
	}
	if req.System != "" {
		out.Messages = append(out.Messages, providers.Message{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, toProviderMessage(m)...)
	}
	return out
}

func toProviderTools(defs []uif.ToolDefinition) []providers.ToolDefinition {
	if len(defs) == 0 {
		return nil
	}
	out := make([]providers.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = providers.ToolDefinition{Name: d.Name, Description: d.Description, ParamsJSON: d.ParamsJSON}
	}
	return out
}

// toProviderMessage turns one UIF message into one or more provider
// messages. An assistant message with tool calls carries them on a single
// Message.ToolCalls alongside any text content; a tool-result message
// becomes its own tool-role Message per result so ToolCallID stays 1:1
// with the call it answers (the shape every provider wire format expects).
func toProviderMessage(m uif.Message) []providers.Message {
	var toolCalls []providers.ToolCall
	var textParts []uif.ContentPart
	var results []providers.Message

	for _, p := range m.Content {
		switch p.Kind {
		case uif.PartToolCall:
			toolCalls = append(toolCalls, providers.ToolCall{ID: p.ToolCallID, Name: p.ToolName, ArgsJSON: p.ToolArgsJSON})
		case uif.PartToolResult:
			results = append(results, providers.Message{
				Role:            "tool",
				Content:         p.ToolResultJSON,
				ToolCallID:      p.ToolResultForID,
				ToolResultError: p.ToolResultError,
			})
		default:
			textParts = append(textParts, p)
		}
	}

	if len(results) > 0 {
		return results
	}

	out := providers.Message{
		Role:      string(m.Role),
		Content:   flattenContentParts(textParts),
		ToolCalls: toolCalls,
	}
	return []providers.Message{out}
}

// flattenContentParts renders a non-tool ContentPart slice down to the flat
// text a provider backend's Message.Content field carries.
func flattenContentParts(parts []uif.ContentPart) string {
	var sb strings.Builder
	for i, p := range parts {
		if i > 0 {
			sb.WriteByte('\n')
		}
		switch p.Kind {
		case uif.PartText:
			sb.WriteString(p.Text)
		case uif.PartImage:
			sb.WriteString("[image: " + p.ImageRef + "]")
		case uif.PartThinking:
			// dropped from provider-bound text
		}
	}
	return sb.String()
}

// FromProviderResponse implements response_in for the non-streaming case:
// the provider's ProxyResponse becomes a ResponseUIF whose content carries
// a text part (if any) plus one PartToolCall per resp.ToolCalls entry,
// round-tripping the provider's tool call ids unchanged.
func FromProviderResponse(resp *providers.ProxyResponse, finish uif.FinishReason) uif.ResponseUIF {
	var content []uif.ContentPart
	if resp.Content != "" {
		content = append(content, uif.ContentPart{Kind: uif.PartText, Text: resp.Content})
	}
	for _, tc := range resp.ToolCalls {
		content = append(content, uif.ContentPart{
			Kind:         uif.PartToolCall,
			ToolCallID:   tc.ID,
			ToolName:     tc.Name,
			ToolArgsJSON: tc.ArgsJSON,
		})
		finish = uif.FinishToolCalls
	}
	return uif.ResponseUIF{
		ID:           resp.ID,
		Model:        resp.Model,
		FinishReason: finish,
		Content:      content,
		Usage: uif.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
}

// FromStreamChunk implements response_in for one streaming chunk.
func FromStreamChunk(chunk providers.StreamChunk) uif.Delta {
	var finish uif.FinishReason
	switch chunk.FinishReason {
	case "":
		finish = uif.FinishUnspecified
	case "stop":
		finish = uif.FinishStop
	case "length":
		finish = uif.FinishLength
	case "tool_calls":
		finish = uif.FinishToolCalls
	case "content_filter":
		finish = uif.FinishContentFilter
	default:
		finish = uif.FinishStop
	}
	d := uif.Delta{FinishReason: finish}
	switch {
	case chunk.ToolCall != nil:
		d.ContentPart = &uif.ContentPart{
			Kind:         uif.PartToolCall,
			ToolCallID:   chunk.ToolCall.ID,
			ToolName:     chunk.ToolCall.Name,
			ToolArgsJSON: chunk.ToolCall.ArgsJSON,
		}
		d.FinishReason = uif.FinishToolCalls
	case chunk.Content != "":
		d.ContentPart = &uif.ContentPart{Kind: uif.PartText, Text: chunk.Content}
	}
	return d
}

// embeddingRequestJSON mirrors the shape of POST /v1/embeddings' body —
// kept here rather than in its own file since it is a single flat
// pass-through with no protocol variance (embeddings have no
// cross-protocol surface in this spec).
type embeddingRequestJSON struct {
	Input json.RawMessage `json:"input"`
	Model string          `json:"model"`
}
