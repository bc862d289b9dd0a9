package transform

import (
	"strings"
	"testing"

	"github.com/nulpointcorp/llm-gateway/internal/providers"
	"github.com/nulpointcorp/llm-gateway/internal/uif"
)

func TestToProviderRequestCarriesToolsThrough(t *testing.T) {
	req := uif.RequestUIF{
		Model: "gpt-4o",
		Tools: []uif.ToolDefinition{
			{Name: "get_weather", Description: "gets weather", ParamsJSON: `{"type":"object"}`},
		},
	}

	out := ToProviderRequest(req, "ws1", "key1", "sk-abc", "req-1")

	if len(out.Tools) != 1 {
		t.Fatalf("expected 1 tool carried through, got %d", len(out.Tools))
	}
	if out.Tools[0].Name != "get_weather" || out.Tools[0].ParamsJSON != `{"type":"object"}` {
		t.Fatalf("unexpected tool definition: %+v", out.Tools[0])
	}
}

func TestToProviderRequestPrependsSystemMessage(t *testing.T) {
	req := uif.RequestUIF{Model: "gpt-4o", System: "be terse"}
	out := ToProviderRequest(req, "", "", "", "")

	if len(out.Messages) != 1 || out.Messages[0].Role != "system" || out.Messages[0].Content != "be terse" {
		t.Fatalf("expected a single system message, got %+v", out.Messages)
	}
}

func TestToProviderRequestAssistantToolCallMessage(t *testing.T) {
	req := uif.RequestUIF{
		Model: "gpt-4o",
		Messages: []uif.Message{
			{
				Role: uif.RoleAssistant,
				Content: []uif.ContentPart{
					{Kind: uif.PartText, Text: "let me check"},
					{Kind: uif.PartToolCall, ToolCallID: "call_1", ToolName: "get_weather", ToolArgsJSON: `{"city":"NYC"}`},
				},
			},
		},
	}

	out := ToProviderRequest(req, "", "", "", "")
	if len(out.Messages) != 1 {
		t.Fatalf("expected 1 provider message, got %d", len(out.Messages))
	}
	m := out.Messages[0]
	if m.Content != "let me check" {
		t.Fatalf("expected text content preserved, got %q", m.Content)
	}
	if len(m.ToolCalls) != 1 || m.ToolCalls[0].ID != "call_1" || m.ToolCalls[0].Name != "get_weather" {
		t.Fatalf("unexpected tool calls: %+v", m.ToolCalls)
	}
}

func TestToProviderRequestToolResultBecomesOwnMessage(t *testing.T) {
	req := uif.RequestUIF{
		Model: "gpt-4o",
		Messages: []uif.Message{
			{
				Role: uif.RoleTool,
				Content: []uif.ContentPart{
					{Kind: uif.PartToolResult, ToolResultForID: "call_1", ToolResultJSON: "72F and sunny"},
				},
			},
		},
	}

	out := ToProviderRequest(req, "", "", "", "")
	if len(out.Messages) != 1 {
		t.Fatalf("expected 1 provider message, got %d", len(out.Messages))
	}
	m := out.Messages[0]
	if m.Role != "tool" || m.ToolCallID != "call_1" || m.Content != "72F and sunny" {
		t.Fatalf("unexpected tool result message: %+v", m)
	}
}

func TestToProviderRequestFlattensImageAndDropsThinking(t *testing.T) {
	req := uif.RequestUIF{
		Model: "gpt-4o",
		Messages: []uif.Message{
			{
				Role: uif.RoleUser,
				Content: []uif.ContentPart{
					{Kind: uif.PartText, Text: "look at this"},
					{Kind: uif.PartImage, ImageRef: "https://example.com/a.png"},
					{Kind: uif.PartThinking, Thinking: "internal reasoning"},
				},
			},
		},
	}

	out := ToProviderRequest(req, "", "", "", "")
	content := out.Messages[0].Content
	if content == "" {
		t.Fatal("expected non-empty flattened content")
	}
	if !strings.Contains(content, "look at this") || !strings.Contains(content, "https://example.com/a.png") {
		t.Fatalf("expected text and image reference in flattened content, got %q", content)
	}
	if strings.Contains(content, "internal reasoning") {
		t.Fatalf("expected thinking content dropped from provider-bound text, got %q", content)
	}
}

func TestFromProviderResponseExtractsToolCalls(t *testing.T) {
	resp := &providers.ProxyResponse{
		ID:      "resp_1",
		Model:   "gpt-4o",
		Content: "",
		ToolCalls: []providers.ToolCall{
			{ID: "call_1", Name: "get_weather", ArgsJSON: `{"city":"NYC"}`},
		},
		Usage: providers.Usage{InputTokens: 10, OutputTokens: 5},
	}

	out := FromProviderResponse(resp, uif.FinishStop)

	if out.FinishReason != uif.FinishToolCalls {
		t.Fatalf("expected finish reason overridden to tool_calls, got %q", out.FinishReason)
	}
	if len(out.Content) != 1 || out.Content[0].Kind != uif.PartToolCall {
		t.Fatalf("expected one tool_call content part, got %+v", out.Content)
	}
	if out.Content[0].ToolCallID != "call_1" {
		t.Fatalf("expected tool call id round-tripped, got %q", out.Content[0].ToolCallID)
	}
	if out.Usage.TotalTokens != 15 {
		t.Fatalf("expected total tokens summed, got %d", out.Usage.TotalTokens)
	}
}

func TestFromStreamChunkToolCallSetsFinishReason(t *testing.T) {
	chunk := providers.StreamChunk{
		ToolCall: &providers.ToolCall{ID: "call_1", Name: "get_weather", ArgsJSON: `{"city":"NYC"}`},
	}

	d := FromStreamChunk(chunk)
	if d.ContentPart == nil || d.ContentPart.Kind != uif.PartToolCall {
		t.Fatalf("expected a tool_call content part, got %+v", d.ContentPart)
	}
	if d.FinishReason != uif.FinishToolCalls {
		t.Fatalf("expected finish reason tool_calls, got %q", d.FinishReason)
	}
}

func TestFromStreamChunkTextDelta(t *testing.T) {
	chunk := providers.StreamChunk{Content: "hi", FinishReason: "stop"}
	d := FromStreamChunk(chunk)

	if d.ContentPart == nil || d.ContentPart.Kind != uif.PartText || d.ContentPart.Text != "hi" {
		t.Fatalf("unexpected content part: %+v", d.ContentPart)
	}
	if d.FinishReason != uif.FinishStop {
		t.Fatalf("expected finish reason stop, got %q", d.FinishReason)
	}
}
