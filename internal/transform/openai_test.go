package transform

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/nulpointcorp/llm-gateway/internal/uif"
)

func TestOpenAIChatRequestOutBasic(t *testing.T) {
	body := []byte(`{
		"model": "gpt-4o",
		"stream": true,
		"temperature": 0.5,
		"messages": [
			{"role": "system", "content": "be terse"},
			{"role": "user", "content": "hi"}
		]
	}`)

	req, err := OpenAIChat{}.RequestOut(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Model != "gpt-4o" {
		t.Fatalf("expected model gpt-4o, got %q", req.Model)
	}
	if !req.Stream {
		t.Fatal("expected Stream true")
	}
	if req.System != "be terse" {
		t.Fatalf("expected system collapsed into System, got %q", req.System)
	}
	if len(req.Messages) != 1 {
		t.Fatalf("expected system message excluded from Messages, got %d", len(req.Messages))
	}
	if req.Messages[0].Role != uif.RoleUser {
		t.Fatalf("expected user role, got %q", req.Messages[0].Role)
	}
}

func TestOpenAIChatRequestOutMissingModelErrors(t *testing.T) {
	body := []byte(`{"messages":[{"role":"user","content":"hi"}]}`)
	if _, err := (OpenAIChat{}).RequestOut(body); err == nil {
		t.Fatal("expected error for missing model")
	}
}

func TestOpenAIChatRequestOutToolDefinitions(t *testing.T) {
	body := []byte(`{
		"model": "gpt-4o",
		"messages": [{"role":"user","content":"weather?"}],
		"tools": [{"type":"function","function":{"name":"get_weather","description":"gets weather","parameters":{"type":"object"}}}]
	}`)

	req, err := OpenAIChat{}.RequestOut(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.Tools) != 1 || req.Tools[0].Name != "get_weather" {
		t.Fatalf("expected one tool named get_weather, got %+v", req.Tools)
	}
}

func TestOpenAIChatRequestOutToolCallAndResult(t *testing.T) {
	body := []byte(`{
		"model": "gpt-4o",
		"messages": [
			{"role":"assistant","tool_calls":[{"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{\"city\":\"NYC\"}"}}]},
			{"role":"tool","tool_call_id":"call_1","content":"72F and sunny"}
		]
	}`)

	req, err := OpenAIChat{}.RequestOut(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(req.Messages))
	}

	assistantParts := req.Messages[0].Content
	if len(assistantParts) != 1 || assistantParts[0].Kind != uif.PartToolCall {
		t.Fatalf("expected one tool_call part, got %+v", assistantParts)
	}
	if assistantParts[0].ToolCallID != "call_1" || assistantParts[0].ToolName != "get_weather" {
		t.Fatalf("unexpected tool call part: %+v", assistantParts[0])
	}

	toolParts := req.Messages[1].Content
	if len(toolParts) != 1 || toolParts[0].Kind != uif.PartToolResult {
		t.Fatalf("expected one tool_result part, got %+v", toolParts)
	}
	if toolParts[0].ToolResultForID != "call_1" || toolParts[0].ToolResultJSON != "72F and sunny" {
		t.Fatalf("unexpected tool result part: %+v", toolParts[0])
	}
}

func TestOpenAIChatRequestOutMultipartContent(t *testing.T) {
	body := []byte(`{
		"model": "gpt-4o",
		"messages": [{"role":"user","content":[
			{"type":"text","text":"what's in this image?"},
			{"type":"image_url","image_url":{"url":"https://example.com/a.png"}}
		]}]
	}`)

	req, err := OpenAIChat{}.RequestOut(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parts := req.Messages[0].Content
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if parts[0].Kind != uif.PartText || parts[0].Text != "what's in this image?" {
		t.Fatalf("unexpected text part: %+v", parts[0])
	}
	if parts[1].Kind != uif.PartImage || parts[1].ImageRef != "https://example.com/a.png" {
		t.Fatalf("unexpected image part: %+v", parts[1])
	}
}

func TestOpenAIChatResponseOutRendersToolCallsAndUsage(t *testing.T) {
	r := uif.ResponseUIF{
		ID:    "resp_1",
		Model: "gpt-4o",
		Content: []uif.ContentPart{
			{Kind: uif.PartText, Text: "checking..."},
			{Kind: uif.PartToolCall, ToolCallID: "call_1", ToolName: "get_weather", ToolArgsJSON: `{"city":"NYC"}`},
		},
		FinishReason: uif.FinishToolCalls,
		Usage:        uif.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}

	body, err := (OpenAIChat{}).ResponseOut(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("expected valid JSON, got error: %v", err)
	}
	if decoded["id"] != "resp_1" {
		t.Fatalf("expected id resp_1, got %v", decoded["id"])
	}
	choices := decoded["choices"].([]any)
	msg := choices[0].(map[string]any)["message"].(map[string]any)
	calls := msg["tool_calls"].([]any)
	if len(calls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(calls))
	}
	if choices[0].(map[string]any)["finish_reason"] != "tool_calls" {
		t.Fatalf("expected finish_reason tool_calls, got %v", choices[0].(map[string]any)["finish_reason"])
	}
}

func TestOpenAIChatResponseOutChunkTerminalIsDoneSentinel(t *testing.T) {
	body, err := (OpenAIChat{}).ResponseOutChunk("resp_1", "gpt-4o", uif.Delta{}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "data: [DONE]\n\n" {
		t.Fatalf("expected [DONE] sentinel, got %q", body)
	}
}

func TestOpenAIChatResponseOutChunkTextDelta(t *testing.T) {
	d := uif.Delta{ContentPart: &uif.ContentPart{Kind: uif.PartText, Text: "hel"}}
	body, err := (OpenAIChat{}).ResponseOutChunk("resp_1", "gpt-4o", d, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(string(body), "data: ") {
		t.Fatalf("expected SSE-framed chunk, got %q", body)
	}
	if !strings.Contains(string(body), `"hel"`) {
		t.Fatalf("expected chunk to carry delta text, got %q", body)
	}
}
