package transform

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/nulpointcorp/llm-gateway/internal/uif"
)

func TestResponseAPIRequestOutStringInput(t *testing.T) {
	body := []byte(`{"model":"gpt-4o","instructions":"be terse","input":"hi there"}`)

	req, err := ResponseAPI{}.RequestOut(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.System != "be terse" {
		t.Fatalf("expected instructions collapsed into System, got %q", req.System)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != uif.RoleUser {
		t.Fatalf("unexpected messages: %+v", req.Messages)
	}
	if len(req.Messages[0].Content) != 1 || req.Messages[0].Content[0].Text != "hi there" {
		t.Fatalf("expected string input wrapped as input_text, got %+v", req.Messages[0].Content)
	}
}

func TestResponseAPIRequestOutMissingModelErrors(t *testing.T) {
	body := []byte(`{"input":"hi"}`)
	if _, err := (ResponseAPI{}).RequestOut(body); err == nil {
		t.Fatal("expected error for missing model")
	}
}

func TestResponseAPIRequestOutFunctionCallAndOutput(t *testing.T) {
	body := []byte(`{
		"model": "gpt-4o",
		"tools": [{"type":"function","name":"get_weather","description":"gets weather","parameters":{"type":"object"}}],
		"input": [
			{"type":"function_call","call_id":"call_1","name":"get_weather","arguments":"{\"city\":\"NYC\"}"},
			{"type":"function_call_output","call_id":"call_1","output":"72F and sunny"}
		]
	}`)

	req, err := ResponseAPI{}.RequestOut(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.Tools) != 1 || req.Tools[0].Name != "get_weather" {
		t.Fatalf("unexpected tools: %+v", req.Tools)
	}
	if len(req.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(req.Messages))
	}

	callParts := req.Messages[0].Content
	if len(callParts) != 1 || callParts[0].Kind != uif.PartToolCall || callParts[0].ToolCallID != "call_1" {
		t.Fatalf("unexpected function_call parts: %+v", callParts)
	}

	outputParts := req.Messages[1].Content
	if len(outputParts) != 1 || outputParts[0].Kind != uif.PartToolResult || outputParts[0].ToolResultForID != "call_1" {
		t.Fatalf("unexpected function_call_output parts: %+v", outputParts)
	}
}

func TestResponseAPIRequestOutMessageArrayInput(t *testing.T) {
	body := []byte(`{
		"model": "gpt-4o",
		"input": [{"type":"message","role":"user","content":[
			{"type":"input_text","text":"what is this"},
			{"type":"input_image","image_url":"https://example.com/a.png"}
		]}]
	}`)

	req, err := ResponseAPI{}.RequestOut(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parts := req.Messages[0].Content
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if parts[1].Kind != uif.PartImage || parts[1].ImageRef != "https://example.com/a.png" {
		t.Fatalf("unexpected image part: %+v", parts[1])
	}
}

func TestResponseAPIResponseOutRendersFunctionCallAndMessage(t *testing.T) {
	r := uif.ResponseUIF{
		ID:    "resp_1",
		Model: "gpt-4o",
		Content: []uif.ContentPart{
			{Kind: uif.PartText, Text: "checking..."},
			{Kind: uif.PartToolCall, ToolCallID: "call_1", ToolName: "get_weather", ToolArgsJSON: `{"city":"NYC"}`},
		},
		Usage: uif.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}

	body, err := (ResponseAPI{}).ResponseOut(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("expected valid JSON, got error: %v", err)
	}
	if decoded["status"] != "completed" {
		t.Fatalf("expected status completed, got %v", decoded["status"])
	}
	output := decoded["output"].([]any)
	if len(output) != 2 {
		t.Fatalf("expected message + function_call items, got %d", len(output))
	}
	fnCall := output[1].(map[string]any)
	if fnCall["type"] != "function_call" || fnCall["call_id"] != "call_1" {
		t.Fatalf("unexpected function_call item: %+v", fnCall)
	}
}

func TestResponseAPIResponseOutChunkTerminalIsCompletedEvent(t *testing.T) {
	r := uif.ResponseUIF{ID: "resp_1", Model: "gpt-4o"}
	body, err := (ResponseAPI{}).ResponseOutChunk(r, uif.Delta{}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(body), "response.completed") {
		t.Fatalf("expected response.completed event, got %q", body)
	}
}

func TestResponseAPIResponseOutChunkTextDelta(t *testing.T) {
	r := uif.ResponseUIF{ID: "resp_1", Model: "gpt-4o"}
	d := uif.Delta{ContentPart: &uif.ContentPart{Kind: uif.PartText, Text: "hi"}}
	body, err := (ResponseAPI{}).ResponseOutChunk(r, d, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(body), "response.output_text.delta") || !strings.Contains(string(body), "hi") {
		t.Fatalf("expected output_text.delta event carrying the text, got %q", body)
	}
}
