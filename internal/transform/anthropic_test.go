package transform

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/nulpointcorp/llm-gateway/internal/uif"
)

func TestAnthropicMessagesRequestOutBasic(t *testing.T) {
	body := []byte(`{
		"model": "claude-3-5-sonnet-20241022",
		"max_tokens": 1024,
		"system": "be terse",
		"messages": [{"role":"user","content":"hi"}]
	}`)

	req, err := AnthropicMessages{}.RequestOut(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.System != "be terse" {
		t.Fatalf("expected system prompt, got %q", req.System)
	}
	if req.Sampling.MaxTokens != 1024 {
		t.Fatalf("expected max_tokens 1024, got %d", req.Sampling.MaxTokens)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != uif.RoleUser {
		t.Fatalf("unexpected messages: %+v", req.Messages)
	}
}

func TestAnthropicMessagesRequestOutMissingModelErrors(t *testing.T) {
	body := []byte(`{"max_tokens":100,"messages":[{"role":"user","content":"hi"}]}`)
	if _, err := (AnthropicMessages{}).RequestOut(body); err == nil {
		t.Fatal("expected error for missing model")
	}
}

func TestAnthropicMessagesRequestOutToolUseAndResult(t *testing.T) {
	body := []byte(`{
		"model": "claude-3-5-sonnet-20241022",
		"max_tokens": 100,
		"tools": [{"name":"get_weather","description":"gets weather","input_schema":{"type":"object"}}],
		"messages": [
			{"role":"assistant","content":[{"type":"tool_use","id":"toolu_1","name":"get_weather","input":{"city":"NYC"}}]},
			{"role":"user","content":[{"type":"tool_result","tool_use_id":"toolu_1","content":"72F and sunny"}]}
		]
	}`)

	req, err := AnthropicMessages{}.RequestOut(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.Tools) != 1 || req.Tools[0].Name != "get_weather" {
		t.Fatalf("unexpected tools: %+v", req.Tools)
	}
	if len(req.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(req.Messages))
	}

	useParts := req.Messages[0].Content
	if len(useParts) != 1 || useParts[0].Kind != uif.PartToolCall || useParts[0].ToolCallID != "toolu_1" {
		t.Fatalf("unexpected tool_use parts: %+v", useParts)
	}

	resultParts := req.Messages[1].Content
	if len(resultParts) != 1 || resultParts[0].Kind != uif.PartToolResult || resultParts[0].ToolResultForID != "toolu_1" {
		t.Fatalf("unexpected tool_result parts: %+v", resultParts)
	}
	if resultParts[0].ToolResultJSON != "72F and sunny" {
		t.Fatalf("expected tool result content decoded, got %q", resultParts[0].ToolResultJSON)
	}
}

func TestAnthropicMessagesRequestOutImageBlock(t *testing.T) {
	body := []byte(`{
		"model": "claude-3-5-sonnet-20241022",
		"max_tokens": 100,
		"messages": [{"role":"user","content":[
			{"type":"text","text":"what is this"},
			{"type":"image","source":{"type":"base64","media_type":"image/png","data":"AAAA"}}
		]}]
	}`)

	req, err := AnthropicMessages{}.RequestOut(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parts := req.Messages[0].Content
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if parts[1].Kind != uif.PartImage || !strings.Contains(parts[1].ImageRef, "image/png") {
		t.Fatalf("unexpected image part: %+v", parts[1])
	}
}

func TestAnthropicMessagesResponseOutRendersToolUseBlock(t *testing.T) {
	r := uif.ResponseUIF{
		ID:    "msg_1",
		Model: "claude-3-5-sonnet-20241022",
		Content: []uif.ContentPart{
			{Kind: uif.PartText, Text: "checking..."},
			{Kind: uif.PartToolCall, ToolCallID: "toolu_1", ToolName: "get_weather", ToolArgsJSON: `{"city":"NYC"}`},
		},
		FinishReason: uif.FinishToolCalls,
		Usage:        uif.Usage{PromptTokens: 10, CompletionTokens: 5},
	}

	body, err := (AnthropicMessages{}).ResponseOut(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("expected valid JSON, got error: %v", err)
	}
	if decoded["stop_reason"] != "tool_use" {
		t.Fatalf("expected stop_reason tool_use, got %v", decoded["stop_reason"])
	}
	content := decoded["content"].([]any)
	if len(content) != 2 {
		t.Fatalf("expected 2 content blocks, got %d", len(content))
	}
	toolBlock := content[1].(map[string]any)
	if toolBlock["type"] != "tool_use" || toolBlock["id"] != "toolu_1" {
		t.Fatalf("unexpected tool_use block: %+v", toolBlock)
	}
}

func TestAnthropicMessagesResponseOutChunkTerminalIsMessageStop(t *testing.T) {
	body, err := (AnthropicMessages{}).ResponseOutChunk(uif.Delta{}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(body), "message_stop") {
		t.Fatalf("expected message_stop event, got %q", body)
	}
}

func TestAnthropicMessagesResponseOutChunkTextDelta(t *testing.T) {
	d := uif.Delta{ContentPart: &uif.ContentPart{Kind: uif.PartText, Text: "hi"}}
	body, err := (AnthropicMessages{}).ResponseOutChunk(d, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(body), "content_block_delta") || !strings.Contains(string(body), "text_delta") {
		t.Fatalf("expected content_block_delta/text_delta event, got %q", body)
	}
}
