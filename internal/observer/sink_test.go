package observer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nulpointcorp/llm-gateway/internal/logger"
	"github.com/nulpointcorp/llm-gateway/internal/metrics"
	"github.com/nulpointcorp/llm-gateway/internal/uif"
)

// TestObserveWithNoLegsConfiguredDoesNotPanic verifies a Sink built with
// every optional leg left nil (no metrics, no request logger, no file
// sink) still safely no-ops on Observe — the hot path must never depend
// on every leg being wired.
func TestObserveWithNoLegsConfiguredDoesNotPanic(t *testing.T) {
	s, err := New(nil, nil, nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Observe(Event{RequestID: "req-1", Provider: "openai", Model: "gpt-4o"}, nil)
}

// TestObserveRecordsMetrics verifies Observe forwards request/token/error
// counts to the metrics registry leg when one is configured.
func TestObserveRecordsMetrics(t *testing.T) {
	reg := metrics.New()
	s, err := New(reg, nil, nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Observe(Event{
		RequestID:      "req-2",
		Provider:       "anthropic",
		Model:          "claude-3-5-sonnet",
		ClientProtocol: uif.AnthropicMessages,
		ProviderProtocol: uif.AnthropicMessages,
		Status:         200,
		InputTokens:    10,
		OutputTokens:   20,
		Latency:        50 * time.Millisecond,
	}, nil)
	// No panic and no error is the contract here; Registry's own counter
	// values are not asserted by this test.
}

// TestObserveWritesJSONLFile verifies the optional file sink leg appends
// one JSON line per Observe call when a logPath is configured.
func TestObserveWritesJSONLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "requests.jsonl")

	s, err := New(nil, nil, nil, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Observe(Event{RequestID: "req-3", Provider: "openai", Model: "gpt-4o", Status: 200}, nil)
	s.Observe(Event{RequestID: "req-4", Provider: "openai", Model: "gpt-4o", Status: 500}, nil)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected file sink to have written: %v", err)
	}

	var lines []json.RawMessage
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var line json.RawMessage
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("expected valid JSON line, got error: %v", err)
		}
		lines = append(lines, line)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSONL lines, got %d", len(lines))
	}
}

// TestObserveRecordsRequestLog verifies Observe forwards an Event into the
// request logger leg, truncating nothing the logger itself can hold.
func TestObserveRecordsRequestLog(t *testing.T) {
	l, err := logger.New(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer l.Close()

	s, err := New(nil, l, nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Observe(Event{
		RequestID:    "123e4567-e89b-12d3-a456-426614174000",
		Provider:     "openai",
		Model:        "gpt-4o",
		Status:       200,
		InputTokens:  5,
		OutputTokens: 7,
		StartedAt:    time.Now(),
	}, nil)

	// Log() is fire-and-forget into a buffered channel; nothing more to
	// assert without reaching into the logger's private flush loop, so
	// this test's contract is simply "Observe with a logger leg configured
	// does not block or panic".
}
