// Package observer implements the observer sink (C8): a non-blocking
// fan-out of every completed request to metrics, the structured request
// log, an optional OpenTelemetry trace span, and an optional JSONL file
// sink. No leg of this fan-out may block or fail the request path — every
// method here is safe to call after the response has already been written.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nulpointcorp/llm-gateway/internal/logger"
	"github.com/nulpointcorp/llm-gateway/internal/metrics"
	"github.com/nulpointcorp/llm-gateway/internal/uif"
)

// Event is everything the observer needs to record about one completed
// (or failed) request.
type Event struct {
	RequestID      string
	Provider       string
	Model          string
	ClientProtocol uif.ProtocolTag
	ProviderProtocol uif.ProtocolTag
	Bypass         bool
	Cached         bool
	Status         int
	ErrorCategory  string
	InputTokens    int
	OutputTokens   int
	Latency        time.Duration
	TTFT           time.Duration
	StartedAt      time.Time
}

// Sink fans an Event out to every configured observation leg.
type Sink struct {
	metrics *metrics.Registry
	log     *logger.Logger
	slog    *slog.Logger

	tracer trace.Tracer // always non-nil; a no-op global tracer when unconfigured

	protocolCounter *protocolCounter

	fileMu sync.Mutex
	file   io.Writer // nil when no JSONL file sink is configured
}

// New builds a Sink. slogger is used as a fallback when a leg itself needs
// to log an internal problem (e.g. file write failure) without touching the
// client response.
func New(metricsReg *metrics.Registry, reqLogger *logger.Logger, slogger *slog.Logger, logPath string) (*Sink, error) {
	s := &Sink{
		metrics: metricsReg,
		log:     reqLogger,
		slog:    slogger,
		tracer:  otel.Tracer("llm-gateway/observer"),
	}
	if metricsReg != nil {
		s.protocolCounter = newProtocolCounter(metricsReg.PromRegistry())
	}
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("observer: open log_path: %w", err)
		}
		s.file = f
	}
	return s, nil
}

// StartSpan opens the optional tracing leg for one request. The returned
// span is ended by Observe; StartSpan never fails.
func (s *Sink) StartSpan(ctx context.Context, route string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, route, trace.WithAttributes(
		attribute.String("gateway.route", route),
	))
}

// Observe records ev across every configured leg. Safe to call with a nil
// span (e.g. in tests that don't start one).
func (s *Sink) Observe(ev Event, span trace.Span) {
	s.recordMetrics(ev)
	s.recordLog(ev)
	s.recordSpan(ev, span)
	s.recordFile(ev)
}

func (s *Sink) recordMetrics(ev Event) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordRequest(ev.Provider, ev.Status, ev.Latency.Milliseconds())
	s.metrics.AddTokens(ev.Provider, string(ev.ClientProtocol), ev.InputTokens, ev.OutputTokens, ev.Cached)
	if ev.ErrorCategory != "" {
		s.metrics.RecordError(ev.Provider, ev.ErrorCategory)
	}
	if s.protocolCounter != nil {
		s.protocolCounter.inc(ev.ClientProtocol, ev.ProviderProtocol, ev.Bypass)
	}
}

func (s *Sink) recordLog(ev Event) {
	if s.log == nil {
		return
	}
	id, err := uuid.Parse(ev.RequestID)
	if err != nil {
		id = uuid.New()
	}
	s.log.Log(logger.RequestLog{
		ID:           id,
		Provider:     ev.Provider,
		Model:        ev.Model,
		InputTokens:  uint32(ev.InputTokens),
		OutputTokens: uint32(ev.OutputTokens),
		LatencyMs:    clampUint16(ev.Latency.Milliseconds()),
		Status:       uint16(ev.Status),
		Cached:       ev.Cached,
		CreatedAt:    ev.StartedAt,
	})
}

func (s *Sink) recordSpan(ev Event, span trace.Span) {
	if span == nil {
		return
	}
	defer span.End()
	span.SetAttributes(
		attribute.String("gateway.provider", ev.Provider),
		attribute.String("gateway.model", ev.Model),
		attribute.String("gateway.client_protocol", string(ev.ClientProtocol)),
		attribute.String("gateway.provider_protocol", string(ev.ProviderProtocol)),
		attribute.Bool("gateway.bypass", ev.Bypass),
		attribute.Bool("gateway.cached", ev.Cached),
		attribute.Int("gateway.status", ev.Status),
		attribute.Int("gateway.input_tokens", ev.InputTokens),
		attribute.Int("gateway.output_tokens", ev.OutputTokens),
		attribute.Int64("gateway.ttft_ms", ev.TTFT.Milliseconds()),
	)
	if ev.ErrorCategory != "" {
		span.SetStatus(codes.Error, ev.ErrorCategory)
	}
}

func (s *Sink) recordFile(ev Event) {
	if s.file == nil {
		return
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	if _, err := s.file.Write(append(line, '\n')); err != nil && s.slog != nil {
		s.slog.Warn("observer: file sink write failed", slog.String("error", err.Error()))
	}
}

func clampUint16(ms int64) uint16 {
	if ms < 0 {
		return 0
	}
	if ms > 65535 {
		return 65535
	}
	return uint16(ms)
}
