package proxy

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/llm-gateway/internal/config"
	"github.com/nulpointcorp/llm-gateway/internal/gwerr"
)

func TestRequestIDFromReadsUserValue(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	ctx.SetUserValue("request_id", "req-123")
	if got := requestIDFrom(ctx); got != "req-123" {
		t.Errorf("requestIDFrom() = %q, want %q", got, "req-123")
	}
}

func TestRequestIDFromMissingReturnsEmpty(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	if got := requestIDFrom(ctx); got != "" {
		t.Errorf("requestIDFrom() = %q, want empty", got)
	}
}

func TestAsGwerrPassesThroughExistingKind(t *testing.T) {
	orig := gwerr.New(gwerr.RateLimited, "too fast")
	got := asGwerr(orig)
	if got != orig {
		t.Error("expected asGwerr to return the same *gwerr.Error unchanged")
	}
}

func TestAsGwerrWrapsForeignError(t *testing.T) {
	got := asGwerr(errors.New("boom"))
	if got.Kind != gwerr.InternalError {
		t.Errorf("expected InternalError kind, got %s", got.Kind)
	}
	if got.Cause == nil {
		t.Error("expected the original error to be preserved as Cause")
	}
}

func TestHandleListModelsDeduplicatesAcrossProviders(t *testing.T) {
	now := time.Now()
	snap := config.NewSnapshot(1, now, []*config.Provider{
		{
			Key: "openai-primary", IsEnabled: true,
			ModelMapping: []config.ModelMapping{
				{ClientModel: "gpt-4o", ProviderModel: "gpt-4o"},
			},
		},
		{
			Key: "openai-backup", IsEnabled: true,
			ModelMapping: []config.ModelMapping{
				{ClientModel: "gpt-4o", ProviderModel: "gpt-4o"},
				{ClientModel: "*", ProviderModel: "*"},
			},
		},
		{
			Key: "disabled-provider", IsEnabled: false,
			ModelMapping: []config.ModelMapping{
				{ClientModel: "should-not-appear", ProviderModel: "x"},
			},
		},
	}, nil)

	c := &Core{store: config.NewStore(snap)}

	ctx := &fasthttp.RequestCtx{}
	c.HandleListModels(ctx)

	body := string(ctx.Response.Body())
	if strings.Count(body, `"gpt-4o"`) != 1 {
		t.Errorf("expected gpt-4o to appear exactly once, body: %s", body)
	}
	if strings.Contains(body, "should-not-appear") {
		t.Errorf("expected disabled provider's model to be excluded, body: %s", body)
	}
	if strings.Contains(body, `"*"`) {
		t.Errorf("expected wildcard mapping to be excluded from the list, body: %s", body)
	}
}
