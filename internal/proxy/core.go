// core.go wires C2 through C9 into the cross-protocol request path (the
// /v2/* routes): authenticate, authorize the model, rate limit, resolve,
// select, dispatch (raw bypass or the full UIF pipeline), stream or return
// the response, and observe. Core also serves GET /v1/models; the legacy
// single-protocol Gateway in gateway.go serves the other /v1/* routes.
package proxy

import (
	"bufio"
	"context"
	"strconv"
	"time"

	"github.com/fasthttp/router"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/llm-gateway/internal/auth"
	"github.com/nulpointcorp/llm-gateway/internal/config"
	"github.com/nulpointcorp/llm-gateway/internal/gwerr"
	"github.com/nulpointcorp/llm-gateway/internal/observer"
	"github.com/nulpointcorp/llm-gateway/internal/providers"
	"github.com/nulpointcorp/llm-gateway/internal/pump"
	"github.com/nulpointcorp/llm-gateway/internal/ratelimit"
	"github.com/nulpointcorp/llm-gateway/internal/resolver"
	"github.com/nulpointcorp/llm-gateway/internal/selector"
	"github.com/nulpointcorp/llm-gateway/internal/transform"
	"github.com/nulpointcorp/llm-gateway/internal/uif"
	"github.com/nulpointcorp/llm-gateway/internal/upstream"
	"github.com/nulpointcorp/llm-gateway/pkg/apierr"
)

// CoreOptions configures a Core at construction time.
type CoreOptions struct {
	RequestTimeout time.Duration // bounds the whole request (C6/C7). Default 30s.
	TTFTTimeout    time.Duration // bounds the wait for the first upstream byte. Default 10s.
}

// Core dispatches the openai_chat, anthropic_messages, and response_api
// wire protocols onto the shared provider pool through the full C2→C9
// pipeline. One Core is built per process and is safe for concurrent use
// by every request goroutine fasthttp hands it.
type Core struct {
	store    *config.Store
	auth     *auth.Authenticator
	resolver *resolver.Resolver
	selector *selector.Weighted
	limiter  *ratelimit.Limiter
	upstream *upstream.Client
	pipeline *transform.Pipeline
	observer *observer.Sink

	requestTimeout time.Duration
	ttftTimeout    time.Duration
}

func NewCore(
	store *config.Store,
	authenticator *auth.Authenticator,
	res *resolver.Resolver,
	sel *selector.Weighted,
	limiter *ratelimit.Limiter,
	upstreamClient *upstream.Client,
	pipeline *transform.Pipeline,
	sink *observer.Sink,
	opts CoreOptions,
) *Core {
	reqTimeout := opts.RequestTimeout
	if reqTimeout <= 0 {
		reqTimeout = 30 * time.Second
	}
	ttft := opts.TTFTTimeout
	if ttft <= 0 {
		ttft = 10 * time.Second
	}
	return &Core{
		store:          store,
		auth:           authenticator,
		resolver:       res,
		selector:       sel,
		limiter:        limiter,
		upstream:       upstreamClient,
		pipeline:       pipeline,
		observer:       sink,
		requestTimeout: reqTimeout,
		ttftTimeout:    ttft,
	}
}

// RegisterRoutes adds the cross-protocol surface to r.
func (c *Core) RegisterRoutes(r *router.Router) {
	r.POST("/v2/chat/completions", c.HandleChatCompletionsV2)
	r.POST("/v2/messages", c.HandleMessagesV2)
	r.POST("/v2/responses", c.HandleResponsesV2)
	r.GET("/v1/models", c.HandleListModels)
}

func (c *Core) HandleChatCompletionsV2(ctx *fasthttp.RequestCtx) { c.handle(ctx, uif.OpenAIChat) }
func (c *Core) HandleMessagesV2(ctx *fasthttp.RequestCtx)        { c.handle(ctx, uif.AnthropicMessages) }
func (c *Core) HandleResponsesV2(ctx *fasthttp.RequestCtx)       { c.handle(ctx, uif.ResponseAPI) }

// HandleListModels lists every client-facing model name enabled providers
// in the current snapshot advertise, deduplicated.
func (c *Core) HandleListModels(ctx *fasthttp.RequestCtx) {
	snap := c.store.Current()
	seen := make(map[string]bool)
	type modelEntry struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}
	var out []modelEntry
	for _, p := range snap.Providers {
		if !p.IsEnabled {
			continue
		}
		for _, m := range p.ModelMapping {
			if m.ClientModel == "*" || seen[m.ClientModel] {
				continue
			}
			seen[m.ClientModel] = true
			out = append(out, modelEntry{ID: m.ClientModel, Object: "model", OwnedBy: p.Key})
		}
	}
	writeJSON(ctx, map[string]any{"object": "list", "data": out})
}

func requestIDFrom(ctx *fasthttp.RequestCtx) string {
	if v, ok := ctx.UserValue("request_id").(string); ok && v != "" {
		return v
	}
	return ""
}

// asGwerr coerces any error returned by auth/resolver/selector/transform
// into the shared taxonomy. Every one of those packages only ever returns
// gwerr.New/Wrap values, but falling back to InternalError here keeps a
// future non-conforming return from ever turning into a panic.
func asGwerr(err error) *gwerr.Error {
	if ge, ok := err.(*gwerr.Error); ok {
		return ge
	}
	return gwerr.Wrap(gwerr.InternalError, "unexpected error", err)
}

// handle runs the shared C2→C9 pipeline for one client protocol tag.
func (c *Core) handle(httpCtx *fasthttp.RequestCtx, tag uif.ProtocolTag) {
	start := time.Now()
	snap := c.store.Current()
	requestID := requestIDFrom(httpCtx)

	cred, aerr := c.auth.Authenticate(snap, string(httpCtx.Request.Header.Peek("Authorization")))
	if aerr != nil {
		apierr.WriteForProtocol(httpCtx, tag, aerr)
		return
	}

	body := httpCtx.PostBody()
	clientModel := gjson.GetBytes(body, "model").String()
	if clientModel == "" {
		apierr.WriteForProtocol(httpCtx, tag, gwerr.New(gwerr.TransformError, "model is required"))
		return
	}
	clientModel = c.resolver.Normalize(clientModel)

	if err := auth.AuthorizeModel(cred, clientModel); err != nil {
		apierr.WriteForProtocol(httpCtx, tag, asGwerr(err))
		return
	}

	if !c.limiter.Allow(cred) {
		rerr := gwerr.New(gwerr.RateLimited, "rate limit exceeded")
		rerr.RetryAfterSecs = 60
		apierr.WriteForProtocol(httpCtx, tag, rerr)
		return
	}

	candidates, err := c.resolver.Resolve(snap, clientModel)
	if err != nil {
		apierr.WriteForProtocol(httpCtx, tag, asGwerr(err))
		return
	}
	cand, err := c.selector.Pick(candidates, nil)
	if err != nil {
		apierr.WriteForProtocol(httpCtx, tag, asGwerr(err))
		return
	}

	reqCtx, cancel := context.WithTimeout(httpCtx, c.requestTimeout)
	defer cancel()

	providerTag, wireOK := upstream.WireTag(cand.Provider)
	if wireOK && upstream.CanBypassRaw(cand.Provider) && transform.Bypass(tag, providerTag) {
		c.dispatchBypass(reqCtx, httpCtx, tag, cand, body, requestID, start)
		return
	}
	c.dispatchPipeline(reqCtx, httpCtx, tag, cand, cred, body, requestID, start)
}

// fail writes the protocol-shaped error body (when the response hasn't
// already been committed) and records the attempt on the observer.
func (c *Core) fail(
	httpCtx *fasthttp.RequestCtx,
	tag uif.ProtocolTag,
	cand resolver.Candidate,
	requestID string,
	start time.Time,
	gerr *gwerr.Error,
	responseCommitted bool,
) {
	if !responseCommitted {
		apierr.WriteForProtocol(httpCtx, tag, gerr)
	}
	c.observeAndWrite(httpCtx, tag, cand, requestID, start, time.Time{}, 0, 0, false, gerr)
}

// dispatchBypass forwards body verbatim to cand's own REST endpoint (P3),
// patching only the "model" field, and copies the response back byte for
// byte. No UIF is ever materialized on this path, so token accounting is
// unavailable to the observer event it records.
func (c *Core) dispatchBypass(
	reqCtx context.Context,
	httpCtx *fasthttp.RequestCtx,
	tag uif.ProtocolTag,
	cand resolver.Candidate,
	body []byte,
	requestID string,
	start time.Time,
) {
	patched, err := sjson.SetBytes(body, "model", cand.ProviderModel)
	if err != nil {
		c.fail(httpCtx, tag, cand, requestID, start,
			gwerr.Wrap(gwerr.TransformError, "rewrite model field", err), false)
		return
	}

	raw, berr := upstream.Bypass(cand.Provider, tag, patched)
	if berr != nil {
		c.fail(httpCtx, tag, cand, requestID, start, upstream.Classify(berr), false)
		return
	}

	httpCtx.SetStatusCode(raw.Status)
	if raw.ContentType != "" {
		httpCtx.SetContentType(raw.ContentType)
	}

	var firstByte time.Time
	httpCtx.SetBodyStreamWriter(func(w *bufio.Writer) {
		// raw.Body is only safe to read from inside this callback, which
		// fasthttp runs asynchronously after dispatchBypass has returned —
		// it must be closed here, not via a defer in the outer function.
		defer raw.Body.Close()
		defer func() { recover() }() //nolint:errcheck // writer is torn down on client disconnect mid-flush

		buf := make([]byte, 32*1024)
		for {
			select {
			case <-reqCtx.Done():
				return
			default:
			}
			n, rerr := raw.Body.Read(buf)
			if n > 0 {
				if firstByte.IsZero() {
					firstByte = time.Now()
				}
				if _, werr := w.Write(buf[:n]); werr != nil {
					return
				}
				w.Flush() //nolint:errcheck
			}
			if rerr != nil {
				return
			}
		}
	})

	var gerr *gwerr.Error
	if raw.Status >= 400 {
		gerr = &gwerr.Error{Kind: gwerr.UpstreamHTTPError, Message: "bypass upstream error", UpstreamStatus: raw.Status}
	}
	c.observeAndWrite(httpCtx, tag, cand, requestID, start, firstByte, 0, 0, true, gerr)
}

// dispatchPipeline runs the full request_out → request_in → provider call
// → response_in → response_out chain for a cross-protocol request.
func (c *Core) dispatchPipeline(
	reqCtx context.Context,
	httpCtx *fasthttp.RequestCtx,
	tag uif.ProtocolTag,
	cand resolver.Candidate,
	cred *config.Credential,
	body []byte,
	requestID string,
	start time.Time,
) {
	reqUIF, terr := c.pipeline.RequestOut(cand.Provider.Key, tag, body)
	if terr != nil {
		c.fail(httpCtx, tag, cand, requestID, start, asGwerr(terr), false)
		return
	}
	reqUIF.Model = cand.ProviderModel

	backend, uerr := c.upstream.Backend(reqCtx, cand.Provider)
	if uerr != nil {
		c.fail(httpCtx, tag, cand, requestID, start,
			gwerr.Wrap(gwerr.NoProvider, "build upstream backend", uerr), false)
		return
	}

	apiKeyID := strconv.FormatInt(cred.ID, 10)
	proxyReq, ierr := c.pipeline.RequestIn(cand.Provider.Key, reqUIF, "", apiKeyID, "", requestID)
	if ierr != nil {
		c.fail(httpCtx, tag, cand, requestID, start, asGwerr(ierr), false)
		return
	}

	proxyResp, rerr := backend.Request(reqCtx, proxyReq)
	if rerr != nil {
		c.fail(httpCtx, tag, cand, requestID, start, upstream.Classify(rerr), false)
		return
	}

	if proxyResp.Stream != nil {
		c.runStream(reqCtx, httpCtx, tag, cand, proxyResp, requestID, start)
		return
	}

	uifResp, ferr := c.pipeline.ResponseIn(cand.Provider.Key, proxyResp, uif.FinishStop)
	if ferr != nil {
		c.fail(httpCtx, tag, cand, requestID, start, asGwerr(ferr), false)
		return
	}
	outBody, oerr := c.pipeline.ResponseOut(cand.Provider.Key, tag, uifResp)
	if oerr != nil {
		c.fail(httpCtx, tag, cand, requestID, start, asGwerr(oerr), false)
		return
	}

	httpCtx.SetStatusCode(fasthttp.StatusOK)
	httpCtx.SetContentType("application/json")
	httpCtx.SetBody(outBody)

	c.observeAndWrite(httpCtx, tag, cand, requestID, start, time.Time{},
		uifResp.Usage.PromptTokens, uifResp.Usage.CompletionTokens, false, nil)
}

func (c *Core) runStream(
	reqCtx context.Context,
	httpCtx *fasthttp.RequestCtx,
	tag uif.ProtocolTag,
	cand resolver.Candidate,
	proxyResp *providers.ProxyResponse,
	requestID string,
	start time.Time,
) {
	pump.Run(reqCtx, httpCtx, c.pipeline, tag, proxyResp.ID, cand.ProviderModel, proxyResp.Stream, c.ttftTimeout,
		func(res pump.Result, err error) {
			var gerr *gwerr.Error
			if err != nil {
				gerr = asGwerr(err)
			}
			c.observeAndWrite(httpCtx, tag, cand, requestID, start, res.Response.Timing.FirstChunk,
				res.Response.Usage.PromptTokens, res.Response.Usage.CompletionTokens, false, gerr)
		})
}

// observeAndWrite records the completed request on the observer sink.
func (c *Core) observeAndWrite(
	httpCtx *fasthttp.RequestCtx,
	tag uif.ProtocolTag,
	cand resolver.Candidate,
	requestID string,
	start time.Time,
	firstByte time.Time,
	inputTokens, outputTokens int,
	bypass bool,
	gerr *gwerr.Error,
) {
	status := httpCtx.Response.StatusCode()
	errCategory := ""
	if gerr != nil {
		status = gerr.Kind.HTTPStatus()
		if gerr.Kind == gwerr.UpstreamHTTPError && gerr.UpstreamStatus != 0 {
			status = gerr.UpstreamStatus
		}
		errCategory = string(gerr.Kind)
	}

	var ttft time.Duration
	if !firstByte.IsZero() {
		ttft = firstByte.Sub(start)
	}

	providerTag, _ := upstream.WireTag(cand.Provider)
	c.observer.Observe(observer.Event{
		RequestID:        requestID,
		Provider:         cand.Provider.Key,
		Model:            cand.ProviderModel,
		ClientProtocol:   tag,
		ProviderProtocol: providerTag,
		Bypass:           bypass,
		Status:           status,
		ErrorCategory:    errCategory,
		InputTokens:      inputTokens,
		OutputTokens:     outputTokens,
		Latency:          time.Since(start),
		TTFT:             ttft,
		StartedAt:        start,
	}, nil)
}
