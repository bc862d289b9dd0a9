package upstream

import (
	"fmt"
	"io"

	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/llm-gateway/internal/config"
	"github.com/nulpointcorp/llm-gateway/internal/uif"
)

// defaultBypassBase mirrors the corresponding provider backend's own
// default base URL (internal/providers/openai, /anthropic, /mistral),
// used only when a Provider row leaves APIBase empty.
var defaultBypassBase = map[config.ProviderType]string{
	config.ProviderOpenAI:    "https://api.openai.com/v1",
	config.ProviderAnthropic: "https://api.anthropic.com/v1",
	config.ProviderMistral:   "https://api.mistral.ai/v1",
}

// anthropicAPIVersion is the wire version this gateway speaks to Anthropic,
// mirroring internal/providers/anthropic's SDK default.
const anthropicAPIVersion = "2023-06-01"

// CanBypassRaw reports whether p's backend exposes a plain REST/JSON
// endpoint this package can forward a client's literal request body to
// byte-for-byte (I4, P3). SDK- or signature-driven backends (vertexai via
// the genai SDK, bedrock via SigV4, gemini via the genai SDK) always go
// through the UIF pipeline instead, even on a client/provider tag match —
// see DESIGN.md's bypass entry for why.
func CanBypassRaw(p *config.Provider) bool {
	switch p.Type {
	case config.ProviderOpenAI, config.ProviderAnthropic, config.ProviderMistral, config.ProviderCompatible:
		return true
	default:
		return false
	}
}

// WireTag returns the protocol tag p's own REST endpoint natively speaks,
// for the bypass equality check (I4): a request only qualifies for the raw
// path when the client's tag matches this one. Backends with no plain-REST
// wire shape of their own (azure, vertexai, bedrock, gemini) return ok=false
// and always take the full UIF pipeline instead.
func WireTag(p *config.Provider) (uif.ProtocolTag, bool) {
	switch p.Type {
	case config.ProviderOpenAI, config.ProviderMistral, config.ProviderCompatible:
		return uif.OpenAIChat, true
	case config.ProviderAnthropic:
		return uif.AnthropicMessages, true
	default:
		return "", false
	}
}

// bypassPath returns the path suffix appended to the provider's base URL
// for a same-tag request.
func bypassPath(tag uif.ProtocolTag) (string, bool) {
	switch tag {
	case uif.OpenAIChat:
		return "/chat/completions", true
	case uif.AnthropicMessages:
		return "/messages", true
	default:
		return "", false
	}
}

// RawResponse is what Bypass hands back: the verbatim upstream status,
// content type, and a body the pump copies byte-for-byte to the client
// (P3). Close must be called exactly once, after the body is drained.
type RawResponse struct {
	Status      int
	ContentType string
	Body        io.ReadCloser
}

type releasingBody struct {
	r    io.Reader
	resp *fasthttp.Response
}

func (b *releasingBody) Read(p []byte) (int, error) { return b.r.Read(p) }
func (b *releasingBody) Close() error {
	fasthttp.ReleaseResponse(b.resp)
	return nil
}

// Bypass forwards body verbatim to p's own REST endpoint — the caller has
// already rewritten the "model" field to the provider-facing name (the one
// field the bypass path is allowed to touch; every other byte is the
// client's own). The response status, content type, and body stream pass
// back unmodified for the pump to copy to the client one-for-one,
// satisfying P3 without ever materializing UIF.
func Bypass(p *config.Provider, tag uif.ProtocolTag, body []byte) (*RawResponse, error) {
	suffix, ok := bypassPath(tag)
	if !ok {
		return nil, fmt.Errorf("upstream: no raw bypass path for protocol tag %s", tag)
	}

	base := p.APIBase
	if base == "" {
		base = defaultBypassBase[p.Type]
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	resp.StreamBody = true

	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetRequestURI(base + suffix)
	applyBypassAuth(req, p)
	req.SetBody(body)

	if err := bypassClient.Do(req, resp); err != nil {
		fasthttp.ReleaseResponse(resp)
		return nil, err
	}

	return &RawResponse{
		Status:      resp.StatusCode(),
		ContentType: string(resp.Header.ContentType()),
		Body:        &releasingBody{r: resp.BodyStream(), resp: resp},
	}, nil
}

var bypassClient = &fasthttp.Client{
	Name:                     "llm-gateway-bypass",
	NoDefaultUserAgentHeader: true,
}

func applyBypassAuth(req *fasthttp.Request, p *config.Provider) {
	switch p.Type {
	case config.ProviderAnthropic:
		req.Header.Set("x-api-key", p.APIKey)
		req.Header.Set("anthropic-version", anthropicAPIVersion)
	default:
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}
}
