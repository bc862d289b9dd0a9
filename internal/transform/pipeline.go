package transform

import (
	"github.com/nulpointcorp/llm-gateway/internal/gwerr"
	"github.com/nulpointcorp/llm-gateway/internal/providers"
	"github.com/nulpointcorp/llm-gateway/internal/transform/script"
	"github.com/nulpointcorp/llm-gateway/internal/uif"
)

// ClientCodec is the request_out/response_out pair for one client wire
// protocol.
type ClientCodec interface {
	Tag() uif.ProtocolTag
	RequestOut(body []byte) (uif.RequestUIF, error)
	ResponseOut(r uif.ResponseUIF) ([]byte, error)
}

// Pipeline runs the four-hook transform (§4.5) for one request. It has no
// same-tag short-circuit of its own: Core checks Bypass before a Pipeline
// is involved and sends a bypassed request through upstream.Bypass
// instead.
type Pipeline struct {
	OpenAI    OpenAIChat
	Anthropic AnthropicMessages
	Response  ResponseAPI
	Scripts   *script.Registry // nil when no per-provider scripts are configured
}

func NewPipeline(scripts *script.Registry) *Pipeline {
	return &Pipeline{Scripts: scripts}
}

func (p *Pipeline) codec(tag uif.ProtocolTag) ClientCodec {
	switch tag {
	case uif.OpenAIChat:
		return p.OpenAI
	case uif.AnthropicMessages:
		return p.Anthropic
	case uif.ResponseAPI:
		return p.Response
	default:
		return nil
	}
}

// Bypass reports whether clientTag == providerTag, the tag condition Core
// checks (together with upstream.CanBypassRaw) before forwarding the raw
// client body through upstream.Bypass with only its "model" field
// rewritten (I4). Such a request skips all four hooks and never
// materializes UIF. Provider scripts are not consulted.
func Bypass(clientTag, providerTag uif.ProtocolTag) bool {
	return clientTag == providerTag
}

// RequestOut runs request_out for the given client protocol tag, then the
// optional script override for that provider's request_out hook.
func (p *Pipeline) RequestOut(providerKey string, tag uif.ProtocolTag, body []byte) (uif.RequestUIF, error) {
	codec := p.codec(tag)
	if codec == nil {
		return uif.RequestUIF{}, gwerr.New(gwerr.TransformError, "unsupported client protocol tag")
	}
	out, err := codec.RequestOut(body)
	if err != nil {
		return uif.RequestUIF{}, err
	}
	if p.Scripts != nil {
		if out2, ok, err := p.Scripts.RunRequestOut(providerKey, out); err != nil {
			return uif.RequestUIF{}, gwerr.Wrap(gwerr.ScriptError, "request_out script hook failed", err)
		} else if ok {
			out = out2
		}
	}
	return out, nil
}

// RequestIn runs request_in: UIF -> the flat shape the provider backend
// consumes, with the optional script override.
func (p *Pipeline) RequestIn(providerKey string, req uif.RequestUIF, workspaceID, apiKeyID, apiKey, requestID string) (*providers.ProxyRequest, error) {
	if p.Scripts != nil {
		if req2, ok, err := p.Scripts.RunRequestIn(providerKey, req); err != nil {
			return nil, gwerr.Wrap(gwerr.ScriptError, "request_in script hook failed", err)
		} else if ok {
			req = req2
		}
	}
	return ToProviderRequest(req, workspaceID, apiKeyID, apiKey, requestID), nil
}

// ResponseIn runs response_in for a non-streaming provider reply.
func (p *Pipeline) ResponseIn(providerKey string, resp *providers.ProxyResponse, finish uif.FinishReason) (uif.ResponseUIF, error) {
	out := FromProviderResponse(resp, finish)
	if p.Scripts != nil {
		if out2, ok, err := p.Scripts.RunResponseIn(providerKey, out); err != nil {
			return uif.ResponseUIF{}, gwerr.Wrap(gwerr.ScriptError, "response_in script hook failed", err)
		} else if ok {
			out = out2
		}
	}
	return out, nil
}

// ResponseOutChunk renders one streaming delta (or, when terminal, the
// closing sentinel) for the given client protocol, dispatching to each
// codec's own ResponseOutChunk shape. acc is the response accumulated so
// far, already updated with d by the caller (internal/pump) before this
// is invoked — response_api's terminal event needs the full body, the
// other two only need the incremental delta.
func (p *Pipeline) ResponseOutChunk(tag uif.ProtocolTag, acc uif.ResponseUIF, d uif.Delta, terminal bool) ([]byte, error) {
	switch tag {
	case uif.OpenAIChat:
		return p.OpenAI.ResponseOutChunk(acc.ID, acc.Model, d, terminal)
	case uif.AnthropicMessages:
		return p.Anthropic.ResponseOutChunk(d, terminal)
	case uif.ResponseAPI:
		return p.Response.ResponseOutChunk(acc, d, terminal)
	default:
		return nil, gwerr.New(gwerr.TransformError, "unsupported client protocol tag")
	}
}

// ResponseOut runs response_out for the final (or accumulated) UIF
// response, rendering the client protocol's complete JSON body.
func (p *Pipeline) ResponseOut(providerKey string, tag uif.ProtocolTag, r uif.ResponseUIF) ([]byte, error) {
	if p.Scripts != nil {
		if r2, ok, err := p.Scripts.RunResponseOut(providerKey, r); err != nil {
			return nil, gwerr.Wrap(gwerr.ScriptError, "response_out script hook failed", err)
		} else if ok {
			r = r2
		}
	}
	codec := p.codec(tag)
	if codec == nil {
		return nil, gwerr.New(gwerr.TransformError, "unsupported client protocol tag")
	}
	return codec.ResponseOut(r)
}
