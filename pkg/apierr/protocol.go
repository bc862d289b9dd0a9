package apierr

import (
	"encoding/json"
	"strconv"

	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/llm-gateway/internal/gwerr"
	"github.com/nulpointcorp/llm-gateway/internal/uif"
)

// anthropicEnvelope mirrors internal/providers/anthropic/types.go's
// apiError/apiErrDetail wire shape, so Anthropic-protocol clients see the
// error body they'd see from the real Anthropic API.
type anthropicEnvelope struct {
	Type  string            `json:"type"`
	Error anthropicErrBody  `json:"error"`
}

type anthropicErrBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// responseAPIEnvelope mirrors the Response API's error shape.
type responseAPIEnvelope struct {
	Error responseAPIErrBody `json:"error"`
}

type responseAPIErrBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// WriteForProtocol writes gerr's mapped HTTP status and a body shaped for
// tag, so §7's "error body matches the client protocol's shape" holds for
// all three protocols, not just openai_chat. Upstream HTTP errors
// (gwerr.UpstreamHTTPError) pass their verbatim body through unrewritten
// regardless of tag (I5, P4) — the client already expects its own
// provider's error shape in that case because the upstream provider *is*
// same-protocol-tagged in the common case, and rewriting would violate
// "upstream application errors are never rewritten".
func WriteForProtocol(ctx *fasthttp.RequestCtx, tag uif.ProtocolTag, gerr *gwerr.Error) {
	if gerr.Kind == gwerr.UpstreamHTTPError && len(gerr.UpstreamBody) > 0 {
		ctx.SetStatusCode(gerr.UpstreamStatus)
		ctx.SetContentType("application/json")
		ctx.SetBody(gerr.UpstreamBody)
		return
	}

	status := gerr.Kind.HTTPStatus()
	if gerr.Kind == gwerr.UpstreamHTTPError && gerr.UpstreamStatus != 0 {
		status = gerr.UpstreamStatus
	}
	if gerr.Kind == gwerr.RateLimited {
		ctx.Response.Header.Set("Retry-After", retryAfter(gerr.RetryAfterSecs))
	}

	errType, code := classify(gerr.Kind)

	switch tag {
	case uif.AnthropicMessages:
		ctx.SetStatusCode(status)
		ctx.SetContentType("application/json")
		body, _ := json.Marshal(anthropicEnvelope{
			Type:  "error",
			Error: anthropicErrBody{Type: errType, Message: gerr.Message},
		})
		ctx.SetBody(body)
	case uif.ResponseAPI:
		ctx.SetStatusCode(status)
		ctx.SetContentType("application/json")
		body, _ := json.Marshal(responseAPIEnvelope{
			Error: responseAPIErrBody{Message: gerr.Message, Type: errType, Code: code},
		})
		ctx.SetBody(body)
	default: // openai_chat and anything unrecognized
		Write(ctx, status, gerr.Message, errType, code)
	}
}

func retryAfter(secs int) string {
	if secs <= 0 {
		secs = 60
	}
	return strconv.Itoa(secs)
}

func classify(k gwerr.Kind) (errType, code string) {
	switch k {
	case gwerr.Unauthorized:
		return TypeAuthenticationErr, CodeInvalidAPIKey
	case gwerr.Forbidden, gwerr.ForbiddenModel:
		return TypeAuthenticationErr, CodeInvalidRequest
	case gwerr.RateLimited:
		return TypeRateLimitError, CodeRateLimitExceeded
	case gwerr.UnknownModel:
		return TypeInvalidRequest, CodeInvalidRequest
	case gwerr.NoProvider:
		return TypeProviderError, CodeProviderError
	case gwerr.TransformError, gwerr.ScriptError:
		return TypeInvalidRequest, CodeInvalidRequest
	case gwerr.UpstreamHTTPError, gwerr.UpstreamNetworkErr:
		return TypeProviderError, CodeProviderError
	case gwerr.UpstreamTimeout, gwerr.TTFTTimeout:
		return TypeProviderError, CodeRequestTimeout
	case gwerr.ClientDisconnect:
		return TypeServerError, CodeInternalError
	default:
		return TypeServerError, CodeInternalError
	}
}
