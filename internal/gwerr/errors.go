// Package gwerr defines the error-kind taxonomy shared by every component
// in the request path (C2–C9) so that a single switch at the HTTP edge can
// map any failure to the right status code and log error_category.
package gwerr

import "fmt"

// Kind is one of the proxy-generated error categories from spec §7. It is
// deliberately not string-typed on the wire — Kind values are internal;
// callers never see the Go identifier, only the mapped status code and
// protocol-specific JSON body.
type Kind string

const (
	Unauthorized       Kind = "unauthorized"
	Forbidden          Kind = "forbidden"
	ForbiddenModel     Kind = "forbidden_model"
	RateLimited        Kind = "rate_limited"
	UnknownModel       Kind = "unknown_model"
	NoProvider         Kind = "no_provider"
	TransformError     Kind = "transform_error"
	ScriptError        Kind = "script_error"
	UpstreamHTTPError  Kind = "upstream_http_error"
	UpstreamNetworkErr Kind = "upstream_network_error"
	UpstreamTimeout    Kind = "upstream_timeout"
	TTFTTimeout        Kind = "ttft_timeout"
	ClientDisconnect   Kind = "client_disconnect"
	InternalError      Kind = "internal_error"
)

// Error wraps a Kind with a human-readable message and, for
// UpstreamHTTPError, the verbatim upstream status and body that must pass
// through unrewritten (I5, §7 "upstream application errors are never
// rewritten").
type Error struct {
	Kind           Kind
	Message        string
	UpstreamStatus int    // only meaningful for UpstreamHTTPError
	UpstreamBody   []byte // only meaningful for UpstreamHTTPError; passed through verbatim
	RetryAfterSecs int    // only meaningful for RateLimited
	Cause          error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind around a lower-level cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Upstream builds the UpstreamHTTPError variant that carries the verbatim
// status and body to pass through (§4.6, §7, P4).
func Upstream(status int, body []byte) *Error {
	return &Error{Kind: UpstreamHTTPError, Message: "upstream error", UpstreamStatus: status, UpstreamBody: body}
}

// HTTPStatus maps a Kind to the client-visible status code per §4.6/§7.
// UpstreamHTTPError is special-cased by callers (they use UpstreamStatus
// directly); this method's UpstreamHTTPError branch is only a fallback.
func (k Kind) HTTPStatus() int {
	switch k {
	case Unauthorized:
		return 401
	case Forbidden, ForbiddenModel:
		return 403
	case RateLimited:
		return 429
	case UnknownModel:
		return 404
	case NoProvider:
		return 503
	case TransformError, ScriptError, InternalError:
		return 500
	case UpstreamNetworkErr:
		return 502
	case UpstreamTimeout, TTFTTimeout:
		return 504
	case ClientDisconnect:
		return 499
	case UpstreamHTTPError:
		return 502
	default:
		return 500
	}
}
