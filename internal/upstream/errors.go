package upstream

import (
	"context"
	"errors"
	"fmt"

	"github.com/nulpointcorp/llm-gateway/internal/gwerr"
	"github.com/nulpointcorp/llm-gateway/internal/providers"
)

// Classify turns whatever error a provider backend returns into the
// gwerr taxonomy (§4.6, §7). Grounded on the teacher's
// internal/proxy/failover.go classifyError/isRetryable, repurposed from a
// retry decision into a pure classification — §4.6 explicitly forbids
// automatic retry ("No automatic retry: the pipeline calls C6 exactly
// once per client request"), so the only thing this function now informs
// is the HTTP status and error_category the observer records.
func Classify(err error) *gwerr.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return gwerr.Wrap(gwerr.UpstreamTimeout, "upstream request timed out", err)
	}
	if sc, ok := err.(providers.StatusCoder); ok {
		status := sc.HTTPStatus()
		return &gwerr.Error{
			Kind:           gwerr.UpstreamHTTPError,
			Message:        fmt.Sprintf("upstream returned HTTP %d", status),
			UpstreamStatus: status,
			UpstreamBody:   []byte(err.Error()),
			Cause:          err,
		}
	}
	return gwerr.Wrap(gwerr.UpstreamNetworkErr, "upstream request failed", err)
}
