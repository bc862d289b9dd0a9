// Package pump implements the streaming response pump (C7): it drains a
// provider's StreamChunk channel, runs each chunk through response_in then
// response_out, writes the client protocol's own framing to the HTTP
// response body, and captures time-to-first-token.
package pump

import (
	"bufio"
	"context"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/llm-gateway/internal/gwerr"
	"github.com/nulpointcorp/llm-gateway/internal/providers"
	"github.com/nulpointcorp/llm-gateway/internal/transform"
	"github.com/nulpointcorp/llm-gateway/internal/uif"
)

// contentType is the HTTP content type for the client protocol's SSE
// framing. All three protocols stream as text/event-stream over fasthttp.
const contentType = "text/event-stream"

// Result summarizes a completed stream for the observer (C8): the
// accumulated response, TTFT, and total duration.
type Result struct {
	Response uif.ResponseUIF
	TTFT     time.Duration
	Duration time.Duration
}

// estimateTokens approximates an output token count from accumulated
// character count when the provider never reports real usage mid-stream
// (~4 characters per token, the teacher's own heuristic).
func estimateTokens(chars int) int {
	if chars == 0 {
		return 0
	}
	est := chars / 4
	if est == 0 {
		est = 1
	}
	return est
}

// Run drains resp.Stream, writing framed client-protocol chunks to ctx's
// body stream writer as they arrive. respID/model seed the accumulated
// ResponseUIF; onResult is called exactly once after the stream ends
// (success or error) so the caller can still log a partial result on
// cancellation. ctx.Done() governs cooperative cancellation (client
// disconnect, request deadline). ttftTimeout bounds the wait for the very
// first chunk only; once one arrives it no longer applies (§4.7 TTFT).
func Run(
	reqCtx context.Context,
	httpCtx *fasthttp.RequestCtx,
	pipe *transform.Pipeline,
	tag uif.ProtocolTag,
	respID, model string,
	stream <-chan providers.StreamChunk,
	ttftTimeout time.Duration,
	onResult func(Result, error),
) {
	httpCtx.SetContentType(contentType)
	httpCtx.Response.Header.Set("Cache-Control", "no-cache")
	httpCtx.Response.Header.Set("Connection", "keep-alive")
	httpCtx.SetStatusCode(fasthttp.StatusOK)

	start := time.Now()

	httpCtx.SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() { recover() }() //nolint:errcheck // writer is torn down on client disconnect mid-flush

		acc := uif.ResponseUIF{ID: respID, Model: model, Timing: uif.Timing{Start: start}}
		var textBuf strings.Builder
		var ttft time.Duration
		var runErr error

		firstByteTimer := time.NewTimer(ttftTimeout)
		defer firstByteTimer.Stop()

		for {
			select {
			case <-reqCtx.Done():
				runErr = gwerr.New(gwerr.ClientDisconnect, "client disconnected mid-stream")
				goto done

			case <-firstByteTimer.C:
				if ttft == 0 {
					runErr = gwerr.New(gwerr.TTFTTimeout, "timed out waiting for first upstream byte")
					goto done
				}

			case chunk, ok := <-stream:
				if !ok {
					goto done
				}
				if ttft == 0 {
					ttft = time.Since(start)
					acc.Timing.FirstChunk = time.Now()
				}
				if chunk.FinishReason == "error" {
					runErr = gwerr.New(gwerr.UpstreamNetworkErr, chunk.Content)
					goto done
				}

				d := transform.FromStreamChunk(chunk)
				if d.ContentPart != nil {
					textBuf.WriteString(d.ContentPart.Text)
					acc.Content = append(acc.Content, *d.ContentPart)
				}
				if d.FinishReason != "" {
					acc.FinishReason = d.FinishReason
				}

				body, err := pipe.ResponseOutChunk(tag, acc, d, false)
				if err != nil {
					runErr = err
					goto done
				}
				if _, werr := w.Write(body); werr != nil {
					runErr = gwerr.Wrap(gwerr.ClientDisconnect, "write to client failed", werr)
					goto done
				}
				w.Flush() //nolint:errcheck
			}
		}

	done:
		acc.Timing.End = time.Now()
		if acc.Usage.CompletionTokens == 0 {
			acc.Usage.CompletionTokens = estimateTokens(textBuf.Len())
			acc.Usage.TotalTokens = acc.Usage.PromptTokens + acc.Usage.CompletionTokens
		}
		if runErr == nil {
			if body, err := pipe.ResponseOutChunk(tag, acc, uif.Delta{}, true); err == nil {
				w.Write(body) //nolint:errcheck
				w.Flush()     //nolint:errcheck
			} else {
				runErr = err
			}
		}
		if onResult != nil {
			onResult(Result{Response: acc, TTFT: ttft, Duration: time.Since(start)}, runErr)
		}
	})
}
