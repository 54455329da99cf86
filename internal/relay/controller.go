// Package relay implements the streaming relay core: a controller that
// drives one provider adapter stream, re-frames delta events onto the
// outgoing transport while accumulating the full response, and a
// finalizer that records the exchange exactly once at stream end.
package relay

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ifinance/relay/internal/domain"
	"github.com/ifinance/relay/internal/observability"
)

// FrameWriter re-frames canonical delta events onto the outgoing
// transport. The chat route writes an SSE event envelope; the
// financial-analysis route writes raw text.
type FrameWriter interface {
	// WriteFragment emits one content fragment to the client.
	WriteFragment(fragment string) error

	// WriteDone closes the client stream cleanly.
	WriteDone() error
}

// Session describes one relay invocation.
type Session struct {
	UserID      string
	Request     *domain.ChatRequest
	Adapter     domain.Adapter
	RequestType string
}

// accumulator is the per-invocation mutable state. It is owned
// exclusively by one Relay call and discarded after finalization.
type accumulator struct {
	content     strings.Builder
	totalTokens int64
	start       time.Time
}

// Controller drives adapter streams. One Controller serves all routes;
// only message construction and framing differ between them.
type Controller struct {
	finalizer *Finalizer
}

// NewController creates a new relay controller (DI constructor).
func NewController(finalizer *Finalizer) *Controller {
	return &Controller{finalizer: finalizer}
}

// Relay opens the adapter stream and drives it to completion. Fragments
// are written to the client in arrival order and accumulated; the first
// terminal signal (explicit event or channel close) triggers finalization
// exactly once, guarded by a one-shot flag. Finalizer failures never reach
// the transport: the client still gets a clean close.
//
// An error before streaming begins is returned as-is so the handler can
// still send an error status. An error after streaming has begun, or a
// client disconnect, tears the stream down without a clean close and
// without finalization: partially delivered content is not billed.
func (c *Controller) Relay(ctx context.Context, w FrameWriter, sess Session) error {
	acc := accumulator{start: time.Now()}

	events, err := sess.Adapter.Stream(ctx, sess.Request)
	if err != nil {
		return fmt.Errorf("opening %s stream: %w", sess.Adapter.Name(), err)
	}

	logger := observability.FromContext(ctx)

	var finalizeOnce sync.Once
	finalized := false

	finalize := func() {
		finalizeOnce.Do(func() {
			finalized = true
			c.finalizer.Finalize(ctx, FinalizeInput{
				UserID:      sess.UserID,
				Request:     sess.Request,
				Content:     acc.content.String(),
				Model:       sess.Request.Model,
				Provider:    sess.Adapter.Name(),
				TotalTokens: acc.totalTokens,
				Latency:     time.Since(acc.start),
				RequestType: sess.RequestType,
			})
		})
	}

	for ev := range events {
		if ev.Err != nil {
			return fmt.Errorf("stream failed after %d bytes: %w", acc.content.Len(), ev.Err)
		}

		if ev.Content != "" {
			if writeErr := w.WriteFragment(ev.Content); writeErr != nil {
				// Client is gone; abort the upstream read instead of
				// consuming it to completion.
				return fmt.Errorf("writing fragment: %w", writeErr)
			}
			acc.content.WriteString(ev.Content)
		}

		if ev.TotalTokens > 0 {
			acc.totalTokens = ev.TotalTokens
		}

		if ev.Terminal {
			finalize()
			break
		}
	}

	if ctx.Err() != nil && !finalized {
		return fmt.Errorf("relay aborted: %w", ctx.Err())
	}

	// Channel close without an explicit terminal event is an implicit
	// terminal; finalize is a no-op when it already ran.
	finalize()

	if doneErr := w.WriteDone(); doneErr != nil {
		logger.Warn("closing client stream failed", observability.Error(doneErr))
	}

	logger.Info("relay completed",
		observability.Int("content_bytes", acc.content.Len()),
		observability.Int64("total_tokens", acc.totalTokens),
		observability.Duration("elapsed", time.Since(acc.start)),
	)

	return nil
}
