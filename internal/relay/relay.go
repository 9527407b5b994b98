// Package relay converts an agent turn's step-event trace into the minimal
// client-facing byte stream: answer fragments in production order, then
// nothing after the single terminal event. Everything else in the trace is
// dropped silently.
package relay

import (
	"context"
	"io"
	"net/http"

	"github.com/web3buddy/server/internal/agent/trace"
	errx "github.com/web3buddy/server/internal/core/error"
	logx "github.com/web3buddy/server/pkg/logger"
)

// Result is the outcome of a fully relayed turn.
type Result struct {
	// Kind is the terminal event kind (trace.KindEnding or
	// trace.KindParamsInquiry).
	Kind trace.Kind
	// Content is the complete payload carried by the terminal event. For an
	// ending turn it equals the concatenation of all forwarded fragments.
	Content string
	// Fragments counts the fragments forwarded to the client.
	Fragments int
}

// Pump drains events until it is closed, writing fragment text to w and
// flushing after every write when w supports it. It returns once the
// producer closes events; the terminal event, if any, is reported in Result.
//
// Fragments arriving after the terminal event would violate the turn
// protocol; they are dropped and logged rather than forwarded.
func Pump(ctx context.Context, events <-chan trace.Event, w io.Writer) (Result, error) {
	flusher, _ := w.(http.Flusher)

	var res Result
	terminal := false
	for {
		select {
		case <-ctx.Done():
			for range events {
			}
			return res, errx.Wrap(errx.ErrStreamAborted, ctx.Err())
		default:
		}

		select {
		case <-ctx.Done():
			// Client went away; drain the producer so it can finish
			// cancelling, then report the abort.
			for range events {
			}
			return res, errx.Wrap(errx.ErrStreamAborted, ctx.Err())
		case ev, ok := <-events:
			if !ok {
				return res, nil
			}
			switch {
			case ev.Kind == trace.KindFragment && !terminal:
				if _, err := io.WriteString(w, ev.Text); err != nil {
					for range events {
					}
					return res, errx.Wrap(errx.ErrStreamAborted, err)
				}
				if flusher != nil {
					flusher.Flush()
				}
				res.Fragments++
			case ev.Kind == trace.KindFragment:
				logx.Warn().Msg("fragment received after terminal event, dropping")
			case ev.Terminal() && !terminal:
				terminal = true
				res.Kind = ev.Kind
				res.Content = ev.Text
			case ev.Terminal():
				logx.Warn().Msg("duplicate terminal event, dropping")
			default:
				// tool start/end and other verbose trace records are not
				// part of the client stream
			}
		}
	}
}
