package agent

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	agentmodel "github.com/web3buddy/server/internal/agent/model"
	"github.com/web3buddy/server/internal/agent/observers"
	"github.com/web3buddy/server/internal/agent/trace"
	errx "github.com/web3buddy/server/internal/core/error"
	"github.com/web3buddy/server/internal/inquiry"
	"github.com/web3buddy/server/internal/metrics"
	logx "github.com/web3buddy/server/pkg/logger"
)

// Runner executes one turn, emitting step events as it progresses. Run
// returns only after the terminal event has been emitted, or with an error
// when the turn failed before reaching one.
type Runner interface {
	Run(ctx context.Context, in agentmodel.TurnInput, emit trace.Emit) error
}

// Loop is the compiled turn graph behind the Runner contract.
type Loop struct {
	runnable compose.Runnable[agentmodel.TurnInput, *schema.Message]
}

// NewLoop builds and compiles the turn graph.
func NewLoop(ctx context.Context, cfg *Config) (*Loop, error) {
	runnable, err := BuildGraph(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Loop{runnable: runnable}, nil
}

// Run streams one turn. Every generation chunk becomes a fragment event; the
// accumulated text decides the terminal kind: a parseable inquiry ends the
// turn awaiting parameters, anything else ends it answered.
func (l *Loop) Run(ctx context.Context, in agentmodel.TurnInput, emit trace.Emit) error {
	stream, err := l.runnable.Stream(ctx, in,
		compose.WithCallbacks(observers.NewTurnCallbacks(emit)),
	)
	if err != nil {
		metrics.TurnsTotal.WithLabelValues("error").Inc()
		return classify(err)
	}
	defer stream.Close()

	var full strings.Builder
	fragments := 0
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			metrics.TurnsTotal.WithLabelValues("error").Inc()
			return classify(err)
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		full.WriteString(chunk.Content)
		fragments++
		emit(trace.Fragment(chunk.Content))
	}

	content := full.String()
	metrics.TurnFragments.Observe(float64(fragments))

	if _, ok := inquiry.Parse(content); ok {
		logx.Info().
			Str("conversation_id", in.ConversationID).
			Msg("turn ended awaiting parameters")
		metrics.TurnsTotal.WithLabelValues("params_inquiry").Inc()
		emit(trace.ParamsInquiry(content))
		return nil
	}

	metrics.TurnsTotal.WithLabelValues("ending").Inc()
	emit(trace.Ending(content))
	return nil
}

// classify keeps domain failures intact and folds everything else into an
// upstream completion error.
func classify(err error) error {
	switch {
	case errors.Is(err, errx.ErrAgentLoopExceeded),
		errors.Is(err, errx.ErrStoreUnavailable),
		errors.Is(err, errx.ErrInvalidToolArguments):
		return err
	default:
		return errx.Upstream(err)
	}
}
