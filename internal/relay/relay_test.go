package relay

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3buddy/server/internal/agent/trace"
	errx "github.com/web3buddy/server/internal/core/error"
)

func feed(events ...trace.Event) <-chan trace.Event {
	ch := make(chan trace.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func TestPumpFragmentsConcatenateToTerminal(t *testing.T) {
	var sb strings.Builder
	res, err := Pump(context.Background(), feed(
		trace.Fragment("The"),
		trace.Fragment("Graph "),
		trace.Fragment("indexes blockchains."),
		trace.Ending("TheGraph indexes blockchains."),
	), &sb)

	require.NoError(t, err)
	assert.Equal(t, trace.KindEnding, res.Kind)
	assert.Equal(t, res.Content, sb.String())
	assert.Equal(t, 3, res.Fragments)
}

func TestPumpDropsVerboseTraceEvents(t *testing.T) {
	var sb strings.Builder
	res, err := Pump(context.Background(), feed(
		trace.ToolStart("calculator", `{"expression":"2+2"}`),
		trace.ToolEnd("calculator", "4"),
		trace.Fragment("2+2 is 4"),
		trace.Ending("2+2 is 4"),
	), &sb)

	require.NoError(t, err)
	assert.Equal(t, "2+2 is 4", sb.String())
	assert.Equal(t, 1, res.Fragments)
}

func TestPumpZeroFragmentsClosesDeterministically(t *testing.T) {
	var sb strings.Builder
	res, err := Pump(context.Background(), feed(
		trace.Ending("immediate answer"),
	), &sb)

	require.NoError(t, err)
	assert.Empty(t, sb.String())
	assert.Equal(t, trace.KindEnding, res.Kind)
	assert.Equal(t, "immediate answer", res.Content)
}

func TestPumpParamsInquiryTerminal(t *testing.T) {
	payload := `{"content":"Provide params","params":{"amount":"number"}}`
	var sb strings.Builder
	res, err := Pump(context.Background(), feed(
		trace.ParamsInquiry(payload),
	), &sb)

	require.NoError(t, err)
	assert.Equal(t, trace.KindParamsInquiry, res.Kind)
	assert.Equal(t, payload, res.Content)
}

func TestPumpNoFragmentAfterTerminal(t *testing.T) {
	var sb strings.Builder
	res, err := Pump(context.Background(), feed(
		trace.Fragment("answer"),
		trace.Ending("answer"),
		trace.Fragment("stray"),
	), &sb)

	require.NoError(t, err)
	assert.Equal(t, "answer", sb.String())
	assert.Equal(t, 1, res.Fragments)
}

func TestPumpClientDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := make(chan trace.Event)
	close(ch)

	var sb strings.Builder
	_, err := Pump(ctx, ch, &sb)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrStreamAborted))
}
