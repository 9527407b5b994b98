// Package observers wires Eino component callbacks into the turn's typed
// event stream, structured logs and metrics.
package observers

import (
	"context"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	"github.com/web3buddy/server/internal/agent/trace"
	"github.com/web3buddy/server/internal/metrics"
	logx "github.com/web3buddy/server/pkg/logger"
)

// NewTurnCallbacks aggregates the typed handlers for one turn into a single
// callbacks.Handler. Attach it via compose.WithCallbacks when running the
// graph. emit receives a tool lifecycle event for every tool execution;
// fragment and terminal events are produced by the caller from the output
// stream, not here.
func NewTurnCallbacks(emit trace.Emit) einocb.Handler {
	return callbackHelper.NewHandlerHelper().
		Tool(newToolHandler(emit)).
		ChatModel(newModelHandler()).
		Handler()
}

func newToolHandler(emit trace.Emit) *callbackHelper.ToolCallbackHandler {
	return &callbackHelper.ToolCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *tool.CallbackInput) context.Context {
			args := ""
			if input != nil {
				args = input.ArgumentsInJSON
			}
			logx.Info().Str("tool", info.Name).Str("arguments", args).Msg("tool execution started")
			emit(trace.ToolStart(info.Name, args))
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *tool.CallbackOutput) context.Context {
			response := ""
			if output != nil {
				response = output.Response
			}
			logx.Info().Str("tool", info.Name).Int("response_bytes", len(response)).Msg("tool execution finished")
			metrics.ToolExecutionsTotal.WithLabelValues(info.Name, "ok").Inc()
			emit(trace.ToolEnd(info.Name, response))
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Str("tool", info.Name).Err(err).Msg("tool execution failed")
			metrics.ToolExecutionsTotal.WithLabelValues(info.Name, "error").Inc()
			emit(trace.ToolEnd(info.Name, err.Error()))
			return ctx
		},
	}
}

func newModelHandler() *callbackHelper.ModelCallbackHandler {
	return &callbackHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			n := 0
			if input != nil {
				n = len(input.Messages)
			}
			logx.Debug().Str("model", info.Name).Int("messages", n).Msg("model call started")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			if output != nil && output.Message != nil {
				content := strings.TrimSpace(output.Message.Content)
				logx.Debug().
					Str("model", info.Name).
					Int("tool_calls", len(output.Message.ToolCalls)).
					Int("content_bytes", len(content)).
					Msg("model call finished")
			}
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Str("model", info.Name).Err(err).Msg("model call failed")
			return ctx
		},
	}
}
