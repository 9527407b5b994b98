package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/web3buddy/server/internal/agent/model"
	"github.com/web3buddy/server/internal/agent/prompts"
	"github.com/web3buddy/server/internal/agent/tools"
	errx "github.com/web3buddy/server/internal/core/error"
	"github.com/web3buddy/server/internal/history"
	"github.com/web3buddy/server/internal/inquiry"
	logx "github.com/web3buddy/server/pkg/logger"
)

// Graph node names.
const (
	NodeContextBuilder = "ContextBuilder"
	NodeAssembler      = "ContextAssembler"
	NodeDirectExecutor = "DirectExecutor"
	NodeChatModel      = "ChatModel"
	NodeToolExecutor   = "ToolExecutor"
)

const DefaultMaxToolRounds = 10

// normalizeMaxRounds returns a sane default when the provided value is invalid.
func normalizeMaxRounds(n int) int {
	if n <= 0 {
		return DefaultMaxToolRounds
	}
	return n
}

// checkAndMarkRoundLimit evaluates whether another tool round would exceed the
// limit and, if so, marks the state accordingly. Returns true when marked now.
func checkAndMarkRoundLimit(state *model.TurnState, max int) bool {
	max = normalizeMaxRounds(max)
	if !state.ToolLimitReached && state.ToolRoundCount >= max {
		state.ToolLimitReached = true
		return true
	}
	return false
}

// incrementRoundAndCheck increments the count and marks the state if it
// exceeds the limit after incrementing. Returns true when exceeded.
func incrementRoundAndCheck(state *model.TurnState, max int) bool {
	max = normalizeMaxRounds(max)
	state.ToolRoundCount++
	if state.ToolRoundCount > max {
		state.ToolLimitReached = true
		return true
	}
	return false
}

// NewContextBuilderPreHandler creates the pre-handler for the ContextBuilder
// node. It seeds the turn state before anything else runs.
func NewContextBuilderPreHandler() func(context.Context, model.TurnInput, *model.TurnState) (model.TurnInput, error) {
	return func(ctx context.Context, in model.TurnInput, s *model.TurnState) (model.TurnInput, error) {
		if s.ConversationID == "" {
			s.ConversationID = in.ConversationID
		}
		s.ToolRoundCount = 0
		s.ToolLimitReached = false
		return in, nil
	}
}

// NewContextBuilderNode creates the ContextBuilder node. It loads the
// conversation log, renders the system prompt, assembles the model-facing
// context and detects EXECUTE commands that bypass model tool selection.
func NewContextBuilderNode(
	store history.Store,
	promptCfg model.PromptConfig,
	maxTurns int,
) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.TurnInput) (*model.TurnPlan, error) {
		systemPrompt, err := prompts.RenderSystem(ctx, promptCfg)
		if err != nil {
			return nil, fmt.Errorf("render system prompt: %w", err)
		}

		stored, err := store.Range(ctx, input.ConversationID, 0, -1)
		if err != nil {
			return nil, fmt.Errorf("load conversation history: %w", err)
		}

		messages := []*schema.Message{schema.SystemMessage(systemPrompt)}
		messages = append(messages, contextMessages(stored, maxTurns)...)

		// The log may not yet contain the current query when the
		// best-effort user append failed; the model must still see it.
		if last := lastMessage(messages); last == nil || last.Role != schema.User || last.Content != input.Query {
			messages = append(messages, schema.UserMessage(input.Query))
		}

		plan := &model.TurnPlan{Messages: messages}
		if inquiry.IsCommand(input.Query) {
			cmd, err := inquiry.ParseCommand(input.Query)
			if err != nil {
				return nil, errx.Wrap(errx.ErrInvalidToolArguments, err)
			}
			plan.Command = cmd
			logx.Info().
				Str("conversation_id", input.ConversationID).
				Str("tool", cmd.Tool).
				Int("values", len(cmd.Values)).
				Msg("direct tool command detected")
		}
		return plan, nil
	})
}

// contextMessages converts the stored log (most-recent-first) into the
// chronological tail the model sees, limited to maxTurns messages.
func contextMessages(stored []history.Message, maxTurns int) []*schema.Message {
	chronological := make([]*schema.Message, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		m := stored[i]
		if strings.TrimSpace(m.Data.Content) == "" {
			continue
		}
		switch m.Type {
		case history.RoleUser:
			chronological = append(chronological, schema.UserMessage(m.Data.Content))
		case history.RoleAssistant:
			chronological = append(chronological, schema.AssistantMessage(m.Data.Content, nil))
		}
	}
	if maxTurns > 0 && len(chronological) > maxTurns {
		chronological = chronological[len(chronological)-maxTurns:]
	}
	return chronological
}

func lastMessage(messages []*schema.Message) *schema.Message {
	if len(messages) == 0 {
		return nil
	}
	return messages[len(messages)-1]
}

// NewCommandCondition routes EXECUTE turns to the direct executor and
// everything else to the assembler.
func NewCommandCondition() func(context.Context, *model.TurnPlan) (string, error) {
	return func(ctx context.Context, plan *model.TurnPlan) (string, error) {
		if plan.Command != nil {
			return NodeDirectExecutor, nil
		}
		return NodeAssembler, nil
	}
}

// NewAssemblerNode creates the Assembler node, a pass-through that exposes
// the plan's message context to the chat model.
func NewAssemblerNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, plan *model.TurnPlan) ([]*schema.Message, error) {
		return plan.Messages, nil
	})
}

// NewDirectExecutorNode creates the DirectExecutor node. It dispatches an
// EXECUTE command straight to the named tool, then hands the model a
// synthesized tool round so it can phrase the result for the user. Dispatch
// failures become recoverable observations, never turn aborts.
func NewDirectExecutorNode(registry *tools.Registry) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, plan *model.TurnPlan) ([]*schema.Message, error) {
		cmd := plan.Command
		result := runCommand(ctx, registry, cmd)

		callID := uuid.NewString()
		assistant := &schema.Message{
			Role: schema.Assistant,
			ToolCalls: []schema.ToolCall{
				{
					ID: callID,
					Function: schema.FunctionCall{
						Name:      cmd.Tool,
						Arguments: result.arguments,
					},
				},
			},
		}

		messages := append(plan.Messages, assistant, schema.ToolMessage(result.output, callID, schema.WithToolName(cmd.Tool)))
		return messages, nil
	})
}

type commandResult struct {
	arguments string
	output    string
}

func runCommand(ctx context.Context, registry *tools.Registry, cmd *inquiry.Command) commandResult {
	def, ok := registry.Lookup(cmd.Tool)
	if !ok {
		logx.Warn().Str("tool", cmd.Tool).Msg("command names an unregistered tool")
		return commandResult{
			arguments: "{}",
			output:    tools.Observation(cmd.Tool, fmt.Errorf("unknown tool %q", cmd.Tool)),
		}
	}

	arguments, err := def.ArgumentsFromValues(cmd.Values)
	if err != nil {
		return commandResult{
			arguments: "{}",
			output:    tools.Observation(cmd.Tool, err),
		}
	}

	out, err := def.Execute(ctx, arguments)
	if err != nil {
		logx.Warn().Str("tool", cmd.Tool).Err(err).Msg("direct tool dispatch failed")
		return commandResult{arguments: arguments, output: tools.Observation(cmd.Tool, err)}
	}
	return commandResult{arguments: arguments, output: out}
}

// NewChatModelPreHandler creates the pre-handler for the ChatModel node. It
// folds incoming messages into the turn history, repairs tool results that
// arrive without a tool_call_id and injects the wrap-up notice once the tool
// round limit is hit.
func NewChatModelPreHandler(maxRounds int) func(context.Context, []*schema.Message, *model.TurnState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, state *model.TurnState) ([]*schema.Message, error) {
		// Heuristic fix for providers that omit tool_call_id on results.
		if len(in) > 0 {
			last := in[len(in)-1]
			if last != nil && last.Role == schema.Tool && strings.TrimSpace(last.ToolCallID) == "" {
				for i := len(state.History) - 1; i >= 0; i-- {
					msg := state.History[i]
					if msg == nil || msg.Role != schema.Assistant || len(msg.ToolCalls) == 0 {
						continue
					}
					if id := strings.TrimSpace(msg.ToolCalls[0].ID); id != "" {
						last.ToolCallID = id
					}
					break
				}
			}
		}

		state.History = append(state.History, in...)

		if checkAndMarkRoundLimit(state, maxRounds) {
			maxRounds = normalizeMaxRounds(maxRounds)
			wrapUp := &schema.Message{
				Role: schema.System,
				Content: fmt.Sprintf(
					"SYSTEM NOTICE: You have reached the maximum tool round limit (%d). "+
						"Synthesize a helpful response using the information you have already gathered "+
						"and acknowledge any remaining gaps.",
					maxRounds,
				),
			}
			state.History = append(state.History, wrapUp)
		}

		return state.History, nil
	}
}

// NewChatModelPostHandler creates the post-handler for the ChatModel node.
// It normalizes tool call IDs, records the output in the turn history and
// fails the turn when the model keeps tool-calling past the round limit with
// nothing to say.
func NewChatModelPostHandler() func(context.Context, *schema.Message, *model.TurnState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.TurnState) (*schema.Message, error) {
		if out == nil {
			return nil, errx.Wrap(errx.ErrUpstreamCompletion, fmt.Errorf("model returned no message"))
		}

		// Some providers omit tool_call IDs; synthesize stable ones.
		for i := range out.ToolCalls {
			if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
				out.ToolCalls[i].ID = uuid.NewString()
			}
		}

		state.History = append(state.History, out)

		if state.ToolLimitReached && len(out.ToolCalls) > 0 && strings.TrimSpace(out.Content) == "" {
			logx.Warn().
				Str("conversation_id", state.ConversationID).
				Int("tool_rounds", state.ToolRoundCount).
				Msg("model is still requesting tools past the round limit")
			return nil, errx.Wrap(errx.ErrAgentLoopExceeded,
				fmt.Errorf("no answer after %d tool rounds", state.ToolRoundCount))
		}

		if len(out.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(out.ToolCalls)).Msg("model requested tools")
		} else {
			logx.Debug().Msg("model produced an answer")
		}
		return out, nil
	}
}

// NewToolExecutorCondition routes the model output either into another tool
// round or to the end of the graph.
func NewToolExecutorCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		var limitReached bool
		compose.ProcessState(ctx, func(_ context.Context, state *model.TurnState) error {
			limitReached = state.ToolLimitReached
			return nil
		})

		if limitReached {
			logx.Debug().Msg("tool round limit reached, routing to end")
			return compose.END, nil
		}
		if len(input.ToolCalls) > 0 {
			return NodeToolExecutor, nil
		}
		return compose.END, nil
	}
}

// NewToolExecutorPreHandler creates the pre-handler for the ToolExecutor
// node, counting tool rounds against the turn's limit.
func NewToolExecutorPreHandler(maxRounds int) func(context.Context, *schema.Message, *model.TurnState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *model.TurnState) (*schema.Message, error) {
		exceeded := incrementRoundAndCheck(state, maxRounds)

		logx.Debug().
			Int("tool_round", state.ToolRoundCount).
			Str("conversation_id", state.ConversationID).
			Msg("tool execution round")

		if exceeded {
			logx.Warn().
				Int("tool_round", state.ToolRoundCount).
				Int("max_rounds", normalizeMaxRounds(maxRounds)).
				Str("conversation_id", state.ConversationID).
				Msg("tool round limit exceeded, flagging and continuing")
		}
		return in, nil
	}
}
