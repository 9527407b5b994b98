// Package agent composes the turn-processing graph: context assembly, the
// think/act loop between the chat model and the tool executor, and the
// direct-dispatch path for EXECUTE commands.
package agent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	agentmodel "github.com/web3buddy/server/internal/agent/model"
	"github.com/web3buddy/server/internal/agent/tools"
	"github.com/web3buddy/server/internal/history"
	logx "github.com/web3buddy/server/pkg/logger"
)

// Config holds everything needed to compose the turn graph end-to-end.
type Config struct {
	ChatModel    model.ToolCallingChatModel
	Store        history.Store
	Registry     *tools.Registry
	Prompt       agentmodel.PromptConfig
	Conversation agentmodel.ConversationConfig
}

// GraphBuilder handles the construction of the turn graph.
type GraphBuilder struct {
	config *Config
	graph  *compose.Graph[agentmodel.TurnInput, *schema.Message]
}

// BuildGraph constructs and compiles the turn graph.
func BuildGraph(ctx context.Context, config *Config) (compose.Runnable[agentmodel.TurnInput, *schema.Message], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.ChatModel == nil {
		return nil, fmt.Errorf("chat model is nil")
	}
	if config.Store == nil {
		return nil, fmt.Errorf("history store is nil")
	}
	if config.Registry == nil {
		return nil, fmt.Errorf("tool registry is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[agentmodel.TurnInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *agentmodel.TurnState {
				return &agentmodel.TurnState{}
			}),
		),
	}

	if err := builder.addNodes(ctx); err != nil {
		return nil, err
	}
	builder.addEdges()
	if err := builder.addBranches(); err != nil {
		return nil, err
	}
	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph.
func (b *GraphBuilder) addNodes(ctx context.Context) error {
	maxRounds := b.config.Conversation.Tools.MaxRounds

	b.graph.AddLambdaNode(NodeContextBuilder,
		NewContextBuilderNode(b.config.Store, b.config.Prompt, b.config.Conversation.MaxTurns),
		compose.WithStatePreHandler(NewContextBuilderPreHandler()),
	)

	b.graph.AddLambdaNode(NodeAssembler, NewAssemblerNode())
	b.graph.AddLambdaNode(NodeDirectExecutor, NewDirectExecutorNode(b.config.Registry))

	boundModel, err := b.config.ChatModel.WithTools(b.config.Registry.Infos())
	if err != nil {
		logx.Error().Err(err).Msg("failed to bind tools to chat model")
		return fmt.Errorf("bind tools to chat model: %w", err)
	}
	b.graph.AddChatModelNode(NodeChatModel, boundModel,
		compose.WithStatePreHandler(NewChatModelPreHandler(maxRounds)),
		compose.WithStatePostHandler(NewChatModelPostHandler()),
	)

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               b.config.Registry.BaseTools(),
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			// Gracefully handle hallucinated or malformed tool calls.
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Msg("unknown tool call, returning fallback result")
			return tools.Observation(name, fmt.Errorf("unknown tool %q", name)), nil
		},
		ToolArgumentsHandler: tools.SanitizeArguments,
	})
	if err != nil {
		logx.Error().Err(err).Msg("failed to create tools node")
		return fmt.Errorf("create tools node: %w", err)
	}
	b.graph.AddToolsNode(NodeToolExecutor, toolsNode,
		compose.WithStatePreHandler(NewToolExecutorPreHandler(maxRounds)),
	)
	return nil
}

// addEdges creates the main flow connections between nodes.
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, NodeContextBuilder},
		{NodeAssembler, NodeChatModel},
		{NodeDirectExecutor, NodeChatModel},
		{NodeToolExecutor, NodeChatModel},
	}
	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranches creates conditional routing branches.
func (b *GraphBuilder) addBranches() error {
	commandBranch := compose.NewGraphBranch(
		NewCommandCondition(),
		map[string]bool{
			NodeDirectExecutor: true,
			NodeAssembler:      true,
		},
	)
	if err := b.graph.AddBranch(NodeContextBuilder, commandBranch); err != nil {
		logx.Error().Err(err).Msg("error adding command branch")
		return fmt.Errorf("add command branch: %w", err)
	}

	decisionBranch := compose.NewGraphBranch(
		NewToolExecutorCondition(),
		map[string]bool{
			NodeToolExecutor: true,
			compose.END:      true,
		},
	)
	if err := b.graph.AddBranch(NodeChatModel, decisionBranch); err != nil {
		logx.Error().Err(err).Msg("error adding decision branch")
		return fmt.Errorf("add decision branch: %w", err)
	}
	return nil
}

// compile finalizes and compiles the graph.
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[agentmodel.TurnInput, *schema.Message], error) {
	// Limit total run steps to avoid infinite loops in branching or tool retries.
	maxSteps := 10 + normalizeMaxRounds(b.config.Conversation.Tools.MaxRounds)*2
	if maxSteps < 20 {
		maxSteps = 20
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("error compiling graph")
		return nil, fmt.Errorf("compile graph: %w", err)
	}

	logx.Debug().Msg("turn graph compiled")
	return runnable, nil
}
