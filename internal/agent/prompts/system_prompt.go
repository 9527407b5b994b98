package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/web3buddy/server/internal/agent/model"
	"github.com/web3buddy/server/internal/agent/tools"
)

//go:embed template/system_prompt.txt
var coreSystemPrompt string

// RenderSystem renders the assistant's system prompt and triggers prompt
// callbacks.
func RenderSystem(ctx context.Context, config model.PromptConfig) (string, error) {
	// Render via Eino prompt component (Go template) to both format and emit callbacks
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(coreSystemPrompt),
	)
	vars := map[string]any{
		"AssistantName":  config.AssistantName,
		"ProtocolName":   config.ProtocolName,
		"CalculatorTool": tools.ToolCalculator,
		"RetrieverTool":  tools.ToolRetriever,
		"WebSearchTool":  tools.ToolWebSearch,
		"SubgraphTool":   tools.ToolSubgraph,
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("system prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("system prompt render: empty result")
	}
	return msgs[0].Content, nil
}
