package prompts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3buddy/server/internal/agent/model"
	"github.com/web3buddy/server/internal/agent/tools"
)

func TestRenderSystem(t *testing.T) {
	out, err := RenderSystem(context.Background(), model.PromptConfig{
		AssistantName: "Web3Buddy",
		ProtocolName:  "TheGraph Protocol",
	})
	require.NoError(t, err)

	assert.Contains(t, out, "You are Web3Buddy")
	assert.Contains(t, out, "TheGraph Protocol")
	for _, name := range []string{tools.ToolCalculator, tools.ToolRetriever, tools.ToolWebSearch, tools.ToolSubgraph} {
		assert.Contains(t, out, name)
	}
	// The inquiry contract must survive templating verbatim.
	assert.Contains(t, out, `{"content":"<one sentence telling the user what you need>"`)
	assert.Contains(t, out, "EXECUTE <toolName> {params:[value1,value2,...]}")
	assert.NotContains(t, out, "{{", "unrendered template variables")
}
