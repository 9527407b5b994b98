package model

import (
	"github.com/cloudwego/eino/schema"

	"github.com/web3buddy/server/internal/inquiry"
)

// TurnInput is one user turn to process.
type TurnInput struct {
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
}

// TurnPlan is the context builder's output: the model-facing message context
// plus, for EXECUTE turns, the parsed direct tool invocation that bypasses
// model tool selection.
type TurnPlan struct {
	Messages []*schema.Message
	Command  *inquiry.Command
}

// TurnState is the graph-local state for one turn.
// Concurrency model:
//   - Registered via compose.WithGenLocalState; reads/writes happen only
//     inside Eino state handlers (WithStatePreHandler, WithStatePostHandler,
//     compose.ProcessState), which Eino serializes.
//   - Do not touch TurnState outside handlers; cross-turn state lives in the
//     history store.
type TurnState struct {
	ConversationID   string
	History          []*schema.Message // mutated only inside Eino state handlers
	ToolRoundCount   int               // tool-execution rounds this turn
	ToolLimitReached bool              // set once the round cap is hit
}
