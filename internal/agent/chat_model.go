package agent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	agentmodel "github.com/web3buddy/server/internal/agent/model"
	logx "github.com/web3buddy/server/pkg/logger"
)

// ChatModelParams holds the connection settings for the chat model.
type ChatModelParams struct {
	APIKey  string
	BaseURL string
	Config  agentmodel.ChatModelConfig
}

// NewChatModel creates the Gemini chat model used by the turn graph.
func NewChatModel(ctx context.Context, params ChatModelParams) (*gemini.ChatModel, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  params.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if params.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = params.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("error creating Gemini client")
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	cm, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       params.Config.Model,
		Temperature: &params.Config.Temperature,
		MaxTokens:   &params.Config.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("error creating chat model")
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	return cm, nil
}
