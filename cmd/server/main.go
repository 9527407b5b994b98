package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/web3buddy/server/internal/agent"
	agentmodel "github.com/web3buddy/server/internal/agent/model"
	"github.com/web3buddy/server/internal/agent/tools"
	"github.com/web3buddy/server/internal/core"
	"github.com/web3buddy/server/internal/history"
	"github.com/web3buddy/server/internal/server"
	logx "github.com/web3buddy/server/pkg/logger"
	pkgredis "github.com/web3buddy/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the server, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	Port        string `envconfig:"PORT" default:"8080"`

	// Infrastructure
	Redis pkgredis.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	ChatModel    agentmodel.ChatModelConfig
	Prompt       agentmodel.PromptConfig
	Conversation agentmodel.ConversationConfig

	// Tool configs
	Retriever tools.RetrieverConfig
	WebSearch tools.WebSearchConfig
	Subgraph  tools.SubgraphConfig
}

func main() {
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		logx.Warn().Err(err).Msg("could not load .env file")
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logx.Fatal().Err(err).Msg("failed to process environment config")
	}

	env := core.ParseEnvironment(cfg.Environment)
	logx.Init(logx.LoggerOpts{Environment: env})
	logger := logx.Logger()

	rdb, err := cfg.Redis.New()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise Redis client")
	}
	defer rdb.Close()
	logger.Info().Msg("connected to Redis")

	ttl, err := time.ParseDuration(cfg.Conversation.TTL)
	if err != nil {
		logger.Fatal().Str("ttl", cfg.Conversation.TTL).Err(err).Msg("invalid CONVERSATION_TTL")
	}
	store := history.NewRedisStore(rdb, ttl)

	retriever, err := tools.NewRetriever(ctx, cfg.Retriever)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise corpus retriever")
	}

	var searcher *tools.WebSearcher
	if cfg.WebSearch.APIKey != "" {
		searcher = tools.NewWebSearcher(cfg.WebSearch)
	} else {
		logger.Warn().Msg("TAVILY_API_KEY not set, web search tool disabled")
	}

	registry := tools.NewRegistry(retriever, searcher, tools.NewSubgraphClient(cfg.Subgraph))

	chatModel, err := agent.NewChatModel(ctx, agent.ChatModelParams{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Config:  cfg.ChatModel,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise chat model")
	}

	loop, err := agent.NewLoop(ctx, &agent.Config{
		ChatModel:    chatModel,
		Store:        store,
		Registry:     registry,
		Prompt:       cfg.Prompt,
		Conversation: cfg.Conversation,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build turn graph")
	}

	handler := server.NewHandler(store, loop)
	router := server.NewRouter(handler, logger)

	// No WriteTimeout: the chat endpoint streams for the lifetime of a turn.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", env.String()).
			Msg("starting web3buddy server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
