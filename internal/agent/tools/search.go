package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	errx "github.com/web3buddy/server/internal/core/error"
)

// WebSearchConfig configures the external search provider.
type WebSearchConfig struct {
	APIKey     string `envconfig:"TAVILY_API_KEY"`
	BaseURL    string `envconfig:"TAVILY_BASE_URL" default:"https://api.tavily.com"`
	MaxResults int    `envconfig:"TAVILY_MAX_RESULTS" default:"5"`
	TimeoutSec int    `envconfig:"TAVILY_TIMEOUT" default:"15"`
}

// WebSearcher delegates free-text queries to the Tavily search API and
// flattens the ranked results to text.
type WebSearcher struct {
	cfg    WebSearchConfig
	client *http.Client
}

func NewWebSearcher(cfg WebSearchConfig) *WebSearcher {
	return &WebSearcher{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second},
	}
}

type searchRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search runs one query. Network failures and non-2xx statuses surface as
// errx.ErrToolExecution.
func (s *WebSearcher) Search(ctx context.Context, query string) (string, error) {
	body, err := json.Marshal(searchRequest{
		APIKey:     s.cfg.APIKey,
		Query:      query,
		MaxResults: s.cfg.MaxResults,
	})
	if err != nil {
		return "", fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return "", errx.Wrap(errx.ErrToolExecution, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", errx.Wrap(errx.ErrToolExecution, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errx.Wrap(errx.ErrToolExecution, fmt.Errorf("search provider returned status %d", resp.StatusCode))
	}

	var parsed searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return "", errx.Wrap(errx.ErrToolExecution, fmt.Errorf("decode search response: %w", err))
	}

	var sb strings.Builder
	if parsed.Answer != "" {
		sb.WriteString(parsed.Answer)
		sb.WriteString("\n\n")
	}
	for i, r := range parsed.Results {
		fmt.Fprintf(&sb, "%d. %s (%s)\n%s\n", i+1, r.Title, r.URL, r.Content)
	}
	if sb.Len() == 0 {
		return "No web results found.", nil
	}
	return sb.String(), nil
}

type WebSearchInput struct {
	Query string `json:"query"`
}

func newWebSearchDefinition(s *WebSearcher) *Definition {
	params := []Param{
		{
			Name:     "query",
			Type:     "string",
			Desc:     "Query to search the web for.",
			Required: true,
		},
	}
	impl := utils.NewTool(
		&schema.ToolInfo{
			Name:        ToolWebSearch,
			Desc:        "Search the web for current information the documentation does not cover, such as recent news or ecosystem updates.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     "string",
					Desc:     params[0].Desc,
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *WebSearchInput) (string, error) {
			return s.Search(ctx, in.Query)
		},
	)
	return newDefinition(ToolWebSearch,
		"Search the web and return ranked results as text.",
		params, impl)
}
