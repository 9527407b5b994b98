package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	errx "github.com/web3buddy/server/internal/core/error"
)

// SubgraphConfig points at the sibling subgraph-generation service.
type SubgraphConfig struct {
	URL        string `envconfig:"SUBGRAPH_SERVICE_URL" default:"http://localhost:3001/create-subgraph"`
	TimeoutSec int    `envconfig:"SUBGRAPH_TIMEOUT" default:"60"`
}

// SubgraphRequest is the fixed wire schema of the remote service.
type SubgraphRequest struct {
	Contract   string `json:"contract"`
	Network    string `json:"network"`
	StartBlock string `json:"startBlock"`
	Protocol   string `json:"protocol"`
	Slug       string `json:"slug"`
	RepoName   string `json:"repoName"`
}

// SubgraphClient invokes the remote create-subgraph action.
type SubgraphClient struct {
	cfg    SubgraphConfig
	client *http.Client
}

func NewSubgraphClient(cfg SubgraphConfig) *SubgraphClient {
	return &SubgraphClient{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second},
	}
}

// Create posts the request and returns the remote response body verbatim
// (typically a generated sandbox link). Non-2xx statuses surface as
// errx.ErrToolExecution.
func (c *SubgraphClient) Create(ctx context.Context, in SubgraphRequest) (string, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal subgraph request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", errx.Wrap(errx.ErrToolExecution, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errx.Wrap(errx.ErrToolExecution, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errx.Wrap(errx.ErrToolExecution, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errx.Wrap(errx.ErrToolExecution, fmt.Errorf("subgraph service returned status %d", resp.StatusCode))
	}
	return string(data), nil
}

type SubgraphInput struct {
	Contract   string `json:"contract"`
	Network    string `json:"network"`
	StartBlock string `json:"startBlock"`
	Protocol   string `json:"protocol"`
	Slug       string `json:"slug"`
	RepoName   string `json:"repoName"`
}

func newSubgraphDefinition(c *SubgraphClient) *Definition {
	params := []Param{
		{Name: "contract", Type: "string", Desc: "The contract address for the subgraph", Required: true},
		{Name: "network", Type: "string", Desc: "The network for the subgraph", Required: true},
		{Name: "startBlock", Type: "string", Desc: "The start block for the subgraph", Required: true},
		{Name: "protocol", Type: "string", Desc: "The protocol for the subgraph", Required: true},
		{Name: "slug", Type: "string", Desc: "The name of the slug for the subgraph", Required: true},
		{Name: "repoName", Type: "string", Desc: "The name of the repo for the subgraph", Required: true},
	}
	infoParams := make(map[string]*schema.ParameterInfo, len(params))
	for _, p := range params {
		infoParams[p.Name] = &schema.ParameterInfo{Type: "string", Desc: p.Desc, Required: true}
	}
	impl := utils.NewTool(
		&schema.ToolInfo{
			Name:        ToolSubgraph,
			Desc:        "Create a subgraph for TheGraph Protocol. Requires the contract address, network, start block, protocol, slug and repo name; ask the user for any value you do not have before calling this tool. Returns the generated sandbox link.",
			ParamsOneOf: schema.NewParamsOneOfByParams(infoParams),
		},
		func(ctx context.Context, in *SubgraphInput) (string, error) {
			return c.Create(ctx, SubgraphRequest{
				Contract:   in.Contract,
				Network:    in.Network,
				StartBlock: in.StartBlock,
				Protocol:   in.Protocol,
				Slug:       in.Slug,
				RepoName:   in.RepoName,
			})
		},
	)
	return newDefinition(ToolSubgraph,
		"Invoke the sibling subgraph-generation service.",
		params, impl)
}
