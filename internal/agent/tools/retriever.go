package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/pinecone-io/go-pinecone/v3/pinecone"

	errx "github.com/web3buddy/server/internal/core/error"
	logx "github.com/web3buddy/server/pkg/logger"
)

// RetrieverConfig configures the corpus retriever: a Pinecone index of
// protocol documentation queried by embedding similarity.
type RetrieverConfig struct {
	APIKey       string `envconfig:"PINECONE_API_KEY" required:"true"`
	Host         string `envconfig:"PINECONE_INDEX_HOST" required:"true"`
	Namespace    string `envconfig:"PINECONE_NAMESPACE" default:"thegraph-docs"`
	TopK         int    `envconfig:"PINECONE_TOP_K" default:"4"`
	EmbedAPIKey  string `envconfig:"OPENAI_API_KEY" required:"true"`
	EmbedModel   string `envconfig:"EMBED_MODEL" default:"text-embedding-3-small"`
	MetadataText string `envconfig:"PINECONE_TEXT_FIELD" default:"text"`
}

// Retriever queries the vector index for passages semantically relevant to
// free-text input. It never mutates index state.
type Retriever struct {
	index     *pinecone.IndexConnection
	embed     openai.Client
	model     string
	topK      int
	textField string
}

// NewRetriever connects to the index host and prepares the embedding client.
func NewRetriever(ctx context.Context, cfg RetrieverConfig) (*Retriever, error) {
	pc, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("create pinecone client: %w", err)
	}
	idx, err := pc.Index(pinecone.NewIndexConnParams{Host: cfg.Host, Namespace: cfg.Namespace})
	if err != nil {
		return nil, fmt.Errorf("connect to pinecone index: %w", err)
	}
	return &Retriever{
		index:     idx,
		embed:     openai.NewClient(option.WithAPIKey(cfg.EmbedAPIKey)),
		model:     cfg.EmbedModel,
		topK:      cfg.TopK,
		textField: cfg.MetadataText,
	}, nil
}

// Retrieve embeds query and returns the top-k passages concatenated.
func (r *Retriever) Retrieve(ctx context.Context, query string) (string, error) {
	emb, err := r.embed.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(query)},
		Model: openai.EmbeddingModel(r.model),
	})
	if err != nil {
		return "", errx.Wrap(errx.ErrToolExecution, fmt.Errorf("embed query: %w", err))
	}
	if len(emb.Data) == 0 {
		return "", errx.Wrap(errx.ErrToolExecution, fmt.Errorf("embedding response is empty"))
	}

	vector := make([]float32, len(emb.Data[0].Embedding))
	for i, v := range emb.Data[0].Embedding {
		vector[i] = float32(v)
	}

	res, err := r.index.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(r.topK),
		IncludeMetadata: true,
	})
	if err != nil {
		return "", errx.Wrap(errx.ErrToolExecution, fmt.Errorf("query index: %w", err))
	}

	passages := make([]string, 0, len(res.Matches))
	for _, m := range res.Matches {
		if m == nil || m.Vector == nil || m.Vector.Metadata == nil {
			continue
		}
		field, ok := m.Vector.Metadata.Fields[r.textField]
		if !ok {
			continue
		}
		if text := strings.TrimSpace(field.GetStringValue()); text != "" {
			passages = append(passages, text)
		}
	}
	logx.Debug().Int("matches", len(res.Matches)).Int("passages", len(passages)).Msg("corpus retrieval completed")
	return FormatPassages(passages), nil
}

// FormatPassages joins retrieved passages into the single observation string
// handed back to the model.
func FormatPassages(passages []string) string {
	if len(passages) == 0 {
		return "No relevant passages found in the indexed documentation."
	}
	return strings.Join(passages, "\n\n")
}

type RetrieveInput struct {
	Query string `json:"query"`
}

func newRetrieverDefinition(r *Retriever) *Definition {
	params := []Param{
		{
			Name:     "query",
			Type:     "string",
			Desc:     "Free-text question to search the indexed documentation with.",
			Required: true,
		},
	}
	impl := utils.NewTool(
		&schema.ToolInfo{
			Name:        ToolRetriever,
			Desc:        "Search for information about TheGraph Protocol. For any questions about TheGraph, you must use this tool! It can find information about TheGraph Protocol and its ecosystem.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     "string",
					Desc:     params[0].Desc,
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *RetrieveInput) (string, error) {
			return r.Retrieve(ctx, in.Query)
		},
	)
	return newDefinition(ToolRetriever,
		"Search the indexed TheGraph Protocol documentation for relevant passages.",
		params, impl)
}
