// Package tools is the fixed registry of capabilities the agent can invoke:
// an arithmetic evaluator, semantic retrieval over the indexed corpus, web
// search, and remote subgraph creation. Every tool declares an ordered
// parameter schema; arguments are validated against it before any side
// effect.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	errx "github.com/web3buddy/server/internal/core/error"
	logx "github.com/web3buddy/server/pkg/logger"
)

// Registered tool names.
const (
	ToolCalculator = "calculator"
	ToolRetriever  = "thegraph_search"
	ToolWebSearch  = "web_search"
	ToolSubgraph   = "subgraph_creation"
)

// Param is one declared tool parameter. Declaration order matters: it is the
// positional order EXECUTE commands supply values in.
type Param struct {
	Name     string
	Type     string // "string", "number" or "boolean"
	Desc     string
	Required bool
}

// Definition couples a tool's declared schema with its executor.
type Definition struct {
	name   string
	desc   string
	params []Param
	impl   tool.InvokableTool
}

func newDefinition(name, desc string, params []Param, impl tool.InvokableTool) *Definition {
	return &Definition{name: name, desc: desc, params: params, impl: impl}
}

func (d *Definition) Name() string { return d.name }

// Params returns the schema in declaration order.
func (d *Definition) Params() []Param { return d.params }

// Info builds the model-facing tool declaration.
func (d *Definition) Info() *schema.ToolInfo {
	m := make(map[string]*schema.ParameterInfo, len(d.params))
	for _, p := range d.params {
		m[p.Name] = &schema.ParameterInfo{
			Type:     schema.DataType(p.Type),
			Desc:     p.Desc,
			Required: p.Required,
		}
	}
	return &schema.ToolInfo{
		Name:        d.name,
		Desc:        d.desc,
		ParamsOneOf: schema.NewParamsOneOfByParams(m),
	}
}

// ValidateArguments checks the JSON arguments against the declared schema:
// all required fields present, all present fields of the declared primitive
// type. It never executes anything.
func (d *Definition) ValidateArguments(argumentsJSON string) error {
	var args map[string]any
	if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
		return errx.Wrap(errx.ErrInvalidToolArguments, fmt.Errorf("arguments are not a JSON object: %w", err))
	}
	for _, p := range d.params {
		v, ok := args[p.Name]
		if !ok {
			if p.Required {
				return errx.Wrap(errx.ErrInvalidToolArguments, fmt.Errorf("missing required field %q", p.Name))
			}
			continue
		}
		if !typeMatches(p.Type, v) {
			return errx.Wrap(errx.ErrInvalidToolArguments, fmt.Errorf("field %q must be a %s", p.Name, p.Type))
		}
	}
	return nil
}

func typeMatches(declared string, v any) bool {
	switch declared {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		_, ok := v.(float64)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	default:
		return false
	}
}

// ArgumentsFromValues maps positional values onto the declared parameters in
// order, producing the JSON arguments for a direct invocation.
func (d *Definition) ArgumentsFromValues(values []any) (string, error) {
	if len(values) != len(d.params) {
		return "", errx.Wrap(errx.ErrInvalidToolArguments,
			fmt.Errorf("%s expects %d values, got %d", d.name, len(d.params), len(values)))
	}
	args := make(map[string]any, len(values))
	for i, p := range d.params {
		args[p.Name] = coerceValue(p.Type, values[i])
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("marshal arguments: %w", err)
	}
	return string(b), nil
}

// coerceValue bends EXECUTE literals toward the declared type; values the
// command parser read as numbers may be declared strings (block numbers,
// contract addresses).
func coerceValue(declared string, v any) any {
	if declared == "string" {
		if _, ok := v.(string); !ok {
			return fmt.Sprint(v)
		}
	}
	return v
}

// Execute validates and runs the tool. Validation failures carry
// errx.ErrInvalidToolArguments and happen before any side effect.
func (d *Definition) Execute(ctx context.Context, argumentsJSON string) (string, error) {
	if err := d.ValidateArguments(argumentsJSON); err != nil {
		return "", err
	}
	return d.impl.InvokableRun(ctx, argumentsJSON)
}

// Registry is the fixed tool set for a deployment.
type Registry struct {
	defs   []*Definition
	byName map[string]*Definition
}

// NewRegistry assembles the built-in tool set. Nil collaborators disable the
// corresponding tool, which keeps local runs working without every
// credential configured.
func NewRegistry(retriever *Retriever, searcher *WebSearcher, subgraphs *SubgraphClient) *Registry {
	r := &Registry{byName: map[string]*Definition{}}
	r.add(newCalculatorDefinition())
	if retriever != nil {
		r.add(newRetrieverDefinition(retriever))
	}
	if searcher != nil {
		r.add(newWebSearchDefinition(searcher))
	}
	if subgraphs != nil {
		r.add(newSubgraphDefinition(subgraphs))
	}
	return r
}

func (r *Registry) add(d *Definition) {
	r.defs = append(r.defs, d)
	r.byName[d.name] = d
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (*Definition, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Infos returns the model-facing declarations for tool binding.
func (r *Registry) Infos() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(r.defs))
	for _, d := range r.defs {
		infos = append(infos, d.Info())
	}
	return infos
}

// BaseTools returns guarded executors for the graph's tool node. The guard
// validates arguments first and converts every failure into a structured
// observation the model can recover from, so a bad tool round re-enters the
// thinking step instead of aborting the turn.
func (r *Registry) BaseTools() []tool.BaseTool {
	ts := make([]tool.BaseTool, 0, len(r.defs))
	for _, d := range r.defs {
		ts = append(ts, &guardedTool{def: d})
	}
	return ts
}

type guardedTool struct {
	def *Definition
}

func (g *guardedTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return g.def.Info(), nil
}

func (g *guardedTool) InvokableRun(ctx context.Context, argumentsJSON string, opts ...tool.Option) (string, error) {
	if err := g.def.ValidateArguments(argumentsJSON); err != nil {
		logx.Warn().Str("tool", g.def.name).Err(err).Msg("rejecting tool call with invalid arguments")
		return Observation(g.def.name, err), nil
	}
	out, err := g.def.impl.InvokableRun(ctx, argumentsJSON, opts...)
	if err != nil {
		logx.Warn().Str("tool", g.def.name).Err(err).Msg("tool execution failed, feeding error back to the model")
		return Observation(g.def.name, err), nil
	}
	return out, nil
}

var _ tool.InvokableTool = (*guardedTool)(nil)

// Observation renders a recoverable tool failure as a compact JSON record
// the model can act on.
func Observation(toolName string, err error) string {
	return fmt.Sprintf(`{"error":%q,"tool":%q,"recoverable":true}`, err.Error(), toolName)
}

// SanitizeArguments is the best-effort argument cleanup applied before
// dispatch: trims string fields and leaves everything else alone. It never
// fails hard; non-JSON input passes through for validation to reject.
func SanitizeArguments(ctx context.Context, name, argumentsJSON string) (string, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(argumentsJSON), &m); err != nil {
		return argumentsJSON, nil
	}
	for k, v := range m {
		if s, ok := v.(string); ok {
			m[k] = strings.TrimSpace(s)
		}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return argumentsJSON, nil
	}
	return string(b), nil
}
