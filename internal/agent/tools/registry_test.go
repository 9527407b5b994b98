package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/web3buddy/server/internal/core/error"
)

// fakeInvokable is a scriptable tool implementation for exercising the
// registry plumbing without touching any external service.
type fakeInvokable struct {
	name    string
	out     string
	err     error
	called  int
	gotArgs string
}

func (f *fakeInvokable) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{Name: f.name}, nil
}

func (f *fakeInvokable) InvokableRun(ctx context.Context, argumentsJSON string, opts ...tool.Option) (string, error) {
	f.called++
	f.gotArgs = argumentsJSON
	return f.out, f.err
}

func newTestDefinition(impl *fakeInvokable) *Definition {
	return newDefinition("deploy", "Deploy something.", []Param{
		{Name: "target", Type: "string", Desc: "Deployment target.", Required: true},
		{Name: "replicas", Type: "number", Desc: "Replica count.", Required: true},
		{Name: "dryRun", Type: "boolean", Desc: "Skip side effects.", Required: false},
	}, impl)
}

func TestRegistryBuiltins(t *testing.T) {
	r := NewRegistry(nil, nil, nil)

	d, ok := r.Lookup(ToolCalculator)
	require.True(t, ok)
	assert.Equal(t, ToolCalculator, d.Name())

	_, ok = r.Lookup(ToolSubgraph)
	assert.False(t, ok, "tools without collaborators stay unregistered")

	infos := r.Infos()
	require.Len(t, infos, 1)
	assert.Equal(t, ToolCalculator, infos[0].Name)
}

func TestValidateArguments(t *testing.T) {
	d := newTestDefinition(&fakeInvokable{name: "deploy"})

	cases := []struct {
		name string
		args string
		ok   bool
	}{
		{"valid", `{"target":"mainnet","replicas":3,"dryRun":true}`, true},
		{"optional omitted", `{"target":"mainnet","replicas":3}`, true},
		{"missing required", `{"target":"mainnet"}`, false},
		{"wrong type", `{"target":7,"replicas":3}`, false},
		{"boolean as string", `{"target":"mainnet","replicas":3,"dryRun":"yes"}`, false},
		{"not an object", `["mainnet"]`, false},
		{"not json", `target=mainnet`, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := d.ValidateArguments(tc.args)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.ErrorIs(t, err, errx.ErrInvalidToolArguments)
			}
		})
	}
}

func TestArgumentsFromValues(t *testing.T) {
	d := newTestDefinition(&fakeInvokable{name: "deploy"})

	args, err := d.ArgumentsFromValues([]any{"mainnet", float64(3), true})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(args), &m))
	assert.Equal(t, "mainnet", m["target"])
	assert.Equal(t, float64(3), m["replicas"])
	assert.Equal(t, true, m["dryRun"])
}

func TestArgumentsFromValuesCoercesDeclaredStrings(t *testing.T) {
	d := newDefinition("lookup", "Lookup a block.", []Param{
		{Name: "block", Type: "string", Desc: "Block number.", Required: true},
	}, &fakeInvokable{name: "lookup"})

	// EXECUTE commands carry bare numerals; a string-declared parameter
	// still has to arrive as a string.
	args, err := d.ArgumentsFromValues([]any{float64(19000000)})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(args), &m))
	assert.Equal(t, "1.9e+07", m["block"])
}

func TestArgumentsFromValuesCountMismatch(t *testing.T) {
	d := newTestDefinition(&fakeInvokable{name: "deploy"})

	_, err := d.ArgumentsFromValues([]any{"mainnet"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errx.ErrInvalidToolArguments)
}

func TestGuardedToolRejectsInvalidArguments(t *testing.T) {
	impl := &fakeInvokable{name: "deploy", out: "ok"}
	g := &guardedTool{def: newTestDefinition(impl)}

	out, err := g.InvokableRun(context.Background(), `{"target":"mainnet"}`)
	require.NoError(t, err)
	assert.Zero(t, impl.called, "invalid arguments must not reach the tool")

	var obs map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &obs))
	assert.Equal(t, "deploy", obs["tool"])
	assert.Equal(t, true, obs["recoverable"])
	assert.Contains(t, obs["error"], "replicas")
}

func TestGuardedToolConvertsExecutionFailure(t *testing.T) {
	impl := &fakeInvokable{name: "deploy", err: errors.New("upstream exploded")}
	g := &guardedTool{def: newTestDefinition(impl)}

	out, err := g.InvokableRun(context.Background(), `{"target":"mainnet","replicas":2}`)
	require.NoError(t, err)
	assert.Equal(t, 1, impl.called)

	var obs map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &obs))
	assert.Equal(t, true, obs["recoverable"])
	assert.Contains(t, obs["error"], "upstream exploded")
}

func TestGuardedToolPassesThroughSuccess(t *testing.T) {
	impl := &fakeInvokable{name: "deploy", out: `{"status":"deployed"}`}
	g := &guardedTool{def: newTestDefinition(impl)}

	out, err := g.InvokableRun(context.Background(), `{"target":"mainnet","replicas":2}`)
	require.NoError(t, err)
	assert.Equal(t, `{"status":"deployed"}`, out)
	assert.Equal(t, `{"target":"mainnet","replicas":2}`, impl.gotArgs)
}

func TestSanitizeArguments(t *testing.T) {
	out, err := SanitizeArguments(context.Background(), "deploy", `{"target":"  mainnet  ","replicas":2}`)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Equal(t, "mainnet", m["target"])
	assert.Equal(t, float64(2), m["replicas"])

	// Non-JSON input passes through untouched for validation to reject.
	out, err = SanitizeArguments(context.Background(), "deploy", "not json")
	require.NoError(t, err)
	assert.Equal(t, "not json", out)
}
