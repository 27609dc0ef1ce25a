package llmstream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type weatherInput struct {
	City  string `json:"city" jsonschema:"description=City name"`
	Units string `json:"units,omitempty" jsonschema:"enum=metric,enum=imperial"`
}

func TestSchemaFor(t *testing.T) {
	schema, err := SchemaFor[weatherInput]()
	require.NoError(t, err)

	assert.Equal(t, "object", schema["type"])
	assert.NotContains(t, schema, "$schema")
	assert.NotContains(t, schema, "$ref")
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "city")
	assert.Contains(t, props, "units")
	assert.Equal(t, []any{"city"}, schema["required"])
}

func TestNewFuncTool(t *testing.T) {
	def, exec, err := NewFuncTool("weather", "Current weather",
		func(_ context.Context, in weatherInput) (*ToolResult, error) {
			return TextResult(in.City+"/"+in.Units, false), nil
		})
	require.NoError(t, err)
	assert.Equal(t, "weather", def.Name)
	require.NoError(t, def.Validate())

	result, err := exec.CallTool(context.Background(), def, map[string]any{"city": "Oslo", "units": "metric"})
	require.NoError(t, err)
	assert.Equal(t, TextResult("Oslo/metric", false), result)

	_, err = exec.CallTool(context.Background(), def, map[string]any{"city": 12})
	assert.ErrorContains(t, err, "failed to decode arguments")
}

func TestNewCustomTool_Validation(t *testing.T) {
	_, err := NewCustomTool("", "d", map[string]any{"type": "object"})
	assert.Error(t, err)
	_, err = NewCustomTool("n", "", map[string]any{"type": "object"})
	assert.Error(t, err)
	_, err = NewCustomTool("n", "d", nil)
	assert.Error(t, err)
	_, err = NewCustomTool("n", "d", map[string]any{"type": "array"})
	assert.ErrorContains(t, err, "type 'object'")

	def, err := NewCustomTool("n", "d", map[string]any{"type": "object"})
	require.NoError(t, err)
	assert.Equal(t, "n", def.Name)
}

func TestToolCatalog(t *testing.T) {
	b := &ToolDefinition{Name: "b", InputSchema: map[string]any{"type": "object"}}
	a := &ToolDefinition{Name: "a", InputSchema: map[string]any{
		"type":       "object",
		"properties": map[string]any{"n": map[string]any{"type": "integer"}},
		"required":   []any{"n"},
	}}

	catalog, err := NewToolCatalog(CatalogTool{Definition: b}, CatalogTool{Definition: a})
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.Len())
	defs := catalog.Definitions()
	assert.Equal(t, "a", defs[0].Name, "definitions are sorted")

	tool, ok := catalog.Lookup("a")
	require.True(t, ok)
	assert.NoError(t, tool.ValidateArguments(map[string]any{"n": float64(3)}))
	assert.ErrorIs(t, tool.ValidateArguments(map[string]any{}), ErrInvalidToolArguments)

	_, ok = catalog.Lookup("c")
	assert.False(t, ok)

	_, err = NewToolCatalog(CatalogTool{Definition: a}, CatalogTool{Definition: a})
	assert.ErrorContains(t, err, "defined twice")
	_, err = NewToolCatalog(CatalogTool{})
	assert.Error(t, err)

	bad := &ToolDefinition{Name: "bad", InputSchema: map[string]any{"type": "object", "$ref": "#/$defs/missing"}}
	_, err = NewToolCatalog(CatalogTool{Definition: bad})
	assert.ErrorContains(t, err, "compile schema")

	var empty *ToolCatalog
	assert.Zero(t, empty.Len())
	assert.Nil(t, empty.Definitions())
	_, ok = empty.Lookup("a")
	assert.False(t, ok)
}

func TestToolRegistry(t *testing.T) {
	r := NewToolRegistry()
	def := ToolDefinition{Name: "search", InputSchema: map[string]any{"type": "object"}}

	require.NoError(t, r.Register(def, nil))
	assert.Error(t, r.Register(def, nil), "duplicate registration")
	assert.Error(t, r.Register(ToolDefinition{Name: "x"}, nil), "missing schema")
	assert.True(t, r.IsRegistered("search"))
	assert.Equal(t, []string{"search"}, r.List())

	got, err := r.Get("search")
	require.NoError(t, err)
	assert.Equal(t, def.Name, got.Name)
	_, err = r.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownTool)

	catalog, err := r.Snapshot()
	require.NoError(t, err)
	require.NoError(t, r.Unregister("search"))
	assert.Error(t, r.Unregister("search"))

	// Snapshots are unaffected by later changes
	_, ok := catalog.Lookup("search")
	assert.True(t, ok)
}

func TestToolChoice(t *testing.T) {
	tc, err := NewToolChoice(ToolChoiceModeRequired)
	require.NoError(t, err)
	assert.Equal(t, ToolChoiceModeRequired, tc.Mode)

	_, err = NewToolChoice(ToolChoiceModeSpecific)
	assert.Error(t, err)

	specific, err := NewSpecificToolChoice("search")
	require.NoError(t, err)
	assert.Equal(t, "search", *specific.ToolName)
	_, err = NewSpecificToolChoice("")
	assert.Error(t, err)
}
