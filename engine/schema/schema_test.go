package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/WessleyAI/manualkg/engine/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_ErrorCodeEntry(t *testing.T) {
	reg := Default()

	e, err := reg.Get("HAS_ERROR_CODE")
	require.NoError(t, err)
	assert.True(t, e.IsRelation())
	assert.Equal(t, "HAS_ERROR_CODE", e.LabelValue())
	assert.Equal(t, domain.NodeModel, e.DomainType())
	assert.Equal(t, domain.NodeCause, e.RangeType())
	assert.Equal(t, "Error Messages", reg.IssueType("HAS_ERROR_CODE"))

	props, ok := reg.PropsFor("HAS_ERROR_CODE")
	require.True(t, ok)
	assert.Equal(t, []string{"part_number", "entity_prd_type", "issue_type", "problem"}, props)
}

func TestDefault_NodeEntries(t *testing.T) {
	reg := Default()

	props, ok := reg.NodeProps(domain.NodeCause)
	require.True(t, ok)
	assert.Equal(t, []string{"entity", "verb", "cause", "purpose", "temporal"}, props)

	// an empty prop list is declared and strips every property
	props, ok = reg.NodeProps(domain.NodeModel)
	require.True(t, ok)
	assert.Empty(t, props)
	assert.Empty(t, reg.Filter(string(domain.NodeModel), map[string]any{"x": 1}))

	model, err := reg.Get("Model")
	require.NoError(t, err)
	assert.False(t, model.IsRelation())

	_, ok = reg.NodeProps(domain.NodeTableRow)
	assert.False(t, ok, "TableRow columns vary per manual")
}

func TestGet_MissingKey(t *testing.T) {
	_, err := Default().Get("hasCause")
	require.ErrorIs(t, err, domain.ErrSchemaKeyNotFound)

	var nf *domain.SchemaKeyNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "hasCause", nf.Key)
}

func TestFilter(t *testing.T) {
	reg := New(map[string]Entry{
		"Cause":   {Prop: []ValueRef{{Value: "entity"}}},
		"NoProps": {},
	})
	props := map[string]any{"entity": "door", "junk": true}

	assert.Equal(t, map[string]any{"entity": "door"}, reg.Filter("Cause", props))
	assert.Equal(t, props, reg.Filter("Unknown", props), "undeclared names pass through")
	assert.Equal(t, props, reg.Filter("NoProps", props), "entries without a prop list pass through")
	assert.Nil(t, reg.Filter("Cause", nil))
	assert.Len(t, props, 2, "input is not mutated")
}

func TestKeysAndKeyForLabel(t *testing.T) {
	rel := func(label string) Entry {
		return Entry{
			Domain: []IDRef{{ID: "Model"}},
			Range:  []IDRef{{ID: "Cause"}},
			Label:  []ValueRef{{Value: label}},
		}
	}
	reg := New(map[string]Entry{
		"Z_KEY": rel("zLabel"),
		"A_KEY": rel("aLabel"),
		"Model": {Prop: []ValueRef{}},
	})

	assert.Equal(t, []string{"A_KEY", "Z_KEY"}, reg.Keys())

	key, ok := reg.KeyForLabel("zLabel")
	assert.True(t, ok)
	assert.Equal(t, "Z_KEY", key)

	_, ok = reg.KeyForLabel("missing")
	assert.False(t, ok)
	assert.Empty(t, reg.IssueType("A_KEY"))
	assert.Empty(t, reg.IssueType("nope"))
}

func TestNew_CopiesEntries(t *testing.T) {
	src := map[string]Entry{"Model": {}}
	reg := New(src)
	delete(src, "Model")

	_, err := reg.Get("Model")
	assert.NoError(t, err)
}

func TestEntryAccessors_Empty(t *testing.T) {
	var e Entry
	assert.Empty(t, e.LabelValue())
	assert.Empty(t, e.DomainType())
	assert.Empty(t, e.RangeType())
	_, ok := e.Props()
	assert.False(t, ok)
}

func TestParse(t *testing.T) {
	_, err := Parse([]byte(""))
	assert.Error(t, err)

	_, err = Parse([]byte("Model: [unterminated"))
	assert.Error(t, err)

	reg, err := Parse([]byte(`
HAS_SOLUTION:
  domain: [{id: "Cause"}]
  range: [{id: "Solution"}]
  label: [{value: "HAS_SOLUTION"}]
  prop: [{value: "part_number"}]
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"HAS_SOLUTION"}, reg.Keys())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "schema.JSON")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{
  "HAS_CAUSE": {
    "domain": [{"id": "Problem"}],
    "range": [{"id": "Cause"}],
    "label": [{"value": "hasCause"}]
  }
}`), 0o600))
	reg, err := Load(jsonPath)
	require.NoError(t, err)
	key, ok := reg.KeyForLabel("hasCause")
	require.True(t, ok)
	assert.Equal(t, "HAS_CAUSE", key)

	yamlPath := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("Cause:\n  prop: [{value: entity}]\n"), 0o600))
	reg, err = Load(yamlPath)
	require.NoError(t, err)
	props, ok := reg.PropsFor("Cause")
	require.True(t, ok)
	assert.Equal(t, []string{"entity"}, props)

	badJSON := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badJSON, []byte("{"), 0o600))
	_, err = Load(badJSON)
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
