// Package schema holds the RDF-like relation schema every triplet is built
// against. The registry maps a generic relation key (HAS_ERROR_CODE, ...) to
// its domain/range node types, label and legal properties, and a node type
// name to the properties that node may carry.
package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/WessleyAI/manualkg/engine/domain"
	"gopkg.in/yaml.v3"
)

//go:embed default_schema.yaml
var defaultSchema []byte

// IDRef references a node type.
type IDRef struct {
	ID string `yaml:"id" json:"id"`
}

// ValueRef holds a literal value.
type ValueRef struct {
	Value string `yaml:"value" json:"value"`
}

// Entry is one schema definition. Relation entries fill Domain, Range and
// Label; node type entries usually only declare Prop.
type Entry struct {
	Domain    []IDRef    `yaml:"domain,omitempty" json:"domain,omitempty"`
	Range     []IDRef    `yaml:"range,omitempty" json:"range,omitempty"`
	Label     []ValueRef `yaml:"label,omitempty" json:"label,omitempty"`
	Prop      []ValueRef `yaml:"prop,omitempty" json:"prop,omitempty"`
	IssueType []ValueRef `yaml:"issue_type,omitempty" json:"issue_type,omitempty"`
}

// IsRelation reports whether the entry describes a relation.
func (e Entry) IsRelation() bool {
	return len(e.Label) > 0 && len(e.Domain) > 0 && len(e.Range) > 0
}

// LabelValue returns label[0].value.
func (e Entry) LabelValue() string {
	if len(e.Label) == 0 {
		return ""
	}
	return e.Label[0].Value
}

// DomainType returns domain[0].id.
func (e Entry) DomainType() domain.NodeType {
	if len(e.Domain) == 0 {
		return ""
	}
	return domain.NodeType(e.Domain[0].ID)
}

// RangeType returns range[0].id.
func (e Entry) RangeType() domain.NodeType {
	if len(e.Range) == 0 {
		return ""
	}
	return domain.NodeType(e.Range[0].ID)
}

// Props returns the declared property names, and whether any were declared.
func (e Entry) Props() ([]string, bool) {
	if e.Prop == nil {
		return nil, false
	}
	out := make([]string, len(e.Prop))
	for i, p := range e.Prop {
		out[i] = p.Value
	}
	return out, true
}

// Registry is an immutable key -> Entry lookup. Safe for concurrent reads.
type Registry struct {
	entries map[string]Entry
}

// New builds a registry from an entry table. The map is copied.
func New(entries map[string]Entry) *Registry {
	m := make(map[string]Entry, len(entries))
	for k, v := range entries {
		m[k] = v
	}
	return &Registry{entries: m}
}

// Parse decodes a YAML (or JSON) schema document.
func Parse(data []byte) (*Registry, error) {
	var entries map[string]Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("schema: parse: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("schema: parse: empty schema")
	}
	return New(entries), nil
}

// Load reads a schema file from disk. Files ending in .json are decoded with
// encoding/json, everything else as YAML.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		var entries map[string]Entry
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("schema: parse %s: %w", path, err)
		}
		return New(entries), nil
	}
	return Parse(data)
}

// Default returns the registry compiled into the binary.
func Default() *Registry {
	r, err := Parse(defaultSchema)
	if err != nil {
		panic(err)
	}
	return r
}

// Get returns the entry for key, or a *domain.SchemaKeyNotFoundError.
func (r *Registry) Get(key string) (Entry, error) {
	e, ok := r.entries[key]
	if !ok {
		return Entry{}, &domain.SchemaKeyNotFoundError{Key: key}
	}
	return e, nil
}

// PropsFor returns the declared properties of a node type or relation key.
// ok is false when name has no entry or the entry declares no prop list.
func (r *Registry) PropsFor(name string) ([]string, bool) {
	e, found := r.entries[name]
	if !found {
		return nil, false
	}
	return e.Props()
}

// Filter keeps only the keys of props declared for name. Undeclared names
// pass props through unchanged.
func (r *Registry) Filter(name string, props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	allowed, ok := r.PropsFor(name)
	if !ok {
		return props
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		if slices.Contains(allowed, k) {
			out[k] = v
		}
	}
	return out
}

// Keys returns every relation key in sorted order.
func (r *Registry) Keys() []string {
	var keys []string
	for k, e := range r.entries {
		if e.IsRelation() {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// KeyForLabel finds the generic key whose label is label.
func (r *Registry) KeyForLabel(label string) (string, bool) {
	for _, k := range r.Keys() {
		if r.entries[k].LabelValue() == label {
			return k, true
		}
	}
	return "", false
}

// NodeProps returns the declared properties of node type t.
func (r *Registry) NodeProps(t domain.NodeType) ([]string, bool) {
	return r.PropsFor(string(t))
}

// IssueType returns issue_type[0].value of key, or "".
func (r *Registry) IssueType(key string) string {
	e, ok := r.entries[key]
	if !ok || len(e.IssueType) == 0 {
		return ""
	}
	return e.IssueType[0].Value
}
