// Package triplet implements the generic "refer schema, create triplet"
// protocol shared by every section extractor.
package triplet

import (
	"fmt"
	"maps"

	"github.com/WessleyAI/manualkg/engine/domain"
	"github.com/WessleyAI/manualkg/engine/schema"
)

// Attach selects which side of the edge receives the enrichment knowledge.
type Attach int

const (
	AttachNone Attach = iota
	AttachDomain
	AttachRange
)

func (a Attach) String() string {
	switch a {
	case AttachDomain:
		return "domain"
	case AttachRange:
		return "range"
	default:
		return "none"
	}
}

// Spec describes one triplet to build. Zero-valued type overrides fall back
// to the schema's declared domain and range.
type Spec struct {
	DomainValue   string
	Key           string
	RangeValue    string
	DomainProps   map[string]any
	RelationProps map[string]any
	RangeProps    map[string]any
	DomainType    domain.NodeType
	RangeType     domain.NodeType
	IssueType     string

	Knowledge       map[string][]string
	AttachKnowledge Attach
}

// Builder turns Specs into schema-conformant triplets.
type Builder struct {
	reg *schema.Registry
}

// NewBuilder creates a Builder over reg.
func NewBuilder(reg *schema.Registry) *Builder {
	return &Builder{reg: reg}
}

// Registry exposes the schema the builder resolves keys against.
func (b *Builder) Registry() *schema.Registry { return b.reg }

// Build resolves s.Key in the schema and returns the filtered triplet. A
// missing key fails the whole call with a *domain.SchemaKeyNotFoundError.
func (b *Builder) Build(ec ExtractionContext, s Spec) (domain.Triplet, error) {
	entry, err := b.reg.Get(s.Key)
	if err != nil {
		return domain.Triplet{}, err
	}
	if !entry.IsRelation() {
		return domain.Triplet{}, fmt.Errorf("triplet: %q is not a relation entry: %w", s.Key, domain.ErrSchemaKeyNotFound)
	}

	label := entry.LabelValue()
	domainType := entry.DomainType()
	if s.DomainType != "" {
		domainType = s.DomainType
	}
	rangeType := entry.RangeType()
	if s.RangeType != "" {
		rangeType = s.RangeType
	}

	relProps := cloneOrNil(s.RelationProps)
	if !domain.IsIdentityLabel(label) {
		if relProps == nil {
			relProps = make(map[string]any, 2)
		}
		maps.Copy(relProps, ec.relationDefaults())
	}
	if s.IssueType != "" {
		if relProps == nil {
			relProps = make(map[string]any, 1)
		}
		relProps[domain.PropIssueType] = s.IssueType
	}

	domainProps := cloneOrNil(s.DomainProps)
	rangeProps := cloneOrNil(s.RangeProps)
	if len(s.Knowledge) > 0 {
		switch s.AttachKnowledge {
		case AttachDomain:
			domainProps = mergeKnowledge(domainProps, s.Knowledge)
		case AttachRange:
			rangeProps = mergeKnowledge(rangeProps, s.Knowledge)
		}
	}

	return domain.NewTriplet(
		domain.NewNode(domainType, s.DomainValue, b.reg.Filter(string(domainType), domainProps)),
		domain.NewRelation(label, b.reg.Filter(s.Key, relProps)),
		domain.NewNode(rangeType, s.RangeValue, b.reg.Filter(string(rangeType), rangeProps)),
	), nil
}

// RangeTypeOf returns the declared range type of key.
func (b *Builder) RangeTypeOf(key string) (domain.NodeType, error) {
	entry, err := b.reg.Get(key)
	if err != nil {
		return "", err
	}
	return entry.RangeType(), nil
}

func mergeKnowledge(props map[string]any, knowledge map[string][]string) map[string]any {
	if props == nil {
		props = make(map[string]any, len(knowledge))
	}
	for k, v := range knowledge {
		props[k] = append([]string(nil), v...)
	}
	return props
}

func cloneOrNil(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}
