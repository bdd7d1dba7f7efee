// Package query turns a resolved question into a graph-query intent, renders
// the intent as priority-tier Cypher statements and parses the winning rows
// into an answer.
package query

import (
	"fmt"

	"github.com/WessleyAI/manualkg/engine/domain"
	"github.com/WessleyAI/manualkg/engine/extract"
	"github.com/WessleyAI/manualkg/engine/graph"
	"github.com/WessleyAI/manualkg/engine/schema"
)

// Generic keys of the operation tree.
const (
	keyOperationSection = "HAS_OPERATION_SECTION"
	keySubSection       = "HAS_SUB_SECTION"
)

// Intent kinds as carried by the similarity catalog.
const (
	KindCause     = "cause"
	KindProcedure = "procedure"
	KindFeature   = "feature"
	KindSpec      = "spec"
	KindFAQ       = "faq"
	KindDiagnose  = "diagnose"
)

// AuxShape is an auxiliary result shape unioned into the main match.
type AuxShape string

const (
	AuxImage      AuxShape = "image"
	AuxSteps      AuxShape = "steps"
	AuxFeature    AuxShape = "feature"
	AuxSubSection AuxShape = "sub_section"
	AuxExtraInfo  AuxShape = "extra_info"
)

// Resolved is a question after similarity resolution.
type Resolved struct {
	// Entity is the requested entity product type set, e.g. ["washer"].
	Entity []string
	// Relation is the generic key (or stored label) of the matched category.
	Relation string
	// CommonKey is the category of the match, SpecificProblem its key. Equal
	// values ask about the whole category.
	CommonKey       string
	SpecificProblem string
	Intent          string
	ProductType     string
	Model           string
}

// Intent describes what to match in the graph, not how.
type Intent struct {
	Kind string
	// Match is the label of the answer node.
	Match domain.NodeType
	// Relation is the stored type of the edge into the answer node.
	Relation string
	// Anchor is the domain type of that edge. Anything but Model is reached
	// through the model's operation tree.
	Anchor        domain.NodeType
	WholeCategory bool
	// Name is the item to match; empty matches the whole relation.
	Name string
	// ByProblem matches Name against the edge's problem property instead of
	// the node name.
	ByProblem   bool
	Aux         []AuxShape
	Model       string
	PartNumbers []string
	EntityTypes []string
}

// Has reports whether the intent unions in shape a.
func (in Intent) Has(a AuxShape) bool {
	for _, x := range in.Aux {
		if x == a {
			return true
		}
	}
	return false
}

// Former builds intents against the schema registry.
type Former struct {
	reg *schema.Registry
}

// NewFormer creates a Former. A nil registry uses the embedded default.
func NewFormer(reg *schema.Registry) *Former {
	if reg == nil {
		reg = schema.Default()
	}
	return &Former{reg: reg}
}

// Form builds the intent of r. PartNumbers is left for the caller, which
// knows the model's manuals.
func (f *Former) Form(r Resolved) (Intent, error) {
	if r.Model == "" {
		return Intent{}, domain.NewValidationError("model", r.Model, domain.ErrInvalidQuery)
	}
	entry, err := f.entry(r.Relation)
	if err != nil {
		return Intent{}, fmt.Errorf("query: form: %w", err)
	}

	whole := r.SpecificProblem == "" || r.CommonKey == r.SpecificProblem
	in := Intent{
		Kind:          r.Intent,
		Match:         entry.RangeType(),
		Relation:      graph.RelType(entry.LabelValue()),
		Anchor:        entry.DomainType(),
		WholeCategory: whole,
		Model:         r.Model,
		EntityTypes:   r.Entity,
	}
	if len(in.EntityTypes) == 0 {
		in.EntityTypes = extract.DefaultEntityTypes(r.ProductType)
	}

	switch in.Match {
	case domain.NodeCause:
		in.ByProblem = true
		if !whole {
			in.Name = r.SpecificProblem
		}
	case domain.NodeOperationSection:
		if whole {
			in.Name = r.CommonKey
			break
		}
		sub, err := f.entry(keySubSection)
		if err != nil {
			return Intent{}, fmt.Errorf("query: form: %w", err)
		}
		in.Match = domain.NodeOperationSubSection
		in.Relation = graph.RelType(sub.LabelValue())
		in.Anchor = sub.DomainType()
		in.Name = r.SpecificProblem
	case domain.NodeValue:
	default:
		if !whole {
			in.Name = r.SpecificProblem
		}
	}
	if in.Kind == "" {
		in.Kind = kindOf(in.Match)
	}
	in.Aux = auxFor(in.Match)
	return in, nil
}

// entry resolves a generic key, accepting a stored label as well.
func (f *Former) entry(key string) (schema.Entry, error) {
	e, err := f.reg.Get(key)
	if err == nil && e.IsRelation() {
		return e, nil
	}
	if k, ok := f.reg.KeyForLabel(key); ok {
		return f.reg.Get(k)
	}
	if err == nil {
		err = &domain.SchemaKeyNotFoundError{Key: key}
	}
	return schema.Entry{}, err
}

func kindOf(t domain.NodeType) string {
	switch t {
	case domain.NodeCause:
		return KindCause
	case domain.NodeOperationSection, domain.NodeOperationSubSection:
		return KindProcedure
	case domain.NodeFeature, domain.NodeControlPanel:
		return KindFeature
	case domain.NodeValue:
		return KindSpec
	case domain.NodeQuestion:
		return KindFAQ
	case domain.NodeDiagnoseFault:
		return KindDiagnose
	}
	return ""
}

func auxFor(t domain.NodeType) []AuxShape {
	switch t {
	case domain.NodeOperationSection, domain.NodeOperationSubSection:
		return []AuxShape{AuxSteps, AuxImage, AuxFeature, AuxSubSection, AuxExtraInfo}
	case domain.NodeFeature, domain.NodeControlPanel:
		return []AuxShape{AuxImage, AuxExtraInfo}
	case domain.NodeDiagnoseFault:
		return []AuxShape{AuxSteps, AuxImage, AuxExtraInfo}
	}
	return nil
}
