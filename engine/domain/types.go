// Package domain defines the value objects shared by the triplet extractors,
// the similarity pipeline and the query layer: graph nodes, relations,
// triplets, extraction status codes and user-facing response codes.
package domain

import "maps"

// NodeType is the label a node carries in the graph store.
type NodeType string

const (
	NodeModel               NodeType = "Model"
	NodeProductType         NodeType = "ProductType"
	NodePartNumber          NodeType = "PartNumber"
	NodeProblem             NodeType = "Problem"
	NodeCause               NodeType = "Cause"
	NodeSolution            NodeType = "Solution"
	NodeQuestion            NodeType = "Question"
	NodeAnswer              NodeType = "Answer"
	NodeFeature             NodeType = "Feature"
	NodeProcedure           NodeType = "Procedure"
	NodeOperationSection    NodeType = "OperationSection"
	NodeOperationSubSection NodeType = "OperationSubSection"
	NodeValue               NodeType = "Value"
	NodeTableRow            NodeType = "TableRow"
	NodeControlPanel        NodeType = "ControlPanel"
	NodeDiagnoseFault       NodeType = "DiagnoseFault"
	NodeDescription         NodeType = "Description"
	NodeNote                NodeType = "Note"
	NodeCaution             NodeType = "Caution"
	NodeWarning             NodeType = "Warning"
	NodeImage               NodeType = "Image"
	NodeSpecification       NodeType = "Specification"
	NodeChecklist           NodeType = "Checklist"
	NodeChecklistItem       NodeType = "ChecklistItem"
)

// Relation labels that carry identity rather than manual content. They never
// receive part_number / entity_prd_type properties.
const (
	LabelHasPartNumber = "HAS_PART_NUMBER"
	LabelTypeOf        = "TypeOf"
)

// Property keys injected into every content relation.
const (
	PropPartNumber    = "part_number"
	PropEntityPrdType = "entity_prd_type"
	PropIssueType     = "issue_type"
	PropStepNo        = "step_no"
	PropDesc          = "desc"
	PropSpecKey       = "spec_key"
)

// Node is one vertex of a triplet.
type Node struct {
	Type       NodeType       `json:"type"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Relation is the labelled edge of a triplet.
type Relation struct {
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Triplet is a directed domain -[relation]-> range edge destined for the
// graph store.
type Triplet struct {
	Domain   Node     `json:"domain"`
	Relation Relation `json:"relation"`
	Range    Node     `json:"range"`
}

// NewNode builds a Node with its own copy of props.
func NewNode(t NodeType, name string, props map[string]any) Node {
	return Node{Type: t, Name: name, Properties: cloneProps(props)}
}

// NewRelation builds a Relation with its own copy of props.
func NewRelation(label string, props map[string]any) Relation {
	return Relation{Label: label, Properties: cloneProps(props)}
}

// NewTriplet assembles a triplet from already constructed parts.
func NewTriplet(domain Node, rel Relation, rng Node) Triplet {
	return Triplet{Domain: domain, Relation: rel, Range: rng}
}

// IsIdentityLabel reports whether label is one of the identity relations that
// are exempt from part-number injection.
func IsIdentityLabel(label string) bool {
	return label == LabelHasPartNumber || label == LabelTypeOf
}

// Prop returns the relation property k as a string, or "".
func (r Relation) Prop(k string) string {
	if v, ok := r.Properties[k]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func cloneProps(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	return maps.Clone(props)
}
