package query

import (
	"fmt"
	"strings"

	"github.com/WessleyAI/manualkg/engine/domain"
	"github.com/WessleyAI/manualkg/engine/graph"
)

// Tier priorities, most specific first.
const (
	TierExact = iota + 1
	TierCaseInsensitive
	TierContains
	TierRelation
)

// maxDepth bounds the walk down the operation tree.
const maxDepth = 8

// Tiers renders in as one read statement per tier. Every tier filters the
// matched path to the intent's part numbers and the answer edge to the
// intent's entity types. An intent without a name renders only the whole
// relation tier; a named intent never falls back to it, so a miss on the
// name tiers answers nothing.
func Tiers(in Intent) []graph.TierQuery {
	params := map[string]any{
		"model":    in.Model,
		"parts":    nonNil(in.PartNumbers),
		"entities": nonNil(in.EntityTypes),
	}
	if in.Name == "" {
		return []graph.TierQuery{{Priority: TierRelation, Name: "relation", Cypher: render(in, ""), Params: params}}
	}
	params["name"] = in.Name

	field := "n.name"
	if in.ByProblem {
		field = "r.problem"
	}
	return []graph.TierQuery{
		{Priority: TierExact, Name: "exact", Cypher: render(in, field+" = $name"), Params: params},
		{Priority: TierCaseInsensitive, Name: "case_insensitive", Cypher: render(in, "toLower("+field+") = toLower($name)"), Params: params},
		{Priority: TierContains, Name: "contains", Cypher: render(in, "toLower("+field+") CONTAINS toLower($name)"), Params: params},
	}
}

func render(in Intent, cond string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "MATCH path = %s\n", pattern(in))
	b.WriteString("WHERE all(x IN relationships(path) WHERE x.part_number IN $parts)\n")
	b.WriteString("  AND any(t IN r.entity_prd_type WHERE t IN $entities)\n")
	if cond != "" {
		fmt.Fprintf(&b, "  AND %s\n", cond)
	}
	cols, order := columns(in)
	fmt.Fprintf(&b, "RETURN DISTINCT %s\nORDER BY %s", strings.Join(cols, ", "), order)
	return b.String()
}

// pattern is the path from the model to the answer node n over edge r.
func pattern(in Intent) string {
	match := graph.NodeLabel(in.Match)
	model := graph.NodeLabel(domain.NodeModel)
	if in.Anchor == domain.NodeModel || in.Anchor == "" {
		return fmt.Sprintf("(m:%s {name: $model})-[r:%s]->(n:%s)", model, in.Relation, match)
	}
	return fmt.Sprintf("(m:%s {name: $model})-[:%s]->(:%s)-[:%s*0..%d]->()-[r:%s]->(n:%s)",
		model,
		graph.RelType(keyOperationSection),
		graph.NodeLabel(domain.NodeOperationSection),
		graph.RelType(keySubSection),
		maxDepth,
		in.Relation,
		match,
	)
}

// columns returns the RETURN items and ORDER BY key of in.
func columns(in Intent) ([]string, string) {
	switch in.Match {
	case domain.NodeCause:
		return []string{
			"r.problem AS description",
			"n.name AS cause",
			related("n", "HAS_SOLUTION", domain.NodeSolution, "s.name") + " AS solutions",
		}, "description, cause"
	case domain.NodeQuestion:
		return []string{
			"n.name AS description",
			related("n", "HAS_ANSWER", domain.NodeAnswer, "s.name") + " AS answers",
		}, "description"
	case domain.NodeValue:
		return []string{"n.name AS description", "r." + domain.PropSpecKey + " AS spec_key"}, "description"
	}

	head := "n.name AS name"
	order := "name"
	if in.Match == domain.NodeFeature || in.Match == domain.NodeControlPanel {
		head, order = "n.name AS feature", "feature"
	}
	cols := []string{head, "n." + domain.PropDesc + " AS description"}
	for _, a := range in.Aux {
		cols = append(cols, auxColumn(a))
	}
	return cols, order
}

func auxColumn(a AuxShape) string {
	switch a {
	case AuxSteps:
		return related("n", "HAS_PROCEDURE", domain.NodeProcedure,
			"{step_no: s.step_no, text: coalesce(s.desc, s.name)}") + " AS steps"
	case AuxImage:
		return fmt.Sprintf("[(n)-[:%s*0..1]->()-[e:%s]->(s:%s) WHERE e.part_number IN $parts | s {.media_url, .media_content_type, .media_file_size}] AS images",
			graph.RelType("HAS_PROCEDURE"), graph.RelType("HAS_IMAGE"), graph.NodeLabel(domain.NodeImage))
	case AuxFeature:
		return related("n", "HAS_FEATURE", domain.NodeFeature, "s.name") + " AS features"
	case AuxSubSection:
		return related("n", "HAS_SUB_SECTION", domain.NodeOperationSubSection, "s.name") + " AS sub_sections"
	case AuxExtraInfo:
		return fmt.Sprintf("[(n)-[:%s*0..1]->()-[e:%s|%s|%s]->(s) WHERE e.part_number IN $parts | {kind: type(e), text: s.name}] AS extras",
			graph.RelType("HAS_PROCEDURE"), graph.RelType("HAS_NOTE"), graph.RelType("HAS_CAUTION"), graph.RelType("HAS_WARNING"))
	}
	return "null AS " + string(a)
}

// related renders a pattern comprehension over one outgoing content edge.
func related(from, rel string, to domain.NodeType, proj string) string {
	return fmt.Sprintf("[(%s)-[e:%s]->(s:%s) WHERE e.part_number IN $parts | %s]",
		from, graph.RelType(rel), graph.NodeLabel(to), proj)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
