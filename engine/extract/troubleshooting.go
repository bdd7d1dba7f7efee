package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/WessleyAI/manualkg/engine/domain"
	"github.com/WessleyAI/manualkg/engine/manual"
	"github.com/WessleyAI/manualkg/engine/triplet"
	"github.com/spf13/cast"
)

// PropProblem carries the problem string on a cause edge.
const PropProblem = "problem"

const summaryTag = "summary"

// TroubleShooting extracts problem/cause/solution, FAQ and fault-diagnosis
// triplets from the troubleshooting section of a manual.
//
// The envelope data is shaped
//
//	{sub_section: {section: {problem: [{"cause": [...], "solution": [...]}]}}}
//
// FAQ sections map questions to answers and diagnose sections carry a
// Description and a Procedure.
type TroubleShooting struct {
	base
}

// NewTroubleShooting creates the troubleshooting extractor.
func NewTroubleShooting(d Deps) *TroubleShooting {
	return &TroubleShooting{base: newBase(string(manual.KindTroubleshooting), d)}
}

// MakeTriplets implements Extractor.
func (t *TroubleShooting) MakeTriplets(ctx context.Context, env *manual.Envelope) ([]domain.Triplet, error) {
	ec, err := t.begin(env, "troubleshooting")
	if err != nil {
		return t.reject(env, err)
	}

	c := &collector{}
	for _, sub := range manual.SortedKeys(env.Data) {
		if manual.CleanTitle(sub) == summaryTag {
			continue
		}
		sections, err := cast.ToStringMapE(env.Data[sub])
		if err != nil {
			return t.reject(env, domain.NewShapeError(sub, err))
		}
		subEC := ec.WithSubSection(sub).
			WithEntityPrdType(EntityTypesFor(ec.ProductType, ec.SubProductType, sub))

		switch routeFor(sub) {
		case routeProblems:
			for _, section := range manual.SortedKeys(sections) {
				if manual.CleanTitle(section) == summaryTag {
					continue
				}
				if err := t.problems(ctx, c, subEC, env.Models, section, sections[section]); err != nil {
					return t.reject(env, err)
				}
			}
		case routeDiagnose:
			for _, section := range manual.SortedKeys(sections) {
				if manual.CleanTitle(section) == summaryTag {
					continue
				}
				t.diagnose(ctx, c, subEC, env.Models, section, sections[section])
			}
		default:
			t.logger.Debug("extract: sub section not routed", "part_no", ec.PartNo, "sub_section", sub)
		}
	}

	t.identity(c, ec, env.Models)
	return t.finish(ec, c), nil
}

// problems handles one section of the problems pipeline. A section body
// that is not a dictionary is a top-level shape error.
func (t *TroubleShooting) problems(ctx context.Context, c *collector, ec triplet.ExtractionContext, models []string, section string, raw any) error {
	body, err := cast.ToStringMapE(raw)
	if err != nil {
		return domain.NewShapeError(ec.SubSection+"."+section, err)
	}
	if isFAQ(section) {
		t.faq(ctx, c, ec, models, section, body)
		return nil
	}

	for _, problem := range manual.SortedKeys(body) {
		p := trimPeriods(problem)
		if p == "" {
			continue
		}
		key := ProblemKey(section, p)
		entries := causeEntries(body[problem])
		if len(entries) == 0 {
			c.skip(fmt.Errorf("%s %q: %w", section, problem, domain.NewShapeError("cause", nil)))
			continue
		}
		for _, e := range entries {
			t.causes(ctx, c, ec, models, section, key, p, e)
		}
	}
	return nil
}

// causeEntry is one cause/solution block of a problem.
type causeEntry struct {
	causes    []string
	solutions []string
}

func causeEntries(raw any) []causeEntry {
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case []map[string]any:
		for _, m := range v {
			items = append(items, m)
		}
	default:
		items = []any{v}
	}

	var out []causeEntry
	for _, item := range items {
		m, err := cast.ToStringMapE(item)
		if err != nil {
			continue
		}
		e := causeEntry{}
		for _, k := range manual.SortedKeys(m) {
			v := m[k]
			switch strings.ToLower(strings.TrimSpace(k)) {
			case "cause", "causes", "possible cause":
				e.causes = append(e.causes, manual.StringList(v)...)
			case "solution", "solutions", "what to do":
				e.solutions = append(e.solutions, manual.StringList(v)...)
			}
		}
		if len(e.causes) > 0 {
			out = append(out, e)
		}
	}
	return out
}

// causes emits (model, key, cause) for every cause and model, then attaches
// every solution of the entry to the last cause processed.
func (t *TroubleShooting) causes(ctx context.Context, c *collector, ec triplet.ExtractionContext, models []string, section, key, problem string, e causeEntry) {
	last := ""
	for _, raw := range e.causes {
		cause := trimPeriods(raw)
		if cause == "" {
			continue
		}
		knowledge := t.enricher.Knowledge(ctx, cause)
		for _, m := range models {
			t.emit(c, ec, triplet.Spec{
				DomainValue:     m,
				Key:             key,
				RangeValue:      cause,
				RelationProps:   map[string]any{PropProblem: problem},
				IssueType:       section,
				Knowledge:       knowledge,
				AttachKnowledge: triplet.AttachRange,
			})
		}
		last = cause
	}
	if last == "" {
		return
	}
	for _, raw := range e.solutions {
		sol := capitalize(trimPeriods(raw))
		if sol == "" {
			continue
		}
		t.emit(c, ec, triplet.Spec{DomainValue: last, Key: KeySolution, RangeValue: sol})
	}
}

// faq emits (model, HAS_QUESTION, q) with the question's knowledge and one
// (q, HAS_ANSWER, a) per answer.
func (t *TroubleShooting) faq(ctx context.Context, c *collector, ec triplet.ExtractionContext, models []string, section string, body map[string]any) {
	for _, pair := range faqPairs(body) {
		q := manual.CollapseSpace(pair.question)
		if q == "" {
			continue
		}
		knowledge := t.enricher.Knowledge(ctx, q)
		for _, m := range models {
			t.emit(c, ec, triplet.Spec{
				DomainValue: m,
				Key:         KeyQuestion,
				RangeValue:  q,
				IssueType:   section,
			})
		}
		for _, a := range pair.answers {
			t.emit(c, ec, triplet.Spec{
				DomainValue:     q,
				Key:             KeyAnswer,
				RangeValue:      manual.CollapseSpace(a),
				Knowledge:       knowledge,
				AttachKnowledge: triplet.AttachDomain,
			})
		}
	}
}

type faqPair struct {
	question string
	answers  []string
}

// faqPairs accepts {question: answer(s)} and {"questions": [{question,
// answer}]} forms.
func faqPairs(body map[string]any) []faqPair {
	var out []faqPair
	for _, k := range manual.SortedKeys(body) {
		v := body[k]
		if list, ok := v.([]any); ok && isQAList(list) {
			for _, item := range list {
				m := cast.ToStringMap(item)
				out = append(out, faqPair{
					question: cast.ToString(firstOf(m, "question", "Question", "q")),
					answers:  manual.StringList(firstOf(m, "answer", "Answer", "answers", "a")),
				})
			}
			continue
		}
		out = append(out, faqPair{question: k, answers: manual.StringList(v)})
	}
	return out
}

func isQAList(list []any) bool {
	for _, item := range list {
		m, err := cast.ToStringMapE(item)
		if err != nil {
			return false
		}
		if firstOf(m, "question", "Question", "q") == nil {
			return false
		}
	}
	return len(list) > 0
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

// diagnose emits (model, key, description) and the procedure rooted at the
// description. An unknown diagnose section is skipped.
func (t *TroubleShooting) diagnose(ctx context.Context, c *collector, ec triplet.ExtractionContext, models []string, section string, raw any) {
	key, ok := diagnoseKeys[manual.CleanTitle(section)]
	if !ok {
		c.skip(fmt.Errorf("diagnose section %q: no relation", section))
		return
	}
	body := cast.ToStringMap(raw)
	desc := joinText(manual.Texts(body[manual.KeyDescription]))
	if desc == "" {
		desc = manual.CollapseSpace(section)
	}
	rootType, err := t.builder.RangeTypeOf(key)
	if err != nil {
		c.skip(err)
		return
	}

	emitted := false
	for _, m := range models {
		if t.emit(c, ec, triplet.Spec{
			DomainValue: m,
			Key:         key,
			RangeValue:  desc,
			RangeProps:  map[string]any{domain.PropDesc: desc},
		}) {
			emitted = true
		}
	}
	if !emitted {
		return
	}
	if proc, ok := body[manual.KeyProcedure]; ok {
		t.procedure(ctx, c, ec, anchor{name: desc, typ: rootType}, manual.ParseProcedure(proc))
	}
}
