package extract

import (
	"context"

	"github.com/WessleyAI/manualkg/engine/domain"
	"github.com/WessleyAI/manualkg/engine/manual"
	"github.com/WessleyAI/manualkg/engine/triplet"
)

// Operation extracts the arbitrarily nested operation sections of a manual.
// The raw data is decoded once into manual.Section values and walked by a
// single visitor.
type Operation struct {
	base
}

// NewOperation creates the operation extractor.
func NewOperation(d Deps) *Operation {
	return &Operation{base: newBase(string(manual.KindOperation), d)}
}

// MakeTriplets implements Extractor.
func (o *Operation) MakeTriplets(ctx context.Context, env *manual.Envelope) ([]domain.Triplet, error) {
	ec, err := o.begin(env, "operation")
	if err != nil {
		return o.reject(env, err)
	}
	sections, err := manual.ParseSections(env.Data)
	if err != nil {
		return o.reject(env, err)
	}

	c := &collector{}
	for _, sec := range sections {
		if sec.Title == "" || manual.CleanTitle(sec.Title) == summaryTag {
			continue
		}
		secEC := ec.WithMainSection(sec.Title).WithSubSection(sec.Title)
		emitted := false
		for _, m := range env.Models {
			if o.emit(c, secEC, triplet.Spec{
				DomainValue: m,
				Key:         KeyOperationSection,
				RangeValue:  sec.Title,
				RangeType:   domain.NodeOperationSection,
				RangeProps:  descProps(sec.Summary),
			}) {
				emitted = true
			}
		}
		if emitted {
			o.visit(ctx, c, secEC, sec, anchor{name: sec.Title, typ: domain.NodeOperationSection})
		}
	}

	o.identity(c, ec, env.Models)
	return o.finish(ec, c), nil
}

// visit emits the children of sec hanging off at, recursing into nested
// sections with the child's own node type as the new domain type.
func (o *Operation) visit(ctx context.Context, c *collector, ec triplet.ExtractionContext, sec manual.Section, at anchor) {
	if sec.Summary != nil {
		o.advisories(ctx, c, ec, at, sec.Summary.Prerequisites)
	}
	for _, child := range sec.Children {
		switch v := child.(type) {
		case manual.Procedure:
			o.procedure(ctx, c, ec, at, v)
		case manual.Advisory:
			o.advisories(ctx, c, ec, at, []manual.Advisory{v})
		case manual.Figures:
			o.figures(ctx, c, ec, at, v)
		case manual.Features:
			o.features(ctx, c, ec, at, v)
		case manual.Table:
			o.table(c, ec, at, v)
		case manual.Checklists:
			o.checklists(c, ec, at, v)
		case manual.Section:
			if v.Title == "" {
				continue
			}
			key, node := subSectionRelation(v.Title)
			if !o.emit(c, ec, triplet.Spec{
				DomainValue: at.name,
				Key:         key,
				RangeValue:  v.Title,
				DomainType:  at.typ,
				RangeType:   node,
				RangeProps:  descProps(v.Summary),
			}) {
				continue
			}
			o.visit(ctx, c, ec.WithSubSection(v.Title), v, anchor{name: v.Title, typ: node})
		}
	}
}

func descProps(s *manual.Summary) map[string]any {
	if s == nil {
		return nil
	}
	if desc := joinDesc(s.Description); desc != "" {
		return map[string]any{domain.PropDesc: desc}
	}
	return nil
}
