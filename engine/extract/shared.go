package extract

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/WessleyAI/manualkg/engine/domain"
	"github.com/WessleyAI/manualkg/engine/manual"
	"github.com/WessleyAI/manualkg/engine/triplet"
	"github.com/WessleyAI/manualkg/pkg/media"
)

// anchor is the node nested content hangs off.
type anchor struct {
	name string
	typ  domain.NodeType
}

// procedure emits one HAS_PROCEDURE triplet per non-empty step, numbered
// 1..N, followed by the step's figures and advisories.
func (b *base) procedure(ctx context.Context, c *collector, ec triplet.ExtractionContext, root anchor, steps manual.Procedure) {
	n := 0
	for _, step := range steps {
		text := joinDesc(step.Description, step.Points)
		if text == "" {
			continue
		}
		n++
		ok := b.emit(c, ec, triplet.Spec{
			DomainValue: root.name,
			Key:         KeyProcedure,
			RangeValue:  text,
			DomainType:  root.typ,
			RangeType:   domain.NodeProcedure,
			RangeProps:  map[string]any{domain.PropStepNo: n, domain.PropDesc: text},
		})
		if !ok {
			continue
		}
		at := anchor{name: text, typ: domain.NodeProcedure}
		b.figures(ctx, c, ec, at, step.Figures)
		b.advisories(ctx, c, ec, at, step.Advisories)
	}
}

var advisoryKeys = map[manual.AdvisoryKind]struct {
	key  string
	node domain.NodeType
}{
	manual.AdvisoryNote:    {KeyNote, domain.NodeNote},
	manual.AdvisoryCaution: {KeyCaution, domain.NodeCaution},
	manual.AdvisoryWarning: {KeyWarning, domain.NodeWarning},
}

// advisories emits one note/caution/warning triplet per point. A point's
// figures hang off the point text, not off parent.
func (b *base) advisories(ctx context.Context, c *collector, ec triplet.ExtractionContext, parent anchor, list []manual.Advisory) {
	for _, a := range list {
		rel := advisoryKeys[a.Type]
		for _, p := range a.Points {
			text := joinText(p.Description)
			if text == "" {
				continue
			}
			if !b.emit(c, ec, triplet.Spec{
				DomainValue: parent.name,
				Key:         rel.key,
				RangeValue:  text,
				DomainType:  parent.typ,
				RangeType:   rel.node,
			}) {
				continue
			}
			b.figures(ctx, c, ec, anchor{name: text, typ: rel.node}, p.Figures)
		}
	}
}

// figures emits image triplets, dropping images that cannot be resolved.
func (b *base) figures(ctx context.Context, c *collector, ec triplet.ExtractionContext, parent anchor, figs []manual.Figure) {
	for _, f := range figs {
		if err := b.image(ctx, c, ec, parent, f); err != nil {
			c.skip(err)
		}
	}
}

// image resolves f and emits (parent, HAS_IMAGE, imageName). An image the
// store does not know returns domain.ErrImageNotFound; triplets already
// emitted are kept.
func (b *base) image(ctx context.Context, c *collector, ec triplet.ExtractionContext, parent anchor, f manual.Figure) error {
	if b.images == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, b.imageTimeout)
	defer cancel()

	resp, err := b.images.ImageInformation(ctx, media.Request{
		ProductType: ec.ProductType,
		MainSection: ec.MainSection,
		SubSection:  ec.SubSection,
		PartNo:      ec.PartNo,
		Image:       media.Descriptor{FilePath: f.FilePath, Size: f.Size, FileType: f.FileType},
	})
	if err != nil {
		return fmt.Errorf("image %q: %w", f.FilePath, err)
	}
	if resp.Code != media.CodeSuccess {
		return fmt.Errorf("image %q: %w", f.FilePath, domain.ErrImageNotFound)
	}
	b.emit(c, ec, triplet.Spec{
		DomainValue: parent.name,
		Key:         KeyImage,
		RangeValue:  resp.ImageName,
		DomainType:  parent.typ,
		RangeType:   domain.NodeImage,
		RangeProps:  resp.Content,
	})
	return nil
}

// features emits HAS_FEATURE triplets with their nested content.
func (b *base) features(ctx context.Context, c *collector, ec triplet.ExtractionContext, parent anchor, feats manual.Features) {
	for _, f := range feats {
		var props map[string]any
		if desc := joinDesc(f.Description); desc != "" {
			props = map[string]any{domain.PropDesc: desc}
		}
		if !b.emit(c, ec, triplet.Spec{
			DomainValue: parent.name,
			Key:         KeyFeature,
			RangeValue:  f.Name,
			DomainType:  parent.typ,
			RangeType:   domain.NodeFeature,
			RangeProps:  props,
		}) {
			continue
		}
		at := anchor{name: f.Name, typ: domain.NodeFeature}
		b.figures(ctx, c, ec, at, f.Figures)
		b.advisories(ctx, c, ec, at, f.Advisories)
	}
}

// table emits one TableRow per row. The row name is its cells in header
// order; the cells become row properties.
func (b *base) table(c *collector, ec triplet.ExtractionContext, parent anchor, t manual.Table) {
	for i, row := range t.Rows {
		cols := rowColumns(t.Header, row)
		cells := make([]string, 0, len(cols))
		props := make(map[string]any, len(row)+1)
		for _, col := range cols {
			if v := row[col]; v != "" {
				cells = append(cells, v)
			}
			props[col] = row[col]
		}
		if len(cells) == 0 {
			continue
		}
		props["row_no"] = i + 1
		b.emit(c, ec, triplet.Spec{
			DomainValue: parent.name,
			Key:         KeyTableRow,
			RangeValue:  strings.Join(cells, " | "),
			DomainType:  parent.typ,
			RangeType:   domain.NodeTableRow,
			RangeProps:  props,
		})
	}
}

func rowColumns(header []string, row map[string]string) []string {
	seen := make(map[string]bool, len(row))
	var cols []string
	for _, h := range header {
		if _, ok := row[h]; ok && !seen[h] {
			seen[h] = true
			cols = append(cols, h)
		}
	}
	var rest []string
	for k := range row {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(cols, rest...)
}

// checklists emits HAS_CHECKLIST and one numbered HAS_CHECKLIST_ITEM per
// item. An untitled checklist takes the parent's name.
func (b *base) checklists(c *collector, ec triplet.ExtractionContext, parent anchor, lists manual.Checklists) {
	for _, cl := range lists {
		title := manual.CollapseSpace(cl.Title)
		if title == "" {
			title = parent.name
		}
		if !b.emit(c, ec, triplet.Spec{
			DomainValue: parent.name,
			Key:         KeyChecklist,
			RangeValue:  title,
			DomainType:  parent.typ,
			RangeType:   domain.NodeChecklist,
		}) {
			continue
		}
		n := 0
		for _, item := range cl.Items {
			text := trimPeriods(item)
			if text == "" {
				continue
			}
			n++
			b.emit(c, ec, triplet.Spec{
				DomainValue: title,
				Key:         KeyChecklistItem,
				RangeValue:  text,
				DomainType:  domain.NodeChecklist,
				RangeType:   domain.NodeChecklistItem,
				RangeProps:  map[string]any{domain.PropStepNo: n},
			})
		}
	}
}
