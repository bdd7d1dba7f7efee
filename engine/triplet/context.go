package triplet

import "slices"

// ExtractionContext carries the per-manual state every builder call needs.
// It is a value: the With* helpers return modified copies and never touch
// the receiver, so nested helpers cannot observe each other's changes.
type ExtractionContext struct {
	PartNo         string
	ProductType    string
	SubProductType string
	MainSection    string
	SubSection     string
	EntityPrdType  []string
}

// WithSubSection returns a copy scoped to sub.
func (c ExtractionContext) WithSubSection(sub string) ExtractionContext {
	c.SubSection = sub
	return c
}

// WithMainSection returns a copy scoped to main.
func (c ExtractionContext) WithMainSection(main string) ExtractionContext {
	c.MainSection = main
	return c
}

// WithEntityPrdType returns a copy carrying its own copy of types.
func (c ExtractionContext) WithEntityPrdType(types []string) ExtractionContext {
	c.EntityPrdType = slices.Clone(types)
	return c
}

// relationDefaults is the property pair injected into every content relation.
func (c ExtractionContext) relationDefaults() map[string]any {
	return map[string]any{
		"part_number":     c.PartNo,
		"entity_prd_type": slices.Clone(c.EntityPrdType),
	}
}
