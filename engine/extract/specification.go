package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/WessleyAI/manualkg/engine/domain"
	"github.com/WessleyAI/manualkg/engine/manual"
	"github.com/WessleyAI/manualkg/engine/triplet"
	"github.com/spf13/cast"
)

// PropUnit is the unit recovered from a specification key qualifier.
const PropUnit = "unit"

// Specification extracts model key/value specifications. The data is either
// one flat dictionary shared by every model or a dictionary keyed by model.
type Specification struct {
	base
}

// NewSpecification creates the specification extractor.
func NewSpecification(d Deps) *Specification {
	return &Specification{base: newBase(string(manual.KindSpecification), d)}
}

// specItem is one flattened key/value pair.
type specItem struct {
	key    string
	values []string
}

// MakeTriplets implements Extractor. A schema failure drops the triplets of
// the model being built and continues with the next one.
func (s *Specification) MakeTriplets(_ context.Context, env *manual.Envelope) ([]domain.Triplet, error) {
	ec, err := s.begin(env, "specification")
	if err != nil {
		return s.reject(env, err)
	}

	c := &collector{}
	for _, m := range env.Models {
		items := flattenSpecs("", specsFor(env.Data, m))
		out, err := s.model(ec, m, items)
		if err != nil {
			c.skip(fmt.Errorf("model %s: %w", m, err))
			continue
		}
		c.out = append(c.out, out...)
	}

	s.identity(c, ec, env.Models)
	return s.finish(ec, c), nil
}

// model builds every triplet of one model or none at all.
func (s *Specification) model(ec triplet.ExtractionContext, model string, items []specItem) ([]domain.Triplet, error) {
	var out []domain.Triplet
	for _, it := range items {
		key, known := CommonSpecKey(it.key)
		var relProps map[string]any
		if !known {
			relProps = map[string]any{domain.PropSpecKey: it.key}
		}
		var rangeProps map[string]any
		if u := unitOf(it.key); u != "" {
			rangeProps = map[string]any{PropUnit: u}
		}

		values := it.values
		if key == KeyDimension && len(values) > 1 {
			values = values[:1]
		}
		for _, v := range values {
			if key == KeyBatteryRuntime || key == KeyPowerConsumption {
				v = normalizeSpecValue(v)
			}
			if v == "" {
				continue
			}
			t, err := s.builder.Build(ec, triplet.Spec{
				DomainValue:   model,
				Key:           key,
				RangeValue:    v,
				RelationProps: relProps,
				RangeProps:    rangeProps,
			})
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
	}
	return out, nil
}

// specsFor returns the model's own dictionary when data is keyed by model,
// else data itself.
func specsFor(data map[string]any, model string) map[string]any {
	if v, ok := data[model]; ok {
		if m, err := cast.ToStringMapE(v); err == nil {
			return m
		}
	}
	return data
}

// flattenSpecs turns nested dictionaries into "key sub-key" items in sorted
// key order.
func flattenSpecs(prefix string, m map[string]any) []specItem {
	var out []specItem
	for _, k := range manual.SortedKeys(m) {
		key := manual.CollapseSpace(k)
		if prefix != "" {
			key = prefix + " " + key
		}
		v := m[k]
		if sub, ok := v.(map[string]any); ok {
			out = append(out, flattenSpecs(key, sub)...)
			continue
		}
		if vals := manual.StringList(v); len(vals) > 0 {
			out = append(out, specItem{key: key, values: vals})
		}
	}
	return out
}

var unitRe = regexp.MustCompile(`\(\s*([^()\s]{1,12})\s*\)\s*\**\s*$`)

// unitOf returns a short trailing "(unit)" qualifier of key.
func unitOf(key string) string {
	if m := unitRe.FindStringSubmatch(key); m != nil {
		return m[1]
	}
	return ""
}

func normalizeSpecValue(v string) string {
	return manual.CollapseSpace(strings.ReplaceAll(v, "*", ""))
}
