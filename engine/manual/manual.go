// Package manual decodes pre-parsed appliance manual dictionaries into typed
// envelopes and section content.
package manual

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/WessleyAI/manualkg/engine/domain"
	"github.com/spf13/cast"
)

// Kind names the manual section an envelope carries.
type Kind string

const (
	KindTroubleshooting Kind = "troubleshooting"
	KindOperation       Kind = "operation"
	KindSpecification   Kind = "specification"
)

// Envelope is one extracted section of a manual together with the metadata
// every extractor needs.
type Envelope struct {
	Status         domain.ExtractionStatus `json:"status"`
	Product        string                  `json:"product"`
	SubProductType string                  `json:"sub_product_type,omitempty"`
	PartNumber     string                  `json:"part_number"`
	Models         []string                `json:"models"`
	Data           map[string]any          `json:"data"`
}

// Document bundles the sections of one manual for ingestion.
type Document struct {
	PartNumber      string    `json:"part_number"`
	Force           bool      `json:"force,omitempty"`
	Troubleshooting *Envelope `json:"troubleshooting,omitempty"`
	Operation       *Envelope `json:"operation,omitempty"`
	Specification   *Envelope `json:"specification,omitempty"`
}

// Sections returns the present envelopes keyed by kind.
func (d Document) Sections() map[Kind]*Envelope {
	out := make(map[Kind]*Envelope, 3)
	if d.Troubleshooting != nil {
		out[KindTroubleshooting] = d.Troubleshooting
	}
	if d.Operation != nil {
		out[KindOperation] = d.Operation
	}
	if d.Specification != nil {
		out[KindSpecification] = d.Specification
	}
	return out
}

// ID returns the document's part number, falling back to the first section's.
func (d Document) ID() string {
	if d.PartNumber != "" {
		return d.PartNumber
	}
	for _, k := range []Kind{KindTroubleshooting, KindOperation, KindSpecification} {
		if env := d.Sections()[k]; env != nil && env.PartNumber != "" {
			return env.PartNumber
		}
	}
	return ""
}

// Decode reads one JSON envelope from r.
func Decode(r io.Reader) (*Envelope, error) {
	var raw map[string]any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("manual: decode: %w", err)
	}
	return FromMap(raw)
}

// DecodeDocument reads a multi-section document from r.
func DecodeDocument(r io.Reader) (Document, error) {
	var raw map[string]any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return Document{}, fmt.Errorf("manual: decode document: %w", err)
	}
	doc := Document{
		PartNumber: cast.ToString(raw["part_number"]),
		Force:      cast.ToBool(raw["force"]),
	}
	for _, k := range []Kind{KindTroubleshooting, KindOperation, KindSpecification} {
		sec, ok := raw[string(k)]
		if !ok || sec == nil {
			continue
		}
		m, err := cast.ToStringMapE(sec)
		if err != nil {
			return Document{}, domain.NewShapeError(string(k), err)
		}
		env, err := FromMap(m)
		if err != nil {
			return Document{}, err
		}
		if env.PartNumber == "" {
			env.PartNumber = doc.PartNumber
		}
		switch k {
		case KindTroubleshooting:
			doc.Troubleshooting = env
		case KindOperation:
			doc.Operation = env
		case KindSpecification:
			doc.Specification = env
		}
	}
	return doc, nil
}

// FromMap coerces a loosely typed manual dictionary into an Envelope. The
// status is required; data may be absent for non-success statuses.
func FromMap(raw map[string]any) (*Envelope, error) {
	status, ok := raw["status"]
	if !ok {
		return nil, domain.NewShapeError("status", nil)
	}
	env := &Envelope{
		Status:         domain.ExtractionStatus(cast.ToString(status)),
		Product:        strings.TrimSpace(cast.ToString(raw["product"])),
		SubProductType: strings.TrimSpace(cast.ToString(raw["sub_product_type"])),
		PartNumber:     strings.TrimSpace(cast.ToString(raw["part_number"])),
		Models:         StringList(raw["models"]),
	}
	if d, ok := raw["data"]; ok && d != nil {
		m, err := cast.ToStringMapE(d)
		if err != nil {
			return nil, domain.NewShapeError("data", err)
		}
		env.Data = m
	}
	return env, nil
}

// Validate checks the fields the extractors cannot work without.
func (e *Envelope) Validate() error {
	if e == nil {
		return domain.NewShapeError("envelope", nil)
	}
	if !e.Status.Valid() {
		return domain.NewShapeError("status", fmt.Errorf("unknown status %q", e.Status))
	}
	if e.Status != domain.StatusSuccess {
		return nil
	}
	if e.PartNumber == "" {
		return domain.NewShapeError("part_number", nil)
	}
	if len(e.Models) == 0 {
		return domain.NewShapeError("models", nil)
	}
	if e.Data == nil {
		return domain.NewShapeError("data", nil)
	}
	return nil
}

// StringList coerces a string or list value into a slice of trimmed,
// non-empty strings.
func StringList(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
		return nil
	}
	var out []string
	for _, s := range cast.ToStringSlice(v) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
