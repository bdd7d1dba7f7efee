// Package semantic persists the embedded canonical phrasings of the
// similarity pipeline. Phrasings are grouped by scope (product, sub-product
// type, section) and addressed by "{product}|{subtype}|{section}|{key}".
package semantic

import (
	"strings"

	"github.com/google/uuid"
)

// Scope identifies one cached phrase set.
type Scope struct {
	Product    string `json:"product"`
	SubProduct string `json:"sub_product"`
	Section    string `json:"section"`
}

// String renders "{product}|{subtype}|{section}".
func (s Scope) String() string {
	return strings.Join([]string{s.Product, s.SubProduct, s.Section}, "|")
}

// Key renders "{product}|{subtype}|{section}|{key}".
func (s Scope) Key(canonical string) string {
	return s.String() + "|" + canonical
}

// Phrase is one representative phrasing of a canonical key.
type Phrase struct {
	Key      string    `json:"key"`
	Category string    `json:"category"`
	Text     string    `json:"text"`
	Vector   []float32 `json:"vector"`
}

var pointNamespace = uuid.MustParse("6f1c1f7e-8a55-4b59-9a77-3f0d7f1e2c11")

// PointID is the deterministic point id of p within s.
func PointID(s Scope, p Phrase) string {
	return uuid.NewSHA1(pointNamespace, []byte(s.Key(p.Key)+"|"+p.Text)).String()
}
