// Package repo stores small registry nodes in Neo4j, one node per id,
// alongside the triplet graph.
package repo

import (
	"context"
	"errors"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ErrNotFound is returned by Get when no node has the id.
var ErrNotFound = errors.New("not found")

// Result is the part of a neo4j result the repository reads.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

// Session runs auto-commit statements.
type Session interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
	Close(ctx context.Context) error
}

// Cond is one property condition of Find.
type Cond struct {
	Prop  string
	Value any
	// In matches when Value is an element of the list property Prop.
	In bool
}

// Eq matches nodes whose prop equals v.
func Eq(prop string, v any) Cond { return Cond{Prop: prop, Value: v} }

// Has matches nodes whose list property prop contains v.
func Has(prop string, v any) Cond { return Cond{Prop: prop, Value: v, In: true} }
