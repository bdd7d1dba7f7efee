package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// NodeRepo keeps values of T as properties of nodes labelled Label and
// keyed by the IDKey property.
type NodeRepo[T any] struct {
	Label string
	IDKey string

	toProps    func(T) map[string]any
	fromRecord func(*neo4j.Record) (T, error)
	open       func(ctx context.Context) Session
}

// NewNodeRepo creates a repository. fromRecord decodes rows that return the
// node as "n".
func NewNodeRepo[T any](
	label, idKey string,
	toProps func(T) map[string]any,
	fromRecord func(*neo4j.Record) (T, error),
	open func(ctx context.Context) Session,
) *NodeRepo[T] {
	return &NodeRepo[T]{Label: label, IDKey: idKey, toProps: toProps, fromRecord: fromRecord, open: open}
}

// Get returns the node with id, or an error wrapping ErrNotFound.
func (r *NodeRepo[T]) Get(ctx context.Context, id any) (T, error) {
	var zero T
	sess := r.open(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) RETURN n", r.Label, r.IDKey)
	res, err := sess.Run(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return zero, err
	}
	if !res.Next(ctx) {
		return zero, fmt.Errorf("%s %v: %w", r.Label, id, ErrNotFound)
	}
	return r.fromRecord(res.Record())
}

// Upsert merges the node on its id and overwrites the given properties.
func (r *NodeRepo[T]) Upsert(ctx context.Context, v T) (T, error) {
	var zero T
	sess := r.open(ctx)
	defer sess.Close(ctx)

	props := r.toProps(v)
	cypher := fmt.Sprintf("MERGE (n:%s {%s: $id}) SET n += $props RETURN n", r.Label, r.IDKey)
	res, err := sess.Run(ctx, cypher, map[string]any{"id": props[r.IDKey], "props": props})
	if err != nil {
		return zero, err
	}
	if !res.Next(ctx) {
		return zero, fmt.Errorf("upsert %s %v: no row returned", r.Label, props[r.IDKey])
	}
	return r.fromRecord(res.Record())
}

// Find returns the nodes matching every cond, ordered by id. Rows that do
// not decode are skipped.
func (r *NodeRepo[T]) Find(ctx context.Context, conds ...Cond) ([]T, error) {
	sess := r.open(ctx)
	defer sess.Close(ctx)

	cypher, params := r.findCypher(conds)
	res, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	var out []T
	for res.Next(ctx) {
		v, err := r.fromRecord(res.Record())
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *NodeRepo[T]) findCypher(conds []Cond) (string, map[string]any) {
	params := make(map[string]any, len(conds))
	where := make([]string, 0, len(conds))
	for _, c := range conds {
		params[c.Prop] = c.Value
		if c.In {
			where = append(where, fmt.Sprintf("$%s IN n.%s", c.Prop, c.Prop))
		} else {
			where = append(where, fmt.Sprintf("n.%s = $%s", c.Prop, c.Prop))
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "MATCH (n:%s)", r.Label)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	fmt.Fprintf(&b, " RETURN n ORDER BY n.%s", r.IDKey)
	return b.String(), params
}
