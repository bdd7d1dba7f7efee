package graph

import (
	"context"
	"fmt"
)

// NodeCounts returns node counts grouped by label.
func (g *GraphStore) NodeCounts(ctx context.Context) (map[string]int64, error) {
	return g.countBy(ctx, `MATCH (n) RETURN labels(n)[0] AS key, count(*) AS cnt`)
}

// RelationshipCounts returns relationship counts grouped by type.
func (g *GraphStore) RelationshipCounts(ctx context.Context) (map[string]int64, error) {
	return g.countBy(ctx, `MATCH ()-[r]->() RETURN type(r) AS key, count(*) AS cnt`)
}

// Stats collects node, relationship and manual counts.
func (g *GraphStore) Stats(ctx context.Context) (Stats, error) {
	var (
		s   Stats
		err error
	)
	if s.Nodes, err = g.NodeCounts(ctx); err != nil {
		return s, fmt.Errorf("graph: node counts: %w", err)
	}
	if s.Relationships, err = g.RelationshipCounts(ctx); err != nil {
		return s, fmt.Errorf("graph: relationship counts: %w", err)
	}
	if s.Manuals, err = g.ManualStats(ctx); err != nil {
		return s, fmt.Errorf("graph: manual stats: %w", err)
	}
	return s, nil
}

// countBy runs a query returning (key, cnt) rows.
func (g *GraphStore) countBy(ctx context.Context, cypher string) (map[string]int64, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64)
	for result.Next(ctx) {
		rec := result.Record()
		k, _ := rec.Get("key")
		c, _ := rec.Get("cnt")
		if key, ok := k.(string); ok {
			if cnt, ok := c.(int64); ok {
				counts[key] = cnt
			}
		}
	}
	return counts, nil
}
