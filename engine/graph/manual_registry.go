package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/WessleyAI/manualkg/pkg/repo"
)

// SaveManualEntry creates or updates the registry node of a manual.
func (g *GraphStore) SaveManualEntry(ctx context.Context, m ManualEntry) error {
	if m.PartNo == "" {
		return fmt.Errorf("graph: save manual: empty part number")
	}
	if _, err := g.manuals.Upsert(ctx, m); err != nil {
		return fmt.Errorf("graph: save manual %s: %w", m.PartNo, err)
	}
	return nil
}

// GetManualEntry returns the registry entry of partNo. found is false when
// the manual was never ingested.
func (g *GraphStore) GetManualEntry(ctx context.Context, partNo string) (m ManualEntry, found bool, err error) {
	m, err = g.manuals.Get(ctx, partNo)
	if errors.Is(err, repo.ErrNotFound) {
		return ManualEntry{}, false, nil
	}
	if err != nil {
		return ManualEntry{}, false, fmt.Errorf("graph: get manual %s: %w", partNo, err)
	}
	return m, true, nil
}

// FindManuals returns manuals matching the given filter, ordered by part
// number.
func (g *GraphStore) FindManuals(ctx context.Context, f ManualFilter) ([]ManualEntry, error) {
	var conds []repo.Cond
	if f.Product != "" {
		conds = append(conds, repo.Eq("product", f.Product))
	}
	if f.Model != "" {
		conds = append(conds, repo.Has("models", f.Model))
	}
	if f.Status != "" {
		conds = append(conds, repo.Eq("status", f.Status))
	}
	entries, err := g.manuals.Find(ctx, conds...)
	if err != nil {
		return nil, fmt.Errorf("graph: find manuals: %w", err)
	}
	return entries, nil
}

// ManualStats returns aggregate counts for manual entries.
func (g *GraphStore) ManualStats(ctx context.Context) (ManualStats, error) {
	stats := ManualStats{
		ByStatus:  make(map[string]int),
		ByProduct: make(map[string]int),
	}

	byStatus, err := g.countBy(ctx, fmt.Sprintf(`MATCH (n:%s) RETURN n.status AS key, count(n) AS cnt`, manualLabel))
	if err != nil {
		return stats, err
	}
	for k, c := range byStatus {
		stats.ByStatus[k] = int(c)
		stats.Total += int(c)
	}

	byProduct, err := g.countBy(ctx, fmt.Sprintf(`MATCH (n:%s) RETURN n.product AS key, count(n) AS cnt`, manualLabel))
	if err != nil {
		return stats, err
	}
	for k, c := range byProduct {
		stats.ByProduct[k] = int(c)
	}
	return stats, nil
}
