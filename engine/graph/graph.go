package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/WessleyAI/manualkg/engine/domain"
	"github.com/WessleyAI/manualkg/pkg/fn"
	"github.com/WessleyAI/manualkg/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchSize = 500
	tierWorkers      = 4
)

// GraphStore provides triplet storage and tiered reads on top of Neo4j.
type GraphStore struct {
	opener    SessionOpener
	manuals   *repo.NodeRepo[ManualEntry]
	batchSize int
	logger    *slog.Logger
}

// New creates a GraphStore over a driver. database may be empty for the
// server default.
func New(driver neo4j.DriverWithContext, database string) *GraphStore {
	return NewWithOpener(driverOpener{driver: driver, database: database})
}

// NewWithOpener creates a GraphStore over any session source.
func NewWithOpener(o SessionOpener) *GraphStore {
	g := &GraphStore{opener: o, batchSize: defaultBatchSize, logger: slog.Default()}
	g.manuals = newManualRepo(o)
	return g
}

// WithLogger sets the logger.
func (g *GraphStore) WithLogger(l *slog.Logger) *GraphStore {
	if l != nil {
		g.logger = l
	}
	return g
}

// UpsertTriplets merges every triplet. Nodes are keyed by (type, name) and
// content edges by (domain, label, range) plus their identifying properties
// (see edgeKeys). Other properties are overwritten. Each batch of triplets is
// one write transaction.
func (g *GraphStore) UpsertTriplets(ctx context.Context, triplets []domain.Triplet) (UpsertStats, error) {
	var stats UpsertStats
	for _, batch := range fn.Chunk(triplets, g.batchSize) {
		if err := g.upsertBatch(ctx, batch); err != nil {
			return stats, fmt.Errorf("graph: upsert batch %d: %w", stats.Batches+1, err)
		}
		stats.Batches++
		stats.Triplets += len(batch)
	}
	return stats, nil
}

func (g *GraphStore) upsertBatch(ctx context.Context, batch []domain.Triplet) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		for _, t := range batch {
			cypher, params := mergeTriplet(t)
			if _, err := tx.Run(ctx, cypher, params); err != nil {
				return nil, fmt.Errorf("%s -[%s]-> %s: %w", t.Domain.Name, t.Relation.Label, t.Range.Name, err)
			}
		}
		return nil, nil
	})
	return err
}

// edgeKeys are the relation properties that tell apart parallel edges
// between the same two nodes, in MERGE pattern order.
var edgeKeys = []string{domain.PropPartNumber, domain.PropIssueType, "problem", domain.PropSpecKey}

// mergeTriplet renders the MERGE statement of one triplet. The edge is
// matched on every edgeKeys property it carries; entity_prd_type is unioned
// into the stored list instead of overwritten.
func mergeTriplet(t domain.Triplet) (string, map[string]any) {
	eprops := sanitizeProps(t.Relation.Properties)
	params := map[string]any{
		"dname":  t.Domain.Name,
		"rname":  t.Range.Name,
		"dprops": sanitizeProps(t.Domain.Properties),
		"rprops": sanitizeProps(t.Range.Properties),
	}

	var keys []string
	for _, k := range edgeKeys {
		v, ok := eprops[k]
		if !ok {
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			continue
		}
		param := "k_" + k
		keys = append(keys, fmt.Sprintf("%s: $%s", k, param))
		params[param] = v
	}
	edgeKey := ""
	if len(keys) > 0 {
		edgeKey = " {" + strings.Join(keys, ", ") + "}"
	}

	set := "SET r += $eprops"
	if v, ok := eprops[domain.PropEntityPrdType]; ok {
		delete(eprops, domain.PropEntityPrdType)
		params["etypes"] = stringList(v)
		set += ", r.entity_prd_type = coalesce(r.entity_prd_type, []) + " +
			"[x IN $etypes WHERE NOT x IN coalesce(r.entity_prd_type, [])]"
	}
	params["eprops"] = eprops

	cypher := fmt.Sprintf(
		`MERGE (a:%s {name: $dname}) SET a += $dprops
		 MERGE (b:%s {name: $rname}) SET b += $rprops
		 MERGE (a)-[r:%s%s]->(b) %s`,
		sanitizeLabel(string(t.Domain.Type)),
		sanitizeLabel(string(t.Range.Type)),
		sanitizeRelType(t.Relation.Label),
		edgeKey,
		set,
	)
	return cypher, params
}

func stringList(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case string:
		if x == "" {
			return []string{}
		}
		return []string{x}
	}
	return []string{fmt.Sprint(v)}
}

// DeleteManual removes every content edge carrying partNo.
func (g *GraphStore) DeleteManual(ctx context.Context, partNo string) (int64, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH ()-[r {part_number: $part}]->() DELETE r RETURN count(r) AS deleted`
	result, err := sess.Run(ctx, cypher, map[string]any{"part": partNo})
	if err != nil {
		return 0, fmt.Errorf("graph: delete manual %s: %w", partNo, err)
	}
	if !result.Next(ctx) {
		return 0, nil
	}
	n, _ := result.Record().Get("deleted")
	deleted, _ := n.(int64)
	return deleted, nil
}

// PartNumbers returns the part numbers of every manual that covers model.
func (g *GraphStore) PartNumbers(ctx context.Context, model string) ([]string, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf(
		`MATCH (m:%s {name: $model})-[:%s]->(p:%s) RETURN DISTINCT p.name AS part`,
		domain.NodeModel, domain.LabelHasPartNumber, domain.NodePartNumber,
	)
	result, err := sess.Run(ctx, cypher, map[string]any{"model": model})
	if err != nil {
		return nil, fmt.Errorf("graph: part numbers of %s: %w", model, err)
	}
	var parts []string
	for result.Next(ctx) {
		v, _ := result.Record().Get("part")
		if s, ok := v.(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	sort.Strings(parts)
	return parts, nil
}

// RunTiers runs every tier query concurrently on a small worker pool, waits
// for all of them and returns the non-empty result with the lowest
// Priority. A failed tier is logged and treated as empty; the error is
// returned only when no tier produced rows and at least one failed.
func (g *GraphStore) RunTiers(ctx context.Context, tiers []TierQuery) (TierResult, error) {
	rows := make([][]Row, len(tiers))
	errs := make([]error, len(tiers))

	var eg errgroup.Group
	eg.SetLimit(tierWorkers)
	for i, q := range tiers {
		eg.Go(func() error {
			rows[i], errs[i] = g.Query(ctx, q.Cypher, q.Params)
			return nil
		})
	}
	_ = eg.Wait()

	best := -1
	var firstErr error
	for i, q := range tiers {
		if errs[i] != nil {
			g.logger.Warn("tier query failed", "tier", q.Name, "priority", q.Priority, "error", errs[i])
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		if len(rows[i]) == 0 {
			continue
		}
		if best < 0 || q.Priority < tiers[best].Priority {
			best = i
		}
	}
	if best < 0 {
		if firstErr != nil {
			return TierResult{}, fmt.Errorf("graph: run tiers: %w", firstErr)
		}
		return TierResult{}, nil
	}
	return TierResult{Priority: tiers[best].Priority, Name: tiers[best].Name, Rows: rows[best]}, nil
}

// Query runs one read statement and collects its rows.
func (g *GraphStore) Query(ctx context.Context, cypher string, params map[string]any) ([]Row, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	var rows []Row
	for result.Next(ctx) {
		rec := result.Record()
		row := make(Row, len(rec.Keys))
		for i, k := range rec.Keys {
			if i < len(rec.Values) {
				row[k] = rec.Values[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// sanitizeProps flattens nested maps into "key_sub" entries and renders
// values Neo4j cannot store as strings.
func sanitizeProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	flattenInto(out, "", props)
	return out
}

func flattenInto(out map[string]any, prefix string, props map[string]any) {
	for k, v := range props {
		key := k
		if prefix != "" {
			key = prefix + "_" + k
		}
		switch x := v.(type) {
		case nil:
		case string, bool, int, int32, int64, float32, float64:
			out[key] = x
		case []string:
			out[key] = x
		case []any:
			list := make([]string, 0, len(x))
			for _, e := range x {
				list = append(list, fmt.Sprint(e))
			}
			out[key] = list
		case map[string]any:
			flattenInto(out, key, x)
		default:
			out[key] = fmt.Sprint(x)
		}
	}
}

// sanitizeLabel keeps the identifier characters of a node label.
func sanitizeLabel(t string) string {
	safe := make([]byte, 0, len(t))
	for i := range t {
		c := t[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			safe = append(safe, c)
		}
	}
	if len(safe) == 0 {
		return "Node"
	}
	return string(safe)
}

// sanitizeRelType keeps the identifier characters of a relationship type.
// Case is preserved so the stored type is the schema label.
func sanitizeRelType(t string) string {
	safe := make([]byte, 0, len(t))
	for i := range t {
		c := t[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			safe = append(safe, c)
		}
	}
	if len(safe) == 0 {
		return "RELATED_TO"
	}
	return string(safe)
}

// RelType returns the stored relationship type of a relation label.
func RelType(label string) string { return sanitizeRelType(label) }

// NodeLabel returns the stored label of a node type.
func NodeLabel(t domain.NodeType) string { return sanitizeLabel(string(t)) }
