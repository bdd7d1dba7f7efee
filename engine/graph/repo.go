package graph

import (
	"context"
	"time"

	"github.com/WessleyAI/manualkg/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/spf13/cast"
)

const manualLabel = "ManualEntry"

// sessionAdapter narrows a CypherSession to the repo session interface.
type sessionAdapter struct {
	sess CypherSession
}

func (a sessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (repo.Result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a sessionAdapter) Close(ctx context.Context) error { return a.sess.Close(ctx) }

// newManualRepo stores ManualEntry nodes keyed by part_no.
func newManualRepo(o SessionOpener) *repo.NodeRepo[ManualEntry] {
	return repo.NewNodeRepo(manualLabel, "part_no", manualToMap, manualFromRecord,
		func(ctx context.Context) repo.Session {
			return sessionAdapter{sess: o.OpenSession(ctx)}
		})
}

func manualToMap(m ManualEntry) map[string]any {
	return map[string]any{
		"part_no":     m.PartNo,
		"product":     m.Product,
		"models":      m.Models,
		"sections":    m.Sections,
		"status":      m.Status,
		"triplets":    int64(m.Triplets),
		"skipped":     int64(m.Skipped),
		"error":       m.Error,
		"ingested_at": m.IngestedAt.Unix(),
	}
}

func manualFromRecord(rec *neo4j.Record) (ManualEntry, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return ManualEntry{}, err
	}
	return manualFromProps(node.Props), nil
}

func manualFromProps(p map[string]any) ManualEntry {
	m := ManualEntry{
		PartNo:   strProp(p, "part_no"),
		Product:  strProp(p, "product"),
		Models:   cast.ToStringSlice(p["models"]),
		Sections: cast.ToStringSlice(p["sections"]),
		Status:   strProp(p, "status"),
		Triplets: cast.ToInt(p["triplets"]),
		Skipped:  cast.ToInt(p["skipped"]),
		Error:    strProp(p, "error"),
	}
	if ts := cast.ToInt64(p["ingested_at"]); ts > 0 {
		m.IngestedAt = time.Unix(ts, 0).UTC()
	}
	return m
}

func strProp(props map[string]any, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
