// Package graph stores manual triplets in Neo4j and answers the tiered read
// queries of the query layer. Nodes are merged by (label, name) and edges by
// (domain, label, range, part_number), so re-ingesting a manual is a no-op.
package graph

import "time"

// Row is one result record keyed by column name.
type Row map[string]any

// TierQuery is one read statement of a priority tier. Lower Priority wins.
type TierQuery struct {
	Priority int
	Name     string
	Cypher   string
	Params   map[string]any
}

// TierResult is the winning tier of RunTiers.
type TierResult struct {
	Priority int
	Name     string
	Rows     []Row
}

// UpsertStats summarizes one UpsertTriplets call.
type UpsertStats struct {
	Triplets int `json:"triplets"`
	Batches  int `json:"batches"`
}

// Manual ingestion states.
const (
	ManualIngested = "ingested"
	ManualFailed   = "failed"
)

// ManualEntry records one ingested manual, keyed by part number.
type ManualEntry struct {
	PartNo     string    `json:"part_no"`
	Product    string    `json:"product"`
	Models     []string  `json:"models"`
	Sections   []string  `json:"sections"`
	Status     string    `json:"status"`
	Triplets   int       `json:"triplets"`
	Skipped    int       `json:"skipped"`
	Error      string    `json:"error,omitempty"`
	IngestedAt time.Time `json:"ingested_at"`
}

// ManualFilter specifies criteria for finding manuals.
type ManualFilter struct {
	Product string
	Model   string
	Status  string
}

// ManualStats holds aggregate counts for manual entries.
type ManualStats struct {
	Total     int            `json:"total"`
	ByStatus  map[string]int `json:"by_status"`
	ByProduct map[string]int `json:"by_product"`
}

// Stats is the graph-wide summary served by the stats endpoint.
type Stats struct {
	Nodes         map[string]int64 `json:"nodes"`
	Relationships map[string]int64 `json:"relationships"`
	Manuals       ManualStats      `json:"manuals"`
}
