package ingest

import (
	"encoding/json"

	"github.com/WessleyAI/manualkg/engine/domain"
	"github.com/WessleyAI/manualkg/engine/manual"
)

// Extracted is a manual after every present section went through its
// extractor.
type Extracted struct {
	PartNo   string
	Product  string
	Models   []string
	Sections []string
	Triplets []domain.Triplet
	// Rejected maps each section whose extractor failed closed to the error.
	Rejected map[manual.Kind]string
	Force    bool
}

// Outcome summarizes one stored manual.
type Outcome struct {
	PartNo   string   `json:"part_no"`
	Triplets int      `json:"triplets"`
	Batches  int      `json:"batches"`
	Sections []string `json:"sections"`
	Skipped  int      `json:"skipped"`
}

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	PartNo   string          `json:"part_no"`
	Error    string          `json:"error"`
	Retries  int             `json:"retries"`
	Document json.RawMessage `json:"document"`
}
