package extract

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/WessleyAI/manualkg/pkg/nlp"
)

// Knowledge bucket names, stored as node properties.
const (
	BucketCause    = "cause"
	BucketTemporal = "temporal"
	BucketPurpose  = "purpose"
	BucketEntity   = "entity"
	BucketVerb     = "verb"
)

// Enricher derives knowledge tags from a sentence. It is best-effort: every
// failure yields nil.
type Enricher struct {
	client  NLPClient
	timeout time.Duration
	logger  *slog.Logger
}

// NewEnricher creates an Enricher. A non-positive timeout uses 3s.
func NewEnricher(client NLPClient, timeout time.Duration, logger *slog.Logger) *Enricher {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{client: client, timeout: timeout, logger: logger}
}

// Knowledge returns the non-empty buckets of sentence, or nil.
func (e *Enricher) Knowledge(ctx context.Context, sentence string) map[string][]string {
	if e == nil || e.client == nil || strings.TrimSpace(sentence) == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.SrlCons(ctx, sentence)
	if err != nil {
		e.logger.Debug("extract: enrichment unavailable", "error", err)
		return nil
	}
	if resp.Code != nlp.CodeSuccess {
		return nil
	}

	out := make(map[string][]string, 5)
	for name, vals := range map[string][]string{
		BucketCause:    resp.Data.SRL.Cause,
		BucketTemporal: resp.Data.SRL.Temp,
		BucketPurpose:  resp.Data.SRL.Purpose,
		BucketEntity:   resp.Data.Cons.NP,
		BucketVerb:     resp.Data.Cons.VB,
	} {
		if b := bucket(vals); len(b) > 0 {
			out[name] = b
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func bucket(vals []string) []string {
	var out []string
	for _, v := range vals {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
