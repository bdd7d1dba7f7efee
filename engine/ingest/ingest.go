// Package ingest runs parsed manuals through validation, per-section triplet
// extraction and graph storage, and consumes manuals from NATS with retry
// and DLQ support.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/WessleyAI/manualkg/engine/domain"
	"github.com/WessleyAI/manualkg/engine/extract"
	"github.com/WessleyAI/manualkg/engine/graph"
	"github.com/WessleyAI/manualkg/engine/manual"
	"github.com/WessleyAI/manualkg/pkg/fn"
	"github.com/WessleyAI/manualkg/pkg/metrics"
	"github.com/WessleyAI/manualkg/pkg/resilience"
	"github.com/hashicorp/go-multierror"
)

// sectionOrder fixes the order triplets of a manual are stored in.
var sectionOrder = []manual.Kind{
	manual.KindTroubleshooting,
	manual.KindOperation,
	manual.KindSpecification,
}

// Store is the graph side of ingestion.
type Store interface {
	UpsertTriplets(ctx context.Context, triplets []domain.Triplet) (graph.UpsertStats, error)
	SaveManualEntry(ctx context.Context, m graph.ManualEntry) error
	GetManualEntry(ctx context.Context, partNo string) (graph.ManualEntry, bool, error)
	DeleteManual(ctx context.Context, partNo string) (int64, error)
}

// Deps holds the external dependencies for the ingestion pipeline.
type Deps struct {
	Extractors map[manual.Kind]extract.Extractor
	Store      Store
	// Retry wraps the upsert stage when MaxAttempts > 0.
	Retry fn.RetryOpts
	// Breaker guards the upsert stage when set.
	Breaker *resilience.Breaker
	// Limiter paces the consumer when set.
	Limiter *resilience.Limiter
	Metrics *metrics.Registry
	Logger  *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// --- Pipeline Stages ---

// Validate checks that a document names a manual and carries a section.
var Validate fn.Stage[manual.Document, manual.Document] = func(_ context.Context, doc manual.Document) fn.Result[manual.Document] {
	if doc.ID() == "" {
		return fn.Err[manual.Document](domain.NewShapeError("part_number", nil))
	}
	if len(doc.Sections()) == 0 {
		return fn.Err[manual.Document](domain.NewShapeError("sections", nil))
	}
	return fn.Ok(doc)
}

// sectionResult is the output of one extractor.
type sectionResult struct {
	kind     manual.Kind
	triplets []domain.Triplet
	err      error
}

// NewExtract creates a stage that runs every present section through its
// extractor concurrently. A rejected section is recorded and the rest are
// kept; the stage fails only when every section was rejected.
func NewExtract(extractors map[manual.Kind]extract.Extractor, log *slog.Logger) fn.Stage[manual.Document, Extracted] {
	return func(ctx context.Context, doc manual.Document) fn.Result[Extracted] {
		secs := doc.Sections()
		kinds := fn.Filter(sectionOrder, func(k manual.Kind) bool { return secs[k] != nil })

		results := fn.ParMap(kinds, len(kinds), func(k manual.Kind) sectionResult {
			ex, ok := extractors[k]
			if !ok {
				return sectionResult{kind: k, err: fmt.Errorf("no extractor for %s", k)}
			}
			ts, err := ex.MakeTriplets(ctx, secs[k])
			return sectionResult{kind: k, triplets: ts, err: err}
		})

		out := Extracted{PartNo: doc.ID(), Force: doc.Force, Rejected: make(map[manual.Kind]string)}
		var (
			errs   *multierror.Error
			models []string
		)
		for _, r := range results {
			if r.err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", r.kind, r.err))
				out.Rejected[r.kind] = r.err.Error()
				continue
			}
			env := secs[r.kind]
			out.Sections = append(out.Sections, string(r.kind))
			out.Triplets = append(out.Triplets, r.triplets...)
			models = append(models, env.Models...)
			if out.Product == "" {
				out.Product = productOf(env.Product)
			}
		}
		if len(out.Sections) == 0 {
			return fn.Err[Extracted](fmt.Errorf("ingest: %s: every section rejected: %w", out.PartNo, errs.ErrorOrNil()))
		}
		if errs != nil {
			log.Warn("ingest: sections rejected", "part_no", out.PartNo, "rejected", len(out.Rejected), "error", errs.ErrorOrNil())
		}
		out.Models = fn.Unique(models)
		sort.Strings(out.Models)
		return fn.Ok(out)
	}
}

func productOf(raw string) string {
	if p, err := extract.NormalizeProduct(raw); err == nil {
		return p
	}
	return raw
}

// NewUpsert creates a stage that merges the triplets of a manual and records
// it in the manual registry. A forced document first drops every edge the
// manual stored before.
func NewUpsert(store Store, log *slog.Logger) fn.Stage[Extracted, Outcome] {
	return func(ctx context.Context, x Extracted) fn.Result[Outcome] {
		if x.Force {
			n, err := store.DeleteManual(ctx, x.PartNo)
			if err != nil {
				return fn.Err[Outcome](fmt.Errorf("ingest: replace %s: %w", x.PartNo, err))
			}
			log.Info("ingest: dropped previous edges", "part_no", x.PartNo, "deleted", n)
		}

		entry := graph.ManualEntry{
			PartNo:     x.PartNo,
			Product:    x.Product,
			Models:     x.Models,
			Sections:   x.Sections,
			Skipped:    len(x.Rejected),
			IngestedAt: time.Now().UTC(),
		}
		stats, err := store.UpsertTriplets(ctx, x.Triplets)
		if err != nil {
			entry.Status = graph.ManualFailed
			entry.Error = err.Error()
			if serr := store.SaveManualEntry(ctx, entry); serr != nil {
				log.Warn("ingest: registry update failed", "part_no", x.PartNo, "error", serr)
			}
			return fn.Err[Outcome](fmt.Errorf("ingest: upsert %s: %w", x.PartNo, err))
		}

		entry.Status = graph.ManualIngested
		entry.Triplets = stats.Triplets
		if err := store.SaveManualEntry(ctx, entry); err != nil {
			return fn.Err[Outcome](fmt.Errorf("ingest: register %s: %w", x.PartNo, err))
		}
		return fn.Ok(Outcome{
			PartNo:   x.PartNo,
			Triplets: stats.Triplets,
			Batches:  stats.Batches,
			Sections: x.Sections,
			Skipped:  len(x.Rejected),
		})
	}
}

// LoggedTap returns a stage that logs entry/exit with duration.
func LoggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return func(ctx context.Context, t T) fn.Result[T] {
		log.Debug("stage.enter", "stage", name)
		start := time.Now()
		defer func() {
			log.Debug("stage.exit", "stage", name, "duration", time.Since(start))
		}()
		return fn.Ok(t)
	}
}

// NewExtractPipeline composes Validate and Extract. The dry-run CLI uses it
// without a store.
func NewExtractPipeline(deps Deps) fn.Stage[manual.Document, Extracted] {
	log := deps.logger()
	validated := fn.Then(LoggedTap[manual.Document]("validate", log), fn.TracedStage("ingest.validate", Validate))
	return fn.Then(validated, fn.Then(
		LoggedTap[manual.Document]("extract", log),
		fn.TracedStage("ingest.extract", NewExtract(deps.Extractors, log)),
	))
}

// NewPipeline constructs the full ingestion pipeline:
// Validate → Extract → Upsert, with the upsert wrapped in retry and circuit
// breaker when configured.
func NewPipeline(deps Deps) fn.Stage[manual.Document, Outcome] {
	log := deps.logger()
	upsert := NewUpsert(deps.Store, log)
	if deps.Retry.MaxAttempts > 0 {
		opts := deps.Retry
		if opts.Retryable == nil {
			opts.Retryable = retryable
		}
		upsert = fn.RetryStage(opts, upsert)
	}
	if deps.Breaker != nil {
		upsert = resilience.BreakerStage(deps.Breaker, upsert)
	}
	return fn.Then(NewExtractPipeline(deps), fn.Then(
		LoggedTap[Extracted]("upsert", log),
		fn.TracedStage("ingest.upsert", upsert),
	))
}
