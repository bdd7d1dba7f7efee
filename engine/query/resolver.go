package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/WessleyAI/manualkg/engine/domain"
	"github.com/WessleyAI/manualkg/engine/graph"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// GraphReader is the read side of the graph store.
type GraphReader interface {
	PartNumbers(ctx context.Context, model string) ([]string, error)
	RunTiers(ctx context.Context, tiers []graph.TierQuery) (graph.TierResult, error)
}

// Resolver answers resolved questions from the graph.
type Resolver struct {
	former *Former
	graph  GraphReader
	logger *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(former *Former, g GraphReader, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{former: former, graph: g, logger: logger}
}

// Resolve forms the intent of r, restricts it to the model's manuals, runs
// the tiers and parses the winner. The code is always set; err is non-nil
// only with INVALID_REQUEST or INTERNAL_ERROR.
func (s *Resolver) Resolve(ctx context.Context, r Resolved) (Answer, domain.ResponseCode, error) {
	ctx, span := otel.Tracer("engine/query").Start(ctx, "query.resolve")
	defer span.End()

	in, err := s.former.Form(r)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidQuery) {
			return Answer{}, domain.CodeInvalidRequest, err
		}
		return Answer{}, domain.CodeInternalError, err
	}

	parts, err := s.graph.PartNumbers(ctx, r.Model)
	if err != nil {
		return Answer{}, domain.CodeInternalError, fmt.Errorf("query: resolve: %w", err)
	}
	if len(parts) == 0 {
		s.logger.Info("no manual for model", "model", r.Model)
		return Answer{}, domain.CodeDataNotFound, nil
	}
	in.PartNumbers = parts
	span.SetAttributes(
		attribute.String("relation", in.Relation),
		attribute.String("match", string(in.Match)),
		attribute.Bool("whole_category", in.WholeCategory),
	)

	res, err := s.graph.RunTiers(ctx, Tiers(in))
	if err != nil {
		return Answer{}, domain.CodeInternalError, fmt.Errorf("query: resolve: %w", err)
	}
	if len(res.Rows) == 0 {
		return Answer{}, domain.CodeQueryMatchingDataNotFound, nil
	}
	span.SetAttributes(attribute.String("tier", res.Name))
	s.logger.Debug("tier answered", "model", r.Model, "relation", in.Relation, "name", in.Name, "tier", res.Name, "rows", len(res.Rows))

	a := ParseRows(res.Rows)
	if a.Empty() {
		return a, domain.CodeQueryMatchingDataNotFound, nil
	}
	return a, domain.CodeSuccess, nil
}
