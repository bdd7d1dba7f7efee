// Package extract turns parsed manual sections into schema-conformant
// triplets. Each extractor favors partial success for inner items and fails
// closed on top-level shape errors.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/manualkg/engine/domain"
	"github.com/WessleyAI/manualkg/engine/manual"
	"github.com/WessleyAI/manualkg/engine/triplet"
	"github.com/WessleyAI/manualkg/pkg/media"
	"github.com/WessleyAI/manualkg/pkg/metrics"
	"github.com/WessleyAI/manualkg/pkg/nlp"
	"github.com/hashicorp/go-multierror"
)

// Extractor converts one manual envelope into triplets. A nil slice with a
// non-nil error means the whole envelope was rejected.
type Extractor interface {
	MakeTriplets(ctx context.Context, env *manual.Envelope) ([]domain.Triplet, error)
}

// ImageResolver resolves an image descriptor to a stored image.
type ImageResolver interface {
	ImageInformation(ctx context.Context, req media.Request) (media.Response, error)
}

// NLPClient runs semantic-role labeling and constituency parsing.
type NLPClient interface {
	SrlCons(ctx context.Context, sentence string) (nlp.Response, error)
}

// Deps are the collaborators shared by every extractor.
type Deps struct {
	Builder      *triplet.Builder
	Images       ImageResolver // optional; figures are skipped when nil
	Enricher     *Enricher     // optional; no knowledge is attached when nil
	ImageTimeout time.Duration
	Metrics      *metrics.Registry
	Logger       *slog.Logger
}

const defaultImageTimeout = 5 * time.Second

// base carries the collaborators and the shared sub-builders.
type base struct {
	name         string
	builder      *triplet.Builder
	images       ImageResolver
	enricher     *Enricher
	imageTimeout time.Duration
	metrics      *metrics.Registry
	logger       *slog.Logger
}

func newBase(name string, d Deps) base {
	b := base{
		name:         name,
		builder:      d.Builder,
		images:       d.Images,
		enricher:     d.Enricher,
		imageTimeout: d.ImageTimeout,
		metrics:      d.Metrics,
		logger:       d.Logger,
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.imageTimeout <= 0 {
		b.imageTimeout = defaultImageTimeout
	}
	return b
}

// collector accumulates triplets and skipped-item errors for one envelope.
type collector struct {
	out  []domain.Triplet
	errs *multierror.Error
}

func (c *collector) skip(err error) {
	c.errs = multierror.Append(c.errs, err)
}

// emit builds one triplet, recording a schema failure as a skipped item.
func (b *base) emit(c *collector, ec triplet.ExtractionContext, s triplet.Spec) bool {
	t, err := b.builder.Build(ec, s)
	if err != nil {
		c.skip(fmt.Errorf("%s %q -> %q: %w", s.Key, s.DomainValue, s.RangeValue, err))
		return false
	}
	c.out = append(c.out, t)
	return true
}

// begin validates the envelope and resolves the shared context.
func (b *base) begin(env *manual.Envelope, mainSection string) (triplet.ExtractionContext, error) {
	if env == nil {
		return triplet.ExtractionContext{}, domain.NewShapeError("envelope", nil)
	}
	if env.Status != domain.StatusSuccess {
		return triplet.ExtractionContext{}, fmt.Errorf("%w: %s", domain.ErrExtractionStatus, env.Status)
	}
	if err := env.Validate(); err != nil {
		return triplet.ExtractionContext{}, err
	}
	product, err := NormalizeProduct(env.Product)
	if err != nil {
		return triplet.ExtractionContext{}, err
	}
	return triplet.ExtractionContext{
		PartNo:         env.PartNumber,
		ProductType:    product,
		SubProductType: env.SubProductType,
		MainSection:    mainSection,
		EntityPrdType:  DefaultEntityTypes(product),
	}, nil
}

// reject logs a fail-closed envelope rejection.
func (b *base) reject(env *manual.Envelope, err error) ([]domain.Triplet, error) {
	partNo := ""
	if env != nil {
		partNo = env.PartNumber
	}
	b.logger.Error("extract: envelope rejected", "extractor", b.name, "part_no", partNo, "error", err)
	if b.metrics != nil {
		b.metrics.Counter(metrics.WithLabels("manualkg_extract_rejected_total", "extractor", b.name),
			"Envelopes rejected by an extractor").Inc()
	}
	return nil, err
}

// identity appends TypeOf and HAS_PART_NUMBER for every model.
func (b *base) identity(c *collector, ec triplet.ExtractionContext, models []string) {
	for _, m := range models {
		b.emit(c, ec, triplet.Spec{DomainValue: m, Key: domain.LabelTypeOf, RangeValue: ec.ProductType})
		b.emit(c, ec, triplet.Spec{DomainValue: m, Key: domain.LabelHasPartNumber, RangeValue: ec.PartNo})
	}
}

// finish logs skipped items once and records counts.
func (b *base) finish(ec triplet.ExtractionContext, c *collector) []domain.Triplet {
	skipped := 0
	if c.errs != nil {
		skipped = len(c.errs.Errors)
		b.logger.Warn("extract: items skipped",
			"extractor", b.name,
			"part_no", ec.PartNo,
			"skipped", skipped,
			"error", c.errs.ErrorOrNil(),
		)
	}
	if b.metrics != nil {
		b.metrics.Counter(metrics.WithLabels("manualkg_triplets_total", "extractor", b.name),
			"Triplets produced").Add(int64(len(c.out)))
		b.metrics.Counter(metrics.WithLabels("manualkg_extract_skipped_total", "extractor", b.name),
			"Items skipped during extraction").Add(int64(skipped))
	}
	return c.out
}

// NewSet returns one extractor per manual section kind, sharing d.
func NewSet(d Deps) map[manual.Kind]Extractor {
	return map[manual.Kind]Extractor{
		manual.KindTroubleshooting: NewTroubleShooting(d),
		manual.KindOperation:       NewOperation(d),
		manual.KindSpecification:   NewSpecification(d),
	}
}
