// Package similarity maps a free-text user question to a canonical question
// key. Resolution runs in tiers and the first tier that matches wins: rule
// overrides, literal phrasing lookup, then embedding similarity with an
// optional fuzzy re-rank.
package similarity

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/WessleyAI/manualkg/engine/domain"
	"github.com/WessleyAI/manualkg/engine/semantic"
	"github.com/WessleyAI/manualkg/pkg/infoext"
	"github.com/WessleyAI/manualkg/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// MaxScore is the score of a rule or literal match.
const MaxScore = 1.0

// Tier identifies the resolution tier that produced a result.
type Tier int

const (
	TierNone Tier = iota
	TierRule
	TierLiteral
	TierEmbedding
	TierFuzzy
)

func (t Tier) String() string {
	switch t {
	case TierRule:
		return "rule"
	case TierLiteral:
		return "literal"
	case TierEmbedding:
		return "embedding"
	case TierFuzzy:
		return "fuzzy"
	default:
		return "none"
	}
}

// Request is one question to resolve.
type Request struct {
	Text       string
	Section    string
	Product    string
	SubProduct string
	TopK       int
	// L1Key restricts Tier 3 candidates to one category when recognized.
	L1Key string
}

// Match is one canonical key with its score.
type Match struct {
	Key      string  `json:"key"`
	Category string  `json:"category"`
	Relation string  `json:"relation,omitempty"`
	Intent   string  `json:"intent,omitempty"`
	Score    float64 `json:"score"`
}

// Result is the ordered outcome of Extract.
type Result struct {
	Supported bool                `json:"supported"`
	Code      domain.ResponseCode `json:"code"`
	Tier      Tier                `json:"tier"`
	Scope     semantic.Scope      `json:"scope"`
	Matches   []Match             `json:"matches"`
}

// Best returns the top match.
func (r Result) Best() (Match, bool) {
	if len(r.Matches) == 0 {
		return Match{}, false
	}
	return r.Matches[0], true
}

// Options tunes the embedding tiers.
type Options struct {
	TopK int
	// RerankN is how many cosine candidates the fuzzy re-rank considers.
	RerankN int
	// NoRerank disables Tier 3b.
	NoRerank bool
}

// DefaultOptions returns the defaults.
func DefaultOptions() Options {
	return Options{TopK: 5, RerankN: 20}
}

// Pipeline resolves questions against a Catalog.
type Pipeline struct {
	catalog  *Catalog
	embedder Embedder
	cache    *Cache
	opts     Options
	logger   *slog.Logger

	tierHits map[Tier]*metrics.Counter
	misses   *metrics.Counter
}

// New creates a pipeline. store may be nil.
func New(catalog *Catalog, embedder Embedder, store PhraseStore, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if opts.RerankN <= 0 {
		opts.RerankN = DefaultOptions().RerankN
	}
	return &Pipeline{
		catalog:  catalog,
		embedder: embedder,
		cache:    NewCache(embedder, store, logger),
		opts:     opts,
		logger:   logger,
	}
}

// Instrument registers per-tier hit counters on reg.
func (p *Pipeline) Instrument(reg *metrics.Registry) {
	p.tierHits = make(map[Tier]*metrics.Counter)
	for _, t := range []Tier{TierRule, TierLiteral, TierEmbedding, TierFuzzy} {
		p.tierHits[t] = reg.Counter(metrics.WithLabels("manualkg_similarity_hits_total", "tier", t.String()), "Questions resolved per similarity tier")
	}
	p.misses = reg.Counter("manualkg_similarity_misses_total", "Questions no tier could resolve")
}

// Catalog returns the pipeline's catalog.
func (p *Pipeline) Catalog() *Catalog { return p.catalog }

// Warm builds the embedding cache of every catalog scope.
func (p *Pipeline) Warm(ctx context.Context) error {
	for _, s := range p.catalog.Scopes() {
		_, entries, _ := p.catalog.Scope(s.Product, s.SubProduct, s.Section)
		if _, err := p.cache.Get(ctx, s, entries); err != nil {
			return err
		}
	}
	return nil
}

// Extract resolves req to an ordered list of canonical keys. An unsupported
// (section, product) pair is reported in the Result, not as an error.
func (p *Pipeline) Extract(ctx context.Context, req Request) (Result, error) {
	ctx, span := otel.Tracer("engine/similarity").Start(ctx, "similarity.extract")
	defer span.End()

	text := p.catalog.Normalize(req.Text)
	section := p.catalog.Section(req.Section)
	product := normalizeProduct(req.Product)
	span.SetAttributes(attribute.String("section", section), attribute.String("product", product))

	if !p.catalog.Supports(section, product) {
		p.logger.Info("unsupported query", "section", section, "product", product)
		return Result{Code: domain.CodeUnsupportedQuery}, nil
	}

	scope, entries, _ := p.catalog.Scope(product, req.SubProduct, section)
	summary := infoext.Extract(text)
	res := Result{Supported: true, Code: domain.CodeSuccess, Scope: scope}

	if m, ok := p.rule(ctx, scope, text, product); ok {
		return p.hit(res, TierRule, []Match{m}), nil
	}
	if m, ok := p.literal(ctx, summary, entries); ok {
		return p.hit(res, TierLiteral, []Match{m}), nil
	}
	if len(entries) == 0 {
		return p.miss(res), nil
	}

	topK := req.TopK
	if topK <= 0 {
		topK = p.opts.TopK
	}
	matches, best, err := p.embedding(ctx, scope, entries, text, req.L1Key)
	if err != nil {
		return Result{Supported: true, Code: domain.CodeInternalError, Scope: scope}, err
	}
	if len(matches) == 0 {
		return p.miss(res), nil
	}
	if p.opts.NoRerank {
		return p.hit(res, TierEmbedding, matches[:min(topK, len(matches))]), nil
	}
	return p.hit(res, TierFuzzy, p.rerank(ctx, matches, best, text, topK)), nil
}

func (p *Pipeline) hit(res Result, t Tier, m []Match) Result {
	res.Tier = t
	res.Matches = m
	if c := p.tierHits[t]; c != nil {
		c.Inc()
	}
	return res
}

func (p *Pipeline) miss(res Result) Result {
	res.Code = domain.CodeQueryMatchingDataNotFound
	if p.misses != nil {
		p.misses.Inc()
	}
	return res
}

func (p *Pipeline) match(scope semantic.Scope, key, category string, score float64) Match {
	m := Match{Key: key, Category: category, Score: score}
	if e, ok := p.catalog.Entry(scope, key); ok {
		m.Category, m.Relation, m.Intent = e.Category, e.Relation, e.Intent
	}
	return m
}

// rule is Tier 1: a hand-written phrase contained in the question.
func (p *Pipeline) rule(ctx context.Context, scope semantic.Scope, text, product string) (Match, bool) {
	_, span := otel.Tracer("engine/similarity").Start(ctx, "similarity.tier1.rule")
	defer span.End()

	r, ok := p.catalog.matchRule(text, product)
	if !ok {
		return Match{}, false
	}
	return p.match(scope, r.key, r.key, MaxScore), true
}

// literal is Tier 2: the question summary equals a representative phrasing
// or contains one as whole words. The longest phrasing wins.
func (p *Pipeline) literal(ctx context.Context, s infoext.Summary, entries []Entry) (Match, bool) {
	_, span := otel.Tracer("engine/similarity").Start(ctx, "similarity.tier2.literal")
	defer span.End()

	var (
		best    Match
		bestLen int
	)
	candidates := []string{s.Text, s.Phrase}
	for _, e := range entries {
		for _, phrase := range e.Phrases {
			for _, c := range candidates {
				if c == "" || !containsWords(c, phrase) {
					continue
				}
				if len(phrase) > bestLen {
					best = Match{Key: e.Key, Category: e.Category, Relation: e.Relation, Intent: e.Intent, Score: MaxScore}
					bestLen = len(phrase)
				}
			}
		}
	}
	return best, bestLen > 0
}

// containsWords reports whether phrase equals text or occurs in it on word
// boundaries.
func containsWords(text, phrase string) bool {
	if text == phrase {
		return true
	}
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}

// embedding is Tier 3: cosine similarity against every phrasing of the
// allowed categories, reduced to the max per key and sorted by score. best
// holds the best scoring phrasing of each key.
func (p *Pipeline) embedding(ctx context.Context, scope semantic.Scope, entries []Entry, text, l1Key string) ([]Match, map[string]string, error) {
	ctx, span := otel.Tracer("engine/similarity").Start(ctx, "similarity.tier3.embedding")
	defer span.End()

	phrases, err := p.cache.Get(ctx, scope, entries)
	if err != nil {
		return nil, nil, err
	}
	qv, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return nil, nil, fmt.Errorf("similarity: embed query: %w", err)
	}

	category := ""
	if l1Key != "" {
		for _, ph := range phrases {
			if strings.EqualFold(ph.Category, l1Key) {
				category = ph.Category
				break
			}
		}
	}

	scores := make(map[string]float64)
	cats := make(map[string]string)
	best := make(map[string]string)
	var order []string
	for _, ph := range phrases {
		if category != "" && ph.Category != category {
			continue
		}
		sc := cosine(qv, ph.Vector)
		prev, seen := scores[ph.Key]
		if !seen {
			order = append(order, ph.Key)
		}
		if !seen || sc > prev {
			scores[ph.Key] = sc
			cats[ph.Key] = ph.Category
			best[ph.Key] = ph.Text
		}
	}

	out := make([]Match, 0, len(order))
	for _, k := range order {
		out = append(out, p.match(scope, k, cats[k], scores[k]))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	span.SetAttributes(attribute.Int("candidates", len(out)))
	return out, best, nil
}

// rerank is Tier 3b: the top RerankN cosine candidates are rescored as
// cosine * tokenSetRatio / 100. Equal combined scores keep cosine order.
func (p *Pipeline) rerank(ctx context.Context, matches []Match, best map[string]string, query string, topK int) []Match {
	_, span := otel.Tracer("engine/similarity").Start(ctx, "similarity.tier3b.fuzzy")
	defer span.End()

	n := min(p.opts.RerankN, len(matches))
	out := make([]Match, n)
	copy(out, matches[:n])
	q := strings.ToLower(query)
	for i := range out {
		out[i].Score = out[i].Score * tokenSetRatio(q, best[out[i].Key]) / 100
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out[:min(topK, len(out))]
}
