package similarity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/WessleyAI/manualkg/engine/domain"
	"github.com/WessleyAI/manualkg/engine/semantic"
	"github.com/WessleyAI/manualkg/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bowEmbedder embeds text as word counts over a fixed vocabulary.
type bowEmbedder struct {
	vocab   []string
	embeds  atomic.Int32
	batches atomic.Int32
	err     error
}

func newBowEmbedder() *bowEmbedder {
	return &bowEmbedder{vocab: []string{"water", "does", "not", "drain", "fill", "bad", "smell", "from", "drum", "will", "the"}}
}

func (e *bowEmbedder) vec(text string) []float32 {
	v := make([]float32, len(e.vocab))
	for _, w := range strings.Fields(text) {
		for i, word := range e.vocab {
			if w == word {
				v[i]++
			}
		}
	}
	return v
}

func (e *bowEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.embeds.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	return e.vec(text), nil
}

func (e *bowEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.batches.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vec(t)
	}
	return out, nil
}

const testCatalog = `
sections:
  troubleshooting: [washing machine]
scopes:
  - product: washing machine
    section: troubleshooting
    entries:
      - key: OE
        category: Error Messages
        relation: HAS_ERROR_CODE
        intent: cause
        phrases: ["water does not drain"]
      - key: IE
        category: Error Messages
        relation: HAS_ERROR_CODE
        intent: cause
        phrases: ["water does not fill"]
      - key: Odor
        category: Odor
        relation: HAS_ODOR_PROBLEM
        intent: cause
        phrases: ["bad smell from drum"]
`

func testPipeline(t *testing.T, opts Options, store PhraseStore) (*Pipeline, *bowEmbedder) {
	t.Helper()
	cat, err := ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)
	emb := newBowEmbedder()
	return New(cat, emb, store, opts, nil), emb
}

func troubleRequest(text string) Request {
	return Request{Text: text, Section: "TROB", Product: "Washing Machine"}
}

func TestExtract_LiteralShortCircuit(t *testing.T) {
	emb := newBowEmbedder()
	p := New(DefaultCatalog(), emb, nil, DefaultOptions(), nil)

	res, err := p.Extract(context.Background(), troubleRequest("IE error"))
	require.NoError(t, err)
	assert.True(t, res.Supported)
	assert.Equal(t, domain.CodeSuccess, res.Code)
	assert.Equal(t, TierLiteral, res.Tier)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "IE", res.Matches[0].Key)
	assert.Equal(t, MaxScore, res.Matches[0].Score)
	assert.Equal(t, "HAS_ERROR_CODE", res.Matches[0].Relation)
	assert.Zero(t, emb.embeds.Load(), "embedder must not be called")
	assert.Zero(t, emb.batches.Load())
}

func TestExtract_SynonymsBeforeLiteral(t *testing.T) {
	p := New(DefaultCatalog(), newBowEmbedder(), nil, DefaultOptions(), nil)
	res, err := p.Extract(context.Background(), troubleRequest("My washer shows a UE fault"))
	require.NoError(t, err)
	assert.Equal(t, TierLiteral, res.Tier)
	assert.Equal(t, "UE", res.Matches[0].Key)
}

func TestExtract_RuleOverrideWins(t *testing.T) {
	emb := newBowEmbedder()
	p := New(DefaultCatalog(), emb, nil, DefaultOptions(), nil)

	// "error code" would also match a literal phrasing.
	res, err := p.Extract(context.Background(), troubleRequest("child lock error code"))
	require.NoError(t, err)
	assert.Equal(t, TierRule, res.Tier)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "Child Lock", res.Matches[0].Key)
	assert.Equal(t, MaxScore, res.Matches[0].Score)
	assert.Zero(t, emb.embeds.Load())
}

func TestExtract_RuleRespectsProduct(t *testing.T) {
	p := New(DefaultCatalog(), newBowEmbedder(), nil, DefaultOptions(), nil)
	res, err := p.Extract(context.Background(), Request{Text: "tub clean", Section: "troubleshooting", Product: "dryer", TopK: 1})
	require.NoError(t, err)
	assert.NotEqual(t, TierRule, res.Tier)
}

func TestExtract_Unsupported(t *testing.T) {
	emb := newBowEmbedder()
	p := New(DefaultCatalog(), emb, nil, DefaultOptions(), nil)

	res, err := p.Extract(context.Background(), Request{Text: "child lock", Section: "operation", Product: "dishwasher"})
	require.NoError(t, err)
	assert.False(t, res.Supported)
	assert.Equal(t, domain.CodeUnsupportedQuery, res.Code)
	assert.Empty(t, res.Matches)
	assert.Zero(t, emb.embeds.Load())
}

func TestExtract_EmbeddingWithFuzzyRerank(t *testing.T) {
	p, emb := testPipeline(t, Options{TopK: 2}, nil)

	res, err := p.Extract(context.Background(), troubleRequest("the drum water will not drain"))
	require.NoError(t, err)
	assert.Equal(t, TierFuzzy, res.Tier)
	require.Len(t, res.Matches, 2)
	assert.Equal(t, "OE", res.Matches[0].Key)
	assert.Equal(t, "HAS_ERROR_CODE", res.Matches[0].Relation)
	assert.GreaterOrEqual(t, res.Matches[0].Score, res.Matches[1].Score)
	assert.LessOrEqual(t, res.Matches[0].Score, 1.0)
	assert.Equal(t, int32(1), emb.batches.Load())
	assert.Equal(t, int32(1), emb.embeds.Load())
}

func TestExtract_FuzzyRerankUsesQueryText(t *testing.T) {
	const query = "the drum water, will not drain"
	find := func(ms []Match, key string) Match {
		for _, m := range ms {
			if m.Key == key {
				return m
			}
		}
		t.Fatalf("no %s match in %v", key, ms)
		return Match{}
	}

	plain, _ := testPipeline(t, Options{TopK: 3, NoRerank: true}, nil)
	base, err := plain.Extract(context.Background(), troubleRequest(query))
	require.NoError(t, err)

	p, _ := testPipeline(t, Options{TopK: 3}, nil)
	res, err := p.Extract(context.Background(), troubleRequest(query))
	require.NoError(t, err)
	require.Equal(t, TierFuzzy, res.Tier)

	// the comma stays on "water," so the token sets differ from the
	// punctuation-stripped summary
	raw := tokenSetRatio(query, "water does not drain")
	require.NotEqual(t, tokenSetRatio("the drum water will not drain", "water does not drain"), raw)
	assert.InDelta(t, find(base.Matches, "OE").Score*raw/100, find(res.Matches, "OE").Score, 1e-9)
}

func TestExtract_EmbeddingOnly(t *testing.T) {
	p, _ := testPipeline(t, Options{NoRerank: true}, nil)

	res, err := p.Extract(context.Background(), troubleRequest("the drum water will not drain"))
	require.NoError(t, err)
	assert.Equal(t, TierEmbedding, res.Tier)
	keys := make([]string, len(res.Matches))
	for i, m := range res.Matches {
		keys[i] = m.Key
	}
	assert.Equal(t, []string{"OE", "IE", "Odor"}, keys)
}

func TestExtract_L1Filter(t *testing.T) {
	p, _ := testPipeline(t, Options{NoRerank: true}, nil)

	req := troubleRequest("the drum water will not drain")
	req.L1Key = "odor"
	res, err := p.Extract(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "Odor", res.Matches[0].Key)

	// An unknown category is ignored.
	req.L1Key = "nonsense"
	res, err = p.Extract(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, res.Matches, 3)
}

func TestExtract_EmbedderError(t *testing.T) {
	p, emb := testPipeline(t, DefaultOptions(), nil)
	emb.err = errors.New("ollama down")

	res, err := p.Extract(context.Background(), troubleRequest("the drum water will not drain"))
	require.Error(t, err)
	assert.Equal(t, domain.CodeInternalError, res.Code)
}

func TestExtract_NoScopeEntries(t *testing.T) {
	p := New(DefaultCatalog(), newBowEmbedder(), nil, DefaultOptions(), nil)
	res, err := p.Extract(context.Background(), Request{Text: "how loud is it", Section: "specification", Product: "air conditioner"})
	require.NoError(t, err)
	assert.True(t, res.Supported)
	assert.Equal(t, domain.CodeQueryMatchingDataNotFound, res.Code)
}

func TestCache_SingleBuildUnderConcurrency(t *testing.T) {
	p, emb := testPipeline(t, DefaultOptions(), nil)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Extract(context.Background(), troubleRequest("the drum water will not drain"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), emb.batches.Load())
	assert.Equal(t, int32(16), emb.embeds.Load())
}

func TestCache_LoadsFromStore(t *testing.T) {
	store := semantic.NewMemoryStore()
	first, emb1 := testPipeline(t, DefaultOptions(), store)
	_, err := first.Extract(context.Background(), troubleRequest("the drum water will not drain"))
	require.NoError(t, err)
	require.Equal(t, int32(1), emb1.batches.Load())

	saved, err := store.Load(context.Background(), semantic.Scope{Product: "washing machine", Section: "troubleshooting"})
	require.NoError(t, err)
	assert.Len(t, saved, 3)

	second, emb2 := testPipeline(t, DefaultOptions(), store)
	_, err = second.Extract(context.Background(), troubleRequest("the drum water will not drain"))
	require.NoError(t, err)
	assert.Zero(t, emb2.batches.Load(), "second process loads instead of embedding")
}

func TestPipeline_WarmAndMetrics(t *testing.T) {
	p, emb := testPipeline(t, DefaultOptions(), nil)
	reg := metrics.New()
	p.Instrument(reg)

	require.NoError(t, p.Warm(context.Background()))
	assert.Equal(t, int32(1), emb.batches.Load())

	_, err := p.Extract(context.Background(), troubleRequest("water does not fill"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.tierHits[TierLiteral].Value())
	assert.Contains(t, reg.Render(), "manualkg_similarity_hits_total")
}
