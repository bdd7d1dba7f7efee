package similarity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/WessleyAI/manualkg/engine/semantic"
	"golang.org/x/sync/singleflight"
)

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// PhraseStore persists embedded phrasings per scope.
type PhraseStore interface {
	Load(ctx context.Context, s semantic.Scope) ([]semantic.Phrase, error)
	Save(ctx context.Context, s semantic.Scope, phrases []semantic.Phrase) error
}

// Cache holds the embedded phrasings of every scope. A scope is built once,
// either loaded from the store or embedded and saved, and read-only after.
// Concurrent first use of a scope runs exactly one build.
type Cache struct {
	embedder Embedder
	store    PhraseStore
	logger   *slog.Logger

	mu     sync.RWMutex
	scopes map[string][]semantic.Phrase
	group  singleflight.Group
}

// NewCache creates a cache. store may be nil, in which case embeddings live
// only in memory.
func NewCache(embedder Embedder, store PhraseStore, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		embedder: embedder,
		store:    store,
		logger:   logger,
		scopes:   make(map[string][]semantic.Phrase),
	}
}

func (c *Cache) cached(key string) ([]semantic.Phrase, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ps, ok := c.scopes[key]
	return ps, ok
}

// Get returns the embedded phrasings of s, building them from entries on
// first use.
func (c *Cache) Get(ctx context.Context, s semantic.Scope, entries []Entry) ([]semantic.Phrase, error) {
	key := s.String()
	if ps, ok := c.cached(key); ok {
		return ps, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if ps, ok := c.cached(key); ok {
			return ps, nil
		}
		ps, err := c.loadOrBuild(ctx, s, entries)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.scopes[key] = ps
		c.mu.Unlock()
		return ps, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]semantic.Phrase), nil
}

func (c *Cache) loadOrBuild(ctx context.Context, s semantic.Scope, entries []Entry) ([]semantic.Phrase, error) {
	want := 0
	for _, e := range entries {
		want += len(e.Phrases)
	}
	if c.store != nil {
		ps, err := c.store.Load(ctx, s)
		switch {
		case err != nil:
			c.logger.Warn("phrase store load failed, rebuilding", "scope", s.String(), "error", err)
		case len(ps) == want && want > 0:
			c.logger.Debug("phrase embeddings loaded", "scope", s.String(), "phrases", len(ps))
			return ps, nil
		}
	}

	ps, err := c.build(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("similarity: build %s: %w", s, err)
	}
	if c.store != nil {
		if err := c.store.Save(ctx, s, ps); err != nil {
			c.logger.Warn("phrase store save failed", "scope", s.String(), "error", err)
		}
	}
	c.logger.Info("phrase embeddings built", "scope", s.String(), "phrases", len(ps))
	return ps, nil
}

func (c *Cache) build(ctx context.Context, entries []Entry) ([]semantic.Phrase, error) {
	var (
		texts []string
		out   []semantic.Phrase
	)
	for _, e := range entries {
		for _, p := range e.Phrases {
			texts = append(texts, p)
			out = append(out, semantic.Phrase{Key: e.Key, Category: e.Category, Text: p})
		}
	}
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}
	for i := range out {
		out[i].Vector = vecs[i]
	}
	return out, nil
}
