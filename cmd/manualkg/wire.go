package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/manualkg/engine/extract"
	"github.com/WessleyAI/manualkg/engine/graph"
	"github.com/WessleyAI/manualkg/engine/ingest"
	"github.com/WessleyAI/manualkg/engine/manual"
	"github.com/WessleyAI/manualkg/engine/qa"
	"github.com/WessleyAI/manualkg/engine/query"
	"github.com/WessleyAI/manualkg/engine/schema"
	"github.com/WessleyAI/manualkg/engine/semantic"
	"github.com/WessleyAI/manualkg/engine/similarity"
	"github.com/WessleyAI/manualkg/engine/triplet"
	"github.com/WessleyAI/manualkg/pkg/fn"
	"github.com/WessleyAI/manualkg/pkg/media"
	"github.com/WessleyAI/manualkg/pkg/metrics"
	"github.com/WessleyAI/manualkg/pkg/nlp"
	"github.com/WessleyAI/manualkg/pkg/ollama"
	"github.com/WessleyAI/manualkg/pkg/resilience"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
)

// upsertRetry retries transient graph write failures of one manual.
var upsertRetry = fn.RetryOpts{
	MaxAttempts: 3,
	InitialWait: 500 * time.Millisecond,
	MaxWait:     5 * time.Second,
	Jitter:      true,
}

// app owns the process-wide services built from Config.
type app struct {
	cfg     Config
	log     *slog.Logger
	met     *metrics.Registry
	closers []func()
}

func newApp(cfg Config, log *slog.Logger) *app {
	return &app{cfg: cfg, log: log, met: metrics.New()}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) schema() (*schema.Registry, error) {
	if a.cfg.SchemaFile == "" {
		return schema.Default(), nil
	}
	return schema.Load(a.cfg.SchemaFile)
}

func (a *app) catalog() (*similarity.Catalog, error) {
	if a.cfg.CatalogFile == "" {
		return similarity.DefaultCatalog(), nil
	}
	return similarity.LoadCatalog(a.cfg.CatalogFile)
}

// extractors builds the three section extractors. Figures and knowledge
// enrichment are wired only when their services are configured.
func (a *app) extractors(reg *schema.Registry) map[manual.Kind]extract.Extractor {
	d := extract.Deps{
		Builder: triplet.NewBuilder(reg),
		Metrics: a.met,
		Logger:  a.log,
	}
	if a.cfg.MediaRoot != "" {
		d.Images = media.NewFSStore(a.cfg.MediaRoot, media.WithBaseURL(a.cfg.MediaBaseURL), media.WithLogger(a.log))
	}
	if a.cfg.NLPURL != "" {
		client := nlp.NewClient(a.cfg.NLPURL, nlp.Options{Timeout: a.cfg.NLPTimeout})
		d.Enricher = extract.NewEnricher(client, a.cfg.NLPTimeout, a.log)
	}
	return extract.NewSet(d)
}

func (a *app) graph(ctx context.Context) (*graph.GraphStore, error) {
	driver, err := neo4j.NewDriverWithContext(a.cfg.Neo4jURL, neo4j.BasicAuth(a.cfg.Neo4jUser, a.cfg.Neo4jPass, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connect: %w", err)
	}
	a.closers = append(a.closers, func() { driver.Close(context.Background()) })
	return graph.New(driver, a.cfg.Neo4jDB).WithLogger(a.log), nil
}

// ingestDeps wires the ingestion pipeline. store may be nil for dry runs.
func (a *app) ingestDeps(reg *schema.Registry, store ingest.Store) ingest.Deps {
	d := ingest.Deps{
		Extractors: a.extractors(reg),
		Metrics:    a.met,
		Logger:     a.log,
	}
	if store != nil {
		d.Store = store
		d.Retry = upsertRetry
		opts := resilience.DefaultBreakerOpts
		opts.OnStateChange = func(from, to resilience.State) {
			a.log.Warn("graph breaker state changed", "from", from.String(), "to", to.String())
		}
		d.Breaker = resilience.NewBreaker(opts)
		d.Limiter = resilience.NewLimiter(resilience.LimiterOpts{Rate: a.cfg.IngestRate, Burst: a.cfg.IngestBurst})
	}
	return d
}

// phraseStore opens the configured embedding cache backend.
func (a *app) phraseStore() (similarity.PhraseStore, error) {
	switch a.cfg.CacheBackend {
	case "qdrant":
		s, err := semantic.New(a.cfg.QdrantAddr, a.cfg.QdrantCollection)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = s.Close() })
		return s, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
		a.closers = append(a.closers, func() { _ = client.Close() })
		return semantic.NewRedisStore(client, a.cfg.RedisPrefix, a.cfg.RedisTTL), nil
	default:
		return semantic.NewMemoryStore(), nil
	}
}

// qaService wires similarity, query formation and the graph into one
// instrumented service.
func (a *app) qaService(gs *graph.GraphStore, reg *schema.Registry) (*qa.Service, *similarity.Pipeline, error) {
	cat, err := a.catalog()
	if err != nil {
		return nil, nil, err
	}
	store, err := a.phraseStore()
	if err != nil {
		return nil, nil, err
	}
	embedder := ollama.NewEmbedClient(a.cfg.OllamaURL, a.cfg.OllamaModel)
	sim := similarity.New(cat, embedder, store, similarity.Options{TopK: a.cfg.TopK}, a.log)
	sim.Instrument(a.met)

	resolver := query.NewResolver(query.NewFormer(reg), gs, a.log)
	svc := qa.New(sim, resolver, gs, qa.Options{
		TopK:    a.cfg.TopK,
		Lang:    a.cfg.Lang,
		Timeout: a.cfg.AskTimeout,
	}, a.log)
	svc.Instrument(a.met)
	return svc, sim, nil
}
