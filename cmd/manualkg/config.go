package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration.
type Config struct {
	Neo4jURL  string `env:"NEO4J_URL" envDefault:"neo4j://localhost:7687"`
	Neo4jUser string `env:"NEO4J_USER" envDefault:"neo4j"`
	Neo4jPass string `env:"NEO4J_PASS" envDefault:"password"`
	Neo4jDB   string `env:"NEO4J_DATABASE"`

	// CacheBackend selects where phrase embeddings persist: qdrant, redis or memory.
	CacheBackend     string        `env:"CACHE_BACKEND" envDefault:"memory"`
	QdrantAddr       string        `env:"QDRANT_ADDR" envDefault:"localhost:6334"`
	QdrantCollection string        `env:"QDRANT_COLLECTION" envDefault:"manualkg_phrases"`
	RedisAddr        string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPrefix      string        `env:"REDIS_PREFIX" envDefault:"manualkg:"`
	RedisTTL         time.Duration `env:"REDIS_TTL" envDefault:"0s"`

	NATSURL       string  `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	IngestSubject string  `env:"INGEST_SUBJECT" envDefault:"manualkg.ingest"`
	IngestRate    float64 `env:"INGEST_RATE" envDefault:"5"`
	IngestBurst   int     `env:"INGEST_BURST" envDefault:"5"`

	OllamaURL   string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaModel string `env:"OLLAMA_MODEL" envDefault:"nomic-embed-text"`

	// NLPURL enables knowledge enrichment when set.
	NLPURL     string        `env:"NLP_URL"`
	NLPTimeout time.Duration `env:"NLP_TIMEOUT" envDefault:"3s"`

	// MediaRoot enables figure resolution when set.
	MediaRoot    string `env:"MEDIA_ROOT"`
	MediaBaseURL string `env:"MEDIA_BASE_URL" envDefault:"/media"`

	SchemaFile  string `env:"SCHEMA_FILE"`
	CatalogFile string `env:"CATALOG_FILE"`

	Port        int           `env:"PORT" envDefault:"8080"`
	MetricsPort int           `env:"METRICS_PORT" envDefault:"9091"`
	CORSOrigin  string        `env:"CORS_ORIGIN" envDefault:"*"`
	TopK        int           `env:"TOP_K" envDefault:"5"`
	Lang        string        `env:"LANG_DEFAULT" envDefault:"en"`
	AskTimeout  time.Duration `env:"ASK_TIMEOUT" envDefault:"10s"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
}

// loadConfig reads envFile into the process environment when it exists,
// without overriding variables already set, then parses Config.
func loadConfig(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	switch cfg.CacheBackend {
	case "qdrant", "redis", "memory":
	default:
		return Config{}, fmt.Errorf("config: unknown CACHE_BACKEND %q", cfg.CacheBackend)
	}
	return cfg, nil
}

func (c Config) level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
