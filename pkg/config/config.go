// Package config provides environment-driven configuration for the khoj
// search service. All knobs come from the process environment (optionally
// seeded from a .env file); there is no config file format.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every runtime setting of the service.
type Config struct {
	// HTTP API bind address.
	APIHost string
	APIPort int

	// Typesense (lexical index).
	TypesenseHost       string
	TypesensePort       int
	TypesenseProtocol   string
	TypesenseAPIKey     string
	TypesenseCollection string

	// Qdrant (vector index).
	QdrantHost               string
	QdrantPort               int
	QdrantAPIKey             string
	QdrantUseTLS             bool
	QdrantCollectionArticles string
	QdrantCollectionChunks   string

	// Embedding service.
	EmbedderURL   string
	EmbedderModel string
	EmbeddingDim  int

	// Feedback store. postgres:// URLs select the Postgres dialect,
	// anything else is treated as a SQLite path.
	DatabaseURL string

	// Startup artifacts.
	GazetteerPath string
	ArticlesPath  string
	ChunksPath    string

	// Versions stamped into every query_log row.
	RankerVersion    string
	RetrievalVersion string

	// Retrieval fan-out sizes.
	LexicalTopK       int
	SemArticleTopK    int
	SemChunkTopK      int
	CandidateCap      int
	LogCandidatesTopN int

	// Per-call timeouts.
	LexicalTimeout time.Duration
	VectorTimeout  time.Duration
	DBTimeout      time.Duration
}

// Load builds a Config from the environment with defaults applied.
// Call Validate before using the result.
func Load() *Config {
	return &Config{
		APIHost: envStr("API_HOST", "0.0.0.0"),
		APIPort: envInt("API_PORT", 8000),

		TypesenseHost:       envStr("TYPESENSE_HOST", "localhost"),
		TypesensePort:       envInt("TYPESENSE_PORT", 8108),
		TypesenseProtocol:   envStr("TYPESENSE_PROTOCOL", "http"),
		TypesenseAPIKey:     os.Getenv("TYPESENSE_API_KEY"),
		TypesenseCollection: envStr("TYPESENSE_COLLECTION", "idr_articles_hi_v1"),

		QdrantHost:               envStr("QDRANT_HOST", "localhost"),
		QdrantPort:               envInt("QDRANT_PORT", 6334),
		QdrantAPIKey:             os.Getenv("QDRANT_API_KEY"),
		QdrantUseTLS:             envBool("QDRANT_USE_TLS", false),
		QdrantCollectionArticles: envStr("QDRANT_COLLECTION_ARTICLES", "idr_articles_vec_v1"),
		QdrantCollectionChunks:   envStr("QDRANT_COLLECTION_CHUNKS", "idr_chunks_vec_v1"),

		EmbedderURL:   envStr("EMBEDDER_URL", "http://localhost:8080"),
		EmbedderModel: envStr("EMBEDDER_MODEL", "paraphrase-multilingual-mpnet-base-v2"),
		EmbeddingDim:  envInt("EMBEDDING_DIM", 768),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		GazetteerPath: envStr("GAZETTEER_PATH", "data/phase_45/gazetteer_v1.json"),
		ArticlesPath:  envStr("ARTICLES_PATH", "data/final/articles_canonical.jsonl"),
		ChunksPath:    envStr("CHUNKS_PATH", "data/phase_3/chunks.jsonl"),

		RankerVersion:    envStr("RANKER_VERSION", "ranker_v1"),
		RetrievalVersion: envStr("RETRIEVAL_VERSION", "retrieval_v1"),

		LexicalTopK:       envInt("LEXICAL_TOPK", 80),
		SemArticleTopK:    envInt("SEM_ARTICLE_TOPK", 40),
		SemChunkTopK:      envInt("SEM_CHUNK_TOPK", 80),
		CandidateCap:      envInt("CANDIDATE_CAP", 200),
		LogCandidatesTopN: envInt("LOG_CANDIDATES_TOPN", 200),

		LexicalTimeout: envDuration("LEXICAL_TIMEOUT", 10*time.Second),
		VectorTimeout:  envDuration("VECTOR_TIMEOUT", 10*time.Second),
		DBTimeout:      envDuration("DB_TIMEOUT", 30*time.Second),
	}
}

// Validate checks settings the server cannot run without.
// Failures here are startup errors: fail fast, do not serve.
func (c *Config) Validate() error {
	if c.TypesenseAPIKey == "" {
		return fmt.Errorf("TYPESENSE_API_KEY not set")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL not set")
	}
	if c.EmbeddingDim != 768 && c.EmbeddingDim != 1024 {
		return fmt.Errorf("EMBEDDING_DIM must be 768 (mpnet) or 1024 (e5-large), got %d", c.EmbeddingDim)
	}
	if c.LexicalTopK <= 0 || c.SemArticleTopK <= 0 || c.SemChunkTopK <= 0 {
		return fmt.Errorf("retrieval top-k values must be positive")
	}
	if c.CandidateCap <= 0 {
		return fmt.Errorf("CANDIDATE_CAP must be positive")
	}
	return nil
}

// APIAddr returns the host:port bind address for the HTTP server.
func (c *Config) APIAddr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}

// TypesenseURL returns the base URL of the Typesense node.
func (c *Config) TypesenseURL() string {
	return fmt.Sprintf("%s://%s:%d", c.TypesenseProtocol, c.TypesenseHost, c.TypesensePort)
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
