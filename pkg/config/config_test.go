package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.APIPort != 8000 {
		t.Errorf("APIPort = %d, want 8000", cfg.APIPort)
	}
	if cfg.TypesensePort != 8108 || cfg.QdrantPort != 6334 {
		t.Errorf("index ports = %d/%d", cfg.TypesensePort, cfg.QdrantPort)
	}
	if cfg.EmbeddingDim != 768 {
		t.Errorf("EmbeddingDim = %d, want 768", cfg.EmbeddingDim)
	}
	if cfg.LexicalTopK != 80 || cfg.SemArticleTopK != 40 || cfg.SemChunkTopK != 80 {
		t.Errorf("topk = %d/%d/%d", cfg.LexicalTopK, cfg.SemArticleTopK, cfg.SemChunkTopK)
	}
	if cfg.CandidateCap != 200 {
		t.Errorf("CandidateCap = %d, want 200", cfg.CandidateCap)
	}
	if cfg.LexicalTimeout != 10*time.Second || cfg.DBTimeout != 30*time.Second {
		t.Errorf("timeouts = %v/%v", cfg.LexicalTimeout, cfg.DBTimeout)
	}
	if cfg.RankerVersion != "ranker_v1" || cfg.RetrievalVersion != "retrieval_v1" {
		t.Errorf("versions = %q/%q", cfg.RankerVersion, cfg.RetrievalVersion)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("API_PORT", "9000")
	t.Setenv("EMBEDDING_DIM", "1024")
	t.Setenv("QDRANT_USE_TLS", "true")
	t.Setenv("LEXICAL_TIMEOUT", "3s")

	cfg := Load()
	if cfg.APIPort != 9000 {
		t.Errorf("APIPort = %d, want 9000", cfg.APIPort)
	}
	if cfg.EmbeddingDim != 1024 {
		t.Errorf("EmbeddingDim = %d, want 1024", cfg.EmbeddingDim)
	}
	if !cfg.QdrantUseTLS {
		t.Error("QdrantUseTLS should be true")
	}
	if cfg.LexicalTimeout != 3*time.Second {
		t.Errorf("LexicalTimeout = %v, want 3s", cfg.LexicalTimeout)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		t.Setenv("TYPESENSE_API_KEY", "k")
		t.Setenv("DATABASE_URL", "sqlite://dev.db")
		return Load()
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cfg := base()
	cfg.TypesenseAPIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Error("missing api key must fail validation")
	}

	cfg = base()
	cfg.DatabaseURL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("missing database url must fail validation")
	}

	cfg = base()
	cfg.EmbeddingDim = 512
	if err := cfg.Validate(); err == nil {
		t.Error("unsupported embedding dim must fail validation")
	}

	cfg = base()
	cfg.CandidateCap = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero candidate cap must fail validation")
	}
}

func TestAddrHelpers(t *testing.T) {
	cfg := &Config{
		APIHost: "0.0.0.0", APIPort: 8000,
		TypesenseProtocol: "http", TypesenseHost: "localhost", TypesensePort: 8108,
	}
	if got := cfg.APIAddr(); got != "0.0.0.0:8000" {
		t.Errorf("APIAddr() = %q", got)
	}
	if got := cfg.TypesenseURL(); got != "http://localhost:8108" {
		t.Errorf("TypesenseURL() = %q", got)
	}
}
