package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Default returns a configuration that runs fully offline: hashed
// embeddings, file snapshots, keyword reranking and no audit sink.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:             "legal-grounding",
			HTTPAddr:         ":8080",
			BatchConcurrency: 4,
		},
		Log:       LogConfig{Level: "info"},
		Embedding: EmbeddingConfig{Provider: "hash", Dimensions: 256},
		VectorDB: VectorDBConfig{
			Provider:          "memory",
			CollectionPattern: "{jurisdiction}_{index}",
			Snapshot:          SnapshotConfig{Source: "file", Dir: "./indexes"},
			Search:            SearchConfig{MetricType: "IP", VectorField: "vector"},
		},
		Pipeline: DefaultPipeline(),
		Cache:    CacheConfig{Provider: "lru", Capacity: 4096, TTLSeconds: 3600},
		Audit:    AuditConfig{Provider: "none", Dir: "./audit_logs", Driver: "sqlite"},
	}
}

// Load reads a YAML file on top of Default and applies environment
// overrides for secrets. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := Parse(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.fillDefaults()
	return cfg, nil
}

// Parse decodes YAML into cfg, rejecting unknown keys.
func Parse(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() {
	setIfEmpty := func(dst *string, keys ...string) {
		if *dst != "" {
			return
		}
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}
	switch c.Embedding.Provider {
	case "openai":
		setIfEmpty(&c.Embedding.APIKey, "EMBEDDING_API_KEY", "OPENAI_API_KEY")
	case "gemini":
		setIfEmpty(&c.Embedding.APIKey, "EMBEDDING_API_KEY", "GEMINI_API_KEY")
	}
	setIfEmpty(&c.Pipeline.Rerank.APIKey, "RERANK_API_KEY")
	setIfEmpty(&c.Pipeline.Rerank.Endpoint, "RERANK_ENDPOINT")
	setIfEmpty(&c.VectorDB.DSN, "PGVECTOR_DSN")
	setIfEmpty(&c.Cache.Redis.Addr, "REDIS_ADDR")
	setIfEmpty(&c.Cache.Redis.Password, "REDIS_PASSWORD")
	setIfEmpty(&c.Audit.DSN, "AUDIT_DSN")
}

// fillDefaults restores zero-valued pipeline knobs that a partial YAML
// file may have cleared.
func (c *Config) fillDefaults() {
	d := DefaultPipeline()
	p := &c.Pipeline
	if p.TopKPerIndex <= 0 {
		p.TopKPerIndex = d.TopKPerIndex
	}
	if p.PreselectThreshold <= 0 {
		p.PreselectThreshold = d.PreselectThreshold
	}
	if p.PreselectTopK <= 0 {
		p.PreselectTopK = d.PreselectTopK
	}
	if p.FinalK <= 0 {
		p.FinalK = d.FinalK
	}
	if p.BM25.K1 == 0 {
		p.BM25.K1 = d.BM25.K1
	}
	if p.BM25.B == 0 {
		p.BM25.B = d.BM25.B
	}
	if p.Fusion.Mode == "" {
		p.Fusion.Mode = d.Fusion.Mode
	}
	if p.Fusion.RRFK <= 0 {
		p.Fusion.RRFK = d.Fusion.RRFK
	}
	if p.Rerank.Provider == "" {
		p.Rerank.Provider = d.Rerank.Provider
	}
	if p.Rerank.TopN <= 0 {
		p.Rerank.TopN = d.Rerank.TopN
	}
	if c.Server.BatchConcurrency <= 0 {
		c.Server.BatchConcurrency = 4
	}
}
