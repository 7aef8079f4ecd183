package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	if len(errs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("found %d configuration error(s):\n", len(errs)))
	for i, err := range errs {
		b.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return b.String()
}

// Validate validates the complete configuration
func (c *Config) Validate() error {
	var errs ValidationErrors
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateVectorDB()...)
	errs = append(errs, c.validatePipeline()...)
	errs = append(errs, c.validateCache()...)
	errs = append(errs, c.validateAudit()...)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// validateEmbedding validates embedding configuration
func (c *Config) validateEmbedding() ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(c.Embedding.Provider) {
	case "hash":
	case "openai", "gemini":
		if c.Embedding.APIKey == "" {
			errs = append(errs, ValidationError{
				Field:   "embedding.api_key",
				Message: fmt.Sprintf("api key is required for %s embeddings", c.Embedding.Provider),
			})
		}
		if c.Embedding.Model == "" {
			errs = append(errs, ValidationError{
				Field:   "embedding.model",
				Message: "embedding model is required",
			})
		}
	case "":
		errs = append(errs, ValidationError{
			Field:   "embedding.provider",
			Message: "embedding provider is required",
		})
	default:
		errs = append(errs, ValidationError{
			Field:   "embedding.provider",
			Message: fmt.Sprintf("unknown embedding provider %q", c.Embedding.Provider),
		})
	}

	if c.Embedding.Dimensions < 0 || c.Embedding.Dimensions > 4096 {
		errs = append(errs, ValidationError{
			Field:   "embedding.dimensions",
			Message: fmt.Sprintf("embedding dimensions %d is outside [0, 4096]", c.Embedding.Dimensions),
		})
	}
	if strings.EqualFold(c.Embedding.Provider, "hash") && c.Embedding.Dimensions == 0 {
		errs = append(errs, ValidationError{
			Field:   "embedding.dimensions",
			Message: "hash embeddings need explicit dimensions",
		})
	}
	return errs
}

// validateVectorDB validates vector database configuration
func (c *Config) validateVectorDB() ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(c.VectorDB.Provider) {
	case "memory":
		switch c.VectorDB.Snapshot.Source {
		case "file", "":
			if c.VectorDB.Snapshot.Dir == "" {
				errs = append(errs, ValidationError{
					Field:   "vectordb.snapshot.dir",
					Message: "snapshot directory is required for file snapshots",
				})
			}
		case "s3":
			if c.VectorDB.Snapshot.Bucket == "" {
				errs = append(errs, ValidationError{
					Field:   "vectordb.snapshot.bucket",
					Message: "bucket is required for s3 snapshots",
				})
			}
			if c.VectorDB.Snapshot.Watch {
				errs = append(errs, ValidationError{
					Field:   "vectordb.snapshot.watch",
					Message: "watch is only supported for file snapshots",
				})
			}
		default:
			errs = append(errs, ValidationError{
				Field:   "vectordb.snapshot.source",
				Message: fmt.Sprintf("unknown snapshot source %q", c.VectorDB.Snapshot.Source),
			})
		}
	case "milvus":
		if c.VectorDB.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "vectordb.host",
				Message: "vectordb host is required for milvus provider",
			})
		}
		errs = append(errs, c.validateRemoteIndexes()...)
	case "pgvector":
		if c.VectorDB.DSN == "" {
			errs = append(errs, ValidationError{
				Field:   "vectordb.dsn",
				Message: "dsn is required for pgvector provider",
			})
		}
		errs = append(errs, c.validateRemoteIndexes()...)
	case "":
		errs = append(errs, ValidationError{
			Field:   "vectordb.provider",
			Message: "vectordb provider is required",
		})
	default:
		errs = append(errs, ValidationError{
			Field:   "vectordb.provider",
			Message: fmt.Sprintf("unknown vectordb provider %q", c.VectorDB.Provider),
		})
	}
	return errs
}

func (c *Config) validateRemoteIndexes() ValidationErrors {
	var errs ValidationErrors
	if len(c.VectorDB.Indexes) == 0 {
		errs = append(errs, ValidationError{
			Field:   "vectordb.indexes",
			Message: fmt.Sprintf("index names are required for %s provider", c.VectorDB.Provider),
		})
	}
	if len(c.VectorDB.Jurisdictions) == 0 {
		errs = append(errs, ValidationError{
			Field:   "vectordb.jurisdictions",
			Message: fmt.Sprintf("jurisdictions are required for %s provider", c.VectorDB.Provider),
		})
	}
	if !strings.Contains(c.VectorDB.CollectionPattern, "{index}") {
		errs = append(errs, ValidationError{
			Field:   "vectordb.collection_pattern",
			Message: "collection pattern must contain {index}",
		})
	}
	return errs
}

// validatePipeline validates pipeline configuration
func (c *Config) validatePipeline() ValidationErrors {
	var errs ValidationErrors
	p := c.Pipeline

	positive := map[string]int{
		"pipeline.top_k_per_index":     p.TopKPerIndex,
		"pipeline.preselect_threshold": p.PreselectThreshold,
		"pipeline.preselect_top_k":     p.PreselectTopK,
		"pipeline.final_k":             p.FinalK,
	}
	for _, field := range []string{"pipeline.top_k_per_index", "pipeline.preselect_threshold", "pipeline.preselect_top_k", "pipeline.final_k"} {
		if positive[field] <= 0 {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("%s must be positive, got %d", field, positive[field]),
			})
		}
	}

	if p.BM25.K1 < 0 {
		errs = append(errs, ValidationError{
			Field:   "pipeline.bm25.k1",
			Message: fmt.Sprintf("bm25.k1 must be non-negative, got %.2f", p.BM25.K1),
		})
	}
	if p.BM25.B < 0 || p.BM25.B > 1 {
		errs = append(errs, ValidationError{
			Field:   "pipeline.bm25.b",
			Message: fmt.Sprintf("bm25.b must be in [0, 1], got %.2f", p.BM25.B),
		})
	}

	switch p.Fusion.Mode {
	case "", "priority", "rrf":
	default:
		errs = append(errs, ValidationError{
			Field:   "pipeline.fusion.mode",
			Message: fmt.Sprintf("unknown fusion mode %q", p.Fusion.Mode),
		})
	}
	if p.Fusion.RRFK < 0 {
		errs = append(errs, ValidationError{
			Field:   "pipeline.fusion.rrf_k",
			Message: fmt.Sprintf("fusion.rrf_k must be non-negative, got %d", p.Fusion.RRFK),
		})
	}

	switch p.Rerank.Provider {
	case "keyword":
	case "model":
		if p.Rerank.Endpoint == "" {
			errs = append(errs, ValidationError{
				Field:   "pipeline.rerank.endpoint",
				Message: "rerank endpoint is required for the model provider",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "pipeline.rerank.provider",
			Message: fmt.Sprintf("unknown rerank provider %q", p.Rerank.Provider),
		})
	}
	if p.Rerank.TopN < 0 {
		errs = append(errs, ValidationError{
			Field:   "pipeline.rerank.top_n",
			Message: fmt.Sprintf("rerank.top_n must be non-negative, got %d", p.Rerank.TopN),
		})
	}
	return errs
}

func (c *Config) validateCache() ValidationErrors {
	var errs ValidationErrors
	switch c.Cache.Provider {
	case "", "none", "lru":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, ValidationError{
				Field:   "cache.redis.addr",
				Message: "redis address is required for the redis cache",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "cache.provider",
			Message: fmt.Sprintf("unknown cache provider %q", c.Cache.Provider),
		})
	}
	return errs
}

func (c *Config) validateAudit() ValidationErrors {
	var errs ValidationErrors
	for _, p := range strings.Split(c.Audit.Provider, ",") {
		switch strings.TrimSpace(p) {
		case "", "none":
		case "file":
			if c.Audit.Dir == "" {
				errs = append(errs, ValidationError{
					Field:   "audit.dir",
					Message: "audit directory is required for the file sink",
				})
			}
		case "gorm":
			if c.Audit.Driver != "sqlite" && c.Audit.Driver != "postgres" {
				errs = append(errs, ValidationError{
					Field:   "audit.driver",
					Message: fmt.Sprintf("audit driver must be sqlite or postgres, got %q", c.Audit.Driver),
				})
			}
			if c.Audit.DSN == "" {
				errs = append(errs, ValidationError{
					Field:   "audit.dsn",
					Message: "audit dsn is required for the gorm sink",
				})
			}
		default:
			errs = append(errs, ValidationError{
				Field:   "audit.provider",
				Message: fmt.Sprintf("unknown audit provider %q", p),
			})
		}
	}
	return errs
}
