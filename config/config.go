package config

// Config represents the main configuration structure for the grounding server
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Log       LogConfig       `json:"log" yaml:"log"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding"`
	VectorDB  VectorDBConfig  `json:"vectordb" yaml:"vectordb"`
	Pipeline  PipelineConfig  `json:"pipeline" yaml:"pipeline"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Audit     AuditConfig     `json:"audit" yaml:"audit"`
}

// ServerConfig holds settings of the MCP and HTTP surfaces.
type ServerConfig struct {
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	HTTPAddr string `json:"http_addr,omitempty" yaml:"http_addr,omitempty"`
	// BatchConcurrency bounds how many clauses a batch retrieves at once.
	BatchConcurrency int `json:"batch_concurrency,omitempty" yaml:"batch_concurrency,omitempty"`
	// CORSOrigins enables CORS on the HTTP API; "*" allows any origin.
	CORSOrigins []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`
}

type LogConfig struct {
	Level string `json:"level,omitempty" yaml:"level,omitempty"` // debug, info, warn, error
	JSON  bool   `json:"json,omitempty" yaml:"json,omitempty"`
}

// EmbeddingConfig defines configuration for embedding models
type EmbeddingConfig struct {
	Provider   string `json:"provider" yaml:"provider"` // Available options: openai, gemini, hash
	APIKey     string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model      string `json:"model,omitempty" yaml:"model,omitempty"`
	Dimensions int    `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	// MaxTokens caps the embedding input; longer queries are truncated.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// VectorDBConfig defines where per-jurisdiction indexes come from.
type VectorDBConfig struct {
	Provider string `json:"provider" yaml:"provider"` // Available options: memory, milvus, pgvector
	Host     string `json:"host,omitempty" yaml:"host,omitempty"`
	Port     int    `json:"port,omitempty" yaml:"port,omitempty"`
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	// DSN is the connection string for pgvector.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	// CollectionPattern names the remote collection/table of an index.
	// "{jurisdiction}" and "{index}" are substituted.
	CollectionPattern string `json:"collection_pattern,omitempty" yaml:"collection_pattern,omitempty"`
	// Indexes lists the logical index names served per jurisdiction by
	// remote backends. The memory backend discovers them from snapshots.
	Indexes       []string       `json:"indexes,omitempty" yaml:"indexes,omitempty"`
	Jurisdictions []string       `json:"jurisdictions,omitempty" yaml:"jurisdictions,omitempty"`
	Snapshot      SnapshotConfig `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`
	Search        SearchConfig   `json:"search,omitempty" yaml:"search,omitempty"`
}

// SnapshotConfig locates JSON index snapshots for the memory backend.
// Layout: <root>/<jurisdiction>/<index>.json
type SnapshotConfig struct {
	Source string `json:"source,omitempty" yaml:"source,omitempty"` // file, s3
	Dir    string `json:"dir,omitempty" yaml:"dir,omitempty"`
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
	// Watch invalidates a jurisdiction when its snapshot directory changes.
	Watch bool `json:"watch,omitempty" yaml:"watch,omitempty"`
}

// SearchConfig defines configuration for search parameters
type SearchConfig struct {
	// Metric type, e.g., L2, IP, COSINE
	MetricType  string `json:"metric_type,omitempty" yaml:"metric_type,omitempty"`
	VectorField string `json:"vector_field,omitempty" yaml:"vector_field,omitempty"`
}

// CacheConfig controls the query-embedding cache.
type CacheConfig struct {
	Provider   string      `json:"provider,omitempty" yaml:"provider,omitempty"` // none, lru, redis
	Capacity   int         `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	TTLSeconds int         `json:"ttl_seconds,omitempty" yaml:"ttl_seconds,omitempty"`
	Redis      RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty" yaml:"addr,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// AuditConfig selects where evidence packs are recorded.
type AuditConfig struct {
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"` // none, file, gorm
	Dir      string `json:"dir,omitempty" yaml:"dir,omitempty"`
	Driver   string `json:"driver,omitempty" yaml:"driver,omitempty"` // sqlite, postgres
	DSN      string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// HTTPClientConfig defines defaults for outbound HTTP calls.
type HTTPClientConfig struct {
	TimeoutMs              int      `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	MaxConsecutiveFailures int      `json:"max_consecutive_failures,omitempty" yaml:"max_consecutive_failures,omitempty"`
	CircuitOpenSeconds     int      `json:"circuit_open_seconds,omitempty" yaml:"circuit_open_seconds,omitempty"`
	HostAllowlist          []string `json:"host_allowlist,omitempty" yaml:"host_allowlist,omitempty"`
}
