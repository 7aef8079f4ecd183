package config

// PipelineConfig holds the retrieval policy applied to every clause.
type PipelineConfig struct {
	// TopKPerIndex is how many similarity hits are taken from each index.
	TopKPerIndex int `json:"top_k_per_index,omitempty" yaml:"top_k_per_index,omitempty"`
	// PreselectThreshold is the pool size at which BM25 preselection kicks in.
	PreselectThreshold int `json:"preselect_threshold,omitempty" yaml:"preselect_threshold,omitempty"`
	// PreselectTopK is how many candidates survive preselection.
	PreselectTopK int `json:"preselect_top_k,omitempty" yaml:"preselect_top_k,omitempty"`
	// FinalK bounds the evidence list.
	FinalK int `json:"final_k,omitempty" yaml:"final_k,omitempty"`
	// Priority overrides the index priority order.
	Priority []string `json:"priority,omitempty" yaml:"priority,omitempty"`

	BM25   BM25Config        `json:"bm25,omitempty" yaml:"bm25,omitempty"`
	Fusion FusionConfig      `json:"fusion,omitempty" yaml:"fusion,omitempty"`
	Rerank RerankConfig      `json:"rerank,omitempty" yaml:"rerank,omitempty"`
	HTTP   *HTTPClientConfig `json:"http,omitempty" yaml:"http,omitempty"`
}

type BM25Config struct {
	K1 float64 `json:"k1,omitempty" yaml:"k1,omitempty"`
	B  float64 `json:"b,omitempty" yaml:"b,omitempty"`
}

// FusionConfig controls how per-index hit lists are merged into one pool.
type FusionConfig struct {
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"` // priority (default), rrf
	RRFK int    `json:"rrf_k,omitempty" yaml:"rrf_k,omitempty"`
}

type RerankConfig struct {
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"` // model, keyword
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`
	APIKey   string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	TopN     int    `json:"top_n,omitempty" yaml:"top_n,omitempty"`
}

// DefaultPipeline returns the retrieval policy used when the config file
// leaves a field unset.
func DefaultPipeline() PipelineConfig {
	return PipelineConfig{
		TopKPerIndex:       5,
		PreselectThreshold: 60,
		PreselectTopK:      30,
		FinalK:             5,
		BM25:               BM25Config{K1: 1.6, B: 0.75},
		Fusion:             FusionConfig{Mode: "priority", RRFK: 60},
		Rerank:             RerankConfig{Provider: "keyword", TopN: 10},
	}
}
