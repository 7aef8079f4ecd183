package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/cache"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/config"
)

const (
	PROVIDER_TYPE_OPENAI = "openai"
	PROVIDER_TYPE_GEMINI = "gemini"
	PROVIDER_TYPE_HASH   = "hash"
)

// Provider turns text into a fixed-length vector. Implementations must be
// deterministic for identical input.
type Provider interface {
	GetProviderType() string
	GetEmbedding(ctx context.Context, queryString string) ([]float32, error)
}

// NewEmbeddingProvider builds the provider selected by cfg. When c is not
// nil the provider is wrapped with a cache.
func NewEmbeddingProvider(ctx context.Context, cfg config.EmbeddingConfig, c cache.Cache) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case PROVIDER_TYPE_OPENAI:
		p, err = NewOpenAIProvider(cfg)
	case PROVIDER_TYPE_GEMINI:
		p, err = NewGeminiProvider(ctx, cfg)
	case PROVIDER_TYPE_HASH:
		p = NewHashProvider(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if c == nil {
		return p, nil
	}
	if _, nop := c.(cache.Nop); nop {
		return p, nil
	}
	return NewCachedProvider(p, c, cfg.Model), nil
}
