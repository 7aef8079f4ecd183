package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/cache"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/common/logger"
)

// CachedProvider memoizes query embeddings. Errors are never cached.
type CachedProvider struct {
	next  Provider
	cache cache.Cache
	scope string
}

func NewCachedProvider(next Provider, c cache.Cache, model string) *CachedProvider {
	return &CachedProvider{next: next, cache: c, scope: next.GetProviderType() + ":" + model}
}

func (p *CachedProvider) GetProviderType() string { return p.next.GetProviderType() }

func (p *CachedProvider) GetEmbedding(ctx context.Context, queryString string) ([]float32, error) {
	key := p.key(queryString)
	if v, ok := p.cache.Get(key); ok {
		if vec, ok := decodeVector(v); ok {
			return vec, nil
		}
		logger.Debugf("embedding cache: undecodable entry for %s", key)
	}
	vec, err := p.next.GetEmbedding(ctx, queryString)
	if err != nil {
		return nil, err
	}
	p.cache.Set(key, vec, 0)
	return vec, nil
}

// Close closes the wrapped provider when it holds resources.
func (p *CachedProvider) Close() error {
	if c, ok := p.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (p *CachedProvider) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + p.scope + ":" + hex.EncodeToString(sum[:16])
}

func decodeVector(v any) ([]float32, bool) {
	switch t := v.(type) {
	case []float32:
		return t, true
	case json.RawMessage:
		var out []float32
		if err := json.Unmarshal(t, &out); err != nil {
			return nil, false
		}
		return out, true
	}
	return nil, false
}
