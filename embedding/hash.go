package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashProvider embeds text by feature hashing lower-cased word tokens into a
// fixed number of buckets. It needs no model and is fully deterministic,
// which makes it the default for tests and offline snapshots.
type HashProvider struct {
	dims int
}

func NewHashProvider(dims int) *HashProvider {
	if dims <= 0 {
		dims = 256
	}
	return &HashProvider{dims: dims}
}

func (p *HashProvider) GetProviderType() string { return PROVIDER_TYPE_HASH }

func (p *HashProvider) Dimensions() int { return p.dims }

func (p *HashProvider) GetEmbedding(_ context.Context, queryString string) ([]float32, error) {
	return p.Embed(queryString), nil
}

// Embed is GetEmbedding without the context, for snapshot builders.
func (p *HashProvider) Embed(text string) []float32 {
	v := make([]float32, p.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New64a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum64()
		idx := int(sum % uint64(p.dims))
		if sum&(1<<63) != 0 {
			v[idx]--
		} else {
			v[idx]++
		}
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		// chromem rejects zero vectors; fall back to a fixed unit vector.
		v[0] = 1
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}
