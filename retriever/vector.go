package retriever

import (
	"context"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/vectordb"
)

const defaultTopK = 5

// VectorRetriever implements Retriever using embedding similarity.
type VectorRetriever struct {
	TopK int
}

func (r *VectorRetriever) Type() string { return "vector" }

// Retrieve returns at most topK documents most similar to vec. An empty or
// missing index yields an empty list.
func (r *VectorRetriever) Retrieve(ctx context.Context, vec []float32, index vectordb.Index, topK int) ([]schema.Candidate, error) {
	if index == nil || index.Count() == 0 {
		return []schema.Candidate{}, nil
	}
	if topK <= 0 {
		if r.TopK > 0 {
			topK = r.TopK
		} else {
			topK = defaultTopK
		}
	}
	return index.Search(ctx, vec, topK)
}
