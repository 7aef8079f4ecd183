package retriever

import (
	"context"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/vectordb"
)

// Retriever defines a unified candidate lookup against one index.
type Retriever interface {
	Type() string
	Retrieve(ctx context.Context, vec []float32, index vectordb.Index, topK int) ([]schema.Candidate, error)
}

// CandidateList is a utility alias for readability.
type CandidateList []schema.Candidate

// IDs returns the stable ids in list order.
func (l CandidateList) IDs() []string {
	out := make([]string, len(l))
	for i, c := range l {
		out[i] = c.Document.ID
	}
	return out
}
