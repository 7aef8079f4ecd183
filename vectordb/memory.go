package vectordb

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	chromem "github.com/philippgille/chromem-go"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
)

// EmbedFunc embeds document text that arrives without a precomputed vector.
// embedding.Provider.GetEmbedding has this shape.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Entry is a document plus its optional precomputed embedding.
type Entry struct {
	Document  schema.Document
	Embedding []float32
}

// MemoryIndex is an in-process index backed by a chromem collection.
type MemoryIndex struct {
	name string
	col  *chromem.Collection
	docTable
}

// NewMemoryIndex embeds (when needed) and stores entries. Entries must
// already be validated; see prepare.
func NewMemoryIndex(ctx context.Context, name string, entries []Entry, embed EmbedFunc) (*MemoryIndex, error) {
	docs := make([]schema.Document, len(entries))
	for i, e := range entries {
		docs[i] = e.Document
	}
	table, err := newDocTable(name, docs)
	if err != nil {
		return nil, err
	}

	var ef chromem.EmbeddingFunc
	if embed != nil {
		ef = chromem.EmbeddingFunc(embed)
	} else {
		ef = func(context.Context, string) ([]float32, error) {
			return nil, errors.New("document has no embedding and no embedder is configured")
		}
	}
	col, err := chromem.NewDB().GetOrCreateCollection(name, nil, ef)
	if err != nil {
		return nil, fmt.Errorf("index %s: create collection: %w", name, err)
	}

	cdocs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		cdocs[i] = chromem.Document{
			ID:        e.Document.ID,
			Content:   e.Document.Content,
			Embedding: e.Embedding,
			Metadata:  e.Document.Metadata(),
		}
	}
	if len(cdocs) > 0 {
		if err := col.AddDocuments(ctx, cdocs, runtime.NumCPU()); err != nil {
			return nil, fmt.Errorf("index %s: add documents: %w", name, err)
		}
	}
	return &MemoryIndex{name: name, col: col, docTable: table}, nil
}

func (m *MemoryIndex) Name() string { return m.name }

func (m *MemoryIndex) Search(ctx context.Context, vec []float32, topK int) ([]schema.Candidate, error) {
	n := min(topK, m.col.Count())
	if n <= 0 {
		return []schema.Candidate{}, nil
	}
	res, err := m.col.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("index %s: query: %w", m.name, err)
	}
	hits := make([]hit, len(res))
	for i, r := range res {
		hits[i] = hit{id: r.ID, score: float64(r.Similarity)}
	}
	return m.candidates(m.name, hits), nil
}
