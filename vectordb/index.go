package vectordb

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
)

// Index is a read-only, named collection of documents for one jurisdiction.
// Implementations must be safe for concurrent use.
type Index interface {
	Name() string
	// Search returns up to topK documents, most similar first. Ties are
	// ordered by the backend.
	Search(ctx context.Context, vec []float32, topK int) ([]schema.Candidate, error)
	GetByID(id string) (schema.Document, bool)
	Documents() []schema.Document
	Count() int
}

// docTable holds the documents of an index in load order. It is built once
// and never written afterwards.
type docTable struct {
	docs []schema.Document
	byID map[string]int
}

func newDocTable(index string, docs []schema.Document) (docTable, error) {
	t := docTable{docs: make([]schema.Document, 0, len(docs)), byID: make(map[string]int, len(docs))}
	for _, d := range docs {
		if _, dup := t.byID[d.ID]; dup {
			return docTable{}, fmt.Errorf("index %s: duplicate document id %q", index, d.ID)
		}
		t.byID[d.ID] = len(t.docs)
		t.docs = append(t.docs, d)
	}
	return t, nil
}

func (t docTable) GetByID(id string) (schema.Document, bool) {
	i, ok := t.byID[id]
	if !ok {
		return schema.Document{}, false
	}
	return t.docs[i], true
}

func (t docTable) Documents() []schema.Document { return slices.Clone(t.docs) }

func (t docTable) Count() int { return len(t.docs) }

type hit struct {
	id    string
	score float64
}

// candidates resolves backend hits against the table. Hits for ids the
// table does not know are dropped.
func (t docTable) candidates(index string, hits []hit) []schema.Candidate {
	out := make([]schema.Candidate, 0, len(hits))
	for _, h := range hits {
		d, ok := t.GetByID(h.id)
		if !ok {
			logger.Debugf("index %s: search returned unknown id %q", index, h.id)
			continue
		}
		out = append(out, schema.Candidate{Document: d, Score: h.score})
	}
	return out
}

// prepare validates raw documents at the ingestion boundary. Invalid
// documents are skipped; missing type and jurisdiction are filled in from
// the index name and the owning jurisdiction.
func prepare(jurisdiction, index string, docs []schema.Document) []schema.Document {
	out := make([]schema.Document, 0, len(docs))
	for _, d := range docs {
		if d.Type == "" {
			d.Type = schema.InferDocumentType(index)
		}
		if d.Jurisdiction == "" {
			d.Jurisdiction = jurisdiction
		}
		if err := d.Validate(); err != nil {
			logger.Warnf("index %s/%s: skipping document: %v", jurisdiction, index, err)
			continue
		}
		out = append(out, d)
	}
	return out
}

// Set is the collection of named indexes available for one jurisdiction.
type Set struct {
	jurisdiction string
	indexes      map[string]Index
}

func NewSet(jurisdiction string, indexes ...Index) *Set {
	s := &Set{jurisdiction: jurisdiction, indexes: make(map[string]Index, len(indexes))}
	for _, idx := range indexes {
		s.indexes[idx.Name()] = idx
	}
	return s
}

func (s *Set) Jurisdiction() string { return s.jurisdiction }

func (s *Set) Get(name string) (Index, bool) {
	idx, ok := s.indexes[name]
	return idx, ok
}

// Names returns the index names in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.indexes))
	for n := range s.indexes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *Set) Len() int { return len(s.indexes) }
