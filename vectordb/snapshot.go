package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
)

// Snapshot is the on-disk form of one index:
//
//	{"name": "statute", "documents": [{"id", "content", "embedding", "metadata"}]}
type Snapshot struct {
	Name      string             `json:"name"`
	Documents []SnapshotDocument `json:"documents"`
}

type SnapshotDocument struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Embedding []float32         `json:"embedding,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// DecodeSnapshot reads a snapshot. An empty name falls back to fallbackName.
func DecodeSnapshot(r io.Reader, fallbackName string) (*Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, err
	}
	if s.Name == "" {
		s.Name = fallbackName
	}
	return &s, nil
}

// Entries converts the snapshot into validated index entries.
func (s *Snapshot) Entries(jurisdiction string) []Entry {
	docs := make([]schema.Document, len(s.Documents))
	vecs := make(map[string][]float32, len(s.Documents))
	for i, sd := range s.Documents {
		docs[i] = schema.DocumentFromMetadata(sd.ID, sd.Content, sd.Metadata)
		if len(sd.Embedding) > 0 {
			vecs[docs[i].ID] = sd.Embedding
		}
	}
	docs = prepare(jurisdiction, s.Name, docs)
	out := make([]Entry, len(docs))
	for i, d := range docs {
		out[i] = Entry{Document: d, Embedding: vecs[d.ID]}
	}
	return out
}

// Source lists and opens snapshots laid out as <jurisdiction>/<index>.json.
type Source interface {
	Jurisdictions(ctx context.Context) ([]string, error)
	// Indexes returns ErrUnknownJurisdiction when the jurisdiction is absent.
	Indexes(ctx context.Context, jurisdiction string) ([]string, error)
	Open(ctx context.Context, jurisdiction, index string) (io.ReadCloser, error)
}

// SnapshotLoader builds chromem-backed index sets from a Source.
type SnapshotLoader struct {
	Source Source
	Embed  EmbedFunc
}

func (l *SnapshotLoader) Jurisdictions(ctx context.Context) ([]string, error) {
	return l.Source.Jurisdictions(ctx)
}

func (l *SnapshotLoader) Load(ctx context.Context, jurisdiction string) (*Set, error) {
	names, err := l.Source.Indexes(ctx, jurisdiction)
	if err != nil {
		return nil, err
	}
	indexes := make([]Index, 0, len(names))
	for _, name := range names {
		idx, err := l.loadIndex(ctx, jurisdiction, name)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, idx)
	}
	return NewSet(jurisdiction, indexes...), nil
}

func (l *SnapshotLoader) loadIndex(ctx context.Context, jurisdiction, name string) (Index, error) {
	rc, err := l.Source.Open(ctx, jurisdiction, name)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s/%s: %w", jurisdiction, name, err)
	}
	defer rc.Close()
	snap, err := DecodeSnapshot(rc, name)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s/%s: %w", jurisdiction, name, err)
	}
	if snap.Name != name {
		logger.Warnf("snapshot %s/%s declares name %q, using file name", jurisdiction, name, snap.Name)
		snap.Name = name
	}
	entries := snap.Entries(jurisdiction)
	idx, err := NewMemoryIndex(ctx, name, entries, l.Embed)
	if err != nil {
		return nil, err
	}
	logger.Debugf("snapshot %s/%s: %d of %d documents indexed", jurisdiction, name, len(entries), len(snap.Documents))
	return idx, nil
}

func indexNameFromFile(file string) (string, bool) {
	name, ok := strings.CutSuffix(file, ".json")
	if !ok || name == "" || strings.HasPrefix(name, ".") {
		return "", false
	}
	return name, true
}

func sortedUnique(in []string) []string {
	slices.Sort(in)
	return slices.Compact(in)
}
