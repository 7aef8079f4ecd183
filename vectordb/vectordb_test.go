package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/embedding"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
)

const filler = " The promoter shall comply with every obligation in this provision without delay."

func doc(id, label string, t schema.DocumentType, text string) schema.Document {
	return schema.Document{
		ID:           id,
		Content:      text + filler,
		Source:       "test",
		Type:         t,
		Jurisdiction: "maharashtra",
		SectionLabel: label,
	}
}

func hashEmbed() EmbedFunc {
	return embedding.NewHashProvider(256).GetEmbedding
}

func TestMemoryIndexSearch(t *testing.T) {
	ctx := context.Background()
	entries := []Entry{
		{Document: doc("statute::section_18", "Section 18", schema.DocTypeStatute, "Return of amount and compensation for delay in possession")},
		{Document: doc("statute::section_19", "Section 19", schema.DocTypeStatute, "Rights and duties of allottees")},
		{Document: doc("statute::section_11", "Section 11", schema.DocTypeStatute, "Functions and duties of promoter advertisement")},
	}
	idx, err := NewMemoryIndex(ctx, "statute", entries, hashEmbed())
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Count())

	vec, _ := hashEmbed()(ctx, "compensation for delay in possession")
	got, err := idx.Search(ctx, vec, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "statute::section_18", got[0].Document.ID)
	assert.Equal(t, "Section 18", got[0].Document.SectionLabel)

	d, ok := idx.GetByID("statute::section_19")
	require.True(t, ok)
	assert.Equal(t, schema.DocTypeStatute, d.Type)
	_, ok = idx.GetByID("statute::section_99")
	assert.False(t, ok)
}

func TestMemoryIndexEmpty(t *testing.T) {
	idx, err := NewMemoryIndex(context.Background(), "case_law", nil, nil)
	require.NoError(t, err)
	got, err := idx.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryIndexRejectsDuplicateIDs(t *testing.T) {
	d := doc("x", "", schema.DocTypeStatute, "duplicate")
	_, err := NewMemoryIndex(context.Background(), "statute", []Entry{{Document: d}, {Document: d}}, hashEmbed())
	assert.Error(t, err)
}

func TestDocumentsReturnsCopy(t *testing.T) {
	idx, err := NewMemoryIndex(context.Background(), "statute",
		[]Entry{{Document: doc("a", "", schema.DocTypeStatute, "alpha")}}, hashEmbed())
	require.NoError(t, err)
	docs := idx.Documents()
	docs[0].ID = "mutated"
	_, ok := idx.GetByID("a")
	assert.True(t, ok)
	assert.Equal(t, "a", idx.Documents()[0].ID)
}

func writeSnapshot(t *testing.T, root, jurisdiction, name string, docs []SnapshotDocument) {
	t.Helper()
	dir := filepath.Join(root, jurisdiction)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	raw, err := json.Marshal(Snapshot{Name: name, Documents: docs})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), raw, 0o644))
}

func TestSnapshotLoader(t *testing.T) {
	root := t.TempDir()
	writeSnapshot(t, root, "maharashtra", "statute", []SnapshotDocument{
		{ID: "statute::section_18", Content: "Section 18 Return of amount and compensation." + filler,
			Metadata: map[string]string{"source": "rera_act.pdf", "section_label": "Section 18"}},
		{ID: "too_short", Content: "tiny", Metadata: map[string]string{"source": "rera_act.pdf"}},
	})
	writeSnapshot(t, root, "maharashtra", "state_rule", []SnapshotDocument{
		{ID: "state_rule::rule_6", Content: "Rule 6 Disclosure by promoter." + filler,
			Embedding: []float32{0.5, 0.5},
			Metadata:  map[string]string{"source": "rules.pdf", "section_label": "Rule 6", "document_type": "rera_rules"}},
	})
	require.NoError(t, os.WriteFile(filepath.Join(root, "maharashtra", "README.txt"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "karnataka"), 0o755))

	l := &SnapshotLoader{Source: &FileSource{Root: root}, Embed: hashEmbed()}
	js, err := l.Jurisdictions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"karnataka", "maharashtra"}, js)

	set, err := l.Load(context.Background(), "maharashtra")
	require.NoError(t, err)
	assert.Equal(t, []string{"state_rule", "statute"}, set.Names())

	statute, ok := set.Get("statute")
	require.True(t, ok)
	assert.Equal(t, 1, statute.Count(), "short documents are skipped at ingestion")
	d, _ := statute.GetByID("statute::section_18")
	assert.Equal(t, schema.DocTypeStatute, d.Type, "type inferred from index name")
	assert.Equal(t, "maharashtra", d.Jurisdiction)

	rules, _ := set.Get("state_rule")
	r, _ := rules.GetByID("state_rule::rule_6")
	assert.Equal(t, schema.DocTypeStateRule, r.Type)

	_, err = l.Load(context.Background(), "goa")
	assert.True(t, errors.Is(err, ErrUnknownJurisdiction))
	_, err = l.Load(context.Background(), "../etc")
	assert.True(t, errors.Is(err, ErrUnknownJurisdiction))
}

type countingLoader struct {
	loads atomic.Int32
	delay time.Duration
}

func (c *countingLoader) Jurisdictions(context.Context) ([]string, error) {
	return []string{"maharashtra", "karnataka"}, nil
}

func (c *countingLoader) Load(_ context.Context, j string) (*Set, error) {
	if j != "maharashtra" && j != "karnataka" {
		return nil, ErrUnknownJurisdiction
	}
	c.loads.Add(1)
	time.Sleep(c.delay)
	idx, err := NewMemoryIndex(context.Background(), "statute", nil, nil)
	if err != nil {
		return nil, err
	}
	return NewSet(j, idx), nil
}

func TestRegistryLoadsOnceConcurrently(t *testing.T) {
	l := &countingLoader{delay: 20 * time.Millisecond}
	r := NewRegistry(l)

	var wg sync.WaitGroup
	sets := make([]*Set, 16)
	for i := range sets {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := r.Get(context.Background(), "maharashtra")
			assert.NoError(t, err)
			sets[i] = s
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), l.loads.Load())
	for _, s := range sets {
		assert.Same(t, sets[0], s)
	}
	assert.True(t, r.Cached("maharashtra"))
}

func TestRegistryInvalidate(t *testing.T) {
	l := &countingLoader{}
	r := NewRegistry(l)
	ctx := context.Background()

	_, err := r.Get(ctx, "maharashtra")
	require.NoError(t, err)
	_, err = r.Get(ctx, "karnataka")
	require.NoError(t, err)

	r.Invalidate("maharashtra")
	assert.False(t, r.Cached("maharashtra"))
	assert.True(t, r.Cached("karnataka"))
	_, err = r.Get(ctx, "maharashtra")
	require.NoError(t, err)
	assert.Equal(t, int32(3), l.loads.Load())

	r.InvalidateAll()
	assert.False(t, r.Cached("maharashtra"))
	assert.False(t, r.Cached("karnataka"))
}

func TestRegistryValidate(t *testing.T) {
	r := NewRegistry(&countingLoader{})
	ctx := context.Background()
	assert.NoError(t, r.Validate(ctx, "karnataka"))
	err := r.Validate(ctx, "goa")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownJurisdiction))
	assert.Contains(t, err.Error(), "karnataka")

	_, err = r.Get(ctx, "goa")
	assert.True(t, errors.Is(err, ErrUnknownJurisdiction))
	assert.False(t, r.Cached("goa"))
}

func TestRegistryGetHonoursCancellation(t *testing.T) {
	r := NewRegistry(&countingLoader{delay: 200 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Get(ctx, "maharashtra")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type recordingInvalidator struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingInvalidator) Invalidate(j string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, j)
}

func (r *recordingInvalidator) seen(j string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c == j {
			return true
		}
	}
	return false
}

func TestWatcherInvalidatesOnSnapshotChange(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "maharashtra"), 0o755))

	inv := &recordingInvalidator{}
	w, err := NewWatcher(root, inv)
	require.NoError(t, err)
	defer w.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(root, "maharashtra", "notes.txt"), []byte("x"), 0o644))
	writeSnapshot(t, root, "maharashtra", "statute", nil)
	assert.Eventually(t, func() bool { return inv.seen("maharashtra") }, 2*time.Second, 10*time.Millisecond)
}

func TestFormatVector(t *testing.T) {
	assert.Equal(t, "[0.500000,-1.000000]", formatVector([]float32{0.5, -1}))
	assert.Equal(t, "[]", formatVector(nil))
}

func TestRemoteLayout(t *testing.T) {
	l := remoteLayout{pattern: "{jurisdiction}_{index}", jurisdictions: []string{"maharashtra"}}
	assert.Equal(t, "maharashtra_statute", l.collection("maharashtra", "statute"))
	assert.NoError(t, l.check("maharashtra"))
	assert.True(t, errors.Is(l.check("goa"), ErrUnknownJurisdiction))
}

func TestIndexNameFromFile(t *testing.T) {
	for file, want := range map[string]string{"statute.json": "statute", ".hidden.json": "", "x.txt": "", ".json": ""} {
		got, ok := indexNameFromFile(file)
		assert.Equal(t, want != "", ok, file)
		assert.Equal(t, want, got, file)
	}
}
