package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
)

func samplePack() *schema.EvidencePack {
	return &schema.EvidencePack{
		ClauseID:     "4.2",
		RequestID:    "req-1",
		Jurisdiction: "maharashtra",
		Query:        "Clause intent: possession_delay",
		Indexes:      []string{"rera_act"},
		Evidence:     []schema.Evidence{{ID: "rera_act::section_18", DocumentType: schema.DocTypeStatute, IsAnchor: true}},
		Resolution:   schema.ResolutionExplicit,
	}
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestFileSinkAppendsJSONLines(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "audit")
	s, err := NewFileSink(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Record(ctx, EvidenceEvent(samplePack())))
	require.NoError(t, s.Record(ctx, NewEvent(EventEvidencePack, map[string]int{"count": 3})))
	require.NoError(t, s.Record(ctx, NewEvent(EventRetrievalFailure, FailureEvent{ClauseID: "4.3", Stage: "rerank"})))

	lines := readLines(t, filepath.Join(dir, "evidence_pack.log.jsonl"))
	require.Len(t, lines, 2)
	assert.Equal(t, "evidence_pack", lines[0]["event_type"])
	assert.NotEmpty(t, lines[0]["timestamp"])
	payload := lines[0]["payload"].(map[string]any)
	assert.Equal(t, "4.2", payload["clause_id"])
	assert.Equal(t, "EXPLICIT_ALIGNMENT", payload["resolution"])

	failures := readLines(t, s.Path(EventRetrievalFailure))
	require.Len(t, failures, 1)
	assert.Equal(t, "rerank", failures[0]["payload"].(map[string]any)["stage"])
}

func TestFileSinkConcurrentWrites(t *testing.T) {
	s, err := NewFileSink(t.TempDir())
	require.NoError(t, err)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Record(context.Background(), EvidenceEvent(samplePack())))
		}()
	}
	wg.Wait()
	assert.Len(t, readLines(t, s.Path(EventEvidencePack)), 20)
}

func TestRejectsUnsafeEventTypes(t *testing.T) {
	s, err := NewFileSink(t.TempDir())
	require.NoError(t, err)
	for _, typ := range []string{"", "../escape", "a/b", " padded"} {
		assert.ErrorIs(t, s.Record(context.Background(), NewEvent(typ, nil)), ErrInvalidEventType, typ)
	}
}

type failingSink struct{ closed bool }

func (f *failingSink) Record(context.Context, Event) error { return errors.New("disk full") }
func (f *failingSink) Close() error                        { f.closed = true; return nil }

func TestMultiReportsEveryFailure(t *testing.T) {
	file, err := NewFileSink(t.TempDir())
	require.NoError(t, err)
	a, b := &failingSink{}, &failingSink{}
	m := Multi{a, file, b}

	err = m.Record(context.Background(), EvidenceEvent(samplePack()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 errors occurred")
	assert.Len(t, readLines(t, file.Path(EventEvidencePack)), 1)

	require.NoError(t, m.Close())
	assert.True(t, a.closed && b.closed)
}

func TestGormSinkSQLite(t *testing.T) {
	s, err := OpenGormSink("sqlite", filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Record(ctx, EvidenceEvent(samplePack())))
	require.NoError(t, s.Record(ctx, NewEvent(EventRetrievalFailure, FailureEvent{RequestID: "req-2", ClauseID: "4.3"})))

	recs, err := s.Events(ctx, EventEvidencePack, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "req-1", recs[0].RequestID)
	assert.Equal(t, "maharashtra", recs[0].Jurisdiction)

	var pack schema.EvidencePack
	require.NoError(t, json.Unmarshal([]byte(recs[0].Payload), &pack))
	assert.Equal(t, "rera_act::section_18", pack.Evidence[0].ID)

	recs, err = s.Events(ctx, EventRetrievalFailure, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "4.3", recs[0].ClauseID)
}

func TestNew(t *testing.T) {
	s, err := New(config.AuditConfig{Provider: "none"})
	require.NoError(t, err)
	assert.Equal(t, Nop{}, s)

	s, err = New(config.AuditConfig{Provider: "file", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileSink{}, s)

	dir := t.TempDir()
	s, err = New(config.AuditConfig{Provider: "file, gorm", Dir: dir, Driver: "sqlite", DSN: filepath.Join(dir, "a.db")})
	require.NoError(t, err)
	assert.Len(t, s.(Multi), 2)
	require.NoError(t, s.Close())

	_, err = New(config.AuditConfig{Provider: "kafka"})
	assert.Error(t, err)
	_, err = New(config.AuditConfig{Provider: "gorm", Driver: "mysql", DSN: "x"})
	assert.Error(t, err)
}
