// Package fixtures writes small index snapshots for tests of the serving
// surfaces.
package fixtures

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/vectordb"
)

const Jurisdiction = "maharashtra"

const filler = " These terms bind the promoter and every allottee of the registered project."

func doc(id, label, text string) vectordb.SnapshotDocument {
	return vectordb.SnapshotDocument{
		ID:       id,
		Content:  text + filler,
		Metadata: map[string]string{"source": "fixture", "section_label": label},
	}
}

// Snapshots returns the fixture indexes of Jurisdiction keyed by name.
func Snapshots() map[string][]vectordb.SnapshotDocument {
	return map[string][]vectordb.SnapshotDocument{
		"rera_act": {
			doc("rera_act::section_18", "Section 18", "Section 18. Return of amount and compensation for delayed possession."),
			doc("rera_act::section_19", "Section 19", "Section 19. Rights and duties of allottees."),
			doc("rera_act::section_11", "Section 11", "Section 11. Functions and duties of promoter."),
		},
		"rera_rules": {
			doc("rera_rules::rule_18", "Rule 18", "Rule 18. Rate of interest payable by the promoter and the allottee."),
		},
		"model_bba": {
			doc("model_bba::clause_7", "Clause 7", "Clause 7. Possession of the apartment and compensation for delay in possession."),
			doc("model_bba::clause_9", "Clause 9", "Clause 9. Events of default and consequences for the allottee."),
		},
	}
}

// WriteSnapshots lays out the fixture snapshots under a temporary root and
// returns an offline configuration serving them.
func WriteSnapshots(t testing.TB) *config.Config {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, Jurisdiction)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, docs := range Snapshots() {
		raw, err := json.Marshal(vectordb.Snapshot{Name: name, Documents: docs})
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, name+".json"), raw, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfg := config.Default()
	cfg.VectorDB.Snapshot.Dir = root
	cfg.Audit.Dir = t.TempDir()
	return cfg
}
