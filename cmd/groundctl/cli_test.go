package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	grounding "github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/fixtures"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	cfg := fixtures.WriteSnapshots(t)
	path := filepath.Join(t.TempDir(), "grounding.yaml")
	yaml := fmt.Sprintf("vectordb:\n  provider: memory\n  snapshot:\n    source: file\n    dir: %s\n", cfg.VectorDB.Snapshot.Dir)
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestNormalizeCommand(t *testing.T) {
	out, err := run(t, "normalize", "sec 18(1)", "RULE_6_2", "clause 9")
	require.NoError(t, err)

	var refs []grounding.Reference
	require.NoError(t, json.Unmarshal([]byte(out), &refs))
	require.Len(t, refs, 3)
	assert.Equal(t, "Section 18(1)", refs[0].Canonical)
	assert.Equal(t, "Rule 6(2)", refs[1].Canonical)
	assert.False(t, refs[2].Valid)

	_, err = run(t, "normalize", "--kind", "clause", "9")
	assert.Error(t, err)
}

func TestRetrieveCommand(t *testing.T) {
	cfg := writeConfig(t)
	out, err := run(t, "--config", cfg, "retrieve",
		"--clause-id", "4.2", "-j", fixtures.Jurisdiction,
		"--intent", "possession_delay", "--section", "Section 18(1)", "--rule", "Rule 18",
		"--text", "The promoter shall pay compensation for delayed possession.",
		"--confidence", "0.9")
	require.NoError(t, err)

	var pack schema.EvidencePack
	require.NoError(t, json.Unmarshal([]byte(out), &pack))
	assert.Equal(t, "4.2", pack.ClauseID)
	assert.Equal(t, 0.9, pack.Diagnostics.ChunkConfidence)
	require.NotEmpty(t, pack.Evidence)
	assert.Equal(t, "rera_act::section_18", pack.Evidence[0].ID)
}

func TestRetrieveBatchCommand(t *testing.T) {
	cfg := writeConfig(t)
	batch := filepath.Join(t.TempDir(), "clauses.json")
	raw, err := json.Marshal([]grounding.RetrieveRequest{
		{ClauseID: "1", Jurisdiction: fixtures.Jurisdiction, Sections: []string{"19"}},
		{ClauseID: "2", Jurisdiction: "goa"},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(batch, raw, 0o600))

	out, err := run(t, "--config", cfg, "retrieve", "--batch", batch)
	require.Error(t, err)

	var results []batchOutput
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.NotNil(t, results[0].Pack)
	assert.Empty(t, results[0].Error)
	assert.Contains(t, results[1].Error, "unknown jurisdiction")
}

func TestRetrieveCommandRequiresJurisdiction(t *testing.T) {
	_, err := run(t, "--config", writeConfig(t), "retrieve", "--clause-id", "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, grounding.ErrInvalidRequest)
}

func TestServeMCPRejectsUnknownTransport(t *testing.T) {
	_, err := run(t, "--config", writeConfig(t), "serve-mcp", "--transport", "sse")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport")
}

func TestEnvFileIsLoaded(t *testing.T) {
	env := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(env, []byte("GROUNDCTL_TEST_MARKER=loaded\n"), 0o600))
	t.Setenv("GROUNDCTL_TEST_MARKER", "")
	require.NoError(t, os.Unsetenv("GROUNDCTL_TEST_MARKER"))

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--env-file", env, "normalize", "18"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "loaded", os.Getenv("GROUNDCTL_TEST_MARKER"))
}
