package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
)

func cand(id string, anchor bool) schema.Candidate {
	return schema.Candidate{Document: schema.Document{ID: id}, IsAnchor: anchor}
}

func ids(in []schema.Candidate) []string {
	out := make([]string, len(in))
	for i, c := range in {
		out[i] = c.Document.ID
	}
	return out
}

func TestMergePool(t *testing.T) {
	got := MergePool(
		[]schema.Candidate{cand("s18", false), cand("s19", false)},
		[]schema.Candidate{cand("r6", false), cand("s18", false)},
		[]schema.Candidate{cand("s18", true), cand("bba7", false)},
	)
	assert.Equal(t, []string{"s18", "s19", "r6", "bba7"}, ids(got))
	assert.True(t, got[0].IsAnchor)
	assert.NotNil(t, MergePool())
}

func TestMergePoolKeepsHitScoreOfAnchor(t *testing.T) {
	hit := cand("s18", false)
	hit.Score = .82
	other := cand("s19", false)
	other.Score = .4

	got := MergePool([]schema.Candidate{cand("s18", true)}, []schema.Candidate{other, hit})
	require.Len(t, got, 2)
	assert.Equal(t, "s18", got[0].Document.ID)
	assert.True(t, got[0].IsAnchor)
	assert.Equal(t, .82, got[0].Score)
	assert.Equal(t, .4, got[1].Score)
}

func TestRRFScore(t *testing.T) {
	got := RRFScore([][]schema.Candidate{
		{cand("a", false), cand("b", false), cand("c", false)},
		{cand("b", false), cand("d", true)},
	}, 60)
	assert.Equal(t, []string{"b", "a", "d", "c"}, ids(got))
	assert.InDelta(t, 1.0/62+1.0/61, got[0].Score, 1e-12)
	assert.True(t, got[2].IsAnchor)
}

func TestRRFScoreTiesKeepFirstAppearance(t *testing.T) {
	got := RRFScore([][]schema.Candidate{{cand("x", false)}, {cand("y", false)}, {cand("z", false)}}, 0)
	assert.Equal(t, []string{"x", "y", "z"}, ids(got))
}

func TestNewStrategy(t *testing.T) {
	s, err := NewStrategy(config.FusionConfig{})
	require.NoError(t, err)
	assert.Equal(t, "priority", s.Name())

	s, err = NewStrategy(config.FusionConfig{Mode: "rrf", RRFK: 10})
	require.NoError(t, err)
	assert.Equal(t, "rrf", s.Name())
	assert.Equal(t, 10, s.(*RRFStrategy).K)

	_, err = NewStrategy(config.FusionConfig{Mode: "learned"})
	assert.Error(t, err)
}
