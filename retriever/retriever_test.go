package retriever

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/embedding"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/statute"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/vectordb"
)

const filler = " This provision applies to every registered real estate project in the state."

var hash = embedding.NewHashProvider(128)

func mkDoc(id, label string, t schema.DocumentType, text string) schema.Document {
	return schema.Document{ID: id, Content: text + filler, Source: "test", Type: t, Jurisdiction: "maharashtra", SectionLabel: label}
}

func mkIndex(t *testing.T, name string, docs ...schema.Document) *vectordb.MemoryIndex {
	t.Helper()
	entries := make([]vectordb.Entry, len(docs))
	for i, d := range docs {
		entries[i] = vectordb.Entry{Document: d}
	}
	idx, err := vectordb.NewMemoryIndex(context.Background(), name, entries, hash.GetEmbedding)
	require.NoError(t, err)
	return idx
}

func fixtureSet(t *testing.T) *vectordb.Set {
	statutes := mkIndex(t, "statute",
		mkDoc("statute::section_18", "Section 18", schema.DocTypeStatute, "Return of amount and compensation."),
		mkDoc("statute::section_19", "Section 19", schema.DocTypeStatute, "Rights and duties of allottees."),
		mkDoc("statute::section_11(4)", "Section 11(4)", schema.DocTypeStatute, "Promoter obligations."),
	)
	rules := mkIndex(t, "state_rule",
		mkDoc("state_rule::chunk_1", "Rule 6", schema.DocTypeStateRule, "Disclosure of sale agreement."),
		mkDoc("state_rule::chunk_2", "rule 18(2)", schema.DocTypeStateRule, "Rate of interest payable."),
	)
	bba := mkIndex(t, "model_agreement",
		mkDoc("model_agreement::clause_7", "Section 18", schema.DocTypeModelAgreement, "Possession of the apartment."),
	)
	return vectordb.NewSet("maharashtra", statutes, rules, bba)
}

func TestVectorRetriever(t *testing.T) {
	set := fixtureSet(t)
	r := &VectorRetriever{TopK: 2}
	idx, _ := set.Get("statute")
	vec := hash.Embed("compensation")

	got, err := r.Retrieve(context.Background(), vec, idx, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	empty := mkIndex(t, "case_law")
	got, err = r.Retrieve(context.Background(), vec, empty, 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = r.Retrieve(context.Background(), vec, nil, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInjectAnchors(t *testing.T) {
	set := fixtureSet(t)
	basis := statute.NewBasis("", []string{"Section 18", "19(4)", "Section 11(4)", "Section 99"}, []string{"Rule 6", "Rule 18(2)", "Rule 40"})

	got := InjectAnchors(basis, set)
	ids := CandidateList(AnchorCandidates(got)).IDs()
	assert.Equal(t, []string{
		"statute::section_18",
		"statute::section_19",
		"statute::section_11(4)",
		"state_rule::chunk_1",
		"state_rule::chunk_2",
	}, ids)
	for _, c := range AnchorCandidates(got) {
		assert.True(t, c.IsAnchor)
	}
}

func TestInjectAnchorsAbsence(t *testing.T) {
	set := fixtureSet(t)
	assert.Empty(t, InjectAnchors(nil, set))
	assert.Empty(t, InjectAnchors(&schema.StatutoryBasis{}, set))
	assert.Empty(t, InjectAnchors(statute.NewBasis("", []string{"Section 18"}, nil), nil))
	assert.Empty(t, InjectAnchors(statute.NewBasis("", []string{"Section 77"}, nil), set))

	onlyBBA := vectordb.NewSet("maharashtra", mkIndex(t, "model_agreement",
		mkDoc("model_agreement::section_18", "Section 18", schema.DocTypeModelAgreement, "Possession.")))
	assert.Empty(t, InjectAnchors(statute.NewBasis("", []string{"Section 18"}, nil), onlyBBA),
		"anchors only come from statutory indexes")
}

func TestBM25ScoresMatchFormula(t *testing.T) {
	m := NewBM25(config.BM25Config{K1: 1.6, B: 0.75})
	got := m.Scores("b", []string{"a b", "a"})
	want := math.Log(2) * 2.6 / 3
	assert.InDelta(t, want, got[0], 1e-12)
	assert.Equal(t, 0.0, got[1])

	assert.Equal(t, []float64{}, m.Scores("b", nil))
	assert.Equal(t, []float64{0, 0}, m.Scores("", []string{"", ""}), "empty documents do not divide by zero")
}

func TestBM25QueryTermsCountOnce(t *testing.T) {
	m := NewBM25(config.BM25Config{})
	assert.Equal(t, DefaultK1, m.K1)
	once := m.Scores("refund", []string{"refund with interest", "possession"})
	twice := m.Scores("refund REFUND", []string{"refund with interest", "possession"})
	assert.Equal(t, once, twice)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"section", "18", "1", "a", "délai"}, Tokenize("Section 18(1)(a); Délai!"))
}

func pool(n int) []schema.Candidate {
	out := make([]schema.Candidate, n)
	for i := range out {
		out[i] = schema.Candidate{Document: mkDoc(fmt.Sprintf("model_agreement::clause_%d", i), "", schema.DocTypeModelAgreement,
			fmt.Sprintf("Clause %d about maintenance charges and parking allotment.", i))}
	}
	return out
}

func TestPreselectSixtyCandidatesKeepsAnchors(t *testing.T) {
	candidates := pool(60)
	// Candidate 59 is the statutory anchor and lexically unrelated to the query.
	candidates[59] = schema.Candidate{Document: mkDoc("statute::section_18", "Section 18", schema.DocTypeStatute, "Return of amount.")}
	candidates[3].Document.Content = "possession delay compensation refund interest possession delay" + filler
	candidates[40].Document.Content = "possession delay" + filler

	m := NewBM25(config.BM25Config{K1: 1.6, B: 0.75})
	must := map[string]struct{}{"statute::section_18": {}}
	got := m.Preselect("possession delay compensation", candidates, must, 10)

	require.Len(t, got, 10)
	assert.Equal(t, "statute::section_18", got[0].Document.ID)
	assert.Equal(t, "model_agreement::clause_3", got[1].Document.ID)
	assert.Equal(t, "model_agreement::clause_40", got[2].Document.ID)
	// The remaining slots are zero-score ties kept in pool order.
	assert.Equal(t, "model_agreement::clause_0", got[3].Document.ID)
	assert.Equal(t, "model_agreement::clause_1", got[4].Document.ID)

	again := m.Preselect("possession delay compensation", candidates, must, 10)
	assert.Equal(t, CandidateList(got).IDs(), CandidateList(again).IDs())
}

func TestPreselectCapsAnchorsAtK(t *testing.T) {
	candidates := pool(5)
	for i := range candidates {
		candidates[i].IsAnchor = true
	}
	got := NewBM25(config.BM25Config{}).Preselect("parking", candidates, nil, 3)
	assert.Equal(t, []string{"model_agreement::clause_0", "model_agreement::clause_1", "model_agreement::clause_2"}, CandidateList(got).IDs())
	assert.Empty(t, NewBM25(config.BM25Config{}).Preselect("parking", candidates, nil, 0))
	assert.Empty(t, NewBM25(config.BM25Config{}).Preselect("parking", nil, nil, 3))
}
