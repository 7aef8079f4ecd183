package statute

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
)

func TestNormalizeSection(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Section 18", "Section 18", true},
		{"section18(1)(a)", "Section 18(1)(a)", true},
		{"18(1)(a)", "Section 18(1)(a)", true},
		{"RERA_ACT_SECTION_18_1_A", "Section 18(1)(a)", true},
		{"ACT_SECTION_18_1_A", "Section 18(1)(a)", true},
		{"statute::section_18", "Section 18", true},
		{"rera_act::section_19(4)", "Section 19(4)", true},
		{"  Section 19 (4) ", "Section 19(4)", true},
		{"Sec. 11(4)(a).", "Section 11(4)(a)", true},
		{"section 18a", "Section 18A", true},
		{"Section 018", "Section 18", true},
		{"", "", false},
		{"Section", "", false},
		{"Rule 6", "", false},
		{"possession", "", false},
		{"18(1", "", false},
		{"RERA_ACT_SECTION_", "", false},
		{"circulars::18", "", false},
		{"model_bba::7", "", false},
		{"notifications::18(1)", "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizeSection(tc.in)
		assert.Equal(t, tc.ok, ok, "ok for %q", tc.in)
		assert.Equal(t, tc.want, got, "value for %q", tc.in)
	}
}

func TestNormalizeSectionIdempotent(t *testing.T) {
	for _, in := range []string{"Section 18", "section18(1)(a)", "18(1)(a)", "RERA_ACT_SECTION_18_1_A", "statute::section_18"} {
		once, ok := NormalizeSection(in)
		require.True(t, ok, in)
		twice, ok := NormalizeSection(once)
		require.True(t, ok, once)
		assert.Equal(t, once, twice)
	}
}

func TestNormalizeRule(t *testing.T) {
	cases := map[string]string{
		"Rule 6":                   "Rule 6",
		"rule6(2)":                 "Rule 6(2)",
		"6":                        "Rule 6",
		"RULE_6_2":                 "Rule 6(2)",
		"MAHARERA_RULE_3":          "Rule 3",
		"state_rule::rule_10":      "Rule 10",
		"Rules 4(1).":              "Rule 4(1)",
		"maharashtra_rules::rule_4": "Rule 4",
	}
	for in, want := range cases {
		got, ok := NormalizeRule(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := NormalizeRule("Section 18")
	assert.False(t, ok)
}

func TestSectionBase(t *testing.T) {
	a, ok := SectionBase("Section 19(4)")
	require.True(t, ok)
	b, ok := SectionBase("Section 19")
	require.True(t, ok)
	assert.Equal(t, 19, a)
	assert.Equal(t, a, b)

	n, ok := SectionBase("RERA_ACT_SECTION_18_1_A")
	require.True(t, ok)
	assert.Equal(t, 18, n)

	_, ok = SectionBase("garbage")
	assert.False(t, ok)

	r, ok := RuleBase("Rule 6(2)")
	require.True(t, ok)
	assert.Equal(t, 6, r)
}

func TestNormalizeAct(t *testing.T) {
	assert.Equal(t, DefaultAct, NormalizeAct(""))
	assert.Equal(t, DefaultAct, NormalizeAct("Real Estate (Regulation and Development) Act"))
	assert.Equal(t, DefaultAct, NormalizeAct("rera"))
	assert.Equal(t, "Indian Contract Act, 1872", NormalizeAct("  Indian  Contract Act, 1872 "))
}

func TestNewBasisDedupsInOrder(t *testing.T) {
	b := NewBasis("", []string{"18(1)(a)", "Section 19", "RERA_ACT_SECTION_18_1_A", "bogus"}, []string{"Rule 6", "rule 6", "3"})
	assert.Equal(t, DefaultAct, b.Act)
	assert.Equal(t, []string{"Section 18(1)(a)", "Section 19"}, b.Sections)
	assert.Equal(t, []string{"Rule 6", "Rule 3"}, b.StateRules)
}

func TestAnchorIDs(t *testing.T) {
	assert.Equal(t, "statute::section_18(1)", SectionAnchorID("statute", "Section 18(1)"))
	id, ok := SectionBaseAnchorID("statute", "Section 18(1)")
	require.True(t, ok)
	assert.Equal(t, "statute::section_18", id)

	// the id round-trips through the normalizer
	c, ok := NormalizeSection(SectionAnchorID("rera_act", "Section 11(4)(a)"))
	require.True(t, ok)
	assert.Equal(t, "Section 11(4)(a)", c)
}

func TestDocumentSectionsAndRules(t *testing.T) {
	d := schema.Document{ID: "statute::section_18", SectionLabel: "Section 18"}
	assert.Equal(t, []string{"Section 18"}, DocumentSections(d))

	r := schema.Document{ID: "state_rule::rule_6", SectionLabel: "Rule 6"}
	assert.Equal(t, []string{"Rule 6"}, DocumentRules(r))
	assert.Empty(t, DocumentSections(r))

	n := schema.Document{ID: "circulars::18", Type: schema.DocTypeNotification}
	assert.Empty(t, DocumentSections(n))
	assert.Empty(t, DocumentRules(n))

	assert.Equal(t, []string{"Section 18"}, AnchorsToSections([]string{"RERA_ACT_SECTION_18", "section 18"}))
}
