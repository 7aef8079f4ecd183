package query

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
)

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", Snippet("  a\n\tb   c ", 400))
	assert.Equal(t, "", Snippet("   ", 400))

	long := strings.Repeat("पक्ष ", 200)
	s := Snippet(long, MaxSnippetChars)
	assert.LessOrEqual(t, utf8.RuneCountInString(s), MaxSnippetChars)
	assert.True(t, utf8.ValidString(s))
}

func TestBuild(t *testing.T) {
	ctx := NewContext(Options{
		ClauseID: "c1",
		Intent:   "possession_delay",
		Sections: []string{"RERA_ACT_SECTION_18_1", "section 19(4)"},
		Rules:    []string{"rule 6"},
		Text:     "The  promoter shall\nhand over possession by 2025.",
	})
	got := Build(ctx)
	assert.Equal(t, "possession_delay Section 18(1) Section 19(4) Rule 6 The promoter shall hand over possession by 2025.", got)
}

func TestBuildWithoutBasis(t *testing.T) {
	ctx := NewContext(Options{ClauseID: "c2", Text: "Maintenance charges are payable monthly."})
	assert.Nil(t, ctx.Basis)
	assert.Equal(t, schema.IntentUnknown, ctx.Intent)
	assert.Equal(t, "unknown Maintenance charges are payable monthly.", Build(ctx))
}

func TestNewContextBoundsSnippet(t *testing.T) {
	ctx := NewContext(Options{Text: strings.Repeat("word ", 500)})
	assert.LessOrEqual(t, utf8.RuneCountInString(ctx.Snippet), MaxSnippetChars)
	assert.NotContains(t, ctx.Snippet, "  ")
}
