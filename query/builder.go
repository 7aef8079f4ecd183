package query

import (
	"strings"
	"unicode/utf8"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/statute"
)

// MaxSnippetChars bounds the clause text carried in a query context.
const MaxSnippetChars = 400

// Options carries the raw upstream fields for NewContext.
type Options struct {
	ClauseID        string
	Intent          string
	Act             string
	Sections        []string
	Rules           []string
	Text            string
	ChunkConfidence *float64
	Jurisdiction    string
	IndexHint       string
}

// NewContext builds an immutable query context: the basis is canonicalized
// and the clause text is bounded.
func NewContext(o Options) schema.ClauseQueryContext {
	intent := strings.TrimSpace(o.Intent)
	if intent == "" {
		intent = schema.IntentUnknown
	}
	var basis *schema.StatutoryBasis
	if len(o.Sections) > 0 || len(o.Rules) > 0 || o.Act != "" {
		basis = statute.NewBasis(o.Act, o.Sections, o.Rules)
	}
	return schema.ClauseQueryContext{
		ClauseID:        o.ClauseID,
		Intent:          intent,
		Basis:           basis,
		Snippet:         Snippet(o.Text, MaxSnippetChars),
		ChunkConfidence: o.ChunkConfidence,
		Jurisdiction:    strings.TrimSpace(o.Jurisdiction),
		IndexHint:       strings.TrimSpace(o.IndexHint),
	}
}

// Snippet collapses whitespace and truncates to at most max runes.
func Snippet(text string, max int) string {
	s := strings.Join(strings.Fields(text), " ")
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max]))
}

// Build composes the search string: intent label, expected anchors, then
// the clause snippet. Anchors appear verbatim so both the lexical and the
// embedding stage can key on them.
func Build(ctx schema.ClauseQueryContext) string {
	parts := make([]string, 0, 3)
	if ctx.Intent != "" {
		parts = append(parts, ctx.Intent)
	}
	anchors := make([]string, 0, len(ctx.Sections())+len(ctx.Rules()))
	for _, s := range ctx.Sections() {
		if c, ok := statute.NormalizeSection(s); ok {
			anchors = append(anchors, c)
		}
	}
	for _, r := range ctx.Rules() {
		if c, ok := statute.NormalizeRule(r); ok {
			anchors = append(anchors, c)
		}
	}
	if len(anchors) > 0 {
		parts = append(parts, strings.Join(anchors, " "))
	}
	if snip := Snippet(ctx.Snippet, MaxSnippetChars); snip != "" {
		parts = append(parts, snip)
	}
	return strings.Join(parts, " ")
}
