// Package diagnostics scores how well a final evidence set supports the
// statutory basis a clause is expected to cite.
package diagnostics

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/statute"
)

// DefaultChunkConfidence is used when the caller supplies none.
const DefaultChunkConfidence = 0.5

const (
	weightCoverage = 0.35
	weightAnchor   = 0.35
	weightNoise    = 0.15
	weightChunk    = 0.15
)

// Evaluate computes the diagnostics of evidence for the clause in ctx.
// It is a pure function of its inputs.
func Evaluate(ctx schema.ClauseQueryContext, evidence []schema.Candidate) schema.Diagnostics {
	sections := ctx.Sections()
	rules := ctx.Rules()
	expectAnchors := len(sections)+len(rules) > 0
	shouldHaveStatutory := intentKnown(ctx.Intent) && expectAnchors

	statutory := 0
	relevant := 0
	var matchedSections, matchedRules []string
	for _, c := range evidence {
		if c.Document.Type.IsStatutory() {
			statutory++
		}
		s := matchAnchors(sections, statute.DocumentSections(c.Document), sectionBase)
		r := matchAnchors(rules, statute.DocumentRules(c.Document), ruleBase)
		if len(s)+len(r) > 0 {
			relevant++
		}
		matchedSections = appendNew(matchedSections, s...)
		matchedRules = appendNew(matchedRules, r...)
	}

	d := schema.Diagnostics{
		Coverage:         !shouldHaveStatutory || statutory > 0,
		AnchorMatch:      !expectAnchors || len(matchedSections)+len(matchedRules) > 0,
		ChunkConfidence:  chunkConfidence(ctx.ChunkConfidence),
		ExpectedSections: nonNil(sections),
		ExpectedRules:    nonNil(rules),
		MatchedSections:  orderLike(sections, matchedSections),
		MatchedRules:     orderLike(rules, matchedRules),
	}

	total := float64(len(evidence))
	switch {
	case total == 0 && shouldHaveStatutory:
		d.NoiseRatio = 1
	case total == 0:
		d.NoiseRatio = 0
	case expectAnchors:
		d.NoiseRatio = clamp01(1 - float64(relevant)/total)
	default:
		d.NoiseRatio = clamp01(1 - float64(statutory)/total)
	}

	d.Groundedness = clamp01(weightCoverage*b2f(d.Coverage) +
		weightAnchor*b2f(d.AnchorMatch) +
		weightNoise*(1-d.NoiseRatio) +
		weightChunk*d.ChunkConfidence)
	d.Reasons = reasons(d, shouldHaveStatutory)
	return d
}

// Resolve labels the evidence: INSUFFICIENT when there is none, otherwise
// EXPLICIT_ALIGNMENT on an anchor match and IMPLIED_ALIGNMENT without one.
func Resolve(evidence []schema.Candidate, d schema.Diagnostics) schema.Resolution {
	switch {
	case len(evidence) == 0:
		return schema.ResolutionInsufficient
	case d.AnchorMatch:
		return schema.ResolutionExplicit
	default:
		return schema.ResolutionImplied
	}
}

func intentKnown(intent string) bool {
	i := strings.TrimSpace(intent)
	return i != "" && !strings.EqualFold(i, schema.IntentUnknown)
}

// matchAnchors returns the expected references a document satisfies. A
// document matches an expected reference when they are equal, when the
// document is the whole section containing it, or when the document is a
// subsection of an expected whole section.
func matchAnchors(expected, cites []string, base func(string) string) []string {
	var out []string
	for _, e := range expected {
		eb := base(e)
		for _, c := range cites {
			if c == e || c == eb || base(c) == e {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

func sectionBase(ref string) string {
	n, ok := statute.SectionBase(ref)
	if !ok {
		return ""
	}
	return statute.SectionPrefix + strconv.Itoa(n)
}

func ruleBase(ref string) string {
	n, ok := statute.RuleBase(ref)
	if !ok {
		return ""
	}
	return statute.RulePrefix + strconv.Itoa(n)
}

func appendNew(dst []string, items ...string) []string {
	for _, s := range items {
		if !slices.Contains(dst, s) {
			dst = append(dst, s)
		}
	}
	return dst
}

// orderLike sorts matched into the order of expected.
func orderLike(expected, matched []string) []string {
	out := make([]string, 0, len(matched))
	for _, e := range expected {
		if slices.Contains(matched, e) {
			out = append(out, e)
		}
	}
	return out
}

func chunkConfidence(v *float64) float64 {
	if v == nil {
		return DefaultChunkConfidence
	}
	return clamp01(*v)
}

func reasons(d schema.Diagnostics, shouldHaveStatutory bool) []string {
	var out []string
	expected := append(slices.Clone(d.ExpectedSections), d.ExpectedRules...)
	matched := append(slices.Clone(d.MatchedSections), d.MatchedRules...)
	if shouldHaveStatutory && !d.Coverage {
		out = append(out, "Expected statutory retrieval but no statutory evidence was found.")
	}
	if len(expected) > 0 && !d.AnchorMatch {
		out = append(out, fmt.Sprintf("Retrieved evidence did not match expected anchors: %s.", strings.Join(expected, ", ")))
	}
	if len(expected) > 0 && len(matched) > 0 {
		out = append(out, fmt.Sprintf("Matched statutory anchors: %s.", strings.Join(matched, ", ")))
	}
	if d.NoiseRatio > 0.5 {
		out = append(out, "High retrieval noise detected (majority of hits are likely irrelevant).")
	}
	if d.ChunkConfidence < 0.5 {
		out = append(out, "Low chunk confidence may reduce legal interpretability.")
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
