package statute

import (
	"slices"
	"strconv"
	"strings"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
)

// NewBasis canonicalizes raw citations into a StatutoryBasis. References that
// do not normalize are dropped; duplicates keep their first position.
func NewBasis(act string, sections, rules []string) *schema.StatutoryBasis {
	return &schema.StatutoryBasis{
		Act:        NormalizeAct(act),
		Sections:   normalizeAll(sections, NormalizeSection),
		StateRules: normalizeAll(rules, NormalizeRule),
	}
}

// AnchorsToSections converts anchor constants like RERA_ACT_SECTION_18 into
// canonical sections.
func AnchorsToSections(anchors []string) []string {
	return normalizeAll(anchors, NormalizeSection)
}

func normalizeAll(in []string, fn func(string) (string, bool)) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		c, ok := fn(raw)
		if !ok {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// SectionAnchorID is the stable id the section indexer assigns to the chunk
// holding a canonical section, e.g. "rera_act::section_18(1)".
func SectionAnchorID(index, canonical string) string {
	return index + "::section_" + strings.TrimPrefix(canonical, SectionPrefix)
}

// SectionBaseAnchorID is the id of the whole-section chunk that contains
// the given (sub)section.
func SectionBaseAnchorID(index, canonical string) (string, bool) {
	n, ok := SectionBase(canonical)
	if !ok {
		return "", false
	}
	return index + "::section_" + strconv.Itoa(n), true
}

// DocumentSections extracts every canonical section a document can be
// cited as, from its label and its stable id.
func DocumentSections(d schema.Document) []string {
	var out []string
	for _, ref := range []string{d.SectionLabel, d.ID} {
		if ref == "" {
			continue
		}
		if c, ok := NormalizeSection(ref); ok && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// DocumentRules is DocumentSections for state rules.
func DocumentRules(d schema.Document) []string {
	var out []string
	for _, ref := range []string{d.SectionLabel, d.ID} {
		if ref == "" {
			continue
		}
		if c, ok := NormalizeRule(ref); ok && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}
