// Package statute canonicalizes statutory citations so that references
// written in different styles can be compared for equality.
//
// Canonical sections look like "Section 18(1)(a)" and canonical rules like
// "Rule 6(2)". Malformed input yields ok == false; that is a normal outcome.
package statute

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const (
	SectionPrefix = "Section "
	RulePrefix    = "Rule "

	// DefaultAct is the act assumed when a basis does not name one.
	DefaultAct = "RERA Act, 2016"
)

type kind struct {
	prefix  string
	leading *regexp.Regexp
	encoded *regexp.Regexp
}

var (
	sectionKind = kind{
		prefix:  SectionPrefix,
		leading: regexp.MustCompile(`(?i)^(?:sections?|sec\.?|s\.|§)[\s_]*`),
		encoded: regexp.MustCompile(`(?i)^(?:[a-z0-9]+_)*?section_([a-z0-9]+(?:_[a-z0-9]+)*)$`),
	}
	ruleKind = kind{
		prefix:  RulePrefix,
		leading: regexp.MustCompile(`(?i)^(?:rules?|r\.)[\s_]*`),
		encoded: regexp.MustCompile(`(?i)^(?:[a-z0-9]+_)*?rule_([a-z0-9]+(?:_[a-z0-9]+)*)$`),
	}

	refShape = regexp.MustCompile(`^(\d+)([A-Za-z]?)((?:\([A-Za-z0-9]+\))*)$`)
	headPart = regexp.MustCompile(`^(\d+)([A-Za-z]?)$`)
	subPart  = regexp.MustCompile(`^[A-Za-z0-9]+$`)
)

// NormalizeSection canonicalizes a section citation. Accepted forms include
// "Section 18", "section18(1)(a)", "18(1)(a)", "RERA_ACT_SECTION_18_1_A"
// and index chunk ids such as "statute::section_18".
func NormalizeSection(ref string) (string, bool) {
	return sectionKind.normalize(ref)
}

// NormalizeRule canonicalizes a state rule citation ("Rule 6", "rule6(2)",
// "RULE_6_2", "state_rule::rule_6", or a bare "6").
func NormalizeRule(ref string) (string, bool) {
	return ruleKind.normalize(ref)
}

// SectionBase returns the leading section number, so "Section 19(4)" and
// "Section 19" both yield 19.
func SectionBase(ref string) (int, bool) {
	c, ok := NormalizeSection(ref)
	if !ok {
		return 0, false
	}
	return leadingNumber(strings.TrimPrefix(c, SectionPrefix))
}

// RuleBase is SectionBase for rules.
func RuleBase(ref string) (int, bool) {
	c, ok := NormalizeRule(ref)
	if !ok {
		return 0, false
	}
	return leadingNumber(strings.TrimPrefix(c, RulePrefix))
}

func (k kind) normalize(ref string) (string, bool) {
	s := strings.TrimSpace(ref)
	chunkID := false
	if i := strings.LastIndex(s, "::"); i >= 0 {
		s = s[i+2:]
		chunkID = true
	}
	s = strings.TrimRight(s, ".,;: ")
	if s == "" {
		return "", false
	}

	if m := k.encoded.FindStringSubmatch(s); m != nil {
		return k.fromParts(strings.Split(m[1], "_"))
	}
	// A chunk id only cites a statute when its local part is keyed as one,
	// so "circulars::18" is not Section 18.
	if chunkID && !k.leading.MatchString(s) {
		return "", false
	}

	s = k.leading.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	m := refShape.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return k.canonical(m[1], m[2], splitSubs(m[3]))
}

func (k kind) fromParts(parts []string) (string, bool) {
	var clean []string
	for _, p := range parts {
		if p != "" {
			clean = append(clean, p)
		}
	}
	if len(clean) == 0 {
		return "", false
	}
	h := headPart.FindStringSubmatch(clean[0])
	if h == nil {
		return "", false
	}
	for _, p := range clean[1:] {
		if !subPart.MatchString(p) {
			return "", false
		}
	}
	return k.canonical(h[1], h[2], clean[1:])
}

func (k kind) canonical(num, letter string, subs []string) (string, bool) {
	n, err := strconv.Atoi(num)
	if err != nil {
		return "", false
	}
	var b strings.Builder
	b.WriteString(k.prefix)
	b.WriteString(strconv.Itoa(n))
	b.WriteString(strings.ToUpper(letter))
	for _, s := range subs {
		b.WriteByte('(')
		b.WriteString(strings.ToLower(s))
		b.WriteByte(')')
	}
	return b.String(), true
}

// splitSubs turns "(1)(a)" into ["1", "a"].
func splitSubs(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	return strings.Split(s, ")(")
}

func leadingNumber(s string) (int, bool) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	return n, err == nil
}

// NormalizeAct maps every spelling of the real estate act onto DefaultAct
// and collapses whitespace in anything else.
func NormalizeAct(act string) string {
	if strings.TrimSpace(act) == "" {
		return DefaultAct
	}
	l := strings.ToLower(act)
	if strings.Contains(l, "real estate") || strings.Contains(l, "rera") {
		return DefaultAct
	}
	return strings.Join(strings.Fields(act), " ")
}
