package retriever

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
)

const (
	DefaultK1 = 1.6
	DefaultB  = 0.75
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Tokenize splits text into lower-cased alphanumeric words.
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// BM25 scores candidates with Okapi BM25. Document frequencies are taken
// from the candidate pool being scored, not from a global corpus.
type BM25 struct {
	K1 float64
	B  float64
}

func NewBM25(cfg config.BM25Config) *BM25 {
	b := &BM25{K1: cfg.K1, B: cfg.B}
	if b.K1 <= 0 {
		b.K1 = DefaultK1
	}
	if b.B < 0 || b.B > 1 {
		b.B = DefaultB
	}
	return b
}

// Scores returns one score per document, in input order.
func (m *BM25) Scores(query string, docs []string) []float64 {
	scores := make([]float64, len(docs))
	if len(docs) == 0 {
		return scores
	}
	terms := uniqueTokens(Tokenize(query))

	tfs := make([]map[string]int, len(docs))
	lens := make([]float64, len(docs))
	df := make(map[string]int, len(terms))
	var total float64
	for i, d := range docs {
		toks := Tokenize(d)
		tf := make(map[string]int, len(toks))
		for _, t := range toks {
			tf[t]++
		}
		for t := range tf {
			df[t]++
		}
		tfs[i] = tf
		lens[i] = float64(len(toks))
		total += lens[i]
	}
	n := float64(len(docs))
	avgdl := total / n
	if avgdl == 0 {
		avgdl = 1
	}

	for _, t := range terms {
		dft := float64(df[t])
		if dft == 0 {
			continue
		}
		idf := math.Log((n-dft+0.5)/(dft+0.5) + 1)
		for i, tf := range tfs {
			f := float64(tf[t])
			if f == 0 {
				continue
			}
			norm := m.K1 * (1 - m.B + m.B*lens[i]/avgdl)
			scores[i] += idf * f * (m.K1 + 1) / (f + norm)
		}
	}
	return scores
}

// Preselect keeps at most k candidates: those whose id is in mustKeep first,
// in pool order, then the rest by descending BM25 score with ties kept in
// pool order. Kept candidates carry their BM25 score.
func (m *BM25) Preselect(query string, candidates []schema.Candidate, mustKeep map[string]struct{}, k int) []schema.Candidate {
	if k <= 0 || len(candidates) == 0 {
		return []schema.Candidate{}
	}
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Document.Content
	}
	scores := m.Scores(query, texts)

	var anchors, rest []int
	for i, c := range candidates {
		if _, keep := mustKeep[c.Document.ID]; keep || c.IsAnchor {
			anchors = append(anchors, i)
		} else {
			rest = append(rest, i)
		}
	}
	sort.SliceStable(rest, func(a, b int) bool {
		return scores[rest[a]] > scores[rest[b]]
	})

	out := make([]schema.Candidate, 0, min(k, len(candidates)))
	for _, i := range append(anchors, rest...) {
		if len(out) == k {
			break
		}
		c := candidates[i]
		c.Score = scores[i]
		out = append(out, c)
	}
	return out
}

func uniqueTokens(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, t := range in {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
