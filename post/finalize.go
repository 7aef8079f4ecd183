package post

import "github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"

// Finalize builds the evidence list: anchors first in the order they were
// found, then reranked candidates in rank order, without repeating a stable
// id and with at most k entries.
//
// Anchors keep the score the reranker gave them when it ranked them at all.
func Finalize(reranked []schema.Candidate, anchors []schema.Document, k int) []schema.Candidate {
	if k <= 0 {
		return []schema.Candidate{}
	}
	scores := make(map[string]float64, len(reranked))
	for _, c := range reranked {
		if _, ok := scores[c.Document.ID]; !ok {
			scores[c.Document.ID] = c.Score
		}
	}

	out := make([]schema.Candidate, 0, k)
	seen := make(map[string]struct{}, k)
	push := func(c schema.Candidate) bool {
		if _, dup := seen[c.Document.ID]; dup {
			return len(out) < k
		}
		seen[c.Document.ID] = struct{}{}
		out = append(out, c)
		return len(out) < k
	}

	for _, d := range anchors {
		if !push(schema.Candidate{Document: d, Score: scores[d.ID], IsAnchor: true}) {
			return out
		}
	}
	for _, c := range reranked {
		if !push(c) {
			break
		}
	}
	return out
}
