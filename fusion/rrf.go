package fusion

import (
	"sort"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
)

const DefaultRRFK = 60

// RRFScore computes Reciprocal Rank Fusion score across multiple ranked lists.
// Documents with equal fused scores keep the order of their first appearance.
func RRFScore(lists [][]schema.Candidate, k int) []schema.Candidate {
	if k <= 0 {
		k = DefaultRRFK
	}
	type agg struct {
		cand  schema.Candidate
		score float64
		first int
	}
	scores := map[string]*agg{}
	seq := 0

	for _, list := range lists {
		for idx, item := range list {
			id := item.Document.ID
			if id == "" {
				continue
			}
			a, ok := scores[id]
			if !ok {
				a = &agg{cand: item, first: seq}
				scores[id] = a
				seq++
			}
			a.cand.IsAnchor = a.cand.IsAnchor || item.IsAnchor
			// RRF: 1 / (k + rank)
			a.score += 1.0 / (float64(k) + float64(idx+1))
		}
	}

	all := make([]*agg, 0, len(scores))
	for _, v := range scores {
		all = append(all, v)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].first < all[j].first
	})
	out := make([]schema.Candidate, len(all))
	for i, v := range all {
		out[i] = v.cand
		out[i].Score = v.score
	}
	return out
}
