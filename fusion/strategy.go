package fusion

import (
	"fmt"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
)

// Strategy merges per-index candidate lists, given in index priority order,
// into one pool without duplicate stable ids.
type Strategy interface {
	Fuse(lists [][]schema.Candidate) []schema.Candidate
	Name() string
}

// PriorityStrategy concatenates lists in priority order.
type PriorityStrategy struct{}

func (PriorityStrategy) Fuse(lists [][]schema.Candidate) []schema.Candidate {
	return MergePool(lists...)
}

func (PriorityStrategy) Name() string { return "priority" }

// RRFStrategy implements Reciprocal Rank Fusion
type RRFStrategy struct {
	K int // RRF parameter (default: 60)
}

func NewRRFStrategy(k int) *RRFStrategy {
	if k <= 0 {
		k = DefaultRRFK
	}
	return &RRFStrategy{K: k}
}

func (s *RRFStrategy) Fuse(lists [][]schema.Candidate) []schema.Candidate {
	return RRFScore(lists, s.K)
}

func (s *RRFStrategy) Name() string { return "rrf" }

// MergePool concatenates lists, keeping the first occurrence of each stable
// id. A document seen as an anchor anywhere stays marked as an anchor, and
// the kept entry carries the highest score seen for its id, so an injected
// anchor keeps the similarity score of its search hit.
func MergePool(lists ...[]schema.Candidate) []schema.Candidate {
	var out []schema.Candidate
	pos := make(map[string]int)
	for _, list := range lists {
		for _, c := range list {
			if i, dup := pos[c.Document.ID]; dup {
				out[i].IsAnchor = out[i].IsAnchor || c.IsAnchor
				if c.Score > out[i].Score {
					out[i].Score = c.Score
				}
				continue
			}
			pos[c.Document.ID] = len(out)
			out = append(out, c)
		}
	}
	if out == nil {
		out = []schema.Candidate{}
	}
	return out
}

// NewStrategy creates a fusion strategy from configuration.
func NewStrategy(cfg config.FusionConfig) (Strategy, error) {
	switch cfg.Mode {
	case "", "priority":
		return PriorityStrategy{}, nil
	case "rrf":
		return NewRRFStrategy(cfg.RRFK), nil
	default:
		return nil, fmt.Errorf("unknown fusion mode: %s", cfg.Mode)
	}
}
