package orchestrator

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
)

// BatchResult is the outcome of one clause in a batch. Exactly one of Pack
// and Err is set.
type BatchResult struct {
	ClauseID string               `json:"clause_id"`
	Pack     *schema.EvidencePack `json:"pack,omitempty"`
	Err      error                `json:"-"`
}

// RunBatch retrieves every clause, at most BatchConcurrency at a time.
// Results keep the order of clauses. A failing clause does not affect the
// others; the returned error aggregates every per-clause failure.
func (o *Orchestrator) RunBatch(ctx context.Context, clauses []schema.ClauseQueryContext) ([]BatchResult, error) {
	results := make([]BatchResult, len(clauses))

	var g errgroup.Group
	g.SetLimit(max(1, o.BatchConcurrency))
	for i, c := range clauses {
		results[i].ClauseID = c.ClauseID
		g.Go(func() error {
			pack, err := o.Run(ctx, c)
			results[i].Pack, results[i].Err = pack, err
			return nil
		})
	}
	_ = g.Wait()

	var result *multierror.Error
	for i, r := range results {
		if r.Err != nil {
			result = multierror.Append(result, fmt.Errorf("clause %d (%s): %w", i, r.ClauseID, r.Err))
		}
	}
	return results, result.ErrorOrNil()
}
