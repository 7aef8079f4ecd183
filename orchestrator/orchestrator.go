package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/audit"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/diagnostics"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/embedding"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/fusion"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/metrics"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/post"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/query"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/retriever"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/router"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/vectordb"
)

// Pipeline stages, in execution order.
const (
	StageBuildQuery = "build_query"
	StageResolve    = "resolve_indexes"
	StageEmbed      = "embed"
	StageRetrieve   = "retrieve"
	StageAnchors    = "inject_anchors"
	StagePreselect  = "preselect"
	StageRerank     = "rerank"
	StageFinalize   = "finalize"
	StageDiagnose   = "diagnose"
	StageAssemble   = "assemble"
)

const tracerName = "github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/orchestrator"

// StageError reports the stage at which a clause retrieval was aborted.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

// StageOf returns the failing stage of err, or "" when err did not come
// from a pipeline stage.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// Orchestrator wires the grounding pipeline stages. It holds no per-call
// state and is safe for concurrent use.
type Orchestrator struct {
	Registry  *vectordb.Registry
	Embedder  embedding.Provider
	Retriever retriever.Retriever
	Resolver  *router.Resolver
	Fusion    fusion.Strategy
	BM25      *retriever.BM25
	Reranker  post.Reranker
	Audit     audit.Sink
	Pipeline  config.PipelineConfig
	// BatchConcurrency bounds RunBatch; <= 0 means one clause at a time.
	BatchConcurrency int
}

// New builds an orchestrator from cfg around the given ports. A nil sink
// disables auditing.
func New(cfg *config.Config, reg *vectordb.Registry, emb embedding.Provider, rr post.Reranker, sink audit.Sink) (*Orchestrator, error) {
	if reg == nil || emb == nil || rr == nil {
		return nil, errors.New("orchestrator requires a registry, an embedder and a reranker")
	}
	strategy, err := fusion.NewStrategy(cfg.Pipeline.Fusion)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Orchestrator{
		Registry:         reg,
		Embedder:         emb,
		Retriever:        &retriever.VectorRetriever{TopK: cfg.Pipeline.TopKPerIndex},
		Resolver:         router.NewResolver(cfg.Pipeline.Priority),
		Fusion:           strategy,
		BM25:             retriever.NewBM25(cfg.Pipeline.BM25),
		Reranker:         rr,
		Audit:            sink,
		Pipeline:         cfg.Pipeline,
		BatchConcurrency: cfg.Server.BatchConcurrency,
	}, nil
}

// Run retrieves the evidence pack of one clause. It either returns a
// complete pack or an error naming the failed stage; a cancelled context
// never yields a partial pack.
func (o *Orchestrator) Run(ctx context.Context, clause schema.ClauseQueryContext) (pack *schema.EvidencePack, err error) {
	requestID := uuid.NewString()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "grounding.run", trace.WithAttributes(
		attribute.String("grounding.request_id", requestID),
		attribute.String("grounding.clause_id", clause.ClauseID),
		attribute.String("grounding.jurisdiction", clause.Jurisdiction),
		attribute.String("grounding.intent", clause.Intent),
	))
	start := time.Now()
	rm := metrics.NewRetrievalMetrics(requestID, clause.ClauseID)
	rm.Jurisdiction = clause.Jurisdiction
	rm.Intent = clause.Intent
	rm.FusionMethod = o.Fusion.Name()
	rm.RerankProvider = fmt.Sprintf("%T", o.Reranker)

	defer func() {
		rm.TotalLatencyMs = time.Since(start).Milliseconds()
		if err != nil {
			failed := StageOf(err)
			rm.Fail(failed, err)
			metrics.IncFailure(failed)
			o.record(context.WithoutCancel(ctx), audit.NewEvent(audit.EventRetrievalFailure, audit.FailureEvent{
				RequestID:    requestID,
				ClauseID:     clause.ClauseID,
				Jurisdiction: clause.Jurisdiction,
				Stage:        failed,
				Error:        err.Error(),
			}))
		} else {
			rm.Success = true
		}
		markSpan(span, err)
		span.End()
		rm.Log()
	}()

	var (
		q        string
		set      *vectordb.Set
		names    []string
		vec      []float32
		pool     []schema.Candidate
		anchors  []schema.Document
		reranked []schema.Candidate
		final    []schema.Candidate
		diag     schema.Diagnostics
	)

	if err = stage(ctx, StageBuildQuery, func(context.Context) (int, error) {
		q = query.Build(clause)
		rm.Query = q
		return -1, nil
	}); err != nil {
		return nil, err
	}

	if err = stage(ctx, StageResolve, func(ctx context.Context) (int, error) {
		if clause.Jurisdiction == "" {
			return 0, fmt.Errorf("%w: jurisdiction is required", vectordb.ErrUnknownJurisdiction)
		}
		var err error
		if set, err = o.Registry.Get(ctx, clause.Jurisdiction); err != nil {
			return 0, err
		}
		if names, err = o.Resolver.Resolve(clause.IndexHint, set.Names()); err != nil {
			return 0, err
		}
		rm.Indexes = names
		return len(names), nil
	}); err != nil {
		return nil, err
	}

	if err = stage(ctx, StageEmbed, func(ctx context.Context) (int, error) {
		var err error
		vec, err = o.Embedder.GetEmbedding(ctx, q)
		return -1, err
	}); err != nil {
		return nil, err
	}

	if err = stage(ctx, StageRetrieve, func(ctx context.Context) (int, error) {
		lists := make([][]schema.Candidate, 0, len(names))
		total := 0
		for _, name := range names {
			idx, _ := set.Get(name)
			t0 := time.Now()
			hits, err := o.Retriever.Retrieve(ctx, vec, idx, o.Pipeline.TopKPerIndex)
			if err != nil {
				return 0, fmt.Errorf("index %s: %w", name, err)
			}
			st := metrics.IndexStats{Index: name, LatencyMs: time.Since(t0).Milliseconds(), ResultCount: len(hits)}
			if len(hits) > 0 {
				st.TopScore = hits[0].Score
			}
			rm.AddIndexStats(st)
			total += len(hits)
			lists = append(lists, hits)
		}
		pool = o.Fusion.Fuse(lists)
		rm.DeduplicationCount = total - len(pool)
		return len(pool), ctx.Err()
	}); err != nil {
		return nil, err
	}

	if err = stage(ctx, StageAnchors, func(context.Context) (int, error) {
		anchors = retriever.InjectAnchors(clause.Basis, set)
		pool = fusion.MergePool(retriever.AnchorCandidates(anchors), pool)
		rm.AnchorsInjected = len(anchors)
		rm.PoolSize = len(pool)
		metrics.AddAnchors(len(anchors))
		return len(pool), nil
	}); err != nil {
		return nil, err
	}

	if len(pool) >= o.Pipeline.PreselectThreshold && o.Pipeline.PreselectThreshold > 0 {
		if err = stage(ctx, StagePreselect, func(context.Context) (int, error) {
			mustKeep := make(map[string]struct{}, len(anchors))
			for _, a := range anchors {
				mustKeep[a.ID] = struct{}{}
			}
			pool = o.BM25.Preselect(q, pool, mustKeep, o.Pipeline.PreselectTopK)
			rm.PreselectTriggered = true
			rm.PreselectKept = len(pool)
			metrics.IncPreselect()
			return len(pool), nil
		}); err != nil {
			return nil, err
		}
	}

	if err = stage(ctx, StageRerank, func(ctx context.Context) (int, error) {
		if len(pool) == 0 {
			reranked = []schema.Candidate{}
			return 0, nil
		}
		t0 := time.Now()
		var err error
		reranked, err = o.Reranker.Rerank(ctx, q, pool, o.Pipeline.Rerank.TopN)
		rm.RerankLatencyMs = time.Since(t0).Milliseconds()
		rm.RerankResultCount = len(reranked)
		return len(reranked), err
	}); err != nil {
		return nil, err
	}

	// Anchors are applied a second time so that a reranker demoting or
	// dropping them cannot remove them from the evidence.
	if err = stage(ctx, StageFinalize, func(context.Context) (int, error) {
		final = post.Finalize(reranked, anchors, o.Pipeline.FinalK)
		return len(final), nil
	}); err != nil {
		return nil, err
	}

	if err = stage(ctx, StageDiagnose, func(context.Context) (int, error) {
		diag = diagnostics.Evaluate(clause, final)
		return -1, nil
	}); err != nil {
		return nil, err
	}

	if err = stage(ctx, StageAssemble, func(ctx context.Context) (int, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		evidence := make([]schema.Evidence, len(final))
		for i, c := range final {
			evidence[i] = schema.NewEvidence(c)
		}
		pack = &schema.EvidencePack{
			ClauseID:     clause.ClauseID,
			RequestID:    requestID,
			Jurisdiction: clause.Jurisdiction,
			Query:        q,
			Indexes:      names,
			Evidence:     evidence,
			Diagnostics:  diag,
			Resolution:   diagnostics.Resolve(final, diag),
		}
		return len(evidence), nil
	}); err != nil {
		return nil, err
	}

	rm.EvidenceCount = len(pack.Evidence)
	rm.Resolution = string(pack.Resolution)
	rm.Groundedness = diag.Groundedness
	metrics.ObserveOutcome(string(pack.Resolution), diag.Groundedness)
	span.SetAttributes(
		attribute.String("grounding.resolution", string(pack.Resolution)),
		attribute.Float64("grounding.groundedness", diag.Groundedness),
	)
	o.record(context.WithoutCancel(ctx), audit.EvidenceEvent(pack))
	return pack, nil
}

// record writes an audit event. Audit failures are logged and never fail
// a retrieval.
func (o *Orchestrator) record(ctx context.Context, e audit.Event) {
	if o.Audit == nil {
		return
	}
	if err := o.Audit.Record(ctx, e); err != nil {
		logger.Warnf("audit: record %s failed: %v", e.Type, err)
	}
}

// stage runs fn inside a span, records its latency and output size
// (n < 0 means not applicable) and wraps its error with the stage name.
func stage(ctx context.Context, name string, fn func(context.Context) (int, error)) error {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: name, Err: err}
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "grounding."+name)
	start := time.Now()
	n, err := fn(ctx)
	metrics.ObserveStage(name, start, n)
	if n >= 0 {
		span.SetAttributes(attribute.Int("grounding.count", n))
	}
	markSpan(span, err)
	span.End()
	if err != nil {
		return &StageError{Stage: name, Err: err}
	}
	return nil
}

func markSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
