package grounding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/audit"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/cache"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/embedding"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/orchestrator"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/post"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/query"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/statute"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/vectordb"
)

// Reference kinds accepted by Normalize.
const (
	RefKindSection = "section"
	RefKindRule    = "rule"
	RefKindAct     = "act"
)

// ErrInvalidRequest marks malformed caller input.
var ErrInvalidRequest = errors.New("invalid request")

// Client owns every long-lived component of the grounding engine.
type Client struct {
	config   *config.Config
	cache    cache.Cache
	embedder embedding.Provider
	loader   vectordb.Loader
	registry *vectordb.Registry
	audit    audit.Sink
	orch     *orchestrator.Orchestrator

	watcher    *vectordb.Watcher
	stopWatch  context.CancelFunc
	closeFuncs []func() error
}

// NewClient validates cfg and wires the pipeline. Configuration errors are
// fatal here so that no retrieval ever runs against a broken setup.
func NewClient(ctx context.Context, cfg *config.Config) (c *Client, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c = &Client{config: cfg}
	defer func() {
		if err != nil {
			_ = c.Close()
			c = nil
		}
	}()

	c.cache, err = cache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("create cache failed, err: %w", err)
	}
	if closer, ok := c.cache.(io.Closer); ok {
		c.closeFuncs = append(c.closeFuncs, closer.Close)
	}

	c.embedder, err = embedding.NewEmbeddingProvider(ctx, cfg.Embedding, c.cache)
	if err != nil {
		return nil, fmt.Errorf("create embedding provider failed, err: %w", err)
	}
	if closer, ok := c.embedder.(io.Closer); ok {
		c.closeFuncs = append(c.closeFuncs, closer.Close)
	}

	c.loader, err = vectordb.NewLoader(ctx, cfg.VectorDB, c.embedder.GetEmbedding)
	if err != nil {
		return nil, fmt.Errorf("create index loader failed, err: %w", err)
	}
	loader := c.loader
	c.closeFuncs = append(c.closeFuncs, func() error { return vectordb.Close(loader) })
	c.registry = vectordb.NewRegistry(c.loader)

	rr, err := post.NewReranker(cfg.Pipeline.Rerank, cfg.Pipeline.HTTP)
	if err != nil {
		return nil, fmt.Errorf("create reranker failed, err: %w", err)
	}

	c.audit, err = audit.New(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("create audit sink failed, err: %w", err)
	}
	sink := c.audit
	c.closeFuncs = append(c.closeFuncs, sink.Close)

	c.orch, err = orchestrator.New(cfg, c.registry, c.embedder, rr, c.audit)
	if err != nil {
		return nil, fmt.Errorf("create orchestrator failed, err: %w", err)
	}

	if watchSnapshots(cfg.VectorDB) {
		c.watcher, err = vectordb.NewWatcher(cfg.VectorDB.Snapshot.Dir, c.registry)
		if err != nil {
			return nil, fmt.Errorf("watch snapshots failed, err: %w", err)
		}
		var watchCtx context.Context
		watchCtx, c.stopWatch = context.WithCancel(context.Background())
		go c.watcher.Run(watchCtx)
		logger.Infof("watching index snapshots under %s", cfg.VectorDB.Snapshot.Dir)
	}
	return c, nil
}

func watchSnapshots(cfg config.VectorDBConfig) bool {
	return strings.EqualFold(cfg.Provider, vectordb.PROVIDER_TYPE_MEMORY) &&
		cfg.Snapshot.Watch &&
		(cfg.Snapshot.Source == "" || cfg.Snapshot.Source == "file")
}

func (c *Client) Config() *config.Config { return c.config }

// RetrieveRequest is the wire form of one clause shared by every surface.
type RetrieveRequest struct {
	ClauseID        string   `json:"clause_id"`
	Intent          string   `json:"intent,omitempty"`
	Act             string   `json:"act,omitempty"`
	Sections        []string `json:"sections,omitempty"`
	Rules           []string `json:"state_rules,omitempty"`
	Text            string   `json:"clause_text,omitempty"`
	ChunkConfidence *float64 `json:"chunk_confidence,omitempty"`
	Jurisdiction    string   `json:"jurisdiction"`
	IndexHint       string   `json:"index_hint,omitempty"`
}

// Context canonicalizes the request into a query context.
func (r RetrieveRequest) Context() schema.ClauseQueryContext {
	return query.NewContext(query.Options{
		ClauseID:        r.ClauseID,
		Intent:          r.Intent,
		Act:             r.Act,
		Sections:        r.Sections,
		Rules:           r.Rules,
		Text:            r.Text,
		ChunkConfidence: r.ChunkConfidence,
		Jurisdiction:    r.Jurisdiction,
		IndexHint:       r.IndexHint,
	})
}

func (r RetrieveRequest) validate() error {
	if strings.TrimSpace(r.ClauseID) == "" {
		return fmt.Errorf("%w: clause_id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Jurisdiction) == "" {
		return fmt.Errorf("%w: jurisdiction is required", ErrInvalidRequest)
	}
	if r.ChunkConfidence != nil && (*r.ChunkConfidence < 0 || *r.ChunkConfidence > 1) {
		return fmt.Errorf("%w: chunk_confidence must be in [0, 1]", ErrInvalidRequest)
	}
	return nil
}

// Retrieve runs the grounding pipeline for one clause.
func (c *Client) Retrieve(ctx context.Context, req RetrieveRequest) (*schema.EvidencePack, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	return c.orch.Run(ctx, req.Context())
}

// RetrieveBatch runs every clause with bounded parallelism. Invalid
// requests fail individually without reaching the pipeline.
func (c *Client) RetrieveBatch(ctx context.Context, reqs []RetrieveRequest) ([]orchestrator.BatchResult, error) {
	results := make([]orchestrator.BatchResult, len(reqs))
	var (
		valid    []schema.ClauseQueryContext
		position []int
		result   *multierror.Error
	)
	for i, r := range reqs {
		if err := r.validate(); err != nil {
			results[i] = orchestrator.BatchResult{ClauseID: r.ClauseID, Err: err}
			result = multierror.Append(result, fmt.Errorf("clause %d (%s): %w", i, r.ClauseID, err))
			continue
		}
		valid = append(valid, r.Context())
		position = append(position, i)
	}
	ran, err := c.orch.RunBatch(ctx, valid)
	for j, r := range ran {
		results[position[j]] = r
	}
	if err != nil {
		result = multierror.Append(result, err)
	}
	return results, result.ErrorOrNil()
}

// Reference is the outcome of normalizing one citation.
type Reference struct {
	Input     string `json:"input"`
	Kind      string `json:"kind"`
	Canonical string `json:"canonical,omitempty"`
	Base      int    `json:"base,omitempty"`
	Valid     bool   `json:"valid"`
}

// Normalize canonicalizes a section, rule or act citation. An empty kind
// tries section first, then rule. Malformed citations are reported with
// Valid false, not as an error.
func Normalize(kind, ref string) (Reference, error) {
	out := Reference{Input: ref, Kind: strings.ToLower(strings.TrimSpace(kind))}
	switch out.Kind {
	case RefKindAct:
		out.Canonical, out.Valid = statute.NormalizeAct(ref), true
		return out, nil
	case RefKindSection:
		out.Canonical, out.Valid = statute.NormalizeSection(ref)
	case RefKindRule:
		out.Canonical, out.Valid = statute.NormalizeRule(ref)
	case "":
		if out.Canonical, out.Valid = statute.NormalizeSection(ref); out.Valid {
			out.Kind = RefKindSection
		} else if out.Canonical, out.Valid = statute.NormalizeRule(ref); out.Valid {
			out.Kind = RefKindRule
		}
	default:
		return out, fmt.Errorf("%w: unknown reference kind %q", ErrInvalidRequest, kind)
	}
	switch {
	case !out.Valid:
	case out.Kind == RefKindSection:
		out.Base, _ = statute.SectionBase(out.Canonical)
	case out.Kind == RefKindRule:
		out.Base, _ = statute.RuleBase(out.Canonical)
	}
	return out, nil
}

type IndexInfo struct {
	Name         string              `json:"name"`
	DocumentType schema.DocumentType `json:"document_type"`
	Documents    int                 `json:"documents"`
}

type JurisdictionInfo struct {
	Jurisdiction string      `json:"jurisdiction"`
	Loaded       bool        `json:"loaded"`
	Indexes      []IndexInfo `json:"indexes,omitempty"`
}

// ListIndexes describes the served jurisdictions. Naming a jurisdiction
// loads its indexes; otherwise only already loaded ones list indexes.
func (c *Client) ListIndexes(ctx context.Context, jurisdiction string) ([]JurisdictionInfo, error) {
	if jurisdiction = strings.TrimSpace(jurisdiction); jurisdiction != "" {
		if err := c.registry.Validate(ctx, jurisdiction); err != nil {
			return nil, err
		}
		info, err := c.describe(ctx, jurisdiction)
		if err != nil {
			return nil, err
		}
		return []JurisdictionInfo{info}, nil
	}

	names, err := c.registry.Jurisdictions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]JurisdictionInfo, 0, len(names))
	for _, j := range names {
		if !c.registry.Cached(j) {
			out = append(out, JurisdictionInfo{Jurisdiction: j})
			continue
		}
		info, err := c.describe(ctx, j)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

func (c *Client) describe(ctx context.Context, jurisdiction string) (JurisdictionInfo, error) {
	set, err := c.registry.Get(ctx, jurisdiction)
	if err != nil {
		return JurisdictionInfo{}, err
	}
	info := JurisdictionInfo{Jurisdiction: jurisdiction, Loaded: true}
	for _, name := range set.Names() {
		idx, _ := set.Get(name)
		info.Indexes = append(info.Indexes, IndexInfo{
			Name:         name,
			DocumentType: schema.InferDocumentType(name),
			Documents:    idx.Count(),
		})
	}
	return info, nil
}

// Invalidate drops the cached indexes of a jurisdiction, or of every
// jurisdiction when it is empty or "*". The next retrieval reloads them.
func (c *Client) Invalidate(jurisdiction string) {
	switch j := strings.TrimSpace(jurisdiction); j {
	case "", "*":
		c.registry.InvalidateAll()
	default:
		c.registry.Invalidate(j)
	}
}

// Close releases every backend connection. It is safe to call on a
// partially constructed client.
func (c *Client) Close() error {
	var result *multierror.Error
	if c.stopWatch != nil {
		c.stopWatch()
	}
	if c.watcher != nil {
		if err := c.watcher.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for i := len(c.closeFuncs) - 1; i >= 0; i-- {
		if err := c.closeFuncs[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	c.closeFuncs = nil
	return result.ErrorOrNil()
}
