package post

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/common/httpx"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
)

const (
	PROVIDER_TYPE_MODEL   = "model"
	PROVIDER_TYPE_KEYWORD = "keyword"
)

// ErrRerank marks failures of the external relevance model.
var ErrRerank = errors.New("rerank failed")

// Reranker reorders candidates by relevance to the query, most relevant
// first, keeping at most topN (all when topN <= 0).
type Reranker interface {
	Rerank(ctx context.Context, query string, in []schema.Candidate, topN int) ([]schema.Candidate, error)
}

// NewReranker creates a reranker from configuration.
func NewReranker(cfg config.RerankConfig, httpCfg *config.HTTPClientConfig) (Reranker, error) {
	switch cfg.Provider {
	case "", PROVIDER_TYPE_KEYWORD:
		return &KeywordReranker{}, nil
	case PROVIDER_TYPE_MODEL:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("rerank provider %s requires an endpoint", cfg.Provider)
		}
		return &ModelReranker{
			Endpoint: cfg.Endpoint,
			Model:    cfg.Model,
			APIKey:   cfg.APIKey,
			Client:   httpx.NewFromConfig(httpCfg),
		}, nil
	default:
		return nil, fmt.Errorf("unknown rerank provider: %s", cfg.Provider)
	}
}

// ================================================================================
// Keyword-based Reranker
// ================================================================================

// KeywordReranker performs reranking based on keyword matching and positioning.
// It needs no external service and is deterministic.
type KeywordReranker struct {
	MinKeywordLength int     // Minimum length for a word to be considered a keyword (default: 3)
	BaseScoreWeight  float64 // Weight for original similarity score (default: 0.5)
}

func (k *KeywordReranker) Rerank(ctx context.Context, query string, in []schema.Candidate, topN int) ([]schema.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	minLen := k.MinKeywordLength
	if minLen == 0 {
		minLen = 3
	}
	baseWeight := k.BaseScoreWeight
	if baseWeight == 0 {
		baseWeight = 0.5
	}

	// Extract keywords from query (words longer than minLen)
	var keywords []string
	for _, word := range strings.Fields(query) {
		word = strings.ToLower(strings.Trim(word, ".,;:()[]\"'"))
		if len(word) > minLen {
			keywords = append(keywords, word)
		}
	}
	logger.Debugf("KeywordReranker: reranking %d documents with keywords %v", len(in), keywords)

	scored := make([]schema.Candidate, 0, len(in))
	for _, c := range in {
		text := strings.ToLower(c.Document.Content)
		keywordScore := 0.0
		for _, kw := range keywords {
			first := strings.Index(text, kw)
			if first < 0 {
				continue
			}
			keywordScore += 0.1
			// Position bonus: keyword appears in the first quarter
			if first < len(text)/4 {
				keywordScore += 0.1
			}
			keywordScore += min(0.05*float64(strings.Count(text, kw)), 0.2)
		}
		c.Score = c.Score*baseWeight + keywordScore
		scored = append(scored, c)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if topN > 0 && len(scored) > topN {
		scored = scored[:topN]
	}
	return scored, nil
}

// ================================================================================
// Model-based Reranker (Cross-encoder)
// ================================================================================

// ModelReranker uses a dedicated reranking model (e.g., BGE-reranker, Cohere rerank).
//
// Request body:
//
//	{"query":"...","documents":["..."],"model":"...","top_n":10}
//
// Accepted response bodies:
//
//	{"results":[{"index":0,"relevance_score":0.9}]}
//	{"data":[{"index":0,"relevance_score":0.9}]}
//	{"output":{"results":[{"index":0,"relevance_score":0.9}]}}
//	{"ranking":[{"id":"...","score":0.9}]}
//
// Any transport, status or decoding failure is returned wrapped in ErrRerank.
type ModelReranker struct {
	Endpoint string
	Model    string // e.g., "bge-reranker-large", "rerank-multilingual-v2.0"
	APIKey   string
	Client   *httpx.Client
}

var defaultClient = sync.OnceValue(func() *httpx.Client { return httpx.NewFromConfig(nil) })

type modelRerankReq struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
	TopN      int      `json:"top_n,omitempty"`
}

func (m *ModelReranker) Rerank(ctx context.Context, query string, in []schema.Candidate, topN int) ([]schema.Candidate, error) {
	if len(in) == 0 {
		return []schema.Candidate{}, nil
	}
	if m.Endpoint == "" {
		return nil, fmt.Errorf("%w: no endpoint configured", ErrRerank)
	}

	documents := make([]string, len(in))
	for i, c := range in {
		documents[i] = c.Document.Content
	}
	bs, err := json.Marshal(modelRerankReq{Query: query, Documents: documents, Model: m.Model, TopN: topN})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRerank, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint, bytes.NewReader(bs))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRerank, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.APIKey)
	}
	client := m.Client
	if client == nil {
		client = defaultClient()
	}

	logger.Debugf("ModelReranker: reranking %d documents using model %s", len(in), m.Model)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRerank, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrRerank, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: server returned status %d", ErrRerank, resp.StatusCode)
	}

	out, err := parseRanking(body, in)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}

func parseRanking(body []byte, in []schema.Candidate) ([]schema.Candidate, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid JSON response", ErrRerank)
	}
	doc := gjson.ParseBytes(body)

	var out []schema.Candidate
	seen := make(map[int]bool, len(in))
	add := func(i int, score float64) {
		if i < 0 || i >= len(in) || seen[i] {
			return
		}
		seen[i] = true
		c := in[i]
		c.Score = score
		out = append(out, c)
	}

	for _, path := range []string{"results", "data", "output.results"} {
		items := doc.Get(path)
		if !items.IsArray() {
			continue
		}
		for _, item := range items.Array() {
			idx := item.Get("index")
			if !idx.Exists() {
				continue
			}
			score := item.Get("relevance_score")
			if !score.Exists() {
				score = item.Get("score")
			}
			add(int(idx.Int()), score.Float())
		}
		return nonEmpty(out)
	}

	if ranking := doc.Get("ranking"); ranking.IsArray() {
		pos := make(map[string]int, len(in))
		for i, c := range in {
			if _, dup := pos[c.Document.ID]; !dup {
				pos[c.Document.ID] = i
			}
		}
		for _, item := range ranking.Array() {
			if i, ok := pos[item.Get("id").String()]; ok {
				add(i, item.Get("score").Float())
			}
		}
		return nonEmpty(out)
	}
	return nil, fmt.Errorf("%w: unrecognized response shape", ErrRerank)
}

func nonEmpty(out []schema.Candidate) ([]schema.Candidate, error) {
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty ranking", ErrRerank)
	}
	return out, nil
}
