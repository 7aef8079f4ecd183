package metrics

import (
	"encoding/json"
	"time"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/common/logger"
)

// RetrievalMetrics records one clause retrieval end to end.
type RetrievalMetrics struct {
	RequestID    string    `json:"request_id"`
	ClauseID     string    `json:"clause_id"`
	Jurisdiction string    `json:"jurisdiction"`
	Intent       string    `json:"intent,omitempty"`
	Query        string    `json:"query"`
	Timestamp    time.Time `json:"timestamp"`

	Indexes        []string              `json:"indexes"`
	IndexStats     map[string]IndexStats `json:"index_stats"`
	TotalRetrieved int                   `json:"total_retrieved"`

	FusionMethod       string `json:"fusion_method"`
	PoolSize           int    `json:"pool_size"`
	DeduplicationCount int    `json:"deduplication_count,omitempty"`
	AnchorsInjected    int    `json:"anchors_injected"`

	PreselectTriggered bool `json:"preselect_triggered"`
	PreselectKept      int  `json:"preselect_kept,omitempty"`

	RerankProvider    string `json:"rerank_provider"`
	RerankLatencyMs   int64  `json:"rerank_latency_ms,omitempty"`
	RerankResultCount int    `json:"rerank_result_count,omitempty"`

	EvidenceCount int     `json:"evidence_count"`
	Resolution    string  `json:"resolution,omitempty"`
	Groundedness  float64 `json:"groundedness"`

	TotalLatencyMs int64  `json:"total_latency_ms"`
	Success        bool   `json:"success"`
	FailedStage    string `json:"failed_stage,omitempty"`
	ErrorMsg       string `json:"error_msg,omitempty"`
}

// IndexStats describes the similarity hits taken from one index.
type IndexStats struct {
	Index       string  `json:"index"`
	LatencyMs   int64   `json:"latency_ms"`
	ResultCount int     `json:"result_count"`
	TopScore    float64 `json:"top_score"`
}

func NewRetrievalMetrics(requestID, clauseID string) *RetrievalMetrics {
	return &RetrievalMetrics{
		RequestID:  requestID,
		ClauseID:   clauseID,
		Timestamp:  time.Now().UTC(),
		IndexStats: make(map[string]IndexStats),
	}
}

// AddIndexStats records the hits of one index.
func (m *RetrievalMetrics) AddIndexStats(s IndexStats) {
	if m.IndexStats == nil {
		m.IndexStats = make(map[string]IndexStats)
	}
	m.IndexStats[s.Index] = s
	m.TotalRetrieved += s.ResultCount
}

// Fail marks the retrieval as aborted at stage.
func (m *RetrievalMetrics) Fail(stage string, err error) {
	m.Success = false
	m.FailedStage = stage
	if err != nil {
		m.ErrorMsg = err.Error()
	}
}

// Log writes the record as a single JSON line.
func (m *RetrievalMetrics) Log() {
	if data, err := json.Marshal(m); err == nil {
		logger.Infof("[GROUNDING_METRICS] %s", string(data))
	}
}
