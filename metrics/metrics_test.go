package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreRegisteredOnce(t *testing.T) {
	before := testutil.ToFloat64(preselections)
	IncPreselect()
	IncPreselect()
	assert.Equal(t, before+2, testutil.ToFloat64(preselections))

	AddAnchors(3)
	IncFailure("rerank")
	ObserveStage("retrieve", time.Now(), 5)
	ObserveOutcome("EXPLICIT_ALIGNMENT", 0.85)
	assert.Equal(t, 1.0, testutil.ToFloat64(stageFailures.WithLabelValues("rerank")))

	reg := prometheus.NewRegistry()
	for _, c := range Collectors() {
		require.NoError(t, reg.Register(c))
	}
}

func TestRetrievalMetrics(t *testing.T) {
	m := NewRetrievalMetrics("req-1", "clause-1")
	m.AddIndexStats(IndexStats{Index: "rera_act", ResultCount: 5, TopScore: 0.9})
	m.AddIndexStats(IndexStats{Index: "model_bba", ResultCount: 3})
	assert.Equal(t, 8, m.TotalRetrieved)

	m.Fail("embed", errors.New("boom"))
	assert.False(t, m.Success)
	assert.Equal(t, "embed", m.FailedStage)
	assert.Equal(t, "boom", m.ErrorMsg)
	m.Log()
}
