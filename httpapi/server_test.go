package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	grounding "github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/fixtures"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
)

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *httptest.Server {
	t.Helper()
	cfg := fixtures.WriteSnapshots(t)
	for _, m := range mutate {
		m(cfg)
	}
	client, err := grounding.NewClient(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	srv := httptest.NewServer(NewServer(client, cfg.Server).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp, decode(t, resp)
}

func get(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	return resp, decode(t, resp)
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

var clause = map[string]any{
	"clause_id":    "4.2",
	"jurisdiction": fixtures.Jurisdiction,
	"intent":       "possession_delay",
	"sections":     []string{"Section 18"},
	"state_rules":  []string{"Rule 18"},
	"clause_text":  "The promoter shall pay compensation for delay in possession.",
}

func TestRetrieveEvidence(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/evidence", "application/json", strings.NewReader(mustJSON(t, clause)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Success bool                `json:"success"`
		Pack    schema.EvidencePack `json:"pack"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, "4.2", body.Pack.ClauseID)
	require.NotEmpty(t, body.Pack.Evidence)
	assert.Equal(t, "rera_act::section_18", body.Pack.Evidence[0].ID)
	assert.Equal(t, schema.ResolutionExplicit, body.Pack.Resolution)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestRetrieveEvidenceErrors(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"missing jurisdiction", map[string]any{"clause_id": "1"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown jurisdiction", map[string]any{"clause_id": "1", "jurisdiction": "goa"}, http.StatusNotFound, "UNKNOWN_JURISDICTION"},
		{"unknown index hint", map[string]any{"clause_id": "1", "jurisdiction": fixtures.Jurisdiction, "index_hint": "case_law"}, http.StatusBadRequest, "INDEX_NOT_AVAILABLE"},
		{"wrong field type", map[string]any{"clause_id": 7}, http.StatusBadRequest, "INVALID_BODY"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := postJSON(t, srv.URL+"/v1/evidence", tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tc.code, errorCode(body))
		})
	}
}

func TestRetrieveEvidenceRerankFailure(t *testing.T) {
	var calls atomic.Int32
	reranker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer reranker.Close()

	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Pipeline.Rerank = config.RerankConfig{Provider: "model", Endpoint: reranker.URL}
	})
	resp, body := postJSON(t, srv.URL+"/v1/evidence", clause)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "RERANK_FAILED", errorCode(body))
	assert.Equal(t, "rerank", body["error"].(map[string]any)["stage"])
	assert.Equal(t, int32(1), calls.Load(), "no retries")
}

func TestRetrieveEvidenceBatch(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/v1/evidence/batch", BatchRequest{Clauses: []grounding.RetrieveRequest{
		{ClauseID: "1", Jurisdiction: fixtures.Jurisdiction, Sections: []string{"18"}},
		{ClauseID: "2", Jurisdiction: "goa"},
		{ClauseID: "3", Jurisdiction: fixtures.Jurisdiction, Intent: "termination"},
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, float64(1), body["failed"])

	results := body["results"].([]any)
	require.Len(t, results, 3)
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.(map[string]any)["clause_id"].(string)
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids)
	assert.NotNil(t, results[0].(map[string]any)["pack"])
	assert.Contains(t, results[1].(map[string]any)["error"], "unknown jurisdiction")
	assert.Equal(t, "resolve_indexes", results[1].(map[string]any)["stage"])
	assert.NotNil(t, results[2].(map[string]any)["pack"])
}

func TestRetrieveEvidenceBatchLimits(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/v1/evidence/batch", BatchRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", errorCode(body))

	resp, body = postJSON(t, srv.URL+"/v1/evidence/batch", BatchRequest{Clauses: make([]grounding.RetrieveRequest, MaxBatchSize+1)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "BATCH_TOO_LARGE", errorCode(body))
}

func TestJurisdictionRoutes(t *testing.T) {
	srv := newTestServer(t)

	resp, body := get(t, srv.URL+"/v1/jurisdictions/"+fixtures.Jurisdiction)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	j := body["jurisdiction"].(map[string]any)
	assert.Equal(t, true, j["loaded"])
	assert.Len(t, j["indexes"], 3)

	resp, body = get(t, srv.URL+"/v1/jurisdictions")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := body["jurisdictions"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, true, list[0].(map[string]any)["loaded"])

	resp, body = postJSON(t, srv.URL+"/v1/jurisdictions/"+fixtures.Jurisdiction+"/invalidate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, fixtures.Jurisdiction, body["invalidated"])

	_, body = get(t, srv.URL+"/v1/jurisdictions")
	assert.Equal(t, false, body["jurisdictions"].([]any)[0].(map[string]any)["loaded"])

	resp, body = get(t, srv.URL+"/v1/jurisdictions/goa")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "UNKNOWN_JURISDICTION", errorCode(body))
}

func TestNormalizeRoute(t *testing.T) {
	srv := newTestServer(t)

	resp, body := get(t, srv.URL+"/v1/references/normalize?ref=section+18(1)(a)")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ref := body["reference"].(map[string]any)
	assert.Equal(t, "Section 18(1)(a)", ref["canonical"])
	assert.Equal(t, true, ref["valid"])

	resp, _ = get(t, srv.URL+"/v1/references/normalize")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	resp, body := get(t, srv.URL+"/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, grounding.Version, body["version"])

	_, _ = postJSON(t, srv.URL+"/v1/evidence", clause)

	mresp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	raw, err := io.ReadAll(mresp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "grounding_stage_latency_ms")
}

func TestClassify(t *testing.T) {
	status, code := classify(context.Canceled)
	assert.Equal(t, statusClientClosedRequest, status)
	assert.Equal(t, "CANCELLED", code)

	status, _ = classify(context.DeadlineExceeded)
	assert.Equal(t, http.StatusGatewayTimeout, status)

	status, code = classify(io.EOF)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "INTERNAL", code)
}
