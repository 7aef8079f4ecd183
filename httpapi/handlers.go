package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	grounding "github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/orchestrator"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/post"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/router"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/vectordb"
)

// MaxBatchSize bounds the clauses accepted by one batch request.
const MaxBatchSize = 256

// statusClientClosedRequest is reported when the caller went away.
const statusClientClosedRequest = 499

type BatchRequest struct {
	Clauses []grounding.RetrieveRequest `json:"clauses"`
}

type BatchItem struct {
	ClauseID string               `json:"clause_id"`
	Pack     *schema.EvidencePack `json:"pack,omitempty"`
	Error    string               `json:"error,omitempty"`
	Stage    string               `json:"stage,omitempty"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: grounding.Version,
		Uptime:  time.Since(s.startTime).Truncate(time.Second).String(),
	})
}

// handleRetrieve handles POST /v1/evidence
func (s *Server) handleRetrieve(c *gin.Context) {
	var req grounding.RetrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_BODY", err)
		return
	}
	pack, err := s.client.Retrieve(c.Request.Context(), req)
	if err != nil {
		writeRetrieveError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "pack": pack})
}

// handleRetrieveBatch handles POST /v1/evidence/batch. Per-clause failures
// are reported inline; the request itself still succeeds.
func (s *Server) handleRetrieveBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_BODY", err)
		return
	}
	if len(req.Clauses) == 0 {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", errors.New("clauses must not be empty"))
		return
	}
	if len(req.Clauses) > MaxBatchSize {
		writeError(c, http.StatusBadRequest, "BATCH_TOO_LARGE",
			fmt.Errorf("batch has %d clauses, limit is %d", len(req.Clauses), MaxBatchSize))
		return
	}

	results, err := s.client.RetrieveBatch(c.Request.Context(), req.Clauses)
	if err != nil {
		logger.Warnf("batch of %d clauses finished with failures: %v", len(req.Clauses), err)
	}
	items := make([]BatchItem, len(results))
	failed := 0
	for i, r := range results {
		items[i] = BatchItem{ClauseID: r.ClauseID, Pack: r.Pack}
		if r.Err != nil {
			failed++
			items[i].Error = r.Err.Error()
			items[i].Stage = orchestrator.StageOf(r.Err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": failed == 0, "failed": failed, "results": items})
}

// handleListJurisdictions handles GET /v1/jurisdictions
func (s *Server) handleListJurisdictions(c *gin.Context) {
	infos, err := s.client.ListIndexes(c.Request.Context(), "")
	if err != nil {
		writeRetrieveError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "jurisdictions": infos})
}

// handleGetJurisdiction handles GET /v1/jurisdictions/:jurisdiction
func (s *Server) handleGetJurisdiction(c *gin.Context) {
	infos, err := s.client.ListIndexes(c.Request.Context(), c.Param("jurisdiction"))
	if err != nil {
		writeRetrieveError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "jurisdiction": infos[0]})
}

// handleInvalidate handles POST /v1/jurisdictions/:jurisdiction/invalidate
func (s *Server) handleInvalidate(c *gin.Context) {
	j := c.Param("jurisdiction")
	s.client.Invalidate(j)
	c.JSON(http.StatusOK, gin.H{"success": true, "invalidated": j})
}

// handleNormalize handles GET /v1/references/normalize?ref=...&kind=...
func (s *Server) handleNormalize(c *gin.Context) {
	ref := c.Query("ref")
	if ref == "" {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", errors.New("ref is required"))
		return
	}
	out, err := grounding.Normalize(c.Query("kind"), ref)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "reference": out})
}

func writeRetrieveError(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	writeError(c, status, code, err)
}

// classify maps pipeline errors onto HTTP statuses and stable error codes.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, grounding.ErrInvalidRequest):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, router.ErrIndexNotAvailable):
		return http.StatusBadRequest, "INDEX_NOT_AVAILABLE"
	case errors.Is(err, vectordb.ErrUnknownJurisdiction):
		return http.StatusNotFound, "UNKNOWN_JURISDICTION"
	case errors.Is(err, post.ErrRerank):
		return http.StatusBadGateway, "RERANK_FAILED"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, "CANCELLED"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func writeError(c *gin.Context, status int, code string, err error) {
	body := gin.H{"code": code, "message": err.Error()}
	if stage := orchestrator.StageOf(err); stage != "" {
		body["stage"] = stage
	}
	c.JSON(status, gin.H{"success": false, "error": body})
}
