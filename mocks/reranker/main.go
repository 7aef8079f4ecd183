// Command reranker is a local stand-in for a relevance model service. It
// scores documents with BM25 and answers in the results[index,
// relevance_score] shape.
package main

import (
	"encoding/json"
	"net/http"
	"os"
	"sort"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/retriever"
)

type rerankReq struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model"`
	TopN      int      `json:"top_n"`
}

type result struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResp struct {
	Model   string   `json:"model,omitempty"`
	Results []result `json:"results"`
}

func newHandler() http.Handler {
	scorer := retriever.NewBM25(config.DefaultPipeline().BM25)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /rerank", func(w http.ResponseWriter, r *http.Request) {
		var req rerankReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		scores := scorer.Scores(req.Query, req.Documents)
		out := rerankResp{Model: req.Model, Results: make([]result, len(scores))}
		for i, s := range scores {
			out.Results[i] = result{Index: i, RelevanceScore: s}
		}
		sort.SliceStable(out.Results, func(i, j int) bool {
			return out.Results[i].RelevanceScore > out.Results[j].RelevanceScore
		})
		if req.TopN > 0 && len(out.Results) > req.TopN {
			out.Results = out.Results[:req.TopN]
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})
	return mux
}

func main() {
	addr := ":8082"
	if v := os.Getenv("RERANK_ADDR"); v != "" {
		addr = v
	}
	logger.Infof("Reranker mock listening on %s", addr)
	if err := http.ListenAndServe(addr, newHandler()); err != nil {
		logger.Errorf("reranker mock stopped: %v", err)
		logger.Sync()
		os.Exit(1)
	}
}
