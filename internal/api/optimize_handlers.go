package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/p-arndt/querybench/internal/benchmark"
)

type optimizeBody struct {
	Query string `json:"query"`
}

type optimizeRequest struct {
	DBID     string
	Model    string
	Query    string
	UseCache bool
}

// parseOptimizeRequest reads db_id, model_name and use_cache from the query
// string and the SQL from the JSON body. use_cache defaults to true.
func parseOptimizeRequest(w http.ResponseWriter, r *http.Request) (optimizeRequest, error) {
	q := r.URL.Query()
	req := optimizeRequest{
		DBID:     q.Get("db_id"),
		Model:    q.Get("model_name"),
		UseCache: true,
	}
	if v := q.Get("use_cache"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return req, err
		}
		req.UseCache = b
	}

	var body optimizeBody
	if err := decodeJSONBody(w, r, &body); err != nil {
		return req, err
	}
	req.Query = body.Query
	return req, nil
}

// handleOptimize blocks for the whole benchmark. Benchmark failures are
// reported as 200 with an {"error": ...} body; only malformed requests get
// a 4xx.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	req, err := parseOptimizeRequest(w, r)
	if err != nil {
		var details map[string]interface{}
		var be *bodyError
		if errors.As(err, &be) {
			details = be.details
		}
		writeValidationError(w, "invalid request: "+err.Error(), details)
		return
	}
	if err := validateOptimizeRequest(req); err != nil {
		writeValidationError(w, err.Error(), nil)
		return
	}
	if req.DBID == "" && s.cfg.DefaultDBID == "" {
		writeValidationError(w, "db_id is required", map[string]interface{}{"hint": "set default_db_id to make it optional"})
		return
	}

	s.logger.Info("optimize", "request_id", requestID(r), "db_id", req.DBID, "model", req.Model, "use_cache", req.UseCache)

	out := s.optimizer.Orchestrate(r.Context(), benchmark.Request{
		DBID:     req.DBID,
		Query:    req.Query,
		Model:    req.Model,
		UseCache: req.UseCache,
	})
	if out.Error != nil {
		writeJSON(w, http.StatusOK, out.Error)
		return
	}
	writeJSON(w, http.StatusOK, out.Result)
}
