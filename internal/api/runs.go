package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/aigrace/internal/model"
	"github.com/seantiz/aigrace/internal/pipeline"
	"github.com/seantiz/aigrace/internal/runner"
	"github.com/seantiz/aigrace/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB
)

// createRunRequest is the JSON body for POST /v1/runs.
type createRunRequest struct {
	Dataset string   `json:"dataset"`
	Engines []string `json:"engines"`
	// TimeoutS is the per-engine budget in seconds; fractions are allowed.
	TimeoutS *float64 `json:"timeout_s"`
	// Stages replaces the default transforms when present.
	Stages []pipeline.Stage `json:"stages"`
	// NoTransform races the dataset as given.
	NoTransform bool `json:"no_transform"`
}

// listRunsResponse wraps the paginated list response.
type listRunsResponse struct {
	Runs   []*model.Run `json:"runs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

type resultsResponse struct {
	RunID   string               `json:"run_id"`
	Results []model.ResultRecord `json:"results"`
}

// toRequest validates body and applies the server defaults.
func (s *Server) toRequest(body createRunRequest) (runner.Request, string) {
	if body.Dataset == "" {
		return runner.Request{}, "dataset is required"
	}
	if _, err := os.Stat(body.Dataset); err != nil {
		return runner.Request{}, "dataset is not readable: " + body.Dataset
	}

	req := runner.Request{
		Dataset: body.Dataset,
		Engines: s.defaults.Engines,
		Timeout: s.defaults.Timeout,
		Stages:  s.defaults.Stages,
	}

	if len(body.Engines) > 0 {
		engines, err := model.ParseEngines(body.Engines)
		if err != nil {
			return runner.Request{}, err.Error()
		}
		req.Engines = engines
	}
	if len(req.Engines) == 0 {
		return runner.Request{}, "at least one engine is required"
	}

	if body.TimeoutS != nil {
		if *body.TimeoutS <= 0 {
			return runner.Request{}, "timeout_s must be positive"
		}
		req.Timeout = time.Duration(*body.TimeoutS * float64(time.Second))
	}

	switch {
	case body.NoTransform:
		req.Stages = nil
	case body.Stages != nil:
		for _, st := range body.Stages {
			if err := st.Validate(); err != nil {
				return runner.Request{}, err.Error()
			}
		}
		req.Stages = body.Stages
	}
	return req, ""
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var body createRunRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		runSubmissionsTotal.WithLabelValues(submitInvalid).Inc()
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req, problem := s.toRequest(body)
	if problem != "" {
		runSubmissionsTotal.WithLabelValues(submitInvalid).Inc()
		s.writeError(w, http.StatusBadRequest, problem)
		return
	}

	run, err := s.runner.Submit(r.Context(), req)
	if errors.Is(err, runner.ErrClosed) {
		runSubmissionsTotal.WithLabelValues(submitUnavailable).Inc()
		s.writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	if err != nil {
		runSubmissionsTotal.WithLabelValues(submitError).Inc()
		s.logger.Error("submit run", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit run")
		return
	}

	runSubmissionsTotal.WithLabelValues(submitAccepted).Inc()
	s.writeJSON(w, http.StatusAccepted, run)
}

// lookupRun writes a 404 or 500 and returns nil when the run cannot be loaded.
func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request, id string) *model.Run {
	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return nil
	}
	if err != nil {
		s.logger.Error("get run", "run_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return nil
	}
	return run
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if run := s.lookupRun(w, r, chi.URLParam(r, "id")); run != nil {
		s.writeJSON(w, http.StatusOK, run)
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	runs, total, err := s.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	if runs == nil {
		runs = []*model.Run{}
	}

	s.writeJSON(w, http.StatusOK, listRunsResponse{
		Runs:   runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.lookupRun(w, r, id) == nil {
		return
	}

	results, err := s.store.GetEngineResults(r.Context(), id)
	if err != nil {
		s.logger.Error("get engine results", "run_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get results")
		return
	}
	if results == nil {
		results = []model.ResultRecord{}
	}

	s.writeJSON(w, http.StatusOK, resultsResponse{RunID: id, Results: results})
}

// handleCancelRun stops an active run. The response carries the run as it is
// at cancellation time; poll GET /v1/runs/{id} for the terminal state.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run := s.lookupRun(w, r, id)
	if run == nil {
		return
	}

	if err := s.runner.Cancel(id); err != nil {
		if errors.Is(err, runner.ErrNotActive) {
			s.writeError(w, http.StatusConflict, "run is not active")
			return
		}
		s.logger.Error("cancel run", "run_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to cancel run")
		return
	}

	s.logger.Info("run cancel requested", "run_id", id)
	s.writeJSON(w, http.StatusAccepted, run)
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
