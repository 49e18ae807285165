package api

import (
	"net/http"
	"os/exec"
)

const (
	healthOK       = "ok"
	healthDegraded = "degraded"
)

type toolHealth struct {
	Backend string `json:"backend"`
	Binary  string `json:"binary"`
	Found   bool   `json:"found"`
}

type healthResponse struct {
	Status     string       `json:"status"`
	ActiveRuns int          `json:"active_runs"`
	Tools      []toolHealth `json:"tools"`
}

// handleHealthz reports degraded with 503 when any registered tool binary
// cannot be resolved, since no run could produce a verdict.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     healthOK,
		ActiveRuns: s.runner.Active(),
		Tools:      []toolHealth{},
	}
	for _, info := range s.registry.List() {
		th := toolHealth{Backend: info.Name, Binary: info.Capabilities.Binary}
		if _, err := exec.LookPath(th.Binary); err == nil {
			th.Found = true
		} else {
			resp.Status = healthDegraded
		}
		resp.Tools = append(resp.Tools, th)
	}

	status := http.StatusOK
	if resp.Status != healthOK {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}
