package api

import (
	"net/http"

	"github.com/seantiz/aigrace/internal/backend"
	"github.com/seantiz/aigrace/internal/model"
)

type engineInfo struct {
	Name    string `json:"name"`
	Command string `json:"command"`
	Default bool   `json:"default"`
}

type enginesResponse struct {
	Engines  []engineInfo   `json:"engines"`
	Backends []backend.Info `json:"backends"`
}

func (s *Server) handleListEngines(w http.ResponseWriter, _ *http.Request) {
	defaults := make(map[model.Engine]bool, len(s.defaults.Engines))
	for _, e := range s.defaults.Engines {
		defaults[e] = true
	}

	engines := make([]engineInfo, 0, len(model.AllEngines))
	for _, e := range model.AllEngines {
		engines = append(engines, engineInfo{
			Name:    e.String(),
			Command: e.Command(),
			Default: defaults[e],
		})
	}

	s.writeJSON(w, http.StatusOK, enginesResponse{
		Engines:  engines,
		Backends: s.registry.List(),
	})
}
