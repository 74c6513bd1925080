package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/conneroisu/ssrgate/internal/version"
)

type healthResponse struct {
	Status    string    `json:"status"`
	Mode      string    `json:"mode"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime,omitempty"`
	HotReload bool      `json:"hot_reload"`
	Modules   int       `json:"modules"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := healthResponse{
		Status:    "healthy",
		Mode:      s.mode.String(),
		Version:   version.Short(),
		Timestamp: time.Now().UTC(),
	}
	s.serverMutex.RLock()
	if !s.started.IsZero() {
		health.Uptime = time.Since(s.started).Round(time.Second).String()
	}
	s.serverMutex.RUnlock()
	if s.dev != nil {
		health.HotReload = s.dev.HotReload()
		health.Modules = len(s.dev.Modules())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode health response")
	}
}
