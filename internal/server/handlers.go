package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type healthResponse struct {
	Status      string   `json:"status"`
	Connections int      `json:"connections"`
	Online      []string `json:"online"`
	Groups      int      `json:"groups"`
}

// handleWebSocket upgrades the request and hands the connection to the hub,
// which starts its pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	s.hub.Register(NewClient(conn, s.hub, r.RemoteAddr))
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "relaychat server is running!")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Connections: s.hub.Count(),
		Online:      s.registry.Online(),
		Groups:      s.groups.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
