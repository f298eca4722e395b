package httpserver

import (
	"net/http"

	"github.com/pion/webrtc/v4"

	"github.com/RAMYA-PARSANIA/simally-signaling/internal/metrics"
	"github.com/RAMYA-PARSANIA/simally-signaling/internal/signaling"
	"github.com/RAMYA-PARSANIA/simally-signaling/internal/turnrest"
)

type healthResponse struct {
	Health string `json:"status"`
	signaling.Status
	UptimeSeconds int64       `json:"uptimeSeconds"`
	Process       processInfo `json:"process"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Health:        "healthy",
		UptimeSeconds: int64(s.deps.Now().Sub(s.started).Seconds()),
		Process:       s.proc.sample(),
	}
	if s.deps.Presence != nil {
		resp.Status = s.deps.Presence.Status()
	}
	WriteJSON(w, http.StatusOK, resp)
}

type iceResponse struct {
	ICEServers []webrtc.ICEServer `json:"iceServers"`
}

// handleICE returns the RTCPeerConnection iceServers list. With TURN REST
// enabled every TURN entry gets freshly minted credentials.
func (s *Server) handleICE(w http.ResponseWriter, r *http.Request) {
	servers := s.cfg.ICEServers
	if s.deps.TURNREST != nil {
		creds, err := s.deps.TURNREST.GenerateRandom()
		if err != nil {
			s.log.Error("turn rest credentials failed", "err", err)
			WriteJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to issue TURN credentials"})
			return
		}
		servers = turnrest.Apply(servers, creds)
	}
	if servers == nil {
		servers = []webrtc.ICEServer{}
	}

	s.deps.Metrics.Inc(metrics.ICEServersServed)
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, iceResponse{ICEServers: servers})
}
