package server

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	voice "github.com/voxgate/voxgate/internal"
	"github.com/voxgate/voxgate/internal/ratelimit"
)

type startCallResponse struct {
	CallID       string `json:"call_id"`
	WebSocketURL string `json:"websocket_url"`
}

// handleStartCall allocates a call ID and tells the client where to
// open its audio stream. No server-side state is created here; the
// connection slot is claimed only when the WebSocket arrives.
func (s *server) handleStartCall(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.NewV7()
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to generate call id", "error", err)
		writeJSON(w, errorStatus(err), errorResponse("failed to start call"))
		return
	}

	callID := id.String()
	voice.ContextWithCallID(r.Context(), callID)

	writeJSON(w, http.StatusOK, startCallResponse{
		CallID:       callID,
		WebSocketURL: "/v1/calls/" + callID + "/ws",
	})
}

type rateLimitStatsResponse struct {
	Limits ratelimit.Stats                  `json:"limits"`
	Usage  map[string]ratelimit.OriginUsage `json:"usage,omitempty"`
}

// handleRateLimitStats exposes live limiter counters for operators.
func (s *server) handleRateLimitStats(w http.ResponseWriter, r *http.Request) {
	resp := rateLimitStatsResponse{Limits: s.deps.Limiter.Stats()}
	if s.deps.Usage != nil {
		resp.Usage = s.deps.Usage.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}
