package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	voice "github.com/voxgate/voxgate/internal"
	"github.com/voxgate/voxgate/internal/call"
	"github.com/voxgate/voxgate/internal/ratelimit"
	"github.com/voxgate/voxgate/internal/telemetry"
)

// handleCallWS upgrades the request to a WebSocket and runs the call
// session. The per-origin connection slot is claimed before the upgrade
// so over-limit clients get a plain HTTP 429 instead of a doomed
// handshake, and released exactly once when the session ends.
func (s *server) handleCallWS(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	if callID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("missing call id"))
		return
	}
	ctx := voice.ContextWithCallID(r.Context(), callID)

	key := ratelimit.ClientKey{Origin: clientOrigin(r), Session: callID}

	allowed, reason := s.deps.Limiter.CheckConnectionLimit(key)
	if !allowed {
		if s.deps.Metrics != nil {
			s.deps.Metrics.RateLimitRejects.WithLabelValues(telemetry.RejectConnection).Inc()
		}
		writeJSON(w, http.StatusTooManyRequests, errorResponse(reason))
		return
	}
	defer s.deps.Limiter.ReleaseConnection(key)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // browser origin checks handled upstream
	})
	if err != nil {
		slog.WarnContext(ctx, "websocket upgrade failed",
			"call_id", callID, "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session aborted")

	// The session enforces its own frame-size policy with a structured
	// error message; the read limit only guards against frames so large
	// they should never reach that code.
	limit := int64(s.deps.CallConfig.MaxFrameBytes) * 2
	if limit > 0 {
		conn.SetReadLimit(limit)
	}

	if s.deps.Usage != nil {
		s.deps.Usage.RecordConnection(key.Origin)
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ActiveConnections.Inc()
		defer s.deps.Metrics.ActiveConnections.Dec()
	}

	sess := call.New(callID, key, s.deps.Limiter, &wsTransport{conn: conn},
		s.deps.Pipeline, s.deps.CallConfig, s.deps.Usage, s.deps.Metrics)

	err = sess.Run(ctx)
	switch {
	case err == nil:
		conn.Close(websocket.StatusNormalClosure, "")
	case websocket.CloseStatus(err) != -1 || errors.Is(err, io.EOF):
		// Client hung up; the read error is the only signal we get.
	default:
		slog.ErrorContext(ctx, "call session failed",
			"call_id", callID, "error", err)
		conn.Close(websocket.StatusInternalError, "session terminated")
	}
}

// clientOrigin identifies the caller for per-origin accounting. The first
// hop of X-Forwarded-For wins when a proxy sits in front; otherwise the
// host part of the remote address is used, which keeps IPv6 literals
// intact.
func clientOrigin(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// wsTransport adapts a coder/websocket connection to the session's
// Transport interface.
type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) ReadFrame(ctx context.Context) ([]byte, bool, error) {
	typ, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, false, err
	}
	return data, typ == websocket.MessageBinary, nil
}

func (t *wsTransport) WriteControl(ctx context.Context, msg voice.Control) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return t.conn.Write(ctx, websocket.MessageText, b)
}

func (t *wsTransport) WriteAudio(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageBinary, data)
}
