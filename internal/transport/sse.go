package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/apierr"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/orchestrator"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/scope"
)

// handleSSEEvents streams a session's chat events as Server-Sent
// Events. Disconnecting cancels only the subscription, never the
// producing task. Besides the orchestrator's in-stream pings, the
// transport emits its own keepalive ping at the configured SSE
// heartbeat so intermediaries don't drop an idle connection.
func (s *HTTPServer) handleSSEEvents(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope.FromContext(r.Context())
	if !ok {
		writeAPIError(w, apierr.New(apierr.KindTenantUnresolved, "no tenant scope on request"))
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeAPIError(w, apierr.New(apierr.KindSchemaInvalid, "sessionId query parameter is required"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		s.logger.Warn("ResponseWriter does not support flushing, SSE may not work properly")
	}

	// Establish the stream immediately with a retry hint.
	fmt.Fprintf(w, ": stream established\nretry: 5000\n\n")
	if canFlush {
		flusher.Flush()
	}

	events := s.orchestrator.Subscribe(r.Context(), sc.TenantID, sessionID)

	heartbeat := time.NewTicker(s.cfg.HTTP.SSEHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			ping := orchestrator.ChatEvent{Type: orchestrator.EventPing, SessionID: sessionID}
			if err := writeSSEEvent(w, flusher, canFlush, string(ping.Type), ping); err != nil {
				return
			}
		case ev, open := <-events:
			if !open {
				return
			}
			if err := writeSSEEvent(w, flusher, canFlush, string(ev.Type), ev); err != nil {
				s.logger.Debugw("SSE subscriber gone", "session", sessionID, "error", err)
				return
			}
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, canFlush bool, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	if canFlush {
		flusher.Flush()
	}
	return nil
}
