package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/aamo/internal/provider"
	"github.com/flemzord/aamo/internal/session"
)

// sessionJSON is a serializable session snapshot.
type sessionJSON struct {
	ID           string `json:"id"`
	Turns        int    `json:"turns"`
	LastActiveAt string `json:"last_active_at"`
}

// handleListSessions returns all sessions with stored history.
func (g *Gateway) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions := []sessionJSON{}
		err := g.relay.Store().Range(r.Context(), func(info session.Info) bool {
			sessions = append(sessions, sessionJSON{
				ID:           info.ID,
				Turns:        info.Turns,
				LastActiveAt: info.LastActiveAt.UTC().Format(time.RFC3339),
			})
			return true
		})
		if err != nil {
			g.logger.Error("listing sessions failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "listing sessions failed"})
			return
		}
		writeJSON(w, http.StatusOK, sessions)
	}
}

// handleDeleteSession clears one session's history.
func (g *Gateway) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			http.Error(w, "missing session id", http.StatusBadRequest)
			return
		}

		if err := g.relay.Reset(r.Context(), id); err != nil {
			g.logger.Error("deleting session failed", "session", id, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "deleting session failed"})
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime   int64            `json:"uptime_seconds"`
	Online   bool             `json:"online"`
	Sessions int              `json:"sessions"`
	Upstream *provider.Status `json:"upstream,omitempty"`
}

// handleStatus reports uptime, session count and provider health.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime:   int64(time.Since(g.startedAt).Seconds()),
			Online:   g.relay.Online(),
			Sessions: g.sessionCount(),
		}
		if g.upstream != nil {
			st := g.upstream.Status()
			resp.Upstream = &st
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
