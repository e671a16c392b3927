package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/flemzord/aamo/internal/ingest"
)

// wsReply is the frame sent back for each inbound message.
type wsReply struct {
	Reply     string `json:"reply"`
	SessionID string `json:"sessionId"`
}

// handleWebSocket runs a chat over one WebSocket connection. Every inbound
// frame is a raw payload, normalized like a POST body. A sessionId on the
// upgrade URL pins the session for the whole connection.
func (g *Gateway) handleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// The server's read and write timeouts would otherwise cut the
		// hijacked connection.
		rc := http.NewResponseController(w)
		_ = rc.SetReadDeadline(time.Time{})
		_ = rc.SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, g.acceptOptions())
		if err != nil {
			g.logger.Warn("websocket accept failed", "error", err)
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusInternalError, "unexpected close")
		}()
		conn.SetReadLimit(g.config.MaxBodyBytes)

		g.trackWebSocket(conn, true)
		defer g.trackWebSocket(conn, false)

		defaults := url.Values{}
		if id := r.URL.Query().Get(ingest.FieldSessionID); id != "" {
			defaults.Set(ingest.FieldSessionID, id)
		}

		connID := uuid.NewString()
		logger := g.logger.With("conn_id", connID)
		logger.Info("websocket connected", "remote_addr", r.RemoteAddr)

		g.chatLoop(r.Context(), conn, defaults)

		logger.Info("websocket disconnected")
	}
}

func (g *Gateway) chatLoop(ctx context.Context, conn *websocket.Conn, defaults url.Values) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		in := g.relay.Normalize(data, defaults)
		res := g.relay.Chat(ctx, in)

		out, err := json.Marshal(wsReply{Reply: res.Reply, SessionID: res.SessionID})
		if err != nil {
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
			return
		}
	}
}

// acceptOptions maps the CORS origin list onto WebSocket origin checks.
func (g *Gateway) acceptOptions() *websocket.AcceptOptions {
	if slices.Contains(g.config.AllowedOrigins, "*") {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	patterns := make([]string, 0, len(g.config.AllowedOrigins))
	for _, o := range g.config.AllowedOrigins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			o = u.Host
		}
		patterns = append(patterns, o)
	}
	return &websocket.AcceptOptions{OriginPatterns: patterns}
}

func (g *Gateway) trackWebSocket(conn *websocket.Conn, open bool) {
	g.wsMu.Lock()
	defer g.wsMu.Unlock()
	if g.wsConns == nil {
		g.wsConns = make(map[*websocket.Conn]struct{})
	}
	if open {
		g.wsConns[conn] = struct{}{}
		g.metrics.wsConns.Inc()
		return
	}
	if _, ok := g.wsConns[conn]; ok {
		delete(g.wsConns, conn)
		g.metrics.wsConns.Dec()
	}
}

func (g *Gateway) closeWebSockets() {
	g.wsMu.Lock()
	conns := make([]*websocket.Conn, 0, len(g.wsConns))
	for c := range g.wsConns {
		conns = append(conns, c)
	}
	g.wsMu.Unlock()

	for _, c := range conns {
		_ = c.Close(websocket.StatusGoingAway, "server shutting down")
	}
}
