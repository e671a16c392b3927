package gateway

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/flemzord/aamo/internal/ingest"
	"github.com/flemzord/aamo/internal/relay"
)

// rootBanner is the body of GET /.
const rootBanner = "Aamo brain is running 🦊"

// replyResponse is the JSON body of /aamo-start and /aamo-chat.
type replyResponse struct {
	Reply string `json:"reply"`
}

// resetResponse is the JSON body of /aamo-reset.
type resetResponse struct {
	OK bool `json:"ok"`
}

func (g *Gateway) handleRoot() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, rootBanner)
	}
}

// handleHealth answers liveness probes. The process is alive whenever it
// can answer; provider health is reported by /status.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, "OK")
	}
}

func (g *Gateway) handleStart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := g.normalize(w, r)
		res := g.relay.Start(r.Context(), in.SessionID)
		g.writeReply(w, r, res)
	}
}

func (g *Gateway) handleChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := g.normalize(w, r)
		if in.Truncated {
			g.logger.Info("message truncated", "session", in.SessionID, "request_id", middleware.GetReqID(r.Context()))
		}
		res := g.relay.Chat(r.Context(), in)
		g.writeReply(w, r, res)
	}
}

func (g *Gateway) handleReset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := g.normalize(w, r)
		resp := resetResponse{OK: true}
		if err := g.relay.Reset(r.Context(), in.SessionID); err != nil {
			g.logger.Error("reset failed", "session", in.SessionID, "error", err)
			resp.OK = false
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// normalize reads the request into an exchange input. Query fields win;
// form fields of a urlencoded POST come next; the body fills the rest.
// Clients that label JSON or plain text as urlencoded are common, so a
// body only counts as a form when it carries a sessionId or message.
func (g *Gateway) normalize(w http.ResponseWriter, r *http.Request) ingest.Input {
	fields := r.URL.Query()
	raw := g.readBody(w, r)

	if form, ok := formFields(r, raw); ok {
		for k, v := range form {
			if _, ok := fields[k]; !ok {
				fields[k] = v
			}
		}
		raw = nil
	}

	return g.relay.Normalize(raw, fields)
}

// formFields parses raw as a urlencoded form when the request says it is
// one and the form names a session or a message.
func formFields(r *http.Request, raw []byte) (url.Values, bool) {
	if raw == nil || !isForm(r) {
		return nil, false
	}
	form, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, false
	}
	if strings.TrimSpace(form.Get(ingest.FieldSessionID)) == "" && strings.TrimSpace(form.Get(ingest.FieldMessage)) == "" {
		return nil, false
	}
	return form, true
}

// readBody returns the request body, or nil when there is none or it
// cannot be read within the size limit.
func (g *Gateway) readBody(w http.ResponseWriter, r *http.Request) []byte {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.config.MaxBodyBytes))
	if err != nil {
		g.logger.Warn("request body ignored", "error", err, "request_id", middleware.GetReqID(r.Context()))
		return nil
	}
	return raw
}

func isForm(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/x-www-form-urlencoded"
}

// writeReply writes a relay result as JSON, or as bare text when the
// client asks for ?format=text.
func (g *Gateway) writeReply(w http.ResponseWriter, r *http.Request, res relay.Result) {
	if r.URL.Query().Get("format") == "text" {
		writeText(w, res.Reply)
		return
	}
	writeJSON(w, http.StatusOK, replyResponse{Reply: res.Reply})
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, text)
}
