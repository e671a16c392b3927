package gateway

import (
	_ "embed"
	"net/http"
)

//go:embed debug_chat.html
var debugChatPage []byte

func (g *Gateway) handleDebugChat() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(debugChatPage)
	}
}
