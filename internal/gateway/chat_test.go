package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/flemzord/aamo/internal/persona"
	"github.com/flemzord/aamo/internal/provider"
	"github.com/flemzord/aamo/internal/provider/providertest"
	"github.com/flemzord/aamo/internal/session"
)

func decodeReply(t *testing.T, resp *http.Response) string {
	t.Helper()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q, want JSON", ct)
	}
	var body replyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	return body.Reply
}

func lastUserMessage(t *testing.T, mock *providertest.MockProvider) string {
	t.Helper()
	msgs := mock.Request().Messages
	if len(msgs) == 0 {
		t.Fatal("no request recorded")
	}
	last := msgs[len(msgs)-1]
	if last.Role != provider.MessageRoleUser {
		t.Fatalf("last message role = %q, want user", last.Role)
	}
	return last.Content
}

func history(t *testing.T, g *Gateway, sessionID string) []session.Turn {
	t.Helper()
	turns, err := g.relay.Store().History(context.Background(), sessionID)
	if err != nil {
		t.Fatal(err)
	}
	return turns
}

func TestRoot(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t, nil, nil)
	resp := do(t, http.MethodGet, srv.URL+"/", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body := readBody(t, resp); !strings.Contains(body, "running") {
		t.Errorf("body = %q", body)
	}
}

func TestChat_OfflineGetAlwaysReplies(t *testing.T) {
	t.Parallel()

	g, srv := newTestServer(t, nil, nil)
	resp := do(t, http.MethodGet, srv.URL+"/aamo-chat?sessionId=s1&message=hello", "", "")

	reply := decodeReply(t, resp)
	if reply == "" {
		t.Fatal("reply should not be empty")
	}
	if !strings.Contains(reply, "hello") {
		t.Errorf("offline reply should quote the message: %q", reply)
	}
	if n := len(history(t, g, "s1")); n != 0 {
		t.Errorf("offline exchange stored %d turns, want 0", n)
	}
}

func TestChat_PayloadShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		method      string
		path        string
		contentType string
		body        string
		wantSession string
		wantMessage string
	}{
		{
			name:        "query fields",
			method:      http.MethodGet,
			path:        "/aamo-chat?sessionId=q1&message=hi+there",
			wantSession: "q1",
			wantMessage: "hi there",
		},
		{
			name:        "flat json",
			method:      http.MethodPost,
			path:        "/aamo-chat",
			contentType: "application/json",
			body:        `{"sessionId":"f1","message":"moi"}`,
			wantSession: "f1",
			wantMessage: "moi",
		},
		{
			name:        "wrapper json",
			method:      http.MethodPost,
			path:        "/aamo-chat",
			contentType: "application/json",
			body:        `{"c2dictionary":true,"data":{"sessionId":"w1","message":"from the game"}}`,
			wantSession: "w1",
			wantMessage: "from the game",
		},
		{
			name:        "raw text",
			method:      http.MethodPost,
			path:        "/aamo-chat",
			contentType: "text/plain",
			body:        "  just words  ",
			wantSession: "session1",
			wantMessage: "just words",
		},
		{
			name:        "text with query session",
			method:      http.MethodPost,
			path:        "/aamo-chat?sessionId=t2",
			contentType: "text/plain",
			body:        "typed",
			wantSession: "t2",
			wantMessage: "typed",
		},
		{
			name:        "form fields",
			method:      http.MethodPost,
			path:        "/aamo-chat",
			contentType: "application/x-www-form-urlencoded",
			body:        "sessionId=form1&message=posted",
			wantSession: "form1",
			wantMessage: "posted",
		},
		{
			name:        "wrapper json labelled as form",
			method:      http.MethodPost,
			path:        "/aamo-chat",
			contentType: "application/x-www-form-urlencoded",
			body:        `{"c2dictionary":true,"data":{"sessionId":"w1","message":"from the game"}}`,
			wantSession: "w1",
			wantMessage: "from the game",
		},
		{
			name:        "flat json labelled as form",
			method:      http.MethodPost,
			path:        "/aamo-chat",
			contentType: "application/x-www-form-urlencoded",
			body:        `{"sessionId":"f1","message":"moi"}`,
			wantSession: "f1",
			wantMessage: "moi",
		},
		{
			name:        "text labelled as form",
			method:      http.MethodPost,
			path:        "/aamo-chat?sessionId=t3",
			contentType: "application/x-www-form-urlencoded",
			body:        "hello there",
			wantSession: "t3",
			wantMessage: "hello there",
		},
		{
			name:        "empty body",
			method:      http.MethodPost,
			path:        "/aamo-chat",
			wantSession: "session1",
			wantMessage: "...",
		},
		{
			name:        "malformed json",
			method:      http.MethodPost,
			path:        "/aamo-chat?sessionId=m1",
			contentType: "application/json",
			body:        `{"message":`,
			wantSession: "m1",
			wantMessage: `{"message":`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := providertest.Reply("Hei!")
			g, srv := newTestServer(t, mock, nil)

			resp := do(t, tt.method, srv.URL+tt.path, tt.contentType, tt.body)
			if reply := decodeReply(t, resp); reply != "Hei!" {
				t.Errorf("reply = %q, want model reply", reply)
			}
			if got := lastUserMessage(t, mock); got != tt.wantMessage {
				t.Errorf("message = %q, want %q", got, tt.wantMessage)
			}
			turns := history(t, g, tt.wantSession)
			if len(turns) != 2 || turns[0].Text != tt.wantMessage {
				t.Errorf("history of %q = %+v", tt.wantSession, turns)
			}
		})
	}
}

func TestChat_UpstreamFailureStill200(t *testing.T) {
	t.Parallel()

	mock := providertest.Fail(provider.ErrProviderDown)
	g, srv := newTestServer(t, mock, nil)

	resp := do(t, http.MethodGet, srv.URL+"/aamo-chat?sessionId=s1&message=hello", "", "")
	reply := decodeReply(t, resp)
	if reply != persona.New(persona.Config{}).Failure("hello") {
		t.Errorf("reply = %q, want failure line", reply)
	}
	if mock.Calls() != 1 {
		t.Errorf("upstream calls = %d, want 1", mock.Calls())
	}
	if n := len(history(t, g, "s1")); n != 0 {
		t.Errorf("failed exchange stored %d turns", n)
	}
}

func TestChat_EmptyCompletionStill200(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t, providertest.Reply("   "), nil)
	resp := do(t, http.MethodPost, srv.URL+"/aamo-chat", "text/plain", "anyone there?")
	if reply := decodeReply(t, resp); strings.TrimSpace(reply) == "" {
		t.Error("reply should not be empty")
	}
}

func TestChat_TextFormat(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t, providertest.Reply("Hei!"), nil)
	resp := do(t, http.MethodPost, srv.URL+"/aamo-chat?format=text", "text/plain", "hello")

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
	if body := readBody(t, resp); body != "Hei!" {
		t.Errorf("body = %q, want bare reply", body)
	}
}

func TestChat_OversizedBodyIgnored(t *testing.T) {
	t.Parallel()

	mock := providertest.Reply("Hei!")
	_, srv := newTestServer(t, mock, func(c *Config) { c.MaxBodyBytes = 16 })

	resp := do(t, http.MethodPost, srv.URL+"/aamo-chat", "text/plain", strings.Repeat("a", 64))
	if reply := decodeReply(t, resp); reply != "Hei!" {
		t.Errorf("reply = %q", reply)
	}
	if got := lastUserMessage(t, mock); got != "..." {
		t.Errorf("message = %q, want placeholder", got)
	}
}

func TestChat_GuardedReply(t *testing.T) {
	t.Parallel()

	mock := providertest.Reply("You seem quiet today.")
	g, srv := newTestServer(t, mock, nil)

	resp := do(t, http.MethodGet, srv.URL+"/aamo-chat?sessionId=g1&message=I+like+snow", "", "")
	reply := decodeReply(t, resp)
	if strings.Contains(strings.ToLower(reply), "quiet") {
		t.Errorf("reply should be guarded: %q", reply)
	}
	turns := history(t, g, "g1")
	if len(turns) != 2 || turns[1].Text != reply {
		t.Errorf("guarded reply should be stored as sent: %+v", turns)
	}
}

func TestStart_SeedsWelcomeOnce(t *testing.T) {
	t.Parallel()

	g, srv := newTestServer(t, nil, nil)
	welcome := persona.New(persona.Config{}).Welcome()

	for range 2 {
		resp := do(t, http.MethodGet, srv.URL+"/aamo-start?sessionId=s1", "", "")
		if reply := decodeReply(t, resp); reply != welcome {
			t.Errorf("reply = %q, want welcome", reply)
		}
	}

	turns := history(t, g, "s1")
	if len(turns) != 1 || turns[0].Role != session.RoleAssistant || turns[0].Text != welcome {
		t.Errorf("history = %+v, want single welcome turn", turns)
	}
}

func TestStart_DefaultSession(t *testing.T) {
	t.Parallel()

	g, srv := newTestServer(t, nil, nil)
	resp := do(t, http.MethodGet, srv.URL+"/aamo-start", "", "")
	_ = decodeReply(t, resp)

	if n := len(history(t, g, "session1")); n != 1 {
		t.Errorf("default session turns = %d, want 1", n)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	g, srv := newTestServer(t, providertest.Reply("Hei!"), nil)
	_ = do(t, http.MethodGet, srv.URL+"/aamo-chat?sessionId=r1&message=one", "", "")
	if n := len(history(t, g, "r1")); n != 2 {
		t.Fatalf("turns before reset = %d", n)
	}

	for range 2 {
		resp := do(t, http.MethodGet, srv.URL+"/aamo-reset?sessionId=r1", "", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		var body resetResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if !body.OK {
			t.Error("ok = false, want true")
		}
	}

	if n := len(history(t, g, "r1")); n != 0 {
		t.Errorf("turns after reset = %d, want 0", n)
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t, nil, nil)

	resp := do(t, http.MethodGet, srv.URL+"/aamo-chat?message=hi", "", "", "Origin", "https://game.example")
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}

	pre := do(t, http.MethodOptions, srv.URL+"/aamo-chat", "", "",
		"Origin", "https://game.example",
		"Access-Control-Request-Method", http.MethodPost,
		"Access-Control-Request-Headers", "Content-Type",
	)
	if pre.StatusCode >= 300 {
		t.Errorf("preflight status = %d", pre.StatusCode)
	}
	if got := pre.Header.Get("Access-Control-Allow-Methods"); !strings.Contains(got, http.MethodPost) {
		t.Errorf("Access-Control-Allow-Methods = %q", got)
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t, nil, nil)

	resp := do(t, http.MethodGet, srv.URL+"/health", "", "")
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("missing generated request id")
	}

	resp = do(t, http.MethodGet, srv.URL+"/health", "", "", "X-Request-Id", "abc-123")
	if got := resp.Header.Get("X-Request-Id"); got != "abc-123" {
		t.Errorf("request id = %q, want client value", got)
	}
}

func TestDebugPage(t *testing.T) {
	t.Parallel()

	_, off := newTestServer(t, nil, nil)
	if resp := do(t, http.MethodGet, off.URL+"/debug-chat", "", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("debug page without flag: status = %d, want 404", resp.StatusCode)
	}

	_, on := newTestServer(t, nil, func(c *Config) { c.DebugPage = true })
	resp := do(t, http.MethodGet, on.URL+"/debug-chat", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body := readBody(t, resp); !strings.Contains(body, "/aamo-chat") {
		t.Error("debug page should post to /aamo-chat")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t, nil, nil)
	_ = do(t, http.MethodGet, srv.URL+"/aamo-chat?message=hi", "", "")

	body := readBody(t, do(t, http.MethodGet, srv.URL+"/metrics", "", ""))
	for _, want := range []string{
		`aamo_exchanges_total{outcome="offline"} 1`,
		`aamo_exchanges_total{outcome="reply"} 0`,
		"aamo_exchange_duration_seconds",
		"aamo_sessions 0",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
