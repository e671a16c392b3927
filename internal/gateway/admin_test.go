package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/flemzord/aamo/internal/provider"
	"github.com/flemzord/aamo/internal/provider/providertest"
	"github.com/flemzord/aamo/internal/session/sessiontest"
)

const adminToken = "test-token"

func withAdmin(c *Config) { c.Auth = AuthConfig{BearerToken: adminToken} }

func TestAdmin_NotMountedWithoutAuth(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t, nil, nil)
	for _, path := range []string{"/status", "/api/sessions"} {
		resp := do(t, http.MethodGet, srv.URL+path, "", "")
		if resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("%s: status = %d, want 404 or 405 (not mounted)", path, resp.StatusCode)
		}
	}
}

func TestAdmin_RequiresToken(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t, nil, withAdmin)

	if resp := do(t, http.MethodGet, srv.URL+"/status", "", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, srv.URL+"/status", "", "", "Authorization", "Bearer "+adminToken); resp.StatusCode != http.StatusOK {
		t.Errorf("with token: status = %d, want 200", resp.StatusCode)
	}
}

func TestAdmin_Status(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t, providertest.Reply("Hei!"), withAdmin)
	_ = do(t, http.MethodGet, srv.URL+"/aamo-chat?sessionId=a&message=hi", "", "")

	resp := do(t, http.MethodGet, srv.URL+"/status", "", "", "Authorization", "Bearer "+adminToken)
	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if !status.Online {
		t.Error("Online = false, want true")
	}
	if status.Sessions != 1 {
		t.Errorf("Sessions = %d, want 1", status.Sessions)
	}
	if status.Upstream == nil || status.Upstream.Name != "mock" || status.Upstream.State != provider.StateHealthy {
		t.Errorf("Upstream = %+v", status.Upstream)
	}
}

func TestAdmin_StatusOffline(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t, nil, withAdmin)
	resp := do(t, http.MethodGet, srv.URL+"/status", "", "", "Authorization", "Bearer "+adminToken)

	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.Online {
		t.Error("Online = true without a provider")
	}
	if status.Upstream != nil {
		t.Errorf("Upstream = %+v, want none", status.Upstream)
	}
}

func TestAdmin_ListAndDeleteSessions(t *testing.T) {
	t.Parallel()

	g, srv := newTestServer(t, providertest.Reply("Hei!"), withAdmin)
	_ = do(t, http.MethodGet, srv.URL+"/aamo-chat?sessionId=a&message=hi", "", "")
	_ = do(t, http.MethodGet, srv.URL+"/aamo-chat?sessionId=b&message=hi", "", "")

	resp := do(t, http.MethodGet, srv.URL+"/api/sessions", "", "", "Authorization", "Bearer "+adminToken)
	var list []sessionJSON
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("sessions = %+v, want 2", list)
	}
	for _, s := range list {
		if s.Turns != 2 || s.LastActiveAt == "" {
			t.Errorf("session = %+v", s)
		}
	}

	resp = do(t, http.MethodDelete, srv.URL+"/api/sessions/a", "", "", "Authorization", "Bearer "+adminToken)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", resp.StatusCode)
	}
	if n := len(history(t, g, "a")); n != 0 {
		t.Errorf("turns after delete = %d", n)
	}
	if n := len(history(t, g, "b")); n != 2 {
		t.Errorf("other session turns = %d, want 2", n)
	}
}

func TestReset_StoreFailureStill200(t *testing.T) {
	t.Parallel()

	store := &sessiontest.MockStore{
		ResetFunc: func(context.Context, string) error { return errors.New("store unavailable") },
	}
	_, srv := newTestServerWithStore(t, nil, store, withAdmin)

	resp := do(t, http.MethodGet, srv.URL+"/aamo-reset?sessionId=x", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body resetResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.OK {
		t.Error("ok = true, want false when the store fails")
	}

	resp = do(t, http.MethodDelete, srv.URL+"/api/sessions/x", "", "", "Authorization", "Bearer "+adminToken)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("admin delete status = %d, want 500", resp.StatusCode)
	}
}
