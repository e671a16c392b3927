package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/aamo/internal/core"
	"github.com/flemzord/aamo/internal/provider"
	"github.com/flemzord/aamo/internal/provider/providertest"
	"github.com/flemzord/aamo/internal/relay"
	"github.com/flemzord/aamo/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRelay builds a relay over store, or a fresh memory store when
// store is nil. A nil mock gives an offline relay.
func newTestRelay(t *testing.T, mock *providertest.MockProvider, metrics *Metrics, store session.Store) (*relay.Relay, *provider.Upstream) {
	t.Helper()

	if store == nil {
		store = session.NewMemoryStore(10)
	}
	cfg := relay.Config{
		Store:       store,
		Logger:      discardLogger(),
		Temperature: relay.DefaultTemperature,
	}
	if metrics != nil {
		cfg.Recorder = metrics
	}

	var u *provider.Upstream
	if mock != nil {
		var err error
		u, err = provider.NewUpstream("mock", mock)
		if err != nil {
			t.Fatalf("NewUpstream: %v", err)
		}
		cfg.Completer = u
	}

	r, err := relay.New(cfg)
	if err != nil {
		t.Fatalf("relay.New: %v", err)
	}
	return r, u
}

// newTestServer serves a gateway router on an httptest server. The
// gateway is wired the way Start wires it, without binding its own port.
func newTestServer(t *testing.T, mock *providertest.MockProvider, mutate func(*Config)) (*Gateway, *httptest.Server) {
	t.Helper()
	return newTestServerWithStore(t, mock, nil, mutate)
}

func newTestServerWithStore(t *testing.T, mock *providertest.MockProvider, store session.Store, mutate func(*Config)) (*Gateway, *httptest.Server) {
	t.Helper()

	g := &Gateway{}
	if mutate != nil {
		mutate(&g.config)
	}
	g.config.defaults()
	g.appCtx = core.NewAppContext(discardLogger(), t.TempDir())
	g.logger = discardLogger()
	g.metrics = NewMetrics()
	g.relay, g.upstream = newTestRelay(t, mock, g.metrics, store)
	g.metrics.SetSessionCounter(g.sessionCount)
	g.startedAt = time.Now()

	srv := httptest.NewServer(g.buildRouter())
	t.Cleanup(srv.Close)
	return g, srv
}

func do(t *testing.T, method, url, contentType, body string, header ...string) *http.Response {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, rd)
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}
