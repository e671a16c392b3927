// Package gateway provides the public HTTP surface of aamo: the chat
// endpoints used by game clients, health and metrics for operators, and an
// optional authenticated admin API.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/aamo/internal/core"
	"github.com/flemzord/aamo/internal/provider"
	"github.com/flemzord/aamo/internal/relay"
)

// Service names published and consumed by the gateway.
const (
	ServiceMetrics  = "gateway.metrics"
	ServiceRelay    = "relay"
	ServiceUpstream = provider.ServiceName
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Gateway is gateway.http. It owns the HTTP server and every route on it.
type Gateway struct {
	config  Config
	appCtx  *core.AppContext
	logger  *slog.Logger
	metrics *Metrics

	server    *http.Server
	startedAt time.Time

	relay    *relay.Relay
	upstream *provider.Upstream // nil when offline

	wsMu    sync.Mutex
	wsConns map[*websocket.Conn]struct{}
}

// ModuleInfo implements core.Module.
func (*Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return new(Gateway) },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return fmt.Errorf("gateway: decode config: %w", err)
	}
	g.config.defaults()
	return nil
}

// Provision publishes the metrics recorder, which the relay is wired to
// before Start.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx, g.logger = ctx, ctx.Logger
	g.metrics = NewMetrics()
	ctx.RegisterService(ServiceMetrics, g.metrics)
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return fmt.Errorf("gateway: bind %q: %w", g.config.Bind, err)
	}
	return nil
}

// Start resolves the relay and, when present, the upstream, then serves
// on Bind. Listening happens here so a taken port fails the start.
func (g *Gateway) Start() error {
	svc, ok := g.appCtx.Service(ServiceRelay)
	if !ok {
		return errors.New("gateway: relay service not registered")
	}
	if g.relay, ok = svc.(*relay.Relay); !ok {
		return fmt.Errorf("gateway: relay service is %T", svc)
	}
	// Offline mode registers no upstream.
	if svc, ok := g.appCtx.Service(ServiceUpstream); ok {
		g.upstream, _ = svc.(*provider.Upstream)
	}

	g.metrics.SetSessionCounter(g.sessionCount)
	g.startedAt = time.Now()

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen: %w", err)
	}
	srv := &http.Server{
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
		ErrorLog:     slog.NewLogLogger(g.logger.Handler(), slog.LevelWarn),
	}
	g.server = srv

	g.logger.Info("gateway listening", "addr", ln.Addr().String(), "online", g.relay.Online())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway stopped serving", "error", err)
		}
	}()
	return nil
}

// Stop drains in-flight requests within ShutdownTimeout. WebSocket
// connections are hijacked, so http.Server does not see them; they are
// closed first.
func (g *Gateway) Stop(ctx context.Context) error {
	srv := g.server
	if srv == nil {
		return nil
	}
	g.server = nil

	ctx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	g.closeWebSockets()
	return srv.Shutdown(ctx)
}

// sessionCount backs the sessions gauge.
func (g *Gateway) sessionCount() int {
	n, err := g.relay.Store().Len(context.Background())
	if err != nil {
		g.logger.Warn("counting sessions failed", "error", err)
		return 0
	}
	return n
}
