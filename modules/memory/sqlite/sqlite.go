// Package sqlite keeps session history in a SQLite database so
// conversations survive a restart. The driver is modernc.org/sqlite, which
// needs no CGO.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/aamo/internal/core"
)

// ServiceName is the key the store is published under. The relay prefers
// it over its in-memory default.
const ServiceName = "session.store"

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module is memory.sqlite.
type Module struct {
	config Config
	logger *slog.Logger
	store  *Store
}

// ModuleInfo implements core.Module.
func (*Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "memory.sqlite",
		New: func() core.Module { return new(Module) },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	return nil
}

// Provision opens the database and publishes the store.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger
	m.config.defaults()
	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	}
	if m.config.Window == 0 {
		m.config.Window = relayWindow(ctx)
	}

	store, err := Open(context.Background(), m.config.Path, m.config)
	if err != nil {
		return err
	}
	m.store = store
	ctx.RegisterService(ServiceName, store)

	m.logger.Info("session store opened",
		"path", m.config.Path,
		"journal", m.config.Journal,
		"window", store.Window(),
	)
	return nil
}

// relayWindow returns the window the relay published, or zero.
func relayWindow(ctx *core.AppContext) int {
	svc, ok := ctx.Service("relay.window")
	if !ok {
		return 0
	}
	w, _ := svc.(int)
	return w
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	if err := m.store.db.PingContext(context.Background()); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// Stop closes the database.
func (m *Module) Stop(context.Context) error {
	if m.store == nil {
		return nil
	}
	m.logger.Info("session store closing")
	return m.store.Close()
}

// Store returns the provisioned store, or nil before Provision.
func (m *Module) Store() *Store {
	return m.store
}
