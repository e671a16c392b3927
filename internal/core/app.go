package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// StopTimeout bounds how long Stop waits for modules to release resources.
const StopTimeout = 30 * time.Second

// App owns an ordered set of modules and their lifecycle.
type App struct {
	ctx    *AppContext
	logger *slog.Logger
	mods   []entry

	// mods[:running] have been started and not yet stopped.
	running int
}

type entry struct {
	id  ModuleID
	mod Module
}

// NewApp returns an App whose modules provision against ctx.
func NewApp(ctx *AppContext) *App {
	return &App{ctx: ctx, logger: ctx.Logger.With("component", "core")}
}

// LoadModules loads ids in order. On failure every module loaded so far
// is stopped and dropped.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			a.Abort()
			return err
		}
		a.mods = append(a.mods, entry{id: mod.ModuleInfo().ID, mod: mod})
		a.logger.Info("module loaded", "module", id)
	}
	return nil
}

// AppendModule adds a module built outside the registry. It starts after
// everything loaded before it.
func (a *App) AppendModule(id ModuleID, mod Module) {
	a.mods = append(a.mods, entry{id: id, mod: mod})
}

// Module returns the module with the given ID.
func (a *App) Module(id string) (Module, bool) {
	for _, e := range a.mods {
		if string(e.id) == id {
			return e.mod, true
		}
	}
	return nil, false
}

// Start starts modules in order. If one fails, those already started are
// stopped again and the error is returned.
func (a *App) Start() error {
	for i, e := range a.mods {
		if s, ok := e.mod.(Starter); ok {
			if err := s.Start(); err != nil {
				a.logger.Error("module start failed", "module", string(e.id), "error", err)
				a.Stop()
				return fmt.Errorf("start %s: %w", e.id, err)
			}
		}
		a.running = i + 1
	}
	a.logger.Info("modules started", "count", len(a.mods))
	return nil
}

// Stop stops started modules in reverse order.
func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), StopTimeout)
	defer cancel()

	for ; a.running > 0; a.running-- {
		e := a.mods[a.running-1]
		if s, ok := e.mod.(Stopper); ok {
			if err := s.Stop(ctx); err != nil {
				a.logger.Error("module stop failed", "module", string(e.id), "error", err)
			}
		}
	}
}

// Abort stops every loaded module, started or not, and forgets them. It
// is for callers whose own wiring fails after LoadModules succeeded.
func (a *App) Abort() {
	a.running = len(a.mods)
	a.Stop()
	a.mods = nil
}

// Run starts the modules, waits for ctx to be done, then stops them.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	a.logger.Info("shutting down", "cause", context.Cause(ctx))
	a.Stop()
	return nil
}
