package core

import (
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/yaml.v3"
)

// AppContext is handed to modules while they provision. Every context
// derived from the same root shares one service registry, so what one
// module publishes the next can find.
type AppContext struct {
	// Logger is tagged with the module ID inside a module's scope.
	Logger *slog.Logger

	// DataDir is where modules keep persistent files.
	DataDir string

	root     *slog.Logger
	configs  map[string]yaml.Node
	services *services
}

type services struct {
	mu     sync.RWMutex
	byName map[string]any
}

// NewAppContext returns a root context. A nil logger means slog.Default.
func NewAppContext(logger *slog.Logger, dataDir string) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppContext{
		Logger:   logger,
		DataDir:  dataDir,
		root:     logger,
		services: &services{byName: make(map[string]any)},
	}
}

// WithModuleConfigs returns a copy carrying the raw YAML node of each
// module, keyed by module ID.
func (ctx *AppContext) WithModuleConfigs(configs map[string]yaml.Node) *AppContext {
	cp := *ctx
	cp.configs = configs
	return &cp
}

// ForModule returns a copy whose Logger is tagged with module=id.
func (ctx *AppContext) ForModule(id ModuleID) *AppContext {
	cp := *ctx
	cp.Logger = ctx.root.With("module", string(id))
	return &cp
}

// RegisterService publishes svc under name, replacing any previous value.
func (ctx *AppContext) RegisterService(name string, svc any) {
	ctx.services.mu.Lock()
	defer ctx.services.mu.Unlock()
	ctx.services.byName[name] = svc
}

// Service returns the value published under name.
func (ctx *AppContext) Service(name string) (any, bool) {
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	svc, ok := ctx.services.byName[name]
	return svc, ok
}

// LoadModule builds the module registered as id and runs it through
// Configure, Provision and Validate.
func (ctx *AppContext) LoadModule(id string) (Module, error) {
	info, ok := GetModule(id)
	if !ok {
		return nil, fmt.Errorf("unknown module %q", id)
	}
	mod := info.New()
	if err := ctx.prepare(info.ID, mod); err != nil {
		return nil, fmt.Errorf("module %s: %w", id, err)
	}
	return mod, nil
}

func (ctx *AppContext) prepare(id ModuleID, mod Module) error {
	if c, ok := mod.(Configurable); ok {
		if node, ok := ctx.configs[string(id)]; ok {
			if err := c.Configure(&node); err != nil {
				return fmt.Errorf("configure: %w", err)
			}
		}
	}
	if p, ok := mod.(Provisioner); ok {
		if err := p.Provision(ctx.ForModule(id)); err != nil {
			return fmt.Errorf("provision: %w", err)
		}
	}
	if v, ok := mod.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validate: %w", err)
		}
	}
	return nil
}
