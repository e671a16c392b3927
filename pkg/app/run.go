// Package app provides the shared entry point for the aamo binary.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flemzord/aamo/internal/config"
	"github.com/flemzord/aamo/internal/core"
	"github.com/flemzord/aamo/internal/security"
	"github.com/flemzord/aamo/internal/telemetry"

	// Compiled-in modules.
	_ "github.com/flemzord/aamo/internal/gateway"
	_ "github.com/flemzord/aamo/modules/memory/sqlite"
	_ "github.com/flemzord/aamo/modules/provider/openai"
	_ "github.com/flemzord/aamo/modules/provider/openai_compatible"
)

// ErrNoConfigFile is returned by ResolveConfigPath when no candidate exists.
var ErrNoConfigFile = errors.New("no configuration file found")

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is tried and the built-in configuration
	// is used when nothing is found.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// LogLevel overrides logging.level from the configuration.
	LogLevel string

	// LogOutput receives log lines. Defaults to os.Stderr.
	LogOutput io.Writer
}

// Run loads configuration, starts all modules, and blocks until ctx is
// cancelled. Modules are stopped in reverse order before it returns.
func Run(ctx context.Context, params RunParams) error {
	cfg, source, err := LoadConfig(params.ConfigPath)
	if err != nil {
		return err
	}
	if params.LogLevel != "" {
		cfg.Logging.Level = params.LogLevel
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	credStore := security.NewCredentialStore()
	redactor := security.NewRedactor()

	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger, err := NewLogger(out, cfg.Logging, redactor)
	if err != nil {
		return err
	}
	logger.Info("configuration loaded", "source", source, "version", params.Version)

	tel, err := telemetry.Setup(ctx, cfg.Telemetry, params.Version)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	appCtx := core.NewAppContext(logger, dataDir)
	appCtx = appCtx.WithModuleConfigs(cfg.Modules)

	appCtx.RegisterService("security.credentials", credStore)
	appCtx.RegisterService("security.redactor", redactor)
	appCtx.RegisterService("config.path", source)
	appCtx.RegisterService("relay.window", cfg.Relay.Window)

	application := core.NewApp(appCtx)
	ids := config.Resolve(cfg)
	if err := application.LoadModules(ids); err != nil {
		return err
	}

	// Modules registered their keys during provisioning; redact them from
	// every log line that follows.
	redactor.SyncCredentials(credStore)

	rateLimiter := security.NewRateLimiter(cfg.Security.RateLimit)
	r, err := wireRelay(appCtx, cfg.Relay, rateLimiter, tel.Tracer(relayTracerName), logger)
	if err != nil {
		application.Abort()
		return err
	}
	if !r.Online() {
		logger.Warn("no completion provider available, running in offline mode")
	}

	sched, err := newCleanupScheduler(cfg.Relay, r.Store(), rateLimiter, logger)
	if err != nil {
		application.Abort()
		return err
	}
	if sched != nil {
		application.AppendModule(sched.ModuleInfo().ID, sched)
	}

	return application.Run(ctx)
}

// LoadConfig reads the configuration at path, or the first file found by
// ResolveConfigPath, or the built-in configuration. It returns the source
// it used.
func LoadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		resolved, err := ResolveConfigPath()
		switch {
		case errors.Is(err, ErrNoConfigFile):
			cfg, err := config.Default()
			return cfg, config.DefaultSource, err
		case err != nil:
			return nil, "", err
		}
		path = resolved
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// NewLogger builds the root logger described by cfg. Every record passes
// through the redactor before reaching out.
func NewLogger(out io.Writer, cfg config.LoggingConfig, redactor *security.Redactor) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		inner = slog.NewJSONHandler(out, opts)
	} else {
		inner = slog.NewTextHandler(out, opts)
	}
	return slog.New(security.NewRedactingHandler(inner, redactor)), nil
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/aamo/aamo.yaml → ~/.config/aamo/aamo.yaml → ./aamo.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "aamo", "aamo.yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "aamo", "aamo.yaml"))
	}

	candidates = append(candidates, "aamo.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w (searched: %v)", ErrNoConfigFile, candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/aamo if set, otherwise ~/.local/share/aamo.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "aamo")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "aamo")
}
