package sqlite

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

const defaultDBFile = "sessions.db"

// journalModes are the journal_mode values accepted in configuration.
var journalModes = []string{"wal", "delete", "truncate", "persist", "memory"}

// Config is the memory.sqlite section of the modules: map.
type Config struct {
	// Path of the database file. Empty means {DataDir}/sessions.db.
	Path string `yaml:"path"`

	// Journal is the SQLite journal_mode. Empty means wal.
	Journal string `yaml:"journal"`

	// BusyTimeout bounds how long a statement waits on a locked database.
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// Window is the number of turns kept per session. Zero follows the
	// relay window.
	Window int `yaml:"window"`
}

func (c *Config) defaults() {
	c.Journal = strings.ToLower(strings.TrimSpace(c.Journal))
	if c.Journal == "" {
		c.Journal = "wal"
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = 5 * time.Second
	}
}

func (c *Config) validate() error {
	switch {
	case c.Journal != "" && !slices.Contains(journalModes, c.Journal):
		return fmt.Errorf("sqlite: journal %q is not one of %s", c.Journal, strings.Join(journalModes, ", "))
	case c.BusyTimeout < 0:
		return fmt.Errorf("sqlite: busy_timeout must not be negative, got %s", c.BusyTimeout)
	case c.Window < 0:
		return fmt.Errorf("sqlite: window must not be negative, got %d", c.Window)
	}
	return nil
}
