package config

import (
	"maps"
	"slices"
)

// Resolve returns the IDs of the configured modules in load order, which
// is lexical so every run provisions modules the same way.
func Resolve(cfg *Config) []string {
	return slices.Sorted(maps.Keys(cfg.Modules))
}
