// Package config loads and validates the runtime configuration surface
// enumerated in spec.md §6.4: YAML file plus environment overrides, merged
// onto built-in defaults and validated before any package gets to see it.
// Grounded on the teacher's pkg/config/loader.go pipeline shape (load, merge,
// validate, return), generalized from tarsy's agent/chain/MCP registries to
// this service's five tunable subsystems.
package config

import (
	"github.com/cirwel/unitares-govcore/pkg/dialectic"
	"github.com/cirwel/unitares-govcore/pkg/identity"
	"github.com/cirwel/unitares-govcore/pkg/lockmgr"
	"github.com/cirwel/unitares-govcore/pkg/monitor"
)

// Config is the umbrella object returned by Initialize, composing every
// subsystem's own Config/Params struct rather than duplicating their fields.
type Config struct {
	configDir string

	Monitor   monitor.Config
	Lock      lockmgr.Config
	Identity  identity.Config
	Dialectic dialectic.Config

	// KnowledgeStoreRatePerHour is spec.md §6.4's knowledge_store_rate_per_hour,
	// passed to knowledge.NewPostgresStore.
	KnowledgeStoreRatePerHour int

	Server ServerConfig
}

// ServerConfig holds the HTTP listener settings consumed by cmd/govcore.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" validate:"required"`
}

// ConfigDir returns the directory configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}
