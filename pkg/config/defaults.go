package config

import (
	"github.com/cirwel/unitares-govcore/pkg/dialectic"
	"github.com/cirwel/unitares-govcore/pkg/identity"
	"github.com/cirwel/unitares-govcore/pkg/lockmgr"
	"github.com/cirwel/unitares-govcore/pkg/monitor"
)

const (
	defaultKnowledgeStoreRatePerHour = 20
	defaultListenAddr                = ":8080"
)

// DefaultConfig returns every built-in default from spec.md §6.4, assembled
// from each subsystem's own DefaultConfig/DefaultParams constructor. This is
// the baseline load() starts from before applying govcore.yaml and
// environment overrides.
func DefaultConfig() Config {
	return Config{
		Monitor:                   monitor.DefaultConfig(),
		Lock:                      lockmgr.DefaultConfig(),
		Identity:                  identity.DefaultConfig(),
		Dialectic:                 dialectic.DefaultConfig(),
		KnowledgeStoreRatePerHour: defaultKnowledgeStoreRatePerHour,
		Server:                    ServerConfig{ListenAddr: defaultListenAddr},
	}
}
