package config

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// yamlDoc is the flat, spec.md §6.4-shaped YAML document. Every field is a
// pointer so an omitted key is distinguishable from an explicit zero value
// (risk_revise_threshold: 0.0 is a real, meaningful override).
type yamlDoc struct {
	RiskApproveThreshold       *float64 `yaml:"risk_approve_threshold"`
	RiskReviseThreshold        *float64 `yaml:"risk_revise_threshold"`
	CoherenceCriticalThreshold *float64 `yaml:"coherence_critical_threshold"`

	VoidThresholdInitial *float64 `yaml:"void_threshold_initial"`
	VoidThresholdMin     *float64 `yaml:"void_threshold_min"`
	VoidThresholdMax     *float64 `yaml:"void_threshold_max"`

	Lambda1Min *float64 `yaml:"lambda1_min"`
	Lambda1Max *float64 `yaml:"lambda1_max"`

	TargetCoherence *float64 `yaml:"target_coherence"`
	TargetVoidFreq  *float64 `yaml:"target_void_freq"`

	ConfidenceGateThreshold *float64 `yaml:"confidence_gate_threshold"`

	StaleLockThresholdSeconds *int `yaml:"stale_lock_threshold_seconds"`
	SessionIdleTimeoutSeconds *int `yaml:"session_idle_timeout_seconds"`

	DialecticMaxRounds      *int `yaml:"dialectic_max_rounds"`
	DialecticTimeoutSeconds *int `yaml:"dialectic_timeout_seconds"`

	KnowledgeStoreRatePerHour *int `yaml:"knowledge_store_rate_per_hour"`
	HistoryBoundPerAgent      *int `yaml:"history_bound_per_agent"`

	Server *serverYAML `yaml:"server"`
}

type serverYAML struct {
	ListenAddr *string `yaml:"listen_addr"`
}

// Initialize loads, validates, and returns ready-to-use configuration. This
// is the primary entry point; cmd/govcore calls it once at startup.
//
// Steps: read govcore.yaml (if present), expand environment variables,
// decode with unknown-key rejection, apply overrides onto the built-in
// defaults, then validate.
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("configuration initialized")
	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.configDir = configDir

	doc, err := loadYAMLDoc(configDir)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return &cfg, nil
	}

	if err := applyOverrides(&cfg, doc); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadYAMLDoc(configDir string) (*yamlDoc, error) {
	path := filepath.Join(configDir, "govcore.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, NewLoadError(path, err)
	}

	data = ExpandEnv(data)

	var doc yamlDoc
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}
	return &doc, nil
}

func applyOverrides(cfg *Config, doc *yamlDoc) error {
	if doc.RiskApproveThreshold != nil {
		cfg.Monitor.RiskApproveThreshold = *doc.RiskApproveThreshold
	}
	if doc.RiskReviseThreshold != nil {
		cfg.Monitor.RiskReviseThreshold = *doc.RiskReviseThreshold
	}
	if doc.CoherenceCriticalThreshold != nil {
		cfg.Monitor.CoherenceCriticalThreshold = *doc.CoherenceCriticalThreshold
	}

	if doc.VoidThresholdInitial != nil {
		cfg.Monitor.VoidThresholdInitial = *doc.VoidThresholdInitial
	}
	if doc.VoidThresholdMin != nil {
		cfg.Monitor.VoidThresholdMin = *doc.VoidThresholdMin
	}
	if doc.VoidThresholdMax != nil {
		cfg.Monitor.VoidThresholdMax = *doc.VoidThresholdMax
	}

	if doc.Lambda1Min != nil {
		cfg.Monitor.Params.Lambda1Min = *doc.Lambda1Min
	}
	if doc.Lambda1Max != nil {
		cfg.Monitor.Params.Lambda1Max = *doc.Lambda1Max
	}

	if doc.TargetCoherence != nil {
		cfg.Monitor.TargetCoherence = *doc.TargetCoherence
	}
	if doc.TargetVoidFreq != nil {
		cfg.Monitor.TargetVoidFreq = *doc.TargetVoidFreq
	}

	if doc.ConfidenceGateThreshold != nil {
		cfg.Monitor.ConfidenceGateThreshold = *doc.ConfidenceGateThreshold
	}

	if doc.StaleLockThresholdSeconds != nil {
		cfg.Lock.StaleLockThreshold = time.Duration(*doc.StaleLockThresholdSeconds) * time.Second
	}
	if doc.SessionIdleTimeoutSeconds != nil {
		cfg.Identity.SessionIdleTTL = time.Duration(*doc.SessionIdleTimeoutSeconds) * time.Second
	}

	if doc.DialecticMaxRounds != nil {
		cfg.Dialectic.MaxSynthesisRounds = *doc.DialecticMaxRounds
	}
	if doc.DialecticTimeoutSeconds != nil {
		cfg.Dialectic.Timeout = time.Duration(*doc.DialecticTimeoutSeconds) * time.Second
	}

	if doc.KnowledgeStoreRatePerHour != nil {
		cfg.KnowledgeStoreRatePerHour = *doc.KnowledgeStoreRatePerHour
	}
	if doc.HistoryBoundPerAgent != nil {
		cfg.Monitor.HistoryBound = *doc.HistoryBoundPerAgent
	}

	if doc.Server != nil {
		// ServerConfig is small enough that a zero-value-aware field merge
		// (rather than another explicit nil check) is worth exercising
		// mergo for, matching the teacher's own QueueConfig merge pattern.
		override := ServerConfig{}
		if doc.Server.ListenAddr != nil {
			override.ListenAddr = *doc.Server.ListenAddr
		}
		if err := mergo.Merge(&cfg.Server, override, mergo.WithOverride); err != nil {
			return fmt.Errorf("merging server config: %w", err)
		}
	}
	return nil
}
