package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the loaded configuration with go-playground/validator
// struct tags (pkg/dispatch uses the same package for tool-argument
// validation; the teacher's own hand-rolled field-by-field checks are
// replaced here rather than carried forward).
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	if cfg.Monitor.RiskApproveThreshold < cfg.Monitor.RiskReviseThreshold {
		return fmt.Errorf("%w: risk_approve_threshold must be >= risk_revise_threshold", ErrValidationFailed)
	}
	if cfg.Monitor.VoidThresholdMin > cfg.Monitor.VoidThresholdMax {
		return fmt.Errorf("%w: void_threshold_min must be <= void_threshold_max", ErrValidationFailed)
	}
	if cfg.Dialectic.MaxSynthesisRounds < 1 {
		return fmt.Errorf("%w: dialectic_max_rounds must be >= 1", ErrValidationFailed)
	}
	if cfg.KnowledgeStoreRatePerHour < 1 {
		return fmt.Errorf("%w: knowledge_store_rate_per_hour must be >= 1", ErrValidationFailed)
	}

	return nil
}
