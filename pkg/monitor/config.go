package monitor

import "github.com/cirwel/unitares-govcore/pkg/dynamics"

// Config bundles every tunable named in spec.md §6.4 that the monitor
// consults directly (dynamics coefficients live in dynamics.Params, loaded
// separately).
type Config struct {
	Params           dynamics.Params
	ObjectiveWeights dynamics.ObjectiveWeights

	ConfidenceGateThreshold float64

	// RiskApproveThreshold/RiskReviseThreshold are spec.md §6.4's overridable
	// Φ band boundaries, passed through to governance.Decide and used
	// locally for the unadjusted Metrics.Band shown to callers.
	RiskApproveThreshold float64
	RiskReviseThreshold  float64

	// CoherenceCriticalThreshold is spec.md §6.4's coherence_critical_threshold:
	// measured coherence below this forces a pause verdict regardless of Φ band,
	// except in the exploration phase, where the threshold is lowered by 0.1
	// (dynamics.CoherenceThresholdFor) and governance.Decide yields guide.
	CoherenceCriticalThreshold float64

	VoidThresholdInitial float64
	VoidThresholdMin     float64
	VoidThresholdMax     float64
	// VHard is the hard void-breach threshold used by the tie-break rule in
	// governance.Decide ("void_active ∧ |V| > V_hard"); taken as the upper
	// bound of the adaptive void-threshold band per spec.md line 85's
	// V_max_soft, not a separately configured constant.
	VHard float64

	BasinThreshold float64
	BasinMargin    float64

	SustainedLowBasinWindow int
	RecoveryThreshold       int

	HistoryBound int

	TargetCoherence float64
	TargetVoidFreq  float64
}

// DefaultConfig returns the documented defaults from spec.md §6.4.
func DefaultConfig() Config {
	return Config{
		Params:           dynamics.DefaultParams(),
		ObjectiveWeights: dynamics.DefaultObjectiveWeights(),

		ConfidenceGateThreshold: 0.80,

		RiskApproveThreshold: 0.15,
		RiskReviseThreshold:  0.0,

		CoherenceCriticalThreshold: 0.60,

		VoidThresholdInitial: 0.15,
		VoidThresholdMin:     0.10,
		VoidThresholdMax:     0.30,
		VHard:                0.30,

		BasinThreshold: 0.5,
		BasinMargin:    0.05,

		SustainedLowBasinWindow: 3,
		RecoveryThreshold:       5,

		HistoryBound: 1000,

		TargetCoherence: 0.85,
		TargetVoidFreq:  0.02,
	}
}
