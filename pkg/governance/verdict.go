// Package governance maps dynamics-kernel output to a governance verdict:
// proceed, guide, pause, or reject, per spec.md §4.3. This is a pure
// decision table over already-computed quantities (Φ band, phase, basin,
// void-active flag) — no I/O, no library concern, same shape as the
// teacher's pkg/config validation logic (explicit branches, no generic
// rules engine).
package governance

import (
	"github.com/cirwel/unitares-govcore/pkg/dynamics"
)

// Verdict is the governance decision returned to the dispatcher.
type Verdict string

const (
	VerdictProceed Verdict = "proceed"
	VerdictGuide   Verdict = "guide"
	VerdictPause   Verdict = "pause"
	VerdictReject  Verdict = "reject"
)

// TrustTier is the 0-3 behavioral-consistency rating of an identity.
type TrustTier int

const (
	TrustTier0 TrustTier = 0
	TrustTier1 TrustTier = 1
	TrustTier2 TrustTier = 2
	TrustTier3 TrustTier = 3
)

// RiskAdjustment returns the fractional adjustment applied to Φ before
// banding: tier 3 gets -5%, tiers 0-1 get +5%, tier 2 is neutral.
func (t TrustTier) RiskAdjustment() float64 {
	switch t {
	case TrustTier3:
		return -0.05
	case TrustTier0, TrustTier1:
		return 0.05
	default:
		return 0.0
	}
}

// Input bundles everything the decision table needs.
type Input struct {
	Phi               float64
	Phase             dynamics.Phase
	Basin             dynamics.Basin
	VoidActive        bool
	VHard             float64
	State              dynamics.State
	ConsecutiveLowBasin int  // count of consecutive updates with basin=low
	ConsecutiveFailures int // count of consecutive updates that failed to recover from pause
	RecoveryThreshold   int // threshold window for escalating pause -> reject
	Tier              TrustTier

	// RiskApproveThreshold/RiskReviseThreshold override the Φ band
	// boundaries (spec.md §6.4's risk_approve_threshold/risk_revise_threshold).
	// Left at the zero value, Decide falls back to dynamics.BandFor's
	// spec.md §4.1.6 literal thresholds (0.15, 0.0).
	RiskApproveThreshold float64
	RiskReviseThreshold  float64

	// CoherenceCritical is set by the caller when measured coherence has
	// dropped below spec.md §6.4's coherence_critical_threshold. Outside the
	// exploration phase it forces at least a pause regardless of Φ band; in
	// the exploration phase it yields guide.
	CoherenceCritical bool
}

// Decide applies the risk adjustment, bands the adjusted Φ, and resolves
// ties per spec.md §4.3's tie-break rules.
func Decide(in Input) Verdict {
	adjustedPhi := in.Phi * (1 - in.Tier.RiskAdjustment())
	var band dynamics.Band
	if in.RiskApproveThreshold == 0 && in.RiskReviseThreshold == 0 {
		band = dynamics.BandFor(adjustedPhi)
	} else {
		band = dynamics.BandForThresholds(adjustedPhi, in.RiskApproveThreshold, in.RiskReviseThreshold)
	}

	voidHard := in.VoidActive && absf(in.State.V) > in.VHard
	sustainedLowBasin := in.Basin == dynamics.BasinLow && in.ConsecutiveLowBasin >= 3

	switch {
	case voidHard:
		// A hard void breach (void_active with |V| > VHard) escalates at
		// least to pause, regardless of band or phase.
		if in.RecoveryThreshold > 0 && in.ConsecutiveFailures >= in.RecoveryThreshold {
			return VerdictReject
		}
		return VerdictPause

	case in.CoherenceCritical:
		if in.Phase == dynamics.PhaseExploration {
			// Tie-break: in exploration phase, guide is preferred over pause
			// for borderline (critical-but-not-void) coherence.
			return VerdictGuide
		}
		if in.RecoveryThreshold > 0 && in.ConsecutiveFailures >= in.RecoveryThreshold {
			return VerdictReject
		}
		return VerdictPause

	case band == dynamics.BandHighRisk || sustainedLowBasin:
		if in.RecoveryThreshold > 0 && in.ConsecutiveFailures >= in.RecoveryThreshold {
			return VerdictReject
		}
		return VerdictPause

	case band == dynamics.BandCaution || in.Basin == dynamics.BasinBoundary:
		return VerdictGuide

	case band == dynamics.BandSafe && in.Basin == dynamics.BasinHigh && !in.VoidActive:
		return VerdictProceed

	default:
		// Safe band but basin not high, or void_active set without hard
		// breach: conservative fallback to guide rather than a silent proceed.
		return VerdictGuide
	}
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
