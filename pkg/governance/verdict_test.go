package governance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cirwel/unitares-govcore/pkg/dynamics"
)

func TestDecide_Proceed(t *testing.T) {
	v := Decide(Input{
		Phi:   0.2,
		Phase: dynamics.PhaseIntegration,
		Basin: dynamics.BasinHigh,
		State: dynamics.State{V: 0.05},
		VHard: 0.5,
		Tier:  TrustTier2,
	})
	assert.Equal(t, VerdictProceed, v)
}

func TestDecide_VoidActiveEscalatesToPause(t *testing.T) {
	v := Decide(Input{
		Phi:        0.2,
		Phase:      dynamics.PhaseIntegration,
		Basin:      dynamics.BasinHigh,
		State:      dynamics.State{V: 0.9},
		VoidActive: true,
		VHard:      0.5,
		Tier:       TrustTier2,
	})
	assert.Equal(t, VerdictPause, v)
}

func TestDecide_SustainedLowBasinPauses(t *testing.T) {
	v := Decide(Input{
		Phi:                 0.2,
		Basin:               dynamics.BasinLow,
		ConsecutiveLowBasin: 3,
		VHard:               0.5,
		Tier:                TrustTier2,
	})
	assert.Equal(t, VerdictPause, v)
}

func TestDecide_PauseEscalatesToReject(t *testing.T) {
	v := Decide(Input{
		Phi:                 -0.5,
		VHard:                0.5,
		ConsecutiveFailures:  5,
		RecoveryThreshold:    5,
		Tier:                 TrustTier2,
	})
	assert.Equal(t, VerdictReject, v)
}

func TestDecide_TrustTierAdjustment(t *testing.T) {
	// Phi 0.155 sits just above the safe boundary. The zero-value tier is
	// tier 0 (+5% risk): 0.155*0.95 ≈ 0.147 falls into caution -> guide.
	// Tier 3 (-5% risk): 0.155*1.05 ≈ 0.163 stays safe -> proceed.
	in := Input{Phi: 0.155, Basin: dynamics.BasinHigh, VHard: 0.5}
	tier0 := Decide(in)
	in.Tier = TrustTier3
	lenient := Decide(in)
	assert.Equal(t, VerdictGuide, tier0)
	assert.Equal(t, VerdictProceed, lenient)
}

func TestDecide_CoherenceCriticalEscalatesToPause(t *testing.T) {
	v := Decide(Input{
		Phi:               0.9,
		Basin:             dynamics.BasinHigh,
		State:             dynamics.State{V: 0.05},
		VHard:             0.5,
		Tier:              TrustTier2,
		CoherenceCritical: true,
	})
	assert.Equal(t, VerdictPause, v)
}

func TestDecide_CoherenceCriticalEscalatesToReject(t *testing.T) {
	v := Decide(Input{
		Phi:                 0.9,
		Basin:               dynamics.BasinHigh,
		VHard:               0.5,
		ConsecutiveFailures: 5,
		RecoveryThreshold:   5,
		CoherenceCritical:   true,
	})
	assert.Equal(t, VerdictReject, v)
}

func TestDominant(t *testing.T) {
	assert.Equal(t, MetricVoid, Dominant(dynamics.State{E: 0.75, I: 0.85, S: 0.2, V: 1.5}))
	assert.Equal(t, MetricEntropy, Dominant(dynamics.State{E: 0.75, I: 0.85, S: 1.8, V: 0.0}))
}
