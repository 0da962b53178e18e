package dynamics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// P1: for in-range inputs, one step yields bounded, finite output.
func TestStep_BoundsHold(t *testing.T) {
	p := DefaultParams()
	theta := DefaultTheta()

	cases := []State{
		DefaultState(),
		{E: 0, I: 0, S: 1e-3, V: -2},
		{E: 1, I: 1, S: 2, V: 2},
		{E: 0.5, I: 0.5, S: 1, V: 0},
	}

	for _, st := range cases {
		res := Step(st, theta, p, EthicalDrift{0.1, 0.1, 0.1}, 0.5, p.DT)
		assert.GreaterOrEqual(t, res.State.E, EMin)
		assert.LessOrEqual(t, res.State.E, EMax)
		assert.GreaterOrEqual(t, res.State.I, IMin)
		assert.LessOrEqual(t, res.State.I, IMax)
		assert.GreaterOrEqual(t, res.State.S, SMin)
		assert.LessOrEqual(t, res.State.S, SMax)
		assert.GreaterOrEqual(t, res.State.V, VMin)
		assert.LessOrEqual(t, res.State.V, VMax)
		require.False(t, math.IsNaN(res.State.E) || math.IsInf(res.State.E, 0))
	}
}

// P2: holding (I,V) fixed and setting E=0, dE/dt must equal
// alpha*I + gammaE*||drift||^2 — the beta_E*E*S term must vanish because E=0,
// not because the term was mis-coded as beta_E*S alone.
func TestDerive_ECrossCoupling(t *testing.T) {
	p := DefaultParams()
	theta := DefaultTheta()
	drift := EthicalDrift{0.2, 0.0, 0.0}

	st := State{E: 0, I: 0.6, S: 1.5, V: 0.1}
	d := Derive(st, theta, p, drift, 0.3)

	want := p.Alpha*st.I + p.GammaE*drift.SquaredNorm()
	assert.InDelta(t, want, d.DE, 1e-9)

	// Sanity: if E is nonzero, the S term must actually scale with E.
	st2 := st
	st2.E = 0.5
	d2 := Derive(st2, theta, p, drift, 0.3)
	expectedDelta := p.Alpha*(st2.I-st2.E) - p.BetaE*st2.E*st2.S + p.GammaE*drift.SquaredNorm()
	assert.InDelta(t, expectedDelta, d2.DE, 1e-9)
	assert.NotEqual(t, d.DE, d2.DE)
}

// P3: coherence(V=0) == C_max/2 exactly.
func TestCoherence_AtZero(t *testing.T) {
	p := DefaultParams()
	theta := DefaultTheta()
	assert.Equal(t, p.CMax/2, Coherence(0, theta, p))
}

// P4: lambda1 clamping at the eta1 extremes.
func TestLambda1_Clamping(t *testing.T) {
	p := DefaultParams()

	low := Theta{Eta1: 0.05}
	assert.Equal(t, p.Lambda1Min, lambda1(low, p))

	high := Theta{Eta1: 0.7}
	assert.Equal(t, p.Lambda1Max, lambda1(high, p))
}

func TestBandFor(t *testing.T) {
	assert.Equal(t, BandSafe, BandFor(0.15))
	assert.Equal(t, BandSafe, BandFor(0.5))
	assert.Equal(t, BandCaution, BandFor(0.0))
	assert.Equal(t, BandCaution, BandFor(0.1))
	assert.Equal(t, BandHighRisk, BandFor(-0.01))
}

func TestBandForThresholds(t *testing.T) {
	assert.Equal(t, BandSafe, BandForThresholds(0.20, 0.15, 0.0))
	assert.Equal(t, BandCaution, BandForThresholds(0.05, 0.15, 0.0))
	assert.Equal(t, BandHighRisk, BandForThresholds(-0.1, 0.15, 0.0))
	assert.Equal(t, BandFor(0.2), BandForThresholds(0.2, 0.15, 0.0))
}

func TestCheckBasin(t *testing.T) {
	assert.Equal(t, BasinHigh, CheckBasin(State{I: 0.91}, 0.5, 0.05))
	assert.Equal(t, BasinLow, CheckBasin(State{I: 0.09}, 0.5, 0.05))
	assert.Equal(t, BasinBoundary, CheckBasin(State{I: 0.5}, 0.5, 0.05))
}

func TestDetectPhase_DefaultsToIntegration(t *testing.T) {
	assert.Equal(t, PhaseIntegration, DetectPhase(nil))
	assert.Equal(t, PhaseIntegration, DetectPhase(make([]Sample, WindowSize)))
}

func TestDetectPhase_ExplorationWindow(t *testing.T) {
	history := make([]Sample, 0, WindowSize+1)
	for i := 0; i <= WindowSize; i++ {
		history = append(history, Sample{
			I:          0.3 + float64(i)*0.05,
			S:          1.0 - float64(i)*0.05,
			Complexity: 0.8,
		})
	}
	assert.Equal(t, PhaseExploration, DetectPhase(history))
}
