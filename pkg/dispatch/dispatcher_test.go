package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cirwel/unitares-govcore/pkg/dynamics"
	"github.com/cirwel/unitares-govcore/pkg/governance"
	"github.com/cirwel/unitares-govcore/pkg/monitor"
)

func TestNormalizeArgs_Nil(t *testing.T) {
	out, err := normalizeArgs(nil)
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{}, out)
}

func TestNormalizeArgs_PassesMapThrough(t *testing.T) {
	in := map[string]any{"a": 1}
	out, err := normalizeArgs(in)
	assert.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestNormalizeArgs_ParsesJSONString(t *testing.T) {
	out, err := normalizeArgs(`{"a": 1, "b": "x"}`)
	assert.NoError(t, err)
	assert.Equal(t, float64(1), out["a"])
	assert.Equal(t, "x", out["b"])
}

func TestNormalizeArgs_EmptyStringIsEmptyMap(t *testing.T) {
	out, err := normalizeArgs("")
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{}, out)
}

func TestNormalizeArgs_RejectsMalformedJSON(t *testing.T) {
	_, err := normalizeArgs(`{not json`)
	assert.Error(t, err)
}

func TestNormalizeArgs_RejectsUnsupportedType(t *testing.T) {
	_, err := normalizeArgs(42)
	assert.Error(t, err)
}

func TestTierSatisfies(t *testing.T) {
	assert.True(t, tierSatisfies("identity", governance.TrustTier0))
	assert.False(t, tierSatisfies("tier2", governance.TrustTier1))
	assert.True(t, tierSatisfies("tier2", governance.TrustTier2))
	assert.True(t, tierSatisfies("tier3", governance.TrustTier3))
	assert.False(t, tierSatisfies("tier3", governance.TrustTier2))
	assert.True(t, tierSatisfies("", governance.TrustTier0))
}

func TestResolveAutoMode(t *testing.T) {
	assert.Equal(t, ModeMinimal, resolveAutoMode(governance.VerdictProceed))
	assert.Equal(t, ModeCompact, resolveAutoMode(governance.VerdictGuide))
	assert.Equal(t, ModeStandard, resolveAutoMode(governance.VerdictPause))
	assert.Equal(t, ModeStandard, resolveAutoMode(governance.VerdictReject))
}

func TestShapeMetrics_MinimalOmitsDeeperFields(t *testing.T) {
	m := monitor.Metrics{
		Verdict: governance.VerdictProceed,
		State:   dynamics.State{E: 1, I: 0.8, S: 0.1, V: 0},
		Phi:     0.5,
	}
	out := shapeMetrics(ModeMinimal, m)
	assert.Contains(t, out, "verdict")
	assert.Contains(t, out, "margin")
	assert.NotContains(t, out, "phi")
	assert.NotContains(t, out, "confidence_raw")
}

func TestShapeMetrics_FullIncludesEverything(t *testing.T) {
	pc := 0.9
	m := monitor.Metrics{
		Verdict:             governance.VerdictGuide,
		State:               dynamics.State{E: 1, I: 0.6, S: 0.2, V: 0},
		Phase:               dynamics.PhaseIntegration,
		Basin:               dynamics.BasinHigh,
		GuidanceText:        "slow down",
		ConfidenceRaw:       0.7,
		ConfidenceCorrected: 0.65,
		ParameterCoherence:  &pc,
	}
	out := shapeMetrics(ModeFull, m)
	assert.Equal(t, "slow down", out["guidance"])
	assert.Equal(t, 0.65, out["confidence_corrected"])
	assert.Equal(t, 0.9, out["parameter_coherence"])
}

func TestShapeMetrics_AutoPicksModeFromVerdict(t *testing.T) {
	m := monitor.Metrics{Verdict: governance.VerdictReject}
	out := shapeMetrics(ModeAuto, m)
	assert.Contains(t, out, "void_active")
	assert.NotContains(t, out, "confidence_raw")
}
