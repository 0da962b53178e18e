package dispatch

import (
	"github.com/cirwel/unitares-govcore/pkg/governance"
	"github.com/cirwel/unitares-govcore/pkg/monitor"
)

// Envelope is the structured response every tool returns, per spec.md §6.1.
type Envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *EnvelopeError `json:"error,omitempty"`
}

// EnvelopeError is the failure half of the envelope.
type EnvelopeError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Recovery  string `json:"recovery,omitempty"`
}

// ResponseMode is the caller-selected verbosity level (spec.md §4.9 step 7).
type ResponseMode string

const (
	ModeAuto     ResponseMode = "auto"
	ModeMinimal  ResponseMode = "minimal"
	ModeCompact  ResponseMode = "compact"
	ModeStandard ResponseMode = "standard"
	ModeFull     ResponseMode = "full"
)

// resolveAutoMode picks a concrete mode for "auto" based on verdict severity.
func resolveAutoMode(verdict governance.Verdict) ResponseMode {
	switch verdict {
	case governance.VerdictProceed:
		return ModeMinimal
	case governance.VerdictGuide:
		return ModeCompact
	case governance.VerdictPause, governance.VerdictReject:
		return ModeStandard
	default:
		return ModeCompact
	}
}

// shapeMetrics trims a monitor.Metrics envelope down to the requested
// response mode. full returns everything unfiltered; each narrower mode is
// additive from minimal up, per spec.md §4.9.
func shapeMetrics(mode ResponseMode, m monitor.Metrics) map[string]any {
	if mode == ModeAuto || mode == "" {
		mode = resolveAutoMode(m.Verdict)
	}

	minimal := map[string]any{
		"verdict": string(m.Verdict),
		"state":   map[string]float64{"e": m.State.E, "i": m.State.I, "s": m.State.S, "v": m.State.V},
		"margin":  m.State.I - 0.5,
	}
	if mode == ModeMinimal {
		return minimal
	}

	compact := minimal
	compact["phi"] = m.Phi
	compact["phase"] = string(m.Phase)
	compact["basin"] = string(m.Basin)
	compact["coherence"] = m.Coherence
	if mode == ModeCompact {
		return compact
	}

	standard := compact
	if m.Verdict == governance.VerdictGuide {
		standard["guidance"] = m.GuidanceText
	}
	standard["void_active"] = m.VoidActive
	standard["update_count"] = m.UpdateCount
	if mode == ModeStandard {
		return standard
	}

	full := standard
	full["confidence_raw"] = m.ConfidenceRaw
	full["confidence_corrected"] = m.ConfidenceCorrected
	full["calibration_sufficient_sample"] = m.CalibrationSufficientSample
	full["lambda_skipped"] = m.LambdaSkipped
	full["consecutive_low_basin"] = m.ConsecutiveLowBasin
	full["consecutive_failures"] = m.ConsecutiveFailures
	if m.ParameterCoherence != nil {
		full["parameter_coherence"] = *m.ParameterCoherence
	}
	full["simulation"] = m.Simulation
	return full
}

func ok(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

func fail(code, message, recovery string) Envelope {
	return Envelope{Success: false, Error: &EnvelopeError{Code: code, Message: message, Recovery: recovery}}
}
