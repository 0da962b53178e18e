package monitor

import (
	"github.com/cirwel/unitares-govcore/pkg/dynamics"
	"github.com/cirwel/unitares-govcore/pkg/governance"
)

// Report is the agent-supplied checkin payload (spec.md §4.2, tool
// `process_agent_update`/`checkin`).
type Report struct {
	Complexity float64
	Confidence float64

	// ResponseText is opaque to the core: carried through into the audit
	// event payload only.
	ResponseText string

	// Parameters is an optional agent-reported fingerprint, compared
	// against the prior fingerprint via dynamics.ParameterCoherence for
	// telemetry only (never fed back into the ODEs).
	Parameters []float64

	// EthicalDrift is the 3-vector ‖Δη‖² source; nil means "derive from
	// the agent's EMA baseline" (see Monitor.ethicalDrift).
	EthicalDrift dynamics.EthicalDrift
}

// Metrics is the envelope returned by ProcessUpdate/Simulate/Snapshot.
type Metrics struct {
	IdentityID string

	State dynamics.State
	Theta dynamics.Theta

	Phi   float64
	Band  dynamics.Band
	Phase dynamics.Phase
	Basin dynamics.Basin

	Coherence  float64
	VoidActive bool

	ConfidenceRaw               float64
	ConfidenceCorrected         float64
	CalibrationSufficientSample bool

	ParameterCoherence *float64

	Verdict      governance.Verdict
	GuidanceText string

	UpdateCount         int
	ConsecutiveLowBasin int
	ConsecutiveFailures int

	LambdaSkipped bool

	// CoherenceCritical mirrors governance.Input.CoherenceCritical: measured
	// coherence fell below Config.CoherenceCriticalThreshold this cycle.
	CoherenceCritical bool

	// Simulation is true for Simulate() results: no state was persisted,
	// no counters incremented (P11).
	Simulation bool
}
