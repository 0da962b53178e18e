// Package monitor implements the per-agent stateful wrapper around
// pkg/dynamics described in spec.md §4.2: one instance's worth of behavior
// per identity_id, loaded on first access and persisted on meaningful
// change. Mutual exclusion across concurrent process_update calls for the
// same identity is the caller's responsibility (pkg/lockmgr) — P7's
// "enforced externally by lock" — but Monitor also keeps a defense-in-depth
// per-identity mutex, the same belt-and-suspenders style as the teacher's
// ConnectionManager in pkg/events/manager.go.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cirwel/unitares-govcore/pkg/calibration"
	"github.com/cirwel/unitares-govcore/pkg/dynamics"
	"github.com/cirwel/unitares-govcore/pkg/events"
	"github.com/cirwel/unitares-govcore/pkg/governance"
	"github.com/cirwel/unitares-govcore/pkg/store"
)

// ephemeral holds per-identity working state that is not part of the
// durable snapshot: the phase-detection window and the PI-controller's
// inter-cycle accumulator. Losing this on restart only costs a few cycles
// of phase detection defaulting to "integration" (the spec's own fallback)
// and one skipped controller tuning window — never a correctness issue.
type ephemeral struct {
	phaseWindow     []dynamics.Sample
	driftBaseline   dynamics.EthicalDrift
	controller      *dynamics.PIController
	coherenceAccum  float64
	voidEventAccum  float64
	includedCycles  int
	lastParameters  []float64
}

// Monitor is the per-process owner of every identity's in-flight EISV
// state. A single Monitor instance is shared across all identities; it
// is not itself "the agent" — that's what identity_id keys into.
type Monitor struct {
	states *store.AgentStateRepo
	audit  *store.AuditRepo
	calib  *store.CalibrationRepo
	events *events.EventPublisher // optional, nil degrades to no WS broadcast

	cfg Config
	log *slog.Logger

	mu    sync.Mutex // guards the ephemeral map only
	ephem map[string]*ephemeral

	locks   sync.Map // identityID -> *sync.Mutex, the defense-in-depth lock
}

// New builds a Monitor over the given repositories.
func New(states *store.AgentStateRepo, audit *store.AuditRepo, calib *store.CalibrationRepo, cfg Config, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		states: states,
		audit:  audit,
		calib:  calib,
		cfg:    cfg,
		log:    log,
		ephem:  make(map[string]*ephemeral),
	}
}

// SetEventPublisher attaches the NOTIFY broadcaster for live audit events,
// the same post-construction wiring style as the teacher's
// server.SetEventPublisher. Safe to leave unset in tests.
func (m *Monitor) SetEventPublisher(p *events.EventPublisher) {
	m.events = p
}

func (m *Monitor) identityLock(identityID string) *sync.Mutex {
	v, _ := m.locks.LoadOrStore(identityID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (m *Monitor) ephemFor(identityID string) *ephemeral {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.ephem[identityID]
	if !ok {
		e = &ephemeral{
			driftBaseline: make(dynamics.EthicalDrift, 3),
			controller:    dynamics.NewPIController(m.cfg.TargetCoherence, m.cfg.TargetVoidFreq),
		}
		m.ephem[identityID] = e
	}
	return e
}

// snapshotFromStore loads the durable state, or synthesizes the default
// initial snapshot for an identity that has never checked in.
func (m *Monitor) snapshotFromStore(ctx context.Context, identityID string) (*store.AgentState, error) {
	st, err := m.states.Get(ctx, identityID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	d := dynamics.DefaultState()
	theta := dynamics.DefaultTheta()
	return &store.AgentState{
		IdentityID: identityID,
		E:          d.E, I: d.I, S: d.S, V: d.V,
		ThetaC1:   theta.C1,
		ThetaEta1: theta.Eta1,
		Phase:     string(dynamics.PhaseIntegration),
		RecordedAt: time.Time{},
	}, nil
}

// ethicalDrift resolves the report's drift vector, falling back to the
// agent's EMA baseline when absent, and updating that baseline when a
// fresh measurement is supplied (alpha=0.3, a conventional EMA smoothing
// constant — not spec-mandated, recorded as a DESIGN.md decision).
func (m *Monitor) ethicalDrift(e *ephemeral, report Report) dynamics.EthicalDrift {
	const emaAlpha = 0.3
	if report.EthicalDrift == nil {
		return append(dynamics.EthicalDrift(nil), e.driftBaseline...)
	}
	if len(e.driftBaseline) != len(report.EthicalDrift) {
		e.driftBaseline = make(dynamics.EthicalDrift, len(report.EthicalDrift))
	}
	for i, v := range report.EthicalDrift {
		e.driftBaseline[i] = emaAlpha*v + (1-emaAlpha)*e.driftBaseline[i]
	}
	return report.EthicalDrift
}

// clipReport validates and clips report inputs per spec.md §4.2: "Validates
// inputs; clips to ranges; rejects NaN/Inf" (NaN/Inf are replaced with the
// clip-range midpoint rather than causing an error return, consistent with
// dynamics.Step's own non-panicking sanitize behavior).
func clipReport(r Report) Report {
	fix := func(x, lo, hi, mid float64) float64 {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return mid
		}
		if x < lo {
			return lo
		}
		if x > hi {
			return hi
		}
		return x
	}
	r.Complexity = fix(r.Complexity, 0, 1, 0.5)
	r.Confidence = fix(r.Confidence, 0, 1, 0.5)
	return r
}

// compute runs the pure side of one checkin: dynamics step, Φ, band, phase,
// basin, calibration correction, and verdict — shared by ProcessUpdate and
// Simulate so the two can never drift apart (P11).
func (m *Monitor) compute(ctx context.Context, identityID string, snap *store.AgentState, e *ephemeral, report Report, tier governance.TrustTier) (Metrics, dynamics.State, string, error) {
	report = clipReport(report)

	theta := dynamics.Theta{C1: snap.ThetaC1, Eta1: snap.ThetaEta1}
	current := dynamics.State{E: snap.E, I: snap.I, S: snap.S, V: snap.V}
	drift := m.ethicalDrift(e, report)

	binIdx := calibration.BinIndex(report.Confidence)
	bin, err := m.calib.Get(ctx, identityID, binIdx)
	if err != nil {
		return Metrics{}, dynamics.State{}, "", fmt.Errorf("loading calibration bin: %w", err)
	}
	corrected, sufficient := calibration.CorrectBin(report.Confidence, calibration.Bin{
		Count: bin.Count, PredictedCorrect: bin.PredictedCorrect, ActualCorrect: bin.ActualCorrect,
	})

	// §4.2: corrected confidence feeds the I-dynamics via β_I scaling — the
	// per-call params copy couples this checkin's I-update at the corrected
	// value, not the raw reported confidence.
	stepParams := m.cfg.Params
	stepParams.BetaI *= corrected

	step := dynamics.Step(current, theta, stepParams, drift, report.Complexity, stepParams.DT)
	if step.Jumped {
		m.log.Warn("dynamics jump exceeded threshold", "identity_id", identityID, "dim", step.JumpDim)
	}
	newState := step.State

	coherence := dynamics.Coherence(newState.V, theta, m.cfg.Params)
	phi := dynamics.Objective(newState, drift, m.cfg.ObjectiveWeights)
	band := dynamics.BandForThresholds(phi, m.cfg.RiskApproveThreshold, m.cfg.RiskReviseThreshold)

	e.phaseWindow = append(e.phaseWindow, dynamics.Sample{I: newState.I, S: newState.S, Complexity: report.Complexity})
	if len(e.phaseWindow) > dynamics.WindowSize+1 {
		e.phaseWindow = e.phaseWindow[len(e.phaseWindow)-(dynamics.WindowSize+1):]
	}
	phase := dynamics.DetectPhase(e.phaseWindow)

	basin := dynamics.CheckBasin(newState, m.cfg.BasinThreshold, m.cfg.BasinMargin)
	voidActive := math.Abs(newState.V) > m.cfg.VoidThresholdInitial

	consecutiveLowBasin := snap.ConsecutiveLowBasin
	if basin == dynamics.BasinLow {
		consecutiveLowBasin++
	} else {
		consecutiveLowBasin = 0
	}

	lambdaSkipped := corrected < m.cfg.ConfidenceGateThreshold
	// §4.1.7: exploration phase lowers the coherence-critical threshold by
	// 0.1 relative to integration (more forgiving of dipping coherence while
	// exploring).
	criticalThreshold := dynamics.CoherenceThresholdFor(phase, m.cfg.CoherenceCriticalThreshold)
	coherenceCritical := coherence < criticalThreshold

	verdict := governance.Decide(governance.Input{
		Phi:                  phi,
		Phase:                phase,
		Basin:                basin,
		VoidActive:           voidActive,
		VHard:                m.cfg.VHard,
		State:                newState,
		ConsecutiveLowBasin:  consecutiveLowBasin,
		ConsecutiveFailures:  snap.ConsecutiveFailures,
		RecoveryThreshold:    m.cfg.RecoveryThreshold,
		Tier:                 tier,
		RiskApproveThreshold: m.cfg.RiskApproveThreshold,
		RiskReviseThreshold:  m.cfg.RiskReviseThreshold,
		CoherenceCritical:    coherenceCritical,
	})

	consecutiveFailures := snap.ConsecutiveFailures
	switch {
	case verdict == governance.VerdictPause || verdict == governance.VerdictReject:
		consecutiveFailures++
	default:
		consecutiveFailures = 0
	}

	var guidance string
	if verdict == governance.VerdictGuide {
		guidance = governance.GuidanceText(newState, phase)
	}

	var paramCoherence *float64
	if report.Parameters != nil && e.lastParameters != nil {
		pc := dynamics.ParameterCoherence(deltaOf(e.lastParameters, report.Parameters), 1.0)
		paramCoherence = &pc
	}
	if report.Parameters != nil {
		e.lastParameters = report.Parameters
	}

	metrics := Metrics{
		IdentityID:                  identityID,
		State:                       newState,
		Theta:                       theta,
		Phi:                         phi,
		Band:                        band,
		Phase:                       phase,
		Basin:                       basin,
		Coherence:                   coherence,
		VoidActive:                  voidActive,
		ConfidenceRaw:               report.Confidence,
		ConfidenceCorrected:         corrected,
		CalibrationSufficientSample: sufficient,
		ParameterCoherence:          paramCoherence,
		Verdict:                     verdict,
		GuidanceText:                guidance,
		ConsecutiveLowBasin:         consecutiveLowBasin,
		ConsecutiveFailures:         consecutiveFailures,
		LambdaSkipped:               lambdaSkipped,
		CoherenceCritical:           coherenceCritical,
	}

	decisionPayload := fmt.Sprintf("%s", verdict)
	return metrics, newState, decisionPayload, nil
}

func deltaOf(prev, cur []float64) []float64 {
	n := len(prev)
	if len(cur) < n {
		n = len(cur)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = cur[i] - prev[i]
	}
	return out
}

// tuneTheta runs the PI controller every ControlInterval updates over the
// cycles that passed the confidence gate, and returns the (possibly
// unchanged) theta. The integral term stays in e.controller and is read
// from there when the snapshot is saved.
func (m *Monitor) tuneTheta(e *ephemeral, theta dynamics.Theta, updateCount int, voidActive, lambdaSkipped bool, coherence float64) dynamics.Theta {
	if !lambdaSkipped {
		e.coherenceAccum += coherence
		if voidActive {
			e.voidEventAccum++
		}
		e.includedCycles++
	}
	if updateCount%dynamics.ControlInterval != 0 || e.includedCycles == 0 {
		return theta
	}
	measuredCoherence := e.coherenceAccum / float64(e.includedCycles)
	measuredVoidFreq := e.voidEventAccum / float64(e.includedCycles)
	e.controller.SetIntegral(e.controller.Integral())
	newTheta := e.controller.Tune(theta, measuredCoherence, measuredVoidFreq, m.cfg.Params)
	e.coherenceAccum, e.voidEventAccum, e.includedCycles = 0, 0, 0
	return newTheta
}

// ProcessUpdate is the durable checkin path: spec.md §4.2's process_update.
func (m *Monitor) ProcessUpdate(ctx context.Context, identityID string, report Report, tier governance.TrustTier) (Metrics, error) {
	lock := m.identityLock(identityID)
	lock.Lock()
	defer lock.Unlock()

	e := m.ephemFor(identityID)
	snap, err := m.snapshotFromStore(ctx, identityID)
	if err != nil {
		return Metrics{}, fmt.Errorf("loading agent state: %w", err)
	}

	metrics, newState, decision, err := m.compute(ctx, identityID, snap, e, report, tier)
	if err != nil {
		return Metrics{}, err
	}

	newTheta := m.tuneTheta(e, metrics.Theta, snap.UpdateCount+1, metrics.VoidActive, metrics.LambdaSkipped, metrics.Coherence)

	now := time.Now()
	updated := &store.AgentState{
		IdentityID:          identityID,
		E:                    newState.E,
		I:                    newState.I,
		S:                    newState.S,
		V:                    newState.V,
		ThetaC1:              newTheta.C1,
		ThetaEta1:            newTheta.Eta1,
		ControllerIntegral:   e.controller.Integral(),
		RecordedAt:           now,
		UpdateCount:          snap.UpdateCount + 1,
		LastVerdict:          strPtr(string(metrics.Verdict)),
		Phase:                string(metrics.Phase),
		ConsecutiveLowBasin:  metrics.ConsecutiveLowBasin,
		ConsecutiveFailures:  metrics.ConsecutiveFailures,
	}
	metrics.UpdateCount = updated.UpdateCount

	hist := store.HistoryPoint{
		Seq:        updated.UpdateCount,
		RecordedAt: now,
		V:          newState.V,
		Coherence:  metrics.Coherence,
		Risk:       metrics.Phi,
		Decision:   decision,
	}

	if err := m.states.CommitUpdate(ctx, updated, hist, m.cfg.HistoryBound); err != nil {
		return Metrics{}, fmt.Errorf("committing agent state: %w", err)
	}

	predictedCorrect := report.Confidence >= 0.5
	if err := m.calib.RecordPrediction(ctx, identityID, calibration.BinIndex(report.Confidence), boolToInt(predictedCorrect)); err != nil {
		m.log.Warn("calibration record failed", "identity_id", identityID, "error", err)
	}

	m.emitAudit(ctx, identityID, "agent.process_update", map[string]any{
		"verdict":              string(metrics.Verdict),
		"phi":                  metrics.Phi,
		"phase":                string(metrics.Phase),
		"basin":                string(metrics.Basin),
		"void_active":          metrics.VoidActive,
		"lambda_skipped":       metrics.LambdaSkipped,
		"coherence_critical":   metrics.CoherenceCritical,
		"update_count":         metrics.UpdateCount,
		"response_text_len":    len(report.ResponseText),
		"confidence":           metrics.ConfidenceRaw,
		"confidence_corrected": metrics.ConfidenceCorrected,
	})

	return metrics, nil
}

// Simulate is the pure path: spec.md §4.2's simulate. It runs the same
// compute() as ProcessUpdate but never persists or increments counters, and
// never mutates the ephemeral phase window/controller accumulator (P11's
// byte-identical get_metrics guarantee) — it operates against throwaway
// copies instead.
func (m *Monitor) Simulate(ctx context.Context, identityID string, report Report, tier governance.TrustTier) (Metrics, error) {
	lock := m.identityLock(identityID)
	lock.Lock()
	defer lock.Unlock()

	snap, err := m.snapshotFromStore(ctx, identityID)
	if err != nil {
		return Metrics{}, fmt.Errorf("loading agent state: %w", err)
	}

	live := m.ephemFor(identityID)
	scratch := &ephemeral{
		phaseWindow:    append([]dynamics.Sample(nil), live.phaseWindow...),
		driftBaseline:  append(dynamics.EthicalDrift(nil), live.driftBaseline...),
		controller:     dynamics.NewPIController(m.cfg.TargetCoherence, m.cfg.TargetVoidFreq),
		lastParameters: live.lastParameters,
	}
	scratch.controller.SetIntegral(live.controller.Integral())

	metrics, _, _, err := m.compute(ctx, identityID, snap, scratch, report, tier)
	if err != nil {
		return Metrics{}, err
	}
	metrics.UpdateCount = snap.UpdateCount
	metrics.Simulation = true
	return metrics, nil
}

// Reset re-initializes an identity to its default state. Prior history
// rows are left in place (spec.md's "archive previous history" is
// satisfied by the bounded-history trim treating them as ordinary aged-out
// rows rather than a special archival table).
func (m *Monitor) Reset(ctx context.Context, identityID string) error {
	lock := m.identityLock(identityID)
	lock.Lock()
	defer lock.Unlock()

	d := dynamics.DefaultState()
	theta := dynamics.DefaultTheta()
	reset := &store.AgentState{
		IdentityID: identityID,
		E: d.E, I: d.I, S: d.S, V: d.V,
		ThetaC1: theta.C1, ThetaEta1: theta.Eta1,
		RecordedAt: time.Now(),
		Phase:      string(dynamics.PhaseIntegration),
	}
	if err := m.states.Reset(ctx, reset); err != nil {
		return fmt.Errorf("resetting agent state: %w", err)
	}

	m.mu.Lock()
	delete(m.ephem, identityID)
	m.mu.Unlock()

	m.emitAudit(ctx, identityID, "agent.reset", nil)
	return nil
}

// Snapshot is the read-only get_metrics view.
func (m *Monitor) Snapshot(ctx context.Context, identityID string) (Metrics, error) {
	snap, err := m.snapshotFromStore(ctx, identityID)
	if err != nil {
		return Metrics{}, fmt.Errorf("loading agent state: %w", err)
	}
	e := m.ephemFor(identityID)
	theta := dynamics.Theta{C1: snap.ThetaC1, Eta1: snap.ThetaEta1}
	st := dynamics.State{E: snap.E, I: snap.I, S: snap.S, V: snap.V}
	coherence := dynamics.Coherence(st.V, theta, m.cfg.Params)
	phase := dynamics.DetectPhase(e.phaseWindow)
	basin := dynamics.CheckBasin(st, m.cfg.BasinThreshold, m.cfg.BasinMargin)
	return Metrics{
		IdentityID:          identityID,
		State:               st,
		Theta:               theta,
		Coherence:           coherence,
		Phase:               phase,
		Basin:               basin,
		VoidActive:          math.Abs(st.V) > m.cfg.VoidThresholdInitial,
		UpdateCount:         snap.UpdateCount,
		ConsecutiveLowBasin: snap.ConsecutiveLowBasin,
		ConsecutiveFailures: snap.ConsecutiveFailures,
	}, nil
}

func (m *Monitor) emitAudit(ctx context.Context, identityID, eventType string, payload map[string]any) {
	id := identityID
	eventID := uuid.NewString()
	if err := m.audit.Append(ctx, &store.AuditEvent{
		ID:         eventID,
		IdentityID: &id,
		EventType:  eventType,
		Payload:    payload,
		CreatedAt:  time.Now(),
	}); err != nil {
		// Audit failures must never block the primary operation (spec.md
		// §7's error-handling design: secondary effects log-and-continue).
		m.log.Warn("audit append failed", "identity_id", identityID, "event_type", eventType, "error", err)
		return
	}
	if m.events == nil {
		return
	}
	if err := m.events.Notify(ctx, eventID, &id, eventType, payload); err != nil {
		m.log.Warn("audit notify failed", "identity_id", identityID, "event_type", eventType, "error", err)
	}
}

func strPtr(s string) *string { return &s }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
