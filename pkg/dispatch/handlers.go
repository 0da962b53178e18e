package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/cirwel/unitares-govcore/pkg/calibration"
	"github.com/cirwel/unitares-govcore/pkg/dialectic"
	"github.com/cirwel/unitares-govcore/pkg/dynamics"
	"github.com/cirwel/unitares-govcore/pkg/governance"
	"github.com/cirwel/unitares-govcore/pkg/identity"
	"github.com/cirwel/unitares-govcore/pkg/knowledge"
	"github.com/cirwel/unitares-govcore/pkg/monitor"
	"github.com/cirwel/unitares-govcore/pkg/notify"
)

var validate = validator.New()

// decodeArgs JSON-round-trips the dispatcher's map[string]any into dst and
// validates it against dst's struct tags — the idiomatic go-playground
// replacement for hand-rolled per-field checks.
func decodeArgs(args map[string]any, dst any) error {
	b, err := json.Marshal(args)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decoding arguments: %w", err)
	}
	return validate.Struct(dst)
}

// buildRegistry is the sole place tool names are bound to handlers —
// spec.md §9.1's "compile-time registry... no reflection at dispatch time".
// Consolidated action-style tools (knowledge, calibration) fold several
// named operations into one entry each. The registry holds only the tools
// added below: there is no dialectic action tool, no observe tool, and no
// export or verify_trajectory_identity entry.
func buildRegistry() map[string]toolSpec {
	reg := map[string]toolSpec{}
	add := func(s toolSpec) { reg[s.name] = s }

	add(toolSpec{name: "onboard", mutates: true, timeout: defaultWriteTimeout, requires: "", handler: handleOnboard})
	add(toolSpec{name: "identity", mutates: true, timeout: defaultWriteTimeout, requires: "identity", handler: handleIdentity})
	add(toolSpec{name: "checkin", mutates: true, timeout: defaultWriteTimeout, requires: "identity", handler: handleCheckin})
	add(toolSpec{name: "process_agent_update", mutates: true, timeout: defaultWriteTimeout, requires: "identity", handler: handleCheckin})
	add(toolSpec{name: "status", mutates: false, timeout: defaultReadTimeout, requires: "identity", handler: handleStatus})
	add(toolSpec{name: "simulate_update", mutates: false, timeout: defaultReadTimeout, requires: "identity", handler: handleSimulate})
	add(toolSpec{name: "get_thresholds", mutates: false, timeout: defaultReadTimeout, requires: "identity", handler: handleGetThresholds})
	add(toolSpec{name: "set_thresholds", mutates: true, timeout: defaultWriteTimeout, requires: "tier2", handler: handleSetThresholds})
	add(toolSpec{name: "knowledge", mutates: true, timeout: knowledgeOpTimeout, requires: "identity", handler: handleKnowledge})
	add(toolSpec{name: "search_knowledge_graph", mutates: false, timeout: knowledgeOpTimeout, requires: "identity", handler: handleKnowledgeSearch})
	add(toolSpec{name: "leave_note", mutates: true, timeout: knowledgeOpTimeout, requires: "identity", handler: handleLeaveNote})
	add(toolSpec{name: "request_dialectic_review", mutates: true, timeout: knowledgeOpTimeout, requires: "identity", handler: handleRequestDialecticReview})
	add(toolSpec{name: "submit_thesis", mutates: true, timeout: knowledgeOpTimeout, requires: "identity", handler: handleSubmitThesis})
	add(toolSpec{name: "submit_antithesis", mutates: true, timeout: knowledgeOpTimeout, requires: "identity", handler: handleSubmitAntithesis})
	add(toolSpec{name: "submit_synthesis", mutates: true, timeout: knowledgeOpTimeout, requires: "identity", handler: handleSubmitSynthesis})
	add(toolSpec{name: "calibration", mutates: true, timeout: defaultWriteTimeout, requires: "identity", handler: handleCalibration})
	add(toolSpec{name: "self_recovery", mutates: true, timeout: defaultWriteTimeout, requires: "identity", handler: handleSelfRecovery})
	add(toolSpec{name: "reset_monitor", mutates: true, timeout: defaultWriteTimeout, requires: "tier3", handler: handleResetMonitor})
	add(toolSpec{name: "health_check", mutates: false, timeout: defaultReadTimeout, requires: "", handler: handleHealthCheck})
	add(toolSpec{name: "list_tools", mutates: false, timeout: defaultReadTimeout, requires: "", handler: handleListTools(reg)})
	add(toolSpec{name: "describe_tool", mutates: false, timeout: defaultReadTimeout, requires: "", handler: handleDescribeTool(reg)})

	return reg
}

// --- identity & onboarding -------------------------------------------------

type onboardArgs struct {
	Name            string `json:"name"`
	ClientSessionID string `json:"client_session_id" validate:"required"`
}

func handleOnboard(d *Deps, cc CallContext, args map[string]any) (any, error) {
	var a onboardArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	res, err := d.Identities.Resolve(context.Background(), identity.Request{SessionKey: a.ClientSessionID, Label: a.Name})
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"identity_id":       res.IdentityID,
		"client_session_id": a.ClientSessionID,
		"label":             res.Label,
		"trust_tier":        res.TrustTier,
	}
	if res.PlaintextAPIKey != "" {
		out["api_key"] = res.PlaintextAPIKey
	}
	return out, nil
}

type identityArgs struct {
	Name string `json:"name"`
}

func handleIdentity(d *Deps, cc CallContext, args map[string]any) (any, error) {
	var a identityArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Name == "" {
		return map[string]any{"identity_id": cc.IdentityID, "trust_tier": int(cc.Tier)}, nil
	}
	if err := d.IdentityDB.SetLabel(context.Background(), cc.IdentityID, a.Name); err != nil {
		return nil, err
	}
	return map[string]any{"identity_id": cc.IdentityID, "label": a.Name}, nil
}

// --- checkin / status / simulate -------------------------------------------

type checkinArgs struct {
	Complexity   float64   `json:"complexity" validate:"gte=0,lte=1"`
	Confidence   float64   `json:"confidence" validate:"gte=0,lte=1"`
	ResponseText string    `json:"response_text"`
	EthicalDrift []float64 `json:"ethical_drift"`
	Parameters   []float64 `json:"parameters"`
	ResponseMode string    `json:"response_mode"`
}

func handleCheckin(d *Deps, cc CallContext, args map[string]any) (any, error) {
	var a checkinArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	report := monitor.Report{
		Complexity:   a.Complexity,
		Confidence:   a.Confidence,
		ResponseText: a.ResponseText,
		Parameters:   a.Parameters,
		EthicalDrift: dynamics.EthicalDrift(a.EthicalDrift),
	}
	m, err := d.Monitor.ProcessUpdate(context.Background(), cc.IdentityID, report, cc.Tier)
	if err != nil {
		return nil, err
	}
	if m.Verdict == governance.VerdictPause || m.Verdict == governance.VerdictReject {
		d.Notify.NotifyVerdict(context.Background(), notifyVerdictInputFrom(cc.IdentityID, m))
	}
	mode := ResponseMode(a.ResponseMode)
	if mode == "" {
		mode = ResponseMode(cc.ResponseMode)
	}
	return shapeMetrics(mode, m), nil
}

func notifyVerdictInputFrom(identityID string, m monitor.Metrics) notify.VerdictInput {
	reason := ""
	if m.GuidanceText != "" {
		reason = m.GuidanceText
	}
	return notify.VerdictInput{
		IdentityID: identityID,
		Label:      identityID,
		Verdict:    string(m.Verdict),
		Phase:      string(m.Phase),
		Phi:        m.Phi,
		Reason:     reason,
	}
}

func handleStatus(d *Deps, cc CallContext, args map[string]any) (any, error) {
	m, err := d.Monitor.Snapshot(context.Background(), cc.IdentityID)
	if err != nil {
		return nil, err
	}
	return shapeMetrics(ResponseMode(cc.ResponseMode), m), nil
}

func handleSimulate(d *Deps, cc CallContext, args map[string]any) (any, error) {
	var a checkinArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	report := monitor.Report{
		Complexity:   a.Complexity,
		Confidence:   a.Confidence,
		ResponseText: a.ResponseText,
		Parameters:   a.Parameters,
		EthicalDrift: dynamics.EthicalDrift(a.EthicalDrift),
	}
	m, err := d.Monitor.Simulate(context.Background(), cc.IdentityID, report, cc.Tier)
	if err != nil {
		return nil, err
	}
	return shapeMetrics(ModeFull, m), nil
}

// --- thresholds -------------------------------------------------------------

func handleGetThresholds(d *Deps, cc CallContext, args map[string]any) (any, error) {
	return map[string]any{
		"basin_threshold": d.BasinThreshold,
	}, nil
}

type setThresholdsArgs struct {
	BasinThreshold *float64 `json:"basin_threshold" validate:"omitempty,gte=0,lte=1"`
}

func handleSetThresholds(d *Deps, cc CallContext, args map[string]any) (any, error) {
	var a setThresholdsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.BasinThreshold != nil {
		d.BasinThreshold = *a.BasinThreshold
	}
	return map[string]any{"basin_threshold": d.BasinThreshold}, nil
}

// --- knowledge ---------------------------------------------------------------

type knowledgeArgs struct {
	Action      string   `json:"action" validate:"required,oneof=store update search details cleanup"`
	DiscoveryID string   `json:"discovery_id"`
	Type        string   `json:"type"`
	Summary     string   `json:"summary"`
	Detail      string   `json:"detail"`
	Tags        []string `json:"tags"`
	Status      string   `json:"status"`
	AppendNote  string   `json:"append_summary"`
	Query       string   `json:"query"`
	TopK        int      `json:"top_k"`
	OlderThanHr int      `json:"older_than_hours"`
}

func handleKnowledge(d *Deps, cc CallContext, args map[string]any) (any, error) {
	var a knowledgeArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	ctx := context.Background()
	switch a.Action {
	case "store":
		id, err := d.Knowledge.Store(ctx, knowledge.StoreRequest{
			AuthorIdentityID: cc.IdentityID, Type: knowledge.DiscoveryType(a.Type),
			Summary: a.Summary, Detail: a.Detail, Tags: a.Tags,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"discovery_id": id}, nil
	case "update":
		var status *knowledge.Status
		if a.Status != "" {
			s := knowledge.Status(a.Status)
			status = &s
		}
		err := d.Knowledge.Update(ctx, knowledge.UpdateRequest{
			DiscoveryID: a.DiscoveryID, AuthorIdentityID: cc.IdentityID,
			Status: status, Tags: a.Tags, AppendSummary: a.AppendNote,
		})
		return map[string]any{"updated": err == nil}, err
	case "search":
		results, err := d.Knowledge.Search(ctx, knowledge.SearchRequest{Query: a.Query, Tags: a.Tags, TopK: a.TopK})
		return map[string]any{"results": results}, err
	case "details":
		details, err := d.Knowledge.Details(ctx, a.DiscoveryID)
		return details, err
	case "cleanup":
		hours := a.OlderThanHr
		if hours <= 0 {
			hours = 24 * 30
		}
		n, err := d.Knowledge.Cleanup(ctx, time.Duration(hours)*time.Hour)
		return map[string]any{"archived_count": n}, err
	default:
		return nil, fmt.Errorf("knowledge: unknown action %q", a.Action)
	}
}

func handleKnowledgeSearch(d *Deps, cc CallContext, args map[string]any) (any, error) {
	var a knowledgeArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	results, err := d.Knowledge.Search(context.Background(), knowledge.SearchRequest{Query: a.Query, Tags: a.Tags, TopK: a.TopK})
	return map[string]any{"results": results}, err
}

func handleLeaveNote(d *Deps, cc CallContext, args map[string]any) (any, error) {
	var a knowledgeArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	id, err := d.Knowledge.Store(context.Background(), knowledge.StoreRequest{
		AuthorIdentityID: cc.IdentityID, Type: knowledge.TypeNote, Summary: a.Summary, Tags: a.Tags,
	})
	return map[string]any{"discovery_id": id}, err
}

// --- dialectic ----------------------------------------------------------------

type dialecticArgs struct {
	Topic          string `json:"topic"`
	Mode           string `json:"mode"`
	SessionID      string `json:"session_id"`
	ConditionsText string `json:"conditions"`
	AuthorID       string `json:"author_id"`
	Agrees         bool   `json:"agrees"`
}

func handleRequestDialecticReview(d *Deps, cc CallContext, args map[string]any) (any, error) {
	var a dialecticArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	sess, err := d.Dialectic.RequestReview(context.Background(), cc.IdentityID, a.Topic, a.Mode, cc.Tier, "")
	if err != nil {
		return nil, err
	}
	return map[string]any{"session_id": sess.ID, "phase": sess.Phase, "reviewer_identity_id": sess.ReviewerIdentityID}, nil
}

func handleSubmitThesis(d *Deps, cc CallContext, args map[string]any) (any, error) {
	var a dialecticArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	sess, err := d.Dialectic.SubmitThesis(context.Background(), a.SessionID, dialectic.Message{AuthorID: cc.IdentityID, Body: args, ConditionsText: a.ConditionsText})
	if err != nil {
		return nil, err
	}
	return map[string]any{"session_id": sess.ID, "phase": sess.Phase}, nil
}

func handleSubmitAntithesis(d *Deps, cc CallContext, args map[string]any) (any, error) {
	var a dialecticArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	sess, err := d.Dialectic.SubmitAntithesis(context.Background(), a.SessionID, dialectic.Message{AuthorID: cc.IdentityID, Body: args, ConditionsText: a.ConditionsText})
	if err != nil {
		return nil, err
	}
	return map[string]any{"session_id": sess.ID, "phase": sess.Phase}, nil
}

func handleSubmitSynthesis(d *Deps, cc CallContext, args map[string]any) (any, error) {
	var a dialecticArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	sess, err := d.Dialectic.SubmitSynthesis(context.Background(), a.SessionID, dialectic.Message{
		AuthorID: cc.IdentityID, Body: args, ConditionsText: a.ConditionsText, ExplicitAgrees: a.Agrees,
	})
	if err != nil {
		return nil, err
	}
	if sess.Phase == dialectic.PhaseResolved || sess.Phase == dialectic.PhaseFailed {
		summary := ""
		if sess.Resolution != nil {
			summary = *sess.Resolution
		}
		outcome := "resolved"
		if sess.Phase == dialectic.PhaseFailed {
			outcome = "failed"
		}
		d.Notify.NotifyDialecticOutcome(context.Background(), notify.DialecticOutcomeInput{
			SessionID: sess.ID, Topic: sess.Topic, Outcome: outcome, Summary: summary,
		})
	}
	return map[string]any{"session_id": sess.ID, "phase": sess.Phase, "resolution": sess.Resolution}, nil
}

// --- calibration ----------------------------------------------------------------

type calibrationArgs struct {
	Action     string  `json:"action" validate:"required,oneof=check record_ground_truth"`
	Scope      string  `json:"scope"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}

func handleCalibration(d *Deps, cc CallContext, args map[string]any) (any, error) {
	var a calibrationArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	scope := a.Scope
	if scope == "" {
		scope = cc.IdentityID
	}
	ctx := context.Background()
	binIdx := calibration.BinIndex(a.Confidence)

	switch a.Action {
	case "check":
		bin, err := d.Calibration.Get(ctx, scope, binIdx)
		if err != nil {
			return nil, err
		}
		corrected, sufficient := calibration.CorrectBin(a.Confidence, calibration.Bin{
			Count: bin.Count, PredictedCorrect: bin.PredictedCorrect, ActualCorrect: bin.ActualCorrect,
		})
		return map[string]any{"corrected_confidence": corrected, "sufficient_samples": sufficient, "bin_index": binIdx}, nil
	case "record_ground_truth":
		err := d.Calibration.RecordGroundTruth(ctx, scope, binIdx)
		return map[string]any{"recorded": err == nil}, err
	default:
		return nil, fmt.Errorf("calibration: unknown action %q", a.Action)
	}
}

// --- recovery / admin -------------------------------------------------------

func handleSelfRecovery(d *Deps, cc CallContext, args map[string]any) (any, error) {
	m, err := d.Monitor.Snapshot(context.Background(), cc.IdentityID)
	if err != nil {
		return nil, err
	}
	if m.Verdict == governance.VerdictPause || m.Verdict == governance.VerdictReject {
		return map[string]any{"recovered": false, "verdict": string(m.Verdict)}, nil
	}
	if err := d.IdentityDB.SetStatus(context.Background(), cc.IdentityID, "active"); err != nil {
		return nil, err
	}
	return map[string]any{"recovered": true}, nil
}

func handleResetMonitor(d *Deps, cc CallContext, args map[string]any) (any, error) {
	if err := d.Monitor.Reset(context.Background(), cc.IdentityID); err != nil {
		return nil, err
	}
	return map[string]any{"reset": true}, nil
}

func handleHealthCheck(d *Deps, cc CallContext, args map[string]any) (any, error) {
	return map[string]any{"status": "ok"}, nil
}

func handleListTools(reg map[string]toolSpec) func(*Deps, CallContext, map[string]any) (any, error) {
	return func(d *Deps, cc CallContext, args map[string]any) (any, error) {
		names := make([]string, 0, len(reg))
		for name := range reg {
			names = append(names, name)
		}
		return map[string]any{"tools": names}, nil
	}
}

type describeToolArgs struct {
	Name string `json:"name" validate:"required"`
}

func handleDescribeTool(reg map[string]toolSpec) func(*Deps, CallContext, map[string]any) (any, error) {
	return func(d *Deps, cc CallContext, args map[string]any) (any, error) {
		var a describeToolArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		spec, ok := reg[a.Name]
		if !ok {
			return nil, fmt.Errorf("describe_tool: no such tool %q", a.Name)
		}
		return map[string]any{
			"name":     spec.name,
			"mutates":  spec.mutates,
			"timeout":  spec.timeout.String(),
			"requires": spec.requires,
		}, nil
	}
}

