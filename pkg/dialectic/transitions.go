package dialectic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cirwel/unitares-govcore/pkg/store"
)

// Message is one submission to a dialectic session.
type Message struct {
	AuthorID         string
	Body             map[string]any
	ConditionsText   string // key conditions text, used for convergence overlap
	ExplicitAgrees   bool
}

// SubmitThesis advances thesis -> antithesis. Must be submitted by the
// paused agent.
func (e *Engine) SubmitThesis(ctx context.Context, sessionID string, msg Message) (*store.DialecticSession, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Phase != PhaseThesis {
		return nil, ErrOutOfOrder
	}
	if msg.AuthorID != sess.PausedIdentityID {
		return nil, ErrOutOfOrder
	}
	transcript := store.TranscriptMessage{Phase: PhaseThesis, AuthorID: msg.AuthorID, Body: msg.Body, Timestamp: time.Now()}
	if err := e.sessions.Advance(ctx, sessionID, PhaseAntithesis, sess.SynthesisRound, transcript, nil); err != nil {
		return nil, fmt.Errorf("advancing thesis: %w", err)
	}
	return e.sessions.Get(ctx, sessionID)
}

// SubmitAntithesis advances antithesis -> synthesis. Must be submitted by
// the assigned reviewer.
func (e *Engine) SubmitAntithesis(ctx context.Context, sessionID string, msg Message) (*store.DialecticSession, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Phase != PhaseAntithesis {
		return nil, ErrOutOfOrder
	}
	if sess.ReviewerIdentityID == nil || msg.AuthorID != *sess.ReviewerIdentityID {
		return nil, ErrOutOfOrder
	}
	transcript := store.TranscriptMessage{Phase: PhaseAntithesis, AuthorID: msg.AuthorID, Body: msg.Body, Timestamp: time.Now()}
	if err := e.sessions.Advance(ctx, sessionID, PhaseSynthesis, sess.SynthesisRound, transcript, nil); err != nil {
		return nil, fmt.Errorf("advancing antithesis: %w", err)
	}
	return e.sessions.Get(ctx, sessionID)
}

// SubmitSynthesis advances one synthesis round, alternating between the
// paused agent and the reviewer: either may open the synthesis phase, but
// the same side may not submit two rounds in a row (ErrOutOfOrder).
// Terminates the session (resolved/failed)
// once agreement is reached or max rounds are exceeded, per spec.md §4.6.
func (e *Engine) SubmitSynthesis(ctx context.Context, sessionID string, msg Message) (*store.DialecticSession, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Phase != PhaseSynthesis {
		return nil, ErrOutOfOrder
	}
	if sess.ReviewerIdentityID == nil {
		return nil, ErrOutOfOrder
	}
	if msg.AuthorID != sess.PausedIdentityID && msg.AuthorID != *sess.ReviewerIdentityID {
		return nil, ErrOutOfOrder
	}
	for i := len(sess.Transcript) - 1; i >= 0; i-- {
		if sess.Transcript[i].Phase == PhaseSynthesis {
			if sess.Transcript[i].AuthorID == msg.AuthorID {
				return nil, ErrOutOfOrder
			}
			break
		}
	}

	transcript := store.TranscriptMessage{Phase: PhaseSynthesis, AuthorID: msg.AuthorID, Body: msg.Body, Timestamp: time.Now()}
	round := sess.SynthesisRound + 1

	converged := msg.ExplicitAgrees || semanticConvergence(sess, msg, e.cfg.ConvergenceOverlap)

	switch {
	case converged:
		summary := synthesisSummary(sess, msg)
		if err := e.sessions.Advance(ctx, sessionID, PhaseResolved, round, transcript, &summary); err != nil {
			return nil, fmt.Errorf("resolving dialectic: %w", err)
		}
		if err := e.onResolved(ctx, sessionID, sess.PausedIdentityID, summary); err != nil {
			return nil, err
		}
	case round >= sess.MaxSynthesisRounds:
		reason := fmt.Sprintf("max synthesis rounds (%d) exceeded without agreement", sess.MaxSynthesisRounds)
		if err := e.sessions.Advance(ctx, sessionID, PhaseFailed, round, transcript, &reason); err != nil {
			return nil, fmt.Errorf("failing dialectic: %w", err)
		}
		if err := e.onFailed(ctx, sessionID, sess.PausedIdentityID, reason); err != nil {
			return nil, err
		}
	default:
		if err := e.sessions.Advance(ctx, sessionID, PhaseSynthesis, round, transcript, nil); err != nil {
			return nil, fmt.Errorf("advancing synthesis: %w", err)
		}
	}
	return e.sessions.Get(ctx, sessionID)
}

// semanticConvergence approximates spec.md §4.6's "≥60% word overlap on key
// conditions" check: compares this synthesis message's conditions text
// against the most recent opposing-side synthesis message in the
// transcript (or the thesis, on the first synthesis round).
func semanticConvergence(sess *store.DialecticSession, msg Message, threshold float64) bool {
	if msg.ConditionsText == "" {
		return false
	}
	var prior string
	for i := len(sess.Transcript) - 1; i >= 0; i-- {
		entry := sess.Transcript[i]
		if entry.AuthorID == msg.AuthorID {
			continue
		}
		if body, ok := entry.Body["conditions"].(string); ok && body != "" {
			prior = body
			break
		}
	}
	if prior == "" {
		return false
	}
	return wordOverlap(prior, msg.ConditionsText) >= threshold
}

// wordOverlap is the fraction of words in a that also appear in b, over the
// union of both bags — a simple Jaccard similarity.
func wordOverlap(a, b string) float64 {
	wa, wb := wordSet(a), wordSet(b)
	if len(wa) == 0 && len(wb) == 0 {
		return 0
	}
	union := make(map[string]bool, len(wa)+len(wb))
	inter := 0
	for w := range wa {
		union[w] = true
		if wb[w] {
			inter++
		}
	}
	for w := range wb {
		union[w] = true
	}
	if len(union) == 0 {
		return 0
	}
	return float64(inter) / float64(len(union))
}

func synthesisSummary(sess *store.DialecticSession, final Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dialectic resolved on topic %q after %d synthesis round(s). ", sess.Topic, sess.SynthesisRound+1)
	if final.ConditionsText != "" {
		fmt.Fprintf(&b, "Agreed conditions: %s", final.ConditionsText)
	}
	return b.String()
}

// onResolved applies spec.md §4.6's resolution effect: the paused agent
// resumes, and a synthesis-summary discovery is stored and linked.
func (e *Engine) onResolved(ctx context.Context, sessionID, pausedIdentityID, summary string) error {
	if err := e.identities.SetStatus(ctx, pausedIdentityID, "active"); err != nil {
		return fmt.Errorf("resuming identity after dialectic resolution: %w", err)
	}
	return e.recordOutcomeDiscovery(ctx, sessionID, pausedIdentityID, "dialectic_resolution", summary)
}

// onFailed applies the failure effect: the agent stays paused, and a
// discovery records the failure for future reviewer-scoring inputs.
func (e *Engine) onFailed(ctx context.Context, sessionID, pausedIdentityID, reason string) error {
	return e.recordOutcomeDiscovery(ctx, sessionID, pausedIdentityID, "dialectic_failure", reason)
}

func (e *Engine) recordOutcomeDiscovery(ctx context.Context, sessionID, pausedIdentityID, discoveryType, summary string) error {
	if e.discoveries == nil {
		return nil
	}
	d := &store.Discovery{
		ID:               "dd-" + sessionID,
		AuthorIdentityID: pausedIdentityID,
		Type:             discoveryType,
		Summary:          summary,
		Detail:           fmt.Sprintf("dialectic_session_id=%s", sessionID),
		Tags:             []string{"dialectic"},
		CreatedAt:        time.Now(),
		Status:           "open",
	}
	if err := e.discoveries.Create(ctx, d); err != nil {
		return fmt.Errorf("recording dialectic outcome discovery: %w", err)
	}
	return nil
}

// SweepTimeouts fails every non-terminal session whose last update predates
// the configured timeout — spec.md §4.6's "inactivity > 2h -> failed. No
// partial state carries forward", grounded on pkg/cleanup/service.go's
// periodic-ticker retention-sweep structure.
func (e *Engine) SweepTimeouts(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-e.cfg.Timeout)
	stale, err := e.sessions.TimedOut(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("listing timed-out dialectics: %w", err)
	}
	n := 0
	for _, sess := range stale {
		reason := "timed out: no activity for " + e.cfg.Timeout.String()
		msg := store.TranscriptMessage{Phase: sess.Phase, AuthorID: "system", Body: map[string]any{"reason": reason}, Timestamp: time.Now()}
		if err := e.sessions.Advance(ctx, sess.ID, PhaseFailed, sess.SynthesisRound, msg, &reason); err != nil {
			continue
		}
		_ = e.recordOutcomeDiscovery(ctx, sess.ID, sess.PausedIdentityID, "dialectic_failure", reason)
		n++
	}
	return n, nil
}
