// Package dialectic implements the peer-review state machine described in
// spec.md §4.6: a paused agent requests review, a reviewer is selected by
// score, and thesis/antithesis/synthesis messages advance the session phase
// by explicit phase until agreement or max-rounds-exceeded. The state
// machine is a small explicit switch rather than a generic FSM library,
// matching the teacher's preference for explicit enum transitions over a
// framework (ent/schema/alertsession.go's field.Enum("status")).
package dialectic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cirwel/unitares-govcore/pkg/dynamics"
	"github.com/cirwel/unitares-govcore/pkg/governance"
	"github.com/cirwel/unitares-govcore/pkg/store"
)

const (
	PhaseThesis     = "thesis"
	PhaseAntithesis = "antithesis"
	PhaseSynthesis  = "synthesis"
	PhaseResolved   = "resolved"
	PhaseFailed     = "failed"
)

const (
	ModeAuto = "auto"
	ModeSelf = "self"
	ModeLLM  = "llm"
)

var (
	ErrOutOfOrder           = errors.New("dialectic: message submitted out of turn for current phase")
	ErrNoEligibleReviewer   = errors.New("dialectic: no eligible reviewer found")
	ErrSelfReviewTierTooLow = errors.New("dialectic: self-review requires trust tier >= 2")
	ErrSessionTerminal      = errors.New("dialectic: session already resolved or failed")
)

// Config holds the tunables named in spec.md §4.6 and its config table.
type Config struct {
	MaxSynthesisRounds int
	Timeout            time.Duration
	AntiCollusionN     int
	ConvergenceOverlap float64
}

func DefaultConfig() Config {
	return Config{
		MaxSynthesisRounds: 5,
		Timeout:            2 * time.Hour,
		AntiCollusionN:     3,
		ConvergenceOverlap: 0.60,
	}
}

// Engine orchestrates dialectic sessions over the store layer.
type Engine struct {
	sessions    *store.DialecticRepo
	identities  *store.IdentityRepo
	agentStates *store.AgentStateRepo
	discoveries *store.DiscoveryRepo
	cfg         Config
}

func New(sessions *store.DialecticRepo, identities *store.IdentityRepo, agentStates *store.AgentStateRepo, discoveries *store.DiscoveryRepo, cfg Config) *Engine {
	return &Engine{sessions: sessions, identities: identities, agentStates: agentStates, discoveries: discoveries, cfg: cfg}
}

// RequestReview creates a new dialectic session for a paused identity,
// selecting a reviewer per mode (spec.md §4.6's three modes).
func (e *Engine) RequestReview(ctx context.Context, pausedIdentityID, topic, mode string, tier governance.TrustTier, llmReviewerID string) (*store.DialecticSession, error) {
	if mode == "" {
		mode = ModeAuto
	}

	var reviewerID *string
	switch mode {
	case ModeSelf:
		if tier < governance.TrustTier2 {
			return nil, ErrSelfReviewTierTooLow
		}
		reviewerID = &pausedIdentityID
	case ModeLLM:
		if llmReviewerID == "" {
			return nil, fmt.Errorf("dialectic: llm mode requires a synthetic reviewer id")
		}
		reviewerID = &llmReviewerID
	case ModeAuto:
		id, err := e.selectReviewer(ctx, pausedIdentityID, topic)
		if err != nil {
			return nil, err
		}
		reviewerID = &id
	default:
		return nil, fmt.Errorf("dialectic: unknown mode %q", mode)
	}

	now := time.Now()
	sess := &store.DialecticSession{
		ID:                 uuid.NewString(),
		PausedIdentityID:   pausedIdentityID,
		ReviewerIdentityID: reviewerID,
		Phase:              PhaseThesis,
		CreatedAt:          now,
		UpdatedAt:          now,
		Topic:              topic,
		MaxSynthesisRounds: e.cfg.MaxSynthesisRounds,
		SynthesisRound:     0,
		Mode:               mode,
	}
	if err := e.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("creating dialectic session: %w", err)
	}
	return sess, nil
}

// reviewerCandidate carries the score inputs for one pool member.
type reviewerCandidate struct {
	identity   *store.Identity
	health     float64
	trackRecord float64
	domainMatch float64
	lastReview  time.Time
	score       float64
}

// selectReviewer implements spec.md §4.6's five-step scoring policy.
func (e *Engine) selectReviewer(ctx context.Context, pausedIdentityID, topic string) (string, error) {
	pool, err := e.identities.ListActive(ctx)
	if err != nil {
		return "", fmt.Errorf("listing reviewer pool: %w", err)
	}

	recentReviewers, err := e.sessions.RecentReviewersOf(ctx, pausedIdentityID, e.cfg.AntiCollusionN)
	if err != nil {
		return "", fmt.Errorf("loading recent reviewers: %w", err)
	}
	recentSet := make(map[string]bool, len(recentReviewers))
	for _, id := range recentReviewers {
		recentSet[id] = true
	}

	overloadedSet, err := e.sessions.ActiveReviewers(ctx)
	if err != nil {
		return "", fmt.Errorf("loading active reviewers: %w", err)
	}

	var candidates []reviewerCandidate
	for _, id := range pool {
		if id.ID == pausedIdentityID {
			continue
		}
		if recentSet[id.ID] || overloadedSet[id.ID] {
			continue
		}
		c := reviewerCandidate{identity: id}
		c.health = e.healthOf(ctx, id.ID)
		c.trackRecord = e.trackRecordOf(ctx, id.ID)
		c.domainMatch = domainMatch(topic, id.Tags)
		c.lastReview = e.lastReviewOf(ctx, id.ID)
		c.score = 0.40*c.health + 0.30*c.trackRecord + 0.20*c.domainMatch + 0.10*freshnessPenalty(c.lastReview)
		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		return "", ErrNoEligibleReviewer
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.score > best.score || (c.score == best.score && c.lastReview.Before(best.lastReview)) {
			best = c
		}
	}
	return best.identity.ID, nil
}

// healthOf is the candidate's current coherence, derived from its live
// agent-state snapshot; a candidate with no recorded state yet gets the
// coherence of the default state (V=0, i.e. half of CMax).
func (e *Engine) healthOf(ctx context.Context, identityID string) float64 {
	st, err := e.agentStates.Get(ctx, identityID)
	if err != nil {
		d := dynamics.DefaultState()
		return dynamics.Coherence(d.V, dynamics.DefaultTheta(), dynamics.DefaultParams())
	}
	theta := dynamics.Theta{C1: st.ThetaC1, Eta1: st.ThetaEta1}
	return dynamics.Coherence(st.V, theta, dynamics.DefaultParams())
}

// trackRecordOf is the fraction of the candidate's recent update-history
// decisions that were proceed/guide rather than pause/reject.
func (e *Engine) trackRecordOf(ctx context.Context, identityID string) float64 {
	hist, err := e.agentStates.History(ctx, identityID, 20)
	if err != nil || len(hist) == 0 {
		return 0.5
	}
	good := 0
	for _, h := range hist {
		if h.Decision == "proceed" || h.Decision == "guide" {
			good++
		}
	}
	return float64(good) / float64(len(hist))
}

// lastReviewOf returns the time the candidate last served as a reviewer, or
// the zero time if it never has (maximizing its freshness penalty).
func (e *Engine) lastReviewOf(ctx context.Context, identityID string) time.Time {
	t, ok, err := e.sessions.LastReviewTimeOf(ctx, identityID)
	if err != nil || !ok {
		return time.Time{}
	}
	return t
}

// domainMatch is a crude tag/topic word-overlap score in [0,1] — the same
// bag-of-words overlap idea the synthesis convergence check uses, applied
// to identity tags instead of transcript text.
func domainMatch(topic string, tags []string) float64 {
	if topic == "" || len(tags) == 0 {
		return 0
	}
	topicWords := wordSet(topic)
	if len(topicWords) == 0 {
		return 0
	}
	hits := 0
	for _, tag := range tags {
		if topicWords[strings.ToLower(tag)] {
			hits++
		}
	}
	return float64(hits) / float64(len(topicWords))
}

// freshnessPenalty rewards candidates who haven't reviewed recently; a
// candidate who has never reviewed gets the maximum penalty score of 1.
func freshnessPenalty(lastReview time.Time) float64 {
	if lastReview.IsZero() {
		return 1.0
	}
	days := time.Since(lastReview).Hours() / 24
	switch {
	case days >= 30:
		return 1.0
	case days <= 0:
		return 0
	default:
		return days / 30
	}
}

func wordSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,;:!?()\"'")
		if w != "" {
			out[w] = true
		}
	}
	return out
}
