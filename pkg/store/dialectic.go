package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TranscriptMessage is one entry in a dialectic session's ordered transcript.
type TranscriptMessage struct {
	Phase     string         `json:"phase"`
	AuthorID  string         `json:"author_id"`
	Body      map[string]any `json:"body"`
	Timestamp time.Time      `json:"timestamp"`
}

// DialecticSession mirrors spec.md §3.1's "Dialectic session".
type DialecticSession struct {
	ID                 string
	PausedIdentityID   string
	ReviewerIdentityID *string
	Phase              string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Topic              string
	Transcript         []TranscriptMessage
	MaxSynthesisRounds int
	SynthesisRound     int
	Resolution         *string
	Mode               string
}

// DialecticRepo provides access to dialectic_sessions.
type DialecticRepo struct {
	pool *pgxpool.Pool
}

func (r *DialecticRepo) Create(ctx context.Context, s *DialecticSession) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO dialectic_sessions (session_id, paused_identity_id, reviewer_identity_id, phase,
			created_at, updated_at, topic, transcript, max_synthesis_rounds, synthesis_round, resolution, mode)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		s.ID, s.PausedIdentityID, s.ReviewerIdentityID, s.Phase, s.CreatedAt, s.UpdatedAt,
		s.Topic, marshalTranscript(s.Transcript), s.MaxSynthesisRounds, s.SynthesisRound, s.Resolution, s.Mode,
	)
	return wrapErr("dialectic_session", "create", err)
}

func marshalTranscript(t []TranscriptMessage) []byte {
	b, _ := json.Marshal(t)
	return b
}

func scanDialectic(row pgx.Row) (*DialecticSession, error) {
	var s DialecticSession
	var transcript []byte
	if err := row.Scan(&s.ID, &s.PausedIdentityID, &s.ReviewerIdentityID, &s.Phase, &s.CreatedAt,
		&s.UpdatedAt, &s.Topic, &transcript, &s.MaxSynthesisRounds, &s.SynthesisRound, &s.Resolution, &s.Mode); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(transcript) > 0 {
		_ = json.Unmarshal(transcript, &s.Transcript)
	}
	return &s, nil
}

func (r *DialecticRepo) Get(ctx context.Context, id string) (*DialecticSession, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT session_id, paused_identity_id, reviewer_identity_id, phase, created_at, updated_at,
		       topic, transcript, max_synthesis_rounds, synthesis_round, resolution, mode
		FROM dialectic_sessions WHERE session_id = $1`, id)
	s, err := scanDialectic(row)
	if err != nil {
		return nil, wrapErr("dialectic_session", "get", err)
	}
	return s, nil
}

// Advance persists a phase transition, appended transcript message, and
// (optionally) the resolution text, in one statement — avoids torn reads
// of a session mid-transition.
func (r *DialecticRepo) Advance(ctx context.Context, id, phase string, round int, msg TranscriptMessage, resolution *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE dialectic_sessions
		SET phase = $2, synthesis_round = $3,
		    transcript = COALESCE(transcript, '[]'::jsonb) || $4::jsonb,
		    resolution = COALESCE($5, resolution),
		    updated_at = now()
		WHERE session_id = $1`,
		id, phase, round, mustMarshalOne(msg), resolution,
	)
	return wrapErr("dialectic_session", "advance", err)
}

func mustMarshalOne(msg TranscriptMessage) []byte {
	b, _ := json.Marshal([]TranscriptMessage{msg})
	return b
}

// SetReviewer assigns the selected reviewer to a session.
func (r *DialecticRepo) SetReviewer(ctx context.Context, id, reviewerID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE dialectic_sessions SET reviewer_identity_id = $2 WHERE session_id = $1`, id, reviewerID)
	return wrapErr("dialectic_session", "set_reviewer", err)
}

// RecentReviewersOf returns the last N reviewer identity IDs who reviewed
// pausedIdentityID, most recent first — used for the anti-collusion exclusion.
func (r *DialecticRepo) RecentReviewersOf(ctx context.Context, pausedIdentityID string, n int) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT reviewer_identity_id FROM dialectic_sessions
		WHERE paused_identity_id = $1 AND reviewer_identity_id IS NOT NULL
		ORDER BY created_at DESC LIMIT $2`, pausedIdentityID, n)
	if err != nil {
		return nil, wrapErr("dialectic_session", "recent_reviewers", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr("dialectic_session", "recent_reviewers", err)
		}
		out = append(out, id)
	}
	return out, wrapErr("dialectic_session", "recent_reviewers", rows.Err())
}

// ActiveReviewers returns identity IDs currently serving as a reviewer in a
// non-terminal session — used for the overload exclusion.
func (r *DialecticRepo) ActiveReviewers(ctx context.Context) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT reviewer_identity_id FROM dialectic_sessions
		WHERE reviewer_identity_id IS NOT NULL AND phase NOT IN ('resolved','failed')`)
	if err != nil {
		return nil, wrapErr("dialectic_session", "active_reviewers", err)
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr("dialectic_session", "active_reviewers", err)
		}
		out[id] = true
	}
	return out, wrapErr("dialectic_session", "active_reviewers", rows.Err())
}

// LastReviewTimeOf returns when identityID last served as a reviewer in any
// session, and false if it never has — used for the freshness-penalty term
// of reviewer scoring.
func (r *DialecticRepo) LastReviewTimeOf(ctx context.Context, identityID string) (time.Time, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT updated_at FROM dialectic_sessions
		WHERE reviewer_identity_id = $1
		ORDER BY updated_at DESC LIMIT 1`, identityID)
	var t time.Time
	if err := row.Scan(&t); err != nil {
		if err == pgx.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, wrapErr("dialectic_session", "last_review_time_of", err)
	}
	return t, true, nil
}

// TimedOut returns non-terminal sessions whose updated_at is older than the
// timeout cutoff, for the periodic timeout sweep.
func (r *DialecticRepo) TimedOut(ctx context.Context, cutoff time.Time) ([]*DialecticSession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT session_id, paused_identity_id, reviewer_identity_id, phase, created_at, updated_at,
		       topic, transcript, max_synthesis_rounds, synthesis_round, resolution, mode
		FROM dialectic_sessions
		WHERE phase NOT IN ('resolved','failed') AND updated_at < $1`, cutoff)
	if err != nil {
		return nil, wrapErr("dialectic_session", "timed_out", err)
	}
	defer rows.Close()
	var out []*DialecticSession
	for rows.Next() {
		s, err := scanDialectic(rows)
		if err != nil {
			return nil, wrapErr("dialectic_session", "timed_out", err)
		}
		out = append(out, s)
	}
	return out, wrapErr("dialectic_session", "timed_out", rows.Err())
}
