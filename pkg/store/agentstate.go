package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AgentState is the latest persisted snapshot for one identity.
type AgentState struct {
	IdentityID          string
	E, I, S, V          float64
	ThetaC1, ThetaEta1  float64
	ControllerIntegral  float64
	RecordedAt          time.Time
	UpdateCount         int
	LastVerdict         *string
	Phase               string
	ConsecutiveLowBasin int
	ConsecutiveFailures int
}

// HistoryPoint is one bounded-history row (spec.md §4.2).
type HistoryPoint struct {
	Seq        int
	RecordedAt time.Time
	V          float64
	Coherence  float64
	Risk       float64
	Decision   string
}

// AgentStateRepo provides read/write access to agent_states and its bounded history.
type AgentStateRepo struct {
	pool *pgxpool.Pool
}

// Get loads the current snapshot, or ErrNotFound if the identity has never checked in.
func (r *AgentStateRepo) Get(ctx context.Context, identityID string) (*AgentState, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT identity_id, e, i, s, v, theta_c1, theta_eta1, controller_integral,
		       recorded_at, update_count, last_verdict, phase, consecutive_low_basin, consecutive_failures
		FROM agent_states WHERE identity_id = $1`, identityID)
	var st AgentState
	err := row.Scan(&st.IdentityID, &st.E, &st.I, &st.S, &st.V, &st.ThetaC1, &st.ThetaEta1,
		&st.ControllerIntegral, &st.RecordedAt, &st.UpdateCount, &st.LastVerdict, &st.Phase,
		&st.ConsecutiveLowBasin, &st.ConsecutiveFailures)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, wrapErr("agent_state", "get", ErrNotFound)
		}
		return nil, wrapErr("agent_state", "get", err)
	}
	return &st, nil
}

// CommitUpdate persists a new snapshot and appends a bounded-history row in
// a single transaction: the commit-or-nothing semantics spec.md §4.2
// requires (build everything in memory, then one atomic write). Mirrors the
// teacher's markSessionTimedOut transaction shape.
func (r *AgentStateRepo) CommitUpdate(ctx context.Context, st *AgentState, hist HistoryPoint, historyBound int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return wrapErr("agent_state", "commit_begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO agent_states (identity_id, e, i, s, v, theta_c1, theta_eta1, controller_integral,
			recorded_at, update_count, last_verdict, phase, consecutive_low_basin, consecutive_failures)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (identity_id) DO UPDATE SET
			e = EXCLUDED.e, i = EXCLUDED.i, s = EXCLUDED.s, v = EXCLUDED.v,
			theta_c1 = EXCLUDED.theta_c1, theta_eta1 = EXCLUDED.theta_eta1,
			controller_integral = EXCLUDED.controller_integral,
			recorded_at = EXCLUDED.recorded_at, update_count = EXCLUDED.update_count,
			last_verdict = EXCLUDED.last_verdict, phase = EXCLUDED.phase,
			consecutive_low_basin = EXCLUDED.consecutive_low_basin,
			consecutive_failures = EXCLUDED.consecutive_failures`,
		st.IdentityID, st.E, st.I, st.S, st.V, st.ThetaC1, st.ThetaEta1, st.ControllerIntegral,
		st.RecordedAt, st.UpdateCount, st.LastVerdict, st.Phase, st.ConsecutiveLowBasin, st.ConsecutiveFailures,
	)
	if err != nil {
		return wrapErr("agent_state", "commit_upsert", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO agent_state_history (identity_id, seq, recorded_at, v, coherence, risk, decision)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		st.IdentityID, hist.Seq, hist.RecordedAt, hist.V, hist.Coherence, hist.Risk, hist.Decision,
	)
	if err != nil {
		return wrapErr("agent_state", "commit_history", err)
	}

	if historyBound > 0 {
		_, err = tx.Exec(ctx, `
			DELETE FROM agent_state_history
			WHERE identity_id = $1 AND seq <= $2 - $3`,
			st.IdentityID, hist.Seq, historyBound)
		if err != nil {
			return wrapErr("agent_state", "commit_trim", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapErr("agent_state", "commit_tx", err)
	}
	return nil
}

// Reset re-initializes an identity's state row to the given defaults, used
// by the `reset` operation; prior history rows are left in place (archived
// by virtue of a fresh seq range starting after UpdateCount resets to 0 is
// not attempted — callers should tag the reset point via an audit event
// instead of renumbering history).
func (r *AgentStateRepo) Reset(ctx context.Context, st *AgentState) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE agent_states SET e=$2, i=$3, s=$4, v=$5, theta_c1=$6, theta_eta1=$7,
			controller_integral=$8, recorded_at=$9, update_count=0, last_verdict=NULL,
			phase=$10, consecutive_low_basin=0, consecutive_failures=0
		WHERE identity_id = $1`,
		st.IdentityID, st.E, st.I, st.S, st.V, st.ThetaC1, st.ThetaEta1,
		st.ControllerIntegral, st.RecordedAt, st.Phase,
	)
	return wrapErr("agent_state", "reset", err)
}

// History returns the last N history rows, most recent last.
func (r *AgentStateRepo) History(ctx context.Context, identityID string, limit int) ([]HistoryPoint, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT seq, recorded_at, v, coherence, risk, decision
		FROM agent_state_history
		WHERE identity_id = $1
		ORDER BY seq DESC
		LIMIT $2`, identityID, limit)
	if err != nil {
		return nil, wrapErr("agent_state", "history", err)
	}
	defer rows.Close()

	var out []HistoryPoint
	for rows.Next() {
		var h HistoryPoint
		if err := rows.Scan(&h.Seq, &h.RecordedAt, &h.V, &h.Coherence, &h.Risk, &h.Decision); err != nil {
			return nil, wrapErr("agent_state", "history", err)
		}
		out = append(out, h)
	}
	// Reverse to oldest-first for callers building a trajectory export.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, wrapErr("agent_state", "history", rows.Err())
}
