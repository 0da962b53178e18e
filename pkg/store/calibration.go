package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// binID builds the composite primary key ent/schema/calibrationbin.go
// documents: "scope:bin_index".
func binID(scope string, binIndex int) string {
	return fmt.Sprintf("%s:%d", scope, binIndex)
}

// CalibrationBin is one confidence bucket's running prediction/outcome tally.
type CalibrationBin struct {
	Scope            string
	BinIndex         int
	Count            int
	PredictedCorrect int
	ActualCorrect    int
}

// CalibrationRepo persists pkg/calibration.Table state across restarts,
// scoped per tool/domain so different operations calibrate independently.
type CalibrationRepo struct {
	pool *pgxpool.Pool
}

// Get loads one bin, or a zero-valued bin (not ErrNotFound) if it has never
// recorded a prediction — callers treat an absent bin the same as an empty one.
func (r *CalibrationRepo) Get(ctx context.Context, scope string, binIndex int) (*CalibrationBin, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT scope, bin_index, count, predicted_correct, actual_correct
		FROM calibration_bins WHERE scope = $1 AND bin_index = $2`, scope, binIndex)
	var b CalibrationBin
	err := row.Scan(&b.Scope, &b.BinIndex, &b.Count, &b.PredictedCorrect, &b.ActualCorrect)
	if err == pgx.ErrNoRows {
		return &CalibrationBin{Scope: scope, BinIndex: binIndex}, nil
	}
	if err != nil {
		return nil, wrapErr("calibration_bin", "get", err)
	}
	return &b, nil
}

// All loads every bin for a scope, for a full-table snapshot/export.
func (r *CalibrationRepo) All(ctx context.Context, scope string) ([]*CalibrationBin, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT scope, bin_index, count, predicted_correct, actual_correct
		FROM calibration_bins WHERE scope = $1 ORDER BY bin_index`, scope)
	if err != nil {
		return nil, wrapErr("calibration_bin", "all", err)
	}
	defer rows.Close()
	var out []*CalibrationBin
	for rows.Next() {
		var b CalibrationBin
		if err := rows.Scan(&b.Scope, &b.BinIndex, &b.Count, &b.PredictedCorrect, &b.ActualCorrect); err != nil {
			return nil, wrapErr("calibration_bin", "all", err)
		}
		out = append(out, &b)
	}
	return out, wrapErr("calibration_bin", "all", rows.Err())
}

// RecordPrediction upserts a bin, incrementing count and predicted_correct
// by the given deltas (predicted_correct is incremented by 1 when the
// prediction itself claimed "correct", 0 otherwise).
func (r *CalibrationRepo) RecordPrediction(ctx context.Context, scope string, binIndex, predictedCorrectDelta int) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO calibration_bins (id, scope, bin_index, count, predicted_correct, actual_correct)
		VALUES ($1, $2, $3, 1, $4, 0)
		ON CONFLICT (scope, bin_index) DO UPDATE SET
			count = calibration_bins.count + 1,
			predicted_correct = calibration_bins.predicted_correct + $4`,
		binID(scope, binIndex), scope, binIndex, predictedCorrectDelta,
	)
	return wrapErr("calibration_bin", "record_prediction", err)
}

// RecordGroundTruth increments actual_correct once ground truth arrives
// for a previously recorded prediction.
func (r *CalibrationRepo) RecordGroundTruth(ctx context.Context, scope string, binIndex int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE calibration_bins SET actual_correct = actual_correct + 1
		WHERE scope = $1 AND bin_index = $2`, scope, binIndex)
	return wrapErr("calibration_bin", "record_ground_truth", err)
}
