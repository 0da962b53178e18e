// Package calibration implements the confidence-bin correction described in
// spec.md §4.8: a histogram over reported-confidence bins, Laplace-smoothed
// toward the observed actual-correct rate, with an insufficient-samples
// short-circuit (P12). Grounded on the teacher's typed-table-over-a-map
// style (pkg/config registries) rather than a bare map[int]struct.
package calibration

// MinSamples is the count below which a bin is treated as "insufficient
// samples" and correction is a no-op (P12).
const MinSamples = 10

// BinCount is the number of confidence bins: [0.0,0.1), ..., [0.9,1.0].
const BinCount = 10

// Bin tracks one confidence histogram bucket.
type Bin struct {
	Count            int
	PredictedCorrect int
	ActualCorrect    int
}

// Table is a per-agent (or global) calibration histogram.
type Table struct {
	bins [BinCount]Bin
}

// NewTable returns an empty calibration table.
func NewTable() *Table {
	return &Table{}
}

// BinIndex maps a confidence in [0,1] to its bin index, clamped at the edges.
func BinIndex(confidence float64) int {
	idx := int(confidence * float64(BinCount))
	if idx < 0 {
		idx = 0
	}
	if idx >= BinCount {
		idx = BinCount - 1
	}
	return idx
}

// RecordPrediction increments the bin's count and predicted-correct tally
// for a reported confidence. Called once per checkin.
func (t *Table) RecordPrediction(confidence float64, predictedCorrect bool) {
	idx := BinIndex(confidence)
	t.bins[idx].Count++
	if predictedCorrect {
		t.bins[idx].PredictedCorrect++
	}
}

// RecordGroundTruth is the out-of-band update from
// update_calibration_ground_truth: it adjusts the actual-correct tally for
// a bin based on an externally supplied outcome signal.
func (t *Table) RecordGroundTruth(confidence float64, actualCorrect bool) {
	idx := BinIndex(confidence)
	if actualCorrect {
		t.bins[idx].ActualCorrect++
	}
}

// Bin returns a copy of the bin for the given confidence.
func (t *Table) Bin(confidence float64) Bin {
	return t.bins[BinIndex(confidence)]
}

// Snapshot returns a copy of all bins, for persistence or export.
func (t *Table) Snapshot() [BinCount]Bin {
	return t.bins
}

// LoadSnapshot restores a table from a persisted snapshot.
func LoadSnapshot(bins [BinCount]Bin) *Table {
	return &Table{bins: bins}
}

// Correct applies Laplace-smoothed calibration correction to a reported
// confidence. Bins with fewer than MinSamples samples are "insufficient
// samples": the raw confidence passes through unchanged (P12).
func (t *Table) Correct(confidence float64) (corrected float64, sufficientSamples bool) {
	return CorrectBin(confidence, t.Bin(confidence))
}

// CorrectBin applies the same Laplace-smoothed correction as Correct, but
// over an already-loaded Bin — used by pkg/monitor, which keeps calibration
// counts in Postgres (pkg/store.CalibrationRepo) rather than an in-memory
// Table, so there is no live Table instance to call Correct on.
func CorrectBin(confidence float64, bin Bin) (corrected float64, sufficientSamples bool) {
	if bin.Count < MinSamples {
		return confidence, false
	}
	corrected = (float64(bin.ActualCorrect) + 1) / (float64(bin.Count) + 2)
	return corrected, true
}
