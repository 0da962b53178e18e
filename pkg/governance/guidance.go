package governance

import (
	"fmt"

	"github.com/cirwel/unitares-govcore/pkg/dynamics"
)

// DominantMetric names which EISV component is furthest from its healthy
// band, used to key guidance text for a "guide" verdict.
type DominantMetric string

const (
	MetricEnergy    DominantMetric = "energy"
	MetricIntegrity DominantMetric = "integrity"
	MetricEntropy   DominantMetric = "entropy"
	MetricVoid      DominantMetric = "void"
)

// healthyTarget is the center of each component's healthy band, used only
// to rank deviation for guidance text — not fed back into the dynamics.
var healthyTarget = map[DominantMetric]float64{
	MetricEnergy:    0.75,
	MetricIntegrity: 0.85,
	MetricEntropy:   0.2,
	MetricVoid:      0.0,
}

// Dominant returns the EISV component with the largest normalized deviation
// from its healthy target.
func Dominant(st dynamics.State) DominantMetric {
	deviations := map[DominantMetric]float64{
		MetricEnergy:    absf(st.E - healthyTarget[MetricEnergy]),
		MetricIntegrity: absf(st.I - healthyTarget[MetricIntegrity]),
		MetricEntropy:   absf(st.S - healthyTarget[MetricEntropy]),
		MetricVoid:      absf(st.V - healthyTarget[MetricVoid]),
	}

	best := MetricIntegrity
	bestVal := -1.0
	// Iterate in a fixed order so ties resolve deterministically.
	for _, m := range []DominantMetric{MetricIntegrity, MetricEntropy, MetricVoid, MetricEnergy} {
		if deviations[m] > bestVal {
			bestVal = deviations[m]
			best = m
		}
	}
	return best
}

// GuidanceText produces a short human-readable hint keyed on the dominant
// deviating metric, for "guide" verdicts.
func GuidanceText(st dynamics.State, phase dynamics.Phase) string {
	metric := Dominant(st)
	switch metric {
	case MetricEnergy:
		return fmt.Sprintf("energy (E=%.2f) is drifting from its healthy band; consider reducing task load", st.E)
	case MetricIntegrity:
		return fmt.Sprintf("integrity (I=%.2f) is below target; review recent outputs for coherence issues", st.I)
	case MetricEntropy:
		return fmt.Sprintf("entropy (S=%.2f) is elevated; expect noisier outputs until it decays", st.S)
	case MetricVoid:
		return fmt.Sprintf("void (V=%.2f) is accumulating E-I imbalance; monitor for sustained drift", st.V)
	default:
		if phase == dynamics.PhaseExploration {
			return "state is borderline but phase is exploration; proceed with caution"
		}
		return "state is borderline; proceed with caution"
	}
}
