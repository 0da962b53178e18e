package dynamics

// Sample is one point in the sliding window used for phase detection:
// just enough of the trajectory to tell exploration from integration.
type Sample struct {
	I          float64
	S          float64
	Complexity float64
}

// WindowSize is the sliding window length used by DetectPhase (spec.md §4.1.7).
const WindowSize = 10

// DetectPhase classifies the agent as exploring or integrating based on the
// last WindowSize samples (oldest first). Fewer than WindowSize+1 samples
// defaults to integration.
func DetectPhase(history []Sample) Phase {
	if len(history) < WindowSize+1 {
		return PhaseIntegration
	}
	window := history[len(history)-WindowSize:]

	first, last := window[0], window[len(window)-1]
	iGrowing := last.I > first.I
	sDeclining := last.S < first.S

	var avgComplexity float64
	for _, s := range window {
		avgComplexity += s.Complexity
	}
	avgComplexity /= float64(len(window))

	if iGrowing && sDeclining && avgComplexity > 0.5 {
		return PhaseExploration
	}
	return PhaseIntegration
}

// CoherenceThresholdFor applies the exploration-phase leniency: exploration
// lowers the coherence-critical threshold by 0.1 relative to integration.
func CoherenceThresholdFor(phase Phase, base float64) float64 {
	if phase == PhaseExploration {
		return base - 0.1
	}
	return base
}
