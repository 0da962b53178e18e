package dynamics

// PIController nudges theta.Eta1 toward target coherence and target
// void-event frequency, every N updates (default 10, see spec.md §4.1.4).
type PIController struct {
	Kp, Ki float64

	TargetCoherence float64
	TargetVoidFreq  float64

	// IntegralClamp bounds the accumulated integral term (anti-windup).
	IntegralClamp float64

	integral float64
}

// NewPIController returns a controller with the documented defaults.
func NewPIController(targetCoherence, targetVoidFreq float64) *PIController {
	return &PIController{
		Kp:              0.5,
		Ki:              0.1,
		TargetCoherence: targetCoherence,
		TargetVoidFreq:  targetVoidFreq,
		IntegralClamp:   0.2,
	}
}

// Tune computes a new theta.Eta1 given the measured coherence and void-event
// frequency over the last control interval. Pure with respect to its
// receiver's persisted integral term — callers own persistence of the
// controller's integral state alongside theta, the same as any other
// per-agent field.
func (c *PIController) Tune(theta Theta, measuredCoherence, measuredVoidFreq float64, p Params) Theta {
	errCoherence := measuredCoherence - c.TargetCoherence
	errVoidFreq := measuredVoidFreq - c.TargetVoidFreq

	// Combine the two error signals; void-frequency overshoot should push
	// eta1 down (less aggressive ethical-drift weighting), coherence
	// undershoot should push it up.
	errSignal := -errCoherence - errVoidFreq

	c.integral += errSignal
	c.integral = clamp(c.integral, -c.IntegralClamp, c.IntegralClamp)

	delta := c.Kp*errSignal + c.Ki*c.integral
	theta.Eta1 = clamp(theta.Eta1+delta, p.Eta1Min, p.Eta1Max)
	return theta
}

// Integral exposes the controller's accumulated error term for persistence.
func (c *PIController) Integral() float64 { return c.integral }

// SetIntegral restores a persisted integral term (e.g. after process restart).
func (c *PIController) SetIntegral(v float64) { c.integral = v }

// ControlInterval is the number of updates between PI-controller runs.
const ControlInterval = 10
