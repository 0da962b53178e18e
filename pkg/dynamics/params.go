package dynamics

// Params enumerates every coefficient of the EISV ODE system. All fields are
// named explicitly rather than carried as a dynamic map — unknown override
// keys are a config-load error, not a silently-ignored field.
type Params struct {
	Alpha float64 `yaml:"alpha"` // E relaxes toward I at this rate
	BetaE float64 `yaml:"beta_e"`
	GammaE float64 `yaml:"gamma_e"`
	K      float64 `yaml:"k"`

	// BetaI is documented in source as 0.3, deliberately deviating from the
	// reference paper's 0.05 (operational tuning, see DESIGN.md).
	BetaI  float64 `yaml:"beta_i"`
	GammaI float64 `yaml:"gamma_i"`

	Mu float64 `yaml:"mu"`

	Lambda1Min  float64 `yaml:"lambda1_min"`
	Lambda1Max  float64 `yaml:"lambda1_max"`
	Lambda2Base float64 `yaml:"lambda2_base"`
	BetaC       float64 `yaml:"beta_c"`

	Kappa float64 `yaml:"kappa"`
	Delta float64 `yaml:"delta"`

	CMax float64 `yaml:"c_max"`

	// Eta1Min/Eta1Max bound theta.Eta1 in the PI controller's clamp; the
	// lambda1 lerp uses its own fixed (eta1-0.1)/0.4 mapping and does not
	// read them (spec calls these lambda1_min/max at the config
	// surface; kept distinct here since lambda1_min/max bound the derived
	// lambda1, while these bound the controlled eta1 directly).
	Eta1Min float64 `yaml:"eta1_min"`
	Eta1Max float64 `yaml:"eta1_max"`

	// JumpThreshold is the per-step |dx*dt| magnitude above which a warning
	// is logged (but the step still proceeds, clipped).
	JumpThreshold float64 `yaml:"jump_threshold"`

	DT float64 `yaml:"dt"`
}

// DefaultParams returns the built-in coefficient set. Mirrors the teacher's
// DefaultQueueConfig-style constructor: every field gets an explicit,
// documented value rather than relying on Go zero values.
func DefaultParams() Params {
	return Params{
		Alpha:  1.0,
		BetaE:  0.5,
		GammaE: 0.3,
		K:      0.4,

		BetaI:  0.3,
		GammaI: 0.6,

		Mu: 0.5,

		Lambda1Min:  0.05,
		Lambda1Max:  0.20,
		Lambda2Base: 0.3,
		BetaC:       0.2,

		Kappa: 0.3,
		Delta: 0.2,

		CMax: 1.0,

		Eta1Min: 0.1,
		Eta1Max: 0.5,

		JumpThreshold: 0.5,

		DT: 0.1,
	}
}

// Theta holds the slow-varying control parameters tuned by the PI loop.
type Theta struct {
	C1   float64 // in [0.5, 1.5]
	Eta1 float64 // in [0.1, 0.5]
}

// DefaultTheta returns the initial theta for a newly onboarded identity.
func DefaultTheta() Theta {
	return Theta{C1: 1.0, Eta1: 0.1}
}

// Bounds for each state component, per spec.md §3.1.
const (
	EMin, EMax = 0.0, 1.0
	IMin, IMax = 0.0, 1.0
	SMin, SMax = 1e-3, 2.0
	VMin, VMax = -2.0, 2.0

	// C1Min/C1Max bound theta.C1.
	C1Min, C1Max = 0.5, 1.5
)
