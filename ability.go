package tutor

import (
	"math"

	"go.uber.org/zap"
)

// AbilityTracker updates a learner's proficiency estimate and its variance
// after each graded answer.
type AbilityTracker struct {
	cfg    AbilityConfig
	logger *zap.Logger
}

// NewAbilityTracker creates a tracker from a validated configuration.
// A nil logger discards anomaly reports.
func NewAbilityTracker(cfg AbilityConfig, logger *zap.Logger) (*AbilityTracker, error) {
	full := Config{Ability: cfg}
	full, err := full.normalize()
	if err != nil {
		return nil, err
	}
	return newAbilityTracker(full.Ability, logger), nil
}

func newAbilityTracker(cfg AbilityConfig, logger *zap.Logger) *AbilityTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AbilityTracker{cfg: cfg, logger: logger}
}

// Update returns the new (ability, variance) after one answer at the given
// difficulty. Both results are always within the configured bounds.
//
// With AbilityLogistic the step is variance × Fisher information at the
// predicted probability, clamped to [StepMin, StepMax], applied to the
// prediction error. Variance shrinks by variance² × information × Shrink.
// Non-finite inputs fall back to the fixed-step rule.
func (t *AbilityTracker) Update(ability, variance float64, correct bool, difficulty float64) (float64, float64) {
	ability, variance = t.sanitize(ability, variance)

	if t.cfg.Model == AbilityLogistic {
		if !isFinite(difficulty) {
			t.logger.Warn("non-finite difficulty, using fixed-step ability update",
				zap.Float64("difficulty", difficulty))
		} else if a, v, ok := t.logisticUpdate(ability, variance, correct, difficulty); ok {
			return a, v
		} else {
			t.logger.Warn("logistic ability update diverged, using fixed step",
				zap.Float64("ability", ability), zap.Float64("variance", variance))
		}
	}
	return t.fixedStep(ability, variance, correct)
}

func (t *AbilityTracker) logisticUpdate(ability, variance float64, correct bool, difficulty float64) (float64, float64, bool) {
	p := sigmoid(ability - difficulty)
	info := p * (1 - p)

	y := 0.0
	if correct {
		y = 1.0
	}

	step := clamp(variance*info, t.cfg.StepMin, t.cfg.StepMax)
	a := ability + step*(y-p)
	v := variance * (1 - info*variance*t.cfg.Shrink)
	if !isFinite(a) || !isFinite(v) {
		return 0, 0, false
	}
	return t.clampAbility(a), t.clampVariance(v), true
}

func (t *AbilityTracker) fixedStep(ability, variance float64, correct bool) (float64, float64) {
	if correct {
		ability += t.cfg.StepCorrect
	} else {
		ability -= t.cfg.StepWrong
	}
	return t.clampAbility(ability), t.clampVariance(variance)
}

// sanitize repairs malformed state before an update: non-finite values are
// reset to the configured initial values, out-of-range values are clamped.
func (t *AbilityTracker) sanitize(ability, variance float64) (float64, float64) {
	if !isFinite(ability) {
		t.logger.Warn("malformed ability reset to initial value",
			zap.Float64("ability", ability), zap.Float64("initial", t.cfg.Initial))
		ability = t.cfg.Initial
	}
	if !isFinite(variance) {
		t.logger.Warn("malformed ability variance reset to initial value",
			zap.Float64("variance", variance), zap.Float64("initial", t.cfg.InitialVariance))
		variance = t.cfg.InitialVariance
	}
	if a := t.clampAbility(ability); a != ability {
		t.logger.Warn("ability out of bounds clamped", zap.Float64("ability", ability), zap.Float64("clamped", a))
		ability = a
	}
	if v := t.clampVariance(variance); v != variance {
		t.logger.Warn("variance out of bounds clamped", zap.Float64("variance", variance), zap.Float64("clamped", v))
		variance = v
	}
	return ability, variance
}

// Expected returns the predicted probability of a correct answer.
func (t *AbilityTracker) Expected(ability, difficulty float64) float64 {
	return sigmoid(ability - difficulty)
}

// ConfidenceInterval returns ability ± z·√variance clipped to the ability
// bounds. z = 1.96 gives a 95% interval.
func (t *AbilityTracker) ConfidenceInterval(ability, variance, z float64) (float64, float64) {
	margin := z * math.Sqrt(math.Max(variance, 0))
	return t.clampAbility(ability - margin), t.clampAbility(ability + margin)
}

func (t *AbilityTracker) clampAbility(a float64) float64 {
	return clamp(a, t.cfg.Min, t.cfg.Max)
}

func (t *AbilityTracker) clampVariance(v float64) float64 {
	return clamp(v, t.cfg.VarianceMin, t.cfg.VarianceMax)
}

// sigmoid is the numerically stable logistic function.
func sigmoid(x float64) float64 {
	if x >= 0 {
		z := math.Exp(-x)
		return 1 / (1 + z)
	}
	z := math.Exp(x)
	return z / (1 + z)
}

func clamp(x, lo, hi float64) float64 {
	return math.Min(math.Max(x, lo), hi)
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
