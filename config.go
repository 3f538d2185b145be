package tutor

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
)

// Config configures an Engine. Start from DefaultConfig: the structural
// fields (bounds, interval table, temperature, capacities) fall back to
// defaults when left zero, but scoring weights and constants are taken as
// given, so a zero weight disables its term.
type Config struct {
	Ability   AbilityConfig   `yaml:"ability" json:"ability"`
	Review    ReviewConfig    `yaml:"review" json:"review"`
	Scoring   ScoringConfig   `yaml:"scoring" json:"scoring"`
	Selection SelectionConfig `yaml:"selection" json:"selection"`
	Value     ValueConfig     `yaml:"value" json:"value"`
	Session   SessionConfig   `yaml:"session" json:"session"`
}

// AbilityConfig configures the AbilityTracker.
type AbilityConfig struct {
	Model           AbilityModel `yaml:"model" json:"model"`                       // zero → AbilityLogistic
	Initial         float64      `yaml:"initial" json:"initial"`                   // zero → 1.0
	InitialVariance float64      `yaml:"initial_variance" json:"initial_variance"` // zero → 1.0
	Min             float64      `yaml:"min" json:"min"`                           // zero Min and Max → [1, 5]
	Max             float64      `yaml:"max" json:"max"`
	VarianceMin     float64      `yaml:"variance_min" json:"variance_min" validate:"gte=0"` // zero pair → [0.1, 2]
	VarianceMax     float64      `yaml:"variance_max" json:"variance_max" validate:"gte=0"`
	StepCorrect     float64      `yaml:"step_correct" json:"step_correct" validate:"gte=0"` // fixed-step gain
	StepWrong       float64      `yaml:"step_wrong" json:"step_wrong" validate:"gte=0"`     // fixed-step loss
	StepMin         float64      `yaml:"step_min" json:"step_min" validate:"gte=0"`         // logistic step floor
	StepMax         float64      `yaml:"step_max" json:"step_max" validate:"gte=0"`         // logistic step ceiling
	Shrink          float64      `yaml:"shrink" json:"shrink" validate:"gte=0,lte=1"`       // variance shrink rate
}

// ReviewConfig configures the ReviewScheduler.
type ReviewConfig struct {
	Policy           Policy  `yaml:"policy" json:"policy"`                                                // zero → PolicySM2
	IntervalsDays    []int   `yaml:"intervals_days" json:"intervals_days" validate:"omitempty,dive,gt=0"` // nil → [1, 3, 7, 21]
	MinIntervalDays  float64 `yaml:"min_interval_days" json:"min_interval_days" validate:"gte=0"`         // zero → 1
	MaxIntervalDays  float64 `yaml:"max_interval_days" json:"max_interval_days" validate:"gte=0"`         // zero → 180
	InitialEasiness  float64 `yaml:"initial_easiness" json:"initial_easiness" validate:"gte=0"`           // zero → 2.5
	EasinessFloor    float64 `yaml:"easiness_floor" json:"easiness_floor" validate:"gte=0"`               // zero → 1.3
	CorrectQuality   int     `yaml:"correct_quality" json:"correct_quality" validate:"gte=0,lte=5"`       // zero → 4
	IncorrectQuality int     `yaml:"incorrect_quality" json:"incorrect_quality" validate:"gte=0,lte=5"`   // zero → 2
}

// DifficultyScale is the declared difficulty range of the catalog.
type DifficultyScale struct {
	Min     int `yaml:"min" json:"min"`         // zero Min and Max → [1, 5]
	Max     int `yaml:"max" json:"max"`         // inclusive
	Default int `yaml:"default" json:"default"` // zero → midpoint
}

// ScoringConfig configures the Scorer. Every constant must be ≥ 0.
type ScoringConfig struct {
	Difficulty          DifficultyScale `yaml:"difficulty" json:"difficulty"`
	FitWeight           float64         `yaml:"fit_weight" json:"fit_weight" validate:"gte=0"`
	ReviewBonus         float64         `yaml:"review_bonus" json:"review_bonus" validate:"gte=0"`
	OverdueRate         float64         `yaml:"overdue_rate" json:"overdue_rate" validate:"gte=0"` // per day overdue
	OverdueCap          float64         `yaml:"overdue_cap" json:"overdue_cap" validate:"gte=0"`
	CoverageBonus       float64         `yaml:"coverage_bonus" json:"coverage_bonus" validate:"gte=0"`
	SimilarityThreshold float64         `yaml:"similarity_threshold" json:"similarity_threshold" validate:"gte=0,lte=1"`
	SuppressConstant    float64         `yaml:"suppress_constant" json:"suppress_constant" validate:"gte=0"`
	HardDifficultyMin   int             `yaml:"hard_difficulty_min" json:"hard_difficulty_min" validate:"gte=0"`
	BoostConstant       float64         `yaml:"boost_constant" json:"boost_constant" validate:"gte=0"`
	BoostWindow         int             `yaml:"boost_window" json:"boost_window" validate:"gte=0"`
	ValueWeight         float64         `yaml:"value_weight" json:"value_weight" validate:"gte=0"`
}

// SelectionConfig configures the Selector.
type SelectionConfig struct {
	Strategy    Strategy `yaml:"strategy" json:"strategy"`                          // zero → StrategySoftmax
	Temperature float64  `yaml:"temperature" json:"temperature" validate:"gte=0"`   // zero → 0.5
	UCBConstant float64  `yaml:"ucb_constant" json:"ucb_constant" validate:"gte=0"` // zero → √2
}

// ValueConfig configures the learned value term.
type ValueConfig struct {
	LearningRate float64 `yaml:"learning_rate" json:"learning_rate" validate:"gte=0,lte=1"`
	Discount     float64 `yaml:"discount" json:"discount" validate:"gte=0,lte=1"`
	Reward       float64 `yaml:"reward" json:"reward" validate:"gte=0"`
	Penalty      float64 `yaml:"penalty" json:"penalty" validate:"gte=0"`
}

// SessionConfig configures new sessions.
type SessionConfig struct {
	RecentHardCapacity int   `yaml:"recent_hard_capacity" json:"recent_hard_capacity" validate:"gte=0"` // zero → 30
	Seed               int64 `yaml:"seed" json:"seed"`                                                  // zero → time-based per session
}

// DefaultConfig returns the documented defaults for every component.
func DefaultConfig() Config {
	return Config{
		Ability: AbilityConfig{
			Model:           AbilityLogistic,
			Initial:         1.0,
			InitialVariance: 1.0,
			Min:             1.0,
			Max:             5.0,
			VarianceMin:     0.1,
			VarianceMax:     2.0,
			StepCorrect:     0.15,
			StepWrong:       0.15,
			StepMin:         0.05,
			StepMax:         0.5,
			Shrink:          0.1,
		},
		Review: ReviewConfig{
			Policy:           PolicySM2,
			IntervalsDays:    []int{1, 3, 7, 21},
			MinIntervalDays:  1,
			MaxIntervalDays:  180,
			InitialEasiness:  2.5,
			EasinessFloor:    1.3,
			CorrectQuality:   4,
			IncorrectQuality: 2,
		},
		Scoring: ScoringConfig{
			Difficulty:          DifficultyScale{Min: 1, Max: 5, Default: 3},
			FitWeight:           1.0,
			ReviewBonus:         2.0,
			OverdueRate:         1.0,
			OverdueCap:          3.0,
			CoverageBonus:       0.5,
			SimilarityThreshold: 0.70,
			SuppressConstant:    6.0,
			HardDifficultyMin:   3,
			BoostConstant:       3.0,
			BoostWindow:         10,
			ValueWeight:         1.0,
		},
		Selection: SelectionConfig{
			Strategy:    StrategySoftmax,
			Temperature: 0.5,
			UCBConstant: math.Sqrt2,
		},
		Value: ValueConfig{
			LearningRate: 0.1,
			Discount:     0.9,
			Reward:       1.0,
			Penalty:      0.5,
		},
		Session: SessionConfig{
			RecentHardCapacity: 30,
		},
	}
}

// withDefaults fills zero structural fields. Weights are left untouched.
func (c Config) withDefaults() Config {
	d := DefaultConfig()

	a := &c.Ability
	if a.Model == 0 {
		a.Model = d.Ability.Model
	}
	if a.Min == 0 && a.Max == 0 {
		a.Min, a.Max = d.Ability.Min, d.Ability.Max
	}
	if a.Initial == 0 {
		a.Initial = d.Ability.Initial
	}
	if a.VarianceMin == 0 && a.VarianceMax == 0 {
		a.VarianceMin, a.VarianceMax = d.Ability.VarianceMin, d.Ability.VarianceMax
	}
	if a.InitialVariance == 0 {
		a.InitialVariance = d.Ability.InitialVariance
	}

	r := &c.Review
	if r.Policy == 0 {
		r.Policy = d.Review.Policy
	}
	if r.IntervalsDays == nil {
		r.IntervalsDays = d.Review.IntervalsDays
	}
	if r.MinIntervalDays == 0 {
		r.MinIntervalDays = d.Review.MinIntervalDays
	}
	if r.MaxIntervalDays == 0 {
		r.MaxIntervalDays = d.Review.MaxIntervalDays
	}
	if r.InitialEasiness == 0 {
		r.InitialEasiness = d.Review.InitialEasiness
	}
	if r.EasinessFloor == 0 {
		r.EasinessFloor = d.Review.EasinessFloor
	}
	if r.CorrectQuality == 0 {
		r.CorrectQuality = d.Review.CorrectQuality
	}
	if r.IncorrectQuality == 0 {
		r.IncorrectQuality = d.Review.IncorrectQuality
	}

	s := &c.Scoring.Difficulty
	if s.Min == 0 && s.Max == 0 {
		s.Min, s.Max = d.Scoring.Difficulty.Min, d.Scoring.Difficulty.Max
	}
	if s.Default == 0 {
		s.Default = (s.Min + s.Max) / 2
	}

	sel := &c.Selection
	if sel.Strategy == 0 {
		sel.Strategy = d.Selection.Strategy
	}
	if sel.Temperature == 0 {
		sel.Temperature = d.Selection.Temperature
	}
	if sel.UCBConstant == 0 {
		sel.UCBConstant = d.Selection.UCBConstant
	}

	if c.Session.RecentHardCapacity == 0 {
		c.Session.RecentHardCapacity = d.Session.RecentHardCapacity
	}
	return c
}

var validate = validator.New()

// Validate applies structural defaults and reports the first invalid
// constant, wrapped in ErrInvalidConfig. Invalid values are never clamped.
func (c Config) Validate() error {
	_, err := c.normalize()
	return err
}

func (c Config) normalize() (Config, error) {
	c = c.withDefaults()
	if err := validate.Struct(c); err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	for _, check := range []func() error{
		c.Ability.check, c.Review.check, c.Scoring.check, c.Selection.check,
	} {
		if err := check(); err != nil {
			return c, err
		}
	}
	return c, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
}

func (a AbilityConfig) check() error {
	if !a.Model.isValid() {
		return invalid("ability model %d", int(a.Model))
	}
	if !(a.Min < a.Max) {
		return invalid("ability bounds [%v, %v] must satisfy min < max", a.Min, a.Max)
	}
	if a.Initial < a.Min || a.Initial > a.Max {
		return invalid("initial ability %v outside [%v, %v]", a.Initial, a.Min, a.Max)
	}
	if !(a.VarianceMin > 0 && a.VarianceMin < a.VarianceMax) {
		return invalid("variance bounds [%v, %v] must satisfy 0 < min < max", a.VarianceMin, a.VarianceMax)
	}
	if a.InitialVariance < a.VarianceMin || a.InitialVariance > a.VarianceMax {
		return invalid("initial variance %v outside [%v, %v]", a.InitialVariance, a.VarianceMin, a.VarianceMax)
	}
	if a.StepMin > a.StepMax {
		return invalid("logistic step bounds [%v, %v] must satisfy min ≤ max", a.StepMin, a.StepMax)
	}
	return nil
}

func (r ReviewConfig) check() error {
	if !r.Policy.isValid() {
		return invalid("review policy %d", int(r.Policy))
	}
	if len(r.IntervalsDays) == 0 {
		return invalid("review interval table is empty")
	}
	for i, d := range r.IntervalsDays {
		if d <= 0 {
			return invalid("review interval %d is %d days, must be positive", i, d)
		}
		if i > 0 && d <= r.IntervalsDays[i-1] {
			return invalid("review intervals %v are not strictly ascending", r.IntervalsDays)
		}
	}
	if !(r.MinIntervalDays > 0 && r.MinIntervalDays <= r.MaxIntervalDays) {
		return invalid("interval bounds [%v, %v] must satisfy 0 < min ≤ max", r.MinIntervalDays, r.MaxIntervalDays)
	}
	last := float64(r.IntervalsDays[len(r.IntervalsDays)-1])
	if float64(r.IntervalsDays[0]) < r.MinIntervalDays || last > r.MaxIntervalDays {
		return invalid("review intervals %v outside [%v, %v]", r.IntervalsDays, r.MinIntervalDays, r.MaxIntervalDays)
	}
	if !(r.EasinessFloor > 1.0) {
		return invalid("easiness floor %v must exceed 1.0", r.EasinessFloor)
	}
	if r.InitialEasiness < r.EasinessFloor {
		return invalid("initial easiness %v below floor %v", r.InitialEasiness, r.EasinessFloor)
	}
	return nil
}

func (s ScoringConfig) check() error {
	d := s.Difficulty
	if !(d.Min < d.Max) {
		return invalid("difficulty scale [%d, %d] must satisfy min < max", d.Min, d.Max)
	}
	if d.Default < d.Min || d.Default > d.Max {
		return invalid("default difficulty %d outside [%d, %d]", d.Default, d.Min, d.Max)
	}
	return nil
}

func (s SelectionConfig) check() error {
	if !s.Strategy.isValid() {
		return invalid("selection strategy %d", int(s.Strategy))
	}
	if !(s.Temperature > 0) || math.IsInf(s.Temperature, 0) {
		return invalid("softmax temperature %v must be positive and finite", s.Temperature)
	}
	return nil
}
