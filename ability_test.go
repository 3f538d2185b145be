package tutor

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const epsilon = 1e-6

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func assertFloat(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > epsilon {
		t.Errorf("%s = %.6f, want %.6f (diff %.6f)", name, got, want, math.Abs(got-want))
	}
}

func mustTracker(t *testing.T, cfg AbilityConfig) *AbilityTracker {
	t.Helper()
	tr, err := NewAbilityTracker(cfg, nil)
	if err != nil {
		t.Fatalf("NewAbilityTracker: %v", err)
	}
	return tr
}

func TestAbilityLogisticCorrect(t *testing.T) {
	tr := mustTracker(t, DefaultConfig().Ability)

	// ability 3, difficulty 3: p = 0.5, I = 0.25, step = clamp(1·0.25) = 0.25.
	a, v := tr.Update(3, 1, true, 3)
	assertFloat(t, "ability", a, 3+0.25*0.5)
	assertFloat(t, "variance", v, 1*(1-0.25*1*0.1))
}

func TestAbilityLogisticIncorrect(t *testing.T) {
	tr := mustTracker(t, DefaultConfig().Ability)

	a, v := tr.Update(3, 1, false, 3)
	assertFloat(t, "ability", a, 3-0.25*0.5)
	if v >= 1 {
		t.Errorf("variance = %v, want < 1", v)
	}
}

func TestAbilityStepClamped(t *testing.T) {
	tr := mustTracker(t, DefaultConfig().Ability)

	// Far-off difficulty: information is tiny, so the step floor applies.
	p := sigmoid(5 - 1)
	a, _ := tr.Update(5, 2, false, 1)
	assertFloat(t, "ability", a, 5-0.05*p)
}

func TestAbilitySurpriseMovesFurther(t *testing.T) {
	tr := mustTracker(t, DefaultConfig().Ability)

	expected, _ := tr.Update(3, 1, true, 2) // p high, small gain
	surprise, _ := tr.Update(3, 1, true, 4) // p low, large gain
	if surprise-3 <= expected-3 {
		t.Errorf("surprising success gain %v, want > expected success gain %v", surprise-3, expected-3)
	}
}

func TestAbilityVarianceNonIncreasing(t *testing.T) {
	tr := mustTracker(t, DefaultConfig().Ability)
	a, v := 1.0, 1.0
	for i := 0; i < 200; i++ {
		na, nv := tr.Update(a, v, i%3 != 0, 3)
		if nv > v+epsilon {
			t.Fatalf("step %d: variance rose from %v to %v", i, v, nv)
		}
		if nv < 0.1-epsilon {
			t.Fatalf("step %d: variance %v below floor", i, nv)
		}
		a, v = na, nv
	}
}

func TestAbilityFixedStep(t *testing.T) {
	cfg := DefaultConfig().Ability
	cfg.Model = AbilityFixedStep
	tr := mustTracker(t, cfg)

	a, v := tr.Update(2, 1, true, 3)
	assertFloat(t, "ability after correct", a, 2.15)
	assertFloat(t, "variance", v, 1)

	a, _ = tr.Update(2, 1, false, 3)
	assertFloat(t, "ability after incorrect", a, 1.85)

	a, _ = tr.Update(4.95, 1, true, 3)
	assertFloat(t, "ability at ceiling", a, 5)
}

func TestAbilityBoundsProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, model := range []AbilityModel{AbilityLogistic, AbilityFixedStep} {
		cfg := DefaultConfig().Ability
		cfg.Model = model
		tr := mustTracker(t, cfg)

		a, v := cfg.Initial, cfg.InitialVariance
		for i := 0; i < 10000; i++ {
			d := float64(rng.Intn(5) + 1)
			a, v = tr.Update(a, v, rng.Intn(2) == 0, d)
			if a < 1 || a > 5 || math.IsNaN(a) {
				t.Fatalf("%v step %d: ability %v out of [1, 5]", model, i, a)
			}
			if v < 0.1 || v > 2 || math.IsNaN(v) {
				t.Fatalf("%v step %d: variance %v out of [0.1, 2]", model, i, v)
			}
		}
	}
}

func TestAbilityMalformedInput(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	tr, err := NewAbilityTracker(DefaultConfig().Ability, zap.New(core))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name                 string
		ability, variance, d float64
	}{
		{"NaN ability", math.NaN(), 1, 3},
		{"Inf variance", 3, math.Inf(1), 3},
		{"ability above bound", 9, 1, 3},
		{"variance below floor", 3, 0.001, 3},
		{"NaN difficulty", 3, 1, math.NaN()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := logs.Len()
			a, v := tr.Update(tt.ability, tt.variance, true, tt.d)
			if a < 1 || a > 5 || !isFinite(a) {
				t.Errorf("ability = %v, want finite in [1, 5]", a)
			}
			if v < 0.1 || v > 2 || !isFinite(v) {
				t.Errorf("variance = %v, want finite in [0.1, 2]", v)
			}
			if logs.Len() == before {
				t.Error("expected a warning to be logged")
			}
		})
	}
}

func TestAbilityConfidenceInterval(t *testing.T) {
	tr := mustTracker(t, DefaultConfig().Ability)
	lo, hi := tr.ConfidenceInterval(3, 0.25, 2)
	assertFloat(t, "low", lo, 2)
	assertFloat(t, "high", hi, 4)

	lo, hi = tr.ConfidenceInterval(1.2, 1, 1.96)
	assertFloat(t, "clipped low", lo, 1)
	assertFloat(t, "high", hi, 3.16)
}

func TestAbilityExpected(t *testing.T) {
	tr := mustTracker(t, DefaultConfig().Ability)
	assertFloat(t, "even match", tr.Expected(3, 3), 0.5)
	if tr.Expected(4, 2) <= 0.5 {
		t.Error("stronger learner should be favored")
	}
}

func TestSigmoidStable(t *testing.T) {
	if got := sigmoid(-1000); got != 0 || math.IsNaN(got) {
		t.Errorf("sigmoid(-1000) = %v, want 0", got)
	}
	if got := sigmoid(1000); got != 1 {
		t.Errorf("sigmoid(1000) = %v, want 1", got)
	}
}
