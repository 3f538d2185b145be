package calibrate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/sky-flux/tutor"
)

// syntheticObservations draws answers from the logistic model with
// difficulties 1..5 spread over items and abilities spread over learners.
func syntheticObservations(learners, items, perLearner int, seed int64) ([]Observation, map[string]float64) {
	rng := rand.New(rand.NewSource(seed))
	truth := make(map[string]float64, items)
	for i := 0; i < items; i++ {
		truth[fmt.Sprintf("item-%02d", i)] = 1 + 4*float64(i)/float64(items-1)
	}

	var obs []Observation
	for l := 0; l < learners; l++ {
		ability := 1.5 + 3*rng.Float64()
		for k := 0; k < perLearner; k++ {
			id := fmt.Sprintf("item-%02d", rng.Intn(items))
			p := 1 / (1 + math.Exp(-(ability - truth[id])))
			obs = append(obs, Observation{
				Learner: fmt.Sprintf("learner-%03d", l),
				ItemID:  id,
				Correct: rng.Float64() < p,
				At:      t0.Add(time.Duration(k) * time.Minute),
			})
		}
	}
	return obs, truth
}

func TestNewCalibratorDefaults(t *testing.T) {
	c := NewCalibrator(Config{})
	if c.epochs != 20 || c.miniBatchSize != 256 || c.learningRate != 0.05 {
		t.Errorf("defaults = %d/%d/%v", c.epochs, c.miniBatchSize, c.learningRate)
	}
	if c.min != 1 || c.max != 5 || c.center() != 3 {
		t.Errorf("bounds = [%v, %v]", c.min, c.max)
	}
}

func TestFitEmpty(t *testing.T) {
	_, err := NewCalibrator(Config{}).Fit(context.Background(), nil)
	if !errors.Is(err, ErrNoObservations) {
		t.Errorf("err = %v, want ErrNoObservations", err)
	}
}

func TestFitInsufficient(t *testing.T) {
	obs, _ := syntheticObservations(1, 5, 10, 1)
	_, err := NewCalibrator(Config{}).Fit(context.Background(), obs)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("err = %v, want ErrInsufficientData", err)
	}
}

func TestFitLowersLoss(t *testing.T) {
	obs, truth := syntheticObservations(60, 10, 40, 7)
	c := NewCalibrator(Config{Epochs: 30, MiniBatchSize: 128})

	res, err := c.Fit(context.Background(), obs)
	if err != nil {
		t.Fatal(err)
	}
	if res.Observations != len(obs) {
		t.Errorf("Observations = %d, want %d", res.Observations, len(obs))
	}

	baseline := c.Loss(&Result{}, obs)
	fitted := c.Loss(res, obs)
	if fitted >= baseline {
		t.Errorf("fitted loss %.4f, want < baseline %.4f", fitted, baseline)
	}

	if res.Difficulties["item-00"] >= res.Difficulties["item-09"] {
		t.Errorf("easiest item fitted at %.2f, hardest at %.2f",
			res.Difficulties["item-00"], res.Difficulties["item-09"])
	}
	if len(res.Difficulties) != len(truth) {
		t.Errorf("fitted %d items, want %d", len(res.Difficulties), len(truth))
	}
}

func TestFitParamsInBounds(t *testing.T) {
	obs, _ := syntheticObservations(30, 8, 30, 3)
	res, err := NewCalibrator(Config{Epochs: 10, LearningRate: 0.5}).Fit(context.Background(), obs)
	if err != nil {
		t.Fatal(err)
	}
	for id, d := range res.Difficulties {
		if d < 1 || d > 5 {
			t.Errorf("difficulty %s = %v out of bounds", id, d)
		}
	}
	for id, a := range res.Abilities {
		if a < 1 || a > 5 {
			t.Errorf("ability %s = %v out of bounds", id, a)
		}
	}
}

func TestFitReproducible(t *testing.T) {
	obs, _ := syntheticObservations(20, 6, 20, 5)
	c := NewCalibrator(Config{Epochs: 5})
	a, err := c.Fit(context.Background(), obs)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := c.Fit(context.Background(), obs)
	for id, d := range a.Difficulties {
		if b.Difficulties[id] != d {
			t.Errorf("difficulty %s: %v then %v", id, d, b.Difficulties[id])
		}
	}
}

func TestFitContextCancel(t *testing.T) {
	obs, _ := syntheticObservations(20, 6, 20, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewCalibrator(Config{}).Fit(ctx, obs)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if res == nil || res.Difficulties["item-00"] != 3 {
		t.Error("canceled fit should return the initial parameters")
	}
}

func TestResultLevel(t *testing.T) {
	res := &Result{
		Difficulties: map[string]float64{"a": 1.2, "b": 3.5, "c": 4.9, "d": 0.2},
		Min:          1, Max: 5,
	}
	tests := []struct {
		id   string
		want int
		ok   bool
	}{
		{"a", 1, true}, {"b", 4, true}, {"c", 5, true}, {"d", 1, true}, {"zz", 0, false},
	}
	lookup := res.DifficultyLookup()
	for _, tt := range tests {
		got, ok := lookup(tt.id)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Level(%s) = %d, %v; want %d, %v", tt.id, got, ok, tt.want, tt.ok)
		}
	}
}

func TestResultApply(t *testing.T) {
	res := &Result{Difficulties: map[string]float64{"a": 2.2, "b": 4.6}, Min: 1, Max: 5}
	items := []tutor.Item{{ID: "a"}, {ID: "b", Difficulty: 2}, {ID: "c"}}

	got := res.Apply(items, false)
	if got[0].Difficulty != 2 || got[1].Difficulty != 2 || got[2].Difficulty != 0 {
		t.Errorf("Apply = %+v", got)
	}
	if items[0].Difficulty != 0 {
		t.Error("Apply mutated its input")
	}

	got = res.Apply(items, true)
	if got[1].Difficulty != 5 {
		t.Errorf("overwrite: b = %d, want 5", got[1].Difficulty)
	}
}

func TestInitialValues(t *testing.T) {
	obs := []Observation{
		{ItemID: "a", Correct: true},
		{ItemID: "a", Correct: true},
		{ItemID: "b", Correct: false},
		{ItemID: "c", Correct: true},
		{ItemID: "c", Correct: false},
	}
	v := InitialValues(obs)
	assertFloat(t, "a", v["a"], 3)
	assertFloat(t, "b", v["b"], -2)
	assertFloat(t, "c", v["c"], 0.5)
	if len(InitialValues(nil)) != 0 {
		t.Error("no observations should give no values")
	}
}
