package calibrate

import (
	"context"
	"errors"
	"math"
	"math/rand"

	"github.com/sky-flux/tutor"
)

var (
	// ErrNoObservations is returned when no observations are provided.
	ErrNoObservations = errors.New("calibrate: no observations provided")

	// ErrInsufficientData is returned when observations are fewer than MinObservations.
	ErrInsufficientData = errors.New("calibrate: insufficient observations for calibration")
)

// Config configures the training process.
// Zero values are replaced with defaults.
type Config struct {
	Epochs          int     `json:"epochs" yaml:"epochs"`                     // default 20
	MiniBatchSize   int     `json:"mini_batch_size" yaml:"mini_batch_size"`   // default 256
	LearningRate    float64 `json:"learning_rate" yaml:"learning_rate"`       // default 0.05
	MaxSeqLen       int     `json:"max_seq_len" yaml:"max_seq_len"`           // default 512, most recent answers per learner
	MinObservations int     `json:"min_observations" yaml:"min_observations"` // default 32
	Regularization  float64 `json:"regularization" yaml:"regularization"`     // default 0.01
	Min             float64 `json:"min" yaml:"min"`                           // zero Min and Max → [1, 5]
	Max             float64 `json:"max" yaml:"max"`
	Seed            int64   `json:"seed" yaml:"seed"` // default 42
}

// Calibrator fits the logistic answer model to observations.
type Calibrator struct {
	epochs          int
	miniBatchSize   int
	learningRate    float64
	maxSeqLen       int
	minObservations int
	lambda          float64
	min, max        float64
	seed            int64
}

// NewCalibrator creates a Calibrator with the given config.
func NewCalibrator(cfg Config) *Calibrator {
	c := &Calibrator{
		epochs:          cfg.Epochs,
		miniBatchSize:   cfg.MiniBatchSize,
		learningRate:    cfg.LearningRate,
		maxSeqLen:       cfg.MaxSeqLen,
		minObservations: cfg.MinObservations,
		lambda:          cfg.Regularization,
		min:             cfg.Min,
		max:             cfg.Max,
		seed:            cfg.Seed,
	}
	if c.epochs == 0 {
		c.epochs = 20
	}
	if c.miniBatchSize == 0 {
		c.miniBatchSize = 256
	}
	if c.learningRate == 0 {
		c.learningRate = 0.05
	}
	if c.maxSeqLen == 0 {
		c.maxSeqLen = 512
	}
	if c.minObservations == 0 {
		c.minObservations = 32
	}
	if c.lambda == 0 {
		c.lambda = 0.01
	}
	if c.min == 0 && c.max == 0 {
		c.min, c.max = 1, 5
	}
	if c.seed == 0 {
		c.seed = 42
	}
	return c
}

func (c *Calibrator) center() float64 { return (c.min + c.max) / 2 }

// Fit estimates abilities and difficulties from observations. Every
// parameter starts at the center of [Min, Max] and stays within the bounds.
// The parameters of the epoch with the lowest full-data loss are returned.
//
// Returns ErrNoObservations if obs is empty, or ErrInsufficientData if
// fewer than MinObservations remain after per-learner truncation.
// The context can be used to cancel a long-running fit; the best result so
// far is returned with the context error.
func (c *Calibrator) Fit(ctx context.Context, obs []Observation) (*Result, error) {
	if len(obs) == 0 {
		return nil, ErrNoObservations
	}

	data := formatObservations(obs, c.maxSeqLen)
	n := data.size()
	if n < c.minObservations {
		return nil, ErrInsufficientData
	}

	obj := objective{data: data, center: c.center(), lambda: c.lambda}
	params := make([]float64, data.numParams())
	for i := range params {
		params[i] = obj.center
	}

	tMax := int(math.Ceil(float64(n)/float64(c.miniBatchSize))) * c.epochs
	adam := NewAdam(len(params), c.learningRate)
	ca := NewCosineAnnealing(c.learningRate, tMax)
	rng := rand.New(rand.NewSource(c.seed))

	order := make([]int, len(data.learners))
	for i := range order {
		order[i] = i
	}
	var all []sample
	for _, s := range data.byLearn {
		all = append(all, s...)
	}

	step := func(batch []sample) {
		grad := obj.gradient(params, batch)
		adam.SetLR(ca.LR())
		adam.Update(params, grad)
		c.clamp(params)
		ca.Step()
	}

	best := append([]float64(nil), params...)
	bestLoss := obj.loss(params, all)

	for epoch := 0; epoch < c.epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return c.result(data, best, bestLoss, n), err
		}

		rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})

		var batch []sample
		for _, li := range order {
			batch = append(batch, data.byLearn[li]...)
			if len(batch) >= c.miniBatchSize {
				step(batch)
				batch = batch[:0]
			}
		}
		if len(batch) > 0 {
			step(batch)
		}

		if loss := obj.loss(params, all); loss < bestLoss {
			bestLoss = loss
			copy(best, params)
		}
	}

	return c.result(data, best, bestLoss, n), nil
}

// Loss returns the mean binary cross-entropy of res on obs, without
// regularization. Learners and items res does not know are placed at the
// center of the bounds. Returns 0 for no observations.
func (c *Calibrator) Loss(res *Result, obs []Observation) float64 {
	if len(obs) == 0 {
		return 0
	}
	var total float64
	for _, o := range obs {
		a, ok := res.Abilities[o.Learner]
		if !ok {
			a = c.center()
		}
		d, ok := res.Difficulties[o.ItemID]
		if !ok {
			d = c.center()
		}
		y := 0.0
		if o.Correct {
			y = 1.0
		}
		total += bceLoss(sigmoid(a-d), y)
	}
	return total / float64(len(obs))
}

// clamp constrains each parameter to [min, max].
func (c *Calibrator) clamp(params []float64) {
	for i, w := range params {
		params[i] = math.Min(math.Max(w, c.min), c.max)
	}
}

func (c *Calibrator) result(data *dataset, params []float64, loss float64, n int) *Result {
	res := &Result{
		Abilities:    make(map[string]float64, len(data.learners)),
		Difficulties: make(map[string]float64, len(data.items)),
		Loss:         loss,
		Observations: n,
		Min:          c.min,
		Max:          c.max,
	}
	for i, id := range data.learners {
		res.Abilities[id] = params[i]
	}
	for i, id := range data.items {
		res.Difficulties[id] = params[data.itemParam(i)]
	}
	return res
}

// Result holds fitted parameters.
type Result struct {
	Abilities    map[string]float64 `json:"abilities"`
	Difficulties map[string]float64 `json:"difficulties"`
	Loss         float64            `json:"loss"` // training objective at the returned parameters
	Observations int                `json:"observations"`
	Min          float64            `json:"min"`
	Max          float64            `json:"max"`
}

// Level returns the fitted difficulty of an item rounded to the nearest
// whole level within [Min, Max].
func (r *Result) Level(itemID string) (int, bool) {
	d, ok := r.Difficulties[itemID]
	if !ok {
		return 0, false
	}
	lo, hi := math.Ceil(r.Min), math.Floor(r.Max)
	return int(math.Min(math.Max(math.Round(d), lo), hi)), true
}

// DifficultyLookup adapts Level for tutor.WithHardDifficulty.
func (r *Result) DifficultyLookup() tutor.DifficultyLookup {
	return r.Level
}

// Apply returns a copy of items with fitted levels filled in. Items with a
// declared difficulty keep it unless overwrite is set.
func (r *Result) Apply(items []tutor.Item, overwrite bool) []tutor.Item {
	out := make([]tutor.Item, len(items))
	for i, it := range items {
		if level, ok := r.Level(it.ID); ok && (overwrite || it.Difficulty == 0) {
			it.Difficulty = level
		}
		out[i] = it
	}
	return out
}
