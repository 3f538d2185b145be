package tutor

// ValueLearner maintains the learned value estimate of each item with a
// temporal-difference rule:
//
//	Q ← Q + α·(r + γ·next − Q)
//
// where r is +Reward on a correct answer and −Penalty on an incorrect one.
type ValueLearner struct {
	cfg ValueConfig
}

// NewValueLearner creates a learner. Zero LearningRate disables learning.
func NewValueLearner(cfg ValueConfig) *ValueLearner {
	return &ValueLearner{cfg: cfg}
}

// Reward returns the immediate reward of an answer.
func (l *ValueLearner) Reward(correct bool) float64 {
	if correct {
		return l.cfg.Reward
	}
	return -l.cfg.Penalty
}

// Update blends one observation into values[itemID] and returns the new
// estimate. next is the best value reachable afterwards (0 when unknown).
func (l *ValueLearner) Update(values map[string]float64, itemID string, correct bool, next float64) float64 {
	current := values[itemID]
	target := l.Reward(correct) + l.cfg.Discount*next
	updated := current + l.cfg.LearningRate*(target-current)
	if !isFinite(updated) {
		return current
	}
	values[itemID] = updated
	return updated
}
