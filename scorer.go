package tutor

import (
	"math"
	"time"

	"go.uber.org/zap"
)

// Signals carries the inputs a score depends on beyond the item and the
// session state. Every field is optional.
type Signals struct {
	// RecentHard overrides state.RecentHard when non-nil.
	RecentHard []string
	// Neighbors answers similarity queries; nil disables suppression and boost.
	Neighbors NeighborLookup
	// HardDifficulty resolves the difficulty of recent hard items; nil
	// falls back to difficulties recorded in the session.
	HardDifficulty DifficultyLookup
	// Mastery resolves knowledge-point mastery; nil falls back to state.Mastery.
	Mastery MasteryLookup
	// Now is the evaluation time for review urgency; zero means the wall clock.
	Now time.Time
}

// ScoreBreakdown holds each weighted term of a score.
type ScoreBreakdown struct {
	ItemID      string  `json:"item_id"`
	Fit         float64 `json:"fit"`
	Review      float64 `json:"review"`
	Coverage    float64 `json:"coverage"`
	Suppression float64 `json:"suppression"` // ≤ 0
	Boost       float64 `json:"boost"`
	Value       float64 `json:"value"`
	Total       float64 `json:"total"`
}

// Scorer combines ability, schedule, answer history and similarity signals
// into one desirability score per candidate.
type Scorer struct {
	cfg    ScoringConfig
	logger *zap.Logger
}

// NewScorer creates a Scorer from a validated configuration.
func NewScorer(cfg ScoringConfig, logger *zap.Logger) (*Scorer, error) {
	full, err := Config{Scoring: cfg}.normalize()
	if err != nil {
		return nil, err
	}
	return newScorer(full.Scoring, logger), nil
}

func newScorer(cfg ScoringConfig, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{cfg: cfg, logger: logger}
}

// Score returns the summed desirability of item. It never fails: missing
// signals contribute zero.
func (s *Scorer) Score(item Item, state *SessionState, sig Signals) float64 {
	return s.Breakdown(item, state, sig).Total
}

// Breakdown returns every term of the score.
func (s *Scorer) Breakdown(item Item, state *SessionState, sig Signals) ScoreBreakdown {
	d := s.cfg.Difficulty.difficultyOf(item.Difficulty)
	now := wallClock(sig.Now)

	b := ScoreBreakdown{
		ItemID:      item.ID,
		Fit:         s.fit(d, state.Ability),
		Review:      s.review(item.ID, state, now),
		Coverage:    s.coverage(item, d, state, sig.Mastery),
		Suppression: -s.suppression(item.ID, d, s.recentHard(state, sig), state, sig),
		Boost:       s.boost(item.ID, state, sig.Neighbors),
		Value:       s.cfg.ValueWeight * state.Values[item.ID],
	}
	b.Total = b.Fit + b.Review + b.Coverage + b.Suppression + b.Boost + b.Value
	return b
}

// fit = −w·|d − ability|, maximal when the item matches the learner.
func (s *Scorer) fit(d int, ability float64) float64 {
	if !isFinite(ability) {
		s.logger.Warn("malformed ability ignored by difficulty fit", zap.Float64("ability", ability))
		return 0
	}
	return -s.cfg.FitWeight * math.Abs(float64(d)-ability)
}

// review = bonus + min(cap, rate·overdue days) for due items.
func (s *Scorer) review(id string, state *SessionState, now time.Time) float64 {
	entry, ok := state.Reviews[id]
	if !ok || !entry.IsDue(now) {
		return 0
	}
	return s.cfg.ReviewBonus + math.Min(s.cfg.OverdueCap, s.cfg.OverdueRate*entry.OverdueDays(now))
}

// coverage is a flat bonus when any knowledge point is below the item's
// difficulty.
func (s *Scorer) coverage(item Item, d int, state *SessionState, lookup MasteryLookup) float64 {
	for _, kp := range item.KnowledgePoints {
		level, ok := 0.0, false
		if lookup != nil {
			level, ok = lookup(kp)
		}
		if !ok {
			level = state.Mastery[kp]
		}
		if level < float64(d) {
			return s.cfg.CoverageBonus
		}
	}
	return 0
}

func (s *Scorer) recentHard(state *SessionState, sig Signals) []string {
	if sig.RecentHard != nil {
		return sig.RecentHard
	}
	return state.RecentHard.IDs()
}

// suppression sums suppress·sim·(dHard − d) over recent hard items that
// list the candidate as a close neighbor and are at least one level harder.
func (s *Scorer) suppression(id string, d int, hard []string, state *SessionState, sig Signals) float64 {
	if sig.Neighbors == nil || s.cfg.SuppressConstant == 0 {
		return 0
	}
	var penalty float64
	for _, hid := range hard {
		if hid == id {
			continue
		}
		nn, ok := sig.Neighbors(hid)
		if !ok {
			continue
		}
		sim, ok := nn.Similarity(id)
		if !ok || !isFinite(sim) || sim < s.cfg.SimilarityThreshold {
			continue
		}
		hd, ok := s.hardDifficulty(hid, state, sig.HardDifficulty)
		if !ok {
			continue
		}
		hd = max(s.cfg.HardDifficultyMin, hd)
		if d <= hd-1 {
			penalty += s.cfg.SuppressConstant * sim * float64(hd-d)
		}
	}
	return penalty
}

func (s *Scorer) hardDifficulty(id string, state *SessionState, lookup DifficultyLookup) (int, bool) {
	if lookup != nil {
		if d, ok := lookup(id); ok {
			return s.cfg.Difficulty.difficultyOf(d), true
		}
	}
	d, ok := state.Difficulties[id]
	if !ok {
		return 0, false
	}
	return s.cfg.Difficulty.difficultyOf(d), true
}

// boost sums boost·sim over the most recent incorrect answers that list the
// candidate as a positively similar neighbor.
func (s *Scorer) boost(id string, state *SessionState, lookup NeighborLookup) float64 {
	if lookup == nil || s.cfg.BoostConstant == 0 {
		return 0
	}
	var total float64
	for _, wid := range state.RecentWrong(s.cfg.BoostWindow) {
		if wid == id {
			continue
		}
		nn, ok := lookup(wid)
		if !ok {
			continue
		}
		sim, ok := nn.Similarity(id)
		if !ok || !isFinite(sim) || sim <= 0 {
			continue
		}
		total += s.cfg.BoostConstant * sim
	}
	return total
}
