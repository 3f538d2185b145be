package tutor

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Selector turns scored candidates into an ordered batch.
type Selector struct {
	scorer *Scorer
	cfg    SelectionConfig
}

// NewSelector creates a Selector over scorer.
func NewSelector(scorer *Scorer, cfg SelectionConfig) (*Selector, error) {
	full, err := Config{Selection: cfg}.normalize()
	if err != nil {
		return nil, err
	}
	return &Selector{scorer: scorer, cfg: full.Selection}, nil
}

// Strategy reports the configured strategy.
func (s *Selector) Strategy() Strategy { return s.cfg.Strategy }

type scored struct {
	item  Item
	score float64
	rank  float64 // ordering key: score for softmax, UCB priority for UCB
	tie   float64 // random tiebreak
}

// Choose returns at most k distinct candidates, best first.
//
// Softmax samples k items without replacement with probabilities
// proportional to exp(score/T). UCB ranks by score + C·√(ln N / n) with
// never-selected items first. When k covers every candidate, all of them
// are returned ordered by the ranking key. Duplicate ids return
// ErrDuplicateItem. Each call consumes one draw from the session's random
// stream, so a restored session repeats the same choices.
func (s *Selector) Choose(candidates []Item, state *SessionState, sig Signals, k int) ([]Item, error) {
	seen := make(map[string]struct{}, len(candidates))
	for _, it := range candidates {
		if _, dup := seen[it.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateItem, it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	if len(candidates) == 0 || k <= 0 {
		return []Item{}, nil
	}

	rng := sessionRand(state)
	list := make([]scored, len(candidates))
	for i, it := range candidates {
		sc := s.scorer.Score(it, state, sig)
		list[i] = scored{item: it, score: sc, rank: sc, tie: rng.Float64()}
	}
	if s.cfg.Strategy == StrategyUCB {
		for i := range list {
			list[i].rank = list[i].score + s.ucbBonus(list[i].item.ID, state)
		}
	}

	if k >= len(list) || s.cfg.Strategy == StrategyUCB {
		sortByRank(list)
		return itemsOf(list[:min(k, len(list))]), nil
	}
	return itemsOf(s.sampleSoftmax(list, k, rng)), nil
}

// ucbBonus returns C·√(ln N / n), +Inf for never-selected items.
func (s *Selector) ucbBonus(id string, state *SessionState) float64 {
	n := state.SelectionCounts[id]
	if n <= 0 {
		return math.Inf(1)
	}
	if state.TotalSelections <= 1 {
		return 0
	}
	return s.cfg.UCBConstant * math.Sqrt(math.Log(float64(state.TotalSelections))/float64(n))
}

// sampleSoftmax draws k entries without replacement, renormalizing over
// the remaining entries after each draw.
func (s *Selector) sampleSoftmax(list []scored, k int, rng *rand.Rand) []scored {
	remaining := append([]scored(nil), list...)
	sortByRank(remaining)

	out := make([]scored, 0, k)
	for len(out) < k && len(remaining) > 0 {
		scores := make([]float64, len(remaining))
		for i, r := range remaining {
			scores[i] = r.score
		}
		probs := SoftmaxProbabilities(scores, s.cfg.Temperature)

		idx := len(remaining) - 1
		u := rng.Float64()
		var acc float64
		for i, p := range probs {
			acc += p
			if u < acc {
				idx = i
				break
			}
		}
		out = append(out, remaining[idx])
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
	return out
}

// SoftmaxProbabilities returns exp((x − max)/T) normalized to sum to 1.
// Non-finite scores get probability 0; if none is finite the distribution
// is uniform. A non-positive temperature falls back to 0.1.
func SoftmaxProbabilities(scores []float64, temperature float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	if !(temperature > 0) {
		temperature = 0.1
	}
	m := math.Inf(-1)
	for _, x := range scores {
		if isFinite(x) && x > m {
			m = x
		}
	}
	probs := make([]float64, len(scores))
	if math.IsInf(m, -1) {
		for i := range probs {
			probs[i] = 1 / float64(len(probs))
		}
		return probs
	}
	var z float64
	for i, x := range scores {
		if !isFinite(x) {
			continue
		}
		probs[i] = math.Exp((x - m) / temperature)
		z += probs[i]
	}
	for i := range probs {
		probs[i] /= z
	}
	return probs
}

func sortByRank(list []scored) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.rank != b.rank {
			return a.rank > b.rank
		}
		if a.score != b.score {
			return a.score > b.score
		}
		if a.tie != b.tie {
			return a.tie > b.tie
		}
		return a.item.ID < b.item.ID
	})
}

func itemsOf(list []scored) []Item {
	out := make([]Item, len(list))
	for i, s := range list {
		out[i] = s.item
	}
	return out
}

// sessionRand derives the random source for one selector call from the
// session seed and draw counter, then advances the counter.
func sessionRand(state *SessionState) *rand.Rand {
	seed := state.Seed ^ int64(state.Draws*0x9E3779B97F4A7C15)
	state.Draws++
	return rand.New(rand.NewSource(seed))
}
