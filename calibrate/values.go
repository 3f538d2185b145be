package calibrate

import (
	"context"
	"fmt"

	"github.com/sky-flux/tutor"
	"github.com/sky-flux/tutor/history"
)

// DefaultValueWindow is the number of most recent rounds consulted when
// seeding learned values.
const DefaultValueWindow = 15

// InitialValues returns a starting value estimate per item from graded
// answers: accuracy × 5 − 2, so an always-missed item starts at −2 and an
// always-solved one at 3.
func InitialValues(obs []Observation) map[string]float64 {
	type tally struct{ correct, total int }
	stats := make(map[string]*tally)
	for _, o := range obs {
		t := stats[o.ItemID]
		if t == nil {
			t = &tally{}
			stats[o.ItemID] = t
		}
		t.total++
		if o.Correct {
			t.correct++
		}
	}

	values := make(map[string]float64, len(stats))
	for id, t := range stats {
		values[id] = float64(t.correct)/float64(t.total)*5 - 2
	}
	return values
}

// SeedSession fills the learned values of a fresh session from the last
// window rounds in store. Items the session already has a value for are
// left alone. A non-positive window means DefaultValueWindow.
func SeedSession(ctx context.Context, store history.Store, state *tutor.SessionState, window int) (int, error) {
	if window <= 0 {
		window = DefaultValueWindow
	}
	rounds, err := store.RecentRounds(ctx, window)
	if err != nil {
		return 0, fmt.Errorf("load rounds: %w", err)
	}
	if state.Values == nil {
		state.Values = make(map[string]float64)
	}
	seeded := 0
	for id, v := range InitialValues(ObservationsFromRounds(rounds)) {
		if _, ok := state.Values[id]; ok {
			continue
		}
		state.Values[id] = v
		seeded++
	}
	return seeded, nil
}
