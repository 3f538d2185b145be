package calibrate

import (
	"sort"
	"time"

	"github.com/sky-flux/tutor"
	"github.com/sky-flux/tutor/history"
)

// Observation is one graded answer used for fitting.
type Observation struct {
	Learner string    `json:"learner"`
	ItemID  string    `json:"item_id"`
	Correct bool      `json:"correct"`
	At      time.Time `json:"at"`
}

// ObservationsFromRounds flattens round summaries into observations.
// Ungraded answers are skipped. Rounds without a learner are attributed to
// their session.
func ObservationsFromRounds(rounds []history.Round) []Observation {
	var out []Observation
	for _, r := range rounds {
		learner := r.Learner
		if learner == "" {
			learner = r.SessionID.String()
		}
		for _, it := range r.Items {
			if !it.Outcome.Graded() {
				continue
			}
			out = append(out, Observation{
				Learner: learner,
				ItemID:  it.ID,
				Correct: it.Outcome == tutor.Correct,
				At:      it.At,
			})
		}
	}
	return out
}

// sample is one indexed observation.
type sample struct {
	learner int // index into the learner block of the parameter vector
	item    int // index into the item block
	label   float64
}

// dataset indexes learners and items into one parameter vector laid out
// as [learners..., items...].
type dataset struct {
	learners []string
	items    []string
	byLearn  [][]sample // samples grouped by learner, oldest first
}

func (d *dataset) numParams() int { return len(d.learners) + len(d.items) }

func (d *dataset) itemParam(i int) int { return len(d.learners) + i }

func (d *dataset) size() int {
	n := 0
	for _, s := range d.byLearn {
		n += len(s)
	}
	return n
}

// formatObservations groups observations by learner, sorts each group by
// time and keeps at most maxSeqLen of the most recent answers per learner.
func formatObservations(obs []Observation, maxSeqLen int) *dataset {
	if len(obs) == 0 {
		return nil
	}

	groups := make(map[string][]Observation)
	itemSet := make(map[string]struct{})
	for _, o := range obs {
		groups[o.Learner] = append(groups[o.Learner], o)
	}

	d := &dataset{}
	for learner := range groups {
		d.learners = append(d.learners, learner)
	}
	sort.Strings(d.learners)

	for _, learner := range d.learners {
		g := groups[learner]
		sort.SliceStable(g, func(i, j int) bool { return g[i].At.Before(g[j].At) })
		if maxSeqLen > 0 && len(g) > maxSeqLen {
			g = g[len(g)-maxSeqLen:]
		}
		groups[learner] = g
		for _, o := range g {
			itemSet[o.ItemID] = struct{}{}
		}
	}

	for id := range itemSet {
		d.items = append(d.items, id)
	}
	sort.Strings(d.items)
	itemIdx := make(map[string]int, len(d.items))
	for i, id := range d.items {
		itemIdx[id] = i
	}

	d.byLearn = make([][]sample, len(d.learners))
	for li, learner := range d.learners {
		g := groups[learner]
		samples := make([]sample, len(g))
		for i, o := range g {
			label := 0.0
			if o.Correct {
				label = 1.0
			}
			samples[i] = sample{learner: li, item: itemIdx[o.ItemID], label: label}
		}
		d.byLearn[li] = samples
	}
	return d
}
