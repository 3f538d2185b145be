package tutor

import (
	"math"
	"reflect"
	"testing"
	"time"
)

func mustScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := NewScorer(DefaultConfig().Scoring, nil)
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	return s
}

func testState(ability float64) *SessionState {
	cfg := DefaultConfig()
	cfg.Session.Seed = 42
	s := newSessionState(cfg, t0)
	s.Ability = ability
	return s
}

func neighborTable(m map[string]Neighbors) NeighborLookup {
	return func(id string) (Neighbors, bool) {
		n, ok := m[id]
		return n, ok
	}
}

func TestScoreFit(t *testing.T) {
	s := mustScorer(t)
	st := testState(2.5)

	b := s.Breakdown(Item{ID: "a", Difficulty: 4}, st, Signals{Now: t0})
	assertFloat(t, "Fit", b.Fit, -1.5)
	assertFloat(t, "Total", b.Total, -1.5)

	// Unknown difficulty uses the scale default of 3.
	b = s.Breakdown(Item{ID: "b"}, st, Signals{Now: t0})
	assertFloat(t, "Fit unknown difficulty", b.Fit, -0.5)
}

func TestScoreSuppression(t *testing.T) {
	s := mustScorer(t)
	st := testState(2.5)
	st.RecentHard.Push("hard")
	st.Difficulties["hard"] = 4

	sig := Signals{
		Now: t0,
		Neighbors: neighborTable(map[string]Neighbors{
			"hard": {IDs: []string{"cand"}, Scores: []float64{0.85}},
		}),
	}
	cand := Item{ID: "cand", Difficulty: 2}

	b := s.Breakdown(cand, st, sig)
	assertFloat(t, "Suppression", b.Suppression, -10.2)

	plain := s.Breakdown(cand, st, Signals{Now: t0})
	assertFloat(t, "Total difference", plain.Total-b.Total, 10.2)
}

func TestScoreSuppressionHardLookup(t *testing.T) {
	s := mustScorer(t)
	st := testState(2.5)
	st.RecentHard.Push("hard")

	sig := Signals{
		Now: t0,
		Neighbors: neighborTable(map[string]Neighbors{
			"hard": {IDs: []string{"cand"}, Scores: []float64{0.85}},
		}),
		HardDifficulty: func(string) (int, bool) { return 5, true },
	}
	b := s.Breakdown(Item{ID: "cand", Difficulty: 2}, st, sig)
	assertFloat(t, "Suppression", b.Suppression, -6*0.85*3)
}

func TestScoreSuppressionOffScaleDifficulty(t *testing.T) {
	s := mustScorer(t)
	neighbors := neighborTable(map[string]Neighbors{
		"hard": {IDs: []string{"cand"}, Scores: []float64{0.85}},
	})
	cand := Item{ID: "cand", Difficulty: 2}

	tests := []struct {
		name   string
		lookup DifficultyLookup
		stored int
	}{
		{"lookup above scale", func(string) (int, bool) { return 99, true }, 4},
		{"lookup below scale", func(string) (int, bool) { return -7, true }, 4},
		{"stored above scale", nil, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := testState(2.5)
			st.RecentHard.Push("hard")
			st.Difficulties["hard"] = tt.stored
			sig := Signals{Now: t0, Neighbors: neighbors, HardDifficulty: tt.lookup}

			// Off-scale values fall back to the scale default of 3.
			b := s.Breakdown(cand, st, sig)
			assertFloat(t, "Suppression", b.Suppression, -6*0.85*1)
		})
	}
}

func TestScoreSuppressionSkipped(t *testing.T) {
	s := mustScorer(t)

	tests := []struct {
		name string
		sim  float64
		hard int
		cand int
	}{
		{"below threshold", 0.69, 4, 2},
		{"same difficulty", 0.9, 4, 4},
		{"harder candidate", 0.9, 4, 5},
		{"not a number", math.NaN(), 4, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := testState(3)
			st.RecentHard.Push("hard")
			st.Difficulties["hard"] = tt.hard
			sig := Signals{
				Now: t0,
				Neighbors: neighborTable(map[string]Neighbors{
					"hard": {IDs: []string{"cand"}, Scores: []float64{tt.sim}},
				}),
			}
			b := s.Breakdown(Item{ID: "cand", Difficulty: tt.cand}, st, sig)
			if b.Suppression != 0 {
				t.Errorf("Suppression = %v, want 0", b.Suppression)
			}
		})
	}
}

func TestScoreBoost(t *testing.T) {
	s := mustScorer(t)
	st := testState(3)
	st.Answers["wrong"] = AnswerRecord{ItemID: "wrong", Outcome: Incorrect, Timestamp: t0, Attempt: 1}

	sig := Signals{
		Now: t0,
		Neighbors: neighborTable(map[string]Neighbors{
			"wrong": {IDs: []string{"cand", "neg"}, Scores: []float64{0.80, -0.4}},
		}),
	}

	b := s.Breakdown(Item{ID: "cand", Difficulty: 3}, st, sig)
	assertFloat(t, "Boost", b.Boost, 2.4)

	b = s.Breakdown(Item{ID: "neg", Difficulty: 3}, st, sig)
	assertFloat(t, "Boost negative similarity", b.Boost, 0)
}

func TestScoreBoostWindow(t *testing.T) {
	s := mustScorer(t)
	st := testState(3)
	neighbors := map[string]Neighbors{}
	for i := 0; i < 12; i++ {
		id := string(rune('a' + i))
		st.Answers[id] = AnswerRecord{
			ItemID: id, Outcome: Incorrect, Attempt: 1,
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
		}
		neighbors[id] = Neighbors{IDs: []string{"cand"}, Scores: []float64{1}}
	}

	b := s.Breakdown(Item{ID: "cand", Difficulty: 3}, st, Signals{Now: t0, Neighbors: neighborTable(neighbors)})
	assertFloat(t, "Boost", b.Boost, 3*10)
}

func TestScoreReview(t *testing.T) {
	s := mustScorer(t)
	st := testState(3)
	st.Reviews["due"] = ReviewEntry{Policy: PolicySM2, IntervalDays: 1, Due: t0}
	st.Reviews["later"] = ReviewEntry{Policy: PolicySM2, IntervalDays: 1, Due: t0.Add(time.Hour)}

	tests := []struct {
		id   string
		now  time.Time
		want float64
	}{
		{"due", t0, 2},
		{"due", t0.Add(36 * time.Hour), 3.5},
		{"due", t0.Add(10 * 24 * time.Hour), 5},
		{"later", t0, 0},
		{"unscheduled", t0, 0},
	}
	for _, tt := range tests {
		b := s.Breakdown(Item{ID: tt.id, Difficulty: 3}, st, Signals{Now: tt.now})
		assertFloat(t, "Review "+tt.id, b.Review, tt.want)
	}
}

func TestScoreCoverage(t *testing.T) {
	s := mustScorer(t)
	st := testState(3)
	item := Item{ID: "a", Difficulty: 3, KnowledgePoints: []string{"fractions"}}

	b := s.Breakdown(item, st, Signals{Now: t0})
	assertFloat(t, "Coverage unmastered", b.Coverage, 0.5)

	st.Mastery["fractions"] = 3
	b = s.Breakdown(item, st, Signals{Now: t0})
	assertFloat(t, "Coverage from session mastery", b.Coverage, 0)

	lookup := func(string) (float64, bool) { return 2, true }
	b = s.Breakdown(item, st, Signals{Now: t0, Mastery: lookup})
	assertFloat(t, "Coverage from lookup", b.Coverage, 0.5)

	b = s.Breakdown(Item{ID: "b", Difficulty: 3}, st, Signals{Now: t0})
	assertFloat(t, "Coverage without tags", b.Coverage, 0)
}

func TestScoreValue(t *testing.T) {
	s := mustScorer(t)
	st := testState(3)
	st.Values["a"] = 0.4

	b := s.Breakdown(Item{ID: "a", Difficulty: 3}, st, Signals{Now: t0})
	assertFloat(t, "Value", b.Value, 0.4)
}

func TestScoreMissingNeighbors(t *testing.T) {
	s := mustScorer(t)
	st := testState(3)
	st.RecentHard.Push("hard")
	st.Difficulties["hard"] = 5
	st.Answers["wrong"] = AnswerRecord{ItemID: "wrong", Outcome: Incorrect, Timestamp: t0}

	unavailable := func(string) (Neighbors, bool) { return Neighbors{}, false }
	b := s.Breakdown(Item{ID: "cand", Difficulty: 1}, st, Signals{Now: t0, Neighbors: unavailable})
	if b.Suppression != 0 || b.Boost != 0 {
		t.Errorf("Suppression = %v, Boost = %v, want 0 and 0", b.Suppression, b.Boost)
	}
}

func TestScoreIsPure(t *testing.T) {
	s := mustScorer(t)
	st := testState(2.5)
	st.RecentHard.Push("hard")
	st.Difficulties["hard"] = 4
	st.Answers["wrong"] = AnswerRecord{ItemID: "wrong", Outcome: Incorrect, Timestamp: t0}
	sig := Signals{
		Now: t0,
		Neighbors: neighborTable(map[string]Neighbors{
			"hard":  {IDs: []string{"cand"}, Scores: []float64{0.85}},
			"wrong": {IDs: []string{"cand"}, Scores: []float64{0.8}},
		}),
	}
	before := st.Snapshot()
	item := Item{ID: "cand", Difficulty: 2}

	first := s.Score(item, st, sig)
	second := s.Score(item, st, sig)
	if first != second {
		t.Errorf("Score not repeatable: %v then %v", first, second)
	}
	if !reflect.DeepEqual(before, st.Snapshot()) {
		t.Error("Score mutated the session state")
	}
}

func TestScoreRecentHardOverride(t *testing.T) {
	s := mustScorer(t)
	st := testState(2.5)
	st.Difficulties["other"] = 4
	sig := Signals{
		Now:        t0,
		RecentHard: []string{"other"},
		Neighbors: neighborTable(map[string]Neighbors{
			"other": {IDs: []string{"cand"}, Scores: []float64{1}},
		}),
	}
	b := s.Breakdown(Item{ID: "cand", Difficulty: 2}, st, sig)
	assertFloat(t, "Suppression", b.Suppression, -12)
}
