package tutor

import (
	"encoding/binary"
	"sort"
	"time"

	"github.com/google/uuid"
)

// SessionState is the full adaptive state of one learner in one session.
// It is owned by a single session and is not safe for concurrent use.
type SessionState struct {
	ID        uuid.UUID
	Learner   string // optional host-assigned learner id
	StartedAt time.Time

	Ability  float64
	Variance float64

	Reviews map[string]ReviewEntry
	Answers map[string]AnswerRecord

	// RecentHard holds recently mastered hard items, most recent first.
	RecentHard *RecentList

	Values          map[string]float64 // learned value per item
	SelectionCounts map[string]int     // answered presentations per item
	TotalSelections int

	Mastery      map[string]float64 // knowledge point → highest difficulty answered correctly
	Difficulties map[string]int     // difficulty of every item recorded in this session

	Seed  int64  // per-session random stream
	Draws uint64 // selector calls consumed from the stream
}

func newSessionState(cfg Config, now time.Time) *SessionState {
	id := uuid.New()
	seed := cfg.Session.Seed
	if seed == 0 {
		seed = int64(binary.BigEndian.Uint64(id[:8]))
	}
	return &SessionState{
		ID:              id,
		StartedAt:       now,
		Ability:         cfg.Ability.Initial,
		Variance:        cfg.Ability.InitialVariance,
		Reviews:         make(map[string]ReviewEntry),
		Answers:         make(map[string]AnswerRecord),
		RecentHard:      NewRecentList(cfg.Session.RecentHardCapacity),
		Values:          make(map[string]float64),
		SelectionCounts: make(map[string]int),
		Mastery:         make(map[string]float64),
		Difficulties:    make(map[string]int),
		Seed:            seed,
	}
}

// RecentWrong returns up to n item ids whose latest answer was incorrect,
// most recent first. Ties on timestamp are ordered by id.
func (s *SessionState) RecentWrong(n int) []string {
	if n <= 0 {
		return nil
	}
	wrong := make([]AnswerRecord, 0)
	for _, rec := range s.Answers {
		if rec.Outcome == Incorrect {
			wrong = append(wrong, rec)
		}
	}
	sort.Slice(wrong, func(i, j int) bool {
		if !wrong[i].Timestamp.Equal(wrong[j].Timestamp) {
			return wrong[i].Timestamp.After(wrong[j].Timestamp)
		}
		return wrong[i].ItemID < wrong[j].ItemID
	})
	ids := make([]string, 0, min(n, len(wrong)))
	for _, rec := range wrong[:min(n, len(wrong))] {
		ids = append(ids, rec.ItemID)
	}
	return ids
}

// Accuracy returns the share of graded answers that were correct, and the
// number of graded answers.
func (s *SessionState) Accuracy() (float64, int) {
	var correct, graded int
	for _, rec := range s.Answers {
		if !rec.Outcome.Graded() {
			continue
		}
		graded++
		if rec.Outcome == Correct {
			correct++
		}
	}
	if graded == 0 {
		return 0, 0
	}
	return float64(correct) / float64(graded), graded
}

// DueItems returns the ids of scheduled items due at now, most overdue
// first.
func (s *SessionState) DueItems(now time.Time) []string {
	type due struct {
		id      string
		overdue float64
	}
	var list []due
	for id, e := range s.Reviews {
		if e.IsDue(now) {
			list = append(list, due{id: id, overdue: e.OverdueDays(now)})
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].overdue != list[j].overdue {
			return list[i].overdue > list[j].overdue
		}
		return list[i].id < list[j].id
	})
	ids := make([]string, len(list))
	for i, d := range list {
		ids[i] = d.id
	}
	return ids
}
