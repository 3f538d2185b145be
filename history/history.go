// Package history persists session snapshots and round summaries.
//
// Two stores implement [Store]: [FileStore] keeps one JSON snapshot per
// session and an append-only rounds.jsonl log in a directory; [SQLiteStore]
// keeps both in a SQLite database.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sky-flux/tutor"
)

var (
	// ErrNotFound is returned when no snapshot exists for a session.
	ErrNotFound = errors.New("history: session not found")

	// ErrInvalidRound is returned for rounds that cannot be stored.
	ErrInvalidRound = errors.New("history: invalid round")
)

// Round summarizes one batch of answered items.
type Round struct {
	ID        uuid.UUID   `json:"id"`
	SessionID uuid.UUID   `json:"session_id"`
	Learner   string      `json:"learner,omitempty"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   time.Time   `json:"ended_at"`
	Ability   float64     `json:"ability"` // ability after the round
	Items     []RoundItem `json:"items"`
}

// RoundItem is one answered item within a round.
type RoundItem struct {
	ID         string        `json:"id"`
	Difficulty int           `json:"difficulty"`
	Outcome    tutor.Outcome `json:"outcome"`
	At         time.Time     `json:"at"`
}

// Accuracy returns the share of graded items answered correctly.
func (r Round) Accuracy() float64 {
	var correct, graded int
	for _, it := range r.Items {
		if !it.Outcome.Graded() {
			continue
		}
		graded++
		if it.Outcome == tutor.Correct {
			correct++
		}
	}
	if graded == 0 {
		return 0
	}
	return float64(correct) / float64(graded)
}

// StartRound opens an empty round for the session at the given time.
// Answers are added with Add as they are recorded.
func StartRound(state *tutor.SessionState, at time.Time) Round {
	return Round{
		ID:        uuid.New(),
		SessionID: state.ID,
		Learner:   state.Learner,
		StartedAt: at,
		Ability:   state.Ability,
	}
}

// Add appends one attempt. Repeated attempts at an item are all kept.
func (r *Round) Add(rec tutor.AnswerRecord, difficulty int) {
	r.Items = append(r.Items, RoundItem{
		ID:         rec.ItemID,
		Difficulty: difficulty,
		Outcome:    rec.Outcome,
		At:         rec.Timestamp,
	})
}

// Finish stamps the end time and the ability after the round.
func (r *Round) Finish(state *tutor.SessionState, at time.Time) {
	r.EndedAt = at
	r.Ability = state.Ability
}

// NewRound builds a round from the answers a session recorded in
// [since, until]. The session keeps only the latest attempt per item, so
// earlier attempts within the window are not included; use StartRound and
// Add to keep every attempt. The round gets a fresh id.
func NewRound(state *tutor.SessionState, learner string, since, until time.Time) Round {
	r := Round{
		ID:        uuid.New(),
		SessionID: state.ID,
		Learner:   learner,
		StartedAt: since,
		EndedAt:   until,
		Ability:   state.Ability,
	}
	for id, rec := range state.Answers {
		if rec.Timestamp.Before(since) || rec.Timestamp.After(until) {
			continue
		}
		r.Items = append(r.Items, RoundItem{
			ID:         id,
			Difficulty: state.Difficulties[id],
			Outcome:    rec.Outcome,
			At:         rec.Timestamp,
		})
	}
	sortItems(r.Items)
	return r
}

func sortItems(items []RoundItem) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].At.Equal(items[j].At) {
			return items[i].At.Before(items[j].At)
		}
		return items[i].ID < items[j].ID
	})
}

func (r Round) validate() error {
	if r.ID == uuid.Nil {
		return fmt.Errorf("%w: missing id", ErrInvalidRound)
	}
	for _, it := range r.Items {
		if it.ID == "" {
			return fmt.Errorf("%w: item without id", ErrInvalidRound)
		}
		if !it.Outcome.IsValid() {
			return fmt.Errorf("%w: item %q: outcome %d", ErrInvalidRound, it.ID, int(it.Outcome))
		}
	}
	return nil
}

// Store persists snapshots and rounds. Implementations are safe for
// concurrent use.
type Store interface {
	// SaveSession writes the snapshot, replacing any earlier one.
	SaveSession(ctx context.Context, snap tutor.Snapshot) error
	// LoadSession returns the latest snapshot or ErrNotFound.
	LoadSession(ctx context.Context, id uuid.UUID) (tutor.Snapshot, error)
	// Sessions lists stored session ids.
	Sessions(ctx context.Context) ([]uuid.UUID, error)
	// AppendRound records a round summary.
	AppendRound(ctx context.Context, r Round) error
	// RecentRounds returns up to n rounds, oldest first, ending with the
	// most recently appended one.
	RecentRounds(ctx context.Context, n int) ([]Round, error)
	Close() error
}

// LoadOrStart restores a session from store, or starts a new one when id
// is nil or nothing is stored under it. The boolean reports whether a
// stored session was restored.
func LoadOrStart(ctx context.Context, store Store, engine *tutor.Engine, id uuid.UUID) (*tutor.SessionState, bool, error) {
	if id == uuid.Nil {
		return engine.NewSession(), false, nil
	}
	snap, err := store.LoadSession(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return engine.NewSession(), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	state, err := engine.Restore(snap)
	if err != nil {
		return nil, false, err
	}
	return state, true, nil
}
