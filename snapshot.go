package tutor

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// SnapshotVersion is the schema version written by Snapshot.
const SnapshotVersion = 1

// Snapshot is the serializable form of a SessionState. Restoring it
// reproduces identical scoring and selection given the same candidates and
// lookup answers.
type Snapshot struct {
	Version            int                     `json:"version"`
	ID                 string                  `json:"id"`
	Learner            string                  `json:"learner,omitempty"`
	StartedAt          time.Time               `json:"started_at"`
	Ability            float64                 `json:"ability"`
	Variance           float64                 `json:"variance"`
	Reviews            map[string]ReviewEntry  `json:"reviews"`
	Answers            map[string]AnswerRecord `json:"answers"`
	RecentHard         []string                `json:"recent_hard"`
	RecentHardCapacity int                     `json:"recent_hard_capacity"`
	Values             map[string]float64      `json:"values,omitempty"`
	SelectionCounts    map[string]int          `json:"selection_counts,omitempty"`
	TotalSelections    int                     `json:"total_selections"`
	Mastery            map[string]float64      `json:"mastery,omitempty"`
	Difficulties       map[string]int          `json:"difficulties,omitempty"`
	Seed               int64                   `json:"seed"`
	Draws              uint64                  `json:"draws"`
}

// Snapshot returns a deep copy of the state in serializable form.
func (s *SessionState) Snapshot() Snapshot {
	return Snapshot{
		Version:            SnapshotVersion,
		ID:                 s.ID.String(),
		Learner:            s.Learner,
		StartedAt:          s.StartedAt,
		Ability:            s.Ability,
		Variance:           s.Variance,
		Reviews:            maps.Clone(s.Reviews),
		Answers:            maps.Clone(s.Answers),
		RecentHard:         s.RecentHard.IDs(),
		RecentHardCapacity: s.RecentHard.Capacity(),
		Values:             maps.Clone(s.Values),
		SelectionCounts:    maps.Clone(s.SelectionCounts),
		TotalSelections:    s.TotalSelections,
		Mastery:            maps.Clone(s.Mastery),
		Difficulties:       maps.Clone(s.Difficulties),
		Seed:               s.Seed,
		Draws:              s.Draws,
	}
}

// RestoreSession rebuilds a SessionState from a snapshot. It rejects
// snapshots whose structure is inconsistent; bounded scalars are restored
// as-is and repaired on the next update.
func RestoreSession(snap Snapshot) (*SessionState, error) {
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrInvalidSnapshot, snap.Version, SnapshotVersion)
	}
	id, err := uuid.Parse(snap.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: id %q: %v", ErrInvalidSnapshot, snap.ID, err)
	}
	if snap.RecentHardCapacity < 0 || snap.TotalSelections < 0 {
		return nil, fmt.Errorf("%w: negative counter", ErrInvalidSnapshot)
	}
	for key, rec := range snap.Answers {
		if rec.ItemID != key {
			return nil, fmt.Errorf("%w: answer keyed %q records item %q", ErrInvalidSnapshot, key, rec.ItemID)
		}
	}
	for key, n := range snap.SelectionCounts {
		if n < 0 {
			return nil, fmt.Errorf("%w: negative selection count for %q", ErrInvalidSnapshot, key)
		}
	}

	recent := NewRecentList(snap.RecentHardCapacity)
	for i := len(snap.RecentHard) - 1; i >= 0; i-- {
		recent.Push(snap.RecentHard[i])
	}

	return &SessionState{
		ID:              id,
		Learner:         snap.Learner,
		StartedAt:       snap.StartedAt,
		Ability:         snap.Ability,
		Variance:        snap.Variance,
		Reviews:         cloneOrEmpty(snap.Reviews),
		Answers:         cloneOrEmpty(snap.Answers),
		RecentHard:      recent,
		Values:          cloneOrEmpty(snap.Values),
		SelectionCounts: cloneOrEmpty(snap.SelectionCounts),
		TotalSelections: snap.TotalSelections,
		Mastery:         cloneOrEmpty(snap.Mastery),
		Difficulties:    cloneOrEmpty(snap.Difficulties),
		Seed:            snap.Seed,
		Draws:           snap.Draws,
	}, nil
}

func cloneOrEmpty[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return make(map[K]V)
	}
	return maps.Clone(m)
}

// MarshalJSON implements json.Marshaler via Snapshot.
func (s *SessionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// UnmarshalJSON implements json.Unmarshaler via RestoreSession.
func (s *SessionState) UnmarshalJSON(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	restored, err := RestoreSession(snap)
	if err != nil {
		return err
	}
	*s = *restored
	return nil
}
