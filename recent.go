package tutor

import "encoding/json"

// RecentList is a bounded, de-duplicated list of item ids ordered most
// recent first. Pushing past capacity drops the oldest id.
type RecentList struct {
	capacity int
	ids      []string
}

// NewRecentList creates an empty list holding at most capacity ids.
func NewRecentList(capacity int) *RecentList {
	return &RecentList{capacity: max(capacity, 0)}
}

// Push moves id to the front, removing any earlier occurrence.
func (r *RecentList) Push(id string) {
	if r.capacity == 0 {
		return
	}
	out := make([]string, 0, min(len(r.ids)+1, r.capacity))
	out = append(out, id)
	for _, existing := range r.ids {
		if len(out) == r.capacity {
			break
		}
		if existing != id {
			out = append(out, existing)
		}
	}
	r.ids = out
}

// IDs returns a copy of the ids, most recent first.
func (r *RecentList) IDs() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.ids...)
}

// Len returns the number of ids held.
func (r *RecentList) Len() int {
	if r == nil {
		return 0
	}
	return len(r.ids)
}

// Capacity returns the maximum number of ids held.
func (r *RecentList) Capacity() int { return r.capacity }

type recentListJSON struct {
	Capacity int      `json:"capacity"`
	IDs      []string `json:"ids"`
}

// MarshalJSON implements json.Marshaler.
func (r *RecentList) MarshalJSON() ([]byte, error) {
	return json.Marshal(recentListJSON{Capacity: r.capacity, IDs: r.IDs()})
}

// UnmarshalJSON implements json.Unmarshaler. Ids beyond capacity and
// duplicates are dropped, keeping the most recent.
func (r *RecentList) UnmarshalJSON(data []byte) error {
	var j recentListJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	rebuilt := NewRecentList(j.Capacity)
	for i := len(j.IDs) - 1; i >= 0; i-- {
		rebuilt.Push(j.IDs[i])
	}
	*r = *rebuilt
	return nil
}
