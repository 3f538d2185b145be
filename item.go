package tutor

import "time"

// Item is one catalog entry as seen by the engine.
type Item struct {
	ID              string   `json:"id"`
	Difficulty      int      `json:"difficulty"` // 0 means unknown.
	KnowledgePoints []string `json:"knowledge_points,omitempty"`
}

// AnswerRecord records one submitted response.
type AnswerRecord struct {
	ItemID    string    `json:"item_id"`
	Outcome   Outcome   `json:"outcome"`
	Timestamp time.Time `json:"timestamp"`
	Attempt   int       `json:"attempt"` // 1 for the first attempt at the item.
}

// difficultyOf returns the item's difficulty, or the scale default when the
// declared value is unknown or outside the scale.
func (s DifficultyScale) difficultyOf(d int) int {
	if d < s.Min || d > s.Max || d == 0 {
		return s.Default
	}
	return d
}

// Dedupe returns items with later duplicates of an id removed, preserving
// first-seen order.
func Dedupe(items []Item) []Item {
	seen := make(map[string]struct{}, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.ID]; ok {
			continue
		}
		seen[it.ID] = struct{}{}
		out = append(out, it)
	}
	return out
}
