package tutor

// Neighbors is the answer of a similarity service for one source item:
// neighbor ids with parallel similarity scores in [-1, 1], sorted by
// descending similarity.
type Neighbors struct {
	IDs    []string  `json:"ids"`
	Scores []float64 `json:"scores"`
}

// Similarity returns the score of id among the neighbors.
// Mismatched parallel lists are read up to the shorter length.
func (n Neighbors) Similarity(id string) (float64, bool) {
	limit := min(len(n.IDs), len(n.Scores))
	for i := 0; i < limit; i++ {
		if n.IDs[i] == id {
			return n.Scores[i], true
		}
	}
	return 0, false
}

// NeighborLookup returns the nearest neighbors of an item. The boolean is
// false when the service is unavailable or has nothing for the item; the
// engine treats that as "no effect".
type NeighborLookup func(itemID string) (Neighbors, bool)

// DifficultyLookup returns the declared difficulty of an item referenced in
// the recent-hard history.
type DifficultyLookup func(itemID string) (int, bool)

// MasteryLookup returns the mastery level of a knowledge point. Absent
// points count as not mastered.
type MasteryLookup func(knowledgePoint string) (float64, bool)
