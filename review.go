package tutor

import "time"

const day = 24 * time.Hour

// ReviewEntry is the spaced-repetition state of one item.
type ReviewEntry struct {
	Policy         Policy    `json:"policy"`
	Bucket         int       `json:"bucket"`          // Leitner bucket; derived from the interval under SM-2.
	EasinessFactor float64   `json:"easiness_factor"` // SM-2 only.
	IntervalDays   float64   `json:"interval_days"`
	Repetitions    int       `json:"repetitions"` // consecutive correct answers.
	Due            time.Time `json:"due"`
	LastReview     time.Time `json:"last_review"`
}

// IsDue reports whether the entry is due at now (now ≥ Due).
func (e ReviewEntry) IsDue(now time.Time) bool {
	return !now.Before(e.Due)
}

// OverdueDays returns how many days past Due now is, or 0 if not due.
func (e ReviewEntry) OverdueDays(now time.Time) float64 {
	if !e.IsDue(now) {
		return 0
	}
	return now.Sub(e.Due).Hours() / 24.0
}

func daysToDuration(days float64) time.Duration {
	return time.Duration(days * float64(day))
}

// bucketForInterval maps an interval onto the first table slot that holds it.
func bucketForInterval(intervalDays float64, table []int) int {
	for i, d := range table {
		if intervalDays <= float64(d) {
			return i
		}
	}
	return len(table) - 1
}
