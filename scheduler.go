package tutor

import (
	"fmt"
	"math"
	"time"
)

// ReviewScheduler decides when an item is next due. Both policies produce
// entries with the same IsDue contract, so scoring is policy-agnostic.
type ReviewScheduler interface {
	// Policy reports which rule the scheduler applies.
	Policy() Policy
	// Start returns the entry of an item that has never been graded. The
	// engine starts an item on its first graded answer; hosts that schedule
	// on presentation can call it directly.
	Start(now time.Time) ReviewEntry
	// OnResult returns the entry after one graded answer. A nil entry is
	// treated as a fresh Start. A zero now means the wall clock.
	// The input entry is not mutated.
	OnResult(entry *ReviewEntry, correct bool, now time.Time) ReviewEntry
}

// NewReviewScheduler creates the scheduler selected by cfg.Policy.
// Zero-value fields are filled with defaults; invalid values return an error.
func NewReviewScheduler(cfg ReviewConfig) (ReviewScheduler, error) {
	full, err := Config{Review: cfg}.normalize()
	if err != nil {
		return nil, err
	}
	return newReviewScheduler(full.Review)
}

func newReviewScheduler(cfg ReviewConfig) (ReviewScheduler, error) {
	switch cfg.Policy {
	case PolicyLeitner:
		return &leitnerScheduler{cfg: cfg}, nil
	case PolicySM2:
		return &sm2Scheduler{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("%w: review policy %d", ErrUnknownPolicy, int(cfg.Policy))
	}
}

func wallClock(now time.Time) time.Time {
	if now.IsZero() {
		return time.Now()
	}
	return now
}

// leitnerScheduler moves items across a fixed table of buckets.
type leitnerScheduler struct {
	cfg ReviewConfig
}

func (s *leitnerScheduler) Policy() Policy { return PolicyLeitner }

func (s *leitnerScheduler) Start(now time.Time) ReviewEntry {
	now = wallClock(now)
	return s.entry(0, 0, now)
}

func (s *leitnerScheduler) OnResult(entry *ReviewEntry, correct bool, now time.Time) ReviewEntry {
	now = wallClock(now)

	bucket, reps := 0, 0
	if entry != nil {
		bucket, reps = s.currentBucket(*entry), max(entry.Repetitions, 0)
	}

	last := len(s.cfg.IntervalsDays) - 1
	if correct {
		bucket = min(bucket+1, last)
		reps++
	} else {
		bucket = max(bucket-1, 0)
		reps = 0
	}
	return s.entry(bucket, reps, now)
}

// currentBucket reads the bucket of an entry, converting SM-2 entries by
// their interval and clamping out-of-range buckets.
func (s *leitnerScheduler) currentBucket(e ReviewEntry) int {
	b := e.Bucket
	if e.Policy == PolicySM2 {
		b = bucketForInterval(e.IntervalDays, s.cfg.IntervalsDays)
	}
	return min(max(b, 0), len(s.cfg.IntervalsDays)-1)
}

func (s *leitnerScheduler) entry(bucket, reps int, now time.Time) ReviewEntry {
	days := float64(s.cfg.IntervalsDays[bucket])
	return ReviewEntry{
		Policy:       PolicyLeitner,
		Bucket:       bucket,
		IntervalDays: days,
		Repetitions:  reps,
		Due:          now.Add(daysToDuration(days)),
		LastReview:   now,
	}
}

// sm2Scheduler grows intervals by a per-item easiness factor.
type sm2Scheduler struct {
	cfg ReviewConfig
}

func (s *sm2Scheduler) Policy() Policy { return PolicySM2 }

func (s *sm2Scheduler) Start(now time.Time) ReviewEntry {
	now = wallClock(now)
	return s.entry(s.cfg.InitialEasiness, s.cfg.MinIntervalDays, 0, now)
}

func (s *sm2Scheduler) OnResult(entry *ReviewEntry, correct bool, now time.Time) ReviewEntry {
	now = wallClock(now)

	ef, interval, reps := s.cfg.InitialEasiness, s.cfg.MinIntervalDays, 0
	if entry != nil {
		ef, interval, reps = s.current(*entry)
	}

	if correct {
		reps++
		ef = s.adjustEasiness(ef, s.cfg.CorrectQuality)
		switch reps {
		case 1:
			interval = 1
		case 2:
			interval = 6
		default:
			interval *= ef
		}
	} else {
		reps = 0
		interval = 1
		ef = s.adjustEasiness(ef, s.cfg.IncorrectQuality)
	}

	interval = clamp(interval, s.cfg.MinIntervalDays, s.cfg.MaxIntervalDays)
	return s.entry(ef, interval, reps, now)
}

// current reads the SM-2 state of an entry. Leitner entries are converted
// by their bucket interval with the initial easiness; malformed fields fall
// back to initial values.
func (s *sm2Scheduler) current(e ReviewEntry) (ef, interval float64, reps int) {
	ef, interval, reps = e.EasinessFactor, e.IntervalDays, max(e.Repetitions, 0)
	if e.Policy == PolicyLeitner {
		ef = s.cfg.InitialEasiness
	}
	switch {
	case !isFinite(ef) || ef <= 0:
		ef = s.cfg.InitialEasiness
	case ef < s.cfg.EasinessFloor:
		ef = s.cfg.EasinessFloor
	}
	if !isFinite(interval) || interval <= 0 {
		interval = s.cfg.MinIntervalDays
	}
	return ef, interval, reps
}

// adjustEasiness applies the SM-2 easiness delta for a quality in [0, 5]:
// EF' = EF + (0.1 - (5-q)(0.08 + (5-q)0.02)), floored.
func (s *sm2Scheduler) adjustEasiness(ef float64, quality int) float64 {
	q := float64(5 - quality)
	return math.Max(s.cfg.EasinessFloor, ef+(0.1-q*(0.08+q*0.02)))
}

func (s *sm2Scheduler) entry(ef, interval float64, reps int, now time.Time) ReviewEntry {
	return ReviewEntry{
		Policy:         PolicySM2,
		Bucket:         bucketForInterval(interval, s.cfg.IntervalsDays),
		EasinessFactor: ef,
		IntervalDays:   interval,
		Repetitions:    reps,
		Due:            now.Add(daysToDuration(interval)),
		LastReview:     now,
	}
}
