package tutor

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SelectionEvent describes one Next call.
type SelectionEvent struct {
	SessionID  uuid.UUID
	Strategy   Strategy
	Candidates int
	Chosen     []string
}

// AnswerEvent describes one recorded answer after all state updates.
type AnswerEvent struct {
	SessionID  uuid.UUID
	ItemID     string
	Difficulty int
	Outcome    Outcome
	Attempt    int
	Ability    float64
	Variance   float64
	Review     *ReviewEntry // nil for ungraded answers
}

// Observer receives engine events. Implementations must not retain or
// mutate the session.
type Observer interface {
	OnSelection(SelectionEvent)
	OnAnswer(AnswerEvent)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for anomaly reports.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver registers an Observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithNeighbors sets the similarity lookup.
func WithNeighbors(f NeighborLookup) Option {
	return func(e *Engine) { e.neighbors = f }
}

// WithHardDifficulty sets the difficulty lookup for recent hard items.
func WithHardDifficulty(f DifficultyLookup) Option {
	return func(e *Engine) { e.hardDifficulty = f }
}

// WithMastery sets the knowledge-point mastery lookup.
func WithMastery(f MasteryLookup) Option {
	return func(e *Engine) { e.mastery = f }
}

// Engine wires the ability tracker, review scheduler, scorer, selector and
// value learner around a SessionState. An Engine holds no per-session
// state and may be shared across sessions; each SessionState must be used
// by one goroutine at a time.
type Engine struct {
	cfg       Config
	ability   *AbilityTracker
	scheduler ReviewScheduler
	scorer    *Scorer
	selector  *Selector
	values    *ValueLearner

	neighbors      NeighborLookup
	hardDifficulty DifficultyLookup
	mastery        MasteryLookup

	logger   *zap.Logger
	observer Observer
}

// NewEngine validates cfg and builds an Engine. Configuration errors are
// returned wrapped in ErrInvalidConfig.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}

	e.ability = newAbilityTracker(cfg.Ability, e.logger)
	e.scheduler, err = newReviewScheduler(cfg.Review)
	if err != nil {
		return nil, err
	}
	e.scorer = newScorer(cfg.Scoring, e.logger)
	e.selector = &Selector{scorer: e.scorer, cfg: cfg.Selection}
	e.values = NewValueLearner(cfg.Value)
	return e, nil
}

// Config returns the normalized configuration.
func (e *Engine) Config() Config { return e.cfg }

// Ability returns the engine's AbilityTracker.
func (e *Engine) Ability() *AbilityTracker { return e.ability }

// Scheduler returns the engine's ReviewScheduler.
func (e *Engine) Scheduler() ReviewScheduler { return e.scheduler }

// Scorer returns the engine's Scorer.
func (e *Engine) Scorer() *Scorer { return e.scorer }

// NewSession creates a SessionState with initial ability and variance and
// empty history.
func (e *Engine) NewSession() *SessionState {
	return newSessionState(e.cfg, time.Now().UTC())
}

// Restore rebuilds a session from a snapshot and repairs out-of-range
// ability or variance, logging each repair.
func (e *Engine) Restore(snap Snapshot) (*SessionState, error) {
	state, err := RestoreSession(snap)
	if err != nil {
		return nil, err
	}
	state.Ability, state.Variance = e.ability.sanitize(state.Ability, state.Variance)
	return state, nil
}

// Signals returns the engine's lookups evaluated at now.
func (e *Engine) Signals(now time.Time) Signals {
	return Signals{
		Neighbors:      e.neighbors,
		HardDifficulty: e.hardDifficulty,
		Mastery:        e.mastery,
		Now:            now,
	}
}

// Score returns the score breakdown of one item. A malformed ability in
// state is repaired first, as in Next.
func (e *Engine) Score(state *SessionState, item Item, now time.Time) ScoreBreakdown {
	ensure(state, e.cfg)
	state.Ability, state.Variance = e.ability.sanitize(state.Ability, state.Variance)
	return e.scorer.Breakdown(item, state, e.Signals(wallClock(now)))
}

// Next returns up to k candidates to present, best first. Candidates must
// have unique ids.
func (e *Engine) Next(state *SessionState, candidates []Item, k int, now time.Time) ([]Item, error) {
	ensure(state, e.cfg)
	state.Ability, state.Variance = e.ability.sanitize(state.Ability, state.Variance)
	batch, err := e.selector.Choose(candidates, state, e.Signals(wallClock(now)), k)
	if err != nil {
		return nil, err
	}

	chosen := make([]string, len(batch))
	for i, it := range batch {
		chosen[i] = it.ID
	}
	e.logger.Debug("selected items",
		zap.Stringer("session", state.ID),
		zap.Stringer("strategy", e.cfg.Selection.Strategy),
		zap.Int("candidates", len(candidates)),
		zap.Strings("chosen", chosen))
	if e.observer != nil {
		e.observer.OnSelection(SelectionEvent{
			SessionID:  state.ID,
			Strategy:   e.cfg.Selection.Strategy,
			Candidates: len(candidates),
			Chosen:     chosen,
		})
	}
	return batch, nil
}

// Record applies one answer to the session: answer history, selection
// statistics, and for graded outcomes the ability estimate, review
// schedule, learned value, knowledge mastery and recent-hard list.
func (e *Engine) Record(state *SessionState, item Item, outcome Outcome, now time.Time) (AnswerRecord, error) {
	if !outcome.IsValid() {
		return AnswerRecord{}, fmt.Errorf("%w: %d", ErrInvalidOutcome, int(outcome))
	}
	ensure(state, e.cfg)
	now = wallClock(now)
	d := e.cfg.Scoring.Difficulty.difficultyOf(item.Difficulty)

	rec := AnswerRecord{
		ItemID:    item.ID,
		Outcome:   outcome,
		Timestamp: now,
		Attempt:   state.Answers[item.ID].Attempt + 1,
	}
	state.Answers[item.ID] = rec
	state.Difficulties[item.ID] = d
	state.SelectionCounts[item.ID]++
	state.TotalSelections++

	event := AnswerEvent{
		SessionID:  state.ID,
		ItemID:     item.ID,
		Difficulty: d,
		Outcome:    outcome,
		Attempt:    rec.Attempt,
	}

	if outcome.Graded() {
		correct := outcome == Correct
		state.Ability, state.Variance = e.ability.Update(state.Ability, state.Variance, correct, float64(d))

		prev, ok := state.Reviews[item.ID]
		if !ok {
			prev = e.scheduler.Start(now)
		}
		entry := e.scheduler.OnResult(&prev, correct, now)
		state.Reviews[item.ID] = entry
		event.Review = &entry

		e.values.Update(state.Values, item.ID, correct, 0)

		if correct {
			for _, kp := range item.KnowledgePoints {
				if float64(d) > state.Mastery[kp] {
					state.Mastery[kp] = float64(d)
				}
			}
			if d >= e.cfg.Scoring.HardDifficultyMin {
				state.RecentHard.Push(item.ID)
			}
		}
	}

	event.Ability, event.Variance = state.Ability, state.Variance
	e.logger.Debug("recorded answer",
		zap.Stringer("session", state.ID),
		zap.String("item", item.ID),
		zap.Stringer("outcome", outcome),
		zap.Float64("ability", state.Ability),
		zap.Float64("variance", state.Variance))
	if e.observer != nil {
		e.observer.OnAnswer(event)
	}
	return rec, nil
}

// ensure initializes missing collections of a hand-built state.
func ensure(s *SessionState, cfg Config) {
	if s.Reviews == nil {
		s.Reviews = make(map[string]ReviewEntry)
	}
	if s.Answers == nil {
		s.Answers = make(map[string]AnswerRecord)
	}
	if s.RecentHard == nil {
		s.RecentHard = NewRecentList(cfg.Session.RecentHardCapacity)
	}
	if s.Values == nil {
		s.Values = make(map[string]float64)
	}
	if s.SelectionCounts == nil {
		s.SelectionCounts = make(map[string]int)
	}
	if s.Mastery == nil {
		s.Mastery = make(map[string]float64)
	}
	if s.Difficulties == nil {
		s.Difficulties = make(map[string]int)
	}
}
