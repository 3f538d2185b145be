// Package tutor implements an adaptive item-selection engine.
//
// tutor decides which assessment item a learner should attempt next. It
// tracks a proficiency estimate with its uncertainty, keeps a per-item
// spaced-repetition schedule, scores candidates from several signals
// (difficulty fit, review urgency, knowledge coverage, similarity
// suppression, error reinforcement and an optional learned value) and
// selects a batch with a seeded exploration strategy.
//
// The engine never talks to a catalog, a similarity service or a database
// directly. Those collaborators are injected as narrow function types
// ([NeighborLookup], [DifficultyLookup], [MasteryLookup]). The neighbors
// package supplies similarity from a file index or Redis, history persists
// sessions, calibrate fits item difficulties from stored answers, and
// metrics and server expose an Engine as a service.
//
// Basic usage:
//
//	e, err := tutor.NewEngine(tutor.DefaultConfig(), tutor.WithNeighbors(idx.Lookup()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	state := e.NewSession()
//	batch, err := e.Next(state, candidates, 5, time.Now())
//	// present batch[0], grade it, then:
//	e.Record(state, batch[0], tutor.Correct, time.Now())
package tutor
