// Package calibrate fits item difficulties and learner abilities from
// answer history, and seeds learned item values for new sessions.
//
// It provides two capabilities:
//
//   - [Calibrator.Fit] estimates a difficulty per item and an ability per
//     learner under the same logistic model the engine uses for ability
//     updates, P(correct) = σ(ability − difficulty). Training minimizes
//     binary cross-entropy with mini-batch gradient descent, the [Adam]
//     optimizer and a [CosineAnnealing] learning rate schedule.
//
//   - [InitialValues] turns recent answers into starting value estimates
//     (accuracy × 5 − 2) for the engine's learned value term.
//
// # Usage
//
//	cal := calibrate.NewCalibrator(calibrate.Config{})
//	res, err := cal.Fit(ctx, calibrate.ObservationsFromRounds(rounds))
//	engine, err := tutor.NewEngine(cfg, tutor.WithHardDifficulty(res.DifficultyLookup()))
//
// # Data Requirements
//
// Fitting requires at least MinObservations graded answers (default 32).
package calibrate
