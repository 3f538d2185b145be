package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sky-flux/tutor"
	"github.com/sky-flux/tutor/calibrate"
	"github.com/sky-flux/tutor/history"
)

func newSessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Create, drive and inspect stored sessions",
	}
	cmd.AddCommand(
		newSessionNewCmd(a),
		newSessionNextCmd(a),
		newSessionAnswerCmd(a),
		newSessionShowCmd(a),
		newSessionListCmd(a),
	)
	return cmd
}

func newSessionNewCmd(a *app) *cobra.Command {
	var (
		seed    bool
		learner string
	)
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Start a session and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.openStore()
			if err != nil {
				return err
			}
			engine, err := a.engine(ctx)
			if err != nil {
				return err
			}
			state := engine.NewSession()
			state.Learner = learner
			if seed {
				if _, err := calibrate.SeedSession(ctx, store, state, 0); err != nil {
					return err
				}
			}
			if err := store.SaveSession(ctx, state.Snapshot()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), state.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed-values", false, "initialize learned values from recent rounds")
	cmd.Flags().StringVar(&learner, "learner", "", "learner id stored with the session and its rounds")
	return cmd
}

func newSessionNextCmd(a *app) *cobra.Command {
	var (
		catalogPath string
		k           int
		explain     bool
	)
	cmd := &cobra.Command{
		Use:   "next <session-id>",
		Short: "Choose the next items from a catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			items, err := readCatalog(catalogPath)
			if err != nil {
				return err
			}
			engine, state, err := a.loadSession(cmd, args[0])
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			chosen, err := engine.Next(state, items, k, now)
			if err != nil {
				return err
			}
			if err := a.store.SaveSession(ctx, state.Snapshot()); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, it := range chosen {
				if explain {
					b := engine.Score(state, it, now)
					fmt.Fprintf(out, "%s\tdifficulty=%d\ttotal=%.3f\tfit=%.3f\treview=%.3f\tcoverage=%.3f\tsuppression=%.3f\tboost=%.3f\tvalue=%.3f\n",
						it.ID, it.Difficulty, b.Total, b.Fit, b.Review, b.Coverage, b.Suppression, b.Boost, b.Value)
					continue
				}
				fmt.Fprintln(out, it.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "items.json", "catalog file (JSON array or .jsonl)")
	cmd.Flags().IntVarP(&k, "count", "k", 1, "number of items to choose")
	cmd.Flags().BoolVar(&explain, "explain", false, "print the score breakdown of each item")
	return cmd
}

func newSessionAnswerCmd(a *app) *cobra.Command {
	var (
		catalogPath string
		learner     string
	)
	cmd := &cobra.Command{
		Use:   "answer <session-id> <item-id> <correct|incorrect|ungraded>",
		Short: "Record an answer",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var outcome tutor.Outcome
			if err := outcome.UnmarshalText([]byte(args[2])); err != nil {
				return err
			}

			item := tutor.Item{ID: args[1]}
			if catalogPath != "" {
				items, err := readCatalog(catalogPath)
				if err != nil {
					return err
				}
				if it, ok := findItem(items, args[1]); ok {
					item = it
				}
			}

			engine, state, err := a.loadSession(cmd, args[0])
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			rec, err := engine.Record(state, item, outcome, now)
			if err != nil {
				return err
			}
			if err := a.store.SaveSession(ctx, state.Snapshot()); err != nil {
				return err
			}
			if learner == "" {
				learner = state.Learner
			}
			if err := a.store.AppendRound(ctx, history.NewRound(state, learner, now, now)); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "attempt %d  ability %.3f  variance %.3f\n", rec.Attempt, state.Ability, state.Variance)
			if entry, ok := state.Reviews[item.ID]; ok && outcome.Graded() {
				fmt.Fprintf(out, "next review %s (%.1f days)\n", entry.Due.Format(time.RFC3339), entry.IntervalDays)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "catalog file for the item's difficulty and knowledge points")
	cmd.Flags().StringVar(&learner, "learner", "", "learner id stored with the round, default the session's learner")
	return cmd
}

func newSessionShowCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session's ability, accuracy and due reviews",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, state, err := a.loadSession(cmd, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(state.Snapshot())
			}
			printSummary(cmd.OutOrStdout(), engine, state, time.Now().UTC())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full snapshot")
	return cmd
}

func newSessionListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored session ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			ids, err := store.Sessions(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func (a *app) loadSession(cmd *cobra.Command, rawID string) (*tutor.Engine, *tutor.SessionState, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid session id %q", rawID)
	}
	store, err := a.openStore()
	if err != nil {
		return nil, nil, err
	}
	engine, err := a.engine(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	snap, err := store.LoadSession(cmd.Context(), id)
	if err != nil {
		return nil, nil, err
	}
	state, err := engine.Restore(snap)
	if err != nil {
		return nil, nil, err
	}
	return engine, state, nil
}

func printSummary(w io.Writer, engine *tutor.Engine, state *tutor.SessionState, now time.Time) {
	low, high := engine.Ability().ConfidenceInterval(state.Ability, state.Variance, 1.96)
	acc, graded := state.Accuracy()
	fmt.Fprintf(w, "session   %s\n", state.ID)
	if state.Learner != "" {
		fmt.Fprintf(w, "learner   %s\n", state.Learner)
	}
	fmt.Fprintf(w, "ability   %.3f  95%% interval [%.2f, %.2f], variance %.3f\n", state.Ability, low, high, state.Variance)
	fmt.Fprintf(w, "answered  %d  (graded %d, accuracy %.0f%%)\n", len(state.Answers), graded, acc*100)
	due := state.DueItems(now)
	fmt.Fprintf(w, "due       %d\n", len(due))
	for _, id := range due {
		fmt.Fprintf(w, "  %s\n", id)
	}
}
