package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sky-flux/tutor/calibrate"
)

func newCalibrateCmd(a *app) *cobra.Command {
	var (
		cfg         calibrate.Config
		rounds      int
		catalogPath string
		outPath     string
		overwrite   bool
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Fit item difficulties and learner abilities from stored rounds",
		Long: `calibrate fits a logistic answer model to the graded answers of the most
recent rounds. With --catalog and --out it writes the catalog back with
fitted difficulty levels filled in.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.openStore()
			if err != nil {
				return err
			}
			recent, err := store.RecentRounds(ctx, rounds)
			if err != nil {
				return err
			}
			obs := calibrate.ObservationsFromRounds(recent)

			res, err := calibrate.NewCalibrator(cfg).Fit(ctx, obs)
			if err != nil {
				return err
			}
			a.logger.Info("calibration finished",
				zap.Int("rounds", len(recent)),
				zap.Int("observations", res.Observations),
				zap.Float64("loss", res.Loss))

			if catalogPath != "" && outPath != "" {
				items, err := readCatalog(catalogPath)
				if err != nil {
					return err
				}
				if err := writeCatalog(outPath, res.Apply(items, overwrite)); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			ids := make([]string, 0, len(res.Difficulties))
			for id := range res.Difficulties {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				level, _ := res.Level(id)
				fmt.Fprintf(out, "%s\t%.3f\tlevel %d\n", id, res.Difficulties[id], level)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&rounds, "rounds", 1000, "number of most recent rounds to fit")
	f.StringVar(&catalogPath, "catalog", "", "catalog to fill with fitted levels")
	f.StringVarP(&outPath, "out", "o", "", "where to write the calibrated catalog")
	f.BoolVar(&overwrite, "overwrite", false, "replace declared difficulties too")
	f.BoolVar(&asJSON, "json", false, "print the full result as JSON")
	f.IntVar(&cfg.Epochs, "epochs", 0, "training epochs (default 20)")
	f.Float64Var(&cfg.LearningRate, "lr", 0, "learning rate (default 0.05)")
	f.IntVar(&cfg.MinObservations, "min-observations", 0, "minimum graded answers required (default 32)")
	return cmd
}
