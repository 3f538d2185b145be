package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sky-flux/tutor"
	"github.com/sky-flux/tutor/history"
	"github.com/sky-flux/tutor/internal/config"
	"github.com/sky-flux/tutor/internal/logging"
	"github.com/sky-flux/tutor/neighbors"
)

// app carries what every subcommand needs. It is built lazily so that
// commands like --help never touch the store.
type app struct {
	configPath string

	cfg    *config.Config
	logger *zap.Logger
	store  history.Store
	closer []func() error
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "tutor",
		Short: "Adaptive practice: item selection, ability tracking and spaced review",
		Long: `tutor picks the next practice items for a learner, updates their ability
estimate after each answer and schedules spaced reviews. Sessions and round
summaries are kept in a SQLite database or a directory of JSON files.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML config file (default $TUTOR_CONFIG or ./tutor.yaml)")

	root.AddCommand(
		newServeCmd(a),
		newSessionCmd(a),
		newCalibrateCmd(a),
		newNeighborsCmd(a),
	)
	return root
}

func (a *app) load() error {
	if a.cfg != nil {
		return nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	a.cfg, a.logger = cfg, logger
	a.closer = append(a.closer, func() error { _ = logger.Sync(); return nil })
	return nil
}

func (a *app) openStore() (history.Store, error) {
	if err := a.load(); err != nil {
		return nil, err
	}
	if a.store != nil {
		return a.store, nil
	}

	var (
		store history.Store
		err   error
	)
	switch a.cfg.Store.Driver {
	case "file":
		store, err = history.OpenFileStore(a.cfg.Store.Path)
	default:
		store, err = history.OpenSQLite(a.cfg.Store.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = store
	a.closer = append(a.closer, store.Close)
	return store, nil
}

// neighborLookup returns the configured similarity source, or nil when
// none is configured.
func (a *app) neighborLookup(ctx context.Context) (tutor.NeighborLookup, error) {
	nc := a.cfg.Neighbors
	switch {
	case nc.RedisURL != "":
		src, err := a.redisSource(ctx)
		if err != nil {
			return nil, err
		}
		return src.Lookup(), nil
	case nc.Path != "":
		ix, err := neighbors.LoadIndex(nc.Path, nc.TopK)
		if err != nil {
			return nil, err
		}
		a.logger.Info("neighbors loaded", zap.String("path", nc.Path), zap.Int("items", ix.Len()))
		return ix.Lookup(), nil
	}
	return nil, nil
}

func (a *app) redisSource(ctx context.Context) (*neighbors.RedisSource, error) {
	nc := a.cfg.Neighbors
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := neighbors.DialRedis(dialCtx, nc.RedisURL)
	if err != nil {
		return nil, err
	}
	a.closer = append(a.closer, client.Close)
	return neighbors.NewRedisSource(client, neighbors.RedisConfig{
		Prefix:    nc.Prefix,
		Timeout:   nc.Timeout,
		CacheSize: nc.CacheSize,
	}, a.logger), nil
}

// engine builds an Engine with the configured lookups and any extra options.
func (a *app) engine(ctx context.Context, opts ...tutor.Option) (*tutor.Engine, error) {
	if err := a.load(); err != nil {
		return nil, err
	}
	lookup, err := a.neighborLookup(ctx)
	if err != nil {
		return nil, err
	}
	base := []tutor.Option{tutor.WithLogger(a.logger)}
	if lookup != nil {
		base = append(base, tutor.WithNeighbors(lookup))
	}
	return tutor.NewEngine(a.cfg.Engine, append(base, opts...)...)
}

func (a *app) close() error {
	var first error
	for i := len(a.closer) - 1; i >= 0; i-- {
		if err := a.closer[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closer = nil
	return first
}
