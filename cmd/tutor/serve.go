package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sky-flux/tutor"
	"github.com/sky-flux/tutor/metrics"
	"github.com/sky-flux/tutor/server"
)

func newServeCmd(a *app) *cobra.Command {
	var seedValues bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve sessions over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := a.openStore()
			if err != nil {
				return err
			}
			collector, err := metrics.New(prometheus.DefaultRegisterer)
			if err != nil {
				return err
			}
			engine, err := a.engine(ctx, tutor.WithObserver(collector))
			if err != nil {
				return err
			}

			srv := server.New(engine, store, server.Config{
				RoundSize:  a.cfg.Server.RoundSize,
				SeedValues: seedValues,
			}, a.logger)
			httpSrv := &http.Server{
				Addr:         a.cfg.Server.Addr,
				Handler:      srv.Routes(),
				ReadTimeout:  a.cfg.Server.ReadTimeout,
				WriteTimeout: a.cfg.Server.WriteTimeout,
				IdleTimeout:  120 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				a.logger.Info("tutor server starting", zap.String("addr", httpSrv.Addr))
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
				close(errc)
			}()

			select {
			case err := <-errc:
				if err != nil {
					return err
				}
			case <-ctx.Done():
			}

			a.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("shutdown error", zap.Error(err))
			}
			if err := srv.Flush(shutdownCtx); err != nil {
				a.logger.Error("flush rounds", zap.Error(err))
			}
			a.logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&seedValues, "seed-values", false, "initialize new sessions from recent rounds")
	return cmd
}
