package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gofhir/codelists/internal/server"
	"github.com/gofhir/codelists/service"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve normalized codelists over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			writeCSV, _ := cmd.Flags().GetBool("csv")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store := server.NewStore()
			sinks, release, err := a.sinks(ctx, writeCSV, store)
			if err != nil {
				return err
			}
			defer release()

			eng := a.engine()
			updater := service.NewUpdater(a.registry, a.loader(),
				service.WithEngine(eng),
				service.WithSink(sinks),
				service.WithLogger(a.log),
			)
			srv := server.New(store, updater, eng.Metrics(), a.log)

			if _, err := srv.Refresh(ctx); err != nil {
				a.log.Warn().Err(err).Msg("initial refresh failed")
			}
			if a.cfg.RefreshInterval > 0 {
				go srv.RunRefresher(ctx, a.cfg.RefreshInterval)
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(a.cfg.Addr()) }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			a.log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().Bool("csv", false, "also write CSV files on every refresh")
	return cmd
}
