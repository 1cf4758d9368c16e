package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	cl "github.com/gofhir/codelists"
	"github.com/gofhir/codelists/engine"
	"github.com/gofhir/codelists/internal/config"
	"github.com/gofhir/codelists/pkg/logger"
	"github.com/gofhir/codelists/rules"
	"github.com/gofhir/codelists/service"
	"github.com/gofhir/codelists/sink"
	"github.com/gofhir/codelists/source"
)

// app holds what every command needs: settings, a logger and the rules.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	registry *rules.Registry
}

func setup(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if v, _ := cmd.Flags().GetString("rules"); v != "" {
		cfg.RulesFile = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.LogFormat = v
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	registry, err := loadRegistry(cfg.RulesFile)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, log: log, registry: registry}, nil
}

func loadRegistry(path string) (*rules.Registry, error) {
	if path == "" {
		return rules.Default(), nil
	}
	return rules.LoadFile(path)
}

func (a *app) engine() *engine.Engine {
	return engine.New(
		cl.WithDriftDetection(a.cfg.DetectDrift),
		cl.WithDropReports(a.cfg.ReportDrops),
		cl.WithStageTimeout(a.cfg.StageTimeout),
		cl.WithWorkerCount(a.cfg.Workers),
	)
}

// loader reads from the mirror directory first when one is configured.
func (a *app) loader() service.SourceLoader {
	fetcher := source.NewFetcher(source.WithTimeout(a.cfg.FetchTimeout))
	remote := source.NewLoader(fetcher)
	if a.cfg.MirrorDir == "" {
		return remote
	}
	return service.NewSourceChain(service.NewMirror(a.cfg.MirrorDir, remote), remote)
}

func (a *app) openPool(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := sink.NewPool(ctx, a.cfg.DatabaseURL, a.cfg.DBMaxConns, a.cfg.DBMinConns)
	if err != nil {
		return nil, err
	}
	a.log.Info().Msg("connected to database")
	return pool, nil
}

// sinks returns the configured sinks and a function releasing them.
func (a *app) sinks(ctx context.Context, csv bool, extra ...sink.Sink) (sink.Multi, func(), error) {
	out := sink.Multi(extra)
	if csv {
		out = append(out, sink.NewCSV(a.cfg.OutputDir))
	}
	if !a.cfg.HasDatabase() {
		return out, func() {}, nil
	}

	pool, err := a.openPool(ctx)
	if err != nil {
		return nil, nil, err
	}
	out = append(out, sink.NewPostgres(pool))
	return out, pool.Close, nil
}
