package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gilchrisn/temporal-community-service/pkg/config"
	"github.com/gilchrisn/temporal-community-service/pkg/metrics"
	"github.com/gilchrisn/temporal-community-service/pkg/pipeline"
	"github.com/gilchrisn/temporal-community-service/pkg/store"
	"github.com/gilchrisn/temporal-community-service/pkg/utils"
)

// app holds what every subcommand shares
type app struct {
	configFile  string
	metricsAddr string
	logLevel    string
	driver      string
	dataDir     string

	cfg      *config.Config
	logger   zerolog.Logger
	store    store.Store
	metrics  *metrics.Registry
	tracker  *utils.SplitTracker
	pipeline *pipeline.Pipeline
	server   *http.Server
}

// setup loads configuration and opens the store, tracker and metrics endpoint
func (a *app) setup(cmd *cobra.Command) error {
	a.cfg = config.NewConfig()
	if a.configFile != "" {
		if err := a.cfg.LoadFromFile(a.configFile); err != nil {
			return err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("metrics-addr") {
		a.cfg.Set("metrics.address", a.metricsAddr)
	}
	if flags.Changed("log-level") {
		a.cfg.Set("logging.level", a.logLevel)
	}
	if flags.Changed("storage") {
		a.cfg.Set("storage.driver", a.driver)
	}
	if flags.Changed("data-dir") {
		a.cfg.Set("storage.dir", a.dataDir)
	}

	a.logger = a.cfg.CreateLoggerTo(cmd.ErrOrStderr())
	a.metrics = metrics.NewRegistry()

	opts := []pipeline.Option{pipeline.WithLogger(a.logger), pipeline.WithMetrics(a.metrics)}
	if a.cfg.TrackSplits() {
		tracker, err := utils.NewSplitTracker(a.cfg.TrackingOutputFile())
		if err != nil {
			return err
		}
		a.tracker = tracker
		opts = append(opts, pipeline.WithSplitTracker(tracker))
	}

	runID := uuid.NewString()
	opts = append(opts, pipeline.WithRunID(runID))

	st, err := store.Open(a.cfg.StorageDriver(), a.cfg.StorageDir(), a.cfg.StorageDSN(), runID)
	if err != nil {
		return err
	}
	a.store = st
	a.pipeline = pipeline.New(a.cfg, st, opts...)

	if addr := a.cfg.MetricsAddress(); addr != "" {
		a.serveMetrics(addr)
	}
	return nil
}

func (a *app) serveMetrics(addr string) {
	a.server = &http.Server{
		Addr:         addr,
		Handler:      a.metrics.NewRouter(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		a.logger.Info().Str("address", addr).Msg("Metrics endpoint starting")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("Metrics endpoint failed")
		}
	}()
}

// execute runs root and releases what setup opened, also when the command fails
func (a *app) execute(ctx context.Context, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.teardown())
}

// teardown releases what setup opened
func (a *app) teardown() error {
	var errs []error
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, a.server.Shutdown(ctx))
	}
	if a.tracker != nil {
		errs = append(errs, a.tracker.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
