// Package app assembles sources, pipeline and sinks from a configuration and
// runs the pipeline once or on a schedule.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/chrissnell/fluxprep/internal/controllers/status"
	"github.com/chrissnell/fluxprep/internal/managers"
	"github.com/chrissnell/fluxprep/internal/pipeline"
	"github.com/chrissnell/fluxprep/internal/segment"
	"github.com/chrissnell/fluxprep/internal/solar"
	"github.com/chrissnell/fluxprep/internal/types"
	"github.com/chrissnell/fluxprep/pkg/config"
	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Options are command line overrides of the configuration
type Options struct {
	// Now anchors online windows; the wall clock when zero
	Now time.Time

	// Mode overrides run.mode when set
	Mode types.Mode

	// TracebackDays overrides run.traceback_days when positive
	TracebackDays int

	// Schedule runs the online pipeline every Schedule until interrupted
	Schedule time.Duration

	Silent bool

	// PerVariable fetches every variable with its own request
	PerVariable bool
}

// App represents the main application
type App struct {
	cfg    *config.ConfigData
	opts   Options
	logger *zap.SugaredLogger

	loc     *time.Location
	runner  *pipeline.Runner
	storage *managers.StorageManager
	store   *status.Store
}

// New creates a new application instance. A run.schedule from the
// configuration applies when opts carries no schedule.
func New(cfg *config.ConfigData, opts Options, logger *zap.SugaredLogger) *App {
	if opts.Schedule <= 0 && cfg.Run.Schedule != "" {
		if d, err := time.ParseDuration(cfg.Run.Schedule); err == nil {
			opts.Schedule = d
		}
	}
	return &App{
		cfg:    cfg,
		opts:   opts,
		logger: logger,
		store:  status.NewStore(),
	}
}

// Run executes one run, or with a schedule keeps running until a shutdown
// signal arrives or ctx is cancelled
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.setup(ctx); err != nil {
		return err
	}
	defer func() {
		if err := a.storage.Close(); err != nil {
			a.logger.Errorf("error closing storage: %v", err)
		}
	}()

	if a.cfg.Status != nil && a.opts.Schedule > 0 {
		ctrl := status.NewController(a.cfg.Status.ListenAddr, a.cfg.Status.Port, a.store, a.storage.CheckHealth, a.logger)
		ctrl.StartController(ctx, &wg)
	}

	if a.opts.Schedule <= 0 {
		_, err := a.RunOnce(ctx, a.now())
		cancel()
		wg.Wait()
		return err
	}

	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()
	_, err := scheduler.Every(a.opts.Schedule).Do(func() {
		if _, err := a.RunOnce(ctx, time.Now()); err != nil {
			a.logger.Errorf("scheduled run failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling runs: %w", err)
	}
	scheduler.StartAsync()
	a.logger.Infof("running every %v", a.opts.Schedule)

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	// Wait for shutdown signal
	select {
	case <-sigs:
		a.logger.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()
	scheduler.Stop()

	a.logger.Info("waiting for all workers to terminate...")
	wg.Wait()
	a.logger.Info("shutdown complete")

	return nil
}

func (a *App) setup(ctx context.Context) error {
	loc, err := a.cfg.Location()
	if err != nil {
		return err
	}
	a.loc = loc

	vars, skipped := a.cfg.BuildVariables(loc)
	for _, ce := range skipped {
		a.logger.Warnw("skipping variable", "variable", ce.Variable, "reason", ce.Reason)
	}

	registry, err := BuildSources(&a.cfg.Sources, loc, a.logger)
	if err != nil {
		return err
	}

	var common time.Duration
	if a.cfg.Run.CommonInterval != "" {
		if common, err = time.ParseDuration(a.cfg.Run.CommonInterval); err != nil {
			return fmt.Errorf("invalid common interval: %w", err)
		}
	}

	a.storage, err = managers.NewStorageManager(ctx, &a.cfg.Storage, a.logger)
	if err != nil {
		return err
	}

	a.runner = pipeline.NewRunner(pipeline.Config{
		Variables:      vars,
		Skipped:        skipped,
		Location:       loc,
		Site:           &solar.Site{Latitude: a.cfg.Site.Latitude, Longitude: a.cfg.Site.Longitude, Altitude: a.cfg.Site.Altitude},
		CommonInterval: common,
		Workers:        a.cfg.Run.Workers,
		Silent:         a.cfg.Run.Silent || a.opts.Silent,
		PerVariable:    a.cfg.Run.PerVariable || a.opts.PerVariable,
	}, registry, a.storage, a.logger)
	return nil
}

// Window resolves the processing window of a run started at now
func (a *App) Window(now time.Time) (types.ProcessingWindow, error) {
	mode := types.Mode(a.cfg.Run.Mode)
	if a.opts.Mode != "" {
		mode = a.opts.Mode
	}
	if a.opts.Schedule > 0 {
		mode = types.ModeOnline
	}
	traceback := a.cfg.Run.TracebackDays
	if a.opts.TracebackDays > 0 {
		traceback = a.opts.TracebackDays
	}

	from, to, err := a.cfg.Window(a.loc)
	if err != nil {
		return types.ProcessingWindow{}, err
	}
	return segment.NewWindow(segment.WindowRequest{
		Mode:          mode,
		Now:           now,
		TracebackDays: traceback,
		From:          from,
		To:            to,
		Location:      a.loc,
	})
}

// RunOnce runs the pipeline for the window selected at now and records the
// outcome in the run history and the status store
func (a *App) RunOnce(ctx context.Context, now time.Time) (*pipeline.Report, error) {
	w, err := a.Window(now)
	if err != nil {
		return nil, err
	}

	rep, runErr := a.runner.Run(ctx, w)
	if rep != nil {
		if err := a.storage.RecordRun(ctx, rep.Record(runErr)); err != nil {
			a.logger.Errorf("could not record run %s: %v", rep.RunID, err)
		}
	}
	a.store.Update(rep, runErr)
	return rep, runErr
}

func (a *App) now() time.Time {
	if !a.opts.Now.IsZero() {
		return a.opts.Now
	}
	return time.Now()
}
