// Package managers wires the configured output sinks together.
package managers

import (
	"context"
	"fmt"

	"github.com/chrissnell/fluxprep/internal/storage"
	"github.com/chrissnell/fluxprep/internal/storage/csvfile"
	"github.com/chrissnell/fluxprep/internal/storage/sqlite"
	"github.com/chrissnell/fluxprep/internal/storage/timescaledb"
	"github.com/chrissnell/fluxprep/internal/types"
	"github.com/chrissnell/fluxprep/pkg/config"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// StorageManager holds our active storage backends and fans every segment
// out to all of them
type StorageManager struct {
	Engines []storage.Sink
	Health  *storage.HealthManager
	logger  *zap.SugaredLogger
}

// NewStorageManager creates a StorageManager object, populated with all configured sinks
func NewStorageManager(ctx context.Context, c *config.StorageData, logger *zap.SugaredLogger) (*StorageManager, error) {
	s := &StorageManager{
		Health: storage.NewHealthManager(),
		logger: logger,
	}

	// Check the configuration for the supported storage backends
	// and enable them if found
	if c.CSV != nil {
		sink, err := csvfile.New(csvfile.Config{Dir: c.CSV.Dir, Prefix: c.CSV.Prefix, Compress: c.CSV.Compress}, logger)
		if err != nil {
			return s, fmt.Errorf("could not add CSV storage backend: %w", err)
		}
		s.AddEngine(sink)
	}

	if c.SQLite != nil {
		sink, err := sqlite.New(ctx, c.SQLite.Path, logger)
		if err != nil {
			return s, fmt.Errorf("could not add SQLite storage backend: %w", multierr.Append(err, s.Close()))
		}
		s.AddEngine(sink)
	}

	if c.TimescaleDB != nil {
		sink, err := timescaledb.New(ctx, c.TimescaleDB.ConnectionString, logger)
		if err != nil {
			return s, fmt.Errorf("could not add TimescaleDB storage backend: %w", multierr.Append(err, s.Close()))
		}
		s.AddEngine(sink)
	}

	return s, nil
}

// AddEngine adds a sink to the manager
func (s *StorageManager) AddEngine(sink storage.Sink) {
	s.logger.Infof("enabled %s storage backend", sink.Name())
	s.Engines = append(s.Engines, sink)
}

func (s *StorageManager) Name() string {
	return "manager"
}

// WriteSegment hands the segment to every sink. A failing sink does not stop
// the others; the combined error is returned.
func (s *StorageManager) WriteSegment(ctx context.Context, seg types.DailySegment) error {
	var errs error
	for _, e := range s.Engines {
		if err := e.WriteSegment(ctx, seg); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", e.Name(), err))
		}
	}
	return errs
}

// RecordRun stores the run in every sink that keeps a run history
func (s *StorageManager) RecordRun(ctx context.Context, r storage.RunRecord) error {
	var errs error
	for _, e := range s.Engines {
		if rec, ok := e.(storage.RunRecorder); ok {
			if err := rec.RecordRun(ctx, r); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", e.Name(), err))
			}
		}
	}
	return errs
}

// CheckHealth refreshes the health of every sink that supports checks
func (s *StorageManager) CheckHealth(ctx context.Context) map[string]storage.HealthData {
	for _, e := range s.Engines {
		if hc, ok := e.(storage.HealthChecker); ok {
			h := s.Health.Check(ctx, e.Name(), hc)
			s.logger.Debugf("%s health status: %s", e.Name(), h.Status)
		}
	}
	return s.Health.GetAllHealth()
}

// Close closes every sink and combines their errors
func (s *StorageManager) Close() error {
	var errs error
	for _, e := range s.Engines {
		errs = multierr.Append(errs, e.Close())
	}
	s.Engines = nil
	return errs
}
