// Package timescaledb stores daily segments in a TimescaleDB hypertable.
package timescaledb

import (
	"context"
	"fmt"
	"math"

	"github.com/chrissnell/fluxprep/internal/database"
	"github.com/chrissnell/fluxprep/internal/storage"
	"github.com/chrissnell/fluxprep/internal/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const insertBatchSize = 500

// Storage holds the connection for a TimescaleDB storage backend
type Storage struct {
	TimescaleDBConn *gorm.DB
	logger          *zap.SugaredLogger
}

// New sets up a new TimescaleDB storage backend
func New(ctx context.Context, connectionString string, logger *zap.SugaredLogger) (*Storage, error) {
	var err error
	t := Storage{logger: logger}

	t.TimescaleDBConn, err = database.CreateConnection(connectionString, logger.Desugar())
	if err != nil {
		return nil, err
	}

	steps := []struct {
		name string
		sql  string
	}{
		{"database table", createTableSQL},
		{"runs table", createRunsTableSQL},
		{"TimescaleDB extension", createExtensionSQL},
		{"hypertable", createHypertableSQL},
		{"date index", createDateIndexSQL},
		{"daily quality view", dailyQualityViewSQL},
	}
	for _, step := range steps {
		logger.Infof("creating %s...", step.name)
		if err := t.TimescaleDBConn.WithContext(ctx).Exec(step.sql).Error; err != nil {
			logger.Warnf("warning: could not create %s", step.name)
			return nil, fmt.Errorf("creating %s: %w", step.name, err)
		}
	}

	return &t, nil
}

func (t *Storage) Name() string {
	return "timescaledb"
}

// WriteSegment replaces every stored sample of the segment's date
func (t *Storage) WriteSegment(ctx context.Context, seg types.DailySegment) error {
	date := seg.Key()
	rows := storage.Rows(seg)
	samples := make([]database.SegmentSample, len(rows))
	for i, r := range rows {
		samples[i] = database.SegmentSample{
			Time:     r.Time,
			Date:     date,
			Variable: r.Variable,
			Quality:  r.Quality.String(),
		}
		if !math.IsNaN(r.Value) {
			samples[i].Value.Float64 = r.Value
			samples[i].Value.Valid = true
		}
	}

	return t.TimescaleDBConn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("date = ?", date).Delete(&database.SegmentSample{}).Error; err != nil {
			return fmt.Errorf("could not clear %s: %w", date, err)
		}
		if len(samples) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(samples, insertBatchSize).Error; err != nil {
			return fmt.Errorf("could not store %s: %w", date, err)
		}
		return nil
	})
}

// RecordRun stores a run in the history table
func (t *Storage) RecordRun(ctx context.Context, r storage.RunRecord) error {
	run := database.Run{
		ID:         r.ID,
		Mode:       r.Mode,
		Start:      r.Start,
		End:        r.End,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Days:       r.Days,
		Failures:   r.Failures,
		Error:      r.Error,
	}
	if err := t.TimescaleDBConn.WithContext(ctx).Create(&run).Error; err != nil {
		t.logger.Error("could not store run:", err)
		return err
	}
	return nil
}

// Close closes the underlying connection pool
func (t *Storage) Close() error {
	sqlDB, err := t.TimescaleDBConn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
