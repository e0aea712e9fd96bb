// Package sqlite stores daily segments and the run history in a local SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/chrissnell/fluxprep/internal/storage"
	"github.com/chrissnell/fluxprep/internal/types"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS segment_samples (
	date TEXT NOT NULL,
	time TEXT NOT NULL,
	variable TEXT NOT NULL,
	value REAL NULL,
	quality TEXT NOT NULL,
	PRIMARY KEY (date, variable, time)
);

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	window_start TEXT NOT NULL,
	window_end TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	days INTEGER NOT NULL,
	failures INTEGER NOT NULL,
	error TEXT NULL
);
`

// Storage is a SQLite sink
type Storage struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// New opens (and if needed creates) the database at path
func New(ctx context.Context, path string, logger *zap.SugaredLogger) (*Storage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// a single connection serialises writers
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	logger.Info("creating SQLite output tables...")
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create tables: %w", err)
	}

	return &Storage{db: db, logger: logger}, nil
}

func (s *Storage) Name() string {
	return "sqlite"
}

// WriteSegment replaces every stored sample of the segment's date
func (s *Storage) WriteSegment(ctx context.Context, seg types.DailySegment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	date := seg.Key()
	if _, err := tx.ExecContext(ctx, "DELETE FROM segment_samples WHERE date = ?", date); err != nil {
		return fmt.Errorf("failed to clear %s: %w", date, err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO segment_samples (date, time, variable, value, quality) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range storage.Rows(seg) {
		var value sql.NullFloat64
		if !math.IsNaN(r.Value) {
			value = sql.NullFloat64{Float64: r.Value, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, date, r.Time.UTC().Format(time.RFC3339), r.Variable, value, r.Quality.String()); err != nil {
			return fmt.Errorf("failed to insert %s at %s: %w", r.Variable, r.Time, err)
		}
	}

	return tx.Commit()
}

// RecordRun appends a run to the history table
func (s *Storage) RecordRun(ctx context.Context, r storage.RunRecord) error {
	query := `
		INSERT INTO runs (id, mode, window_start, window_end, started_at, finished_at, days, failures, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var runErr sql.NullString
	if r.Error != "" {
		runErr = sql.NullString{String: r.Error, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, query, r.ID, r.Mode,
		r.Start.UTC().Format(time.RFC3339), r.End.UTC().Format(time.RFC3339),
		r.StartedAt.UTC().Format(time.RFC3339Nano), r.FinishedAt.UTC().Format(time.RFC3339Nano),
		r.Days, r.Failures, runErr)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.ID, err)
	}
	return nil
}

// LatestRun returns the most recently finished run
func (s *Storage) LatestRun(ctx context.Context) (*storage.RunRecord, error) {
	query := `
		SELECT id, mode, window_start, window_end, started_at, finished_at, days, failures, error
		FROM runs ORDER BY finished_at DESC LIMIT 1
	`
	var r storage.RunRecord
	var start, end, started, finished string
	var runErr sql.NullString
	err := s.db.QueryRowContext(ctx, query).Scan(&r.ID, &r.Mode, &start, &end, &started, &finished, &r.Days, &r.Failures, &runErr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	r.Error = runErr.String
	r.Start, _ = time.Parse(time.RFC3339, start)
	r.End, _ = time.Parse(time.RFC3339, end)
	r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
	return &r, nil
}

// CountSamples returns the number of stored samples for a date key
func (s *Storage) CountSamples(ctx context.Context, date string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM segment_samples WHERE date = ?", date).Scan(&n)
	return n, err
}

// CheckHealth pings the database
func (s *Storage) CheckHealth(ctx context.Context) *storage.HealthData {
	if err := s.db.PingContext(ctx); err != nil {
		return storage.CreateHealthData("unhealthy", "database ping failed", err)
	}
	return storage.CreateHealthData("healthy", "SQLite operational", nil)
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}
