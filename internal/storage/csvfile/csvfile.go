// Package csvfile writes one wide CSV file per processed day.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chrissnell/fluxprep/internal/storage"
	"github.com/chrissnell/fluxprep/internal/types"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// timestampLayout carries the UTC offset so the repeated hour of a DST
// fall-back day stays distinguishable
const timestampLayout = "2006-01-02 15:04:05-07:00"

// Config describes where daily files are written
type Config struct {
	Dir      string
	Prefix   string
	Compress bool
}

// Storage writes daily segments as <prefix>_YYYYMMDD.csv
type Storage struct {
	cfg    Config
	logger *zap.SugaredLogger
}

// New creates the output directory and returns a CSV sink
func New(cfg Config, logger *zap.SugaredLogger) (*Storage, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("csv output directory is not set")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &Storage{cfg: cfg, logger: logger}, nil
}

func (s *Storage) Name() string {
	return "csv"
}

// Path returns the file a segment for date key YYYYMMDD is written to
func (s *Storage) Path(key string) string {
	name := key + ".csv"
	if s.cfg.Prefix != "" {
		name = s.cfg.Prefix + "_" + name
	}
	if s.cfg.Compress {
		name += ".zst"
	}
	return filepath.Join(s.cfg.Dir, name)
}

// WriteSegment replaces the day's file. The file is written to a temporary
// name first and renamed into place once complete.
func (s *Storage) WriteSegment(ctx context.Context, seg types.DailySegment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := s.Path(seg.Key())
	tmp, err := os.CreateTemp(s.cfg.Dir, ".fluxprep-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := s.encode(tmp, seg); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("moving %s into place: %w", path, err)
	}

	s.logger.Debugf("wrote %s", path)
	return nil
}

func (s *Storage) encode(w io.Writer, seg types.DailySegment) error {
	if !s.cfg.Compress {
		return Encode(w, seg)
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return err
	}
	if err := Encode(enc, seg); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// Encode writes seg as CSV: timestamp, day of year, one value column per
// variable, then one quality column per variable.
func Encode(w io.Writer, seg types.DailySegment) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, 2+2*len(seg.Series))
	header = append(header, "timestamp", "doy")
	for _, s := range seg.Series {
		header = append(header, s.Variable.Name)
	}
	for _, s := range seg.Series {
		header = append(header, s.Variable.Name+"_qc")
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for i, t := range seg.Timestamps() {
		record[0] = t.Format(timestampLayout)
		record[1] = storage.FormatValue(storage.DayOfYear(t), 5)
		for j, s := range seg.Series {
			smp := s.Samples[i]
			record[2+j] = storage.FormatValue(storage.OutputValue(smp), s.Variable.Precision)
			record[2+len(seg.Series)+j] = smp.Quality.String()
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// Close is a no-op, files are closed after every segment
func (s *Storage) Close() error {
	return nil
}

// CheckHealth verifies the output directory is writable
func (s *Storage) CheckHealth(_ context.Context) *storage.HealthData {
	f, err := os.CreateTemp(s.cfg.Dir, ".health-*")
	if err != nil {
		return storage.CreateHealthData("unhealthy", "output directory is not writable", err)
	}
	f.Close()
	os.Remove(f.Name())
	return storage.CreateHealthData("healthy", "writing to "+strings.TrimSuffix(s.cfg.Dir, "/"), nil)
}
