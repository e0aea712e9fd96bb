// Package manual reads hand recorded observations such as leaf area
// measurements from a CSV table with a header row. Lines starting with # are
// comments.
package manual

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chrissnell/fluxprep/internal/sources"
	"github.com/chrissnell/fluxprep/internal/types"
)

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Config locates the table
type Config struct {
	Path string

	// TimeColumn names the timestamp column; the first column by default
	TimeColumn string

	Location *time.Location
}

// Reader implements sources.Source for manual tables
type Reader struct {
	cfg Config
}

// New returns a Reader for cfg
func New(cfg Config) *Reader {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Reader{cfg: cfg}
}

// Fetch implements sources.Source. Empty cells are skipped rather than
// reported as missing, as the table is sparse by nature.
func (r *Reader) Fetch(_ context.Context, v types.Variable, from, to time.Time) ([]types.Observation, error) {
	f, err := os.Open(r.cfg.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	field := v.Field
	if field == "" {
		field = v.Name
	}
	obs, err := Parse(f, r.cfg.TimeColumn, field, r.cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", r.cfg.Path, err)
	}
	return sources.Between(obs, from, to), nil
}

// Parse returns the non-empty cells of column field
func Parse(r io.Reader, timeColumn, field string, loc *time.Location) ([]types.Observation, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	tcol, vcol := 0, -1
	for i, h := range header {
		h = strings.TrimSpace(h)
		if timeColumn != "" && h == timeColumn {
			tcol = i
		}
		if h == field {
			vcol = i
		}
	}
	if vcol < 0 {
		return nil, fmt.Errorf("no column %q", field)
	}

	var obs []types.Observation
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if tcol >= len(rec) || vcol >= len(rec) {
			continue
		}
		cell := strings.TrimSpace(rec[vcol])
		if cell == "" {
			continue
		}
		x, err := strconv.ParseFloat(cell, 64)
		if err != nil || math.IsNaN(x) {
			continue
		}
		ts, err := parseTime(strings.TrimSpace(rec[tcol]), loc)
		if err != nil {
			return nil, err
		}
		obs = append(obs, types.Observation{Time: ts, Value: x})
	}
	return obs, nil
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
