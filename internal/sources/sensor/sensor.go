// Package sensor reads the whitespace separated chamber sensor logs (*.cop for
// the leaf chambers, *.mpr for the soil chambers).
package sensor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chrissnell/fluxprep/internal/sources"
	"github.com/chrissnell/fluxprep/internal/types"
)

const timestampLayout = "20060102150405"

// Config locates one family of sensor logs
type Config struct {
	Dir     string
	Pattern string

	// Columns maps field names to their zero based column
	Columns map[string]int

	// DateLayout, when set, restricts reading to files whose name contains
	// one of the requested dates formatted with it (e.g. "060102")
	DateLayout string

	Location *time.Location
}

// Reader implements sources.Source for sensor logs
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

// Fetch implements sources.Source. The variable's calibration is applied to
// every readable value.
func (r *Reader) Fetch(ctx context.Context, v types.Variable, from, to time.Time) ([]types.Observation, error) {
	field := v.Field
	if field == "" {
		field = v.Name
	}
	col, ok := r.cfg.Columns[field]
	if !ok || col < 1 {
		return nil, fmt.Errorf("sensor logs have no column %q", field)
	}

	files, err := r.files(from, to)
	if err != nil {
		return nil, err
	}

	var obs []types.Observation
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		parsed, err := Parse(f, col, r.cfg.Location)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		for _, o := range sources.Between(parsed, from, to) {
			if !math.IsNaN(o.Value) {
				o.Value = v.Calibration.Apply(o.Value)
			}
			obs = append(obs, o)
		}
	}
	return obs, nil
}

func (r *Reader) files(from, to time.Time) ([]string, error) {
	all, err := filepath.Glob(filepath.Join(r.cfg.Dir, r.cfg.Pattern))
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no sensor logs match %s", filepath.Join(r.cfg.Dir, r.cfg.Pattern))
	}
	sort.Strings(all)
	if r.cfg.DateLayout == "" {
		return all, nil
	}

	// logs are named by the local date they start on; include the day
	// before so records running past midnight are not lost
	var keys []string
	first := types.Midnight(from.In(r.cfg.Location))
	for d := first.AddDate(0, 0, -1); d.Before(to); d = types.NextDay(d) {
		keys = append(keys, d.Format(r.cfg.DateLayout))
	}

	var out []string
	for _, name := range all {
		base := filepath.Base(name)
		for _, k := range keys {
			if strings.Contains(base, k) {
				out = append(out, name)
				break
			}
		}
	}
	return out, nil
}

// Parse reads one log and returns the observations of column col. A "-"
// cell is missing; rows with an unreadable timestamp are skipped.
func Parse(r io.Reader, col int, loc *time.Location) ([]types.Observation, error) {
	var obs []types.Observation
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		ts, err := time.ParseInLocation(timestampLayout, fields[0], loc)
		if err != nil {
			continue
		}
		val := math.NaN()
		if col < len(fields) && fields[col] != "-" {
			if x, err := strconv.ParseFloat(fields[col], 64); err == nil {
				val = x
			}
		}
		obs = append(obs, types.Observation{Time: ts, Value: val})
	}
	return obs, sc.Err()
}
