// Package flow reads the tab separated flowmeter logs written by the chamber
// control software. The first column is seconds since 1904-01-01 00:00 local
// time, the remaining columns are flow rates.
package flow

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

// DefaultColumns is the column layout of the 2016 flowmeter logs
var DefaultColumns = []string{"time_sec", "flow_out", "flow_ch_1", "flow_ch_2", "flow_ch_3", "flow_ch_4", "flow_ch_5"}

// Config locates the flow logs
type Config struct {
	Dir     string
	Pattern string

	// Columns names every column, the timestamp column first
	Columns []string

	// Location of the logger clock
	Location *time.Location
}

// Reader implements sources.Source for flowmeter logs
type Reader struct {
	cfg Config
}

// New returns a Reader, defaulting the file pattern and column layout
func New(cfg Config) *Reader {
	if cfg.Pattern == "" {
		cfg.Pattern = "data_*.dat"
	}
	if len(cfg.Columns) == 0 {
		cfg.Columns = DefaultColumns
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Reader{cfg: cfg}
}

// Epoch1904 converts seconds since 1904-01-01 in loc to a time
func Epoch1904(sec float64, loc *time.Location) time.Time {
	whole := math.Floor(sec)
	frac := time.Duration(math.Round((sec - whole) * 1e9))
	return time.Date(1904, 1, 1, 0, 0, 0, 0, loc).Add(time.Duration(whole)*time.Second + frac)
}

// Fetch implements sources.Source
func (r *Reader) Fetch(ctx context.Context, v types.Variable, from, to time.Time) ([]types.Observation, error) {
	field := v.Field
	if field == "" {
		field = v.Name
	}
	col := -1
	for i, c := range r.cfg.Columns {
		if i > 0 && c == field {
			col = i
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("flow logs have no column %q", field)
	}

	files, err := filepath.Glob(filepath.Join(r.cfg.Dir, r.cfg.Pattern))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no flow logs match %s", filepath.Join(r.cfg.Dir, r.cfg.Pattern))
	}
	sort.Strings(files)

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
		obs = append(obs, sources.Between(parsed, from, to)...)
	}
	return obs, nil
}

// Parse reads one log and returns the observations of column col. Rows with
// an unreadable timestamp are skipped; unreadable values become NaN.
func Parse(r io.Reader, col int, loc *time.Location) ([]types.Observation, error) {
	var obs []types.Observation
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		sec, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			continue
		}
		val := math.NaN()
		if col < len(fields) {
			if x, err := strconv.ParseFloat(fields[col], 64); err == nil {
				val = x
			}
		}
		obs = append(obs, types.Observation{Time: Epoch1904(sec, loc), Value: val})
	}
	return obs, sc.Err()
}
