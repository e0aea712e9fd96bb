package storage

import (
	"math"
	"strconv"
	"time"

	"github.com/chrissnell/fluxprep/internal/types"
)

// Row is one (timestamp, variable) cell of a segment
type Row struct {
	Time     time.Time
	Variable string
	Value    float64
	Quality  types.Quality
}

// Rows flattens a segment into rows ordered by variable then time. Values of
// samples that are not usable are reported as NaN.
func Rows(seg types.DailySegment) []Row {
	var n int
	for _, s := range seg.Series {
		n += len(s.Samples)
	}
	rows := make([]Row, 0, n)
	for _, s := range seg.Series {
		for _, smp := range s.Samples {
			rows = append(rows, Row{
				Time:     smp.Time,
				Variable: s.Variable.Name,
				Value:    OutputValue(smp),
				Quality:  smp.Quality,
			})
		}
	}
	return rows
}

// OutputValue returns the value a sink should store for a sample
func OutputValue(s types.Sample) float64 {
	if !s.Quality.Usable() {
		return math.NaN()
	}
	return s.Value
}

// FormatValue renders v with the given number of decimals, "NaN" for missing
func FormatValue(v float64, precision int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "NaN"
	}
	s := strconv.FormatFloat(v, 'f', precision, 64)
	if s == "-"+strconv.FormatFloat(0, 'f', precision, 64) {
		// rounding a tiny negative value must not produce "-0.00"
		s = s[1:]
	}
	return s
}

// DayOfYear returns the fractional day of year of t, 1.0 at local midnight on
// January 1st
func DayOfYear(t time.Time) float64 {
	midnight := types.Midnight(t)
	frac := t.Sub(midnight).Hours() / 24
	return float64(t.YearDay()) + frac
}

// CreateHealthData creates a basic health data structure
func CreateHealthData(status, message string, err error) *HealthData {
	health := &HealthData{
		LastCheck: time.Now(),
		Status:    status,
		Message:   message,
	}

	if err != nil {
		health.Error = err.Error()
	}

	return health
}
