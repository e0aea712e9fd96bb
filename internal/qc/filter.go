// Package qc flags physically implausible samples before gap analysis.
//
// A flagged sample keeps its timestamp but loses its value (NaN) so the gap
// detector treats it like a missing reading.
package qc

import (
	"math"
	"sort"
	"time"

	"github.com/chrissnell/fluxprep/internal/solar"
	"github.com/chrissnell/fluxprep/internal/types"
	"gonum.org/v1/gonum/stat"
)

// Options carries run-wide context the filter needs besides the variable
type Options struct {
	// Location defines the calendar days the IQR filter is evaluated over
	Location *time.Location

	// Site enables the night-time radiation check when non-nil
	Site *solar.Site
}

// Filter returns a copy of ts with out-of-range, masked, night-time radiation,
// IQR outlier and spike samples flagged. Non-finite or sentinel values become
// missing. Filter never fails.
func Filter(ts types.TimeSeries, opts Options) types.TimeSeries {
	out := ts.Clone()
	v := out.Variable

	for i := range out.Samples {
		s := &out.Samples[i]
		switch {
		case s.Quality == types.QualityMissing,
			math.IsNaN(s.Value), math.IsInf(s.Value, 0),
			isSentinel(v.MissingValues, s.Value):
			markMissing(s)
		case masked(v.Masks, s.Time),
			!v.InRange(s.Value):
			flag(s)
		case v.NightMax != nil && opts.Site != nil &&
			s.Value > *v.NightMax && solar.IsNight(*opts.Site, s.Time):
			flag(s)
		}
	}

	if v.IQR != nil {
		applyIQR(&out, *v.IQR, opts.Location)
	}
	if v.SpikeThreshold > 0 {
		applySpike(&out, v.SpikeThreshold)
	}
	return out
}

func markMissing(s *types.Sample) {
	s.Value = math.NaN()
	s.Quality = types.QualityMissing
}

func flag(s *types.Sample) {
	s.Value = math.NaN()
	s.Quality = types.QualityFlagged
}

func isSentinel(sentinels []float64, x float64) bool {
	for _, m := range sentinels {
		if x == m {
			return true
		}
	}
	return false
}

func masked(masks []types.TimeRange, t time.Time) bool {
	for _, m := range masks {
		if m.Contains(t) {
			return true
		}
	}
	return false
}

// applyIQR flags valid samples outside [q1 - LowerK*IQR, q3 + UpperK*IQR].
// Quartiles are computed per local calendar day so a correction on one day
// never changes the flags of another.
func applyIQR(ts *types.TimeSeries, b types.IQRBounds, loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}

	byDay := make(map[time.Time][]int)
	var days []time.Time
	for i, s := range ts.Samples {
		if s.Quality != types.QualityValid {
			continue
		}
		d := types.Midnight(s.Time.In(loc))
		if _, ok := byDay[d]; !ok {
			days = append(days, d)
		}
		byDay[d] = append(byDay[d], i)
	}

	for _, d := range days {
		idx := byDay[d]
		values := make([]float64, len(idx))
		for k, i := range idx {
			values[k] = ts.Samples[i].Value
		}
		lo, hi := IQRLimits(values, b)
		for _, i := range idx {
			x := ts.Samples[i].Value
			if x < lo || x > hi {
				flag(&ts.Samples[i])
			}
		}
	}
}

// IQRLimits returns the acceptance bounds for values. values is not modified.
func IQRLimits(values []float64, b types.IQRBounds) (lo, hi float64) {
	if len(values) == 0 {
		return math.Inf(-1), math.Inf(1)
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	q1 := stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	q3 := stat.Quantile(0.75, stat.LinInterp, sorted, nil)
	iqr := q3 - q1
	return q1 - b.LowerK*iqr, q3 + b.UpperK*iqr
}

// applySpike flags isolated jumps. A valid sample is a spike when it differs
// by more than threshold from every valid neighbour it has; the neighbours are
// judged on the range-checked values, not on earlier spike decisions.
func applySpike(ts *types.TimeSeries, threshold float64) {
	var valid []int
	for i, s := range ts.Samples {
		if s.Quality == types.QualityValid {
			valid = append(valid, i)
		}
	}
	if len(valid) < 2 {
		return
	}

	values := make([]float64, len(valid))
	for k, i := range valid {
		values[k] = ts.Samples[i].Value
	}

	for k, i := range valid {
		spike := true
		if k > 0 && math.Abs(values[k]-values[k-1]) <= threshold {
			spike = false
		}
		if k < len(valid)-1 && math.Abs(values[k]-values[k+1]) <= threshold {
			spike = false
		}
		if spike {
			flag(&ts.Samples[i])
		}
	}
}
