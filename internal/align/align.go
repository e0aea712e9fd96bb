// Package align resamples independently sampled series onto one shared grid.
package align

import (
	"fmt"
	"math"
	"time"

	"github.com/chrissnell/fluxprep/internal/types"
)

// Options controls the shared grid. Interval may be zero, in which case the
// finest native interval among the inputs is used.
type Options struct {
	Start    time.Time
	End      time.Time
	Interval time.Duration
}

// GridInterval returns the configured interval or the finest native interval
// among the series
func GridInterval(series []types.TimeSeries, configured time.Duration) time.Duration {
	if configured > 0 {
		return configured
	}
	var finest time.Duration
	for _, ts := range series {
		iv := ts.Variable.Interval
		if iv > 0 && (finest == 0 || iv < finest) {
			finest = iv
		}
	}
	return finest
}

// Align resamples every series onto the grid Start + k*Interval over
// [Start, End). Linear variables are interpolated between neighbouring
// samples, or block averaged when their native grid is finer than the shared
// one. All other variables take the nearest sample within tolerance. Grid
// points with nothing usable nearby are missing; no gap is bridged here.
func Align(series []types.TimeSeries, opts Options) (types.Dataset, error) {
	interval := GridInterval(series, opts.Interval)
	if interval <= 0 {
		return types.Dataset{}, fmt.Errorf("cannot align %d series without a grid interval", len(series))
	}

	ds := types.Dataset{
		Start:    opts.Start,
		End:      opts.End,
		Interval: interval,
		Series:   make([]types.TimeSeries, 0, len(series)),
	}

	usable := false
	for _, ts := range series {
		out := resample(ts, opts.Start, opts.End, interval)
		if out.HasUsable() {
			usable = true
		}
		ds.Series = append(ds.Series, out)
	}
	if !usable {
		return ds, types.ErrNoUsableData
	}
	return ds, nil
}

func resample(ts types.TimeSeries, start, end time.Time, interval time.Duration) types.TimeSeries {
	v := ts.Variable
	native := v.Interval
	v.Interval = interval
	out := types.NewTimeSeries(v, start, end)
	if len(ts.Samples) == 0 || native <= 0 {
		return out
	}

	for i := range out.Samples {
		t := out.Samples[i].Time
		var s types.Sample
		switch {
		case ts.Variable.FillMethod == types.FillLinear && native < interval:
			s = blockMean(ts, t.Add(-interval/2), t.Add(interval/2))
		case ts.Variable.FillMethod == types.FillLinear:
			s = interpolate(ts, t)
		default:
			s = nearest(ts, t)
		}
		s.Time = t
		out.Samples[i] = s
	}
	return out
}

// atOrAfter returns the index of the first sample at or after t
func atOrAfter(ts types.TimeSeries, t time.Time) int {
	native := ts.Variable.Interval
	offset := t.Sub(ts.Start)
	if offset <= 0 {
		return 0
	}
	idx := int(offset / native)
	if offset%native != 0 {
		idx++
	}
	if idx > len(ts.Samples) {
		return len(ts.Samples)
	}
	return idx
}

func nearest(ts types.TimeSeries, t time.Time) types.Sample {
	native := ts.Variable.Interval
	idx := int(math.Round(float64(t.Sub(ts.Start)) / float64(native)))
	if idx < 0 || idx >= len(ts.Samples) {
		return missing()
	}
	s := ts.Samples[idx]
	d := s.Time.Sub(t)
	if d < 0 {
		d = -d
	}
	if d > ts.Variable.AlignTolerance() {
		return missing()
	}
	if !s.Quality.Usable() {
		s.Value = math.NaN()
	}
	return s
}

func interpolate(ts types.TimeSeries, t time.Time) types.Sample {
	if idx, ok := ts.Index(t); ok {
		s := ts.Samples[idx]
		if !s.Quality.Usable() {
			s.Value = math.NaN()
		}
		return s
	}

	j := atOrAfter(ts, t)
	if j == 0 || j >= len(ts.Samples) {
		return nearest(ts, t)
	}
	a, b := ts.Samples[j-1], ts.Samples[j]
	if !a.Quality.Usable() || !b.Quality.Usable() {
		return nearest(ts, t)
	}

	frac := float64(t.Sub(a.Time)) / float64(b.Time.Sub(a.Time))
	q := types.QualityValid
	if a.Quality == types.QualityFilled || b.Quality == types.QualityFilled {
		q = types.QualityFilled
	}
	return types.Sample{Value: a.Value + (b.Value-a.Value)*frac, Quality: q}
}

// blockMean averages the usable samples in [from, to). The result is filled
// when any contributing sample was filled, and flagged when the block only
// holds flagged samples.
func blockMean(ts types.TimeSeries, from, to time.Time) types.Sample {
	var (
		sum            float64
		n              int
		filled, marked bool
	)
	for i := atOrAfter(ts, from); i < len(ts.Samples) && ts.Samples[i].Time.Before(to); i++ {
		s := ts.Samples[i]
		switch {
		case s.Quality.Usable():
			sum += s.Value
			n++
			filled = filled || s.Quality == types.QualityFilled
		case s.Quality == types.QualityFlagged:
			marked = true
		}
	}

	switch {
	case n > 0 && filled:
		return types.Sample{Value: sum / float64(n), Quality: types.QualityFilled}
	case n > 0:
		return types.Sample{Value: sum / float64(n), Quality: types.QualityValid}
	case marked:
		return types.Sample{Value: math.NaN(), Quality: types.QualityFlagged}
	default:
		return missing()
	}
}

func missing() types.Sample {
	return types.Sample{Value: math.NaN(), Quality: types.QualityMissing}
}
