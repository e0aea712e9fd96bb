// Package leafarea turns sparse manual leaf area measurements into a
// continuous series. Measurements are ground truth days apart, so the
// estimate is strictly piecewise between consecutive observations and nothing
// is produced before the first or after the last one.
package leafarea

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/chrissnell/fluxprep/internal/types"
	"gonum.org/v1/gonum/interp"
)

const (
	// MethodLinear interpolates linearly between consecutive observations
	MethodLinear = "linear"

	// MethodStep holds each observation until the next one
	MethodStep = "step"
)

// Normalize sorts observations by time, drops non-finite values and keeps the
// last value for duplicate timestamps.
func Normalize(obs []types.Observation) []types.Observation {
	clean := make([]types.Observation, 0, len(obs))
	for _, o := range obs {
		if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
			continue
		}
		clean = append(clean, o)
	}
	sort.SliceStable(clean, func(i, j int) bool { return clean[i].Time.Before(clean[j].Time) })

	out := clean[:0]
	for _, o := range clean {
		if len(out) > 0 && out[len(out)-1].Time.Equal(o.Time) {
			out[len(out)-1] = o
			continue
		}
		out = append(out, o)
	}
	return out
}

// Interpolate estimates v on its grid over [start, end) from observations.
// Grid points that coincide with an observation are valid, estimates between
// observations are filled, everything outside the observed span is missing.
func Interpolate(v types.Variable, start, end time.Time, obs []types.Observation) (types.TimeSeries, error) {
	ts := types.NewTimeSeries(v, start, end)
	obs = Normalize(obs)
	if len(obs) == 0 || len(ts.Samples) == 0 {
		return ts, nil
	}

	origin := obs[0].Time
	xs := make([]float64, len(obs))
	ys := make([]float64, len(obs))
	for i, o := range obs {
		xs[i] = o.Time.Sub(origin).Hours()
		ys[i] = o.Value
	}

	var predict func(x float64) float64
	switch v.Interpolation {
	case "", MethodLinear:
		if len(obs) > 1 {
			var pl interp.PiecewiseLinear
			if err := pl.Fit(xs, ys); err != nil {
				return ts, fmt.Errorf("fitting leaf area for %s: %w", v.Name, err)
			}
			predict = pl.Predict
		}
	case MethodStep:
		predict = func(x float64) float64 {
			i := sort.SearchFloat64s(xs, x)
			if i < len(xs) && xs[i] == x {
				return ys[i]
			}
			return ys[i-1]
		}
	default:
		return ts, &types.ConfigurationError{Variable: v.Name, Reason: fmt.Sprintf("unknown leaf area interpolation %q", v.Interpolation)}
	}

	first, last := obs[0].Time, obs[len(obs)-1].Time
	for i := range ts.Samples {
		s := &ts.Samples[i]
		if s.Time.Before(first) || s.Time.After(last) {
			continue
		}
		if j := sort.Search(len(obs), func(k int) bool { return !obs[k].Time.Before(s.Time) }); j < len(obs) && obs[j].Time.Equal(s.Time) {
			s.Value = obs[j].Value
			s.Quality = types.QualityValid
			continue
		}
		s.Value = predict(s.Time.Sub(origin).Hours())
		s.Quality = types.QualityFilled
	}
	return ts, nil
}
