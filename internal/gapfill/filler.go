package gapfill

import (
	"fmt"
	"math"

	"github.com/chrissnell/fluxprep/internal/types"
)

// Filler computes replacement values for one interior gap. before and after
// are the valid samples bounding the gap. ok is false when the strategy
// declines to fill, in which case the gap is flagged.
type Filler interface {
	FillGap(ts types.TimeSeries, gap types.Gap, before, after types.Sample) (values []float64, ok bool)
}

// LinearFiller blends the two bounding samples
type LinearFiller struct{}

// FillGap implements Filler
func (LinearFiller) FillGap(ts types.TimeSeries, gap types.Gap, before, after types.Sample) ([]float64, bool) {
	span := after.Time.Sub(before.Time)
	if span <= 0 {
		return nil, false
	}
	values := make([]float64, 0, gap.Len())
	for i := gap.StartIndex; i <= gap.EndIndex; i++ {
		frac := float64(ts.Samples[i].Time.Sub(before.Time)) / float64(span)
		values = append(values, before.Value+(after.Value-before.Value)*frac)
	}
	return values, true
}

// ForwardFiller repeats the last valid sample before the gap
type ForwardFiller struct{}

// FillGap implements Filler
func (ForwardFiller) FillGap(ts types.TimeSeries, gap types.Gap, before, after types.Sample) ([]float64, bool) {
	values := make([]float64, gap.Len())
	for i := range values {
		values[i] = before.Value
	}
	return values, true
}

// NoneFiller never fills
type NoneFiller struct{}

// FillGap implements Filler
func (NoneFiller) FillGap(types.TimeSeries, types.Gap, types.Sample, types.Sample) ([]float64, bool) {
	return nil, false
}

// NewFiller returns the strategy for a fill method
func NewFiller(m types.FillMethod) (Filler, error) {
	switch m {
	case types.FillLinear:
		return LinearFiller{}, nil
	case types.FillForward:
		return ForwardFiller{}, nil
	case types.FillNone:
		return NoneFiller{}, nil
	default:
		return nil, fmt.Errorf("unknown fill method %q", m)
	}
}

// Stats summarises what Fill did to a series
type Stats struct {
	Gaps    int
	Filled  int
	Flagged int
}

// Fill fills every interior gap no longer than the variable's MaxGap using
// the variable's strategy. Truncated gaps, longer gaps, and fills that would
// leave the valid range are flagged instead. The input is not modified.
func Fill(ts types.TimeSeries, gaps []types.Gap) (types.TimeSeries, Stats, error) {
	filler, err := NewFiller(ts.Variable.FillMethod)
	if err != nil {
		return ts, Stats{}, &types.ConfigurationError{Variable: ts.Variable.Name, Reason: err.Error()}
	}

	out := ts.Clone()
	st := Stats{Gaps: len(gaps)}

	for _, g := range gaps {
		if values, ok := fillable(out, g, filler); ok {
			for k, x := range values {
				s := &out.Samples[g.StartIndex+k]
				if math.IsNaN(x) || !out.Variable.InRange(x) {
					s.Value = math.NaN()
					s.Quality = types.QualityFlagged
					st.Flagged++
					continue
				}
				s.Value = x
				s.Quality = types.QualityFilled
				st.Filled++
			}
			continue
		}
		for i := g.StartIndex; i <= g.EndIndex; i++ {
			out.Samples[i].Value = math.NaN()
			out.Samples[i].Quality = types.QualityFlagged
		}
		st.Flagged += g.Len()
	}
	return out, st, nil
}

func fillable(ts types.TimeSeries, g types.Gap, f Filler) ([]float64, bool) {
	if g.Truncated || g.Duration > ts.Variable.MaxGap {
		return nil, false
	}
	before := ts.Samples[g.StartIndex-1]
	after := ts.Samples[g.EndIndex+1]
	return f.FillGap(ts, g, before, after)
}

// DetectAndFill runs Detect followed by Fill
func DetectAndFill(ts types.TimeSeries) (types.TimeSeries, []types.Gap, Stats, error) {
	gaps := Detect(ts)
	out, st, err := Fill(ts, gaps)
	return out, gaps, st, err
}
