package gapfill

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/chrissnell/fluxprep/internal/types"
)

var t0 = time.Date(2016, 5, 26, 0, 0, 0, 0, time.UTC)

// build places values on a one-minute grid; NaN entries are left missing
func build(v types.Variable, values ...float64) types.TimeSeries {
	obs := make([]types.Observation, 0, len(values))
	for i, x := range values {
		obs = append(obs, types.Observation{Time: t0.Add(time.Duration(i) * v.Interval), Value: x})
	}
	return types.FromObservations(v, t0, t0.Add(time.Duration(len(values))*v.Interval), obs)
}

func flowVar(method types.FillMethod, maxGap time.Duration) types.Variable {
	return types.Variable{
		Name:       "flow_ch_1",
		Interval:   time.Minute,
		Min:        0,
		Max:        10,
		MaxGap:     maxGap,
		FillMethod: method,
	}
}

func TestDetect(t *testing.T) {
	nan := math.NaN()
	ts := build(flowVar(types.FillLinear, time.Hour), nan, 1, 2, nan, nan, 3, nan)

	gaps := Detect(ts)
	if len(gaps) != 3 {
		t.Fatalf("expected 3 gaps, got %d", len(gaps))
	}

	tests := []struct {
		start, end int
		duration   time.Duration
		truncated  bool
	}{
		{0, 0, time.Minute, true},
		{3, 4, 2 * time.Minute, false},
		{6, 6, time.Minute, true},
	}
	for i, want := range tests {
		g := gaps[i]
		if g.StartIndex != want.start || g.EndIndex != want.end {
			t.Errorf("gap %d: expected [%d,%d], got [%d,%d]", i, want.start, want.end, g.StartIndex, g.EndIndex)
		}
		if g.Duration != want.duration {
			t.Errorf("gap %d: expected duration %v, got %v", i, want.duration, g.Duration)
		}
		if g.Truncated != want.truncated {
			t.Errorf("gap %d: expected truncated=%v, got %v", i, want.truncated, g.Truncated)
		}
		if !g.Start.Equal(ts.Samples[want.start].Time) || !g.End.Equal(ts.Samples[want.end].Time) {
			t.Errorf("gap %d: timestamps do not match sample grid", i)
		}
	}
}

func TestLinearFillFormula(t *testing.T) {
	nan := math.NaN()
	ts := build(flowVar(types.FillLinear, time.Hour), 1.0, nan, nan, nan, 5.0)

	out, st, err := Fill(ts, Detect(ts))
	if err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	if st.Gaps != 1 || st.Filled != 3 || st.Flagged != 0 {
		t.Errorf("unexpected stats %+v", st)
	}

	t0v, t1v := ts.Samples[0], ts.Samples[4]
	for i := 1; i <= 3; i++ {
		s := out.Samples[i]
		frac := float64(s.Time.Sub(t0v.Time)) / float64(t1v.Time.Sub(t0v.Time))
		want := t0v.Value + (t1v.Value-t0v.Value)*frac
		if math.Abs(s.Value-want) > 1e-12 {
			t.Errorf("sample %d: expected %.6f, got %.6f", i, want, s.Value)
		}
		if s.Quality != types.QualityFilled {
			t.Errorf("sample %d: expected filled, got %s", i, s.Quality)
		}
	}
}

func TestNoExtrapolation(t *testing.T) {
	nan := math.NaN()
	methods := []types.FillMethod{types.FillLinear, types.FillForward}

	for _, m := range methods {
		t.Run(string(m), func(t *testing.T) {
			ts := build(flowVar(m, time.Hour), nan, nan, 2, 3, nan)
			out, _, err := Fill(ts, Detect(ts))
			if err != nil {
				t.Fatalf("Fill failed: %v", err)
			}
			for _, i := range []int{0, 1, 4} {
				if out.Samples[i].Quality != types.QualityFlagged {
					t.Errorf("edge sample %d: expected flagged, got %s", i, out.Samples[i].Quality)
				}
				if !math.IsNaN(out.Samples[i].Value) {
					t.Errorf("edge sample %d: expected NaN, got %f", i, out.Samples[i].Value)
				}
			}
		})
	}
}

func TestThresholdBoundary(t *testing.T) {
	nan := math.NaN()
	maxGap := 3 * time.Minute

	tests := []struct {
		name       string
		values     []float64
		wantFilled bool
	}{
		{
			name:       "gap equal to max is filled",
			values:     []float64{1, nan, nan, nan, 5},
			wantFilled: true,
		},
		{
			name:       "gap one interval longer is flagged",
			values:     []float64{1, nan, nan, nan, nan, 6},
			wantFilled: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := build(flowVar(types.FillLinear, maxGap), tt.values...)
			out, _, err := Fill(ts, Detect(ts))
			if err != nil {
				t.Fatalf("Fill failed: %v", err)
			}
			want := types.QualityFlagged
			if tt.wantFilled {
				want = types.QualityFilled
			}
			for i := 1; i < len(tt.values)-1; i++ {
				if out.Samples[i].Quality != want {
					t.Errorf("sample %d: expected %s, got %s", i, want, out.Samples[i].Quality)
				}
			}
		})
	}
}

func TestForwardFill(t *testing.T) {
	nan := math.NaN()
	ts := build(flowVar(types.FillForward, time.Hour), 2, nan, nan, 7)
	out, st, err := Fill(ts, Detect(ts))
	if err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	for i := 1; i <= 2; i++ {
		if out.Samples[i].Value != 2 || out.Samples[i].Quality != types.QualityFilled {
			t.Errorf("sample %d: expected filled 2, got %s %f", i, out.Samples[i].Quality, out.Samples[i].Value)
		}
	}
	if st.Filled != 2 {
		t.Errorf("expected 2 filled, got %d", st.Filled)
	}
}

func TestFillNoneFlagsEverything(t *testing.T) {
	nan := math.NaN()
	ts := build(flowVar(types.FillNone, time.Hour), 2, nan, 7)
	out, st, err := Fill(ts, Detect(ts))
	if err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	if out.Samples[1].Quality != types.QualityFlagged || st.Flagged != 1 {
		t.Errorf("expected the interior gap to be flagged, got %s (stats %+v)", out.Samples[1].Quality, st)
	}
}

func TestFillOutOfRangeIsFlagged(t *testing.T) {
	nan := math.NaN()
	v := flowVar(types.FillLinear, time.Hour)
	ts := build(v, 2, nan, 8)
	// metadata narrowed after filtering: the blend of 2 and 8 leaves the range
	ts.Variable.Max = 4
	out, _, err := Fill(ts, Detect(ts))
	if err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	if out.Samples[1].Quality != types.QualityFlagged {
		t.Errorf("expected flagged, got %s", out.Samples[1].Quality)
	}
}

func TestUnknownFillMethod(t *testing.T) {
	ts := build(flowVar("spline", time.Hour), 1, 2)
	_, _, err := Fill(ts, Detect(ts))
	if err == nil {
		t.Fatal("expected a configuration error")
	}
	var cfgErr *types.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Errorf("expected ConfigurationError, got %T", err)
	}
}
