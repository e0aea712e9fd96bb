package types

import (
	"math"
	"time"
)

// FillMethod identifies the gap filling strategy assigned to a variable
type FillMethod string

const (
	// FillLinear blends the valid samples bounding a gap
	FillLinear FillMethod = "linear"

	// FillForward carries the last valid sample across a gap
	FillForward FillMethod = "forward"

	// FillNone never fills; every gap is flagged
	FillNone FillMethod = "none"
)

// Kind separates regular instrument series from sparse manual observations
type Kind string

const (
	KindInstrument Kind = "instrument"
	KindLeafArea   Kind = "leaf_area"
)

// Quality is the per-sample quality flag. The zero value is QualityMissing so
// a freshly allocated grid is entirely missing.
type Quality uint8

const (
	QualityMissing Quality = iota
	QualityValid
	QualityFilled
	QualityFlagged
)

func (q Quality) String() string {
	switch q {
	case QualityValid:
		return "valid"
	case QualityFilled:
		return "filled"
	case QualityFlagged:
		return "flagged"
	default:
		return "missing"
	}
}

// Usable reports whether the sample carries a value downstream consumers may use
func (q Quality) Usable() bool {
	return q == QualityValid || q == QualityFilled
}

// TimeRange is a half-open [Start, End) interval
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies inside the half-open range
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// IQRBounds configures the interquartile range filter. Samples outside
// [q1 - LowerK*IQR, q3 + UpperK*IQR] are flagged.
type IQRBounds struct {
	LowerK float64
	UpperK float64
}

// Calibration is a linear correction applied to raw sensor values
type Calibration struct {
	Gain   float64
	Offset float64
}

// Apply returns the corrected value. A zero gain is treated as unity.
func (c Calibration) Apply(v float64) float64 {
	gain := c.Gain
	if gain == 0 {
		gain = 1
	}
	return v*gain + c.Offset
}

// Variable is a named physical quantity together with the metadata needed to
// filter, gap fill and align it. Variables are read-only during a run.
type Variable struct {
	Name   string
	Source string
	Field  string
	Kind   Kind

	// Interval is the native sampling interval
	Interval time.Duration

	// Min and Max bound the physically valid range
	Min float64
	Max float64

	// SpikeThreshold is the largest allowed change between neighbouring
	// samples; zero disables spike detection
	SpikeThreshold float64

	// MaxGap is the longest gap that will be filled
	MaxGap     time.Duration
	FillMethod FillMethod

	// Tolerance for nearest-neighbour alignment; zero means Interval/2
	Tolerance time.Duration

	// Precision is the number of decimals written by output sinks
	Precision int

	// Interpolation selects the leaf area estimator ("linear" or "step")
	Interpolation string

	MissingValues []float64
	Masks         []TimeRange
	IQR           *IQRBounds
	NightMax      *float64
	Calibration   Calibration
}

// InRange reports whether x lies within the variable's valid range
func (v Variable) InRange(x float64) bool {
	return x >= v.Min && x <= v.Max
}

// AlignTolerance returns the nearest-neighbour tolerance used when aligning
func (v Variable) AlignTolerance() time.Duration {
	if v.Tolerance > 0 {
		return v.Tolerance
	}
	return v.Interval / 2
}

// Observation is a raw (timestamp, value) pair as delivered by a source
type Observation struct {
	Time  time.Time
	Value float64
}

// Sample is one grid point of a TimeSeries
type Sample struct {
	Time    time.Time
	Value   float64
	Quality Quality
}

// TimeSeries holds one variable on its sampling grid. Samples[k] sits at
// Start + k*Interval and every grid point in [Start, End) has exactly one sample.
type TimeSeries struct {
	Variable Variable
	Start    time.Time
	End      time.Time
	Samples  []Sample
}

// GridLen returns the number of grid points in [start, end) for the given interval
func GridLen(start, end time.Time, interval time.Duration) int {
	if interval <= 0 || !end.After(start) {
		return 0
	}
	span := end.Sub(start)
	n := int(span / interval)
	if span%interval != 0 {
		n++
	}
	return n
}

// NewTimeSeries allocates an entirely missing series on v's grid over [start, end)
func NewTimeSeries(v Variable, start, end time.Time) TimeSeries {
	n := GridLen(start, end, v.Interval)
	ts := TimeSeries{
		Variable: v,
		Start:    start,
		End:      end,
		Samples:  make([]Sample, n),
	}
	for i := range ts.Samples {
		ts.Samples[i] = Sample{
			Time:    start.Add(time.Duration(i) * v.Interval),
			Value:   math.NaN(),
			Quality: QualityMissing,
		}
	}
	return ts
}

// FromObservations places raw observations on v's grid over [start, end).
// An observation is snapped to the nearest grid point when it lies within half
// an interval of it; several observations in one slot are averaged. Non-finite
// values are ignored, leaving the slot missing.
func FromObservations(v Variable, start, end time.Time, obs []Observation) TimeSeries {
	ts := NewTimeSeries(v, start, end)
	if len(ts.Samples) == 0 {
		return ts
	}

	sums := make([]float64, len(ts.Samples))
	counts := make([]int, len(ts.Samples))
	half := v.Interval / 2

	for _, o := range obs {
		if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
			continue
		}
		offset := o.Time.Sub(start)
		idx := int(math.Round(float64(offset) / float64(v.Interval)))
		if idx < 0 || idx >= len(ts.Samples) {
			continue
		}
		d := o.Time.Sub(ts.Samples[idx].Time)
		if d < 0 {
			d = -d
		}
		if d > half {
			continue
		}
		sums[idx] += o.Value
		counts[idx]++
	}

	for i := range ts.Samples {
		if counts[i] > 0 {
			ts.Samples[i].Value = sums[i] / float64(counts[i])
			ts.Samples[i].Quality = QualityValid
		}
	}
	return ts
}

// Len returns the number of samples
func (ts TimeSeries) Len() int {
	return len(ts.Samples)
}

// Interval returns the grid spacing of the series
func (ts TimeSeries) Interval() time.Duration {
	return ts.Variable.Interval
}

// Index returns the grid index of t and whether t falls exactly on the grid
func (ts TimeSeries) Index(t time.Time) (int, bool) {
	if ts.Variable.Interval <= 0 {
		return 0, false
	}
	offset := t.Sub(ts.Start)
	if offset < 0 || offset%ts.Variable.Interval != 0 {
		return 0, false
	}
	idx := int(offset / ts.Variable.Interval)
	if idx >= len(ts.Samples) {
		return 0, false
	}
	return idx, true
}

// Clone returns a deep copy so callers can modify samples freely
func (ts TimeSeries) Clone() TimeSeries {
	out := ts
	out.Samples = make([]Sample, len(ts.Samples))
	copy(out.Samples, ts.Samples)
	return out
}

// Slice returns the samples with from <= t < to as a new series
func (ts TimeSeries) Slice(from, to time.Time) TimeSeries {
	out := TimeSeries{Variable: ts.Variable, Start: from, End: to}
	for _, s := range ts.Samples {
		if !s.Time.Before(from) && s.Time.Before(to) {
			out.Samples = append(out.Samples, s)
		}
	}
	if len(out.Samples) > 0 {
		out.Start = out.Samples[0].Time
	}
	return out
}

// Count returns the number of samples with quality q
func (ts TimeSeries) Count(q Quality) int {
	n := 0
	for _, s := range ts.Samples {
		if s.Quality == q {
			n++
		}
	}
	return n
}

// HasUsable reports whether any sample is valid or filled
func (ts TimeSeries) HasUsable() bool {
	for _, s := range ts.Samples {
		if s.Quality.Usable() {
			return true
		}
	}
	return false
}

// Gap is a maximal run of missing or flagged samples
type Gap struct {
	Variable   string
	Start      time.Time
	End        time.Time
	StartIndex int
	EndIndex   int

	// Duration is the number of samples in the gap times the interval
	Duration time.Duration

	// Truncated is set when the gap touches either edge of the series
	Truncated bool
}

// Len returns the number of samples in the gap
func (g Gap) Len() int {
	return g.EndIndex - g.StartIndex + 1
}
