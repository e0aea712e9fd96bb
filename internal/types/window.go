package types

import "time"

// Mode selects how much history a run reprocesses
type Mode string

const (
	// ModeFull reprocesses the configured campaign period
	ModeFull Mode = "full"

	// ModeOnline reprocesses the trailing traceback window ending today
	ModeOnline Mode = "online"
)

// DefaultTracebackDays is the online window length when none is configured
const DefaultTracebackDays = 3

// ProcessingWindow is the [Start, End) range of local calendar days handled by
// one run. Start and End are local midnights in the run's canonical location.
type ProcessingWindow struct {
	Mode          Mode
	Start         time.Time
	End           time.Time
	TracebackDays int
}

// Days returns the local midnight of every day in the window
func (w ProcessingWindow) Days() []time.Time {
	var days []time.Time
	for d := w.Start; d.Before(w.End); d = NextDay(d) {
		days = append(days, d)
	}
	return days
}

// Range returns the window as a TimeRange
func (w ProcessingWindow) Range() TimeRange {
	return TimeRange{Start: w.Start, End: w.End}
}

// Midnight truncates t to the start of its local calendar day
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// NextDay returns the local midnight following midnight d. Calendar
// arithmetic keeps this correct across DST transitions.
func NextDay(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day+1, 0, 0, 0, 0, d.Location())
}

// DailySegment is the part of an aligned dataset that falls on one local
// calendar day [00:00, 24:00)
type DailySegment struct {
	Date   time.Time
	Start  time.Time
	End    time.Time
	Series []TimeSeries
}

// Key returns the segment's date as YYYYMMDD, used to name outputs
func (s DailySegment) Key() string {
	return s.Date.Format("20060102")
}

// Timestamps returns the shared grid timestamps of the segment
func (s DailySegment) Timestamps() []time.Time {
	if len(s.Series) == 0 {
		return nil
	}
	out := make([]time.Time, len(s.Series[0].Samples))
	for i, smp := range s.Series[0].Samples {
		out[i] = smp.Time
	}
	return out
}

// Dataset is a set of series sharing one timestamp grid
type Dataset struct {
	Start    time.Time
	End      time.Time
	Interval time.Duration
	Series   []TimeSeries
}

// Timestamps returns the shared grid of the dataset
func (d Dataset) Timestamps() []time.Time {
	n := GridLen(d.Start, d.End, d.Interval)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = d.Start.Add(time.Duration(i) * d.Interval)
	}
	return out
}

// Column returns the series for the named variable
func (d Dataset) Column(name string) (TimeSeries, bool) {
	for _, s := range d.Series {
		if s.Variable.Name == name {
			return s, true
		}
	}
	return TimeSeries{}, false
}
