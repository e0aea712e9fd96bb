package pipeline

import (
	"time"

	"github.com/chrissnell/fluxprep/internal/storage"
	"github.com/chrissnell/fluxprep/internal/types"
	"github.com/montanaflynn/stats"
)

// Failure stages
const (
	StageConfig      = "configuration"
	StageAcquisition = "acquisition"
)

// Variable statuses
const (
	StatusOK                = "ok"
	StatusAcquisitionFailed = "acquisition_failed"
)

// Report describes one run
type Report struct {
	RunID      string           `json:"run_id"`
	Mode       types.Mode       `json:"mode"`
	Start      time.Time        `json:"window_start"`
	End        time.Time        `json:"window_end"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Days       []DaySummary     `json:"days"`
	Variables  []VariableReport `json:"variables"`
	Failures   []Failure        `json:"failures,omitempty"`
}

// Failure is a variable that was skipped or could not be acquired
type Failure struct {
	Variable string `json:"variable"`
	Stage    string `json:"stage"`
	Error    string `json:"error"`
}

// VariableReport is what the per-variable stages did over the padded range
type VariableReport struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Raw     int    `json:"raw"`
	Gaps    int    `json:"gaps"`
	Filled  int    `json:"filled"`
	Flagged int    `json:"flagged"`
	Missing int    `json:"missing,omitempty"`
}

// DaySummary counts the samples of one daily segment. Counts are over every
// (timestamp, variable) cell; a gap is a run of samples that are neither
// valid nor filled within one variable.
type DaySummary struct {
	Date         string          `json:"date"`
	SampleCount  int             `json:"sample_count"`
	GapCount     int             `json:"gap_count"`
	FilledCount  int             `json:"filled_count"`
	FlaggedCount int             `json:"flagged_count"`
	MissingCount int             `json:"missing_count"`
	Variables    []VariableStats `json:"variables,omitempty"`
}

// VariableStats describes the usable values of one variable on one day.
// Mean, Min and Max are nil when the day has no usable value.
type VariableStats struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Mean  *float64 `json:"mean,omitempty"`
	Min   *float64 `json:"min,omitempty"`
	Max   *float64 `json:"max,omitempty"`
}

// Summarize builds the summary of a segment
func Summarize(seg types.DailySegment) DaySummary {
	d := DaySummary{Date: seg.Date.Format("2006-01-02")}
	for _, ts := range seg.Series {
		inGap := false
		values := make(stats.Float64Data, 0, len(ts.Samples))
		for _, s := range ts.Samples {
			d.SampleCount++
			switch s.Quality {
			case types.QualityFilled:
				d.FilledCount++
			case types.QualityFlagged:
				d.FlaggedCount++
			case types.QualityMissing:
				d.MissingCount++
			}
			if s.Quality.Usable() {
				values = append(values, s.Value)
				inGap = false
				continue
			}
			if !inGap {
				d.GapCount++
				inGap = true
			}
		}
		d.Variables = append(d.Variables, describe(ts.Variable.Name, values))
	}
	return d
}

func describe(name string, values stats.Float64Data) VariableStats {
	vs := VariableStats{Name: name, Count: values.Len()}
	if values.Len() == 0 {
		return vs
	}
	if mean, err := stats.Mean(values); err == nil {
		vs.Mean = &mean
	}
	if lo, err := stats.Min(values); err == nil {
		vs.Min = &lo
	}
	if hi, err := stats.Max(values); err == nil {
		vs.Max = &hi
	}
	return vs
}

// Record converts the report into a run history entry. runErr is the error
// Run returned, if any.
func (rep *Report) Record(runErr error) storage.RunRecord {
	rec := storage.RunRecord{
		ID:         rep.RunID,
		Mode:       string(rep.Mode),
		Start:      rep.Start,
		End:        rep.End,
		StartedAt:  rep.StartedAt,
		FinishedAt: rep.FinishedAt,
		Days:       len(rep.Days),
		Failures:   len(rep.Failures),
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	return rec
}
