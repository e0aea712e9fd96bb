// Package segment selects the processing window for a run and cuts an
// aligned dataset into local calendar days.
package segment

import (
	"fmt"
	"time"

	"github.com/chrissnell/fluxprep/internal/types"
)

// WindowRequest carries everything needed to select a processing window
type WindowRequest struct {
	Mode          types.Mode
	Now           time.Time
	TracebackDays int

	// From and To bound a full run; To defaults to the start of today
	From time.Time
	To   time.Time

	Location *time.Location
}

// NewWindow resolves the processing window for a run. Online windows end at
// the local midnight of Now and reach back TracebackDays whole days. Full
// windows span the local days from From up to, but excluding, the day of To.
func NewWindow(req WindowRequest) (types.ProcessingWindow, error) {
	loc := req.Location
	if loc == nil {
		loc = time.UTC
	}

	switch req.Mode {
	case types.ModeOnline:
		days := req.TracebackDays
		if days <= 0 {
			days = types.DefaultTracebackDays
		}
		end := types.Midnight(req.Now.In(loc))
		y, m, d := end.Date()
		return types.ProcessingWindow{
			Mode:          types.ModeOnline,
			Start:         time.Date(y, m, d-days, 0, 0, 0, 0, loc),
			End:           end,
			TracebackDays: days,
		}, nil

	case types.ModeFull, "":
		if req.From.IsZero() {
			return types.ProcessingWindow{}, fmt.Errorf("full mode requires a start date")
		}
		start := types.Midnight(req.From.In(loc))
		to := req.To
		if to.IsZero() {
			to = req.Now
		}
		end := types.Midnight(to.In(loc))
		if !end.After(start) {
			return types.ProcessingWindow{}, fmt.Errorf("empty processing window [%s, %s)", start.Format(time.DateOnly), end.Format(time.DateOnly))
		}
		return types.ProcessingWindow{Mode: types.ModeFull, Start: start, End: end}, nil

	default:
		return types.ProcessingWindow{}, fmt.Errorf("unknown processing mode %q", req.Mode)
	}
}

// Split partitions ds into one DailySegment per local day of w. Every grid
// timestamp of ds inside the window lands in exactly one segment.
func Split(ds types.Dataset, w types.ProcessingWindow) ([]types.DailySegment, error) {
	if ds.Start.After(w.Start) || ds.End.Before(w.End) {
		return nil, fmt.Errorf("dataset [%s, %s) does not cover window [%s, %s)",
			ds.Start.Format(time.RFC3339), ds.End.Format(time.RFC3339),
			w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}

	days := w.Days()
	segments := make([]types.DailySegment, 0, len(days))
	for _, day := range days {
		next := types.NextDay(day)
		seg := types.DailySegment{
			Date:   day,
			Start:  day,
			End:    next,
			Series: make([]types.TimeSeries, 0, len(ds.Series)),
		}
		for _, ts := range ds.Series {
			part := ts.Slice(day, next)
			part.Start = day
			part.End = next
			seg.Series = append(seg.Series, part)
		}
		segments = append(segments, seg)
	}
	return segments, nil
}
