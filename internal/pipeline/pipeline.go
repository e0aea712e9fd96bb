// Package pipeline runs the per-variable filtering and gap filling stages,
// aligns the results and hands daily segments to the output sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chrissnell/fluxprep/internal/align"
	"github.com/chrissnell/fluxprep/internal/gapfill"
	"github.com/chrissnell/fluxprep/internal/leafarea"
	"github.com/chrissnell/fluxprep/internal/qc"
	"github.com/chrissnell/fluxprep/internal/segment"
	"github.com/chrissnell/fluxprep/internal/solar"
	"github.com/chrissnell/fluxprep/internal/sources"
	"github.com/chrissnell/fluxprep/internal/storage"
	"github.com/chrissnell/fluxprep/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultLeafAreaLookaround is how far outside the window manual leaf area
// observations are searched when the variable sets no MaxGap
const DefaultLeafAreaLookaround = 60 * 24 * time.Hour

// Fetcher delivers raw observations for a variable
type Fetcher interface {
	Fetch(ctx context.Context, v types.Variable, from, to time.Time) ([]types.Observation, error)
}

// BatchFetcher is a Fetcher that can fetch many variables of one source up
// front, such as sources.Registry
type BatchFetcher interface {
	Fetcher
	Prefetch(ctx context.Context, reqs []sources.Request) *sources.Prefetched
}

// Config is the immutable run configuration
type Config struct {
	Variables []types.Variable

	// Skipped lists variables rejected while building the configuration
	Skipped []*types.ConfigurationError

	Location       *time.Location
	Site           *solar.Site
	CommonInterval time.Duration
	Workers        int
	Silent         bool

	// PerVariable fetches every variable with its own request instead of
	// batching the variables of a source
	PerVariable bool
}

// Runner executes pipeline runs
type Runner struct {
	cfg     Config
	fetcher Fetcher
	sink    storage.Sink
	logger  *zap.SugaredLogger
}

// NewRunner creates a Runner
func NewRunner(cfg Config, fetcher Fetcher, sink storage.Sink, logger *zap.SugaredLogger) *Runner {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Runner{cfg: cfg, fetcher: fetcher, sink: sink, logger: logger}
}

// result is the outcome of the per-variable stages
type result struct {
	series  types.TimeSeries
	report  VariableReport
	skipped bool
	failure *Failure
}

// Run processes window w. Per-variable failures are recorded in the report
// and never abort the run. The sink only sees segments once every segment
// was built; a returned error means nothing was written.
func (r *Runner) Run(ctx context.Context, w types.ProcessingWindow) (*Report, error) {
	rep := &Report{
		RunID:     uuid.New().String(),
		Mode:      w.Mode,
		Start:     w.Start,
		End:       w.End,
		StartedAt: time.Now(),
	}
	for _, ce := range r.cfg.Skipped {
		rep.Failures = append(rep.Failures, Failure{Variable: ce.Variable, Stage: StageConfig, Error: ce.Error()})
	}

	r.logger.Infow("starting run",
		"run_id", rep.RunID,
		"mode", w.Mode,
		"window_start", w.Start,
		"window_end", w.End,
		"variables", len(r.cfg.Variables),
	)

	fetcher := r.fetcherFor(ctx, w)

	results := make([]result, len(r.cfg.Variables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, v := range r.cfg.Variables {
		i, v := i, v
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.processVariable(gctx, fetcher, v, w)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rep, err
	}
	if err := ctx.Err(); err != nil {
		return rep, err
	}

	var series []types.TimeSeries
	for _, res := range results {
		if res.failure != nil {
			rep.Failures = append(rep.Failures, *res.failure)
			r.logger.Warnw("variable failed", "run_id", rep.RunID, "variable", res.failure.Variable,
				"stage", res.failure.Stage, "error", res.failure.Error)
		}
		if res.skipped {
			continue
		}
		rep.Variables = append(rep.Variables, res.report)
		series = append(series, res.series)
	}
	if len(series) == 0 {
		return rep, fmt.Errorf("run %s: %w", rep.RunID, types.ErrNoUsableData)
	}

	ds, err := align.Align(series, align.Options{Start: w.Start, End: w.End, Interval: r.cfg.CommonInterval})
	if err != nil {
		return rep, fmt.Errorf("aligning run %s: %w", rep.RunID, err)
	}

	segs, err := segment.Split(ds, w)
	if err != nil {
		return rep, fmt.Errorf("segmenting run %s: %w", rep.RunID, err)
	}

	for _, seg := range segs {
		rep.Days = append(rep.Days, Summarize(seg))
	}

	for _, seg := range segs {
		if err := r.sink.WriteSegment(ctx, seg); err != nil {
			return rep, fmt.Errorf("writing %s: %w", seg.Key(), err)
		}
	}

	rep.FinishedAt = time.Now()
	if !r.cfg.Silent {
		r.logReport(rep)
	}
	return rep, nil
}

// fetcherFor batches the run's requests when the fetcher supports it
func (r *Runner) fetcherFor(ctx context.Context, w types.ProcessingWindow) Fetcher {
	b, ok := r.fetcher.(BatchFetcher)
	if !ok || r.cfg.PerVariable {
		return r.fetcher
	}
	reqs := make([]sources.Request, 0, len(r.cfg.Variables))
	for _, v := range r.cfg.Variables {
		from, to := paddedRange(v, w, r.cfg.Location)
		reqs = append(reqs, sources.Request{Variable: v, From: from, To: to})
	}
	return b.Prefetch(ctx, reqs)
}

func (r *Runner) processVariable(ctx context.Context, fetcher Fetcher, v types.Variable, w types.ProcessingWindow) result {
	res := result{report: VariableReport{Name: v.Name, Status: StatusOK}}
	from, to := paddedRange(v, w, r.cfg.Location)

	obs, err := fetcher.Fetch(ctx, v, from, to)
	if err != nil {
		var acqErr *types.AcquisitionError
		if !errors.As(err, &acqErr) {
			acqErr = &types.AcquisitionError{Variable: v.Name, Err: err}
		}
		res.failure = &Failure{Variable: v.Name, Stage: StageAcquisition, Error: acqErr.Error()}
		res.report.Status = StatusAcquisitionFailed
		res.series = unavailable(v, from, to)
		res.report.Missing = res.series.Len()
		return res
	}

	var ts types.TimeSeries
	if v.Kind == types.KindLeafArea {
		ts, err = leafarea.Interpolate(v, from, to, obs)
	} else {
		ts = types.FromObservations(v, from, to, obs)
	}
	if err != nil {
		return skip(res, v, err)
	}

	ts = qc.Filter(ts, qc.Options{Location: r.cfg.Location, Site: r.cfg.Site})
	res.report.Raw = ts.Count(types.QualityValid)

	if v.Kind != types.KindLeafArea {
		filled, gaps, st, err := gapfill.DetectAndFill(ts)
		if err != nil {
			return skip(res, v, err)
		}
		ts = filled
		res.report.Gaps = len(gaps)
		res.report.Filled = st.Filled
		res.report.Flagged = st.Flagged
	} else {
		res.report.Filled = ts.Count(types.QualityFilled)
		res.report.Flagged = ts.Count(types.QualityFlagged)
	}

	r.logger.Debugw("variable processed",
		"variable", v.Name,
		"observations", len(obs),
		"gaps", res.report.Gaps,
		"filled", res.report.Filled,
		"flagged", res.report.Flagged,
	)
	res.series = ts
	return res
}

func skip(res result, v types.Variable, err error) result {
	var cfgErr *types.ConfigurationError
	if !errors.As(err, &cfgErr) {
		cfgErr = &types.ConfigurationError{Variable: v.Name, Reason: err.Error()}
	}
	res.skipped = true
	res.failure = &Failure{Variable: v.Name, Stage: StageConfig, Error: cfgErr.Error()}
	return res
}

// paddedRange widens the window so gaps straddling its edges are filled from
// samples outside it. The padding is a whole number of intervals so the
// variable's grid stays anchored at the window start. Variables with an IQR
// filter are widened further to whole local days, since their quartiles are
// computed per day and a partial day would give other bounds than a full run.
func paddedRange(v types.Variable, w types.ProcessingWindow, loc *time.Location) (time.Time, time.Time) {
	reach := v.MaxGap + v.Interval
	if v.Kind == types.KindLeafArea && v.MaxGap == 0 {
		reach = DefaultLeafAreaLookaround
	}
	pad := gridSpan(reach, v.Interval)
	from, to := w.Start.Add(-pad), w.End.Add(pad)
	if v.IQR == nil {
		return from, to
	}

	dayStart := types.Midnight(from.In(loc))
	dayEnd := types.Midnight(to.In(loc))
	if !dayEnd.Equal(to) {
		dayEnd = types.NextDay(dayEnd)
	}
	return w.Start.Add(-gridSpan(w.Start.Sub(dayStart), v.Interval)),
		w.End.Add(gridSpan(dayEnd.Sub(w.End), v.Interval))
}

// gridSpan rounds d up to a whole number of intervals
func gridSpan(d, interval time.Duration) time.Duration {
	steps := int64(math.Ceil(float64(d) / float64(interval)))
	return time.Duration(steps) * interval
}

// unavailable is the series of a variable whose data could not be acquired.
// Every sample is missing.
func unavailable(v types.Variable, from, to time.Time) types.TimeSeries {
	return types.NewTimeSeries(v, from, to)
}

func (r *Runner) logReport(rep *Report) {
	for _, d := range rep.Days {
		r.logger.Infow("daily summary",
			"run_id", rep.RunID,
			"date", d.Date,
			"sample_count", d.SampleCount,
			"gap_count", d.GapCount,
			"filled_count", d.FilledCount,
			"flagged_count", d.FlaggedCount,
		)
		for _, vs := range d.Variables {
			r.logger.Debugw("variable summary", "date", d.Date, "variable", vs.Name,
				"count", vs.Count, "mean", vs.Mean, "min", vs.Min, "max", vs.Max)
		}
	}
	r.logger.Infow("run finished",
		"run_id", rep.RunID,
		"days", len(rep.Days),
		"failures", len(rep.Failures),
		"duration", rep.FinishedAt.Sub(rep.StartedAt),
	)
}
