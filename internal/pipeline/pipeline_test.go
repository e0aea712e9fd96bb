package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/chrissnell/fluxprep/internal/segment"
	"github.com/chrissnell/fluxprep/internal/sources"
	"github.com/chrissnell/fluxprep/internal/storage"
	"github.com/chrissnell/fluxprep/internal/storage/csvfile"
	"github.com/chrissnell/fluxprep/internal/types"
	"go.uber.org/zap"
)

var now = time.Date(2016, 7, 4, 10, 0, 0, 0, time.UTC)

func temperature() types.Variable {
	return types.Variable{
		Name:       "T_atm",
		Source:     "smear",
		Field:      "T168",
		Interval:   30 * time.Minute,
		Min:        -40,
		Max:        40,
		MaxGap:     2 * time.Hour,
		FillMethod: types.FillLinear,
		Precision:  2,
	}
}

// observations returns a half-hourly diurnal series over [from, to), leaving
// out the timestamps listed in skip
func observations(from, to time.Time, skip ...time.Time) []types.Observation {
	var obs []types.Observation
	for t := from; t.Before(to); t = t.Add(30 * time.Minute) {
		missing := false
		for _, s := range skip {
			if t.Equal(s) {
				missing = true
			}
		}
		if !missing {
			obs = append(obs, types.Observation{Time: t, Value: 10 + float64(t.Hour())/2})
		}
	}
	return obs
}

func registry(smear sources.Static, manual sources.Static) *sources.Registry {
	r := sources.NewRegistry()
	r.Register("smear", smear)
	if manual != nil {
		r.Register("manual", manual)
	}
	return r
}

func onlineWindow(t *testing.T) types.ProcessingWindow {
	t.Helper()
	w, err := segment.NewWindow(segment.WindowRequest{Mode: types.ModeOnline, Now: now, TracebackDays: 3, Location: time.UTC})
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func csvSink(t *testing.T, dir string) *csvfile.Storage {
	t.Helper()
	s, err := csvfile.New(csvfile.Config{Dir: dir, Prefix: "hyy"}, zap.NewNop().Sugar())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func run(t *testing.T, vars []types.Variable, f Fetcher, sink storage.Sink, w types.ProcessingWindow) (*Report, error) {
	t.Helper()
	r := NewRunner(Config{Variables: vars, Location: time.UTC, Workers: 2, Silent: true}, f, sink, zap.NewNop().Sugar())
	return r.Run(context.Background(), w)
}

func readFiles(t *testing.T, s *csvfile.Storage, keys ...string) map[string][]byte {
	t.Helper()
	out := make(map[string][]byte)
	for _, k := range keys {
		b, err := os.ReadFile(s.Path(k))
		if err != nil {
			t.Fatalf("reading %s: %v", k, err)
		}
		out[k] = b
	}
	return out
}

var days = []string{"20160701", "20160702", "20160703"}

func TestRunIsIdempotent(t *testing.T) {
	from := time.Date(2016, 6, 25, 0, 0, 0, 0, time.UTC)
	// a gap straddling the window start and one inside the window
	obs := observations(from, now,
		time.Date(2016, 6, 30, 23, 30, 0, 0, time.UTC),
		time.Date(2016, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2016, 7, 2, 6, 0, 0, 0, time.UTC),
	)
	f := registry(sources.Static{"T168": obs}, nil)
	sink := csvSink(t, t.TempDir())
	w := onlineWindow(t)

	rep, err := run(t, []types.Variable{temperature()}, f, sink, w)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(rep.Days) != 3 || rep.RunID == "" {
		t.Fatalf("unexpected report %+v", rep)
	}
	for _, d := range rep.Days {
		if d.SampleCount != 48 {
			t.Errorf("%s: expected 48 samples, got %d", d.Date, d.SampleCount)
		}
	}
	if rep.Days[0].FilledCount != 1 || rep.Days[1].FilledCount != 1 {
		t.Errorf("expected one filled sample on each of the first two days, got %d and %d",
			rep.Days[0].FilledCount, rep.Days[1].FilledCount)
	}
	first := readFiles(t, sink, days...)

	if _, err := run(t, []types.Variable{temperature()}, f, sink, w); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	second := readFiles(t, sink, days...)
	for _, k := range days {
		if !bytes.Equal(first[k], second[k]) {
			t.Errorf("%s changed between identical runs", k)
		}
	}
}

func TestBoundaryContinuity(t *testing.T) {
	from := time.Date(2016, 6, 25, 0, 0, 0, 0, time.UTC)
	lastEvening := time.Date(2016, 6, 30, 23, 30, 0, 0, time.UTC)
	firstMidnight := time.Date(2016, 7, 1, 0, 0, 0, 0, time.UTC)

	withIQR := temperature()
	withIQR.IQR = &types.IQRBounds{LowerK: 2, UpperK: 5}

	// a warm reading just before the window: an outlier among the last
	// evening samples, unremarkable over the whole day
	warm := observations(from, now, firstMidnight)
	for i := range warm {
		if warm[i].Time.Equal(lastEvening) {
			warm[i].Value = 35
		}
	}

	tests := []struct {
		name string
		v    types.Variable
		obs  []types.Observation
	}{
		{
			name: "gap straddling the window start",
			v:    temperature(),
			obs:  observations(from, now, lastEvening, firstMidnight),
		},
		{
			name: "per-day IQR before the window start",
			v:    withIQR,
			obs:  warm,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := registry(sources.Static{"T168": tt.obs}, nil)

			online := csvSink(t, t.TempDir())
			if _, err := run(t, []types.Variable{tt.v}, f, online, onlineWindow(t)); err != nil {
				t.Fatalf("online Run failed: %v", err)
			}

			full := csvSink(t, t.TempDir())
			fw, err := segment.NewWindow(segment.WindowRequest{
				Mode:     types.ModeFull,
				From:     time.Date(2016, 6, 28, 0, 0, 0, 0, time.UTC),
				To:       now,
				Location: time.UTC,
			})
			if err != nil {
				t.Fatal(err)
			}
			if _, err := run(t, []types.Variable{tt.v}, f, full, fw); err != nil {
				t.Fatalf("full Run failed: %v", err)
			}

			a := readFiles(t, online, "20160701")
			b := readFiles(t, full, "20160701")
			if !bytes.Equal(a["20160701"], b["20160701"]) {
				t.Errorf("online and full runs disagree on the first window day:\n%s\n---\n%s", a["20160701"], b["20160701"])
			}
		})
	}
}

func TestPaddedRange(t *testing.T) {
	w := types.ProcessingWindow{
		Mode:  types.ModeOnline,
		Start: time.Date(2016, 7, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2016, 7, 4, 0, 0, 0, 0, time.UTC),
	}
	withIQR := temperature()
	withIQR.IQR = &types.IQRBounds{LowerK: 2, UpperK: 5}
	sevenHourly := temperature()
	sevenHourly.Interval = 7 * time.Hour
	sevenHourly.MaxGap = 0
	sevenHourly.IQR = &types.IQRBounds{LowerK: 2, UpperK: 5}

	tests := []struct {
		name     string
		v        types.Variable
		wantFrom time.Time
		wantTo   time.Time
	}{
		{
			name:     "max gap plus one interval",
			v:        temperature(),
			wantFrom: time.Date(2016, 6, 30, 21, 30, 0, 0, time.UTC),
			wantTo:   time.Date(2016, 7, 4, 2, 30, 0, 0, time.UTC),
		},
		{
			name:     "whole days for the IQR filter",
			v:        withIQR,
			wantFrom: time.Date(2016, 6, 30, 0, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2016, 7, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "whole days rounded out to the grid",
			v:        sevenHourly,
			wantFrom: time.Date(2016, 6, 29, 20, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2016, 7, 5, 4, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to := paddedRange(tt.v, w, time.UTC)
			if !from.Equal(tt.wantFrom) || !to.Equal(tt.wantTo) {
				t.Errorf("expected [%v, %v), got [%v, %v)", tt.wantFrom, tt.wantTo, from, to)
			}
		})
	}
}

func TestChangeIsolation(t *testing.T) {
	from := time.Date(2016, 6, 25, 0, 0, 0, 0, time.UTC)
	obs := observations(from, now)
	sink := csvSink(t, t.TempDir())
	w := onlineWindow(t)

	if _, err := run(t, []types.Variable{temperature()}, registry(sources.Static{"T168": obs}, nil), sink, w); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	before := readFiles(t, sink, days...)

	// correct one reading on D-2
	changed := make([]types.Observation, len(obs))
	copy(changed, obs)
	target := time.Date(2016, 7, 2, 12, 0, 0, 0, time.UTC)
	for i := range changed {
		if changed[i].Time.Equal(target) {
			changed[i].Value += 1.5
		}
	}

	if _, err := run(t, []types.Variable{temperature()}, registry(sources.Static{"T168": changed}, nil), sink, w); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	after := readFiles(t, sink, days...)

	for _, k := range days {
		same := bytes.Equal(before[k], after[k])
		if k == "20160702" && same {
			t.Errorf("%s should reflect the correction", k)
		}
		if k != "20160702" && !same {
			t.Errorf("%s changed although its data did not", k)
		}
	}
}

func TestFailureIsolation(t *testing.T) {
	from := time.Date(2016, 6, 25, 0, 0, 0, 0, time.UTC)
	f := registry(sources.Static{"T168": observations(from, now)}, nil)

	co2 := types.Variable{Name: "CO2", Source: "licor", Interval: 30 * time.Minute, Min: 300, Max: 700, FillMethod: types.FillLinear}
	bad := types.Variable{Name: "RH", Source: "smear", Field: "T168", Interval: 30 * time.Minute, Min: 0, Max: 100, FillMethod: "spline"}

	sink := csvSink(t, t.TempDir())
	rep, err := run(t, []types.Variable{temperature(), co2, bad}, f, sink, onlineWindow(t))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	stages := map[string]string{}
	for _, fl := range rep.Failures {
		stages[fl.Variable] = fl.Stage
	}
	if stages["CO2"] != StageAcquisition || stages["RH"] != StageConfig || len(stages) != 2 {
		t.Errorf("unexpected failures %+v", rep.Failures)
	}

	fh, err := os.Open(sink.Path("20160702"))
	if err != nil {
		t.Fatal(err)
	}
	defer fh.Close()
	records, err := csv.NewReader(fh).ReadAll()
	if err != nil {
		t.Fatal(err)
	}

	wantHeader := []string{"timestamp", "doy", "T_atm", "CO2", "T_atm_qc", "CO2_qc"}
	if len(records[0]) != len(wantHeader) {
		t.Fatalf("unexpected header %v", records[0])
	}
	for i, h := range wantHeader {
		if records[0][i] != h {
			t.Fatalf("unexpected header %v", records[0])
		}
	}
	if len(records) != 49 {
		t.Fatalf("expected 48 rows, got %d", len(records)-1)
	}
	for _, rec := range records[1:] {
		if rec[2] == "NaN" || rec[4] != "valid" {
			t.Fatalf("temperature affected by other failures: %v", rec)
		}
		if rec[3] != "NaN" || rec[5] != "missing" {
			t.Fatalf("expected unavailable CO2 to be missing: %v", rec)
		}
	}

	for _, d := range rep.Days {
		if d.MissingCount != 48 || d.FlaggedCount != 0 {
			t.Errorf("%s: expected the unavailable variable counted as missing, got missing=%d flagged=%d",
				d.Date, d.MissingCount, d.FlaggedCount)
		}
	}
	for _, vr := range rep.Variables {
		if vr.Name == "CO2" && (vr.Status != StatusAcquisitionFailed || vr.Missing == 0 || vr.Flagged != 0) {
			t.Errorf("unexpected CO2 report %+v", vr)
		}
	}
}

type countingSink struct{ writes int }

func (c *countingSink) Name() string { return "counting" }
func (c *countingSink) WriteSegment(context.Context, types.DailySegment) error {
	c.writes++
	return nil
}
func (c *countingSink) Close() error { return nil }

func TestNoUsableData(t *testing.T) {
	f := registry(sources.Static{}, nil)
	sink := &countingSink{}

	rep, err := run(t, []types.Variable{temperature()}, f, sink, onlineWindow(t))
	if !errors.Is(err, types.ErrNoUsableData) {
		t.Fatalf("expected ErrNoUsableData, got %v", err)
	}
	if sink.writes != 0 {
		t.Errorf("a failed run wrote %d segments", sink.writes)
	}
	if rec := rep.Record(err); rec.Error == "" || rec.Failures != 1 {
		t.Errorf("unexpected run record %+v", rec)
	}
}

func TestLeafAreaVariable(t *testing.T) {
	from := time.Date(2016, 6, 25, 0, 0, 0, 0, time.UTC)
	manual := sources.Static{"LC-XL": {
		{Time: time.Date(2016, 6, 20, 12, 0, 0, 0, time.UTC), Value: 0.010},
		{Time: time.Date(2016, 7, 20, 12, 0, 0, 0, time.UTC), Value: 0.025},
	}}
	la := types.Variable{
		Name:       "LA_XL",
		Source:     "manual",
		Field:      "LC-XL",
		Kind:       types.KindLeafArea,
		Interval:   30 * time.Minute,
		Min:        0,
		Max:        1,
		FillMethod: types.FillLinear,
		Precision:  5,
	}

	rep, err := run(t, []types.Variable{temperature(), la}, registry(sources.Static{"T168": observations(from, now)}, manual), &countingSink{}, onlineWindow(t))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(rep.Failures) != 0 {
		t.Fatalf("unexpected failures %+v", rep.Failures)
	}
	for _, d := range rep.Days {
		// 48 interpolated leaf area samples per day, temperature is all valid
		if d.FilledCount != 48 || d.GapCount != 0 {
			t.Errorf("%s: unexpected summary %+v", d.Date, d)
		}
		area := d.Variables[1]
		if area.Mean == nil || *area.Mean <= 0.010 || *area.Mean >= 0.025 {
			t.Errorf("%s: leaf area mean out of bounds: %+v", d.Date, area)
		}
	}
}

func TestSummarize(t *testing.T) {
	day := time.Date(2016, 7, 1, 0, 0, 0, 0, time.UTC)
	v := types.Variable{Name: "T", Interval: 6 * time.Hour}
	ts := types.NewTimeSeries(v, day, day.Add(24*time.Hour))
	qualities := []types.Quality{types.QualityValid, types.QualityFlagged, types.QualityValid, types.QualityMissing}
	for i, q := range qualities {
		ts.Samples[i].Quality = q
		ts.Samples[i].Value = float64(i)
	}

	d := Summarize(types.DailySegment{Date: day, Series: []types.TimeSeries{ts}})
	if d.Date != "2016-07-01" || d.SampleCount != 4 || d.GapCount != 2 || d.FlaggedCount != 1 || d.MissingCount != 1 {
		t.Errorf("unexpected summary %+v", d)
	}
	vs := d.Variables[0]
	if vs.Count != 2 || *vs.Mean != 1 || *vs.Min != 0 || *vs.Max != 2 {
		t.Errorf("unexpected stats %+v", vs)
	}
}
