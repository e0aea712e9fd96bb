package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chrissnell/fluxprep/internal/types"
)

const sampleYAML = `
site:
  name: Hyytiala
  latitude: 61.845
  longitude: 24.289
  altitude: 181
  timezone: Etc/GMT-2
run:
  mode: full
  start: "2016-05-20"
  end: "2016-09-01"
sources:
  smear:
    table: HYY_META
    sum_fields: [Precip]
  flow:
    dir: /data/flow
variables:
  - name: T_atm_17m
    source: smear
    field: T168
    interval: 30m
    min: -40
    max: 40
    spike_threshold: 5
    max_gap: 2h
    fill_method: linear
    precision: 2
    masks:
      - start: "2016-06-10 08:00"
        end: "2016-06-10 12:00"
  - name: Q_PAR
    source: smear
    field: PAR
    interval: 30m
    min: 0
    max: 2500
    fill_method: none
    night_max: 5
  - name: broken
    source: smear
    interval: soon
    min: 0
    max: 1
    fill_method: linear
storage:
  csv:
    dir: /data/out
    prefix: hyy
`

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestYAMLLoadAndBuild(t *testing.T) {
	cfg, err := Load(NewYAMLProvider(writeYAML(t, sampleYAML)))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Run.TracebackDays != types.DefaultTracebackDays || cfg.Run.Workers != DefaultWorkers {
		t.Errorf("defaults not applied: %+v", cfg.Run)
	}

	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location failed: %v", err)
	}
	vars, bad := cfg.BuildVariables(loc)
	if len(vars) != 2 {
		t.Fatalf("expected 2 usable variables, got %d", len(vars))
	}
	if len(bad) != 1 || bad[0].Variable != "broken" {
		t.Fatalf("expected a configuration error for broken, got %v", bad)
	}

	temp := vars[0]
	if temp.Interval != 30*time.Minute || temp.MaxGap != 2*time.Hour {
		t.Errorf("unexpected durations %v %v", temp.Interval, temp.MaxGap)
	}
	if temp.Precision != 2 || temp.Kind != types.KindInstrument {
		t.Errorf("unexpected precision %d kind %s", temp.Precision, temp.Kind)
	}
	if len(temp.Masks) != 1 {
		t.Fatalf("expected one mask, got %d", len(temp.Masks))
	}
	if want := time.Date(2016, 6, 10, 6, 0, 0, 0, time.UTC); !temp.Masks[0].Start.Equal(want) {
		t.Errorf("expected mask start %v, got %v", want, temp.Masks[0].Start.UTC())
	}

	par := vars[1]
	if par.Precision != DefaultPrecision || par.NightMax == nil || *par.NightMax != 5 {
		t.Errorf("unexpected PAR variable %+v", par)
	}

	from, to, err := cfg.Window(loc)
	if err != nil {
		t.Fatalf("Window failed: %v", err)
	}
	if from.Month() != time.May || to.Month() != time.September {
		t.Errorf("unexpected window %v - %v", from, to)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(c *ConfigData)
	}{
		{"no storage", func(c *ConfigData) { c.Storage = StorageData{} }},
		{"bad timezone", func(c *ConfigData) { c.Site.Timezone = "Mars/Olympus" }},
		{"bad mode", func(c *ConfigData) { c.Run.Mode = "weekly" }},
		{"full without start", func(c *ConfigData) { c.Run.Start = "" }},
		{"duplicate variable", func(c *ConfigData) { c.Variables = append(c.Variables, c.Variables[0]) }},
		{"bad latitude", func(c *ConfigData) { c.Site.Latitude = 95 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewYAMLProvider(writeYAML(t, sampleYAML)).LoadConfig()
			if err != nil {
				t.Fatalf("LoadConfig failed: %v", err)
			}
			tt.edit(cfg)
			cfg.ApplyDefaults()
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestUnknownYAMLField(t *testing.T) {
	_, err := NewYAMLProvider(writeYAML(t, sampleYAML+"extra: true\n")).LoadConfig()
	if err == nil {
		t.Error("expected strict parsing to reject unknown fields")
	}
}

func TestBuildVariableErrors(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	tests := []struct {
		name string
		vd   VariableData
	}{
		{"missing range", VariableData{Name: "a", Source: "s", Interval: "30m", FillMethod: "linear"}},
		{"inverted range", VariableData{Name: "a", Source: "s", Interval: "30m", Min: f(5), Max: f(1), FillMethod: "linear"}},
		{"unknown fill", VariableData{Name: "a", Source: "s", Interval: "30m", Min: f(0), Max: f(1), FillMethod: "spline"}},
		{"negative gap", VariableData{Name: "a", Source: "s", Interval: "30m", Min: f(0), Max: f(1), FillMethod: "linear", MaxGap: "-1h"}},
		{"empty mask", VariableData{Name: "a", Source: "s", Interval: "30m", Min: f(0), Max: f(1), FillMethod: "linear",
			Masks: []MaskData{{Start: "2016-06-01", End: "2016-06-01"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &ConfigData{Variables: []VariableData{tt.vd}}
			vars, bad := cfg.BuildVariables(time.UTC)
			if len(vars) != 0 || len(bad) != 1 {
				t.Fatalf("expected one configuration error, got %d vars %d errors", len(vars), len(bad))
			}
			var cfgErr *types.ConfigurationError
			if !errors.As(bad[0], &cfgErr) {
				t.Errorf("expected ConfigurationError, got %T", bad[0])
			}
		})
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	source, err := NewYAMLProvider(writeYAML(t, sampleYAML)).LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	source.Status = &StatusData{Port: 8090}

	p, err := NewSQLiteProvider(filepath.Join(t.TempDir(), "config.db"))
	if err != nil {
		t.Fatalf("NewSQLiteProvider failed: %v", err)
	}
	defer p.Close()

	if _, err := p.LoadConfig(); err == nil {
		t.Error("expected an error loading an empty database")
	}
	if err := p.SaveConfig(source); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	// saving twice replaces rather than duplicates
	if err := p.SaveConfig(source); err != nil {
		t.Fatalf("second SaveConfig failed: %v", err)
	}

	got, err := p.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got.Site.Timezone != "Etc/GMT-2" || got.Run.Start != "2016-05-20" {
		t.Errorf("site/run not restored: %+v %+v", got.Site, got.Run)
	}
	if got.Sources.SMEAR == nil || len(got.Sources.SMEAR.SumFields) != 1 {
		t.Errorf("sources not restored: %+v", got.Sources)
	}
	if got.Status == nil || got.Status.Port != 8090 {
		t.Errorf("status not restored: %+v", got.Status)
	}
	if got.Storage.CSV == nil || got.Storage.CSV.Prefix != "hyy" {
		t.Errorf("storage not restored: %+v", got.Storage)
	}
	if len(got.Variables) != 3 {
		t.Fatalf("expected 3 variables, got %d", len(got.Variables))
	}
	temp := got.Variables[0]
	if temp.Name != "T_atm_17m" || *temp.Min != -40 || *temp.Precision != 2 || len(temp.Masks) != 1 {
		t.Errorf("variable not restored: %+v", temp)
	}
	if got.Variables[1].NightMax == nil || got.Variables[1].Precision != nil {
		t.Errorf("optional fields not restored: %+v", got.Variables[1])
	}

	f := func(v float64) *float64 { return &v }
	if err := p.AddVariable(&VariableData{Name: "RH", Source: "smear", Interval: "30m", Min: f(0), Max: f(100), FillMethod: "linear"}); err != nil {
		t.Fatalf("AddVariable failed: %v", err)
	}
	if err := p.DeleteVariable("broken"); err != nil {
		t.Fatalf("DeleteVariable failed: %v", err)
	}
	if err := p.DeleteVariable("broken"); err == nil {
		t.Error("expected deleting a missing variable to fail")
	}

	vars, err := p.GetVariables()
	if err != nil {
		t.Fatalf("GetVariables failed: %v", err)
	}
	if len(vars) != 3 || vars[2].Name != "RH" {
		t.Errorf("unexpected variables after edit: %+v", vars)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvSMEARURL, "http://localhost:9999/smeardata.jsp")
	t.Setenv(EnvSilent, "true")
	t.Setenv(EnvTraceback, "5")

	cfg := &ConfigData{}
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}
	if cfg.Sources.SMEAR == nil || cfg.Sources.SMEAR.URL != "http://localhost:9999/smeardata.jsp" {
		t.Errorf("SMEAR URL not overridden: %+v", cfg.Sources.SMEAR)
	}
	if !cfg.Run.Silent || cfg.Run.TracebackDays != 5 {
		t.Errorf("run not overridden: %+v", cfg.Run)
	}

	t.Setenv(EnvSilent, "maybe")
	if err := cfg.ApplyEnv(); err == nil {
		t.Error("expected an error for an invalid boolean")
	}
}
