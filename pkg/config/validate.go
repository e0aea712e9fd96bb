package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/chrissnell/fluxprep/internal/types"
	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"
)

var validate = validator.New()

const (
	DefaultWorkers   = 4
	DefaultPrecision = 6
	DefaultTimezone  = "UTC"
)

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ApplyDefaults fills unset run and site settings
func (c *ConfigData) ApplyDefaults() {
	if c.Run.Mode == "" {
		c.Run.Mode = string(types.ModeOnline)
	}
	if c.Run.TracebackDays == 0 {
		c.Run.TracebackDays = types.DefaultTracebackDays
	}
	if c.Run.Workers == 0 {
		c.Run.Workers = DefaultWorkers
	}
	if c.Site.Timezone == "" {
		c.Site.Timezone = DefaultTimezone
	}
	for i := range c.Variables {
		if c.Variables[i].Kind == "" {
			c.Variables[i].Kind = string(types.KindInstrument)
		}
	}
}

// Validate reports structural problems that make the whole configuration
// unusable. Per-variable problems are reported by BuildVariables instead so
// that a single bad variable does not stop a run.
func (c *ConfigData) Validate() error {
	var errs error

	for _, section := range []any{c.Site, c.Run, c.Sources, c.Storage} {
		if err := validate.Struct(section); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if c.Status != nil {
		errs = multierr.Append(errs, validate.Struct(c.Status))
	}
	if len(c.Variables) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("no variables configured"))
	}

	if _, err := c.Location(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if c.Run.Mode == string(types.ModeFull) && c.Run.Start == "" {
		errs = multierr.Append(errs, fmt.Errorf("run.start is required in full mode"))
	}
	if c.Run.CommonInterval != "" {
		if d, err := time.ParseDuration(c.Run.CommonInterval); err != nil || d <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("invalid run.common_interval %q", c.Run.CommonInterval))
		}
	}
	if c.Run.Schedule != "" {
		if d, err := time.ParseDuration(c.Run.Schedule); err != nil || d <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("invalid run.schedule %q", c.Run.Schedule))
		}
	}
	if c.Storage.CSV == nil && c.Storage.SQLite == nil && c.Storage.TimescaleDB == nil {
		errs = multierr.Append(errs, fmt.Errorf("no storage backend configured"))
	}

	seen := make(map[string]bool, len(c.Variables))
	for _, v := range c.Variables {
		if seen[v.Name] {
			errs = multierr.Append(errs, fmt.Errorf("variable %s is configured more than once", v.Name))
		}
		seen[v.Name] = true
	}
	return errs
}

// Location returns the canonical time zone of the site
func (c *ConfigData) Location() (*time.Location, error) {
	return loadLocation(c.Site.Timezone)
}

// Window returns the configured full-mode range, zero values when unset
func (c *ConfigData) Window(loc *time.Location) (from, to time.Time, err error) {
	if c.Run.Start != "" {
		if from, err = time.ParseInLocation("2006-01-02", c.Run.Start, loc); err != nil {
			return from, to, fmt.Errorf("invalid run.start: %w", err)
		}
	}
	if c.Run.End != "" {
		if to, err = time.ParseInLocation("2006-01-02", c.Run.End, loc); err != nil {
			return from, to, fmt.Errorf("invalid run.end: %w", err)
		}
	}
	return from, to, nil
}

// BuildVariables converts the variable table into domain variables. Variables
// with inconsistent metadata are returned as configuration errors and left out.
func (c *ConfigData) BuildVariables(loc *time.Location) ([]types.Variable, []*types.ConfigurationError) {
	var (
		vars []types.Variable
		bad  []*types.ConfigurationError
	)
	for _, vd := range c.Variables {
		v, err := vd.toVariable(loc)
		if err != nil {
			bad = append(bad, err)
			continue
		}
		vars = append(vars, v)
	}
	return vars, bad
}

func (vd VariableData) toVariable(loc *time.Location) (types.Variable, *types.ConfigurationError) {
	fail := func(format string, args ...any) (types.Variable, *types.ConfigurationError) {
		return types.Variable{}, &types.ConfigurationError{Variable: vd.Name, Reason: fmt.Sprintf(format, args...)}
	}

	if err := validate.Struct(vd); err != nil {
		return fail("%v", err)
	}

	v := types.Variable{
		Name:           vd.Name,
		Source:         vd.Source,
		Field:          vd.Field,
		Kind:           types.Kind(vd.Kind),
		Min:            *vd.Min,
		Max:            *vd.Max,
		SpikeThreshold: vd.SpikeThreshold,
		FillMethod:     types.FillMethod(vd.FillMethod),
		Precision:      DefaultPrecision,
		Interpolation:  vd.Interpolation,
		MissingValues:  vd.MissingValues,
		NightMax:       vd.NightMax,
	}
	if v.Kind == "" {
		v.Kind = types.KindInstrument
	}
	if v.Min > v.Max {
		return fail("min %g exceeds max %g", v.Min, v.Max)
	}
	if vd.Precision != nil {
		v.Precision = *vd.Precision
	}

	var err error
	if v.Interval, err = time.ParseDuration(vd.Interval); err != nil || v.Interval <= 0 {
		return fail("invalid interval %q", vd.Interval)
	}
	if vd.MaxGap != "" {
		if v.MaxGap, err = time.ParseDuration(vd.MaxGap); err != nil || v.MaxGap < 0 {
			return fail("invalid max_gap %q", vd.MaxGap)
		}
	}
	if vd.Tolerance != "" {
		if v.Tolerance, err = time.ParseDuration(vd.Tolerance); err != nil || v.Tolerance < 0 {
			return fail("invalid tolerance %q", vd.Tolerance)
		}
	}
	if v.Kind == types.KindLeafArea && v.Interpolation == "" {
		v.Interpolation = "linear"
	}

	for _, m := range vd.Masks {
		start, err := parseTime(m.Start, loc)
		if err != nil {
			return fail("invalid mask start %q", m.Start)
		}
		end, err := parseTime(m.End, loc)
		if err != nil {
			return fail("invalid mask end %q", m.End)
		}
		if !end.After(start) {
			return fail("mask %s - %s is empty", m.Start, m.End)
		}
		v.Masks = append(v.Masks, types.TimeRange{Start: start, End: end})
	}
	if vd.IQR != nil {
		v.IQR = &types.IQRBounds{LowerK: vd.IQR.LowerK, UpperK: vd.IQR.UpperK}
	}
	if vd.Calibration != nil {
		v.Calibration = types.Calibration{Gain: vd.Calibration.Gain, Offset: vd.Calibration.Offset}
	}
	return v, nil
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

// LoadLocation resolves an optional per-source time zone, falling back to def
func LoadLocation(name string, def *time.Location) (*time.Location, error) {
	if name == "" {
		return def, nil
	}
	return loadLocation(name)
}
