package app

import (
	"fmt"
	"time"

	"github.com/chrissnell/fluxprep/internal/sources"
	"github.com/chrissnell/fluxprep/internal/sources/flow"
	"github.com/chrissnell/fluxprep/internal/sources/manual"
	"github.com/chrissnell/fluxprep/internal/sources/sensor"
	"github.com/chrissnell/fluxprep/internal/sources/smear"
	"github.com/chrissnell/fluxprep/pkg/config"
	"go.uber.org/zap"
)

// Source names used by the variable table for the built-in sources
const (
	SourceSMEAR = "smear"
	SourceFlow  = "flow"
)

// BuildSources registers every configured source. Sensor and manual sources
// are registered under their configured names.
func BuildSources(c *config.SourcesData, loc *time.Location, logger *zap.SugaredLogger) (*sources.Registry, error) {
	r := sources.NewRegistry()

	if c.SMEAR != nil {
		sloc, err := config.LoadLocation(c.SMEAR.Timezone, loc)
		if err != nil {
			return nil, fmt.Errorf("smear: %w", err)
		}
		cfg := smear.Config{
			BaseURL:   c.SMEAR.URL,
			Table:     c.SMEAR.Table,
			Averaging: c.SMEAR.Averaging,
			Quality:   c.SMEAR.Quality,
			SumFields: c.SMEAR.SumFields,
			Location:  sloc,
		}
		if c.SMEAR.Timeout != "" {
			if cfg.Timeout, err = time.ParseDuration(c.SMEAR.Timeout); err != nil {
				return nil, fmt.Errorf("smear: invalid timeout %q", c.SMEAR.Timeout)
			}
		}
		if c.SMEAR.MaxRetries > 0 {
			cfg.Backoff = smear.Backoff{MaxRetries: c.SMEAR.MaxRetries, InitialInterval: 2 * time.Second, MaxInterval: 30 * time.Second}
		}
		r.Register(SourceSMEAR, smear.New(cfg, logger))
	}

	if c.Flow != nil {
		floc, err := config.LoadLocation(c.Flow.Timezone, loc)
		if err != nil {
			return nil, fmt.Errorf("flow: %w", err)
		}
		r.Register(SourceFlow, flow.New(flow.Config{
			Dir:      c.Flow.Dir,
			Pattern:  c.Flow.Pattern,
			Columns:  c.Flow.Columns,
			Location: floc,
		}))
	}

	for _, s := range c.Sensors {
		sloc, err := config.LoadLocation(s.Timezone, loc)
		if err != nil {
			return nil, fmt.Errorf("sensor %s: %w", s.Name, err)
		}
		r.Register(s.Name, sensor.New(sensor.Config{
			Dir:        s.Dir,
			Pattern:    s.Pattern,
			Columns:    s.Columns,
			DateLayout: s.DateLayout,
			Location:   sloc,
		}))
	}

	for _, m := range c.Manual {
		mloc, err := config.LoadLocation(m.Timezone, loc)
		if err != nil {
			return nil, fmt.Errorf("manual %s: %w", m.Name, err)
		}
		r.Register(m.Name, manual.New(manual.Config{
			Path:       m.Path,
			TimeColumn: m.TimeColumn,
			Location:   mloc,
		}))
	}

	logger.Debugf("registered sources: %v", r.Names())
	return r, nil
}
