// Package storage defines the output sinks that receive daily segments.
package storage

import (
	"context"
	"time"

	"github.com/chrissnell/fluxprep/internal/types"
)

// Sink is an output backend. WriteSegment replaces whatever the sink held for
// the segment's date, so reprocessing a day is idempotent.
type Sink interface {
	Name() string
	WriteSegment(ctx context.Context, seg types.DailySegment) error
	Close() error
}

// RunRecorder is implemented by sinks that keep a history of runs
type RunRecorder interface {
	RecordRun(ctx context.Context, r RunRecord) error
}

// HealthChecker defines the interface for sinks to implement health checks
type HealthChecker interface {
	CheckHealth(ctx context.Context) *HealthData
}

// RunRecord summarises one pipeline run
type RunRecord struct {
	ID         string    `json:"id"`
	Mode       string    `json:"mode"`
	Start      time.Time `json:"window_start"`
	End        time.Time `json:"window_end"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Days       int       `json:"days"`
	Failures   int       `json:"failures"`
	Error      string    `json:"error,omitempty"`
}

// HealthData is the last health check result of a sink
type HealthData struct {
	LastCheck time.Time `json:"last_check"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}
