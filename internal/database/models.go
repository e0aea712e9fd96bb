package database

import (
	"database/sql"
	"time"
)

// SegmentSample is one stored (time, variable) cell of a daily segment
type SegmentSample struct {
	Time     time.Time       `gorm:"column:time;primaryKey"`
	Date     string          `gorm:"column:date;not null;index"`
	Variable string          `gorm:"column:variable;primaryKey"`
	Value    sql.NullFloat64 `gorm:"column:value"`
	Quality  string          `gorm:"column:quality;not null"`
}

// TableName specifies the table name for SegmentSample
func (SegmentSample) TableName() string {
	return "segment_samples"
}

// Run is one row of the run history
type Run struct {
	ID         string    `gorm:"primaryKey;column:id"`
	Mode       string    `gorm:"column:mode;not null"`
	Start      time.Time `gorm:"column:window_start"`
	End        time.Time `gorm:"column:window_end"`
	StartedAt  time.Time `gorm:"column:started_at"`
	FinishedAt time.Time `gorm:"column:finished_at"`
	Days       int       `gorm:"column:days"`
	Failures   int       `gorm:"column:failures"`
	Error      string    `gorm:"column:error"`
}

// TableName specifies the table name for Run
func (Run) TableName() string {
	return "runs"
}
