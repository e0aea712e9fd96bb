package config

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetVariables() ([]VariableData, error)
	GetStorageConfig() (*StorageData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Site      SiteData       `json:"site" yaml:"site"`
	Run       RunData        `json:"run" yaml:"run"`
	Sources   SourcesData    `json:"sources" yaml:"sources"`
	Variables []VariableData `json:"variables" yaml:"variables" validate:"required,min=1"`
	Storage   StorageData    `json:"storage" yaml:"storage"`
	Status    *StatusData    `json:"status,omitempty" yaml:"status,omitempty"`
}

// SiteData describes the measurement site
type SiteData struct {
	Name      string  `json:"name,omitempty" yaml:"name,omitempty"`
	Latitude  float64 `json:"latitude" yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" yaml:"longitude" validate:"gte=-180,lte=180"`
	Altitude  float64 `json:"altitude,omitempty" yaml:"altitude,omitempty"`

	// Timezone is the canonical location of every timestamp in a run, e.g.
	// "Etc/GMT-2" for the site's local winter time
	Timezone string `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// RunData selects the processing window and run behaviour
type RunData struct {
	Mode           string `json:"mode,omitempty" yaml:"mode,omitempty" validate:"omitempty,oneof=full online"`
	Start          string `json:"start,omitempty" yaml:"start,omitempty" validate:"omitempty,datetime=2006-01-02"`
	End            string `json:"end,omitempty" yaml:"end,omitempty" validate:"omitempty,datetime=2006-01-02"`
	TracebackDays  int    `json:"traceback_days,omitempty" yaml:"traceback_days,omitempty" validate:"gte=0"`
	CommonInterval string `json:"common_interval,omitempty" yaml:"common_interval,omitempty"`
	Workers        int    `json:"workers,omitempty" yaml:"workers,omitempty" validate:"gte=0"`
	Silent         bool   `json:"silent,omitempty" yaml:"silent,omitempty"`
	Schedule       string `json:"schedule,omitempty" yaml:"schedule,omitempty"`

	// PerVariable requests each variable separately instead of batching the
	// variables of a source
	PerVariable bool `json:"per_variable,omitempty" yaml:"per_variable,omitempty"`
}

// SourcesData holds the configuration of every raw data source
type SourcesData struct {
	SMEAR   *SMEARData   `json:"smear,omitempty" yaml:"smear,omitempty"`
	Flow    *FlowData    `json:"flow,omitempty" yaml:"flow,omitempty"`
	Sensors []SensorData `json:"sensors,omitempty" yaml:"sensors,omitempty" validate:"dive"`
	Manual  []ManualData `json:"manual,omitempty" yaml:"manual,omitempty" validate:"dive"`
}

// SMEARData configures the SMEAR data service client
type SMEARData struct {
	URL        string   `json:"url,omitempty" yaml:"url,omitempty" validate:"omitempty,url"`
	Table      string   `json:"table,omitempty" yaml:"table,omitempty"`
	Averaging  string   `json:"averaging,omitempty" yaml:"averaging,omitempty"`
	Quality    string   `json:"quality,omitempty" yaml:"quality,omitempty"`
	SumFields  []string `json:"sum_fields,omitempty" yaml:"sum_fields,omitempty"`
	Timezone   string   `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	Timeout    string   `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxRetries int      `json:"max_retries,omitempty" yaml:"max_retries,omitempty" validate:"gte=0"`
}

// FlowData configures the flowmeter log reader
type FlowData struct {
	Dir      string   `json:"dir" yaml:"dir" validate:"required"`
	Pattern  string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Columns  []string `json:"columns,omitempty" yaml:"columns,omitempty"`
	Timezone string   `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// SensorData configures one family of chamber sensor logs
type SensorData struct {
	Name       string         `json:"name" yaml:"name" validate:"required"`
	Dir        string         `json:"dir" yaml:"dir" validate:"required"`
	Pattern    string         `json:"pattern" yaml:"pattern" validate:"required"`
	DateLayout string         `json:"date_layout,omitempty" yaml:"date_layout,omitempty"`
	Columns    map[string]int `json:"columns" yaml:"columns" validate:"required,min=1"`
	Timezone   string         `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// ManualData configures a table of hand recorded observations
type ManualData struct {
	Name       string `json:"name" yaml:"name" validate:"required"`
	Path       string `json:"path" yaml:"path" validate:"required"`
	TimeColumn string `json:"time_column,omitempty" yaml:"time_column,omitempty"`
	Timezone   string `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// VariableData is the metadata of one processed variable
type VariableData struct {
	Name           string           `json:"name" yaml:"name" validate:"required"`
	Source         string           `json:"source" yaml:"source" validate:"required"`
	Field          string           `json:"field,omitempty" yaml:"field,omitempty"`
	Kind           string           `json:"kind,omitempty" yaml:"kind,omitempty" validate:"omitempty,oneof=instrument leaf_area"`
	Interval       string           `json:"interval" yaml:"interval" validate:"required"`
	Min            *float64         `json:"min" yaml:"min" validate:"required"`
	Max            *float64         `json:"max" yaml:"max" validate:"required"`
	SpikeThreshold float64          `json:"spike_threshold,omitempty" yaml:"spike_threshold,omitempty" validate:"gte=0"`
	MaxGap         string           `json:"max_gap,omitempty" yaml:"max_gap,omitempty"`
	FillMethod     string           `json:"fill_method" yaml:"fill_method" validate:"required,oneof=linear forward none"`
	Tolerance      string           `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
	Precision      *int             `json:"precision,omitempty" yaml:"precision,omitempty" validate:"omitempty,gte=0,lte=15"`
	Interpolation  string           `json:"interpolation,omitempty" yaml:"interpolation,omitempty" validate:"omitempty,oneof=linear step"`
	MissingValues  []float64        `json:"missing_values,omitempty" yaml:"missing_values,omitempty"`
	Masks          []MaskData       `json:"masks,omitempty" yaml:"masks,omitempty" validate:"dive"`
	IQR            *IQRData         `json:"iqr_filter,omitempty" yaml:"iqr_filter,omitempty"`
	NightMax       *float64         `json:"night_max,omitempty" yaml:"night_max,omitempty"`
	Calibration    *CalibrationData `json:"calibration,omitempty" yaml:"calibration,omitempty"`
}

// MaskData is a [start, end) period whose samples are discarded
type MaskData struct {
	Start string `json:"start" yaml:"start" validate:"required"`
	End   string `json:"end" yaml:"end" validate:"required"`
}

// IQRData configures the interquartile range filter
type IQRData struct {
	LowerK float64 `json:"lower_k" yaml:"lower_k" validate:"gt=0"`
	UpperK float64 `json:"upper_k" yaml:"upper_k" validate:"gt=0"`
}

// CalibrationData is a linear sensor correction
type CalibrationData struct {
	Gain   float64 `json:"gain" yaml:"gain"`
	Offset float64 `json:"offset,omitempty" yaml:"offset,omitempty"`
}

// StorageData holds the configuration for the output sinks
type StorageData struct {
	CSV         *CSVData         `json:"csv,omitempty" yaml:"csv,omitempty"`
	SQLite      *SQLiteData      `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
	TimescaleDB *TimescaleDBData `json:"timescaledb,omitempty" yaml:"timescaledb,omitempty"`
}

// CSVData configures the daily CSV sink
type CSVData struct {
	Dir      string `json:"dir" yaml:"dir" validate:"required"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Compress bool   `json:"compress,omitempty" yaml:"compress,omitempty"`
}

// SQLiteData configures the SQLite sink
type SQLiteData struct {
	Path string `json:"path" yaml:"path" validate:"required"`
}

// TimescaleDBData configures the TimescaleDB sink
type TimescaleDBData struct {
	ConnectionString string `json:"connection_string" yaml:"connection_string" validate:"required"`
}

// StatusData configures the status HTTP server
type StatusData struct {
	ListenAddr string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty"`
	Port       int    `json:"port" yaml:"port" validate:"required,gt=0,lt=65536"`
}
