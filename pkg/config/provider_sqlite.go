package config

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS configs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	site TEXT NOT NULL DEFAULT '{}',
	run TEXT NOT NULL DEFAULT '{}',
	sources TEXT NOT NULL DEFAULT '{}',
	status TEXT NULL,
	created_at TEXT NOT NULL DEFAULT (datetime('now')),
	updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS variables (
	config_id INTEGER NOT NULL REFERENCES configs(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	source TEXT NOT NULL,
	field TEXT NULL,
	kind TEXT NULL,
	interval TEXT NOT NULL,
	min REAL NULL,
	max REAL NULL,
	spike_threshold REAL NOT NULL DEFAULT 0,
	max_gap TEXT NULL,
	fill_method TEXT NOT NULL,
	tolerance TEXT NULL,
	precision INTEGER NULL,
	interpolation TEXT NULL,
	qc TEXT NOT NULL DEFAULT '{}',
	position INTEGER NOT NULL,
	PRIMARY KEY (config_id, name)
);

CREATE TABLE IF NOT EXISTS storage_configs (
	config_id INTEGER NOT NULL REFERENCES configs(id) ON DELETE CASCADE,
	backend_type TEXT NOT NULL,
	settings TEXT NOT NULL,
	PRIMARY KEY (config_id, backend_type)
);
`

// qcColumns is the JSON document kept in variables.qc
type qcColumns struct {
	MissingValues []float64        `json:"missing_values,omitempty"`
	Masks         []MaskData       `json:"masks,omitempty"`
	IQR           *IQRData         `json:"iqr_filter,omitempty"`
	NightMax      *float64         `json:"night_max,omitempty"`
	Calibration   *CalibrationData `json:"calibration,omitempty"`
}

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider creates a new SQLite configuration provider
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create configuration schema: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}

	var site, run, sources string
	var status sql.NullString
	err := s.db.QueryRow(`SELECT site, run, sources, status FROM configs WHERE name = 'default'`).
		Scan(&site, &run, &sources, &status)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no configuration found in %s", s.dbPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	for _, doc := range []struct {
		name string
		raw  string
		dst  any
	}{
		{"site", site, &config.Site},
		{"run", run, &config.Run},
		{"sources", sources, &config.Sources},
	} {
		if err := json.Unmarshal([]byte(doc.raw), doc.dst); err != nil {
			return nil, fmt.Errorf("failed to decode %s settings: %w", doc.name, err)
		}
	}
	if status.Valid && status.String != "" {
		config.Status = &StatusData{}
		if err := json.Unmarshal([]byte(status.String), config.Status); err != nil {
			return nil, fmt.Errorf("failed to decode status settings: %w", err)
		}
	}

	variables, err := s.GetVariables()
	if err != nil {
		return nil, fmt.Errorf("failed to load variables: %w", err)
	}
	config.Variables = variables

	storage, err := s.GetStorageConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}
	config.Storage = *storage

	return config, nil
}

// GetVariables returns the variable table in its configured order
func (s *SQLiteProvider) GetVariables() ([]VariableData, error) {
	query := `
		SELECT name, source, field, kind, interval, min, max, spike_threshold,
		       max_gap, fill_method, tolerance, precision, interpolation, qc
		FROM variables
		WHERE config_id = (SELECT id FROM configs WHERE name = 'default')
		ORDER BY position
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query variables: %w", err)
	}
	defer rows.Close()

	var variables []VariableData
	for rows.Next() {
		var v VariableData
		var field, kind, maxGap, tolerance, interpolation sql.NullString
		var min, max sql.NullFloat64
		var precision sql.NullInt64
		var qc string

		err := rows.Scan(&v.Name, &v.Source, &field, &kind, &v.Interval, &min, &max,
			&v.SpikeThreshold, &maxGap, &v.FillMethod, &tolerance, &precision, &interpolation, &qc)
		if err != nil {
			return nil, fmt.Errorf("failed to scan variable row: %w", err)
		}

		v.Field = field.String
		v.Kind = kind.String
		v.MaxGap = maxGap.String
		v.Tolerance = tolerance.String
		v.Interpolation = interpolation.String
		if min.Valid {
			v.Min = &min.Float64
		}
		if max.Valid {
			v.Max = &max.Float64
		}
		if precision.Valid {
			p := int(precision.Int64)
			v.Precision = &p
		}

		var extra qcColumns
		if err := json.Unmarshal([]byte(qc), &extra); err != nil {
			return nil, fmt.Errorf("failed to decode QC settings of %s: %w", v.Name, err)
		}
		v.MissingValues = extra.MissingValues
		v.Masks = extra.Masks
		v.IQR = extra.IQR
		v.NightMax = extra.NightMax
		v.Calibration = extra.Calibration

		variables = append(variables, v)
	}
	return variables, rows.Err()
}

// GetStorageConfig returns storage configuration from the database
func (s *SQLiteProvider) GetStorageConfig() (*StorageData, error) {
	query := `
		SELECT backend_type, settings
		FROM storage_configs
		WHERE config_id = (SELECT id FROM configs WHERE name = 'default')
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query storage configs: %w", err)
	}
	defer rows.Close()

	storage := &StorageData{}
	for rows.Next() {
		var backendType, settings string
		if err := rows.Scan(&backendType, &settings); err != nil {
			return nil, fmt.Errorf("failed to scan storage config row: %w", err)
		}

		var dst any
		switch backendType {
		case "csv":
			storage.CSV = &CSVData{}
			dst = storage.CSV
		case "sqlite":
			storage.SQLite = &SQLiteData{}
			dst = storage.SQLite
		case "timescaledb":
			storage.TimescaleDB = &TimescaleDBData{}
			dst = storage.TimescaleDB
		default:
			return nil, fmt.Errorf("unknown storage backend %q", backendType)
		}
		if err := json.Unmarshal([]byte(settings), dst); err != nil {
			return nil, fmt.Errorf("failed to decode %s settings: %w", backendType, err)
		}
	}
	return storage, rows.Err()
}

// IsReadOnly returns false since SQLite configuration can be modified
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveConfig replaces the stored configuration with configData
func (s *SQLiteProvider) SaveConfig(configData *ConfigData) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	configID, err := s.upsertConfig(tx, configData)
	if err != nil {
		return fmt.Errorf("failed to insert config: %w", err)
	}

	for _, query := range []string{
		"DELETE FROM variables WHERE config_id = ?",
		"DELETE FROM storage_configs WHERE config_id = ?",
	} {
		if _, err := tx.Exec(query, configID); err != nil {
			return fmt.Errorf("failed to clear existing config: %w", err)
		}
	}

	for i := range configData.Variables {
		if err := insertVariable(tx, configID, i, &configData.Variables[i]); err != nil {
			return fmt.Errorf("failed to insert variable %s: %w", configData.Variables[i].Name, err)
		}
	}

	if err := insertStorageConfigs(tx, configID, &configData.Storage); err != nil {
		return fmt.Errorf("failed to insert storage configs: %w", err)
	}

	return tx.Commit()
}

// AddVariable appends a variable to the stored configuration
func (s *SQLiteProvider) AddVariable(v *VariableData) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var configID int64
	if err := tx.QueryRow(`SELECT id FROM configs WHERE name = 'default'`).Scan(&configID); err != nil {
		return fmt.Errorf("no configuration found: %w", err)
	}
	var position int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(position), -1) + 1 FROM variables WHERE config_id = ?`, configID).Scan(&position); err != nil {
		return err
	}
	if err := insertVariable(tx, configID, position, v); err != nil {
		return fmt.Errorf("failed to insert variable %s: %w", v.Name, err)
	}
	return tx.Commit()
}

// DeleteVariable removes a variable from the stored configuration
func (s *SQLiteProvider) DeleteVariable(name string) error {
	res, err := s.db.Exec(`DELETE FROM variables WHERE name = ? AND config_id = (SELECT id FROM configs WHERE name = 'default')`, name)
	if err != nil {
		return fmt.Errorf("failed to delete variable: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("variable %s not found", name)
	}
	return nil
}

func (s *SQLiteProvider) upsertConfig(tx *sql.Tx, c *ConfigData) (int64, error) {
	site, err := json.Marshal(c.Site)
	if err != nil {
		return 0, err
	}
	run, err := json.Marshal(c.Run)
	if err != nil {
		return 0, err
	}
	sources, err := json.Marshal(c.Sources)
	if err != nil {
		return 0, err
	}
	var status sql.NullString
	if c.Status != nil {
		b, err := json.Marshal(c.Status)
		if err != nil {
			return 0, err
		}
		status = sql.NullString{String: string(b), Valid: true}
	}

	query := `
		INSERT INTO configs (name, site, run, sources, status) VALUES ('default', ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			site = excluded.site, run = excluded.run, sources = excluded.sources,
			status = excluded.status, updated_at = datetime('now')
	`
	if _, err := tx.Exec(query, string(site), string(run), string(sources), status); err != nil {
		return 0, err
	}

	var id int64
	err = tx.QueryRow(`SELECT id FROM configs WHERE name = 'default'`).Scan(&id)
	return id, err
}

func insertVariable(tx *sql.Tx, configID int64, position int, v *VariableData) error {
	qc, err := json.Marshal(qcColumns{
		MissingValues: v.MissingValues,
		Masks:         v.Masks,
		IQR:           v.IQR,
		NightMax:      v.NightMax,
		Calibration:   v.Calibration,
	})
	if err != nil {
		return err
	}

	var precision sql.NullInt64
	if v.Precision != nil {
		precision = sql.NullInt64{Int64: int64(*v.Precision), Valid: true}
	}

	query := `
		INSERT INTO variables (
			config_id, name, source, field, kind, interval, min, max, spike_threshold,
			max_gap, fill_method, tolerance, precision, interpolation, qc, position
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.Exec(query,
		configID, v.Name, v.Source, nullString(v.Field), nullString(v.Kind), v.Interval,
		nullFloat(v.Min), nullFloat(v.Max), v.SpikeThreshold, nullString(v.MaxGap),
		v.FillMethod, nullString(v.Tolerance), precision, nullString(v.Interpolation),
		string(qc), position,
	)
	return err
}

func insertStorageConfigs(tx *sql.Tx, configID int64, storage *StorageData) error {
	backends := []struct {
		name     string
		settings any
		present  bool
	}{
		{"csv", storage.CSV, storage.CSV != nil},
		{"sqlite", storage.SQLite, storage.SQLite != nil},
		{"timescaledb", storage.TimescaleDB, storage.TimescaleDB != nil},
	}
	for _, b := range backends {
		if !b.present {
			continue
		}
		settings, err := json.Marshal(b.settings)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO storage_configs (config_id, backend_type, settings) VALUES (?, ?, ?)`,
			configID, b.name, string(settings)); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
