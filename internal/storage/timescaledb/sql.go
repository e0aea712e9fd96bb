package timescaledb

const createTableSQL = `
CREATE TABLE IF NOT EXISTS segment_samples (
    time timestamp WITH TIME ZONE NOT NULL,
    date text NOT NULL,
    variable text NOT NULL,
    value float8 NULL,
    quality text NOT NULL,
    PRIMARY KEY (time, variable)
);`

const createRunsTableSQL = `
CREATE TABLE IF NOT EXISTS runs (
    id text PRIMARY KEY,
    mode text NOT NULL,
    window_start timestamp WITH TIME ZONE NOT NULL,
    window_end timestamp WITH TIME ZONE NOT NULL,
    started_at timestamp WITH TIME ZONE NOT NULL,
    finished_at timestamp WITH TIME ZONE NOT NULL,
    days integer NOT NULL,
    failures integer NOT NULL,
    error text NULL
);`

const createExtensionSQL = `CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE;`

const createHypertableSQL = `SELECT create_hypertable('segment_samples', 'time', chunk_time_interval => INTERVAL '30 days', if_not_exists => true);`

const createDateIndexSQL = `CREATE INDEX IF NOT EXISTS segment_samples_date_idx ON segment_samples (date);`

// dailyQualityViewSQL counts samples per day, variable and quality flag
const dailyQualityViewSQL = `
CREATE OR REPLACE VIEW segment_quality_daily AS
SELECT date, variable, quality, COUNT(*) AS samples
FROM segment_samples
GROUP BY date, variable, quality;`
