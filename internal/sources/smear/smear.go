// Package smear fetches half-hourly meteorological data from the SMEAR
// station data service.
package smear

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chrissnell/fluxprep/internal/sources"
	"github.com/chrissnell/fluxprep/internal/types"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL   = "http://avaa.tdata.fi/palvelut/smeardata.jsp"
	DefaultTable     = "HYY_META"
	DefaultAveraging = "30MIN"
	DefaultQuality   = "ANY"

	typeArithmetic = "ARITHMETIC"
	typeSum        = "SUM"

	timeLayout = "2006-01-02 15:04:05"
)

// Config describes how to reach the service
type Config struct {
	BaseURL   string
	Table     string
	Averaging string
	Quality   string

	// SumFields are accumulated rather than averaged, e.g. precipitation
	SumFields []string

	// Location the service reports timestamps in
	Location *time.Location

	Timeout time.Duration
	Backoff Backoff
}

// Client fetches variables from the service
type Client struct {
	cfg     Config
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
	sum     map[string]bool
	logger  *zap.SugaredLogger
}

// New creates a Client, filling in defaults for unset configuration
func New(cfg Config, logger *zap.SugaredLogger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.Averaging == "" {
		cfg.Averaging = DefaultAveraging
	}
	if cfg.Quality == "" {
		cfg.Quality = DefaultQuality
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Backoff.InitialInterval == 0 {
		cfg.Backoff = Backoff{MaxRetries: 3, InitialInterval: 2 * time.Second, MaxInterval: 30 * time.Second}
	}

	sum := make(map[string]bool, len(cfg.SumFields))
	for _, f := range cfg.SumFields {
		sum[f] = true
	}

	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "smear",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     2 * time.Minute,
		}),
		sum:    sum,
		logger: logger,
	}
}

// Fetch implements sources.Source by requesting the single variable
func (c *Client) Fetch(ctx context.Context, v types.Variable, from, to time.Time) ([]types.Observation, error) {
	field := v.Field
	if field == "" {
		field = v.Name
	}
	res, err := c.FetchBatch(ctx, []string{field}, from, to)
	if err != nil {
		return nil, err
	}
	return res[field], nil
}

// FetchBatch requests several fields at once. Fields are grouped by
// aggregation type since the service applies one type per request.
func (c *Client) FetchBatch(ctx context.Context, fields []string, from, to time.Time) (map[string][]types.Observation, error) {
	var mean, sum []string
	for _, f := range fields {
		if c.sum[f] {
			sum = append(sum, f)
		} else {
			mean = append(mean, f)
		}
	}

	out := make(map[string][]types.Observation, len(fields))
	for _, group := range []struct {
		fields []string
		kind   string
	}{{mean, typeArithmetic}, {sum, typeSum}} {
		if len(group.fields) == 0 {
			continue
		}
		res, err := c.request(ctx, group.fields, group.kind, from, to)
		if err != nil {
			return nil, err
		}
		for f, obs := range res {
			out[f] = obs
		}
	}
	return out, nil
}

func (c *Client) request(ctx context.Context, fields []string, kind string, from, to time.Time) (map[string][]types.Observation, error) {
	build := func() (*http.Request, error) {
		q := url.Values{}
		q.Set("variables", strings.Join(fields, ",")+",")
		q.Set("table", c.cfg.Table)
		q.Set("from", from.In(c.cfg.Location).Format(timeLayout))
		q.Set("to", to.In(c.cfg.Location).Format(timeLayout))
		q.Set("quality", c.cfg.Quality)
		q.Set("averaging", c.cfg.Averaging)
		q.Set("type", kind)
		return http.NewRequest(http.MethodGet, c.cfg.BaseURL+"?"+q.Encode(), nil)
	}

	if c.logger != nil {
		c.logger.Debugw("requesting SMEAR data", "fields", fields, "type", kind,
			"from", from.Format(time.RFC3339), "to", to.Format(time.RFC3339))
	}

	resp, err := doWithRetry(ctx, c.client, c.circuit, c.cfg.Backoff, build)
	if err != nil {
		return nil, fmt.Errorf("fetching %s from SMEAR: %w", strings.Join(fields, ","), err)
	}
	defer resp.Body.Close()

	res, err := Parse(resp.Body, fields, c.cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("parsing SMEAR response: %w", err)
	}
	for f, obs := range res {
		res[f] = sources.Between(obs, from, to)
	}
	return res, nil
}

// Parse reads a SMEAR CSV response: a header row followed by
// year,month,day,hour,minute,second and one column per field. Header names
// may carry a table prefix such as HYY_META.T168. Unparseable values are NaN.
func Parse(r io.Reader, fields []string, loc *time.Location) (map[string][]types.Observation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return map[string][]types.Observation{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(header) < 7 {
		return nil, fmt.Errorf("expected at least 7 columns, got %d", len(header))
	}

	columns := columnIndex(header, fields)
	out := make(map[string][]types.Observation, len(fields))

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 6 {
			continue
		}
		ts, err := parseTimestamp(rec[:6], loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		for f, col := range columns {
			val := math.NaN()
			if col < len(rec) {
				if x, err := strconv.ParseFloat(strings.TrimSpace(rec[col]), 64); err == nil {
					val = x
				}
			}
			out[f] = append(out[f], types.Observation{Time: ts, Value: val})
		}
	}
	return out, nil
}

// columnIndex maps each field to its column, falling back to request order
// when the header does not name the fields
func columnIndex(header, fields []string) map[string]int {
	named := make(map[string]int, len(header))
	for i, h := range header[6:] {
		h = strings.TrimSpace(h)
		if dot := strings.LastIndex(h, "."); dot >= 0 {
			h = h[dot+1:]
		}
		named[h] = i + 6
	}

	columns := make(map[string]int, len(fields))
	for i, f := range fields {
		if col, ok := named[f]; ok {
			columns[f] = col
			continue
		}
		columns[f] = i + 6
	}
	return columns
}

func parseTimestamp(parts []string, loc *time.Location) (time.Time, error) {
	var n [6]int
	for i, p := range parts {
		x, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad timestamp field %q", p)
		}
		n[i] = int(x)
	}
	return time.Date(n[0], time.Month(n[1]), n[2], n[3], n[4], n[5], 0, loc), nil
}
