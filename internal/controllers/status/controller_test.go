package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chrissnell/fluxprep/internal/pipeline"
	"github.com/chrissnell/fluxprep/internal/storage"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

func testController(health map[string]storage.HealthData) (*Controller, *Store) {
	store := NewStore()
	hf := func(context.Context) map[string]storage.HealthData { return health }
	return NewController("127.0.0.1", 0, store, hf, zap.NewNop().Sugar()), store
}

func TestStatusEndpoints(t *testing.T) {
	c, store := testController(map[string]storage.HealthData{"csv": {Status: "healthy"}})
	srv := httptest.NewServer(c.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/runs/latest")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 before the first run, got %d", resp.StatusCode)
	}

	store.Update(&pipeline.Report{
		RunID: "run-1",
		Days: []pipeline.DaySummary{
			{Date: "2016-07-01", SampleCount: 48, FilledCount: 2},
			{Date: "2016-07-02", SampleCount: 48, GapCount: 1},
		},
	}, nil)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"latest run", "/runs/latest", http.StatusOK},
		{"day with dashes", "/days/2016-07-01", http.StatusOK},
		{"compact day", "/days/20160702", http.StatusOK},
		{"unknown day", "/days/2016-07-03", http.StatusNotFound},
		{"bad day", "/days/yesterday", http.StatusBadRequest},
		{"health", "/healthz", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("expected %d, got %d", tt.status, resp.StatusCode)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected JSON, got %s", ct)
			}
		})
	}

	resp, err = http.Get(srv.URL + "/days/2016-07-01")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var day pipeline.DaySummary
	if err := json.NewDecoder(resp.Body).Decode(&day); err != nil {
		t.Fatal(err)
	}
	if day.SampleCount != 48 || day.FilledCount != 2 {
		t.Errorf("unexpected day %+v", day)
	}
}

func TestMsgPackResponse(t *testing.T) {
	c, store := testController(nil)
	store.Update(&pipeline.Report{RunID: "run-2"}, nil)

	rec := httptest.NewRecorder()
	c.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/latest?format=msgpack", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/x-msgpack" {
		t.Fatalf("expected msgpack, got %s", ct)
	}
	var st map[string]any
	if err := msgpack.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decoding msgpack: %v", err)
	}
	report, ok := st["report"].(map[string]any)
	if !ok || report["run_id"] != "run-2" {
		t.Errorf("unexpected body %v", st)
	}
}

func TestFailedRunKeepsDays(t *testing.T) {
	c, store := testController(map[string]storage.HealthData{"sqlite": {Status: "unhealthy"}})
	store.Update(&pipeline.Report{Days: []pipeline.DaySummary{{Date: "2016-07-01", SampleCount: 48}}}, nil)
	store.Update(&pipeline.Report{Days: []pipeline.DaySummary{{Date: "2016-07-01", SampleCount: 1}}}, errors.New("no usable data"))

	if d, ok := store.Day("2016-07-01"); !ok || d.SampleCount != 48 {
		t.Errorf("a failed run replaced a day summary: %+v", d)
	}
	if store.Latest().Error == "" {
		t.Error("expected the latest status to carry the error")
	}

	rec := httptest.NewRecorder()
	c.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for an unhealthy sink, got %d", rec.Code)
	}
}
