package managers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chrissnell/fluxprep/internal/storage"
	"github.com/chrissnell/fluxprep/internal/types"
	"github.com/chrissnell/fluxprep/pkg/config"
	"go.uber.org/zap"
)

type recordingSink struct {
	name    string
	fail    bool
	written []string
	runs    int
	closed  bool
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) WriteSegment(_ context.Context, seg types.DailySegment) error {
	if r.fail {
		return errors.New("disk full")
	}
	r.written = append(r.written, seg.Key())
	return nil
}

func (r *recordingSink) RecordRun(context.Context, storage.RunRecord) error {
	r.runs++
	return nil
}

func (r *recordingSink) Close() error {
	r.closed = true
	if r.fail {
		return errors.New("close failed")
	}
	return nil
}

func TestStorageManagerFanOut(t *testing.T) {
	s := &StorageManager{Health: storage.NewHealthManager(), logger: zap.NewNop().Sugar()}
	good := &recordingSink{name: "good"}
	bad := &recordingSink{name: "bad", fail: true}
	s.AddEngine(bad)
	s.AddEngine(good)

	day := time.Date(2016, 7, 1, 0, 0, 0, 0, time.UTC)
	err := s.WriteSegment(context.Background(), types.DailySegment{Date: day})
	if err == nil {
		t.Error("expected the failing sink's error")
	}
	if len(good.written) != 1 || good.written[0] != "20160701" {
		t.Errorf("a failing sink stopped the others: %v", good.written)
	}

	if err := s.RecordRun(context.Background(), storage.RunRecord{ID: "r1"}); err != nil {
		t.Errorf("RecordRun failed: %v", err)
	}
	if good.runs != 1 || bad.runs != 1 {
		t.Errorf("expected both sinks to record the run")
	}

	if err := s.Close(); err == nil {
		t.Error("expected the close error to be reported")
	}
	if !good.closed || !bad.closed {
		t.Error("expected every sink to be closed")
	}
}

func TestNewStorageManager(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.StorageData{
		CSV:    &config.CSVData{Dir: filepath.Join(dir, "csv"), Prefix: "hyy"},
		SQLite: &config.SQLiteData{Path: filepath.Join(dir, "out.db")},
	}

	s, err := NewStorageManager(context.Background(), cfg, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("NewStorageManager failed: %v", err)
	}
	defer s.Close()

	if len(s.Engines) != 2 {
		t.Fatalf("expected 2 sinks, got %d", len(s.Engines))
	}
	if _, err := os.Stat(filepath.Join(dir, "csv")); err != nil {
		t.Errorf("expected the CSV directory to be created: %v", err)
	}

	health := s.CheckHealth(context.Background())
	for _, name := range []string{"csv", "sqlite"} {
		if h, ok := health[name]; !ok || h.Status != "healthy" {
			t.Errorf("expected %s to be healthy, got %+v", name, h)
		}
	}
	if !s.Health.IsHealthy("sqlite", time.Minute) {
		t.Error("expected IsHealthy to report sqlite")
	}
}
