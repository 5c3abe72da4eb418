package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// --- Logging Tests ---

func TestOpenRunLog_AppendsPerConfig(t *testing.T) {
	dir := t.TempDir()

	for _, line := range []string{"first\n", "second\n"} {
		w, err := OpenRunLog(dir, "/cfg/GB16_00_2016_123.cfg")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := io.WriteString(w, line); err != nil {
			t.Fatalf("write: %v", err)
		}
		w.Close()
	}

	data, err := os.ReadFile(filepath.Join(dir, "GB16_00_2016_123_log.txt"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if string(data) != "first\nsecond\n" {
		t.Errorf("log = %q", data)
	}
}

func TestOpenRunLog_EmptyDirDiscards(t *testing.T) {
	w, err := OpenRunLog("", "/cfg/a.cfg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := io.WriteString(w, "dropped"); err != nil {
		t.Errorf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestFromContextOr(t *testing.T) {
	fallback := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := FromContextOr(context.Background(), fallback); got != fallback {
		t.Error("expected fallback logger")
	}

	own := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := WithLogger(context.Background(), own)
	if got := FromContextOr(ctx, fallback); got != own {
		t.Error("expected logger from context")
	}
}

func TestNewLogger_KeepsDefault(t *testing.T) {
	before := slog.Default()

	var buf strings.Builder
	logger := NewLogger(&buf)
	logger.Info("hello", "unit", "L1")

	if slog.Default() != before {
		t.Error("NewLogger must not replace the default logger")
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("output = %q", buf.String())
	}
}

// --- Metrics Tests ---

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.UnitsDispatched.WithLabelValues("qsub", "main").Inc()
	m.Runs.WithLabelValues("done").Inc()
	m.ObserveDEM(3 * time.Second)

	path := filepath.Join(t.TempDir(), "scops.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, want := range []string{
		`scops_units_dispatched_total{backend="qsub",kind="main"} 1`,
		`scops_runs_total{outcome="done"} 1`,
		"scops_dem_generation_seconds_count 1",
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("textfile missing %q:\n%s", want, data)
		}
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveDEM(time.Second)
	if err := m.WriteTextfile("/nonexistent/x.prom"); err != nil {
		t.Errorf("nil metrics must be a no-op, got %v", err)
	}
}
