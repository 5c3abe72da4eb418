package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/scops/internal/backend"
	"github.com/shaiso/scops/internal/dem"
	"github.com/shaiso/scops/internal/domain"
	"github.com/shaiso/scops/internal/runconfig"
	"github.com/shaiso/scops/internal/status"
	"github.com/shaiso/scops/internal/telemetry"
	"github.com/shaiso/scops/internal/tree"
)

// --- Fakes ---

type fakeBackend struct {
	mu      sync.Mutex
	subs    []backend.Submission
	failFor map[string]bool
}

func (f *fakeBackend) Kind() string { return "fake" }

func (f *fakeBackend) Submit(_ context.Context, s backend.Submission) (backend.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[s.Unit.Line] {
		return backend.Handle{}, fmt.Errorf("%w: %s", backend.ErrSubmissionFailed, s.Unit.Line)
	}
	f.subs = append(f.subs, s)
	return backend.Handle{Kind: "fake", UnitID: s.Unit.Line, JobRef: "job-" + s.Unit.Line}, nil
}

func (f *fakeBackend) submissions() []backend.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.Submission(nil), f.subs...)
}

type fakeStore struct {
	mu      sync.Mutex
	records []domain.StatusRecord
}

func (f *fakeStore) Insert(_ context.Context, rec domain.StatusRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

type fakeNotifier struct {
	sent []domain.Notification
}

func (f *fakeNotifier) Send(_ context.Context, n domain.Notification) error {
	f.sent = append(f.sent, n)
	return nil
}

type fakeNav struct{ box domain.BoundingBox }

func (f fakeNav) NavigationBounds(context.Context, []string) (domain.BoundingBox, error) {
	return f.box, nil
}

type fakeBounds struct{ box domain.BoundingBox }

func (f fakeBounds) DatasetBounds(context.Context, string) (domain.BoundingBox, error) {
	return f.box, nil
}

type fakeGenerator struct{ calls int }

func (f *fakeGenerator) Generate(_ context.Context, output, _ string, _ []string) error {
	f.calls++
	return os.WriteFile(output, []byte("dem"), 0o644)
}

type fakeMirror struct{ files []string }

func (f *fakeMirror) Upload(_ context.Context, _ string, files []string) error {
	f.files = append(f.files, files...)
	return nil
}

// --- Fixture ---

type fixture struct {
	t        *testing.T
	base     string
	source   string
	demPath  string
	backend  *fakeBackend
	store    *fakeStore
	notifier *fakeNotifier
	gen      *fakeGenerator
	mirror   *fakeMirror
	navBox   domain.BoundingBox
	metrics  *telemetry.Metrics
	parallel int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	f := &fixture{
		t:        t,
		base:     filepath.Join(dir, "web"),
		source:   filepath.Join(dir, "source"),
		demPath:  filepath.Join(dir, "uploaded.dem"),
		backend:  &fakeBackend{failFor: map[string]bool{}},
		store:    &fakeStore{},
		notifier: &fakeNotifier{},
		gen:      &fakeGenerator{},
		mirror:   &fakeMirror{},
		navBox:   domain.BoundingBox{MinX: 10, MaxX: 20, MinY: 10, MaxY: 20},
		metrics:  telemetry.NewMetrics(),
		parallel: 1,
	}

	nav := filepath.Join(f.source, "delivery", "GB16_00-2016_123_hyperspectral", "flightlines", "navigation")
	mustMkdir(t, nav)
	mustMkdir(t, f.base)
	mustWrite(t, filepath.Join(nav, "f123011b_nav_post_processed.bil"), "nav")
	mustWrite(t, f.demPath, "dem")
	return f
}

func (f *fixture) orchestrator() *Orchestrator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	resolver := dem.New(dem.Config{
		Navigation: fakeNav{box: f.navBox},
		Bounds:     fakeBounds{box: domain.BoundingBox{MinX: 0, MaxX: 100, MinY: 0, MaxY: 100}},
		Generator:  f.gen,
		Notifier:   f.notifier,
		Persist:    runconfig.Persist,
		Logger:     logger,
	})

	return New(Config{
		Trees:        tree.NewBuilder(f.base),
		Resolver:     resolver,
		Emitter:      status.NewEmitter(f.store, "https://example.com/{run}/{unit}", logger),
		Backend:      f.backend,
		Notifier:     f.notifier,
		Mirror:       f.mirror,
		Metrics:      f.metrics,
		DeliveryGlob: "delivery/*hyperspectral*",
		Parallel:     f.parallel,
		LockPoll:     10 * time.Millisecond,
		Logger:       logger,
	})
}

// config пишет документ с общими полями и переданными дополнениями.
func (f *fixture) config(extra string) string {
	f.t.Helper()
	doc := fmt.Sprintf(`[DEFAULT]
julianday = 123
year = 2016
sortie = None
project_code = GB16_00
projection = UTM zone 30U
dem = upload
dem_name = %s
ftp_dem = true
email = user@example.com
sourcefolder = %s
has_error = False
submitted = False
status_email_sent = False
`, f.demPath, f.source) + extra

	path := filepath.Join(f.t.TempDir(), "GB16_00_2016_123.cfg")
	mustWrite(f.t, path, doc)
	return path
}

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func mustLoad(t *testing.T, path string) *runconfig.RunConfig {
	t.Helper()
	cfg, err := runconfig.Load(path)
	if err != nil {
		t.Fatalf("load %s: %v", path, err)
	}
	return cfg
}

func entries(t *testing.T, dir string) int {
	t.Helper()
	list, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	return len(list)
}

// --- Run Tests ---

func TestRun_SingleMainLine(t *testing.T) {
	f := newFixture(t)
	path := f.config("\n[L1]\nprocess = true\n")

	report, err := f.orchestrator().Run(context.Background(), Request{ConfigPath: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Phase != domain.PhaseDone || !report.NewLocation {
		t.Errorf("report = %+v", report)
	}

	if got := readFile(t, filepath.Join(report.Output, "status", "L1.txt")); got != "L1 = waiting" {
		t.Errorf("status = %q", got)
	}
	if len(f.store.records) != 1 || f.store.records[0].UnitID != "L1" {
		t.Errorf("records = %+v", f.store.records)
	}

	subs := f.backend.submissions()
	if len(subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(subs))
	}
	if subs[0].Unit.Line != "L1" || !subs[0].Unit.RunMain || subs[0].Unit.RunExtension {
		t.Errorf("unexpected unit %+v", subs[0].Unit)
	}

	cfg := mustLoad(t, path)
	if !cfg.Submitted || cfg.Restart || !cfg.StatusEmailSent || cfg.HasError {
		t.Errorf("flags: submitted=%v restart=%v email=%v has_error=%v",
			cfg.Submitted, cfg.Restart, cfg.StatusEmailSent, cfg.HasError)
	}
	if cfg.OutputFolder != report.Output || cfg.DEMName != f.demPath {
		t.Errorf("output_folder = %q, dem_name = %q", cfg.OutputFolder, cfg.DEMName)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].Reason != domain.ReasonAccepted {
		t.Errorf("notifications = %+v", f.notifier.sent)
	}
	if _, err := os.Lstat(filepath.Join(report.Output, "GB16_00_2016_123.cfg")); err != nil {
		t.Errorf("config symlink missing: %v", err)
	}
	if len(f.mirror.files) != 1 {
		t.Errorf("mirrored = %v", f.mirror.files)
	}
}

func TestRun_RequestLoggerReachesSteps(t *testing.T) {
	f := newFixture(t)
	path := f.config("\n[L1]\nprocess = true\n")

	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	report, err := f.orchestrator().Run(context.Background(), Request{ConfigPath: path, Logger: logger})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"dem ready", "status emitted", "run_id=" + report.RunID} {
		if !strings.Contains(out, want) {
			t.Errorf("config log missing %q:\n%s", want, out)
		}
	}
}

func TestRun_SecondInvocationIsNoop(t *testing.T) {
	f := newFixture(t)
	path := f.config("\n[L1]\nprocess = true\n")
	o := f.orchestrator()

	if _, err := o.Run(context.Background(), Request{ConfigPath: path}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	dirs := entries(t, f.base)

	report, err := o.Run(context.Background(), Request{ConfigPath: path})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.Skipped != SkipSubmitted {
		t.Errorf("skipped = %q, want %q", report.Skipped, SkipSubmitted)
	}
	if entries(t, f.base) != dirs {
		t.Error("second run must not create directories")
	}
	if len(f.backend.submissions()) != 1 || len(f.store.records) != 1 {
		t.Errorf("duplicates: submissions=%d records=%d", len(f.backend.submissions()), len(f.store.records))
	}
}

func TestRun_HasErrorOnEntry(t *testing.T) {
	f := newFixture(t)
	path := f.config("\n[L1]\nprocess = true\n")
	cfg := mustLoad(t, path)
	cfg.HasError = true
	if err := runconfig.Persist(cfg); err != nil {
		t.Fatalf("persist: %v", err)
	}

	report, err := f.orchestrator().Run(context.Background(), Request{ConfigPath: path})
	if err != nil {
		t.Fatalf("has_error must be a clean no-op, got %v", err)
	}
	if report.Skipped != SkipHasError || report.Phase != domain.PhaseErrored {
		t.Errorf("report = %+v", report)
	}
	if len(f.backend.submissions()) != 0 {
		t.Error("no backend calls expected")
	}
	if entries(t, f.base) != 0 {
		t.Error("no output tree expected")
	}
}

func TestRun_ExtensionOnly(t *testing.T) {
	f := newFixture(t)
	path := f.config("\n[L1]\nprocess = false\neq_ratio = true\n")

	report, err := f.orchestrator().Run(context.Background(), Request{ConfigPath: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := readFile(t, filepath.Join(report.Output, "status", "L1.txt")); got != "L1 = not processing" {
		t.Errorf("L1 status = %q", got)
	}
	if _, err := os.Stat(filepath.Join(report.Output, "log", "L1.log")); !os.IsNotExist(err) {
		t.Error("L1 must have no log file")
	}
	if got := readFile(t, filepath.Join(report.Output, "status", "L1_ratio.txt")); got != "L1_ratio = waiting" {
		t.Errorf("L1_ratio status = %q", got)
	}
	if len(f.store.records) != 1 || f.store.records[0].UnitID != "L1_ratio" {
		t.Errorf("records = %+v", f.store.records)
	}

	subs := f.backend.submissions()
	if len(subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(subs))
	}
	if subs[0].Unit.Line != "L1" || subs[0].Unit.RunMain || !subs[0].Unit.RunExtension {
		t.Errorf("unexpected unit %+v", subs[0].Unit)
	}
}

func TestRun_PromisedDatasetMissing(t *testing.T) {
	f := newFixture(t)
	path := f.config("\n[L1]\nprocess = true\n")
	if err := os.Remove(f.demPath); err != nil {
		t.Fatalf("remove dem: %v", err)
	}

	report, err := f.orchestrator().Run(context.Background(), Request{ConfigPath: path})
	if !errors.Is(err, dem.ErrMissingDataset) {
		t.Fatalf("expected ErrMissingDataset, got %v", err)
	}
	if report.Phase != domain.PhaseErrored {
		t.Errorf("phase = %s", report.Phase)
	}
	if len(f.backend.submissions()) != 0 || len(f.store.records) != 0 {
		t.Error("nothing may be emitted or submitted")
	}
	if f.gen.calls != 0 {
		t.Error("no substitute DEM may be generated")
	}

	cfg := mustLoad(t, path)
	if !cfg.HasError || cfg.Submitted {
		t.Errorf("has_error = %v, submitted = %v", cfg.HasError, cfg.Submitted)
	}

	// следующий вызов замыкается на has_error
	report, err = f.orchestrator().Run(context.Background(), Request{ConfigPath: path})
	if err != nil || report.Skipped != SkipHasError {
		t.Errorf("second run: %v, %+v", err, report)
	}
}

func TestRun_CoverageFailure(t *testing.T) {
	f := newFixture(t)
	f.navBox = domain.BoundingBox{MinX: 10, MaxX: 150, MinY: 10, MaxY: 20}
	path := f.config("\n[L1]\nprocess = true\n")

	_, err := f.orchestrator().Run(context.Background(), Request{ConfigPath: path})
	if !errors.Is(err, dem.ErrDatasetCoverage) {
		t.Fatalf("expected ErrDatasetCoverage, got %v", err)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].Reason != domain.ReasonDEMCoverage {
		t.Errorf("notifications = %+v", f.notifier.sent)
	}
	if len(f.backend.submissions()) != 0 {
		t.Error("no submissions expected")
	}
	if !mustLoad(t, path).HasError {
		t.Error("has_error must be persisted")
	}
}

func TestRun_GeneratesDataset(t *testing.T) {
	f := newFixture(t)
	path := f.config("\n[L1]\nprocess = true\n")
	data := strings.Replace(readFile(t, path), "dem = upload", "dem = mosaic_nextmap", 1)
	data = strings.Replace(data, "ftp_dem = true", "ftp_dem = false", 1)
	data = strings.Replace(data, "dem_name = "+f.demPath, "dem_name = ", 1)
	mustWrite(t, path, data)

	report, err := f.orchestrator().Run(context.Background(), Request{ConfigPath: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.gen.calls != 1 || !report.Dataset.Generated {
		t.Errorf("generator calls = %d, dataset = %+v", f.gen.calls, report.Dataset)
	}
	want := filepath.Join(report.Output, "dem", "GB16_00_2016_123_UTM_zone_30U.dem")
	if got := mustLoad(t, path).DEMName; got != want {
		t.Errorf("dem_name = %q, want %q", got, want)
	}
}

func TestRun_UnitFailureIsolated(t *testing.T) {
	f := newFixture(t)
	f.backend.failFor["L1"] = true
	f.parallel = 2
	path := f.config("\n[L1]\nprocess = true\n\n[L2]\nprocess = true\n\n[L3]\nprocess = false\n")

	report, err := f.orchestrator().Run(context.Background(), Request{ConfigPath: path})
	if !errors.Is(err, ErrUnitsFailed) {
		t.Fatalf("expected ErrUnitsFailed, got %v", err)
	}
	if got := report.FailedUnits(); len(got) != 1 || got[0] != "L1" {
		t.Errorf("failed = %v", got)
	}
	if len(report.Handles) != 1 || report.Handles[0].UnitID != "L2" {
		t.Errorf("handles = %+v", report.Handles)
	}

	cfg := mustLoad(t, path)
	if cfg.HasError || !cfg.Submitted {
		t.Errorf("unit failures must not set has_error: has_error=%v submitted=%v", cfg.HasError, cfg.Submitted)
	}
}

func TestRun_ParallelDispatch(t *testing.T) {
	f := newFixture(t)
	f.parallel = 3
	var doc strings.Builder
	for i := 1; i <= 6; i++ {
		fmt.Fprintf(&doc, "\n[L%d]\nprocess = true\n", i)
	}
	path := f.config(doc.String())

	report, err := f.orchestrator().Run(context.Background(), Request{ConfigPath: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Handles) != 6 {
		t.Errorf("handles = %d, want 6", len(report.Handles))
	}
	if report.Handles[0].UnitID != "L1" || report.Handles[5].UnitID != "L6" {
		t.Errorf("handles must be ordered by unit: %+v", report.Handles)
	}
}

func TestRun_ExistingOutputAlreadyNotified(t *testing.T) {
	f := newFixture(t)
	existing := filepath.Join(f.base, "GB16_00_2016_12320160101000000")
	mustMkdir(t, existing)
	path := f.config("output_folder = " + existing + "\n\n[L1]\nprocess = true\n")
	data := strings.Replace(readFile(t, path), "status_email_sent = False", "status_email_sent = True", 1)
	mustWrite(t, path, data)

	report, err := f.orchestrator().Run(context.Background(), Request{ConfigPath: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Output != existing || report.NewLocation {
		t.Errorf("output = %q, new = %v", report.Output, report.NewLocation)
	}
	if len(f.notifier.sent) != 0 || report.Notified {
		t.Errorf("no acceptance email expected, got %+v", f.notifier.sent)
	}
	if _, err := os.Stat(filepath.Join(existing, "status")); err != nil {
		t.Errorf("subfolders must be completed: %v", err)
	}
}

func TestRun_ForcedOutput(t *testing.T) {
	f := newFixture(t)
	forced := filepath.Join(f.base, "forced_run")
	path := f.config("\n[L1]\nprocess = true\n")

	report, err := f.orchestrator().Run(context.Background(), Request{ConfigPath: path, Output: forced})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Output != forced || report.RunID != "forced_run" {
		t.Errorf("output = %q, run id = %q", report.Output, report.RunID)
	}
	if f.store.records[0].RunID != "forced_run" {
		t.Errorf("record run id = %q", f.store.records[0].RunID)
	}
}

func TestRun_NoSourceFolder(t *testing.T) {
	f := newFixture(t)
	path := f.config("\n[L1]\nprocess = true\n")
	data := strings.Replace(readFile(t, path), "sourcefolder = "+f.source, "sourcefolder =", 1)
	mustWrite(t, path, data)

	if _, err := f.orchestrator().Run(context.Background(), Request{ConfigPath: path}); !errors.Is(err, ErrNoSourceFolder) {
		t.Errorf("expected ErrNoSourceFolder, got %v", err)
	}
	if mustLoad(t, path).HasError {
		t.Error("missing source folder is not a dataset failure")
	}
}

func TestRun_MalformedConfig(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "broken.cfg")
	mustWrite(t, path, "[DEFAULT]\nyear = 2016\n")

	if _, err := f.orchestrator().Run(context.Background(), Request{ConfigPath: path}); !errors.Is(err, runconfig.ErrMalformedConfig) {
		t.Errorf("expected ErrMalformedConfig, got %v", err)
	}
}

func TestRun_Locked(t *testing.T) {
	f := newFixture(t)
	path := f.config("\n[L1]\nprocess = true\n")

	held, err := AcquireLock(context.Background(), path, 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := f.orchestrator().Run(ctx, Request{ConfigPath: path}); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if len(f.backend.submissions()) != 0 {
		t.Error("locked run must not submit")
	}
}

// --- Lock Tests ---

func TestFileLock_ReleaseAllowsReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.cfg")

	l, err := AcquireLock(context.Background(), path, 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second release must be a no-op: %v", err)
	}

	l2, err := AcquireLock(context.Background(), path, 0)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	l2.Release()
}
