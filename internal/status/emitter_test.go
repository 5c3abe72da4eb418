package status

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shaiso/scops/internal/domain"
	"github.com/shaiso/scops/internal/runconfig"
	"github.com/shaiso/scops/internal/tree"
)

type fakeStore struct {
	records []domain.StatusRecord
	failFor string
}

func (f *fakeStore) Insert(_ context.Context, rec domain.StatusRecord) error {
	if rec.UnitID == f.failFor {
		return errors.New("db unavailable")
	}
	f.records = append(f.records, rec)
	return nil
}

func newTree(t *testing.T) tree.OutputTree {
	t.Helper()
	b := tree.NewBuilder(t.TempDir())
	out, err := b.Ensure("GB16_00_2016_123", tree.NameParts{})
	if err != nil {
		t.Fatalf("ensure tree: %v", err)
	}
	return out
}

func readStatus(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// --- Emit Tests ---

func TestEmit_MainLineOnly(t *testing.T) {
	out := newTree(t)
	store := &fakeStore{}
	e := NewEmitter(store, "https://example.com/{run}/{unit}?p={project}", nil)

	cfg := &runconfig.RunConfig{
		ProjectCode: "GB16_00",
		Units:       []runconfig.UnitSpec{{Name: "L1", Process: true}},
	}

	res, err := e.Emit(context.Background(), cfg, out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := readStatus(t, out.StatusFile("L1")); got != "L1 = waiting" {
		t.Errorf("status = %q", got)
	}
	if !exists(out.LogFile("L1")) {
		t.Error("log file must be created for a waiting unit")
	}
	if len(store.records) != 1 {
		t.Fatalf("records = %d, want 1", len(store.records))
	}

	rec := store.records[0]
	if rec.RunID != "GB16_00_2016_123" || rec.UnitID != "L1" || rec.State != domain.RecordStateWaiting {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.Link != "https://example.com/GB16_00_2016_123/L1?p=GB16_00" {
		t.Errorf("link = %q", rec.Link)
	}
	if rec.Stage != 0 || rec.Progress != 0 || rec.Filesize != 0 || rec.Bands != 0 {
		t.Errorf("counters must be zero: %+v", rec)
	}
	if len(res.Waiting) != 1 || res.Waiting[0] != "L1" {
		t.Errorf("waiting = %v", res.Waiting)
	}
}

func TestEmit_ExtensionOnly(t *testing.T) {
	out := newTree(t)
	store := &fakeStore{}
	e := NewEmitter(store, "", nil)

	cfg := &runconfig.RunConfig{
		ProjectCode: "GB16_00",
		Extensions:  []string{"eq_ratio"},
		Units: []runconfig.UnitSpec{{
			Name:    "L1",
			Process: false,
			Toggles: map[string]bool{"eq_ratio": true},
		}},
	}

	res, err := e.Emit(context.Background(), cfg, out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := readStatus(t, out.StatusFile("L1")); got != "L1 = not processing" {
		t.Errorf("L1 status = %q", got)
	}
	if exists(out.LogFile("L1")) {
		t.Error("no log file for a unit that does not run")
	}
	if got := readStatus(t, out.StatusFile("L1_ratio")); got != "L1_ratio = waiting" {
		t.Errorf("L1_ratio status = %q", got)
	}
	if !exists(out.LogFile("L1_ratio")) {
		t.Error("extension log file must exist")
	}
	if len(store.records) != 1 || store.records[0].UnitID != "L1_ratio" {
		t.Errorf("records = %+v, want only L1_ratio", store.records)
	}
	if len(res.Files) != 2 {
		t.Errorf("files = %v", res.Files)
	}
}

func TestEmit_StoreFailureIsolated(t *testing.T) {
	out := newTree(t)
	store := &fakeStore{failFor: "L1"}
	e := NewEmitter(store, "", nil)

	cfg := &runconfig.RunConfig{
		Units: []runconfig.UnitSpec{
			{Name: "L1", Process: true},
			{Name: "L2", Process: true},
		},
	}

	res, err := e.Emit(context.Background(), cfg, out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := res.StoreFailures["L1"]; !ok {
		t.Error("L1 failure must be reported")
	}
	if len(store.records) != 1 || store.records[0].UnitID != "L2" {
		t.Errorf("records = %+v, want L2", store.records)
	}
	if readStatus(t, out.StatusFile("L1")) != "L1 = waiting" {
		t.Error("status file must still be written")
	}
}

func TestEmit_KeepsExistingLog(t *testing.T) {
	out := newTree(t)
	if err := os.WriteFile(out.LogFile("L1"), []byte("previous output\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	cfg := &runconfig.RunConfig{Units: []runconfig.UnitSpec{{Name: "L1", Process: true}}}
	if _, err := NewEmitter(&fakeStore{}, "", nil).Emit(context.Background(), cfg, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := readStatus(t, out.LogFile("L1")); got != "previous output\n" {
		t.Errorf("log truncated: %q", got)
	}
}

func TestEmit_MissingTree(t *testing.T) {
	out := tree.OutputTree{Root: filepath.Join(t.TempDir(), "absent")}
	cfg := &runconfig.RunConfig{Units: []runconfig.UnitSpec{{Name: "L1", Process: true}}}

	if _, err := NewEmitter(&fakeStore{}, "", nil).Emit(context.Background(), cfg, out); err == nil {
		t.Error("expected error for missing status directory")
	}
}

func TestLink(t *testing.T) {
	got := Link("{run}/{unit}/{project}", "R", "L1_ratio", "P")
	if got != "R/L1_ratio/P" {
		t.Errorf("Link = %q", got)
	}
	if Link("", "R", "U", "P") != "" {
		t.Error("empty template must give empty link")
	}
}
