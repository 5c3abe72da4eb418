package command

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestExec_Success(t *testing.T) {
	out, err := Exec{}.Run(context.Background(), "sh", "-c", "echo hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(string(out)) != "hello" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestExec_Failure(t *testing.T) {
	_, err := Exec{}.Run(context.Background(), "sh", "-c", "echo boom >&2; exit 3")
	if !errors.Is(err, ErrFailed) {
		t.Fatalf("expected ErrFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("error should carry stderr, got %v", err)
	}
}

func TestExec_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := Exec{}.Run(ctx, "sleep", "5")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestSplit(t *testing.T) {
	name, args, err := Split([]string{"qsub", "-V"})
	if err != nil || name != "qsub" || len(args) != 1 {
		t.Errorf("unexpected split: %s %v %v", name, args, err)
	}
	if _, _, err := Split(nil); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}
