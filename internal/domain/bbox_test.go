package domain

import "testing"

func TestBoundingBox_Contains(t *testing.T) {
	dem := BoundingBox{MinX: 0, MaxX: 100, MinY: 0, MaxY: 100}

	tests := []struct {
		name  string
		inner BoundingBox
		want  bool
	}{
		{"strictly inside", BoundingBox{10, 90, 10, 90}, true},
		{"equal edges", BoundingBox{0, 100, 0, 100}, true},
		{"west edge outside", BoundingBox{-1, 90, 10, 90}, false},
		{"east edge outside", BoundingBox{10, 101, 10, 90}, false},
		{"south edge outside", BoundingBox{10, 90, -0.5, 90}, false},
		{"north edge outside", BoundingBox{10, 90, 10, 100.1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dem.Contains(tt.inner); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.inner, got, tt.want)
			}
		})
	}
}

func TestPhase_IsTerminal(t *testing.T) {
	for _, p := range []Phase{PhaseNew, PhaseTreeReady, PhaseDatasetReady, PhaseStatusEmitted, PhaseDispatched} {
		if p.IsTerminal() {
			t.Errorf("%s should not be terminal", p)
		}
	}
	if !PhaseDone.IsTerminal() || !PhaseErrored.IsTerminal() {
		t.Error("DONE and ERRORED should be terminal")
	}
}
