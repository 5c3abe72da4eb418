package orchestrator

import (
	"sort"
	"sync"

	"github.com/shaiso/scops/internal/backend"
	"github.com/shaiso/scops/internal/dem"
	"github.com/shaiso/scops/internal/domain"
)

// Причины, по которым run пропущен без работы.
const (
	SkipHasError  = "has_error"
	SkipSubmitted = "submitted"
)

// Report — итог одного вызова Run.
type Report struct {
	ConfigPath string
	RunID      string
	Output     string

	// Phase — последняя достигнутая фаза.
	Phase domain.Phase

	// Skipped — причина no-op ("" если run обработан).
	Skipped string

	// NewLocation — дерево создано этим вызовом.
	NewLocation bool

	Dataset dem.Dataset

	// Notified — отправлено уведомление о принятии.
	Notified bool

	Handles  []backend.Handle
	Failures map[string]error
}

// FailedUnits возвращает units с ошибкой отправки по алфавиту.
func (r *Report) FailedUnits() []string {
	units := make([]string, 0, len(r.Failures))
	for u := range r.Failures {
		units = append(units, u)
	}
	sort.Strings(units)
	return units
}

// dispatchState собирает результаты параллельной отправки.
type dispatchState struct {
	mu       sync.Mutex
	handles  []backend.Handle
	failures map[string]error
}

func newDispatchState() *dispatchState {
	return &dispatchState{failures: make(map[string]error)}
}

func (s *dispatchState) succeeded(h backend.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles = append(s.handles, h)
}

func (s *dispatchState) failed(unit string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[unit] = err
}

// apply переносит результаты в отчёт. Handles упорядочены по unit.
func (s *dispatchState) apply(r *Report) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sort.Slice(s.handles, func(i, j int) bool {
		return s.handles[i].UnitID < s.handles[j].UnitID
	})
	r.Handles = s.handles
	r.Failures = s.failures
}
