package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrLocked — документ обрабатывается другим процессом.
	ErrLocked = errors.New("config is locked by another run")

	// ErrNoSourceFolder — в документе не указан sourcefolder.
	ErrNoSourceFolder = errors.New("source folder not specified")

	// ErrUnitsFailed — часть units не удалось отправить.
	// Остальные units отправлены, has_error не выставляется.
	ErrUnitsFailed = errors.New("some units failed to submit")
)
