package backend

import (
	"errors"

	"github.com/shaiso/scops/internal/command"
)

var (
	// ErrUnsupportedBackend — неизвестное имя backend'а.
	ErrUnsupportedBackend = errors.New("unsupported backend")

	// ErrSubmissionFailed — backend не принял unit.
	ErrSubmissionFailed = errors.New("submission failed")

	// ErrMissingDependency — для backend'а не передана нужная зависимость.
	ErrMissingDependency = errors.New("backend dependency missing")

	// ErrTimeout — отправка не уложилась в отведённое время.
	ErrTimeout = command.ErrTimeout
)
