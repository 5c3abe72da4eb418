package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrInvalidRecord — запись не содержит ключевых полей.
	ErrInvalidRecord = errors.New("invalid record")
)
