// Package command запускает внешние утилиты с ограничением по времени.
//
// Через него работают генератор DEM, чтение границ и отправка в qsub/bsub:
// все они — внешние программы, и ни одна не должна подвесить run.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Ошибки запуска команд.
var (
	// ErrTimeout — команда не завершилась до дедлайна контекста.
	ErrTimeout = errors.New("command timeout")

	// ErrFailed — команда завершилась с ненулевым кодом.
	ErrFailed = errors.New("command failed")

	// ErrNotConfigured — команда не задана в настройках.
	ErrNotConfigured = errors.New("command not configured")
)

// Runner запускает команду и возвращает её stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Exec — Runner поверх os/exec.
type Exec struct {
	// Dir — рабочий каталог (пусто — текущий).
	Dir string
	// Env — дополнительные переменные окружения KEY=VALUE.
	Env []string
}

// Run выполняет команду. Дедлайн ctx превращается в ErrTimeout,
// ненулевой код выхода — в ErrFailed с хвостом stderr.
func (e Exec) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = e.Dir
	if len(e.Env) > 0 {
		cmd.Env = append(cmd.Environ(), e.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, name)
		}
		return nil, ctxErr
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v: %s", ErrFailed, name, err, tail(stderr.String(), 512))
	}
	return stdout.Bytes(), nil
}

// Split разделяет настроенную команду на программу и аргументы.
func Split(command []string) (string, []string, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return "", nil, ErrNotConfigured
	}
	return command[0], append([]string(nil), command[1:]...), nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
