package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/shaiso/scops/internal/command"
	"github.com/shaiso/scops/internal/telemetry"
)

// Local запускает обработчик линии синхронно.
// Вывод обработчика дописывается в лог unit.
type Local struct {
	name   string
	args   []string
	runner command.Runner
	logger *slog.Logger
}

// NewLocal создаёт Local backend.
func NewLocal(processor []string, runner command.Runner, logger *slog.Logger) (*Local, error) {
	name, args, err := command.Split(processor)
	if err != nil {
		return nil, fmt.Errorf("local processor: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{name: name, args: args, runner: runner, logger: logger}, nil
}

func newLocalFromDeps(d Deps) (Backend, error) {
	return NewLocal(d.Settings.Processor.Command, d.Runner, d.Logger)
}

// Kind возвращает имя backend'а.
func (l *Local) Kind() string { return KindLocal }

// Submit выполняет unit и возвращает управление после завершения обработки.
func (l *Local) Submit(ctx context.Context, s Submission) (Handle, error) {
	args := append(append([]string(nil), l.args...), processorArgs(s)...)

	log := telemetry.FromContextOr(ctx, l.logger)
	log.Info("processing locally", "unit", s.Unit.Line, "main", s.Unit.RunMain, "extension", s.Unit.RunExtension)

	out, err := l.runner.Run(ctx, l.name, args...)
	if appendErr := appendLog(s.LogFile(), out); appendErr != nil {
		log.Warn("failed to append processor output", "unit", s.Unit.Line, "error", appendErr)
	}
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %s: %w", ErrSubmissionFailed, s.Unit.Line, err)
	}

	return newHandle(KindLocal, s, fmt.Sprintf("local:%s", s.Unit.Line)), nil
}

func appendLog(path string, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o664)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
