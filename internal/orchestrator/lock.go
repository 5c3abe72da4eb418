package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const defaultLockPoll = 200 * time.Millisecond

// FileLock — эксклюзивная flock-блокировка документа конфигурации.
type FileLock struct {
	f *os.File
}

// LockPath — путь файла блокировки документа.
func LockPath(configPath string) string {
	return configPath + ".lock"
}

// AcquireLock берёт блокировку <config>.lock, повторяя неблокирующие
// попытки до отмены ctx. Файл блокировки не удаляется.
func AcquireLock(ctx context.Context, configPath string, poll time.Duration) (*FileLock, error) {
	if poll <= 0 {
		poll = defaultLockPoll
	}

	f, err := os.OpenFile(LockPath(configPath), os.O_CREATE|os.O_RDWR, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &FileLock{f: f}, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			f.Close()
			return nil, fmt.Errorf("flock: %w", err)
		}

		select {
		case <-ctx.Done():
			f.Close()
			return nil, fmt.Errorf("%w: %s", ErrLocked, configPath)
		case <-ticker.C:
		}
	}
}

// Release снимает блокировку. Повторный вызов безопасен.
func (l *FileLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil

	unlockErr := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	closeErr := f.Close()
	return errors.Join(unlockErr, closeErr)
}
