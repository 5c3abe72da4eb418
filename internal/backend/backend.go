package backend

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/scops/internal/domain"
	"github.com/shaiso/scops/internal/tree"
)

// Имена backend'ов.
const (
	KindLocal = "local"
	KindQsub  = "qsub"
	KindBsub  = "bsub"
	KindAMQP  = "amqp"
	KindK8s   = "k8s"
)

// Submission — всё, что нужно backend'у для отправки одного unit.
type Submission struct {
	ConfigPath string
	Unit       domain.WorkUnit
	Tree       tree.OutputTree

	// SizeHint — распакованный размер линии в байтах, 0 если неизвестен.
	SizeHint int64
}

// JobName — имя задачи в планировщике: <run>_<line>.
func (s Submission) JobName() string {
	return s.Tree.RunID() + "_" + s.Unit.Line
}

// LogFile — лог, в который пишет задача: лог основной линии,
// а если она не обрабатывается, лог первого расширения.
func (s Submission) LogFile() string {
	if !s.Unit.RunMain && len(s.Unit.Extensions) > 0 {
		return s.Tree.LogFile(s.Unit.Extensions[0])
	}
	return s.Tree.LogFile(s.Unit.Line)
}

// Handle — результат принятой отправки. Для драйвера непрозрачен.
type Handle struct {
	ID          uuid.UUID
	Kind        string
	UnitID      string
	JobRef      string
	SubmittedAt time.Time
}

func newHandle(kind string, s Submission, jobRef string) Handle {
	return Handle{
		ID:          uuid.New(),
		Kind:        kind,
		UnitID:      s.Unit.Line,
		JobRef:      jobRef,
		SubmittedAt: time.Now(),
	}
}

// Backend — способ выполнения units.
type Backend interface {
	Kind() string
	Submit(ctx context.Context, s Submission) (Handle, error)
}

// processorArgs — аргументы обработчика линии:
//
//	--config C --line L --output O [--main] [--extension]
func processorArgs(s Submission) []string {
	args := []string{
		"--config", s.ConfigPath,
		"--line", s.Unit.Line,
		"--output", s.Tree.Root,
	}
	if s.Unit.RunMain {
		args = append(args, "--main")
	}
	if s.Unit.RunExtension {
		args = append(args, "--extension")
	}
	return args
}
