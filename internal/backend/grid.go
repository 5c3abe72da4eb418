package backend

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/shaiso/scops/internal/command"
	"github.com/shaiso/scops/internal/settings"
	"github.com/shaiso/scops/internal/telemetry"
)

const gib = 1 << 30

// Scheduler — диалект командной строки grid-планировщика.
type Scheduler struct {
	Kind string

	// Args строит аргументы постановки (без самой команды обработчика).
	Args func(g settings.GridSettings, job string, memGB int, logFile string) []string

	// JobID извлекает идентификатор задачи из ответа планировщика.
	JobID *regexp.Regexp
}

// Qsub — Grid Engine.
//
//	Your job 4242 ("run_L1") has been submitted
var Qsub = Scheduler{
	Kind: KindQsub,
	Args: func(g settings.GridSettings, job string, memGB int, logFile string) []string {
		args := []string{"-N", job, "-l", fmt.Sprintf("h_vmem=%dG", memGB), "-o", logFile, "-j", "y", "-b", "y"}
		if g.Queue != "" {
			args = append(args, "-q", g.Queue)
		}
		if g.Project != "" {
			args = append(args, "-P", g.Project)
		}
		return args
	},
	JobID: regexp.MustCompile(`Your job(?:-array)? (\d+)`),
}

// Bsub — LSF.
//
//	Job <4242> is submitted to queue <normal>.
var Bsub = Scheduler{
	Kind: KindBsub,
	Args: func(g settings.GridSettings, job string, memGB int, logFile string) []string {
		memMB := memGB * 1024
		args := []string{
			"-J", job,
			"-M", strconv.Itoa(memMB),
			"-R", fmt.Sprintf("rusage[mem=%d]", memMB),
			"-o", logFile,
			"-e", logFile,
		}
		if g.Queue != "" {
			args = append(args, "-q", g.Queue)
		}
		if g.Project != "" {
			args = append(args, "-P", g.Project)
		}
		return args
	},
	JobID: regexp.MustCompile(`Job <(\d+)>`),
}

// Grid ставит units в очередь grid-планировщика.
type Grid struct {
	scheduler Scheduler
	settings  settings.GridSettings
	processor []string
	runner    command.Runner
	logger    *slog.Logger
}

// NewGrid создаёт Grid backend.
func NewGrid(s Scheduler, gs settings.GridSettings, processor []string, runner command.Runner, logger *slog.Logger) (*Grid, error) {
	if _, _, err := command.Split(processor); err != nil {
		return nil, fmt.Errorf("%s processor: %w", s.Kind, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if gs.Binary == "" {
		gs.Binary = s.Kind
	}
	return &Grid{scheduler: s, settings: gs, processor: processor, runner: runner, logger: logger}, nil
}

// Kind возвращает имя backend'а.
func (g *Grid) Kind() string { return g.scheduler.Kind }

// MemoryGB — запрос памяти для линии: распакованный размер с запасом в 1 GiB,
// но не меньше минимума.
func MemoryGB(sizeHint int64, minGB int) int {
	need := 0
	if sizeHint > 0 {
		need = int((sizeHint+gib-1)/gib) + 1
	}
	return max(need, minGB, 1)
}

// Command возвращает полную командную строку постановки.
func (g *Grid) Command(s Submission) []string {
	mem := MemoryGB(s.SizeHint, g.settings.MinMemGB)

	args := g.scheduler.Args(g.settings, s.JobName(), mem, s.LogFile())
	args = append(args, g.settings.ExtraArgs...)
	args = append(args, g.processor...)
	args = append(args, processorArgs(s)...)
	return append([]string{g.settings.Binary}, args...)
}

// Submit ставит unit в очередь и возвращает идентификатор задачи планировщика.
func (g *Grid) Submit(ctx context.Context, s Submission) (Handle, error) {
	cmd := g.Command(s)

	log := telemetry.FromContextOr(ctx, g.logger)
	log.Info("submitting to grid",
		"backend", g.scheduler.Kind,
		"unit", s.Unit.Line,
		"job", s.JobName(),
		"size_hint", s.SizeHint,
	)

	out, err := g.runner.Run(ctx, cmd[0], cmd[1:]...)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %s: %w", ErrSubmissionFailed, s.Unit.Line, err)
	}

	m := g.scheduler.JobID.FindStringSubmatch(string(out))
	if m == nil {
		return Handle{}, fmt.Errorf("%w: %s: no job id in %q", ErrSubmissionFailed, s.Unit.Line, strings.TrimSpace(string(out)))
	}

	log.Info("job queued", "unit", s.Unit.Line, "job_id", m[1])
	return newHandle(g.scheduler.Kind, s, m[1]), nil
}
