package backend

import (
	"fmt"
	"log/slog"
	"sort"

	"k8s.io/client-go/kubernetes"

	"github.com/shaiso/scops/internal/command"
	"github.com/shaiso/scops/internal/mq"
	"github.com/shaiso/scops/internal/settings"
)

// Deps — зависимости для построения backend'а.
// Sender и Kube нужны только amqp и k8s соответственно.
type Deps struct {
	Settings settings.Settings
	Runner   command.Runner
	Sender   mq.Sender
	Kube     kubernetes.Interface
	Logger   *slog.Logger
}

// Factory строит backend из зависимостей.
type Factory func(deps Deps) (Backend, error)

// Registry — реестр backend'ов по имени.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry создаёт реестр со всеми встроенными backend'ами.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(KindLocal, newLocalFromDeps)
	r.Register(KindQsub, func(d Deps) (Backend, error) {
		return NewGrid(Qsub, d.Settings.Qsub, d.Settings.Processor.Command, d.Runner, d.Logger)
	})
	r.Register(KindBsub, func(d Deps) (Backend, error) {
		return NewGrid(Bsub, d.Settings.Bsub, d.Settings.Processor.Command, d.Runner, d.Logger)
	})
	r.Register(KindAMQP, func(d Deps) (Backend, error) {
		return NewAMQP(d.Sender)
	})
	r.Register(KindK8s, func(d Deps) (Backend, error) {
		return NewKubernetes(d.Kube, d.Settings.K8s, d.Settings.Processor.Command)
	})
	return r
}

// Register добавляет backend.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Names возвращает зарегистрированные имена по алфавиту.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New строит backend по имени.
func (r *Registry) New(name string, deps Deps) (Backend, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, name)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Runner == nil {
		deps.Runner = command.Exec{}
	}
	return f(deps)
}

// New строит встроенный backend по имени.
func New(name string, deps Deps) (Backend, error) {
	return NewRegistry().New(name, deps)
}
