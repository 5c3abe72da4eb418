package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/shaiso/scops/internal/domain"
	"github.com/shaiso/scops/internal/mq"
	"github.com/shaiso/scops/internal/settings"
	"github.com/shaiso/scops/internal/tree"
)

// --- Fakes ---

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	out   string
	err   error
	calls []call
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	return []byte(f.out), f.err
}

type fakeSender struct {
	exchange mq.Exchange
	key      mq.RoutingKey
	msgs     []*mq.Message
	err      error
}

func (f *fakeSender) Publish(_ context.Context, exchange mq.Exchange, key mq.RoutingKey, msg *mq.Message) error {
	if f.err != nil {
		return f.err
	}
	f.exchange = exchange
	f.key = key
	f.msgs = append(f.msgs, msg)
	return nil
}

func submission(t *testing.T, unit domain.WorkUnit) Submission {
	t.Helper()
	root := filepath.Join(t.TempDir(), "GB16_00_2016_123")
	if err := os.MkdirAll(filepath.Join(root, tree.LogDir), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return Submission{
		ConfigPath: "/configs/GB16_00_2016_123.cfg",
		Unit:       unit,
		Tree:       tree.OutputTree{Root: root},
	}
}

func testSettings() settings.Settings {
	s := settings.Default()
	s.Processor.Command = []string{"process_line", "--verbose"}
	s.K8s.Image = "registry.example.com/scops/processor:1.0"
	s.K8s.Namespace = "scops"
	return s
}

// --- Registry Tests ---

func TestNew_Unsupported(t *testing.T) {
	_, err := New("slurm", Deps{Settings: testSettings()})
	if !errors.Is(err, ErrUnsupportedBackend) {
		t.Fatalf("expected ErrUnsupportedBackend, got %v", err)
	}
}

func TestNew_Builtins(t *testing.T) {
	deps := Deps{
		Settings: testSettings(),
		Runner:   &fakeRunner{},
		Sender:   &fakeSender{},
		Kube:     fake.NewSimpleClientset(),
	}
	for _, name := range []string{KindLocal, KindQsub, KindBsub, KindAMQP, KindK8s} {
		b, err := New(name, deps)
		if err != nil {
			t.Fatalf("New(%s): %v", name, err)
		}
		if b.Kind() != name {
			t.Errorf("Kind() = %s, want %s", b.Kind(), name)
		}
	}
}

func TestNew_MissingDependency(t *testing.T) {
	if _, err := New(KindAMQP, Deps{Settings: testSettings()}); !errors.Is(err, ErrMissingDependency) {
		t.Errorf("amqp without sender: %v", err)
	}
	if _, err := New(KindK8s, Deps{Settings: testSettings()}); !errors.Is(err, ErrMissingDependency) {
		t.Errorf("k8s without client: %v", err)
	}
}

func TestRegistry_Names(t *testing.T) {
	got := strings.Join(NewRegistry().Names(), ",")
	if got != "amqp,bsub,k8s,local,qsub" {
		t.Errorf("Names() = %s", got)
	}
}

// --- Local Tests ---

func TestLocal_Submit(t *testing.T) {
	r := &fakeRunner{out: "line processed\n"}
	b, err := NewLocal([]string{"process_line"}, r, discardLogger())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	s := submission(t, domain.WorkUnit{Line: "L1", RunMain: true})
	h, err := b.Submit(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Kind != KindLocal || h.UnitID != "L1" || h.ID == uuid.Nil {
		t.Errorf("unexpected handle %+v", h)
	}

	want := "--config /configs/GB16_00_2016_123.cfg --line L1 --output " + s.Tree.Root + " --main"
	if got := strings.Join(r.calls[0].args, " "); got != want {
		t.Errorf("args = %q, want %q", got, want)
	}

	logData, err := os.ReadFile(s.Tree.LogFile("L1"))
	if err != nil || string(logData) != "line processed\n" {
		t.Errorf("log = %q, %v", logData, err)
	}
}

func TestLocal_SubmitFailure(t *testing.T) {
	r := &fakeRunner{err: errors.New("exit status 1")}
	b, _ := NewLocal([]string{"process_line"}, r, discardLogger())

	_, err := b.Submit(context.Background(), submission(t, domain.WorkUnit{Line: "L1", RunMain: true}))
	if !errors.Is(err, ErrSubmissionFailed) {
		t.Errorf("expected ErrSubmissionFailed, got %v", err)
	}
}

func TestLocal_NoProcessor(t *testing.T) {
	if _, err := NewLocal(nil, &fakeRunner{}, discardLogger()); err == nil {
		t.Error("expected error without processor command")
	}
}

// --- Grid Tests ---

func TestGrid_QsubCommand(t *testing.T) {
	gs := settings.GridSettings{Binary: "qsub", Queue: "lowpriority.q", MinMemGB: 2}
	g, err := NewGrid(Qsub, gs, []string{"process_line"}, &fakeRunner{}, discardLogger())
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}

	s := submission(t, domain.WorkUnit{Line: "L1", RunExtension: true, Extensions: []string{"L1_ratio"}})
	s.SizeHint = 5 * gib

	got := strings.Join(g.Command(s), " ")
	wantPrefix := "qsub -N GB16_00_2016_123_L1 -l h_vmem=6G -o " + s.Tree.LogFile("L1_ratio") + " -j y -b y -q lowpriority.q process_line"
	if !strings.HasPrefix(got, wantPrefix) {
		t.Errorf("command = %q\nwant prefix %q", got, wantPrefix)
	}
	if !strings.HasSuffix(got, "--line L1 --output "+s.Tree.Root+" --extension") {
		t.Errorf("command must end with processor args: %q", got)
	}
}

func TestGrid_QsubSubmit(t *testing.T) {
	r := &fakeRunner{out: `Your job 4242 ("GB16_00_2016_123_L1") has been submitted` + "\n"}
	g, _ := NewGrid(Qsub, settings.GridSettings{MinMemGB: 2}, []string{"process_line"}, r, discardLogger())

	h, err := g.Submit(context.Background(), submission(t, domain.WorkUnit{Line: "L1", RunMain: true}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.JobRef != "4242" || h.Kind != KindQsub {
		t.Errorf("unexpected handle %+v", h)
	}
	if r.calls[0].name != "qsub" {
		t.Errorf("binary = %s, want qsub default", r.calls[0].name)
	}
}

func TestGrid_BsubSubmit(t *testing.T) {
	r := &fakeRunner{out: "Job <777> is submitted to queue <normal>.\n"}
	g, _ := NewGrid(Bsub, settings.GridSettings{Binary: "bsub", MinMemGB: 4}, []string{"process_line"}, r, discardLogger())

	h, err := g.Submit(context.Background(), submission(t, domain.WorkUnit{Line: "L2", RunMain: true}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.JobRef != "777" {
		t.Errorf("job ref = %q", h.JobRef)
	}
	args := strings.Join(r.calls[0].args, " ")
	if !strings.Contains(args, "-M 4096 -R rusage[mem=4096]") {
		t.Errorf("memory request missing: %s", args)
	}
}

func TestGrid_NoJobID(t *testing.T) {
	r := &fakeRunner{out: "queue is closed"}
	g, _ := NewGrid(Qsub, settings.GridSettings{}, []string{"process_line"}, r, discardLogger())

	_, err := g.Submit(context.Background(), submission(t, domain.WorkUnit{Line: "L1", RunMain: true}))
	if !errors.Is(err, ErrSubmissionFailed) {
		t.Errorf("expected ErrSubmissionFailed, got %v", err)
	}
}

func TestGrid_Timeout(t *testing.T) {
	r := &fakeRunner{err: ErrTimeout}
	g, _ := NewGrid(Qsub, settings.GridSettings{}, []string{"process_line"}, r, discardLogger())

	_, err := g.Submit(context.Background(), submission(t, domain.WorkUnit{Line: "L1", RunMain: true}))
	if !errors.Is(err, ErrSubmissionFailed) || !errors.Is(err, ErrTimeout) {
		t.Errorf("expected submission failure wrapping timeout, got %v", err)
	}
}

func TestMemoryGB(t *testing.T) {
	tests := []struct {
		size int64
		min  int
		want int
	}{
		{0, 2, 2},
		{0, 0, 1},
		{gib / 2, 0, 2},
		{3 * gib, 2, 4},
		{3*gib + 1, 8, 8},
	}
	for _, tt := range tests {
		if got := MemoryGB(tt.size, tt.min); got != tt.want {
			t.Errorf("MemoryGB(%d, %d) = %d, want %d", tt.size, tt.min, got, tt.want)
		}
	}
}

// --- AMQP Tests ---

func TestAMQP_Submit(t *testing.T) {
	sender := &fakeSender{}
	b, err := NewAMQP(sender)
	if err != nil {
		t.Fatalf("NewAMQP: %v", err)
	}

	s := submission(t, domain.WorkUnit{Line: "L1", RunMain: true, RunExtension: true, Extensions: []string{"L1_ratio"}})
	s.SizeHint = 1024

	h, err := b.Submit(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sender.exchange != mq.ExchangeUnits || sender.key != mq.RoutingKeySubmitted {
		t.Errorf("published to %s/%s", sender.exchange, sender.key)
	}

	msg := sender.msgs[0]
	if h.JobRef != msg.ID || msg.Type != mq.MessageTypeUnitSubmitted {
		t.Errorf("handle %+v, message %+v", h, msg)
	}
	p := msg.Payload.(mq.UnitSubmittedPayload)
	if p.Line != "L1" || p.RunID != "GB16_00_2016_123" || !p.RunMain || !p.RunExtension || p.SizeBytes != 1024 {
		t.Errorf("unexpected payload %+v", p)
	}
}

func TestAMQP_PublishError(t *testing.T) {
	b, _ := NewAMQP(&fakeSender{err: mq.ErrNotConfirmed})

	_, err := b.Submit(context.Background(), submission(t, domain.WorkUnit{Line: "L1", RunMain: true}))
	if !errors.Is(err, ErrSubmissionFailed) || !errors.Is(err, mq.ErrNotConfirmed) {
		t.Errorf("unexpected error %v", err)
	}
}

// --- Kubernetes Tests ---

func TestKubernetes_Submit(t *testing.T) {
	client := fake.NewSimpleClientset()
	s := testSettings()
	b, err := NewKubernetes(client, s.K8s, s.Processor.Command)
	if err != nil {
		t.Fatalf("NewKubernetes: %v", err)
	}

	sub := submission(t, domain.WorkUnit{Line: "L1", RunMain: true})
	h, err := b.Submit(context.Background(), sub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.JobRef != "scops/gb16-00-2016-123-l1" {
		t.Errorf("job ref = %q", h.JobRef)
	}

	job, err := client.BatchV1().Jobs("scops").Get(context.Background(), "gb16-00-2016-123-l1", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("job not created: %v", err)
	}
	c := job.Spec.Template.Spec.Containers[0]
	if c.Image != s.K8s.Image {
		t.Errorf("image = %s", c.Image)
	}
	if strings.Join(c.Command, " ") != "process_line --verbose" {
		t.Errorf("command = %v", c.Command)
	}
	if !strings.Contains(strings.Join(c.Args, " "), "--line L1") {
		t.Errorf("args = %v", c.Args)
	}
	if job.Labels["scops.line"] != "L1" {
		t.Errorf("labels = %v", job.Labels)
	}

	// повторная отправка того же unit не создаёт второй Job
	if _, err := b.Submit(context.Background(), sub); err != nil {
		t.Errorf("resubmit should be accepted, got %v", err)
	}
	list, _ := client.BatchV1().Jobs("scops").List(context.Background(), metav1.ListOptions{})
	if len(list.Items) != 1 {
		t.Errorf("jobs = %d, want 1", len(list.Items))
	}
}

func TestJobResourceName(t *testing.T) {
	if got := JobResourceName("GB16_00_2016_123_L1"); got != "gb16-00-2016-123-l1" {
		t.Errorf("got %q", got)
	}

	long := strings.Repeat("X", 80) + "_L1"
	got := JobResourceName(long)
	if len(got) > maxJobName {
		t.Errorf("name too long: %d", len(got))
	}
	if got == JobResourceName(strings.Repeat("X", 80)+"_L2") {
		t.Error("truncated names must stay distinct")
	}
}
