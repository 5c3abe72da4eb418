package backend

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"

	"github.com/shaiso/scops/internal/settings"
)

const (
	defaultNamespace = "default"
	jobTTLSeconds    = int32(7 * 24 * 3600)
	maxJobName       = 63
)

// Connect строит клиент Kubernetes.
//
// Порядок поиска kubeconfig: явный путь, затем ~/.kube/config.
// Если файла нет, используется in-cluster конфигурация.
func Connect(kubeconfig string) (kubernetes.Interface, error) {
	if kubeconfig == "" {
		if home := homedir.HomeDir(); home != "" {
			candidate := filepath.Join(home, ".kube", "config")
			if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
				kubeconfig = candidate
			}
		}
	}

	var (
		cfg *rest.Config
		err error
	)
	if kubeconfig == "" {
		cfg, err = rest.InClusterConfig()
	} else {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	if err != nil {
		return nil, fmt.Errorf("kubernetes config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("kubernetes client: %w", err)
	}
	return clientset, nil
}

// Kubernetes создаёт batch/v1 Job на каждый unit.
type Kubernetes struct {
	client    kubernetes.Interface
	settings  settings.K8sSettings
	processor []string
}

// NewKubernetes создаёт Kubernetes backend.
func NewKubernetes(client kubernetes.Interface, ks settings.K8sSettings, processor []string) (*Kubernetes, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: kubernetes client", ErrMissingDependency)
	}
	if strings.TrimSpace(ks.Image) == "" {
		return nil, fmt.Errorf("%w: k8s image is required", ErrMissingDependency)
	}
	if len(processor) == 0 {
		return nil, fmt.Errorf("%w: processor command is required", ErrMissingDependency)
	}
	if ks.Namespace == "" {
		ks.Namespace = defaultNamespace
	}
	return &Kubernetes{client: client, settings: ks, processor: processor}, nil
}

// Kind возвращает имя backend'а.
func (k *Kubernetes) Kind() string { return KindK8s }

// Submit создаёт Job. Уже существующий Job того же unit считается принятым.
func (k *Kubernetes) Submit(ctx context.Context, s Submission) (Handle, error) {
	job := k.Job(s)

	_, err := k.client.BatchV1().Jobs(k.settings.Namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return Handle{}, fmt.Errorf("%w: %s: create job: %w", ErrSubmissionFailed, s.Unit.Line, err)
	}
	return newHandle(KindK8s, s, k.settings.Namespace+"/"+job.Name), nil
}

// Job строит описание Job для unit.
func (k *Kubernetes) Job(s Submission) *batchv1.Job {
	labels := map[string]string{
		"app.kubernetes.io/name":      "scops",
		"app.kubernetes.io/component": "line-processor",
		"scops.run_id":                labelValue(s.Tree.RunID()),
		"scops.line":                  labelValue(s.Unit.Line),
	}

	mem := resource.MustParse(fmt.Sprintf("%dGi", MemoryGB(s.SizeHint, 1)))
	backoff := int32(0)
	ttl := jobTTLSeconds

	outputDir := filepath.Dir(s.Tree.Root)
	configDir := filepath.Dir(s.ConfigPath)

	container := corev1.Container{
		Name:    "processor",
		Image:   k.settings.Image,
		Command: k.processor,
		Args:    processorArgs(s),
		Resources: corev1.ResourceRequirements{
			Requests: corev1.ResourceList{corev1.ResourceMemory: mem},
			Limits:   corev1.ResourceList{corev1.ResourceMemory: mem},
		},
		VolumeMounts: []corev1.VolumeMount{
			{Name: "output", MountPath: outputDir},
		},
	}
	volumes := []corev1.Volume{hostPathVolume("output", outputDir)}
	if configDir != outputDir {
		container.VolumeMounts = append(container.VolumeMounts, corev1.VolumeMount{Name: "config", MountPath: configDir, ReadOnly: true})
		volumes = append(volumes, hostPathVolume("config", configDir))
	}

	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      JobResourceName(s.JobName()),
			Namespace: k.settings.Namespace,
			Labels:    labels,
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            &backoff,
			TTLSecondsAfterFinished: &ttl,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					RestartPolicy:      corev1.RestartPolicyNever,
					ServiceAccountName: k.settings.ServiceAccount,
					Containers:         []corev1.Container{container},
					Volumes:            volumes,
				},
			},
		},
	}
}

func hostPathVolume(name, path string) corev1.Volume {
	return corev1.Volume{
		Name: name,
		VolumeSource: corev1.VolumeSource{
			HostPath: &corev1.HostPathVolumeSource{Path: path},
		},
	}
}

// JobResourceName приводит имя задачи к DNS-1123 (строчные буквы, цифры, '-').
// Слишком длинные имена обрезаются, уникальность сохраняет суффикс-хеш.
func JobResourceName(job string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(job) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	name := strings.Trim(b.String(), "-")

	if len(name) > maxJobName {
		h := fnv.New32a()
		h.Write([]byte(job))
		suffix := fmt.Sprintf("-%08x", h.Sum32())
		name = strings.TrimRight(name[:maxJobName-len(suffix)], "-") + suffix
	}
	if name == "" {
		name = "scops-job"
	}
	return name
}

// labelValue приводит строку к допустимому значению метки.
func labelValue(v string) string {
	var b strings.Builder
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if len(s) > 63 {
		s = s[:63]
	}
	return strings.Trim(s, "-_.")
}
