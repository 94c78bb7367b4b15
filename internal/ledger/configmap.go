package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voltage-labs/contractctl/internal/kube"
	"github.com/voltage-labs/contractctl/internal/logging"
)

const (
	// configMapDataKey is the ConfigMap data entry holding the ledger document.
	configMapDataKey = "ledger.json"
	// defaultConfigMapName is used when no explicit name is configured.
	defaultConfigMapName = "contractctl-ledger"
)

// kubeRunner is the subset of kube.Client used by the ConfigMap backend.
type kubeRunner interface {
	RunAndCapture(ctx context.Context, stdin []byte, args ...string) ([]byte, error)
}

var _ kubeRunner = (*kube.Client)(nil)

// ConfigMapBackend stores the ledger in a Kubernetes ConfigMap so that CI runners share it.
type ConfigMapBackend struct {
	client    kubeRunner
	logger    *slog.Logger
	namespace string
	name      string
}

// NewConfigMapBackend constructs a ConfigMap-backed ledger in namespace/name.
func NewConfigMapBackend(client kubeRunner, logger *slog.Logger, namespace, name string) (*ConfigMapBackend, error) {
	if client == nil {
		return nil, fmt.Errorf("configmap ledger requires a Kubernetes client")
	}
	if strings.TrimSpace(namespace) == "" {
		return nil, fmt.Errorf("ledger.configmap.namespace must be set for configmap backend")
	}
	if strings.TrimSpace(name) == "" {
		name = defaultConfigMapName
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &ConfigMapBackend{
		client:    client,
		logger:    logger,
		namespace: namespace,
		name:      name,
	}, nil
}

type cmObject struct {
	APIVersion string `json:"apiVersion"`
	Kind       string `json:"kind"`
	Metadata   struct {
		Name      string            `json:"name"`
		Namespace string            `json:"namespace,omitempty"`
		Labels    map[string]string `json:"labels,omitempty"`
	} `json:"metadata"`
	Data map[string]string `json:"data"`
}

// Read implements Backend.
func (b *ConfigMapBackend) Read(ctx context.Context) ([]byte, error) {
	out, err := b.client.RunAndCapture(ctx, nil, "-n", b.namespace, "get", "configmap", b.name, "-o", "json")
	if kube.IsNotFound(err) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, &BackendError{Op: "read", Backend: b.Describe(), Err: err}
	}

	var obj cmObject
	if err := json.Unmarshal(out, &obj); err != nil {
		return nil, &CorruptError{Source: b.Describe(), Err: fmt.Errorf("decode configmap: %w", err)}
	}
	data, ok := obj.Data[configMapDataKey]
	if !ok {
		return nil, &CorruptError{Source: b.Describe(), Err: fmt.Errorf("configmap has no %q entry", configMapDataKey)}
	}
	return []byte(data), nil
}

// Write implements Backend by applying the full ConfigMap document.
func (b *ConfigMapBackend) Write(ctx context.Context, data []byte) error {
	if err := b.ensureNamespace(ctx); err != nil {
		return &BackendError{Op: "write", Backend: b.Describe(), Err: err}
	}

	obj := cmObject{APIVersion: "v1", Kind: "ConfigMap"}
	obj.Metadata.Name = b.name
	obj.Metadata.Namespace = b.namespace
	obj.Metadata.Labels = map[string]string{"app.kubernetes.io/managed-by": "contractctl"}
	obj.Data = map[string]string{configMapDataKey: string(data)}

	doc, err := json.Marshal(obj)
	if err != nil {
		return &BackendError{Op: "write", Backend: b.Describe(), Err: err}
	}
	if _, err := b.client.RunAndCapture(ctx, doc, "-n", b.namespace, "apply", "-f", "-"); err != nil {
		return &BackendError{Op: "write", Backend: b.Describe(), Err: err}
	}
	return nil
}

// Describe implements Backend.
func (b *ConfigMapBackend) Describe() string {
	return fmt.Sprintf("configmap:%s/%s", b.namespace, b.name)
}

// ensureNamespace verifies the ledger namespace exists, creating it when missing.
func (b *ConfigMapBackend) ensureNamespace(ctx context.Context) error {
	if _, err := b.client.RunAndCapture(ctx, nil, "get", "ns", b.namespace); err == nil {
		return nil
	}
	b.logger.Info("creating ledger namespace", "namespace", b.namespace)
	if _, err := b.client.RunAndCapture(ctx, nil, "create", "ns", b.namespace); err != nil {
		if kube.IsAlreadyExists(err) {
			return nil
		}
		return fmt.Errorf("ensure ledger namespace %q: %w", b.namespace, err)
	}
	return nil
}
