package cli

import (
	"os"
	"strings"

	"github.com/voltage-labs/contractctl/internal/config"
)

// applyKubeconfigOverride applies env-based overrides to the configmap ledger settings.
func applyKubeconfigOverride(cm *config.ConfigMapLedger) {
	if cm == nil {
		return
	}
	if override := strings.TrimSpace(os.Getenv("CONTRACTCTL_KUBECONFIG")); override != "" {
		cm.Kubeconfig = override
	}
	if override := strings.TrimSpace(os.Getenv("CONTRACTCTL_KUBE_CONTEXT")); override != "" {
		cm.Context = override
	}
}
