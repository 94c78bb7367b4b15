package cli

import (
	"strings"
	"time"

	"github.com/voltage-labs/contractctl/internal/config"
)

const defaultDeployTimeout = 10 * time.Minute

// resolveDeployTimeout chooses the effective per-deployment timeout:
// an explicit flag wins, then the network setting, then the default.
func resolveDeployTimeout(network config.Network, explicit string, explicitSet bool) (time.Duration, error) {
	if explicitSet {
		if v := strings.TrimSpace(explicit); v != "" {
			return config.ParseDuration(v, defaultDeployTimeout)
		}
	}
	return config.ParseDuration(network.DeployTimeout, defaultDeployTimeout)
}
