package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/voltage-labs/contractctl/internal/chain"
	"github.com/voltage-labs/contractctl/internal/ledger"
)

// runDoctorChecks runs the offline preflight checks and returns the signer identity when the key is usable.
func runDoctorChecks(ctx context.Context, logger *slog.Logger, p *project, backend ledger.Backend) (*chain.Identity, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var fatal []string
	network := p.networkName

	var identity *chain.Identity
	key, err := p.privateKey()
	if err == nil {
		identity, err = chain.ParsePrivateKey(key)
	}
	if err != nil {
		logger.Error("doctor check failed: deployer key", "env", p.network.PrivateKeyEnv, "network", network, "error", err)
		fatal = append(fatal, "deployer key")
	} else {
		logger.Info("doctor check ok: deployer key", "address", identity.Hex(), "network", network)
	}

	arts := p.artifacts()
	for _, step := range p.steps {
		if _, err := arts.Load(step.Contract); err != nil {
			logger.Error("doctor check failed: artifact", "step", step.Name, "contract", step.Contract, "error", err)
			fatal = append(fatal, "artifact "+step.Contract)
			continue
		}
		logger.Info("doctor check ok: artifact", "step", step.Name, "contract", step.Contract)
	}

	if strings.TrimSpace(p.cfg.Ledger.Backend) == "configmap" {
		if _, err := exec.LookPath("kubectl"); err != nil {
			logger.Error("doctor check failed: kubectl is required by the configmap ledger", "error", err)
			fatal = append(fatal, "kubectl")
		}
	}

	data, err := backend.Read(ctx)
	switch {
	case errors.Is(err, ledger.ErrNoSnapshot):
		logger.Info("doctor check ok: ledger is empty, next run starts fresh", "ledger", backend.Describe())
	case err != nil:
		logger.Error("doctor check failed: ledger unreadable", "ledger", backend.Describe(), "error", err)
		fatal = append(fatal, "ledger")
	default:
		state := &ledger.State{}
		if err := state.UnmarshalJSON(data); err != nil {
			logger.Error("doctor check failed: ledger is corrupt", "ledger", backend.Describe(), "error", err)
			fatal = append(fatal, "ledger")
		} else {
			logger.Info("doctor check ok: ledger", "ledger", backend.Describe(), "records", len(state.Names()))
		}
	}

	explorer := p.network.Explorer
	keyEnv := explorer.APIKeyEnv
	if keyEnv == "" {
		keyEnv = defaultAPIKeyEnv
	}
	if strings.TrimSpace(explorer.APIURL) == "" {
		logger.Warn("no explorer configured; deployments will not be verified", "network", network)
	} else if _, ok := p.tmplCtx.EnvMap.Lookup(keyEnv); !ok {
		logger.Warn("explorer api key not set; deployments will not be verified", "env", keyEnv)
	} else {
		logger.Info("doctor check ok: explorer api key present", "env", keyEnv)
	}

	if len(fatal) > 0 {
		return identity, fmt.Errorf("doctor found %d fatal issue(s): %s", len(fatal), strings.Join(fatal, ", "))
	}
	return identity, nil
}
