package cli

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/voltage-labs/contractctl/internal/chain"
	"github.com/voltage-labs/contractctl/internal/config"
	"github.com/voltage-labs/contractctl/internal/engine"
	"github.com/voltage-labs/contractctl/internal/env"
	"github.com/voltage-labs/contractctl/internal/ledger"
	"github.com/voltage-labs/contractctl/internal/verify"
)

const (
	defaultArtifactsDir = "artifacts"
	defaultAPIKeyEnv    = "ETHERSCAN_API_KEY"
)

// project is a loaded contracts.yaml bound to one network.
type project struct {
	cfg         *config.DeployConfig
	tmplCtx     config.TemplateContext
	networkName string
	network     config.Network
	steps       []engine.Step
}

// loadProject renders contracts.yaml for the selected network and builds the step table.
func loadProject(opts *Options) (*project, error) {
	inlineVars, err := env.ParseInlineVars(opts.Vars)
	if err != nil {
		return nil, err
	}

	loadOpts := config.LoadOptions{Network: opts.Network, UserVars: inlineVars}
	cfg, tmplCtx, err := config.LoadDeployConfig(opts.ConfigPath, loadOpts)
	if err != nil {
		return nil, err
	}
	name, network, err := config.ResolveNetwork(cfg, opts.Network)
	if err != nil {
		return nil, err
	}
	if name != loadOpts.Network {
		// Render again so templates see the defaulted network name.
		loadOpts.Network = name
		if cfg, tmplCtx, err = config.LoadDeployConfig(opts.ConfigPath, loadOpts); err != nil {
			return nil, err
		}
		if name, network, err = config.ResolveNetwork(cfg, name); err != nil {
			return nil, err
		}
	}

	steps, err := engine.StepsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	return &project{
		cfg:         cfg,
		tmplCtx:     tmplCtx,
		networkName: name,
		network:     network,
		steps:       steps,
	}, nil
}

// openLedgerBackend builds the configured ledger backend, honoring the --ledger override.
// The returned func releases backend resources.
func openLedgerBackend(p *project, opts *Options, logger *slog.Logger) (ledger.Backend, func(), error) {
	ledgerCfg := p.cfg.Ledger
	if strings.TrimSpace(opts.LedgerPath) != "" {
		path, err := filepath.Abs(opts.LedgerPath)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve ledger path: %w", err)
		}
		ledgerCfg = config.LedgerConfig{Backend: "file", Path: path}
	}
	applyKubeconfigOverride(&ledgerCfg.ConfigMap)

	backend, err := ledger.NewBackend(ledgerCfg, p.tmplCtx, logger)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {}
	if c, ok := backend.(io.Closer); ok {
		closeFn = func() {
			if err := c.Close(); err != nil {
				logger.Warn("failed to close ledger backend", "ledger", backend.Describe(), "error", err)
			}
		}
	}
	return backend, closeFn, nil
}

// openLedger wraps openLedgerBackend in a Store.
func openLedger(p *project, opts *Options, logger *slog.Logger) (*ledger.Store, func(), error) {
	backend, closeFn, err := openLedgerBackend(p, opts, logger)
	if err != nil {
		return nil, nil, err
	}
	store, err := ledger.NewStore(backend, logger)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return store, closeFn, nil
}

func (p *project) artifacts() *chain.Artifacts {
	dir := p.cfg.Artifacts
	if strings.TrimSpace(dir) == "" {
		dir = defaultArtifactsDir
	}
	return chain.NewArtifacts(p.tmplCtx.ResolvePath(dir))
}

// privateKey returns the deployer key from the environment or .env files.
func (p *project) privateKey() (string, error) {
	key, ok := p.tmplCtx.EnvMap.Lookup(p.network.PrivateKeyEnv)
	if !ok {
		return "", fmt.Errorf("%s is not set; it must hold the deployer private key for network %q", p.network.PrivateKeyEnv, p.networkName)
	}
	return key, nil
}

// newVerifier returns the explorer client for the network, or nil when verification cannot run.
// A missing explorer or API key disables verification with a warning instead of failing the run.
func newVerifier(p *project, arts *chain.Artifacts, logger *slog.Logger) (engine.Verifier, error) {
	explorer := p.network.Explorer
	if strings.TrimSpace(explorer.APIURL) == "" {
		logger.Warn("no explorer configured, verification disabled", "network", p.networkName)
		return nil, nil
	}
	keyEnv := explorer.APIKeyEnv
	if keyEnv == "" {
		keyEnv = defaultAPIKeyEnv
	}
	apiKey, ok := p.tmplCtx.EnvMap.Lookup(keyEnv)
	if !ok {
		logger.Warn("explorer api key not set, verification disabled", "env", keyEnv)
		return nil, nil
	}
	poll, err := config.ParseDuration(explorer.PollInterval, 0)
	if err != nil {
		return nil, fmt.Errorf("explorer pollInterval: %w", err)
	}

	client, err := verify.NewClient(logger, verify.Config{
		APIURL:       explorer.APIURL,
		APIKey:       apiKey,
		ChainID:      p.network.ChainID,
		PollInterval: poll,
		MaxAttempts:  explorer.MaxAttempts,
	}, arts)
	if err != nil {
		return nil, err
	}
	return client, nil
}
