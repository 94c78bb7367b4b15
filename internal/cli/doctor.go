package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/voltage-labs/contractctl/internal/chain"
)

// newDoctorCommand creates the "doctor" subcommand that runs preflight checks before a deployment.
func newDoctorCommand(opts *Options) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run preflight checks: key, artifacts, ledger, explorer and RPC endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			p, err := loadProject(opts)
			if err != nil {
				return err
			}
			backend, closeLedger, err := openLedgerBackend(p, opts, logger)
			if err != nil {
				return err
			}
			defer closeLedger()

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			identity, err := runDoctorChecks(ctx, logger, p, backend)
			if err != nil {
				return err
			}
			if offline {
				logger.Info("doctor checks completed successfully (offline)", "network", p.networkName)
				return nil
			}

			deployer, err := chain.Dial(ctx, p.network.RPCURL, chain.DeployerOptions{
				Identity:  identity,
				Artifacts: p.artifacts(),
				ChainID:   p.network.ChainID,
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			defer deployer.Close()
			logger.Info("doctor check ok: rpc endpoint", "url", p.network.RPCURL, "chainID", deployer.ChainID())

			logger.Info("doctor checks completed successfully", "network", p.networkName)
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Skip checks that contact the RPC endpoint")

	return cmd
}
