package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voltage-labs/contractctl/internal/engine"
	"github.com/voltage-labs/contractctl/internal/ledger"
	"github.com/voltage-labs/contractctl/internal/verify"
)

// newVerifyCommand creates "verify <step>" that re-submits verification for a recorded step.
func newVerifyCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <step>",
		Short: "Retry explorer verification for a step already recorded in the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := LoggerFromContext(cmd.Context())

			p, err := loadProject(opts)
			if err != nil {
				return err
			}
			store, closeLedger, err := openLedger(p, opts, logger)
			if err != nil {
				return err
			}
			defer closeLedger()

			state, err := store.Load(cmd.Context(), ledger.Initiator{Network: p.networkName})
			if err != nil {
				return err
			}

			verifier, err := newVerifier(p, p.artifacts(), logger)
			if err != nil {
				return err
			}
			if verifier == nil {
				return fmt.Errorf("verification is not configured for network %q", p.networkName)
			}

			orch, err := engine.New(engine.Options{
				Deployer: readOnlyDeployer{},
				Verifier: verifier,
				Ledger:   store,
				Logger:   logger,
			})
			if err != nil {
				return err
			}

			res, err := orch.VerifyRecorded(cmd.Context(), state, p.steps, args[0])
			if errors.Is(err, verify.ErrAlreadyVerified) {
				logger.Info("source already verified", "step", res.Name, "address", res.Address)
				return nil
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", res.Name, res.Address, res.Verify)
			return nil
		},
	}

	return cmd
}
