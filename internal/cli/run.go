package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/voltage-labs/contractctl/internal/chain"
	"github.com/voltage-labs/contractctl/internal/engine"
	"github.com/voltage-labs/contractctl/internal/ghoutput"
	"github.com/voltage-labs/contractctl/internal/ledger"
)

// newRunCommand creates "run" that deploys every step not yet recorded in the ledger.
func newRunCommand(opts *Options) *cobra.Command {
	var (
		skipVerify    bool
		deployTimeout string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Deploy every contract not yet recorded in the ledger, then verify fresh deployments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			var envCfg runEnv
			if err := parseEnv(&envCfg); err != nil {
				return err
			}
			if !cmd.Flags().Changed("skip-verify") {
				if v, ok := parseEnvBool(envCfg.SkipVerify); ok {
					skipVerify = v
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := loadProject(opts)
			if err != nil {
				return err
			}
			key, err := p.privateKey()
			if err != nil {
				return err
			}
			identity, err := chain.ParsePrivateKey(key)
			if err != nil {
				return fmt.Errorf("%s: %w", p.network.PrivateKeyEnv, err)
			}

			store, closeLedger, err := openLedger(p, opts, logger)
			if err != nil {
				return err
			}
			defer closeLedger()

			who := ledger.Initiator{Address: identity.Hex(), Network: p.networkName}
			state, err := store.Load(ctx, who)
			if err != nil {
				return err
			}
			session, err := engine.NewSession(who, state)
			if err != nil {
				return err
			}

			timeout, err := resolveDeployTimeout(p.network, deployTimeout, cmd.Flags().Changed("deploy-timeout"))
			if err != nil {
				return fmt.Errorf("network %q deployTimeout: %w", p.networkName, err)
			}
			arts := p.artifacts()
			deployer, err := chain.Dial(ctx, p.network.RPCURL, chain.DeployerOptions{
				Identity:  identity,
				Artifacts: arts,
				ChainID:   p.network.ChainID,
				Timeout:   timeout,
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			defer deployer.Close()

			var verifier engine.Verifier
			if skipVerify {
				logger.Info("verification skipped by request")
			} else if verifier, err = newVerifier(p, arts, logger); err != nil {
				return err
			}

			orch, err := engine.New(engine.Options{
				Deployer: deployer,
				Verifier: verifier,
				Ledger:   store,
				Logger:   logger,
			})
			if err != nil {
				return err
			}

			logger.Info("deploying contract suite",
				"project", p.cfg.Project,
				"network", p.networkName,
				"chainID", deployer.ChainID(),
				"deployer", identity.Hex(),
				"ledger", store.Describe(),
			)

			_, result, runErr := orch.Run(ctx, session, p.steps)
			printRunSummary(cmd.OutOrStdout(), result)

			if err := ghoutput.Write(ghoutput.AddressOutputs(session.State.Records())); err != nil {
				logger.Warn("failed to write GitHub outputs", "error", err)
			}
			if runErr != nil {
				return runErr
			}

			if failures := result.VerifyFailures(); len(failures) > 0 {
				names := make([]string, 0, len(failures))
				for _, f := range failures {
					names = append(names, f.Name)
				}
				logger.Warn("deployment finished with verification failures; retry with `contractctl verify <step>`",
					"steps", strings.Join(names, ","))
				return nil
			}
			logger.Info("deployment finished", "deployed", len(result.Deployed()), "skipped", len(result.Skipped()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "Do not submit source verification for fresh deployments")
	cmd.Flags().StringVar(&deployTimeout, "deploy-timeout", "", "Per-contract deployment timeout including confirmation (e.g. 5m)")

	return cmd
}

func printRunSummary(w io.Writer, result engine.RunResult) {
	if len(result.Steps) == 0 {
		return
	}
	tw := newTable(w)
	_, _ = fmt.Fprintln(tw, "STEP\tCONTRACT\tSTATUS\tADDRESS\tVERIFY")
	for _, s := range result.Steps {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Name, s.Contract, s.Status, orDash(s.Address), orDash(string(s.Verify)))
	}
	_ = tw.Flush()
}
