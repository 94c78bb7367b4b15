package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voltage-labs/contractctl/internal/engine"
	"github.com/voltage-labs/contractctl/internal/ledger"
)

// plannedStepJSON is the machine-readable form of a planned step.
type plannedStepJSON struct {
	Name     string   `json:"name"`
	Contract string   `json:"contract"`
	Action   string   `json:"action"`
	Address  string   `json:"address,omitempty"`
	Args     []string `json:"args,omitempty"`
}

// newPlanCommand creates "plan" that reports what run would do, reading only the ledger.
func newPlanCommand(opts *Options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show which steps would be skipped or deployed without touching the network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())
			if err := validateOutput(output); err != nil {
				return err
			}

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
			planned, err := engine.Plan(state, p.steps)
			if err != nil {
				return err
			}

			if strings.EqualFold(output, "json") {
				out := make([]plannedStepJSON, 0, len(planned))
				for _, s := range planned {
					out = append(out, plannedStepJSON{
						Name:     s.Name,
						Contract: s.Contract,
						Action:   planAction(s.Action),
						Address:  s.Address,
						Args:     s.Args,
					})
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}

			tw := newTable(cmd.OutOrStdout())
			_, _ = fmt.Fprintln(tw, "STEP\tCONTRACT\tACTION\tADDRESS\tARGS")
			for _, s := range planned {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					s.Name, s.Contract, planAction(s.Action), orDash(s.Address), orDash(strings.Join(s.Args, ",")))
			}
			return tw.Flush()
		},
	}

	addOutputFlag(cmd, &output)

	return cmd
}

func planAction(status engine.StepStatus) string {
	if status == engine.StatusSkipped {
		return "skip"
	}
	return "deploy"
}
