package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voltage-labs/contractctl/internal/ledger"
)

// newLedgerCommand creates the "ledger" group for inspecting recorded deployments.
func newLedgerCommand(opts *Options) *cobra.Command {
	return newGroupCommand("ledger", "Inspect the deployment ledger",
		newLedgerShowCommand(opts),
	)
}

// newLedgerShowCommand creates "ledger show" that prints the persisted ledger.
func newLedgerShowCommand(opts *Options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the recorded deployment addresses",
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
			backend, closeLedger, err := openLedgerBackend(p, opts, logger)
			if err != nil {
				return err
			}
			defer closeLedger()

			data, err := backend.Read(cmd.Context())
			if errors.Is(err, ledger.ErrNoSnapshot) {
				return fmt.Errorf("no ledger recorded yet at %s", backend.Describe())
			}
			if err != nil {
				return err
			}
			state := &ledger.State{}
			if err := state.UnmarshalJSON(data); err != nil {
				return &ledger.CorruptError{Source: backend.Describe(), Err: err}
			}

			if strings.EqualFold(output, "json") {
				encoded, err := state.Encode()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(encoded)
				return err
			}

			w := cmd.OutOrStdout()
			meta := state.Meta
			_, _ = fmt.Fprintf(w, "ledger:    %s\n", backend.Describe())
			_, _ = fmt.Fprintf(w, "network:   %s\n", orDash(meta.Network))
			_, _ = fmt.Fprintf(w, "initiator: %s\n", orDash(meta.Initiator))
			if !meta.CreatedAt.IsZero() {
				_, _ = fmt.Fprintf(w, "created:   %s\n", meta.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			_, _ = fmt.Fprintln(w)

			tw := newTable(w)
			_, _ = fmt.Fprintln(tw, "STEP\tADDRESS")
			for _, name := range state.Names() {
				addr, _ := state.Get(name)
				_, _ = fmt.Fprintf(tw, "%s\t%s\n", name, addr)
			}
			return tw.Flush()
		},
	}

	addOutputFlag(cmd, &output)

	return cmd
}
