package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newGroupCommand builds a cobra.Command that groups subcommands.
func newGroupCommand(use, short string, subcommands ...*cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
	}
	if len(subcommands) > 0 {
		cmd.AddCommand(subcommands...)
	}
	return cmd
}

func addOutputFlag(cmd *cobra.Command, output *string) {
	cmd.Flags().StringVarP(output, "output", "o", "plain", "Output format: plain|json")
}

func validateOutput(output string) error {
	switch strings.ToLower(output) {
	case "plain", "json":
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (want plain or json)", output)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}

// readOnlyDeployer backs orchestrators used for commands that must never deploy.
type readOnlyDeployer struct{}

func (readOnlyDeployer) Deploy(context.Context, string, []string) (string, error) {
	return "", fmt.Errorf("deployments are not allowed in this command")
}
