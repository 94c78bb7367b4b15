package cli

import (
	"os"
	"strconv"
	"strings"

	envparse "github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"
)

// baseEnv defines root CLI defaults sourced from CONTRACTCTL_* env vars.
type baseEnv struct {
	// ConfigPath is the contracts.yaml path from CONTRACTCTL_CONFIG.
	ConfigPath string `env:"CONTRACTCTL_CONFIG"`
	// Network is the network name from CONTRACTCTL_NETWORK.
	Network string `env:"CONTRACTCTL_NETWORK"`
	// LedgerPath is the file ledger override from CONTRACTCTL_LEDGER.
	LedgerPath string `env:"CONTRACTCTL_LEDGER"`
	// Vars is a k=v,k2=v2 list from CONTRACTCTL_VARS.
	Vars string `env:"CONTRACTCTL_VARS"`
	// LogLevel is the logging level from CONTRACTCTL_LOG_LEVEL.
	LogLevel string `env:"CONTRACTCTL_LOG_LEVEL"`
}

// runEnv captures CONTRACTCTL_* inputs for the run command.
type runEnv struct {
	// SkipVerify disables explorer verification from CONTRACTCTL_SKIP_VERIFY.
	SkipVerify string `env:"CONTRACTCTL_SKIP_VERIFY"`
}

// parseEnv fills target from CONTRACTCTL_* env vars via caarlos0/env.
func parseEnv(target interface{}) error {
	return envparse.Parse(target)
}

// applyBaseEnv copies env defaults into opts for every flag the user did not set explicitly.
func applyBaseEnv(cmd *cobra.Command, opts *Options) error {
	var envCfg baseEnv
	if err := parseEnv(&envCfg); err != nil {
		return err
	}
	if !cmd.Flags().Changed("config") && envPresent("CONTRACTCTL_CONFIG") {
		opts.ConfigPath = envCfg.ConfigPath
	}
	if !cmd.Flags().Changed("network") && envPresent("CONTRACTCTL_NETWORK") {
		opts.Network = envCfg.Network
	}
	if !cmd.Flags().Changed("ledger") && envPresent("CONTRACTCTL_LEDGER") {
		opts.LedgerPath = envCfg.LedgerPath
	}
	if !cmd.Flags().Changed("vars") && envPresent("CONTRACTCTL_VARS") {
		opts.Vars = envCfg.Vars
	}
	if !cmd.Flags().Changed("log-level") && envPresent("CONTRACTCTL_LOG_LEVEL") {
		if err := cmd.Flags().Set("log-level", envCfg.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// envPresent reports whether a non-empty env var exists.
func envPresent(key string) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		return false
	}
	return strings.TrimSpace(val) != ""
}

// parseEnvBool parses a boolean string and reports if it was present and valid.
func parseEnvBool(value string) (bool, bool) {
	if strings.TrimSpace(value) == "" {
		return false, false
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, false
	}
	return parsed, true
}
