// Package config contains the loader and strongly typed model for contracts.yaml.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/voltage-labs/contractctl/internal/env"
)

// DeployConfig describes a deployable contract suite.
// It mirrors the structure of contracts.yaml after template rendering.
type DeployConfig struct {
	// Project is the short project name used in logs and ledger metadata.
	Project string `yaml:"project"`
	// EnvFiles lists .env files to load before rendering.
	EnvFiles []string `yaml:"envFiles,omitempty"`
	// Artifacts is the compiled artifacts directory (Hardhat layout), relative to the config file.
	Artifacts string `yaml:"artifacts,omitempty"`
	// Networks maps a network name to its connection settings.
	Networks map[string]Network `yaml:"networks"`
	// Ledger selects where deployment progress is persisted.
	Ledger LedgerConfig `yaml:"ledger,omitempty"`
	// Constants are named literal values that step arguments can reference as const:<name>.
	Constants map[string]string `yaml:"constants,omitempty"`
	// Steps is the fixed, ordered deployment table.
	Steps []StepConfig `yaml:"steps"`
}

// Network describes an EVM network target.
type Network struct {
	// RPCURL is the JSON-RPC endpoint.
	RPCURL string `yaml:"rpcURL"`
	// ChainID is the expected chain id; the deployer refuses to run on a mismatch.
	ChainID int64 `yaml:"chainID"`
	// PrivateKeyEnv names the variable holding the deployer key (default PRIVATE_KEY).
	PrivateKeyEnv string `yaml:"privateKeyEnv,omitempty"`
	// DeployTimeout bounds a single deployment including receipt wait (e.g. "5m").
	DeployTimeout string `yaml:"deployTimeout,omitempty"`
	// Explorer configures source verification.
	Explorer ExplorerConfig `yaml:"explorer,omitempty"`
}

// ExplorerConfig describes an Etherscan-compatible verification API.
type ExplorerConfig struct {
	// APIURL is the explorer API endpoint (e.g. https://api.basescan.org/api).
	APIURL string `yaml:"apiURL,omitempty"`
	// APIKeyEnv names the variable holding the API key.
	APIKeyEnv string `yaml:"apiKeyEnv,omitempty"`
	// PollInterval is the delay between verification status checks (e.g. "5s").
	PollInterval string `yaml:"pollInterval,omitempty"`
	// MaxAttempts caps verification status checks.
	MaxAttempts int `yaml:"maxAttempts,omitempty"`
}

// LedgerConfig describes how deployment progress is stored.
type LedgerConfig struct {
	// Backend is one of file (default), configmap, sqlite, s3.
	Backend string `yaml:"backend,omitempty"`
	// Path is the JSON file used by the file backend.
	Path string `yaml:"path,omitempty"`
	// ConfigMap configures the configmap backend.
	ConfigMap ConfigMapLedger `yaml:"configmap,omitempty"`
	// SQLite configures the sqlite backend.
	SQLite SQLiteLedger `yaml:"sqlite,omitempty"`
	// S3 configures the s3 backend.
	S3 S3Ledger `yaml:"s3,omitempty"`
}

// ConfigMapLedger stores the ledger in a Kubernetes ConfigMap.
type ConfigMapLedger struct {
	Namespace  string `yaml:"namespace,omitempty"`
	Name       string `yaml:"name,omitempty"`
	Kubeconfig string `yaml:"kubeconfig,omitempty"`
	Context    string `yaml:"context,omitempty"`
}

// SQLiteLedger stores the ledger in a SQLite database.
type SQLiteLedger struct {
	DSN  string `yaml:"dsn,omitempty"`
	Name string `yaml:"name,omitempty"`
}

// S3Ledger stores the ledger as an object in an S3-compatible bucket.
type S3Ledger struct {
	Endpoint     string `yaml:"endpoint,omitempty"`
	Bucket       string `yaml:"bucket,omitempty"`
	Key          string `yaml:"key,omitempty"`
	Region       string `yaml:"region,omitempty"`
	UseSSL       bool   `yaml:"useSSL,omitempty"`
	AccessKeyEnv string `yaml:"accessKeyEnv,omitempty"`
	SecretKeyEnv string `yaml:"secretKeyEnv,omitempty"`
}

// StepConfig is one row of the deployment table.
type StepConfig struct {
	// Name is the ledger key for the deployed address.
	Name string `yaml:"name"`
	// Contract is the artifact (contract) name to deploy.
	Contract string `yaml:"contract"`
	// DependsOn lists earlier steps whose addresses the arguments need.
	DependsOn []string `yaml:"dependsOn,omitempty"`
	// Args are constructor arguments: dep:<step>, const:<name> or a literal.
	Args []string `yaml:"args,omitempty"`
}

// LoadOptions describes parameters that influence template rendering of contracts.yaml.
type LoadOptions struct {
	// Network is the selected network name.
	Network string
	// UserVars are inline variables for template rendering.
	UserVars env.Vars
}

// TemplateContext is the data exposed to Go-templates when rendering contracts.yaml.
type TemplateContext struct {
	// Network is the selected network name.
	Network string
	// Project is the project identifier.
	Project string
	// ProjectRoot is the directory holding the config file.
	ProjectRoot string
	// Now is the timestamp captured for template rendering.
	Now time.Time
	// UserVars contains inline user variables.
	UserVars env.Vars
	// EnvMap merges OS env, envFiles and user variables.
	EnvMap env.Vars
}

// rawHeader is a minimal struct used to extract top-level fields before templating.
type rawHeader struct {
	Project  string   `yaml:"project"`
	EnvFiles []string `yaml:"envFiles"`
}

// LoadAndRender reads contracts.yaml, loads envFiles and user vars, and returns rendered YAML bytes
// together with the template context that was used.
func LoadAndRender(path string, opts LoadOptions) ([]byte, TemplateContext, error) {
	var zeroCtx TemplateContext

	if path == "" {
		return nil, zeroCtx, fmt.Errorf("config path is empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, zeroCtx, fmt.Errorf("resolve config path: %w", err)
	}

	rawBytes, err := os.ReadFile(absPath)
	if err != nil {
		return nil, zeroCtx, fmt.Errorf("read config %q: %w", absPath, err)
	}

	var header rawHeader
	if err := yaml.Unmarshal(rawBytes, &header); err != nil {
		return nil, zeroCtx, fmt.Errorf("parse top-level config fields: %w", err)
	}

	baseDir := filepath.Dir(absPath)
	envFileVars, err := env.LoadEnvFiles(baseDir, header.EnvFiles)
	if err != nil {
		return nil, zeroCtx, err
	}

	ctx := TemplateContext{
		Network:     opts.Network,
		Project:     header.Project,
		ProjectRoot: baseDir,
		Now:         time.Now().UTC(),
		UserVars:    opts.UserVars,
		EnvMap:      env.Merge(env.FromOS(), envFileVars, opts.UserVars),
	}

	rendered, err := RenderTemplate(filepath.Base(absPath), rawBytes, ctx)
	if err != nil {
		return nil, zeroCtx, err
	}
	return rendered, ctx, nil
}

// LoadDeployConfig loads, templates, parses and validates contracts.yaml.
func LoadDeployConfig(path string, opts LoadOptions) (*DeployConfig, TemplateContext, error) {
	rendered, ctx, err := LoadAndRender(path, opts)
	if err != nil {
		return nil, TemplateContext{}, err
	}

	var cfg DeployConfig
	if err := yaml.Unmarshal(rendered, &cfg); err != nil {
		return nil, TemplateContext{}, fmt.Errorf("parse rendered contracts.yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, TemplateContext{}, err
	}
	return &cfg, ctx, nil
}

// Validate performs structural checks that do not depend on the selected network.
func (c *DeployConfig) Validate() error {
	if len(c.Networks) == 0 {
		return fmt.Errorf("contracts.yaml defines no networks")
	}
	if len(c.Steps) == 0 {
		return fmt.Errorf("contracts.yaml defines no steps")
	}
	for i, step := range c.Steps {
		if strings.TrimSpace(step.Name) == "" {
			return fmt.Errorf("steps[%d]: name is empty", i)
		}
		if strings.TrimSpace(step.Contract) == "" {
			return fmt.Errorf("step %q: contract is empty", step.Name)
		}
	}
	switch c.Ledger.Backend {
	case "", "file", "configmap", "sqlite", "s3":
	default:
		return fmt.Errorf("unsupported ledger backend %q", c.Ledger.Backend)
	}
	return nil
}

// RenderTemplate renders arbitrary text content using the template context and helpers.
func RenderTemplate(name string, raw []byte, ctx TemplateContext) ([]byte, error) {
	tmpl, err := template.New(name).Funcs(buildFuncMap(ctx)).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template %q: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return nil, fmt.Errorf("execute template %q: %w", name, err)
	}
	return buf.Bytes(), nil
}

// buildFuncMap constructs the set of template functions available in contracts.yaml.
func buildFuncMap(ctx TemplateContext) template.FuncMap {
	return template.FuncMap{
		"default": funcDef,
		"toLower": strings.ToLower,
		"envOr":   funcEnvOr(ctx.EnvMap),
		"now":     func() time.Time { return ctx.Now },
	}
}

// funcDef returns def when value is empty or whitespace, otherwise value.
func funcDef(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}

// funcEnvOr returns a function that looks up a key in envMap and falls back to def.
func funcEnvOr(envMap env.Vars) func(key, def string) string {
	return func(key, def string) string {
		if v, ok := envMap[key]; ok && v != "" {
			return v
		}
		return def
	}
}

// ResolveNetwork returns the named network. An empty name selects the only network when exactly one is defined.
func ResolveNetwork(cfg *DeployConfig, name string) (string, Network, error) {
	if cfg == nil {
		return "", Network{}, fmt.Errorf("deploy config is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		if len(cfg.Networks) != 1 {
			return "", Network{}, fmt.Errorf("--network is required, available: %s", strings.Join(networkNames(cfg), ", "))
		}
		for only := range cfg.Networks {
			name = only
		}
	}

	net, ok := cfg.Networks[name]
	if !ok {
		return "", Network{}, fmt.Errorf("network %q not defined in contracts.yaml (available: %s)", name, strings.Join(networkNames(cfg), ", "))
	}
	if strings.TrimSpace(net.RPCURL) == "" {
		return "", Network{}, fmt.Errorf("network %q: rpcURL is empty", name)
	}
	if net.PrivateKeyEnv == "" {
		net.PrivateKeyEnv = "PRIVATE_KEY"
	}
	return name, net, nil
}

func networkNames(cfg *DeployConfig) []string {
	names := make([]string, 0, len(cfg.Networks))
	for name := range cfg.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolvePath makes p absolute relative to the project root.
func (c TemplateContext) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.ProjectRoot, p)
}

// ParseDuration parses value, falling back to def when value is empty.
func ParseDuration(value string, def time.Duration) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	return d, nil
}
