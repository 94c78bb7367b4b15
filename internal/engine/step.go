package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/voltage-labs/contractctl/internal/config"
	"github.com/voltage-labs/contractctl/internal/ledger"
)

// ArgsBuilder builds constructor arguments from the resolved addresses of a step's dependencies.
// It must be pure: the same inputs always produce the same arguments.
type ArgsBuilder func(deps map[string]string) ([]string, error)

// Step is one entry of the fixed, ordered deployment table.
type Step struct {
	// Name is the ledger key.
	Name string
	// Contract is the artifact passed to the Deployer.
	Contract string
	// DependsOn lists earlier steps whose addresses Args needs.
	DependsOn []string
	// Args builds the constructor arguments. Nil means no arguments.
	Args ArgsBuilder
}

// NoArgs is an ArgsBuilder for contracts without constructor parameters.
func NoArgs(map[string]string) ([]string, error) {
	return nil, nil
}

// ValidateSteps checks names are unique and every dependency refers to an earlier step.
// The order is author-specified; no topological sort is performed.
func ValidateSteps(steps []Step) error {
	seen := make(map[string]struct{}, len(steps))
	for i, step := range steps {
		if strings.TrimSpace(step.Name) == "" {
			return &ConfigurationError{Reason: fmt.Sprintf("step %d has no name", i)}
		}
		if step.Name == ledger.MetaKey {
			return &ConfigurationError{Step: step.Name, Reason: fmt.Sprintf("step name %q is reserved for ledger metadata", ledger.MetaKey)}
		}
		if _, dup := seen[step.Name]; dup {
			return &ConfigurationError{Step: step.Name, Reason: "duplicate step name"}
		}
		if strings.TrimSpace(step.Contract) == "" {
			return &ConfigurationError{Step: step.Name, Reason: "no contract to deploy"}
		}
		for _, dep := range step.DependsOn {
			if dep == step.Name {
				return &ConfigurationError{Step: step.Name, Reason: "step depends on itself"}
			}
			if _, ok := seen[dep]; !ok {
				return &ConfigurationError{Step: step.Name, Reason: fmt.Sprintf("dependency %q is not an earlier step", dep)}
			}
		}
		seen[step.Name] = struct{}{}
	}
	return nil
}

const (
	depPrefix   = "dep:"
	constPrefix = "const:"
)

// StepsFromConfig builds the step table from contracts.yaml. Each argument is either
// dep:<step> (the address of a declared dependency), const:<name> (a configured constant)
// or a literal value.
func StepsFromConfig(cfg *config.DeployConfig) ([]Step, error) {
	if cfg == nil {
		return nil, fmt.Errorf("deploy config is nil")
	}

	steps := make([]Step, 0, len(cfg.Steps))
	for _, sc := range cfg.Steps {
		builder, err := argsFromConfig(sc, cfg.Constants)
		if err != nil {
			return nil, err
		}
		steps = append(steps, Step{
			Name:      sc.Name,
			Contract:  sc.Contract,
			DependsOn: slices.Clone(sc.DependsOn),
			Args:      builder,
		})
	}
	if err := ValidateSteps(steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// argsFromConfig resolves constants eagerly and defers dependency lookups to run time.
func argsFromConfig(sc config.StepConfig, constants map[string]string) (ArgsBuilder, error) {
	if len(sc.Args) == 0 {
		return NoArgs, nil
	}

	type argRef struct {
		dep   string
		value string
	}
	refs := make([]argRef, 0, len(sc.Args))
	for _, raw := range sc.Args {
		arg := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(arg, depPrefix):
			dep := strings.TrimSpace(strings.TrimPrefix(arg, depPrefix))
			if !slices.Contains(sc.DependsOn, dep) {
				return nil, &ConfigurationError{Step: sc.Name, Reason: fmt.Sprintf("argument %q references %q which is not listed in dependsOn", raw, dep)}
			}
			refs = append(refs, argRef{dep: dep})
		case strings.HasPrefix(arg, constPrefix):
			name := strings.TrimSpace(strings.TrimPrefix(arg, constPrefix))
			value, ok := constants[name]
			if !ok {
				return nil, &ConfigurationError{Step: sc.Name, Reason: fmt.Sprintf("argument %q references undefined constant %q", raw, name)}
			}
			refs = append(refs, argRef{value: strings.TrimSpace(value)})
		default:
			refs = append(refs, argRef{value: arg})
		}
	}

	return func(deps map[string]string) ([]string, error) {
		out := make([]string, 0, len(refs))
		for _, ref := range refs {
			if ref.dep == "" {
				out = append(out, ref.value)
				continue
			}
			addr, ok := deps[ref.dep]
			if !ok || addr == "" {
				return nil, fmt.Errorf("dependency %q is unresolved", ref.dep)
			}
			out = append(out, addr)
		}
		return out, nil
	}, nil
}
