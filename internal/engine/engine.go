// Package engine contains the deployment orchestrator: it walks the fixed step table,
// skips steps already recorded in the ledger, deploys the rest in order and verifies
// fresh deployments on a best-effort basis.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voltage-labs/contractctl/internal/ledger"
	"github.com/voltage-labs/contractctl/internal/logging"
)

// Deployer creates a contract and returns its address once it is live.
type Deployer interface {
	Deploy(ctx context.Context, contract string, args []string) (string, error)
}

// Verifier confirms that published source matches the deployed bytecode.
type Verifier interface {
	Verify(ctx context.Context, contract, address string, args []string) error
}

// Flusher persists the ledger state. *ledger.Store implements it.
type Flusher interface {
	Flush(ctx context.Context, state *ledger.State) error
}

// Options configures an Orchestrator.
type Options struct {
	Deployer Deployer
	// Verifier may be nil, in which case verification is skipped.
	Verifier Verifier
	Ledger   Flusher
	Logger   *slog.Logger
}

// Orchestrator drives the step table against the ledger.
type Orchestrator struct {
	deployer Deployer
	verifier Verifier
	ledger   Flusher
	logger   *slog.Logger
}

// New constructs an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Deployer == nil {
		return nil, fmt.Errorf("orchestrator requires a deployer")
	}
	if opts.Ledger == nil {
		return nil, fmt.Errorf("orchestrator requires a ledger")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Orchestrator{
		deployer: opts.Deployer,
		verifier: opts.Verifier,
		ledger:   opts.Ledger,
		logger:   logger,
	}, nil
}

// Run processes steps in order against the session's ledger and flushes the ledger exactly once
// afterwards, including after a fatal failure, so completed deployments are never repeated.
// Verification failures are recorded in the result and never abort the run.
func (o *Orchestrator) Run(ctx context.Context, session *Session, steps []Step) (*Session, RunResult, error) {
	if session == nil || session.State == nil {
		return session, RunResult{}, fmt.Errorf("run requires a session with a loaded ledger")
	}
	result := RunResult{SessionID: session.ID}
	if err := ValidateSteps(steps); err != nil {
		return session, result, err
	}

	logger := o.logger.With("session", session.ID)
	logger.Info("starting deployment", "network", session.Network, "initiator", session.Initiator, "steps", len(steps))

	runErr := o.runSteps(ctx, logger, session.State, steps, &result)

	// The ledger must be persisted even when ctx was cancelled mid-run.
	if err := o.ledger.Flush(context.WithoutCancel(ctx), session.State); err != nil {
		err = fmt.Errorf("flush ledger: %w", err)
		if runErr != nil {
			return session, result, errors.Join(runErr, err)
		}
		return session, result, err
	}
	return session, result, runErr
}

func (o *Orchestrator) runSteps(ctx context.Context, logger *slog.Logger, state *ledger.State, steps []Step, result *RunResult) error {
	for _, step := range steps {
		log := logger.With("step", step.Name, "contract", step.Contract)

		if state.Has(step.Name) {
			addr, _ := state.Get(step.Name)
			log.Info("step skipped, already deployed", "address", addr)
			result.Steps = append(result.Steps, StepResult{
				Name:     step.Name,
				Contract: step.Contract,
				Status:   StatusSkipped,
				Address:  addr,
			})
			continue
		}

		args, err := resolveArgs(state, step)
		if err != nil {
			result.Steps = append(result.Steps, StepResult{Name: step.Name, Contract: step.Contract, Status: StatusPending})
			return err
		}

		log.Info("deploying", "args", args)
		addr, err := o.deployer.Deploy(ctx, step.Contract, args)
		if err == nil && strings.TrimSpace(addr) == "" {
			err = errors.New("deployer returned an empty address")
		}
		if err != nil {
			result.Steps = append(result.Steps, StepResult{Name: step.Name, Contract: step.Contract, Status: StatusPending, Args: args})
			return &DeployError{Step: step.Name, Contract: step.Contract, Err: err}
		}

		if err := state.Put(step.Name, addr); err != nil {
			result.Steps = append(result.Steps, StepResult{Name: step.Name, Contract: step.Contract, Status: StatusPending, Args: args, Address: addr})
			return &ConfigurationError{Step: step.Name, Reason: err.Error()}
		}
		log.Info("step deployed", "address", addr)

		res := StepResult{
			Name:     step.Name,
			Contract: step.Contract,
			Status:   StatusDeployed,
			Address:  addr,
			Args:     args,
		}
		res.Verify, res.VerifyErr = o.verify(ctx, log, step, addr, args)
		result.Steps = append(result.Steps, res)
	}
	return nil
}

// verify runs the verifier and converts any failure into a non-fatal outcome.
func (o *Orchestrator) verify(ctx context.Context, log *slog.Logger, step Step, addr string, args []string) (VerifyStatus, error) {
	if o.verifier == nil {
		log.Debug("verification skipped")
		return VerifySkipped, nil
	}
	if err := o.verifier.Verify(ctx, step.Contract, addr, args); err != nil {
		verr := &VerifyError{Step: step.Name, Address: addr, Err: err}
		log.Warn("verification failed", "address", addr, "error", err)
		return VerifyFailed, verr
	}
	log.Info("verified", "address", addr)
	return VerifyOK, nil
}

// resolveArgs looks up every dependency in the ledger and calls the step's builder.
// An unresolved dependency means the step table is misordered.
func resolveArgs(state *ledger.State, step Step) ([]string, error) {
	deps := make(map[string]string, len(step.DependsOn))
	for _, dep := range step.DependsOn {
		addr, err := state.Get(dep)
		if err != nil {
			return nil, &ConfigurationError{Step: step.Name, Reason: fmt.Sprintf("dependency %q is unresolved", dep)}
		}
		deps[dep] = addr
	}
	build := step.Args
	if build == nil {
		build = NoArgs
	}
	args, err := build(deps)
	if err != nil {
		return nil, &ConfigurationError{Step: step.Name, Reason: err.Error()}
	}
	return args, nil
}

// PlannedStep describes what Run would do for a step given the current ledger.
type PlannedStep struct {
	Name     string
	Contract string
	// Action is StatusSkipped or StatusDeployed.
	Action  StepStatus
	Address string
	Args    []string
}

// Plan reports which steps would be skipped or deployed without calling any collaborator.
// Arguments that depend on not-yet-deployed steps are rendered as <pending:name>.
func Plan(state *ledger.State, steps []Step) ([]PlannedStep, error) {
	if err := ValidateSteps(steps); err != nil {
		return nil, err
	}

	planned := make([]PlannedStep, 0, len(steps))
	for _, step := range steps {
		if state.Has(step.Name) {
			addr, _ := state.Get(step.Name)
			planned = append(planned, PlannedStep{Name: step.Name, Contract: step.Contract, Action: StatusSkipped, Address: addr})
			continue
		}

		deps := make(map[string]string, len(step.DependsOn))
		for _, dep := range step.DependsOn {
			if addr, err := state.Get(dep); err == nil {
				deps[dep] = addr
				continue
			}
			deps[dep] = "<pending:" + dep + ">"
		}
		build := step.Args
		if build == nil {
			build = NoArgs
		}
		args, err := build(deps)
		if err != nil {
			return nil, &ConfigurationError{Step: step.Name, Reason: err.Error()}
		}
		planned = append(planned, PlannedStep{Name: step.Name, Contract: step.Contract, Action: StatusDeployed, Args: args})
	}
	return planned, nil
}

// VerifyRecorded re-runs verification for a step that is already in the ledger.
// Runs never retry verification on their own; this is the explicit operator retry.
func (o *Orchestrator) VerifyRecorded(ctx context.Context, state *ledger.State, steps []Step, name string) (StepResult, error) {
	if o.verifier == nil {
		return StepResult{}, fmt.Errorf("verification is not configured for this network")
	}
	idx := -1
	for i, s := range steps {
		if s.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return StepResult{}, fmt.Errorf("unknown step %q", name)
	}
	step := steps[idx]

	addr, err := state.Get(step.Name)
	if err != nil {
		return StepResult{}, fmt.Errorf("step %q has not been deployed yet: %w", name, err)
	}
	args, err := resolveArgs(state, step)
	if err != nil {
		return StepResult{}, err
	}

	res := StepResult{Name: step.Name, Contract: step.Contract, Status: StatusSkipped, Address: addr, Args: args}
	res.Verify, res.VerifyErr = o.verify(ctx, o.logger.With("step", step.Name, "contract", step.Contract), step, addr, args)
	if res.VerifyErr != nil {
		return res, res.VerifyErr
	}
	return res, nil
}
