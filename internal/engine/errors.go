package engine

import (
	"errors"
	"fmt"
)

// DeployError reports a failed deployment. It aborts the run.
type DeployError struct {
	Step     string
	Contract string
	Err      error
}

func (e *DeployError) Error() string {
	return fmt.Sprintf("deploy %s (%s): %v", e.Step, e.Contract, e.Err)
}

func (e *DeployError) Unwrap() error {
	return e.Err
}

// IsDeployError reports whether err is a fatal deployment failure.
func IsDeployError(err error) bool {
	var target *DeployError
	return errors.As(err, &target)
}

// ConfigurationError reports a misconfigured step table, such as a dependency that is
// declared after its dependent. It is a programming error, not a runtime condition.
type ConfigurationError struct {
	Step   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Step == "" {
		return "invalid step configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid step configuration for %q: %s", e.Step, e.Reason)
}

// IsConfigurationError reports whether err is a step configuration error.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// VerifyError reports a failed source verification. It never aborts a run.
type VerifyError struct {
	Step    string
	Address string
	Err     error
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verify %s at %s: %v", e.Step, e.Address, e.Err)
}

func (e *VerifyError) Unwrap() error {
	return e.Err
}
