package engine

// StepStatus is the completion state of a step within one run.
type StepStatus string

const (
	StatusPending  StepStatus = "pending"
	StatusSkipped  StepStatus = "skipped"
	StatusDeployed StepStatus = "deployed"
)

// VerifyStatus is the verification sub-outcome of a freshly deployed step.
// It never affects the step's completion.
type VerifyStatus string

const (
	VerifyNone    VerifyStatus = ""
	VerifyOK      VerifyStatus = "verified"
	VerifyFailed  VerifyStatus = "verify-failed"
	VerifySkipped VerifyStatus = "verify-skipped"
)

// StepResult is the observation recorded for one step.
type StepResult struct {
	Name     string
	Contract string
	Status   StepStatus
	Address  string
	Args     []string
	Verify   VerifyStatus
	// VerifyErr is set when Verify is VerifyFailed.
	VerifyErr error
}

// RunResult summarizes one orchestrator pass.
type RunResult struct {
	SessionID string
	Steps     []StepResult
}

// Skipped returns the names of steps that were already recorded.
func (r RunResult) Skipped() []string {
	return r.namesWith(StatusSkipped)
}

// Deployed returns the names of steps deployed during this run.
func (r RunResult) Deployed() []string {
	return r.namesWith(StatusDeployed)
}

// VerifyFailures returns the results whose verification failed.
func (r RunResult) VerifyFailures() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if s.Verify == VerifyFailed {
			out = append(out, s)
		}
	}
	return out
}

// Step returns the result for name.
func (r RunResult) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}

func (r RunResult) namesWith(status StepStatus) []string {
	var out []string
	for _, s := range r.Steps {
		if s.Status == status {
			out = append(out, s.Name)
		}
	}
	return out
}
