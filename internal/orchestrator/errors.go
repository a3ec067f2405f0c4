package orchestrator

import (
	"fmt"
	"strings"
)

// ErrDeploy marks a container creation or start failure. It happens before
// any network mutation, so there is nothing to roll back.
var ErrDeploy = fmt.Errorf("container deploy failed")

// ErrAborted is returned when the user declines a decision point.
var ErrAborted = fmt.Errorf("operation aborted by user")

// StepResult is the outcome of one best-effort teardown sub-step.
type StepResult struct {
	Name string
	Err  error
}

// TeardownReport collects the outcome of every teardown sub-step. Individual
// failures never stop the sequence; they are aggregated here so the caller
// can surface a warning.
type TeardownReport struct {
	Steps []StepResult
}

func (r *TeardownReport) add(name string, err error) {
	r.Steps = append(r.Steps, StepResult{Name: name, Err: err})
}

// Failed returns the names of the sub-steps that reported an error.
func (r *TeardownReport) Failed() []string {
	var failed []string
	for _, s := range r.Steps {
		if s.Err != nil {
			failed = append(failed, s.Name)
		}
	}
	return failed
}

// Warning renders an aggregate message, or "" when every step succeeded.
func (r *TeardownReport) Warning() string {
	failed := r.Failed()
	if len(failed) == 0 {
		return ""
	}
	return fmt.Sprintf("teardown finished with %d failed step(s): %s", len(failed), strings.Join(failed, ", "))
}
