// Package runlog persists per-invocation run records so that failed
// provisioning attempts leave an inspectable artifact under the working
// directory. The run log is observational only; it never affects workflow
// behavior.
package runlog

import (
	"errors"
	"fmt"
	"time"
)

// RunStatus is the lifecycle status of a recorded run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
)

// Run is the persisted metadata for one provisioning invocation.
type Run struct {
	RunID     string    `json:"run_id"`
	PlanHash  string    `json:"plan_hash"`
	Platform  string    `json:"platform"`
	StartTime time.Time `json:"start_time"`
	Status    RunStatus `json:"status"`

	// FinalState is the terminal workflow state, recorded when the run
	// finishes.
	FinalState string `json:"final_state,omitempty"`
}

// Validate checks the invariants required before persisting.
func (r Run) Validate() error {
	if r.RunID == "" {
		return errors.New("run_id is required")
	}
	if r.StartTime.IsZero() {
		return errors.New("start_time is required")
	}
	switch r.Status {
	case StatusRunning, StatusSucceeded, StatusFailed:
	default:
		return fmt.Errorf("invalid status %q", r.Status)
	}
	return nil
}
