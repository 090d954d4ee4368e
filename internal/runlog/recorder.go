package runlog

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Recorder writes run and failure records through a Store.
//
// It is intentionally small: callers provide the run metadata and the
// triggering error; the recorder classifies and persists.
type Recorder struct {
	Store *Store
}

// NewRunID returns a fresh operational run identifier.
func (r *Recorder) NewRunID() string {
	return uuid.NewString()
}

func (r *Recorder) StartRun(run Run) error {
	if r == nil || r.Store == nil {
		return errors.New("Store is required")
	}
	if run.StartTime.IsZero() {
		run.StartTime = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}
	return r.Store.SaveRun(run)
}

// FinishRun updates a persisted run with its terminal status and state.
func (r *Recorder) FinishRun(runID string, status RunStatus, finalState string) error {
	if r == nil || r.Store == nil {
		return errors.New("Store is required")
	}
	run, err := r.Store.LoadRun(runID)
	if err != nil {
		return err
	}
	run.Status = status
	run.FinalState = finalState
	return r.Store.SaveRun(run)
}

// RecordFailure classifies err and persists it for the run.
func (r *Recorder) RecordFailure(runID string, err error) error {
	if r == nil || r.Store == nil {
		return errors.New("Store is required")
	}
	return r.Store.SaveFailure(runID, Classify(err))
}
