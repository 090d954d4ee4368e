package runlog

import (
	"errors"
	"fmt"

	"envforge/internal/provision"
)

// FailureKind is the frozen classification for persisted failures.
type FailureKind string

const (
	// FailureConfig covers user-fixable configuration preconditions,
	// notably the missing dependency manifest.
	FailureConfig FailureKind = "config"

	// FailureStep covers external-tool failures inside a workflow step.
	FailureStep FailureKind = "step"

	// FailureSystem covers everything else: panics, cancellation, internal
	// errors.
	FailureSystem FailureKind = "system"
)

// Failure is the persisted record of why a run did not succeed.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Step    string      `json:"step,omitempty"`
	Code    string      `json:"code"`
	Message string      `json:"message"`

	// ToolExitCode is the external tool's exit code for step failures.
	ToolExitCode int `json:"tool_exit_code,omitempty"`
}

// Validate checks the invariants required before persisting.
func (f Failure) Validate() error {
	switch f.Kind {
	case FailureConfig, FailureStep, FailureSystem:
	default:
		return fmt.Errorf("invalid failure kind %q", f.Kind)
	}
	if f.Code == "" {
		return errors.New("code is required")
	}
	if f.Message == "" {
		return errors.New("message is required")
	}
	return nil
}

// Classify maps a workflow error onto the failure taxonomy.
func Classify(err error) Failure {
	if err == nil {
		return Failure{Kind: FailureSystem, Code: "Unknown", Message: "unknown failure"}
	}

	var cfgErr *provision.ConfigurationError
	if errors.As(err, &cfgErr) {
		code := "Configuration"
		if errors.Is(err, provision.ErrManifestMissing) {
			code = "ManifestMissing"
		}
		return Failure{Kind: FailureConfig, Code: code, Message: err.Error()}
	}

	var toolErr *provision.ExternalToolFailure
	if errors.As(err, &toolErr) {
		return Failure{
			Kind:         FailureStep,
			Step:         string(toolErr.Step),
			Code:         "ExternalTool",
			Message:      err.Error(),
			ToolExitCode: toolErr.ExitCode,
		}
	}

	return Failure{Kind: FailureSystem, Code: "Internal", Message: err.Error()}
}
