package provision

import (
	"errors"
	"fmt"
	"strings"
)

// ErrManifestMissing marks the one deliberate fail-fast branch of the
// workflow: the dependency manifest is absent. This is a configuration
// error, distinguishable from every external-tool failure.
var ErrManifestMissing = errors.New("manifest not found")

// ConfigurationError wraps configuration preconditions the user must fix
// before the workflow can proceed.
type ConfigurationError struct {
	Kind error
	Path string
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Path == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Path)
}

func (e *ConfigurationError) Unwrap() error { return e.Kind }

// ExternalToolFailure is a non-zero exit (or start failure) from an invoked
// installer, package manager, or environment-creation command. It is never
// retried or translated; the tool's own exit code and stderr are surfaced
// verbatim.
type ExternalToolFailure struct {
	Step     WorkflowState
	Command  string
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *ExternalToolFailure) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("step %s: %s: %v", e.Step, e.Command, e.Cause)
	}
	msg := fmt.Sprintf("step %s: %s exited with code %d", e.Step, e.Command, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ExternalToolFailure) Unwrap() error { return e.Cause }
