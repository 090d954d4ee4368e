package provision

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Command is a single external invocation. Commands are plain values so
// tests can assert on exactly what would run without touching the system.
type Command struct {
	Name string
	Args []string

	// Dir is the working directory for the invocation.
	Dir string

	// Env is the full environment in exec form. An empty slice means the
	// child sees no variables; the engine always passes the explicit
	// snapshot it was constructed with.
	Env []string
}

// String renders the command for diagnostics and trace events.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// CommandResult captures the observable outcome of an invocation.
type CommandResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner dispatches commands. The engine only ever talks to external tools
// through this interface; tests substitute a recording fake.
type Runner interface {
	// Run executes the command and returns its result. A non-zero exit is
	// not an error: the result carries the exit code and the caller decides.
	// An error means the command could not be run at all (binary not found,
	// context cancelled).
	Run(ctx context.Context, cmd Command) (*CommandResult, error)
}

// ExecRunner runs commands as real subprocesses.
type ExecRunner struct{}

// Run executes the command, blocking until it exits or the context is
// cancelled. On cancellation the process is killed and the context error is
// returned.
func (ExecRunner) Run(ctx context.Context, cmd Command) (*CommandResult, error) {
	if cmd.Name == "" {
		return nil, fmt.Errorf("command name is empty")
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = cmd.Env

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("command cancelled: %w", ctx.Err())
	}

	exitCode := 0
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			// The command never started (typically: binary not on PATH).
			return nil, fmt.Errorf("failed to start %q: %w", cmd.Name, err)
		}
		exitCode = exitErr.ExitCode()
	}

	return &CommandResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
	}, nil
}
