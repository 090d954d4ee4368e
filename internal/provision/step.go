package provision

import "fmt"

// WorkflowState is the state of the provisioning workflow.
//
// The workflow is strictly linear: each state has exactly one success
// successor plus the terminal Failed state. No cycles, no re-entry.
type WorkflowState string

const (
	StateCheckingInterpreter WorkflowState = "CHECKING_INTERPRETER"
	StateCreatingEnv         WorkflowState = "CREATING_ENV"
	StateUpgradingTooling    WorkflowState = "UPGRADING_TOOLING"
	StateInstallingDeps      WorkflowState = "INSTALLING_DEPS"
	StateDone                WorkflowState = "DONE"
	StateFailed              WorkflowState = "FAILED"
)

// IsTerminal reports whether the state is terminal.
func IsTerminal(s WorkflowState) bool {
	return s == StateDone || s == StateFailed
}

// Machine enforces the workflow's transition rules. It exists so that a
// sequencing bug (e.g. installing dependencies before the environment step
// completed) is an observable error rather than silent misbehavior.
type Machine struct {
	current WorkflowState
}

// NewMachine returns a machine positioned at the initial state.
func NewMachine() *Machine {
	return &Machine{current: StateCheckingInterpreter}
}

// Current returns the active state.
func (m *Machine) Current() WorkflowState { return m.current }

// Advance moves the machine to its success successor.
func (m *Machine) Advance() error {
	next, ok := successor[m.current]
	if !ok {
		return fmt.Errorf("no successor from terminal state %s", m.current)
	}
	m.current = next
	return nil
}

// Fail moves the machine to the terminal Failed state from any non-terminal
// state.
func (m *Machine) Fail() error {
	if IsTerminal(m.current) {
		return fmt.Errorf("disallowed transition: %s -> %s", m.current, StateFailed)
	}
	m.current = StateFailed
	return nil
}

var successor = map[WorkflowState]WorkflowState{
	StateCheckingInterpreter: StateCreatingEnv,
	StateCreatingEnv:         StateUpgradingTooling,
	StateUpgradingTooling:    StateInstallingDeps,
	StateInstallingDeps:      StateDone,
}

// stepOrder is the canonical position of a state in the workflow. Used by
// trace canonicalization; the values are part of the trace contract.
func stepOrder(s WorkflowState) int {
	switch s {
	case StateCheckingInterpreter:
		return 10
	case StateCreatingEnv:
		return 20
	case StateUpgradingTooling:
		return 30
	case StateInstallingDeps:
		return 40
	case StateDone:
		return 50
	case StateFailed:
		return 60
	default:
		return 1000
	}
}
