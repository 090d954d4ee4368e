package provision

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ProvisionTrace is the canonical, deterministic record of a provisioning
// run.
//
// Invariants:
//   - Captures the PlanHash and an ordered list of logical events.
//   - Contains decisions (found vs installed, created vs reused), never
//     runtime-dependent details.
//   - No timestamps, pointers, durations, or host-dependent values.
//
// Canonical representation:
//   - Events are sorted via Canonicalize() using a fully specified ordering.
//   - JSON serialization uses a custom marshaler to fix field order and omit
//     absent optional fields.
//
// The trace is observational only and must never affect workflow behavior.
type ProvisionTrace struct {
	PlanHash string
	Events   []StepEvent
}

// StepEventKind is the stable discriminator for StepEvent. The string values
// are part of the trace's canonical bytes; do not rename.
type StepEventKind string

const (
	EventInterpreterFound      StepEventKind = "InterpreterFound"
	EventInterpreterInstalled  StepEventKind = "InterpreterInstalled"
	EventPathRefreshed         StepEventKind = "PathRefreshed"
	EventEnvironmentCreated    StepEventKind = "EnvironmentCreated"
	EventEnvironmentReused     StepEventKind = "EnvironmentReused"
	EventToolingUpgraded       StepEventKind = "ToolingUpgraded"
	EventDependenciesInstalled StepEventKind = "DependenciesInstalled"
	EventManifestMissing       StepEventKind = "ManifestMissing"
	EventStepFailed            StepEventKind = "StepFailed"
)

// StepEvent is a single logical decision or transition.
//
// Determinism constraints:
//   - No timestamps.
//   - No raw error strings beyond the stable Reason code.
//   - Command is the rendered command line, which is itself deterministic
//     for a given plan and platform.
type StepEvent struct {
	Kind StepEventKind

	// Step is the workflow state the event belongs to. Required.
	Step WorkflowState

	// Reason is a stable, logical reason code (e.g. "NotOnPath",
	// "DirExists", "NonZeroExit"). Producers must keep values stable.
	Reason string

	// Command is the rendered external command the event refers to, when
	// one exists.
	Command string
}

// Validate checks basic invariants and returns a descriptive error.
func (t *ProvisionTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.PlanHash == "" {
		return errors.New("planHash is required")
	}
	for i := range t.Events {
		e := t.Events[i]
		if e.Kind == "" {
			return fmt.Errorf("events[%d].kind is required", i)
		}
		if e.Step == "" {
			return fmt.Errorf("events[%d].step is required", i)
		}
	}
	return nil
}

// Canonicalize sorts the trace into its canonical form.
//
// The ordering is a total order over (step position, kind, reason, command),
// independent of collection order.
func (t *ProvisionTrace) Canonicalize() {
	if t == nil {
		return
	}
	sort.SliceStable(t.Events, func(i, j int) bool {
		a := t.Events[i]
		b := t.Events[j]
		if stepOrder(a.Step) != stepOrder(b.Step) {
			return stepOrder(a.Step) < stepOrder(b.Step)
		}
		if kindOrder(a.Kind) != kindOrder(b.Kind) {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		if a.Reason != b.Reason {
			return a.Reason < b.Reason
		}
		return a.Command < b.Command
	})
}

func kindOrder(k StepEventKind) int {
	switch k {
	case EventInterpreterFound:
		return 10
	case EventInterpreterInstalled:
		return 20
	case EventPathRefreshed:
		return 30
	case EventEnvironmentCreated:
		return 40
	case EventEnvironmentReused:
		return 50
	case EventToolingUpgraded:
		return 60
	case EventDependenciesInstalled:
		return 70
	case EventManifestMissing:
		return 80
	case EventStepFailed:
		return 90
	default:
		return 1000
	}
}

// CanonicalJSON returns the canonical JSON encoding of the trace. It
// canonicalizes a copy to avoid mutating the caller's slice.
func (t ProvisionTrace) CanonicalJSON() ([]byte, error) {
	copyTrace := ProvisionTrace{PlanHash: t.PlanHash}
	copyTrace.Events = make([]StepEvent, len(t.Events))
	copy(copyTrace.Events, t.Events)
	copyTrace.Canonicalize()
	if err := copyTrace.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(&copyTrace)
}

// TraceHash returns the sha256 hex digest of the canonical JSON bytes.
func (t ProvisionTrace) TraceHash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// MarshalJSON ensures canonical field ordering.
func (t ProvisionTrace) MarshalJSON() ([]byte, error) {
	if t.PlanHash == "" {
		return nil, errors.New("planHash is required")
	}
	var buf bytes.Buffer
	buf.WriteByte('{')

	buf.WriteString("\"planHash\":")
	ph, _ := json.Marshal(t.PlanHash)
	buf.Write(ph)
	buf.WriteByte(',')

	buf.WriteString("\"events\":[")
	for i := range t.Events {
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := json.Marshal(t.Events[i])
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}
	buf.WriteByte(']')

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON ensures canonical field ordering and omission of empty optional
// fields.
func (e StepEvent) MarshalJSON() ([]byte, error) {
	if e.Kind == "" {
		return nil, errors.New("kind is required")
	}

	var buf bytes.Buffer
	buf.WriteByte('{')

	buf.WriteString("\"kind\":")
	kb, _ := json.Marshal(string(e.Kind))
	buf.Write(kb)

	buf.WriteByte(',')
	buf.WriteString("\"step\":")
	sb, _ := json.Marshal(string(e.Step))
	buf.Write(sb)

	if e.Reason != "" {
		buf.WriteByte(',')
		buf.WriteString("\"reason\":")
		rb, _ := json.Marshal(e.Reason)
		buf.Write(rb)
	}

	if e.Command != "" {
		buf.WriteByte(',')
		buf.WriteString("\"command\":")
		cb, _ := json.Marshal(e.Command)
		buf.Write(cb)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
