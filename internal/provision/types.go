// Package provision implements the deterministic environment-provisioning
// workflow: interpreter check, environment creation, tooling upgrade,
// dependency installation, completion report.
package provision

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// InterpreterSpec pins the interpreter version the environment is built
// against. It is an immutable constant for a given invocation.
type InterpreterSpec struct {
	Version string
}

// Plan is the fully resolved description of what a provisioning run will do.
//
// All paths are relative to the Provisioner's working directory. The plan is
// the identity of a run: two runs with equal plans are attempts at the same
// end state.
type Plan struct {
	Interpreter InterpreterSpec
	EnvDir      string
	Manifest    string
	Platform    string
}

// PlanHash is the deterministic identity of a Plan.
type PlanHash string

func (h PlanHash) String() string { return string(h) }

// CanonicalJSON returns the canonical encoding of the plan with fixed field
// order. Byte-for-byte stability is required; the plan hash is computed over
// these bytes.
func (p Plan) CanonicalJSON() []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	buf.WriteString("\"interpreter\":")
	v, _ := json.Marshal(p.Interpreter.Version)
	buf.Write(v)
	buf.WriteString(",\"envDir\":")
	e, _ := json.Marshal(p.EnvDir)
	buf.Write(e)
	buf.WriteString(",\"manifest\":")
	m, _ := json.Marshal(p.Manifest)
	buf.Write(m)
	buf.WriteString(",\"platform\":")
	pl, _ := json.Marshal(p.Platform)
	buf.Write(pl)
	buf.WriteByte('}')
	return buf.Bytes()
}

// Hash returns the sha256 hex digest of the canonical plan encoding.
func (p Plan) Hash() PlanHash {
	sum := sha256.Sum256(p.CanonicalJSON())
	return PlanHash(hex.EncodeToString(sum[:]))
}

// Env is an explicit environment snapshot. The engine never reads the
// process environment; callers capture it once at the boundary.
type Env map[string]string

// EnvFromSlice builds a snapshot from "KEY=VALUE" pairs (os.Environ form).
func EnvFromSlice(pairs []string) Env {
	e := make(Env, len(pairs))
	for _, kv := range pairs {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			continue
		}
		e[kv[:i]] = kv[i+1:]
	}
	return e
}

// Clone returns an independent copy of the snapshot.
func (e Env) Clone() Env {
	out := make(Env, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Slice renders the snapshot in exec form, sorted by key so child processes
// see a deterministic environment.
func (e Env) Slice() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+e[k])
	}
	return out
}

// SetPath replaces the PATH entry regardless of key casing. Windows exposes
// the variable as "Path"; a case-sensitive set would leave two entries with
// undefined child-process behavior.
func (e Env) SetPath(value string) {
	for k := range e {
		if strings.EqualFold(k, "PATH") {
			delete(e, k)
		}
	}
	e["PATH"] = value
}

// Result is the outcome of a provisioning run.
type Result struct {
	// FinalState is Done on success, Failed otherwise.
	FinalState WorkflowState

	// FailedStep is the state that was active when the run failed; empty on
	// success.
	FailedStep WorkflowState

	// ActivationCommand is the platform command that activates the
	// environment. Populated only when FinalState is Done.
	ActivationCommand string
}
