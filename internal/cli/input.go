package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// A failed workflow step exits with the failed tool's own exit code,
// unchanged. The codes below cover every other outcome; ExitStepFailure is
// the fallback for step failures where the tool never produced an exit code
// (it could not be started at all).
const (
	ExitSuccess           = 0
	ExitStepFailure       = 1
	ExitInvalidInvocation = 2
	ExitManifestMissing   = 3
	ExitInternalError     = 4
)

// Invocation is the fully canonicalized description of a provisioning run.
//
// The zero-flag invocation is the primary contract: running envforge with no
// arguments provisions the current working directory with all defaults.
// Every flag is an optional override.
//
// All relative paths are resolved under WorkDir; WorkDir itself must be
// absolute so nothing depends on the process current working directory after
// parsing.
type Invocation struct {
	WorkDir    string
	ConfigPath string

	// Overrides; empty means "use config/defaults".
	Interpreter string
	EnvDir      string
	Manifest    string
	TracePath   string
}

type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// ParseInvocation parses CLI flags into a canonical Invocation. cwd is the
// caller-captured working directory used when -workdir is not given; it must
// be absolute.
func ParseInvocation(args []string, cwd string) (Invocation, error) {
	fs := flag.NewFlagSet("envforge", flag.ContinueOnError)
	fs.SetOutput(io.Discard) // parsing errors are returned, not printed

	var workDir string
	var configPath string
	var interpreter string
	var envDir string
	var manifest string
	var tracePath string

	fs.StringVar(&workDir, "workdir", "", "Directory to provision. Defaults to the current directory.")
	fs.StringVar(&configPath, "config", "", "Config file path. Defaults to envforge.yaml in the work dir.")
	fs.StringVar(&interpreter, "interpreter", "", "Interpreter version override, e.g. 3.11.")
	fs.StringVar(&envDir, "env-dir", "", "Environment directory override.")
	fs.StringVar(&manifest, "manifest", "", "Dependency manifest override.")
	fs.StringVar(&tracePath, "trace", "", "Trace output path (optional).")

	if err := fs.Parse(args); err != nil {
		return Invocation{}, invalidInvocationf("%v", err)
	}
	if fs.NArg() != 0 {
		return Invocation{}, invalidInvocationf("unexpected positional arguments: %q", strings.Join(fs.Args(), " "))
	}

	if workDir == "" {
		workDir = cwd
	}
	workDir = filepath.Clean(workDir)
	if workDir == "" || workDir == "." {
		return Invocation{}, invalidInvocationf("working directory could not be determined")
	}
	if !filepath.IsAbs(workDir) {
		return Invocation{}, invalidInvocationf("-workdir must be an absolute path (got %q)", workDir)
	}

	inv := Invocation{
		WorkDir:     workDir,
		Interpreter: strings.TrimSpace(interpreter),
		EnvDir:      strings.TrimSpace(envDir),
		Manifest:    strings.TrimSpace(manifest),
	}

	if strings.TrimSpace(configPath) != "" {
		inv.ConfigPath = resolveUnderWorkDir(workDir, configPath)
	}
	if strings.TrimSpace(tracePath) != "" {
		inv.TracePath = resolveUnderWorkDir(workDir, tracePath)
	}

	return inv, nil
}

func resolveUnderWorkDir(workDir, p string) string {
	clean := filepath.Clean(p)
	if filepath.IsAbs(clean) {
		return clean
	}
	// WorkDir is absolute, so Join does not consult the process CWD.
	return filepath.Clean(filepath.Join(workDir, clean))
}

// ExitCodeFor extracts a semantic exit code from a ParseInvocation error.
func ExitCodeFor(err error) int {
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	if err == nil {
		return ExitSuccess
	}
	return ExitInternalError
}
