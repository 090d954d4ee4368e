package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"envforge/internal/config"
	"envforge/internal/provision"
	"envforge/internal/runlog"
)

// Options are the injectable collaborators for Execute. Zero values select
// the real system implementations; tests substitute fakes.
type Options struct {
	Platform provision.Platform
	Runner   provision.Runner
	Env      provision.Env
	Stdout   io.Writer
	Logger   *slog.Logger
}

// CLIResult is the semantic outcome of an invocation.
type CLIResult struct {
	ExitCode  int
	Provision *provision.Result
}

// Execute runs a canonical invocation against the real system.
func Execute(ctx context.Context, inv Invocation) (CLIResult, error) {
	return ExecuteWithOptions(ctx, inv, Options{})
}

// ExecuteWithOptions maps a canonical Invocation to workflow execution.
//
// Responsibilities:
//   - Layer configuration: defaults, then envforge.yaml, then flag overrides.
//   - Select the platform implementation and command runner.
//   - Record the run (and any failure) in the run log.
//   - Write the canonical trace file when requested, even on panic.
//   - Translate workflow outcomes to exit codes. A failed external tool's
//     exit code passes through unchanged; the missing manifest keeps a
//     dedicated exit code independent of any external tool.
func ExecuteWithOptions(ctx context.Context, inv Invocation, opts Options) (res CLIResult, execErr error) {
	res.ExitCode = ExitInternalError

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	// Initialize the run log as early as possible so failures get recorded.
	st, _ := runlog.NewStore(inv.WorkDir)
	rec := &runlog.Recorder{Store: st}
	runID := rec.NewRunID()

	cfgPath := inv.ConfigPath
	if cfgPath == "" {
		cfgPath = filepath.Join(inv.WorkDir, config.DefaultFileName)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		_ = rec.RecordFailure(runID, err)
		res.ExitCode = ExitInvalidInvocation
		return res, err
	}
	if inv.Interpreter != "" {
		cfg.Interpreter = inv.Interpreter
	}
	if inv.EnvDir != "" {
		cfg.EnvDir = inv.EnvDir
	}
	if inv.Manifest != "" {
		cfg.Manifest = inv.Manifest
	}
	if inv.TracePath != "" {
		cfg.TracePath = inv.TracePath
	}
	if err := cfg.Validate(); err != nil {
		_ = rec.RecordFailure(runID, err)
		res.ExitCode = ExitInvalidInvocation
		return res, err
	}

	platform := opts.Platform
	if platform == nil {
		platform, err = provision.DetectPlatform(runtime.GOOS)
		if err != nil {
			_ = rec.RecordFailure(runID, err)
			return res, err
		}
	}
	runner := opts.Runner
	if runner == nil {
		runner = provision.ExecRunner{}
	}
	env := opts.Env
	if env == nil {
		env = provision.EnvFromSlice(os.Environ())
	}

	plan := provision.Plan{
		Interpreter: provision.InterpreterSpec{Version: cfg.Interpreter},
		EnvDir:      cfg.EnvDir,
		Manifest:    cfg.Manifest,
		Platform:    platform.Name(),
	}
	planHash := plan.Hash().String()

	_ = rec.StartRun(runlog.Run{
		RunID:     runID,
		PlanHash:  planHash,
		Platform:  platform.Name(),
		StartTime: time.Now().UTC(),
		Status:    runlog.StatusRunning,
	})

	recorder := provision.NewTraceRecorder()
	tracePath := ""
	if cfg.TracePath != "" {
		tracePath = resolveUnderWorkDir(inv.WorkDir, cfg.TracePath)
	}
	defer func() {
		// Always finalize the trace artifact deterministically.
		if tracePath == "" {
			return
		}
		if err := writeTrace(tracePath, recorder.Trace(planHash)); err != nil && execErr == nil {
			logger.Error("trace write failed", "path", tracePath, "error", err)
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			res.ExitCode = ExitInternalError
			res.Provision = nil
			execErr = fmt.Errorf("panic: %v", r)
			_ = rec.RecordFailure(runID, execErr)
			_ = rec.FinishRun(runID, runlog.StatusFailed, string(provision.StateFailed))
		}
	}()

	p := provision.NewProvisioner(inv.WorkDir, env, platform, runner, plan)
	p.Trace = recorder
	p.Logger = logger
	if opts.Stdout != nil {
		p.Out = opts.Stdout
	}

	result, err := p.Run(ctx)
	res.Provision = result
	if err != nil {
		_ = rec.RecordFailure(runID, err)
		_ = rec.FinishRun(runID, runlog.StatusFailed, string(result.FinalState))
		res.ExitCode = translateError(err)
		return res, err
	}

	_ = rec.FinishRun(runID, runlog.StatusSucceeded, string(result.FinalState))
	res.ExitCode = ExitSuccess
	return res, nil
}

func translateError(err error) int {
	if errors.Is(err, provision.ErrManifestMissing) {
		return ExitManifestMissing
	}
	var toolErr *provision.ExternalToolFailure
	if errors.As(err, &toolErr) {
		// The failed tool's own exit code becomes the process exit status.
		if toolErr.ExitCode != 0 {
			return toolErr.ExitCode
		}
		// The tool never produced one (start failure, cancellation).
		return ExitStepFailure
	}
	return ExitInternalError
}

func writeTrace(path string, t provision.ProvisionTrace) error {
	b, err := t.CanonicalJSON()
	if err != nil {
		return err
	}
	return writeFileAtomic(path, b, 0o644)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	_ = tmp.Sync() // best-effort durability
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
