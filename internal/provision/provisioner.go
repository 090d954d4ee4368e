package provision

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Provisioner drives the full provisioning workflow:
//
//  1. Check the pinned interpreter; install via the package source if absent.
//  2. Create the isolated environment directory if missing.
//  3. Upgrade the environment's packaging toolchain to latest.
//  4. Install manifest dependencies (fail fast if the manifest is absent).
//  5. Report the activation command.
//
// Every step is idempotent or naturally safe to repeat, so a failed run can
// simply be retried; there are no cleanup handlers and no retries inside the
// workflow itself.
//
// The working directory and environment snapshot are explicit inputs. The
// engine never consults the process CWD or os.Environ.
type Provisioner struct {
	// WorkDir is the absolute directory being provisioned.
	WorkDir string

	// Env is the environment snapshot passed to every external command.
	// The interpreter-check step may replace its PATH entry after an
	// install.
	Env Env

	// Plan describes what to provision.
	Plan Plan

	// Platform supplies the OS-specific commands.
	Platform Platform

	// Runner dispatches external commands.
	Runner Runner

	// Trace receives logical step events. Optional.
	Trace Sink

	// Logger receives structured step logging. Optional.
	Logger *slog.Logger

	// Out receives the completion banner.
	Out io.Writer

	// Stat is the filesystem probe used for existence checks. Tests inject
	// a fake; the default is os.Stat.
	Stat func(name string) (os.FileInfo, error)
}

// NewProvisioner builds a Provisioner with real-system defaults.
func NewProvisioner(workDir string, env Env, platform Platform, runner Runner, plan Plan) *Provisioner {
	return &Provisioner{
		WorkDir:  workDir,
		Env:      env,
		Plan:     plan,
		Platform: platform,
		Runner:   runner,
		Trace:    NopSink{},
		Out:      os.Stdout,
		Stat:     os.Stat,
	}
}

// Run executes the workflow. The returned Result always carries the terminal
// state; err is non-nil exactly when that state is Failed.
func (p *Provisioner) Run(ctx context.Context) (*Result, error) {
	if err := p.validate(); err != nil {
		return &Result{FinalState: StateFailed}, err
	}

	m := NewMachine()

	if err := p.checkInterpreter(ctx, m); err != nil {
		return p.failResult(m, err)
	}
	if err := m.Advance(); err != nil {
		return p.failResult(m, err)
	}

	if err := p.createEnvironment(ctx, m); err != nil {
		return p.failResult(m, err)
	}
	if err := m.Advance(); err != nil {
		return p.failResult(m, err)
	}

	if err := p.upgradeTooling(ctx, m); err != nil {
		return p.failResult(m, err)
	}
	if err := m.Advance(); err != nil {
		return p.failResult(m, err)
	}

	if err := p.installDependencies(ctx, m); err != nil {
		return p.failResult(m, err)
	}
	if err := m.Advance(); err != nil {
		return p.failResult(m, err)
	}

	activation := p.Platform.ActivationCommand(p.Plan.EnvDir)
	p.report(activation)

	return &Result{
		FinalState:        StateDone,
		ActivationCommand: activation,
	}, nil
}

func (p *Provisioner) validate() error {
	if p.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	if !filepath.IsAbs(p.WorkDir) {
		return fmt.Errorf("work dir must be absolute (got %q)", p.WorkDir)
	}
	if p.Platform == nil {
		return fmt.Errorf("platform is required")
	}
	if p.Runner == nil {
		return fmt.Errorf("runner is required")
	}
	if p.Plan.Interpreter.Version == "" {
		return fmt.Errorf("interpreter version is required")
	}
	if p.Plan.EnvDir == "" {
		return fmt.Errorf("environment dir is required")
	}
	if p.Plan.Manifest == "" {
		return fmt.Errorf("manifest name is required")
	}
	return nil
}

// checkInterpreter probes for the pinned interpreter and installs it when
// the probe fails. Detection is version-specific: a different installed
// version does not count as found.
func (p *Provisioner) checkInterpreter(ctx context.Context, m *Machine) error {
	detect := p.bind(p.Platform.DetectInterpreter(p.Plan.Interpreter))
	res, err := p.Runner.Run(ctx, detect)
	if err != nil && ctx.Err() != nil {
		return err
	}

	if err == nil && res.ExitCode == 0 {
		p.log().Info("interpreter found", "version", p.Plan.Interpreter.Version)
		SafeRecord(p.Trace, StepEvent{
			Kind:    EventInterpreterFound,
			Step:    m.Current(),
			Command: detect.String(),
		})
		return nil
	}

	reason := "NonZeroExit"
	if err != nil {
		reason = "NotOnPath"
	}
	p.log().Info("interpreter missing, installing",
		"version", p.Plan.Interpreter.Version, "reason", reason)

	install := p.bind(p.Platform.InstallInterpreter(p.Plan.Interpreter))
	if _, err := p.runExternal(ctx, m, install); err != nil {
		return err
	}
	SafeRecord(p.Trace, StepEvent{
		Kind:    EventInterpreterInstalled,
		Step:    m.Current(),
		Reason:  reason,
		Command: install.String(),
	})

	return p.refreshPath(ctx, m)
}

// refreshPath re-reads PATH after an interpreter install on platforms where
// the in-process snapshot would otherwise go stale.
func (p *Provisioner) refreshPath(ctx context.Context, m *Machine) error {
	refresh, ok := p.Platform.RefreshPath()
	if !ok {
		return nil
	}
	refresh = p.bind(refresh)
	res, err := p.runExternal(ctx, m, refresh)
	if err != nil {
		return err
	}
	p.Env = p.Env.Clone()
	p.Env.SetPath(strings.TrimSpace(string(res.Stdout)))
	p.log().Info("path refreshed")
	SafeRecord(p.Trace, StepEvent{
		Kind:    EventPathRefreshed,
		Step:    m.Current(),
		Command: refresh.String(),
	})
	return nil
}

// createEnvironment creates the isolated environment unless it already
// exists. The skip branch performs zero filesystem-mutating operations.
func (p *Provisioner) createEnvironment(ctx context.Context, m *Machine) error {
	envPath := filepath.Join(p.WorkDir, p.Plan.EnvDir)
	if info, err := p.Stat(envPath); err == nil && info.IsDir() {
		p.log().Info("environment exists, skipping creation", "dir", p.Plan.EnvDir)
		SafeRecord(p.Trace, StepEvent{
			Kind:   EventEnvironmentReused,
			Step:   m.Current(),
			Reason: "DirExists",
		})
		return nil
	}

	create := p.bind(p.Platform.CreateEnvironment(p.Plan.Interpreter, p.Plan.EnvDir))
	if _, err := p.runExternal(ctx, m, create); err != nil {
		return err
	}
	p.log().Info("environment created", "dir", p.Plan.EnvDir)
	SafeRecord(p.Trace, StepEvent{
		Kind:    EventEnvironmentCreated,
		Step:    m.Current(),
		Command: create.String(),
	})
	return nil
}

func (p *Provisioner) upgradeTooling(ctx context.Context, m *Machine) error {
	upgrade := p.bind(p.Platform.UpgradeTooling(p.Plan.EnvDir))
	if _, err := p.runExternal(ctx, m, upgrade); err != nil {
		return err
	}
	p.log().Info("tooling upgraded")
	SafeRecord(p.Trace, StepEvent{
		Kind:    EventToolingUpgraded,
		Step:    m.Current(),
		Command: upgrade.String(),
	})
	return nil
}

// installDependencies is the one deliberate fail-fast branch: a missing
// manifest aborts before any installer invocation with a configuration
// error, distinguishable from every external-tool failure.
func (p *Provisioner) installDependencies(ctx context.Context, m *Machine) error {
	manifestPath := filepath.Join(p.WorkDir, p.Plan.Manifest)
	if info, err := p.Stat(manifestPath); err != nil || info.IsDir() {
		p.log().Error("manifest not found", "manifest", p.Plan.Manifest)
		SafeRecord(p.Trace, StepEvent{
			Kind:   EventManifestMissing,
			Step:   m.Current(),
			Reason: "FileMissing",
		})
		return &ConfigurationError{Kind: ErrManifestMissing, Path: p.Plan.Manifest}
	}

	install := p.bind(p.Platform.InstallDependencies(p.Plan.EnvDir, p.Plan.Manifest))
	if _, err := p.runExternal(ctx, m, install); err != nil {
		return err
	}
	p.log().Info("dependencies installed", "manifest", p.Plan.Manifest)
	SafeRecord(p.Trace, StepEvent{
		Kind:    EventDependenciesInstalled,
		Step:    m.Current(),
		Command: install.String(),
	})
	return nil
}

// report prints the success banner and activation instructions. It is pure
// console output and cannot fail.
func (p *Provisioner) report(activation string) {
	out := p.Out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintln(out, "Environment ready.")
	fmt.Fprintf(out, "Activate it with:\n\n  %s\n", activation)
}

// bind attaches the working directory and environment snapshot to a
// platform-built command.
func (p *Provisioner) bind(cmd Command) Command {
	cmd.Dir = p.WorkDir
	cmd.Env = p.Env.Slice()
	return cmd
}

// runExternal dispatches a command and converts any failure into an
// ExternalToolFailure carrying the tool's own exit code and stderr.
func (p *Provisioner) runExternal(ctx context.Context, m *Machine, cmd Command) (*CommandResult, error) {
	res, err := p.Runner.Run(ctx, cmd)
	if err != nil {
		return nil, &ExternalToolFailure{
			Step:    m.Current(),
			Command: cmd.String(),
			Cause:   err,
		}
	}
	if res.ExitCode != 0 {
		return nil, &ExternalToolFailure{
			Step:     m.Current(),
			Command:  cmd.String(),
			ExitCode: res.ExitCode,
			Stderr:   string(res.Stderr),
		}
	}
	return res, nil
}

// failResult records the failure, transitions to Failed, and packages the
// terminal result.
func (p *Provisioner) failResult(m *Machine, err error) (*Result, error) {
	failed := m.Current()
	SafeRecord(p.Trace, StepEvent{
		Kind:   EventStepFailed,
		Step:   failed,
		Reason: failureReason(err),
	})
	if !IsTerminal(m.Current()) {
		_ = m.Fail()
	}
	p.log().Error("provisioning failed", "step", string(failed), "error", err)
	return &Result{FinalState: StateFailed, FailedStep: failed}, err
}

func failureReason(err error) string {
	switch err.(type) {
	case *ConfigurationError:
		return "Configuration"
	case *ExternalToolFailure:
		return "ExternalTool"
	default:
		return "Internal"
	}
}

func (p *Provisioner) log() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
