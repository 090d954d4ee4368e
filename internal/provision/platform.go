package provision

import (
	"fmt"
	"path"
)

// Platform builds the concrete commands for one operating system. The
// workflow itself is platform-neutral; everything OS-specific lives behind
// this interface, with the implementation selected once at startup.
type Platform interface {
	Name() string

	// DetectInterpreter probes for the pinned interpreter version. Exit
	// code 0 means found. A start failure (binary not on PATH) also means
	// not found.
	DetectInterpreter(spec InterpreterSpec) Command

	// InstallInterpreter installs the pinned version through the platform
	// package source. Requires elevated privileges and network access.
	InstallInterpreter(spec InterpreterSpec) Command

	// RefreshPath returns a command whose stdout is the post-install PATH
	// value, or ok=false when the platform does not need an in-process
	// refresh. Child processes inherit the snapshot taken at startup, so
	// on Windows a freshly installed interpreter is invisible without this.
	RefreshPath() (cmd Command, ok bool)

	// CreateEnvironment creates the isolated environment directory, bound
	// to the pinned interpreter version.
	CreateEnvironment(spec InterpreterSpec, envDir string) Command

	// UpgradeTooling upgrades the environment's packaging toolchain to
	// latest. Tooling is deliberately unpinned.
	UpgradeTooling(envDir string) Command

	// InstallDependencies installs everything listed in the manifest into
	// the environment, transitively.
	InstallDependencies(envDir, manifest string) Command

	// ActivationCommand is the exact command a user runs to activate the
	// environment.
	ActivationCommand(envDir string) string
}

// DetectPlatform selects the implementation for the given GOOS value.
func DetectPlatform(goos string) (Platform, error) {
	switch goos {
	case "linux":
		return Linux(), nil
	case "windows":
		return Windows(), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %q", goos)
	}
}

// Linux provisions with the system package manager and the versioned
// python3.x launcher.
func Linux() Platform { return linuxPlatform{} }

type linuxPlatform struct{}

func (linuxPlatform) Name() string { return "linux" }

func (linuxPlatform) interpreter(spec InterpreterSpec) string {
	return "python" + spec.Version
}

func (p linuxPlatform) DetectInterpreter(spec InterpreterSpec) Command {
	return Command{Name: p.interpreter(spec), Args: []string{"--version"}}
}

func (p linuxPlatform) InstallInterpreter(spec InterpreterSpec) Command {
	bin := p.interpreter(spec)
	return Command{
		Name: "sudo",
		Args: []string{"apt-get", "install", "-y", bin, bin + "-venv"},
	}
}

func (linuxPlatform) RefreshPath() (Command, bool) {
	// apt installs into /usr/bin, which is already on PATH.
	return Command{}, false
}

func (p linuxPlatform) CreateEnvironment(spec InterpreterSpec, envDir string) Command {
	return Command{Name: p.interpreter(spec), Args: []string{"-m", "venv", envDir}}
}

func (linuxPlatform) envPython(envDir string) string {
	return path.Join(envDir, "bin", "python")
}

func (p linuxPlatform) UpgradeTooling(envDir string) Command {
	return Command{
		Name: p.envPython(envDir),
		Args: []string{"-m", "pip", "install", "--upgrade", "pip", "setuptools", "wheel"},
	}
}

func (p linuxPlatform) InstallDependencies(envDir, manifest string) Command {
	return Command{
		Name: p.envPython(envDir),
		Args: []string{"-m", "pip", "install", "-r", manifest},
	}
}

func (linuxPlatform) ActivationCommand(envDir string) string {
	return "source " + envDir + "/bin/activate"
}

// Windows provisions with winget and the py launcher.
func Windows() Platform { return windowsPlatform{} }

type windowsPlatform struct{}

func (windowsPlatform) Name() string { return "windows" }

func (windowsPlatform) DetectInterpreter(spec InterpreterSpec) Command {
	return Command{Name: "py", Args: []string{"-" + spec.Version, "--version"}}
}

func (windowsPlatform) InstallInterpreter(spec InterpreterSpec) Command {
	return Command{
		Name: "winget",
		Args: []string{
			"install", "--id", "Python.Python." + spec.Version, "-e",
			"--accept-source-agreements", "--accept-package-agreements",
		},
	}
}

func (windowsPlatform) RefreshPath() (Command, bool) {
	// The machine and user PATH hives are re-read so the freshly installed
	// launcher is visible without restarting the shell.
	return Command{
		Name: "powershell",
		Args: []string{
			"-NoProfile", "-Command",
			"[Environment]::GetEnvironmentVariable('Path','Machine') + ';' + [Environment]::GetEnvironmentVariable('Path','User')",
		},
	}, true
}

func (windowsPlatform) CreateEnvironment(spec InterpreterSpec, envDir string) Command {
	return Command{Name: "py", Args: []string{"-" + spec.Version, "-m", "venv", envDir}}
}

func (windowsPlatform) envPython(envDir string) string {
	// Built with explicit separators so the command is identical regardless
	// of the host the engine happens to be compiled on.
	return envDir + `\Scripts\python.exe`
}

func (p windowsPlatform) UpgradeTooling(envDir string) Command {
	return Command{
		Name: p.envPython(envDir),
		Args: []string{"-m", "pip", "install", "--upgrade", "pip", "setuptools", "wheel"},
	}
}

func (p windowsPlatform) InstallDependencies(envDir, manifest string) Command {
	return Command{
		Name: p.envPython(envDir),
		Args: []string{"-m", "pip", "install", "-r", manifest},
	}
}

func (windowsPlatform) ActivationCommand(envDir string) string {
	return envDir + `\Scripts\Activate.ps1`
}
