package cli

import (
	"context"
	"os"
)

// Run is a high-level CLI entrypoint suitable for black-box tests.
// It accepts the argument slice (excluding argv[0]) and returns the semantic
// exit code plus any error.
func Run(ctx context.Context, args []string) (CLIResult, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return CLIResult{ExitCode: ExitInternalError}, err
	}
	inv, err := ParseInvocation(args, cwd)
	if err != nil {
		return CLIResult{ExitCode: ExitCodeFor(err)}, err
	}
	return Execute(ctx, inv)
}
