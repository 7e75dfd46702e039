package hooks

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// defaultCommandTimeout applies to command hooks with no configured timeout.
const defaultCommandTimeout = 60 * time.Second

// CommandResult is the outcome of one command hook invocation.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Err      error
}

// CommandRunner is the external command-execution collaborator. The core
// decides whether to invoke it and with what gating; the runner owns the
// subprocess mechanics.
type CommandRunner interface {
	Run(ctx context.Context, command string, timeout time.Duration, input []byte) CommandResult
}

// Confirmer decides interactive approval for permission-gated commands.
type Confirmer interface {
	Confirm(ctx context.Context, command string) bool
}

// ShellRunner is the default CommandRunner: sh -c with the hook payload on
// stdin and captured stdio. A timeout cancels the invocation and is
// reported as a failed execution, never propagated as a crash.
type ShellRunner struct {
	// Dir is the working directory for spawned commands; empty means the
	// process working directory.
	Dir string
}

// Run executes command under the given timeout.
func (r *ShellRunner) Run(ctx context.Context, command string, timeout time.Duration, input []byte) CommandResult {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Dir = r.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
		Err:    err,
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
	}
	return result
}
