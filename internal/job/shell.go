package job

import (
	"context"
	"fmt"

	"github.com/guojianbin/TinyCron/internal/executor"
)

// tailBytes is how much output a CommandError keeps.
const tailBytes = 512

// Runner executes commands. *executor.Executor implements it.
type Runner interface {
	Run(ctx context.Context, spec executor.Spec) (*executor.Result, error)
}

// CommandError reports a command that ran but did not succeed.
type CommandError struct {
	ExitCode int
	TimedOut bool
	Output   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("exit status %d", e.ExitCode)
	if e.TimedOut {
		msg = "timed out"
	}
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

// ExitStatus returns the process exit code, -1 for a timeout.
func (e *CommandError) ExitStatus() int { return e.ExitCode }

// ShellJob runs a command line or an interpreter script.
type ShellJob struct {
	Base
	runner Runner
	spec   executor.Spec
}

// NewShell creates a job running spec with runner.
func NewShell(base Base, runner Runner, spec executor.Spec) *ShellJob {
	return &ShellJob{Base: base, runner: runner, spec: spec}
}

// Run executes the command. A non-zero exit or timeout becomes a
// *CommandError carrying the tail of the output.
func (j *ShellJob) Run(ctx context.Context) error {
	result, err := j.runner.Run(ctx, j.spec)
	if err != nil {
		return err
	}
	if !result.Succeeded() {
		return &CommandError{
			ExitCode: result.ExitCode,
			TimedOut: result.TimedOut,
			Output:   result.Tail(tailBytes),
		}
	}
	return nil
}
