// executor.go runs job commands with a timeout and process group cleanup.
// Every command runs in its own process group (or session, under a PTY) so
// a timeout kills the whole tree rather than leaving orphans behind.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// DefaultOutputLimit caps the bytes kept from each output stream.
const DefaultOutputLimit = 64 * 1024

// Spec describes one command execution.
type Spec struct {
	// Command is a shell command line, or the script body when
	// Interpreter is set.
	Command string

	// Interpreter, when set, is looked up in the allowlist and receives
	// Command on stdin.
	Interpreter string

	Timeout time.Duration

	// PTY attaches the command to a pseudo-terminal. Stdout and stderr
	// are merged into Result.Stdout.
	PTY bool

	Env []string
	Dir string
}

// Executor runs commands with timeout and output capture.
type Executor struct {
	// Shell runs plain commands. Default: /bin/sh
	Shell string

	// OutputLimit is the number of trailing bytes kept per stream.
	OutputLimit int

	interpreters *InterpreterCache
}

// New creates an Executor with default settings.
func New() *Executor {
	return &Executor{
		Shell:        "/bin/sh",
		OutputLimit:  DefaultOutputLimit,
		interpreters: NewInterpreterCache(),
	}
}

// Run executes spec. A non-zero exit or a timeout is reported through the
// Result, not as an error; the error return is reserved for commands that
// could not be started at all.
func (e *Executor) Run(ctx context.Context, spec Spec) (*Result, error) {
	name, args, stdin, err := e.commandLine(spec)
	if err != nil {
		return nil, err
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, name, args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	// Kill the entire process group (negative PID)
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	result := &Result{StartedAt: time.Now()}

	if spec.PTY {
		err = e.runPTY(cmd, stdin, result)
	} else {
		err = e.runPipes(cmd, stdin, result)
	}
	result.Duration = time.Since(result.StartedAt)

	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			result.ExitCode = -1
			result.TimedOut = true
			return result, nil
		}

		// Cancelled by the caller (scheduler stopping)
		if ctx.Err() != nil {
			result.ExitCode = -1
			return result, fmt.Errorf("execution cancelled: %w", ctx.Err())
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}

		return nil, fmt.Errorf("execution failed: %w", err)
	}

	result.ExitCode = 0
	return result, nil
}

func (e *Executor) commandLine(spec Spec) (name string, args []string, stdin io.Reader, err error) {
	if spec.Interpreter == "" {
		return e.Shell, []string{"-c", spec.Command}, nil, nil
	}
	path, err := e.interpreters.VerifyInterpreter(spec.Interpreter)
	if err != nil {
		return "", nil, nil, err
	}
	return path, nil, strings.NewReader(spec.Command), nil
}

func (e *Executor) runPipes(cmd *exec.Cmd, stdin io.Reader, result *Result) error {
	// New process group so the whole tree can be killed
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdin = stdin

	stdout := newTailBuffer(e.OutputLimit)
	stderr := newTailBuffer(e.OutputLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.Truncated = stdout.Truncated() || stderr.Truncated()
	return err
}

// runPTY starts cmd on a pseudo-terminal. pty.Start puts the child in a new
// session, which also makes it a process group leader, so Setpgid is not
// set here (it would fail with EPERM after setsid).
func (e *Executor) runPTY(cmd *exec.Cmd, stdin io.Reader, result *Result) error {
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: 120, Rows: 40})
	if err != nil {
		return fmt.Errorf("failed to start PTY: %w", err)
	}
	defer ptmx.Close()

	if stdin != nil {
		go func() {
			_, _ = io.Copy(ptmx, stdin)
			// EOT ends the interpreter's input in canonical mode
			_, _ = ptmx.Write([]byte{4})
		}()
	}

	output := newTailBuffer(e.OutputLimit)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		// Reading the master returns EIO once the child side closes
		_, _ = io.Copy(output, ptmx)
	}()

	waitErr := cmd.Wait()

	// A background grandchild may keep the slave open; don't wait for it
	select {
	case <-readDone:
	case <-time.After(time.Second):
	}

	result.Stdout = output.String()
	result.Truncated = output.Truncated()
	return waitErr
}
