package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"go_hostpanel/internal/errs"
)

// DefaultTimeout is used when neither the runner nor the command sets one
const DefaultTimeout = 60 * time.Second

// Command describes one external process invocation
type Command struct {
	Name    string
	Args    []string
	Env     []string // appended to the parent environment
	Stdin   io.Reader
	Dir     string
	Timeout time.Duration // overrides the runner default when > 0
}

// String renders the command for logs. Stdin and Env are never included.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Output is the captured result of a command
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Executor runs external commands
type Executor interface {
	Run(ctx context.Context, cmd Command) (Output, error)
}

// Runner executes commands with a hard wall-clock timeout. On expiry the
// whole process group is killed and the result is a timed_out error.
type Runner struct {
	timeout time.Duration
	logger  *logrus.Entry
}

// NewRunner creates a Runner
func NewRunner(timeout time.Duration, logger *logrus.Entry) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{timeout: timeout, logger: logger}
}

// Run executes cmd. A non-zero exit returns an error together with the
// captured output so callers can attach stdout/stderr to diagnostics.
func (r *Runner) Run(ctx context.Context, cmd Command) (Output, error) {
	timeout := r.timeout
	if cmd.Timeout > 0 {
		timeout = cmd.Timeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(runCtx, cmd.Name, cmd.Args...)
	command.Stdout = &stdout
	command.Stderr = &stderr
	command.Stdin = cmd.Stdin
	command.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		command.Env = append(command.Environ(), cmd.Env...)
	}
	configureKill(command)

	start := time.Now()
	err := command.Run()
	out := Output{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if command.ProcessState != nil {
		out.ExitCode = command.ProcessState.ExitCode()
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		out.TimedOut = true
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{
				"cmd":     cmd.Name,
				"timeout": timeout.String(),
			}).Warn("command timed out and was killed")
		}
		return out, errs.Newf(errs.KindTimedOut, "%s timed out after %s", cmd.Name, timeout).
			WithDetail("stdout", out.Stdout).
			WithDetail("stderr", out.Stderr)
	}

	if err != nil {
		return out, fmt.Errorf("%s: %w (stderr: %s)", cmd.Name, err, strings.TrimSpace(out.Stderr))
	}
	return out, nil
}

// LookPath resolves an executable on PATH, or checks an absolute path
func LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", errs.Wrap(errs.KindToolNotFound, name, err).WithDetail("tool", name)
	}
	return path, nil
}

// Shell wraps a configured shell snippet such as "nginx -s reload"
func Shell(script string) Command {
	return Command{Name: "sh", Args: []string{"-c", script}}
}
