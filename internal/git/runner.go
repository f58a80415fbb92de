// Package git wraps the git command line for vault synchronization.
//
// All repository access goes through the Runner boundary: the rest of the
// program never mutates tracked files directly and never inspects raw exit
// codes. Command failures are classified into the error taxonomy in
// errors.go before they reach callers.
package git

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// Result captures the outcome of a single command invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Combined returns stdout and stderr joined, for pattern matching on
// output that git writes to either stream.
func (r Result) Combined() string {
	if r.Stdout == "" {
		return r.Stderr
	}
	if r.Stderr == "" {
		return r.Stdout
	}
	return r.Stdout + "\n" + r.Stderr
}

// Runner executes an external command in a working directory and returns
// its captured output. Implementations must honor context cancellation.
type Runner interface {
	Run(ctx context.Context, dir string, name string, args ...string) (Result, error)
}

// ExecRunner is the production Runner backed by os/exec.
type ExecRunner struct {
	// Timeout bounds each invocation. Zero means no per-command timeout
	// beyond the caller's context.
	Timeout time.Duration
}

// NewRunner returns an ExecRunner with the default per-command timeout.
func NewRunner() *ExecRunner {
	return &ExecRunner{Timeout: 30 * time.Second}
}

// Run executes the command and returns its captured output. A non-zero
// exit status is not an error by itself; callers classify the Result.
// Errors are reserved for failures to run the command at all (binary
// missing, context cancelled).
func (e *ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) (Result, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		if ctx.Err() != nil {
			res.ExitCode = -1
			return res, ctx.Err()
		}
		res.ExitCode = -1
		return res, err
	}

	return res, nil
}
