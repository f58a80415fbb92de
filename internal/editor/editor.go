// Package editor launches the external note editor and reports its
// exit as an awaitable event.
//
// The sync cycle suspends on Handle.Done() rather than polling the
// editor process; cancellation arrives through the context used at
// launch time.
package editor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ExitResult is delivered exactly once when the editor terminates.
type ExitResult struct {
	Code int
	Err  error
}

// Handle represents a running editor process.
type Handle interface {
	// Done returns a channel that receives the exit result when the
	// editor terminates. The channel is buffered; the result is never
	// lost if the receiver is late.
	Done() <-chan ExitResult

	// Kill terminates the editor process. Used only on forced
	// shutdown, never in the normal flow.
	Kill() error
}

// Launcher starts the editor over a vault.
type Launcher interface {
	Launch(ctx context.Context, vaultPath string) (Handle, error)
}

// CommandLauncher launches a configured command line with the vault
// path appended as the final argument.
type CommandLauncher struct {
	// Command is the editor invocation, e.g. "obsidian" or
	// "flatpak run md.obsidian.Obsidian".
	Command string
}

type processHandle struct {
	cmd  *exec.Cmd
	done chan ExitResult
}

// Launch starts the editor and begins waiting for its exit in the
// background.
func (l CommandLauncher) Launch(ctx context.Context, vaultPath string) (Handle, error) {
	fields := strings.Fields(l.Command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("editor command is empty")
	}

	args := append(fields[1:], vaultPath)
	cmd := exec.CommandContext(ctx, fields[0], args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch editor %q: %w", fields[0], err)
	}

	h := &processHandle{cmd: cmd, done: make(chan ExitResult, 1)}
	go func() {
		err := cmd.Wait()
		code := 0
		if cmd.ProcessState != nil {
			code = cmd.ProcessState.ExitCode()
		}
		if err != nil {
			h.done <- ExitResult{Code: code, Err: err}
			return
		}
		h.done <- ExitResult{Code: code}
	}()

	return h, nil
}

func (h *processHandle) Done() <-chan ExitResult {
	return h.done
}

func (h *processHandle) Kill() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}
