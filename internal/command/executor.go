// Package command runs short-lived external programs for OS integrations.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// ErrTimeout is returned when a command does not finish within the executor timeout.
var ErrTimeout = errors.New("command timed out")

// Runner is the capability notifiers and app switchers are built on.
type Runner interface {
	// Run executes name with args and waits for it to exit.
	Run(ctx context.Context, name string, args ...string) (string, error)
	// Start runs name with args without waiting for it to exit.
	Start(name string, args ...string) error
	// Launch starts a shell command line and returns without waiting.
	Launch(cmdline string) error
}

// Executor runs commands with a bounded execution time.
type Executor struct {
	timeout time.Duration
	goos    string
}

// NewExecutor creates an Executor. A timeout of zero disables the bound.
func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{
		timeout: timeout,
		goos:    runtime.GOOS,
	}
}

// Run executes the command and returns its combined output.
func (e *Executor) Run(ctx context.Context, name string, args ...string) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)

	// Capture stdout and stderr
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()

	// Check for context deadline exceeded (timeout)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return out.String(), fmt.Errorf("%w: %s after %s", ErrTimeout, name, e.timeout)
	}

	if err != nil {
		output := strings.TrimSpace(out.String())
		if output != "" {
			return out.String(), fmt.Errorf("%s failed: %w, output: %s", name, err, output)
		}
		return out.String(), fmt.Errorf("%s failed: %w", name, err)
	}

	return out.String(), nil
}

// Start runs name with args and returns once the process has started. The
// child is reaped in the background.
func (e *Executor) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}

	go cmd.Wait()
	return nil
}

// Launch starts cmdline through the platform shell. The child is reaped in
// the background and may outlive the call.
func (e *Executor) Launch(cmdline string) error {
	if strings.TrimSpace(cmdline) == "" {
		return errors.New("empty command line")
	}

	name, args := ShellCommand(e.goos, cmdline)
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch %q: %w", cmdline, err)
	}

	go cmd.Wait()
	return nil
}

// ShellCommand returns the shell invocation that runs cmdline on goos.
func ShellCommand(goos, cmdline string) (string, []string) {
	if goos == "windows" {
		return "cmd", []string{"/C", cmdline}
	}
	return "/bin/sh", []string{"-c", cmdline}
}

// OpenURLCommand returns the command that opens url in the default browser.
func OpenURLCommand(goos, url string) (string, []string) {
	switch goos {
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	case "darwin":
		return "open", []string{url}
	default:
		return "xdg-open", []string{url}
	}
}
