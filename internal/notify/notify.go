// Package notify shows desktop notifications when an alert fires.
package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/moyu/internal/command"
)

// Notifier shows a transient message to the user.
type Notifier interface {
	Notify(ctx context.Context, title, message string, duration time.Duration) error
	Name() string
}

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// New returns the notifier for goos, or a Noop when the platform tool is
// missing.
func New(goos string, runner command.Runner) Notifier {
	var tool string
	switch goos {
	case "linux", "freebsd", "openbsd":
		tool = "notify-send"
	case "darwin":
		tool = "osascript"
	case "windows":
		tool = "powershell"
	default:
		log.WithField("os", goos).Info("Desktop notifications not supported, using no-op notifier")
		return Noop{}
	}

	if _, err := lookPath(tool); err != nil {
		log.WithField("tool", tool).Warn("Notification tool not found, using no-op notifier")
		return Noop{}
	}
	return &Desktop{goos: goos, runner: runner}
}

// Noop discards notifications.
type Noop struct{}

// Notify does nothing.
func (Noop) Notify(context.Context, string, string, time.Duration) error { return nil }

// Name returns "noop".
func (Noop) Name() string { return "noop" }

// Desktop shows notifications through the platform's command-line tool.
type Desktop struct {
	goos   string
	runner command.Runner
}

// Name returns the platform the notifier targets.
func (d *Desktop) Name() string { return "desktop-" + d.goos }

// Notify shows title and message for roughly duration. It never waits for
// the notification to disappear.
func (d *Desktop) Notify(ctx context.Context, title, message string, duration time.Duration) error {
	name, args := d.command(title, message, duration)

	// The Windows balloon lives as long as its PowerShell process.
	if d.goos == "windows" {
		if err := d.runner.Start(name, args...); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
		return nil
	}

	if _, err := d.runner.Run(ctx, name, args...); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

func (d *Desktop) command(title, message string, duration time.Duration) (string, []string) {
	ms := strconv.FormatInt(duration.Milliseconds(), 10)

	switch d.goos {
	case "darwin":
		script := fmt.Sprintf(`display notification %s with title %s`, appleQuote(message), appleQuote(title))
		return "osascript", []string{"-e", script}
	case "windows":
		script := strings.Join([]string{
			`Add-Type -AssemblyName System.Windows.Forms`,
			`$n = New-Object System.Windows.Forms.NotifyIcon`,
			`$n.Icon = [System.Drawing.SystemIcons]::Information`,
			`$n.Visible = $true`,
			fmt.Sprintf(`$n.ShowBalloonTip(%s, %s, %s, 'Info')`, ms, psQuote(title), psQuote(message)),
			fmt.Sprintf(`Start-Sleep -Milliseconds %s`, ms),
			`$n.Dispose()`,
		}, "; ")
		return "powershell", []string{"-NoProfile", "-NonInteractive", "-Command", script}
	default:
		return "notify-send", []string{"-a", "moyu", "-t", ms, title, message}
	}
}

func appleQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
