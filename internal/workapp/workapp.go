// Package workapp brings a configured "work" application to the front.
package workapp

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/moyu/internal/command"
	"github.com/ayusman/moyu/internal/config"
)

// Switcher brings the work application to the foreground.
type Switcher interface {
	Switch(ctx context.Context) error
	Name() string
}

// lookPath is replaced in tests.
var lookPath = exec.LookPath

var openAppPattern = regexp.MustCompile(`^\s*open\s+-a\s+(?:"([^"]+)"|'([^']+)'|(\S+))`)

// Target is the resolved work application for the current platform.
type Target struct {
	Name     string
	Command  string
	Keywords []string
}

// New resolves cfg.Active for goos. It returns a Noop switcher when nothing
// usable is configured.
func New(goos string, cfg config.WorkApp, runner command.Runner) Switcher {
	target, err := Resolve(goos, cfg)
	if err != nil {
		log.WithError(err).Info("Work app switching disabled")
		return Noop{}
	}
	return &Launcher{goos: goos, target: target, runner: runner}
}

// Resolve picks the active target and the command for goos.
func Resolve(goos string, cfg config.WorkApp) (Target, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Active))
	if name == "" {
		return Target{}, errors.New("work_app.active is not set")
	}

	wt, ok := cfg.Targets[name]
	if !ok {
		return Target{}, fmt.Errorf("no work_app.targets entry for %q", name)
	}

	var cmd string
	switch goos {
	case "windows":
		cmd = wt.WindowsCommand
	case "darwin":
		cmd = wt.MacOSCommand
	default:
		cmd = wt.LinuxCommand
	}
	if strings.TrimSpace(cmd) == "" {
		return Target{}, fmt.Errorf("work app %q has no command for %s", name, goos)
	}

	keywords := wt.WindowKeywords
	if len(keywords) == 0 {
		keywords = DefaultKeywords(name)
	}

	return Target{Name: name, Command: cmd, Keywords: keywords}, nil
}

// DefaultKeywords returns the window title keywords used when a target sets none.
func DefaultKeywords(name string) []string {
	switch strings.ToLower(name) {
	case "idea":
		return []string{"intellij idea"}
	case "vscode":
		return []string{"visual studio code"}
	case "":
		return nil
	default:
		return []string{name}
	}
}

// Noop does nothing.
type Noop struct{}

// Switch does nothing.
func (Noop) Switch(context.Context) error { return nil }

// Name returns "noop".
func (Noop) Name() string { return "noop" }

// Launcher starts the target command and then tries to raise its window.
type Launcher struct {
	goos   string
	target Target
	runner command.Runner
}

// Name returns the target name.
func (l *Launcher) Name() string { return l.target.Name }

// Target returns the resolved target.
func (l *Launcher) Target() Target { return l.target }

// Switch launches the application. Failing to raise the window afterwards is
// logged, not returned.
func (l *Launcher) Switch(ctx context.Context) error {
	if err := l.runner.Launch(l.target.Command); err != nil {
		return fmt.Errorf("switch to %s: %w", l.target.Name, err)
	}

	if err := l.activate(ctx); err != nil {
		log.WithError(err).WithField("app", l.target.Name).Debug("Could not raise work app window")
	}
	return nil
}

func (l *Launcher) activate(ctx context.Context) error {
	switch l.goos {
	case "darwin":
		return l.activateMac(ctx)
	case "windows":
		return l.activateWindows(ctx)
	default:
		return l.activateX11(ctx)
	}
}

// activateMac tells the application to activate, trying the name from
// `open -a "Name"` first and then each keyword. As a last resort it raises
// the first process whose name contains the first keyword.
func (l *Launcher) activateMac(ctx context.Context) error {
	var names []string
	if app := AppNameFromOpen(l.target.Command); app != "" {
		names = append(names, app)
	}
	names = append(names, l.target.Keywords...)

	var lastErr error
	for _, name := range names {
		script := fmt.Sprintf(`tell application %q to activate`, name)
		if _, err := l.runner.Run(ctx, "osascript", "-e", script); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	if len(l.target.Keywords) > 0 {
		script := fmt.Sprintf(`tell application "System Events" to set frontmost of first process whose name contains %q to true`,
			l.target.Keywords[0])
		_, err := l.runner.Run(ctx, "osascript", "-e", script)
		return err
	}
	return lastErr
}

// activateWindows polls AppActivate for a window whose title matches the
// first keyword, for up to about three seconds.
func (l *Launcher) activateWindows(ctx context.Context) error {
	if len(l.target.Keywords) == 0 {
		return nil
	}
	kw := strings.ReplaceAll(l.target.Keywords[0], "'", "''")
	script := fmt.Sprintf(`$w = New-Object -ComObject WScript.Shell; `+
		`foreach ($i in 1..10) { if ($w.AppActivate('%s')) { exit 0 }; Start-Sleep -Milliseconds 300 }; exit 1`, kw)
	_, err := l.runner.Run(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", script)
	return err
}

// activateX11 uses wmctrl when it is installed.
func (l *Launcher) activateX11(ctx context.Context) error {
	if len(l.target.Keywords) == 0 {
		return nil
	}
	if _, err := lookPath("wmctrl"); err != nil {
		return err
	}
	_, err := l.runner.Run(ctx, "wmctrl", "-a", l.target.Keywords[0])
	return err
}

// AppNameFromOpen extracts the application name from an `open -a` command line.
func AppNameFromOpen(cmdline string) string {
	m := openAppPattern.FindStringSubmatch(cmdline)
	if m == nil {
		return ""
	}
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}
