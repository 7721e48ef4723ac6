// Package tray provides the system tray interface for moyu.
package tray

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/getlantern/systray"
)

// refreshInterval re-renders the humanized "last alert" time.
const refreshInterval = 30 * time.Second

// Tray represents the system tray application.
type Tray struct {
	onReady   func()
	onToggle  func(enabled bool)
	onPreview func()
	onQuit    func()

	mu        sync.RWMutex
	enabled   bool
	present   bool
	faces     int
	lastAlert time.Time
	done      chan struct{}

	// Menu items stored for later updates
	menuStatus    *systray.MenuItem
	menuLastAlert *systray.MenuItem
	menuToggle    *systray.MenuItem
}

// New creates a new Tray instance with alerts enabled.
func New() *Tray {
	return &Tray{
		enabled: true,
		done:    make(chan struct{}),
	}
}

// OnReady sets the callback run once the tray is up.
func (t *Tray) OnReady(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReady = fn
}

// OnToggle sets the callback function to be called when alerts are paused or resumed.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnPreview sets the callback for the "Open preview" item.
func (t *Tray) OnPreview(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPreview = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called and must run on the main goroutine.
func (t *Tray) Run() {
	systray.Run(t.ready, t.exit)
}

// Quit closes the tray; Run returns afterwards.
func (t *Tray) Quit() {
	systray.Quit()
}

// ready is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) ready() {
	systray.SetTitle("moyu")
	systray.SetTooltip("moyu presence alert")

	t.mu.Lock()
	t.menuStatus = systray.AddMenuItem(statusTitle(t.present, t.faces), "Debounced presence state")
	t.menuStatus.Disable()
	t.menuLastAlert = systray.AddMenuItem(lastAlertTitle(t.lastAlert, time.Now()), "Last alert")
	t.menuLastAlert.Disable()
	systray.AddSeparator()

	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Pause or resume alerts")
	onReady := t.onReady
	t.mu.Unlock()

	menuPreview := systray.AddMenuItem("Open preview", "Open the camera preview in a browser")
	systray.AddSeparator()
	menuQuit := systray.AddMenuItem("Quit", "Quit moyu")

	// Handle menu item clicks in a separate goroutine
	go func() {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuPreview.ClickedCh:
				t.handlePreview()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			case <-ticker.C:
				t.refresh()
			case <-t.done:
				return
			}
		}
	}()

	if onReady != nil {
		go onReady()
	}
}

// exit is called when the system tray is about to exit.
func (t *Tray) exit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.done:
	default:
		close(t.done)
	}
}

// handleToggle flips the enabled state.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

// handlePreview handles the preview menu item click.
func (t *Tray) handlePreview() {
	t.mu.RLock()
	callback := t.onPreview
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetEnabled reflects a pause or resume made elsewhere. The toggle callback
// is not called.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
}

// SetStatus updates the presence line.
func (t *Tray) SetStatus(present bool, faces int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.present == present && t.faces == faces {
		return
	}
	t.present = present
	t.faces = faces
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(statusTitle(present, faces))
	}
}

// SetLastAlert updates the last alert display in the menu.
func (t *Tray) SetLastAlert(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastAlert = at
	if t.menuLastAlert != nil {
		t.menuLastAlert.SetTitle(lastAlertTitle(at, time.Now()))
	}
}

func (t *Tray) refresh() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.menuLastAlert != nil {
		t.menuLastAlert.SetTitle(lastAlertTitle(t.lastAlert, time.Now()))
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Status returns the presence line as last set.
func (t *Tray) Status() (present bool, faces int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.present, t.faces
}

func statusTitle(present bool, faces int) string {
	if !present {
		return "Status: Clear"
	}
	return fmt.Sprintf("Status: Faces detected (%d)", faces)
}

func lastAlertTitle(at, now time.Time) string {
	if at.IsZero() {
		return "Last alert: none"
	}
	return "Last alert: " + humanize.RelTime(at, now, "ago", "from now")
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Alerts on"
	}
	return "○ Alerts paused"
}

// Supported reports whether a tray can be shown. On Linux and the BSDs a
// graphical session is required.
func Supported() bool {
	return supported(runtime.GOOS, os.Getenv)
}

func supported(goos string, getenv func(string) string) bool {
	switch goos {
	case "windows", "darwin":
		return true
	case "linux", "freebsd", "openbsd", "netbsd":
		return getenv("DISPLAY") != "" || getenv("WAYLAND_DISPLAY") != ""
	default:
		return false
	}
}
