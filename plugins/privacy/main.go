// Package main provides a privacy plugin that hides what is on screen when an
// alert fires. It can mute the audio, pause media and lock the screen.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Request represents the input from the plugin executor.
type Request struct {
	Event  string          `json:"event"`
	Config json.RawMessage `json:"config"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config selects the steps to run, in the order below.
type Config struct {
	Mute       bool `json:"mute"`
	PauseMedia bool `json:"pause_media"`
	LockScreen bool `json:"lock_screen"`
}

type step struct {
	name string
	run  func(goos string) error
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	if req.Event != "alert" {
		writeSuccessResponse(nil)
		return
	}

	cfg := Config{Mute: true}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeErrorResponse(fmt.Sprintf("invalid config: %v", err))
			return
		}
	}

	done, err := run(runtime.GOOS, steps(cfg))
	if err != nil {
		writeErrorResponse(err.Error())
		return
	}

	data, _ := json.Marshal(map[string][]string{"done": done})
	writeSuccessResponse(data)
}

// steps returns the enabled steps in run order.
func steps(cfg Config) []step {
	var s []step
	if cfg.Mute {
		s = append(s, step{"mute", mute})
	}
	if cfg.PauseMedia {
		s = append(s, step{"pause_media", pauseMedia})
	}
	if cfg.LockScreen {
		s = append(s, step{"lock_screen", lockScreen})
	}
	return s
}

// run executes every step. A failing step does not stop the rest; failures
// are joined into one error.
func run(goos string, steps []step) ([]string, error) {
	var done, failed []string
	for _, s := range steps {
		if err := s.run(goos); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", s.name, err))
			continue
		}
		done = append(done, s.name)
	}
	if len(failed) > 0 {
		return done, fmt.Errorf("%s", strings.Join(failed, "; "))
	}
	return done, nil
}

// mute sets the output muted; it never toggles.
func mute(goos string) error {
	switch goos {
	case "darwin":
		return runAppleScript(`set volume output muted true`)
	case "linux":
		return runCommand("pactl", "set-sink-mute", "@DEFAULT_SINK@", "1")
	default:
		return fmt.Errorf("not supported on %s", goos)
	}
}

func pauseMedia(goos string) error {
	switch goos {
	case "darwin":
		// Play/Pause media key.
		return runAppleScript(`tell application "System Events"
	key code 100
end tell`)
	case "linux":
		return runCommand("playerctl", "--all-players", "pause")
	default:
		return fmt.Errorf("not supported on %s", goos)
	}
}

func lockScreen(goos string) error {
	switch goos {
	case "darwin":
		return runCommand("pmset", "displaysleepnow")
	case "linux":
		return runCommand("loginctl", "lock-session")
	case "windows":
		return runCommand("rundll32.exe", "user32.dll,LockWorkStation")
	default:
		return fmt.Errorf("not supported on %s", goos)
	}
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	resp := Response{
		Success: false,
		Error:   errMsg,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse(data json.RawMessage) {
	resp := Response{
		Success: true,
		Data:    data,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// runAppleScript executes an AppleScript command and returns any error.
func runAppleScript(script string) error {
	return runCommand("osascript", "-e", script)
}

func runCommand(name string, args ...string) error {
	output, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
