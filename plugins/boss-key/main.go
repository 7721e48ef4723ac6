// Package main provides a boss key plugin. When an alert fires it sends a
// configured keyboard shortcut, e.g. to switch desktops or hide all windows.
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

// Shortcut is the key combination to send.
type Shortcut struct {
	Key       string   `json:"key"`
	Modifiers []string `json:"modifiers"` // command, option, control, shift
}

// appleModifiers maps user-friendly modifier names to AppleScript equivalents.
var appleModifiers = map[string]string{
	"command": "command down",
	"cmd":     "command down",
	"option":  "option down",
	"alt":     "option down",
	"control": "control down",
	"ctrl":    "control down",
	"shift":   "shift down",
}

// xdotoolModifiers maps the same names to xdotool key names.
var xdotoolModifiers = map[string]string{
	"command": "super",
	"cmd":     "super",
	"super":   "super",
	"option":  "alt",
	"alt":     "alt",
	"control": "ctrl",
	"ctrl":    "ctrl",
	"shift":   "shift",
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	if req.Event != "alert" {
		writeSuccessResponse()
		return
	}

	var s Shortcut
	if err := json.Unmarshal(req.Config, &s); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to parse config: %v", err))
		return
	}

	name, args, err := shortcutCommand(runtime.GOOS, s)
	if err != nil {
		writeErrorResponse(err.Error())
		return
	}

	if output, err := exec.Command(name, args...).CombinedOutput(); err != nil {
		writeErrorResponse(fmt.Sprintf("%v: %s", err, strings.TrimSpace(string(output))))
		return
	}

	writeSuccessResponse()
}

// shortcutCommand returns the command that sends s on goos.
func shortcutCommand(goos string, s Shortcut) (string, []string, error) {
	if s.Key == "" {
		return "", nil, fmt.Errorf("key is required")
	}

	switch goos {
	case "darwin":
		return "osascript", []string{"-e", buildKeystrokeScript(s.Key, s.Modifiers)}, nil
	case "linux":
		return "xdotool", []string{"key", buildXdotoolKey(s.Key, s.Modifiers)}, nil
	default:
		return "", nil, fmt.Errorf("not supported on %s", goos)
	}
}

// buildKeystrokeScript generates an AppleScript for the given key and modifiers.
func buildKeystrokeScript(key string, modifiers []string) string {
	var mods []string
	for _, mod := range modifiers {
		if m, ok := appleModifiers[strings.ToLower(mod)]; ok {
			mods = append(mods, m)
		}
	}

	if len(mods) == 0 {
		return fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, key)
	}
	return fmt.Sprintf(`tell application "System Events" to keystroke "%s" using {%s}`, key, strings.Join(mods, ", "))
}

// buildXdotoolKey generates an xdotool key chord such as "ctrl+alt+d".
func buildXdotoolKey(key string, modifiers []string) string {
	var parts []string
	for _, mod := range modifiers {
		if m, ok := xdotoolModifiers[strings.ToLower(mod)]; ok {
			parts = append(parts, m)
		}
	}
	return strings.Join(append(parts, key), "+")
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
func writeSuccessResponse() {
	resp := Response{
		Success: true,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
