// Package plugin runs user-supplied alert hooks.
//
// A plugin is a directory holding a plugin.json manifest and an executable.
// For every event it handles, the executable receives one JSON Request on
// stdin and must print one JSON Response on stdout.
package plugin

import (
	"encoding/json"
	"time"
)

// EventAlert is sent when an alert fires.
const EventAlert = "alert"

// Manifest describes a plugin's metadata and capabilities.
type Manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Executable  string `json:"executable"`
	// Events lists the events the plugin wants; empty means all.
	Events []string `json:"events,omitempty"`
	// Config is passed through to every request.
	Config json.RawMessage `json:"config,omitempty"`
}

// Handles reports whether the plugin subscribed to event.
func (m Manifest) Handles(event string) bool {
	if len(m.Events) == 0 {
		return true
	}
	for _, e := range m.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Request represents a request sent to a plugin for execution.
type Request struct {
	Event  string          `json:"event"`
	Alert  *Alert          `json:"alert,omitempty"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Alert is the alert as seen by plugins.
type Alert struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	Faces      int       `json:"faces"`
	Brightness float64   `json:"brightness"`
	Message    string    `json:"message,omitempty"`
	Snapshot   string    `json:"snapshot,omitempty"`
}

// Response represents the response from a plugin execution.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
