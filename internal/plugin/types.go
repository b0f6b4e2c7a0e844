// Package plugin discovers and runs external actuator plugins. A plugin is an
// executable next to a plugin.json manifest; it receives one JSON Request on
// stdin and answers with one JSON Response on stdout.
package plugin

import (
	"encoding/json"
	"slices"
)

// Actions understood by actuator plugins.
const (
	// ActionRange asks for the level range; Response.Data is {"min":..,"max":..}.
	ActionRange = "range"
	// ActionSetLevel applies Params {"level":..}.
	ActionSetLevel = "set-level"
)

// Manifest describes a plugin's metadata and capabilities.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"`
	Actions      []string        `json:"actions"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Request represents a request sent to a plugin for execution.
type Request struct {
	Action string          `json:"action"`
	Device string          `json:"device,omitempty"`
	Config json.RawMessage `json:"config,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
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

// Supports reports whether the manifest lists action.
func (p *Plugin) Supports(action string) bool {
	return slices.Contains(p.Manifest.Actions, action)
}
