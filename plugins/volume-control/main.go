// Package main provides a volume control plugin for macOS and Linux.
// It sets the output volume via AppleScript or PulseAudio's pactl.
package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"runtime"
	"strconv"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action string          `json:"action"`
	Device string          `json:"device"`
	Config json.RawMessage `json:"config"`
	Params json.RawMessage `json:"params"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type levelRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Volume is expressed in percent on every platform.
var volumeRange = levelRange{Min: 0, Max: 100}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	switch req.Action {
	case "range":
		data, _ := json.Marshal(volumeRange)
		writeSuccessResponse(data)
	case "set-level":
		level, err := parseLevel(req.Params)
		if err != nil {
			writeErrorResponse(err.Error())
			return
		}
		name, args, err := volumeCommand(runtime.GOOS, req.Device, level)
		if err != nil {
			writeErrorResponse(err.Error())
			return
		}
		if err := run(name, args...); err != nil {
			writeErrorResponse(fmt.Sprintf("action %s failed: %v", req.Action, err))
			return
		}
		writeSuccessResponse(nil)
	default:
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
	}
}

func parseLevel(params json.RawMessage) (float64, error) {
	var p struct {
		Level *float64 `json:"level"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return 0, fmt.Errorf("malformed params: %v", err)
	}
	if p.Level == nil {
		return 0, fmt.Errorf("params without level")
	}
	return *p.Level, nil
}

// volumeCommand returns the command that sets the output volume to level
// percent, rounded and clamped to the supported range.
func volumeCommand(goos, device string, level float64) (string, []string, error) {
	percent := int(math.Round(math.Max(volumeRange.Min, math.Min(volumeRange.Max, level))))

	switch goos {
	case "darwin":
		return "osascript", []string{"-e", "set volume output volume " + strconv.Itoa(percent)}, nil
	case "linux":
		sink := device
		if sink == "" {
			sink = "@DEFAULT_SINK@"
		}
		return "pactl", []string{"set-sink-volume", sink, strconv.Itoa(percent) + "%"}, nil
	default:
		return "", nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}

func run(name string, args ...string) error {
	output, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

func writeErrorResponse(errMsg string) {
	_ = json.NewEncoder(os.Stdout).Encode(Response{
		Success: false,
		Error:   errMsg,
	})
}

func writeSuccessResponse(data json.RawMessage) {
	_ = json.NewEncoder(os.Stdout).Encode(Response{
		Success: true,
		Data:    data,
	})
}
