// Package status turns registry and session state into the one-line status
// shown to the user.
package status

import (
	"fmt"
	"path/filepath"

	"github.com/audiolibrelab/dvcapture/internal/device"
	"github.com/audiolibrelab/dvcapture/internal/session"
)

// Describe derives the status text. Session messages take precedence; an
// idle session with nothing to report falls back to the device count.
func Describe(reg device.Snapshot, view session.View) string {
	if text, ok := describeSession(view); ok {
		return text
	}
	return describeDevices(reg)
}

func describeSession(view session.View) (string, bool) {
	state := view.State
	switch state.Phase {
	case session.Configuring:
		return fmt.Sprintf("Configuring %s...", deviceName(state.Device)), true
	case session.Running:
		return fmt.Sprintf("Capture running on %s. Press PLAY on your camcorder.", deviceName(state.Device)), true
	case session.Recording:
		return fmt.Sprintf("Recording to %s", filepath.Base(state.OutputPath)), true
	case session.Stopping:
		return "Finishing recording...", true
	}

	if outcome := view.Outcome; outcome != nil {
		if outcome.Success {
			return fmt.Sprintf("Saved %s", filepath.Base(outcome.OutputPath)), true
		}
		return fmt.Sprintf("Recording failed: %s", outcome.ErrorDetail), true
	}
	if view.Err != nil {
		return fmt.Sprintf("Error: %s", view.Err), true
	}
	return "", false
}

func describeDevices(reg device.Snapshot) string {
	switch reg.Count {
	case 0:
		return "No MiniDV device found"
	case 1:
		name := ""
		if len(reg.Candidates) > 0 {
			name = reg.Candidates[0].Name()
		}
		return fmt.Sprintf("Found 1 device: %s", name)
	default:
		return fmt.Sprintf("Found %d devices", reg.Count)
	}
}

func deviceName(d *device.Device) string {
	if d == nil {
		return "device"
	}
	return d.Name()
}
