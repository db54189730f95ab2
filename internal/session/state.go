package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/audiolibrelab/dvcapture/internal/device"
)

// Phase is the session lifecycle stage
type Phase int

const (
	Idle Phase = iota
	Configuring
	Running
	Recording
	Stopping
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "IDLE"
	case Configuring:
		return "CONFIGURING"
	case Running:
		return "RUNNING"
	case Recording:
		return "RECORDING"
	case Stopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Phase) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for candidate := Idle; candidate <= Stopping; candidate++ {
		if candidate.String() == name {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown session phase %q", name)
}

// State is an immutable snapshot of the session.
// Device is set in every phase except Idle; the recording fields are set in
// Recording and Stopping.
type State struct {
	Phase      Phase          `json:"phase"`
	Device     *device.Device `json:"device,omitempty"`
	OutputPath string         `json:"output_path,omitempty"`
	StartedAt  time.Time      `json:"started_at,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
}

// Active reports whether a device is bound
func (s State) Active() bool {
	return s.Phase != Idle
}

// Outcome is the result of one finished recording
type Outcome struct {
	SessionID   string        `json:"session_id"`
	OutputPath  string        `json:"output_path"`
	Success     bool          `json:"success"`
	ErrorDetail string        `json:"error_detail,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Duration    time.Duration `json:"duration"`
}

// View is what observers see after every transition.
// Outcome and Err are only set while Idle and are cleared by the next start.
type View struct {
	State   State
	Outcome *Outcome
	Err     error
}

// IsRecording is true while a file is open for writing
func (v View) IsRecording() bool {
	return v.State.Phase == Recording || v.State.Phase == Stopping
}
