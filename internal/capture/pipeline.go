package capture

import (
	"time"

	"github.com/audiolibrelab/dvcapture/internal/device"
)

// Unbounded disables periodic fragment writes on a movie output.
// Tape playback is one continuous stream with no natural segment points.
const Unbounded time.Duration = 0

// Preset is a capture quality level a pipeline supports for a device.
// Higher Quality is better.
type Preset struct {
	Name      string
	Quality   int
	InputArgs []string
}

// MovieOutput describes the file writer bound to the session
type MovieOutput struct {
	FragmentInterval time.Duration
}

// Configuration is everything committed to a pipeline in one step
type Configuration struct {
	Input  device.Device
	Preset Preset
	Output MovieOutput
}

// Completion is delivered exactly once for every successful BeginWrite
type Completion struct {
	Path string
	Err  error
}

// Pipeline is the capture/write subsystem a session drives.
//
// Commit is all-or-nothing: on error the previous (cleared) bindings remain.
// The channel returned by BeginWrite yields one Completion when the writer
// finishes, either after EndWrite or on its own because of an error.
type Pipeline interface {
	Reset()
	Presets(dev device.Device) []Preset
	Commit(cfg Configuration) error
	BeginWrite(path string) (<-chan Completion, error)
	EndWrite() error
}

// HighestQuality picks the best preset, first one wins on ties
func HighestQuality(presets []Preset) (Preset, bool) {
	if len(presets) == 0 {
		return Preset{}, false
	}
	best := presets[0]
	for _, p := range presets[1:] {
		if p.Quality > best.Quality {
			best = p
		}
	}
	return best, true
}
