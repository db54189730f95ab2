package device

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned when a selection names a device that is not a candidate
var ErrNotFound = errors.New("device not found")

// Event is the presence change produced by a refresh
type Event int

const (
	EventNone Event = iota
	EventConnected
	EventDisconnected
)

func (e Event) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	default:
		return "none"
	}
}

// Snapshot is a read-only copy of the registry state
type Snapshot struct {
	Candidates []Device `json:"candidates"`
	Selected   *Device  `json:"selected,omitempty"`
	Count      int      `json:"count"`
}

// Registry holds the current candidates and the user's selection.
//
// Selection is sticky: a refresh keeps the selected device while it is
// still present and only falls back to the first candidate when it is gone.
type Registry struct {
	mu         sync.RWMutex
	filter     *Filter
	candidates []Device
	selected   string
	lastCount  int
}

// NewRegistry creates an empty registry using filter to pick candidates
func NewRegistry(filter *Filter) *Registry {
	return &Registry{filter: filter}
}

// Refresh replaces the candidates with the filtered raw list and returns
// Connected on a 0 -> N edge, Disconnected on N -> 0, None otherwise.
func (r *Registry) Refresh(raw []Device) Event {
	candidates := r.filter.Apply(raw)
	for i := range candidates {
		candidates[i] = candidates[i].Clone()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.lastCount
	r.candidates = candidates
	r.lastCount = len(candidates)

	if r.indexOf(r.selected) < 0 {
		r.selected = ""
		if len(candidates) > 0 {
			r.selected = candidates[0].UniqueID
		}
	}

	switch {
	case previous == 0 && r.lastCount > 0:
		return EventConnected
	case previous > 0 && r.lastCount == 0:
		return EventDisconnected
	default:
		return EventNone
	}
}

// Select makes the candidate with the given unique ID the selection
func (r *Registry) Select(uniqueID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(uniqueID) < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, uniqueID)
	}
	r.selected = uniqueID
	return nil
}

// Selected returns a copy of the selected device, if any
func (r *Registry) Selected() (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.indexOf(r.selected)
	if i < 0 {
		return Device{}, false
	}
	return r.candidates[i].Clone(), true
}

// Snapshot returns a copy of the current state
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Candidates: make([]Device, len(r.candidates)),
		Count:      r.lastCount,
	}
	for i, d := range r.candidates {
		snap.Candidates[i] = d.Clone()
	}
	if i := r.indexOf(r.selected); i >= 0 {
		selected := r.candidates[i].Clone()
		snap.Selected = &selected
	}
	return snap
}

func (r *Registry) indexOf(uniqueID string) int {
	if uniqueID == "" {
		return -1
	}
	for i, d := range r.candidates {
		if d.UniqueID == uniqueID {
			return i
		}
	}
	return -1
}
