package device

import (
	"context"
	"fmt"
	"sync"
)

// StaticEnumerator returns a fixed device list that can be swapped at runtime.
// It backs the "static" discovery backend and tests.
type StaticEnumerator struct {
	mu      sync.RWMutex
	devices []Device
	err     error
}

// NewStaticEnumerator creates an enumerator returning devices
func NewStaticEnumerator(devices ...Device) *StaticEnumerator {
	return &StaticEnumerator{devices: devices}
}

// Set replaces the device list
func (s *StaticEnumerator) Set(devices ...Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = devices
}

// Fail makes subsequent Enumerate calls return err until cleared with nil
func (s *StaticEnumerator) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Enumerate returns a copy of the configured devices
func (s *StaticEnumerator) Enumerate(_ context.Context) ([]Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.err != nil {
		return nil, s.err
	}
	out := make([]Device, len(s.devices))
	for i, d := range s.devices {
		out[i] = d.Clone()
	}
	return out, nil
}

// MultiEnumerator concatenates the results of several backends in order.
// Devices reported by more than one backend are kept once, first wins.
type MultiEnumerator []Enumerator

// Enumerate fails as a whole when any backend fails, so a transient backend
// error never looks like a disconnect.
func (m MultiEnumerator) Enumerate(ctx context.Context) ([]Device, error) {
	var devices []Device
	seen := make(map[string]bool)

	for _, e := range m {
		found, err := e.Enumerate(ctx)
		if err != nil {
			return nil, fmt.Errorf("enumeration failed: %w", err)
		}
		for _, d := range found {
			if seen[d.UniqueID] {
				continue
			}
			seen[d.UniqueID] = true
			devices = append(devices, d)
		}
	}
	return devices, nil
}
