package device

import (
	"context"
	"slices"
)

// MediaKind is a stream type a device can deliver
type MediaKind string

const (
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
	// MediaMuxed is a single interleaved audio/video stream, the way tape
	// camcorders deliver playback.
	MediaMuxed MediaKind = "muxed"
)

// Transport identifies how the capture adapter reaches a device
type Transport string

const (
	TransportFireWire Transport = "firewire"
	TransportV4L2     Transport = "v4l2"
	TransportStatic   Transport = "static"
)

// Device is an immutable snapshot of one enumerated device.
// Identity is UniqueID; every other field may change between enumerations.
type Device struct {
	UniqueID     string      `json:"unique_id"`
	DisplayName  string      `json:"display_name"`
	ModelID      string      `json:"model_id"`
	Manufacturer string      `json:"manufacturer"`
	Capabilities []MediaKind `json:"capabilities"`
	Transport    Transport   `json:"transport"`
	Address      string      `json:"address"`
}

// HasCapability reports whether the device advertises kind
func (d Device) HasCapability(kind MediaKind) bool {
	return slices.Contains(d.Capabilities, kind)
}

// Clone returns a copy that shares no memory with d
func (d Device) Clone() Device {
	d.Capabilities = slices.Clone(d.Capabilities)
	return d
}

// Name returns the display name, falling back to the unique ID
func (d Device) Name() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.UniqueID
}

// Enumerator lists the devices currently attached to the system
type Enumerator interface {
	Enumerate(ctx context.Context) ([]Device, error)
}
