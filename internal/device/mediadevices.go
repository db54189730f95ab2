package device

import (
	"context"

	"github.com/pion/mediadevices"
)

// MediaDevicesEnumerator lists capture devices known to the pion/mediadevices
// driver manager (V4L2 cameras and capture bridges on Linux).
//
// These devices only report plain video or audio, so they pass the default
// filter only when discovery.capability is relaxed to "video".
type MediaDevicesEnumerator struct{}

// Enumerate maps each registered driver to a Device
func (MediaDevicesEnumerator) Enumerate(ctx context.Context) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	infos := mediadevices.EnumerateDevices()
	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		var kind MediaKind
		switch info.Kind {
		case mediadevices.VideoInput:
			kind = MediaVideo
		case mediadevices.AudioInput:
			kind = MediaAudio
		default:
			continue
		}

		devices = append(devices, Device{
			UniqueID:     info.DeviceID,
			DisplayName:  info.Label,
			ModelID:      info.Label,
			Capabilities: []MediaKind{kind},
			Transport:    TransportV4L2,
			Address:      info.Label,
		})
	}
	return devices, nil
}
