package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func camcorder(id, name string) Device {
	return Device{
		UniqueID:     id,
		DisplayName:  name,
		Capabilities: []MediaKind{MediaMuxed, MediaVideo, MediaAudio},
		Transport:    TransportFireWire,
		Address:      id,
	}
}

func TestFilter_Apply(t *testing.T) {
	filter := NewFilter(MediaMuxed, DefaultTokens)

	tests := []struct {
		name string
		raw  []Device
		want []string
	}{
		{
			name: "empty input",
			raw:  nil,
			want: []string{},
		},
		{
			name: "vendor in display name",
			raw:  []Device{camcorder("a", "Sony DCR-TRV900")},
			want: []string{"a"},
		},
		{
			name: "format token in model",
			raw: []Device{{
				UniqueID:     "b",
				DisplayName:  "Camcorder",
				ModelID:      "MiniDV deck",
				Capabilities: []MediaKind{MediaMuxed},
			}},
			want: []string{"b"},
		},
		{
			name: "token in manufacturer is case-insensitive",
			raw: []Device{{
				UniqueID:     "c",
				DisplayName:  "GR-DVL9800",
				Manufacturer: "jvc",
				Capabilities: []MediaKind{MediaMuxed},
			}},
			want: []string{"c"},
		},
		{
			name: "token must be a whole word",
			raw:  []Device{camcorder("d", "Advanced Capture Box")},
			want: []string{},
		},
		{
			name: "webcam without muxed capability",
			raw: []Device{{
				UniqueID:     "e",
				DisplayName:  "Sony USB Webcam",
				Capabilities: []MediaKind{MediaVideo},
			}},
			want: []string{},
		},
		{
			name: "unlisted vendor is a false negative",
			raw:  []Device{camcorder("f", "Hitachi VM-D875")},
			want: []string{},
		},
		{
			name: "order preserved",
			raw: []Device{
				camcorder("3", "Canon ZR60"),
				camcorder("x", "Generic Hub"),
				camcorder("1", "Panasonic NV-GS400"),
				camcorder("2", "DV Camera"),
			},
			want: []string{"3", "1", "2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filter.Apply(tt.raw)
			ids := make([]string, 0, len(got))
			for _, d := range got {
				ids = append(ids, d.UniqueID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestFilter_ApplyIsSubsequence(t *testing.T) {
	filter := NewFilter(MediaMuxed, []string{"dv"})
	raw := []Device{
		camcorder("1", "DV one"),
		camcorder("2", "other"),
		camcorder("3", "DV three"),
		camcorder("4", "DV four"),
		camcorder("5", "nope"),
	}

	got := filter.Apply(raw)

	j := 0
	for _, d := range got {
		for j < len(raw) && raw[j].UniqueID != d.UniqueID {
			j++
		}
		if !assert.Less(t, j, len(raw), "output is not a subsequence of input") {
			return
		}
		j++
	}
	assert.Len(t, got, 3)
}

func TestFilter_MultiWordToken(t *testing.T) {
	filter := NewFilter(MediaMuxed, []string{"Digital Handycam"})

	assert.True(t, filter.Matches(camcorder("a", "Sony Digital Handycam")))
	assert.False(t, filter.Matches(camcorder("b", "Digital Still Handycam")))
}

func TestFilter_NoCapabilityRequirement(t *testing.T) {
	filter := NewFilter("", []string{"canon"})

	assert.True(t, filter.Matches(Device{UniqueID: "a", DisplayName: "Canon webcam"}))
}
