package device

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAttrs(t *testing.T, dir string, attrs map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	for name, value := range attrs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(value+"\n"), 0644))
	}
}

func TestFireWireEnumerator_Enumerate(t *testing.T) {
	root := t.TempDir()

	// local controller
	writeAttrs(t, filepath.Join(root, "fw0"), map[string]string{
		"guid":        "0x0011060000000001",
		"is_local":    "1",
		"vendor_name": "VIA",
	})
	// camcorder with an AV/C unit
	writeAttrs(t, filepath.Join(root, "fw1"), map[string]string{
		"guid":        "0x080046010203a1b2",
		"is_local":    "0",
		"vendor_name": "Sony",
		"model_name":  "DCR-TRV900",
	})
	writeAttrs(t, filepath.Join(root, "fw1.0"), map[string]string{
		"specifier_id": "0x00a02d",
		"version":      "0x010001",
	})
	// storage device, SBP-2 unit only
	writeAttrs(t, filepath.Join(root, "fw2"), map[string]string{
		"guid":        "0x0030e00000000042",
		"is_local":    "0",
		"vendor_name": "LaCie",
	})
	writeAttrs(t, filepath.Join(root, "fw2.0"), map[string]string{
		"specifier_id": "0x00609e",
		"version":      "0x010483",
	})

	devices, err := NewFireWireEnumerator(root).Enumerate(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)

	cam := devices[0]
	assert.Equal(t, "0x080046010203a1b2", cam.UniqueID)
	assert.Equal(t, "Sony DCR-TRV900", cam.DisplayName)
	assert.Equal(t, "Sony", cam.Manufacturer)
	assert.Equal(t, "DCR-TRV900", cam.ModelID)
	assert.Equal(t, TransportFireWire, cam.Transport)
	assert.True(t, cam.HasCapability(MediaMuxed))

	disk := devices[1]
	assert.Equal(t, "LaCie", disk.DisplayName)
	assert.False(t, disk.HasCapability(MediaMuxed))

	candidates := NewFilter(MediaMuxed, DefaultTokens).Apply(devices)
	require.Len(t, candidates, 1)
	assert.Equal(t, cam.UniqueID, candidates[0].UniqueID)
}

func TestFireWireEnumerator_MissingBus(t *testing.T) {
	devices, err := NewFireWireEnumerator(filepath.Join(t.TempDir(), "absent")).Enumerate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestFireWireEnumerator_FallbackName(t *testing.T) {
	root := t.TempDir()
	writeAttrs(t, filepath.Join(root, "fw3"), map[string]string{"guid": "0xabc"})

	devices, err := NewFireWireEnumerator(root).Enumerate(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "FireWire device 0xabc", devices[0].DisplayName)
}
