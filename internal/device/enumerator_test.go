package device

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiEnumerator_DeduplicatesInOrder(t *testing.T) {
	first := NewStaticEnumerator(camcorder("A", "Sony A"), camcorder("B", "Canon B"))
	second := NewStaticEnumerator(camcorder("B", "Canon B (dup)"), camcorder("C", "JVC C"))

	devices, err := MultiEnumerator{first, second}.Enumerate(context.Background())
	require.NoError(t, err)

	require.Len(t, devices, 3)
	assert.Equal(t, "A", devices[0].UniqueID)
	assert.Equal(t, "Canon B", devices[1].DisplayName)
	assert.Equal(t, "C", devices[2].UniqueID)
}

func TestMultiEnumerator_FailsWhole(t *testing.T) {
	bad := NewStaticEnumerator()
	bad.Fail(errors.New("bus reset"))

	devices, err := MultiEnumerator{NewStaticEnumerator(camcorder("A", "Sony A")), bad}.Enumerate(context.Background())
	require.Error(t, err)
	assert.Nil(t, devices)
}

func TestStaticEnumerator_ReturnsCopies(t *testing.T) {
	e := NewStaticEnumerator(camcorder("A", "Sony A"))

	devices, err := e.Enumerate(context.Background())
	require.NoError(t, err)
	devices[0].Capabilities[0] = MediaAudio

	again, err := e.Enumerate(context.Background())
	require.NoError(t, err)
	assert.True(t, again[0].HasCapability(MediaMuxed))
}
