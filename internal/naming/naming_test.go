package naming

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileName(t *testing.T) {
	ts := time.Date(2025, 11, 17, 9, 5, 3, 0, time.UTC)

	assert.Equal(t, "MiniDV-2025-11-17_09-05-03.mov", FileName("MiniDV", ts, "mov"))
	assert.Equal(t, "Tape-2025-11-17_09-05-03.dv", FileName("Tape", ts, ".dv"))
}

func TestGenerator_NextPath(t *testing.T) {
	dir := t.TempDir()
	g := NewGenerator("", "")
	ts := time.Date(2025, 11, 17, 21, 30, 0, 0, time.Local)

	assert.Equal(t, filepath.Join(dir, "MiniDV-2025-11-17_21-30-00.mov"), g.NextPath(dir, ts))
}

func TestGenerator_DistinctTimestampsNeverCollide(t *testing.T) {
	dir := t.TempDir()
	g := NewGenerator("MiniDV", "mov")
	base := time.Date(2025, 11, 17, 21, 30, 0, 0, time.Local)

	seen := make(map[string]bool)
	for _, offset := range []time.Duration{0, 200 * time.Millisecond, 900 * time.Millisecond, time.Second, time.Hour} {
		path := g.NextPath(dir, base.Add(offset))
		assert.False(t, seen[path], "duplicate path %s", path)
		seen[path] = true
	}

	assert.True(t, seen[filepath.Join(dir, "MiniDV-2025-11-17_21-30-00-2.mov")])
	assert.True(t, seen[filepath.Join(dir, "MiniDV-2025-11-17_21-30-00-3.mov")])
}

func TestGenerator_SkipsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local)
	existing := filepath.Join(dir, "MiniDV-2025-01-02_03-04-05.mov")
	require.NoError(t, os.WriteFile(existing, []byte("tape"), 0644))

	path := NewGenerator("MiniDV", "mov").NextPath(dir, ts)
	assert.Equal(t, filepath.Join(dir, "MiniDV-2025-01-02_03-04-05-2.mov"), path)
}
