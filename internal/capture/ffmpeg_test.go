package capture

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/dvcapture/internal/device"
)

var sonyCam = device.Device{
	UniqueID:     "0x080046010203a1b2",
	DisplayName:  "Sony DCR-TRV900",
	Capabilities: []device.MediaKind{device.MediaMuxed},
	Transport:    device.TransportFireWire,
	Address:      "0x080046010203a1b2",
}

func TestHighestQuality(t *testing.T) {
	_, ok := HighestQuality(nil)
	assert.False(t, ok)

	best, ok := HighestQuality([]Preset{{Name: "low", Quality: 10}, {Name: "high", Quality: 90}, {Name: "also-high", Quality: 90}})
	require.True(t, ok)
	assert.Equal(t, "high", best.Name)
}

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name string
		cfg  Configuration
		want []string
	}{
		{
			name: "firewire continuous",
			cfg: Configuration{
				Input:  sonyCam,
				Preset: Preset{Name: "dv-native", Quality: 100},
			},
			want: []string{"-hide_banner", "-nostdin", "-f", "iec61883", "-i", "0x080046010203a1b2",
				"-map", "0", "-c", "copy", "-n", "/out/a.mov"},
		},
		{
			name: "v4l2 with preset input format",
			cfg: Configuration{
				Input:  device.Device{UniqueID: "v", Transport: device.TransportV4L2, Address: "video2;video2"},
				Preset: Preset{Name: "dvvideo", InputArgs: []string{"-input_format", "dvvideo"}},
			},
			want: []string{"-hide_banner", "-nostdin", "-f", "v4l2", "-input_format", "dvvideo", "-i", "/dev/video2",
				"-map", "0", "-c", "copy", "-n", "/out/a.mov"},
		},
		{
			name: "fragmented output",
			cfg: Configuration{
				Input:  device.Device{UniqueID: "s", Transport: device.TransportStatic, Address: "/tapes/t.dv"},
				Preset: Preset{Name: "file", InputArgs: []string{"-re"}},
				Output: MovieOutput{FragmentInterval: 2 * time.Second},
			},
			want: []string{"-hide_banner", "-nostdin", "-re", "-i", "/tapes/t.dv",
				"-map", "0", "-c", "copy", "-movflags", "+frag_keyframe", "-frag_duration", "2000000", "-n", "/out/a.mov"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildArgs(tt.cfg, "/out/a.mov")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildArgs_UnsupportedTransport(t *testing.T) {
	_, err := buildArgs(Configuration{Input: device.Device{UniqueID: "x", Transport: "usb-serial"}}, "/out/a.mov")
	assert.Error(t, err)
}

func TestFFmpegPipeline_Presets(t *testing.T) {
	p := NewFFmpegPipeline(FFmpegOptions{})

	best, ok := HighestQuality(p.Presets(device.Device{Transport: device.TransportV4L2}))
	require.True(t, ok)
	assert.Equal(t, "dvvideo", best.Name)

	assert.Empty(t, p.Presets(device.Device{Transport: "bluetooth"}))
}

func TestFFmpegPipeline_CommitWithoutBinary(t *testing.T) {
	p := NewFFmpegPipeline(FFmpegOptions{Binary: "ffmpeg-missing"})
	p.lookPath = func(string) (string, error) { return "", errors.New("executable file not found in $PATH") }

	err := p.Commit(Configuration{Input: sonyCam, Preset: Preset{Name: "dv-native"}})
	require.Error(t, err)

	_, err = p.BeginWrite(filepath.Join(t.TempDir(), "a.mov"))
	assert.EqualError(t, err, "no device bound")
}

func TestFFmpegPipeline_EndWriteWithoutRecording(t *testing.T) {
	assert.Error(t, NewFFmpegPipeline(FFmpegOptions{}).EndWrite())
}

func TestExitError(t *testing.T) {
	assert.NoError(t, exitError(nil, false, ""))
	assert.EqualError(t, exitError(errors.New("exit status 1"), false, "No such device"),
		"ffmpeg process failed: exit status 1 (No such device)")
}

func TestOutputLog_Tail(t *testing.T) {
	log := newOutputLog(false)
	_, _ = log.Write([]byte("frame=  1\rframe=  2\n"))
	for i := 0; i < 6; i++ {
		_, _ = log.Write([]byte("line\n"))
	}
	_, _ = log.Write([]byte("partial"))

	assert.Equal(t, "line; line; line; line; line", log.Tail())
}

// fakeFFmpeg installs a shell script standing in for ffmpeg
func fakeFFmpeg(t *testing.T, script string) *FFmpegPipeline {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	bin := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"+script), 0755))

	p := NewFFmpegPipeline(FFmpegOptions{Binary: bin, MinFileSize: 1024, StopTimeout: 2 * time.Second})
	p.lookPath = func(file string) (string, error) { return file, nil }
	return p
}

func awaitCompletion(t *testing.T, ch <-chan Completion) Completion {
	t.Helper()
	select {
	case c, ok := <-ch:
		require.True(t, ok)
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("no completion delivered")
		return Completion{}
	}
}

func TestFFmpegPipeline_WriteUntilEndWrite(t *testing.T) {
	p := fakeFFmpeg(t, `for last; do :; done
head -c 4096 /dev/zero > "$last"
trap 'exit 255' INT
while true; do sleep 0.05; done
`)
	require.NoError(t, p.Commit(Configuration{Input: sonyCam, Preset: Preset{Name: "dv-native"}}))

	path := filepath.Join(t.TempDir(), "tapes", "MiniDV-2025-11-17_10-00-00.mov")
	done, err := p.BeginWrite(path)
	require.NoError(t, err)

	_, err = p.BeginWrite(path)
	assert.EqualError(t, err, "already writing")

	require.Eventually(t, func() bool {
		info, err := os.Stat(path)
		return err == nil && info.Size() == 4096
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, p.EndWrite())
	c := awaitCompletion(t, done)
	assert.NoError(t, c.Err)
	assert.Equal(t, path, c.Path)

	_, open := <-done
	assert.False(t, open, "completion channel must be single-shot")
}

func TestFFmpegPipeline_FailureIsReported(t *testing.T) {
	p := fakeFFmpeg(t, `echo "iec61883: no device found" >&2
exit 1
`)
	require.NoError(t, p.Commit(Configuration{Input: sonyCam, Preset: Preset{Name: "dv-native"}}))

	done, err := p.BeginWrite(filepath.Join(t.TempDir(), "a.mov"))
	require.NoError(t, err)

	c := awaitCompletion(t, done)
	require.Error(t, c.Err)
	assert.Contains(t, c.Err.Error(), "no device found")
}

func TestFFmpegPipeline_TooSmallFile(t *testing.T) {
	p := fakeFFmpeg(t, `for last; do :; done
printf 'x' > "$last"
`)
	require.NoError(t, p.Commit(Configuration{Input: sonyCam, Preset: Preset{Name: "dv-native"}}))

	done, err := p.BeginWrite(filepath.Join(t.TempDir(), "a.mov"))
	require.NoError(t, err)

	c := awaitCompletion(t, done)
	assert.EqualError(t, c.Err, "recording failed: file too small (1 bytes)")
}
