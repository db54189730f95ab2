package capture

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/audiolibrelab/dvcapture/internal/device"
)

// FFmpegOptions tunes the ffmpeg-backed pipeline
type FFmpegOptions struct {
	Binary      string
	StopTimeout time.Duration
	MinFileSize int64
	// LogOutput streams every ffmpeg output line at debug level
	LogOutput bool
}

// FFmpegPipeline captures a device by running ffmpeg in stream-copy mode.
// The tape's native stream is remuxed into the output container untouched.
type FFmpegPipeline struct {
	opts     FFmpegOptions
	lookPath func(file string) (string, error)

	mutex    sync.Mutex
	binary   string
	config   *Configuration
	cmd      *exec.Cmd
	writing  bool
	stopping bool
}

// NewFFmpegPipeline creates a pipeline; zero options fall back to defaults
func NewFFmpegPipeline(opts FFmpegOptions) *FFmpegPipeline {
	if opts.Binary == "" {
		opts.Binary = "ffmpeg"
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 10 * time.Second
	}
	return &FFmpegPipeline{
		opts:     opts,
		lookPath: exec.LookPath,
	}
}

// Reset clears the committed bindings. A writer still running is killed;
// its completion is still delivered.
func (p *FFmpegPipeline) Reset() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.writing && p.cmd != nil && p.cmd.Process != nil {
		slog.Warn("Resetting pipeline with ffmpeg still running, killing it")
		p.stopping = true
		_ = p.cmd.Process.Kill()
	}
	p.config = nil
}

// Presets lists what the pipeline can do for dev, best first
func (p *FFmpegPipeline) Presets(dev device.Device) []Preset {
	switch dev.Transport {
	case device.TransportFireWire:
		return []Preset{{Name: "dv-native", Quality: 100}}
	case device.TransportV4L2:
		return []Preset{
			{Name: "dvvideo", Quality: 100, InputArgs: []string{"-input_format", "dvvideo"}},
			{Name: "native", Quality: 50},
		}
	case device.TransportStatic:
		return []Preset{{Name: "file", Quality: 100, InputArgs: []string{"-re"}}}
	default:
		return nil
	}
}

// Commit binds cfg as the sole input and output
func (p *FFmpegPipeline) Commit(cfg Configuration) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.writing {
		return fmt.Errorf("cannot reconfigure while a recording is being written")
	}

	if _, err := inputArgs(cfg); err != nil {
		return err
	}

	binary, err := p.lookPath(p.opts.Binary)
	if err != nil {
		return fmt.Errorf("ffmpeg not available: %w", err)
	}

	committed := cfg
	committed.Input = cfg.Input.Clone()
	p.binary = binary
	p.config = &committed

	slog.Debug("Pipeline committed", "device", cfg.Input.UniqueID, "preset", cfg.Preset.Name, "ffmpeg", binary)
	return nil
}

// BeginWrite starts ffmpeg writing to path
func (p *FFmpegPipeline) BeginWrite(path string) (<-chan Completion, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.config == nil {
		return nil, fmt.Errorf("no device bound")
	}
	if p.writing {
		return nil, fmt.Errorf("already writing")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	args, err := buildArgs(*p.config, path)
	if err != nil {
		return nil, err
	}

	slog.Info("Starting ffmpeg", "command", p.binary+" "+strings.Join(args, " "))

	output := newOutputLog(p.opts.LogOutput)
	cmd := exec.Command(p.binary, args...)
	cmd.Stdout = output
	cmd.Stderr = output

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	p.cmd = cmd
	p.writing = true
	p.stopping = false

	completions := make(chan Completion, 1)
	go p.wait(cmd, path, output, completions)
	return completions, nil
}

// EndWrite asks ffmpeg to finish the file. Completion arrives asynchronously.
func (p *FFmpegPipeline) EndWrite() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.writing || p.cmd == nil {
		return fmt.Errorf("no write in progress")
	}
	if p.stopping {
		return nil
	}
	p.stopping = true

	cmd := p.cmd
	if cmd.Process != nil {
		slog.Debug("Sending SIGINT to ffmpeg process")
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			slog.Debug("Failed to send interrupt to ffmpeg, killing", "error", err)
			_ = cmd.Process.Kill()
		}
	}

	time.AfterFunc(p.opts.StopTimeout, func() {
		p.mutex.Lock()
		defer p.mutex.Unlock()
		if p.cmd == cmd && cmd.Process != nil {
			slog.Warn("ffmpeg did not exit within timeout, force killing", "timeout", p.opts.StopTimeout)
			_ = cmd.Process.Kill()
		}
	})

	return nil
}

// wait reaps ffmpeg and delivers the single completion for this write
func (p *FFmpegPipeline) wait(cmd *exec.Cmd, path string, output *outputLog, completions chan<- Completion) {
	waitErr := cmd.Wait()

	p.mutex.Lock()
	stopping := p.stopping
	if p.cmd == cmd {
		p.cmd = nil
		p.writing = false
		p.stopping = false
	}
	p.mutex.Unlock()

	err := exitError(waitErr, stopping, output.Tail())
	if err == nil {
		err = p.validateOutputFile(path)
	}

	if err != nil {
		slog.Error("ffmpeg recording failed", "path", path, "error", err)
	} else {
		slog.Debug("ffmpeg recording completed", "path", path)
	}

	completions <- Completion{Path: path, Err: err}
	close(completions)
}

// exitError separates a requested shutdown from a real failure
func exitError(err error, stopping bool, tail string) error {
	if err == nil {
		return nil
	}

	if stopping {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// 255 is ffmpeg's exit code after a graceful interrupt
			if exitErr.ExitCode() == 255 {
				return nil
			}
			if exitErr.ProcessState != nil {
				state := exitErr.ProcessState.String()
				if state == "signal: interrupt" || state == "signal: killed" {
					return nil
				}
			}
		}
	}

	if tail != "" {
		return fmt.Errorf("ffmpeg process failed: %w (%s)", err, tail)
	}
	return fmt.Errorf("ffmpeg process failed: %w", err)
}

func (p *FFmpegPipeline) validateOutputFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("recording file not found: %s", path)
	}
	if info.Size() < p.opts.MinFileSize {
		return fmt.Errorf("recording failed: file too small (%d bytes)", info.Size())
	}
	return nil
}

func buildArgs(cfg Configuration, path string) ([]string, error) {
	input, err := inputArgs(cfg)
	if err != nil {
		return nil, err
	}

	args := []string{"-hide_banner", "-nostdin"}
	args = append(args, input...)
	args = append(args, "-map", "0", "-c", "copy")

	if frag := cfg.Output.FragmentInterval; frag > 0 {
		args = append(args,
			"-movflags", "+frag_keyframe",
			"-frag_duration", strconv.FormatInt(frag.Microseconds(), 10),
		)
	}

	// never overwrite an existing recording
	args = append(args, "-n", path)
	return args, nil
}

func inputArgs(cfg Configuration) ([]string, error) {
	dev := cfg.Input
	switch dev.Transport {
	case device.TransportFireWire:
		source := dev.Address
		if source == "" {
			source = "auto"
		}
		args := append([]string{"-f", "iec61883"}, cfg.Preset.InputArgs...)
		return append(args, "-i", source), nil

	case device.TransportV4L2:
		if dev.Address == "" {
			return nil, fmt.Errorf("device %s has no video node", dev.UniqueID)
		}
		args := append([]string{"-f", "v4l2"}, cfg.Preset.InputArgs...)
		return append(args, "-i", v4l2Node(dev.Address)), nil

	case device.TransportStatic:
		if dev.Address == "" {
			return nil, fmt.Errorf("device %s has no source file", dev.UniqueID)
		}
		args := append([]string{}, cfg.Preset.InputArgs...)
		return append(args, "-i", dev.Address), nil

	default:
		return nil, fmt.Errorf("unsupported transport %q for device %s", dev.Transport, dev.UniqueID)
	}
}

// v4l2Node turns a driver label such as "video0;video0" into /dev/video0
func v4l2Node(address string) string {
	if strings.HasPrefix(address, "/") {
		return address
	}
	node, _, _ := strings.Cut(address, ";")
	return "/dev/" + node
}

const outputTailLines = 5

// outputLog collects ffmpeg output, optionally echoing it to slog,
// and keeps the last few lines for error reports.
type outputLog struct {
	mu      sync.Mutex
	echo    bool
	partial []byte
	tail    []string
}

func newOutputLog(echo bool) *outputLog {
	return &outputLog{echo: echo}
}

func (o *outputLog) Write(b []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.partial = append(o.partial, b...)
	for {
		i := bytes.IndexAny(o.partial, "\r\n")
		if i < 0 {
			break
		}
		line := strings.TrimSpace(string(o.partial[:i]))
		o.partial = o.partial[i+1:]
		if line == "" {
			continue
		}
		if o.echo {
			slog.Debug("ffmpeg output", "line", line)
		}
		o.tail = append(o.tail, line)
		if len(o.tail) > outputTailLines {
			o.tail = o.tail[1:]
		}
	}
	return len(b), nil
}

// Tail returns the last lines written, joined with "; "
func (o *outputLog) Tail() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return strings.Join(o.tail, "; ")
}
