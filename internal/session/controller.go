package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/audiolibrelab/dvcapture/internal/capture"
	"github.com/audiolibrelab/dvcapture/internal/device"
)

// PathGenerator hands out output paths for new recordings
type PathGenerator interface {
	NextPath(dir string, ts time.Time) string
}

// Observer receives the view after every transition. It runs while the
// controller is locked and must not call back into the controller.
// Observers may read the device registry but must never take its write lock.
type Observer func(View)

// Option configures a Controller
type Option func(*Controller)

// WithObserver registers fn to receive every transition
func WithObserver(fn Observer) Option {
	return func(c *Controller) { c.observer = fn }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithSessionIDs replaces the uuid session ID source
func WithSessionIDs(next func() string) Option {
	return func(c *Controller) { c.newID = next }
}

// Controller owns the capture session state machine:
//
//	Idle -> Configuring -> Running -> Recording -> Stopping -> Idle
//
// All public methods are serialized. The transition out of Recording or
// Stopping happens only when the pipeline delivers the write completion.
type Controller struct {
	pipeline  capture.Pipeline
	paths     PathGenerator
	outputDir string
	observer  Observer
	now       func() time.Time
	newID     func() string

	mutex      sync.Mutex
	state      State
	outcome    *Outcome
	lastErr    error
	generation uint64
	finished   chan struct{}
}

// NewController creates an idle controller writing recordings under outputDir
func NewController(pipeline capture.Pipeline, paths PathGenerator, outputDir string, opts ...Option) *Controller {
	c := &Controller{
		pipeline:  pipeline,
		paths:     paths,
		outputDir: outputDir,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
		state:     State{Phase: Idle},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// View returns the current state with the last outcome or error
func (c *Controller) View() View {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.viewLocked()
}

// Start binds dev and begins recording it.
// Calling Start while already recording does nothing.
func (c *Controller) Start(dev *device.Device) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	switch c.state.Phase {
	case Recording:
		slog.Debug("Start ignored, already recording", "path", c.state.OutputPath)
		return nil
	case Configuring, Running, Stopping:
		return fmt.Errorf("%w (%s)", ErrAlreadyActive, c.state.Phase)
	}

	if err := c.configureLocked(dev); err != nil {
		return err
	}
	return c.beginWriteLocked()
}

// Preview binds dev without writing, so the live feed can be watched
func (c *Controller) Preview(dev *device.Device) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.state.Phase != Idle {
		return fmt.Errorf("%w (%s)", ErrAlreadyActive, c.state.Phase)
	}
	return c.configureLocked(dev)
}

// Record begins writing the device bound by Preview
func (c *Controller) Record() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	switch c.state.Phase {
	case Recording:
		return nil
	case Running:
		return c.beginWriteLocked()
	default:
		return fmt.Errorf("%w (%s)", ErrNotRunning, c.state.Phase)
	}
}

// Release unbinds a previewed device. It does nothing in any other phase.
func (c *Controller) Release() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.state.Phase != Running {
		return
	}
	c.pipeline.Reset()
	c.transitionLocked(State{Phase: Idle})
}

// Stop requests the end of the current recording. The session returns to
// Idle once the pipeline reports the file finished. Outside Recording this
// does nothing.
func (c *Controller) Stop() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.state.Phase != Recording {
		return nil
	}

	stopping := c.state
	stopping.Phase = Stopping
	c.transitionLocked(stopping)

	if err := c.pipeline.EndWrite(); err != nil {
		// the completion for this write still arrives and finalizes the session
		slog.Warn("Failed to request end of write", "path", stopping.OutputPath, "error", err)
		return &WriteError{Detail: "could not stop writer", Err: err}
	}
	return nil
}

// Wait blocks until the recording in progress has finished and returns its
// outcome. With nothing in progress it returns the last outcome, if any.
func (c *Controller) Wait(ctx context.Context) (*Outcome, error) {
	c.mutex.Lock()
	finished := c.finished
	c.mutex.Unlock()

	if finished != nil {
		select {
		case <-finished:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.outcome == nil {
		return nil, nil
	}
	outcome := *c.outcome
	return &outcome, nil
}

// Close stops any recording, waits for it to finish and releases the device
func (c *Controller) Close(ctx context.Context) error {
	if err := c.Stop(); err != nil {
		slog.Warn("Stop during close failed", "error", err)
	}
	if _, err := c.Wait(ctx); err != nil {
		return fmt.Errorf("recording did not finish: %w", err)
	}
	c.Release()
	return nil
}

func (c *Controller) configureLocked(dev *device.Device) error {
	if dev == nil {
		// a newer error replaces the previous recording's outcome in the status
		c.outcome = nil
		c.lastErr = ErrNoDeviceSelected
		c.notifyLocked()
		return ErrNoDeviceSelected
	}

	// captured by value: later registry refreshes never touch the session
	bound := dev.Clone()

	c.outcome = nil
	c.lastErr = nil
	c.transitionLocked(State{Phase: Configuring, Device: &bound})

	c.pipeline.Reset()

	preset, ok := capture.HighestQuality(c.pipeline.Presets(bound))
	if !ok {
		return c.configurationFailedLocked(&ConfigurationError{
			Detail: fmt.Sprintf("%s has no supported capture preset", bound.Name()),
		})
	}

	cfg := capture.Configuration{
		Input:  bound,
		Preset: preset,
		Output: capture.MovieOutput{FragmentInterval: capture.Unbounded},
	}
	if err := c.pipeline.Commit(cfg); err != nil {
		return c.configurationFailedLocked(&ConfigurationError{
			Detail: fmt.Sprintf("could not bind %s", bound.Name()),
			Err:    err,
		})
	}

	slog.Info("Capture session configured", "device", bound.UniqueID, "name", bound.Name(), "preset", preset.Name)
	c.transitionLocked(State{Phase: Running, Device: &bound})
	return nil
}

func (c *Controller) configurationFailedLocked(err *ConfigurationError) error {
	slog.Error("Capture session configuration failed", "error", err)
	c.pipeline.Reset()
	c.lastErr = err
	c.transitionLocked(State{Phase: Idle})
	return err
}

func (c *Controller) beginWriteLocked() error {
	bound := c.state.Device
	startedAt := c.now()
	path := c.paths.NextPath(c.outputDir, startedAt)

	completions, err := c.pipeline.BeginWrite(path)
	if err != nil {
		werr := &WriteError{Detail: fmt.Sprintf("could not start writing %s", filepath.Base(path)), Err: err}
		slog.Error("Failed to begin recording", "path", path, "error", err)
		c.pipeline.Reset()
		c.lastErr = werr
		c.transitionLocked(State{Phase: Idle})
		return werr
	}

	c.generation++
	c.finished = make(chan struct{})

	id := c.newID()
	c.transitionLocked(State{
		Phase:      Recording,
		Device:     bound,
		OutputPath: path,
		StartedAt:  startedAt,
		SessionID:  id,
	})
	slog.Info("Recording started", "session", id, "device", bound.UniqueID, "path", path)

	go c.await(c.generation, completions)
	return nil
}

// await consumes the single completion of one write
func (c *Controller) await(generation uint64, completions <-chan capture.Completion) {
	completion, ok := <-completions
	if !ok {
		completion = capture.Completion{Err: errors.New("writer closed without reporting completion")}
	}
	c.finalize(generation, completion)
}

func (c *Controller) finalize(generation uint64, completion capture.Completion) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if generation != c.generation || (c.state.Phase != Recording && c.state.Phase != Stopping) {
		slog.Debug("Ignoring stale write completion", "generation", generation)
		return
	}

	finishedAt := c.now()
	outcome := &Outcome{
		SessionID:  c.state.SessionID,
		OutputPath: c.state.OutputPath,
		Success:    completion.Err == nil,
		StartedAt:  c.state.StartedAt,
		FinishedAt: finishedAt,
		Duration:   finishedAt.Sub(c.state.StartedAt),
	}
	if completion.Path != "" {
		outcome.OutputPath = completion.Path
	}

	c.lastErr = nil
	if completion.Err != nil {
		outcome.ErrorDetail = completion.Err.Error()
		c.lastErr = &WriteError{Detail: filepath.Base(outcome.OutputPath), Err: completion.Err}
		slog.Error("Recording failed", "session", outcome.SessionID, "path", outcome.OutputPath, "error", completion.Err)
	} else {
		slog.Info("Recording finished", "session", outcome.SessionID, "path", outcome.OutputPath, "duration", outcome.Duration.Round(time.Second))
	}

	c.pipeline.Reset()
	c.outcome = outcome
	close(c.finished)
	c.finished = nil
	c.transitionLocked(State{Phase: Idle})
}

func (c *Controller) transitionLocked(next State) {
	if next.Phase != c.state.Phase {
		slog.Debug("Capture session transition", "from", c.state.Phase, "to", next.Phase)
	}
	c.state = next
	c.notifyLocked()
}

func (c *Controller) notifyLocked() {
	if c.observer != nil {
		c.observer(c.viewLocked())
	}
}

func (c *Controller) viewLocked() View {
	v := View{State: c.state}
	if c.state.Device != nil {
		bound := c.state.Device.Clone()
		v.State.Device = &bound
	}
	if c.state.Phase == Idle {
		if c.outcome != nil {
			outcome := *c.outcome
			v.Outcome = &outcome
		}
		v.Err = c.lastErr
	}
	return v
}
