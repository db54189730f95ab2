package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/audiolibrelab/dvcapture/internal/capture"
	"github.com/audiolibrelab/dvcapture/internal/config"
	"github.com/audiolibrelab/dvcapture/internal/device"
	"github.com/audiolibrelab/dvcapture/internal/naming"
	"github.com/audiolibrelab/dvcapture/internal/notify"
	"github.com/audiolibrelab/dvcapture/internal/session"
	"github.com/audiolibrelab/dvcapture/internal/status"
)

// Service represents the core DV capture service interface
type Service interface {
	// Discovery operations
	Refresh(ctx context.Context) (device.Event, error)
	SelectDevice(id string) error
	Run(ctx context.Context) error

	// Capture operations
	Start() error
	Stop() error
	Preview() error
	Record() error
	Release()
	Wait(ctx context.Context) (*session.Outcome, error)
	Close(ctx context.Context) error

	// Information operations
	Snapshot() Snapshot
	Subscribe() (<-chan Snapshot, func())
	GetConfig() *config.Config
	GetLastError() string
}

// Snapshot is the read-only projection the UI renders
type Snapshot struct {
	Devices     []device.Device  `json:"devices"`
	Selected    *device.Device   `json:"selected,omitempty"`
	State       session.State    `json:"state"`
	IsRecording bool             `json:"is_recording"`
	StatusText  string           `json:"status_text"`
	Outcome     *session.Outcome `json:"outcome,omitempty"`
	LastError   string           `json:"last_error,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Option overrides a collaborator built from the configuration
type Option func(*options)

type options struct {
	enumerator   device.Enumerator
	pipeline     capture.Pipeline
	notifier     notify.Sink
	clock        func() time.Time
	ffmpegOutput bool
}

// WithEnumerator replaces the configured discovery backends
func WithEnumerator(e device.Enumerator) Option {
	return func(o *options) { o.enumerator = e }
}

// WithPipeline replaces the ffmpeg pipeline
func WithPipeline(p capture.Pipeline) Option {
	return func(o *options) { o.pipeline = p }
}

// WithNotifier replaces the configured notification sinks
func WithNotifier(n notify.Sink) Option {
	return func(o *options) { o.notifier = n }
}

// WithClock replaces time.Now for file names and timestamps
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithFFmpegOutput streams ffmpeg output to the debug log
func WithFFmpegOutput(enabled bool) Option {
	return func(o *options) { o.ffmpegOutput = enabled }
}

// DVCaptureService is the main service implementation
type DVCaptureService struct {
	cfg        *config.Config
	enumerator device.Enumerator
	registry   *device.Registry
	controller *session.Controller
	notifier   notify.Sink
	now        func() time.Time

	// guards everything below; taken after the controller lock, before the registry lock
	mutex       sync.Mutex
	view        session.View
	subscribers map[int]chan Snapshot
	nextSub     int
	published   Snapshot
	closed      bool

	// Error tracking
	lastError error
	enumError error

	notifications sync.WaitGroup
}

// New creates a new service instance from cfg
func New(cfg *config.Config, opts ...Option) *DVCaptureService {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.enumerator == nil {
		o.enumerator = NewEnumerator(cfg.Discovery)
	}
	if o.pipeline == nil {
		o.pipeline = capture.NewFFmpegPipeline(capture.FFmpegOptions{
			Binary:      cfg.Capture.FFmpeg,
			StopTimeout: cfg.Capture.StopTimeout,
			MinFileSize: cfg.Capture.MinFileSize,
			LogOutput:   o.ffmpegOutput,
		})
	}
	if o.notifier == nil {
		o.notifier = buildNotifier(cfg.Notifications)
	}

	s := &DVCaptureService{
		cfg:         cfg,
		enumerator:  o.enumerator,
		registry:    device.NewRegistry(device.NewFilter(device.MediaKind(cfg.Discovery.Capability), cfg.Discovery.Tokens)),
		notifier:    o.notifier,
		now:         o.clock,
		view:        session.View{State: session.State{Phase: session.Idle}},
		subscribers: make(map[int]chan Snapshot),
	}
	s.controller = session.NewController(
		o.pipeline,
		naming.NewGenerator(cfg.Output.Prefix, cfg.Output.Extension),
		cfg.Output.Directory,
		session.WithObserver(s.onSessionChange),
		session.WithClock(o.clock),
	)
	return s
}

// NewEnumerator combines the configured discovery backends
func NewEnumerator(cfg config.DiscoveryConfig) device.Enumerator {
	var backends device.MultiEnumerator
	for _, name := range cfg.Backends {
		switch name {
		case config.BackendFireWire:
			backends = append(backends, device.NewFireWireEnumerator(cfg.FireWireRoot))
		case config.BackendMediaDevices:
			backends = append(backends, device.MediaDevicesEnumerator{})
		case config.BackendStatic:
			backends = append(backends, device.NewStaticEnumerator(staticDevices(cfg.StaticSources)...))
		default:
			slog.Warn("Ignoring unknown discovery backend", "backend", name)
		}
	}
	if len(backends) == 1 {
		return backends[0]
	}
	return backends
}

func staticDevices(sources []config.StaticSource) []device.Device {
	devices := make([]device.Device, 0, len(sources))
	for _, src := range sources {
		name := src.Name
		if name == "" {
			name = src.ID
		}
		devices = append(devices, device.Device{
			UniqueID:     src.ID,
			DisplayName:  name,
			ModelID:      name,
			Manufacturer: src.Manufacturer,
			Capabilities: []device.MediaKind{device.MediaMuxed, device.MediaVideo, device.MediaAudio},
			Transport:    device.TransportStatic,
			Address:      src.Path,
		})
	}
	return devices
}

func buildNotifier(cfg config.NotificationsConfig) notify.Sink {
	if !cfg.IsEnabled() {
		return notify.LogSink{}
	}
	return notify.Multi{notify.LogSink{}, notify.NewDesktopSink()}
}

// Refresh enumerates devices once and updates the candidates
func (s *DVCaptureService) Refresh(ctx context.Context) (device.Event, error) {
	raw, err := s.enumerator.Enumerate(ctx)
	if err != nil {
		slog.Warn("Device enumeration failed", "error", err)
		s.mutex.Lock()
		s.enumError = fmt.Errorf("device enumeration failed: %w", err)
		s.publishLocked()
		s.mutex.Unlock()
		return device.EventNone, fmt.Errorf("device enumeration failed: %w", err)
	}

	event := s.registry.Refresh(raw)

	s.mutex.Lock()
	s.enumError = nil
	s.publishLocked()
	s.mutex.Unlock()

	if event != device.EventNone {
		slog.Info("MiniDV device presence changed", "event", event.String(), "candidates", s.registry.Snapshot().Count)
		s.dispatch(event)
	}
	return event, nil
}

// dispatch delivers a presence event without blocking the caller
func (s *DVCaptureService) dispatch(event device.Event) {
	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Notification sink panicked", "event", event.String(), "panic", r)
			}
		}()
		switch event {
		case device.EventConnected:
			s.notifier.NotifyConnected()
		case device.EventDisconnected:
			s.notifier.NotifyDisconnected()
		}
	}()
}

// SelectDevice makes id the device used by the next Start
func (s *DVCaptureService) SelectDevice(id string) error {
	if err := s.registry.Select(id); err != nil {
		s.setLastError(err)
		return err
	}
	slog.Debug("Device selected", "device", id)
	s.clearLastError()
	return nil
}

// Run refreshes on every poll tick and device node change until ctx is cancelled
func (s *DVCaptureService) Run(ctx context.Context) error {
	watcher := device.NewWatcher(s.cfg.Discovery.PollInterval, s.cfg.Discovery.WatchPaths, func(ctx context.Context, reason string) {
		if _, err := s.Refresh(ctx); err != nil {
			slog.Debug("Refresh failed", "reason", reason, "error", err)
		}
	})
	err := watcher.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Start binds the selected device and begins recording it
func (s *DVCaptureService) Start() error {
	slog.Debug("Service.Start called")
	s.clearLastError()
	err := s.controller.Start(s.selected())
	if err != nil {
		slog.Error("Service.Start failed", "error", err)
	}
	return err
}

// Preview binds the selected device without recording
func (s *DVCaptureService) Preview() error {
	s.clearLastError()
	return s.controller.Preview(s.selected())
}

// Record begins writing the previewed device
func (s *DVCaptureService) Record() error {
	return s.controller.Record()
}

// Release unbinds a previewed device
func (s *DVCaptureService) Release() {
	s.controller.Release()
}

// Stop requests the end of the current recording
func (s *DVCaptureService) Stop() error {
	err := s.controller.Stop()
	if err != nil {
		slog.Error("Service.Stop failed", "error", err)
	}
	return err
}

// Wait blocks until the recording in progress has finished
func (s *DVCaptureService) Wait(ctx context.Context) (*session.Outcome, error) {
	return s.controller.Wait(ctx)
}

// Close finishes any recording, waits for pending notifications and ends
// every subscription
func (s *DVCaptureService) Close(ctx context.Context) error {
	err := s.controller.Close(ctx)
	s.notifications.Wait()

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.closed {
		s.closed = true
		for id, ch := range s.subscribers {
			close(ch)
			delete(s.subscribers, id)
		}
	}
	return err
}

// Snapshot returns the current projection
func (s *DVCaptureService) Snapshot() Snapshot {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel receiving every new projection, starting with
// the current one. A slow reader only sees the latest. cancel ends the
// subscription and closes the channel.
func (s *DVCaptureService) Subscribe() (<-chan Snapshot, func()) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ch := make(chan Snapshot, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	ch <- s.snapshotLocked()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mutex.Lock()
			defer s.mutex.Unlock()
			if sub, ok := s.subscribers[id]; ok {
				close(sub)
				delete(s.subscribers, id)
			}
		})
	}
	return ch, cancel
}

// GetConfig returns the current configuration
func (s *DVCaptureService) GetConfig() *config.Config {
	return s.cfg
}

// GetLastError returns the last error message
func (s *DVCaptureService) GetLastError() string {
	return s.Snapshot().LastError
}

func (s *DVCaptureService) selected() *device.Device {
	dev, ok := s.registry.Selected()
	if !ok {
		return nil
	}
	return &dev
}

// onSessionChange runs with the controller locked
func (s *DVCaptureService) onSessionChange(view session.View) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.view = view
	s.publishLocked()
}

func (s *DVCaptureService) setLastError(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.lastError = err
	s.publishLocked()
}

func (s *DVCaptureService) clearLastError() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.lastError = nil
}

func (s *DVCaptureService) snapshotLocked() Snapshot {
	reg := s.registry.Snapshot()
	view := s.view

	if view.State.Phase == session.Idle {
		switch {
		case s.lastError != nil:
			view.Outcome = nil
			view.Err = s.lastError
		case view.Outcome == nil && view.Err == nil && s.enumError != nil:
			view.Err = s.enumError
		}
	}

	snap := Snapshot{
		Devices:     reg.Candidates,
		Selected:    reg.Selected,
		State:       view.State,
		IsRecording: view.IsRecording(),
		StatusText:  status.Describe(reg, view),
		Outcome:     view.Outcome,
		UpdatedAt:   s.now(),
	}
	if view.Err != nil {
		snap.LastError = view.Err.Error()
	}
	return snap
}

// publishLocked fans out the projection when anything but the timestamp changed
func (s *DVCaptureService) publishLocked() {
	snap := s.snapshotLocked()

	prev := s.published
	prev.UpdatedAt = snap.UpdatedAt
	if reflect.DeepEqual(prev, snap) {
		return
	}
	s.published = snap

	for _, ch := range s.subscribers {
		// drop the unread snapshot so the newest always fits
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
