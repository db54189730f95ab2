// Package capturetest provides an in-memory capture pipeline for tests.
package capturetest

import (
	"fmt"
	"sync"

	"github.com/audiolibrelab/dvcapture/internal/capture"
	"github.com/audiolibrelab/dvcapture/internal/device"
)

// Pipeline records every call and lets the test decide when and how a
// write completes.
type Pipeline struct {
	mu sync.Mutex

	// CommitErr and BeginErr make the respective call fail
	CommitErr error
	BeginErr  error
	// AutoComplete delivers a successful completion as soon as EndWrite is called
	AutoComplete bool
	// SupportedPresets overrides the default single "native" preset
	SupportedPresets []capture.Preset

	Resets    int
	Commits   []capture.Configuration
	Writes    []string
	EndWrites int

	committed   *capture.Configuration
	completions chan capture.Completion
	path        string
}

// New creates a fake pipeline
func New() *Pipeline {
	return &Pipeline{}
}

func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Resets++
	p.committed = nil
}

func (p *Pipeline) Presets(_ device.Device) []capture.Preset {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SupportedPresets != nil {
		return p.SupportedPresets
	}
	return []capture.Preset{{Name: "native", Quality: 100}}
}

func (p *Pipeline) Commit(cfg capture.Configuration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Commits = append(p.Commits, cfg)
	if p.CommitErr != nil {
		return p.CommitErr
	}
	p.committed = &cfg
	return nil
}

func (p *Pipeline) BeginWrite(path string) (<-chan capture.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.committed == nil {
		return nil, fmt.Errorf("no device bound")
	}
	if p.BeginErr != nil {
		return nil, p.BeginErr
	}
	p.Writes = append(p.Writes, path)
	p.completions = make(chan capture.Completion, 1)
	p.path = path
	return p.completions, nil
}

func (p *Pipeline) EndWrite() error {
	p.mu.Lock()
	p.EndWrites++
	auto := p.AutoComplete
	p.mu.Unlock()

	if auto {
		p.Complete(nil)
	}
	return nil
}

// Complete delivers the completion for the current write. Extra calls are ignored.
func (p *Pipeline) Complete(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.completions == nil {
		return
	}
	p.completions <- capture.Completion{Path: p.path, Err: err}
	close(p.completions)
	p.completions = nil
}

// CommitCount returns how many configurations were committed
func (p *Pipeline) CommitCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Commits)
}

// LastCommit returns the most recent configuration passed to Commit
func (p *Pipeline) LastCommit() (capture.Configuration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Commits) == 0 {
		return capture.Configuration{}, false
	}
	return p.Commits[len(p.Commits)-1], true
}

// Writing reports whether a write is waiting for its completion
func (p *Pipeline) Writing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completions != nil
}

var _ capture.Pipeline = (*Pipeline)(nil)
