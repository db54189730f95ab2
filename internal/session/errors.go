package session

import (
	"errors"
	"fmt"
)

var (
	ErrNoDeviceSelected = errors.New("no device selected")
	ErrAlreadyActive    = errors.New("capture session already active")
	ErrNotRunning       = errors.New("capture session is not running")
)

// ConfigurationError reports a failure to bind the device to the pipeline
type ConfigurationError struct {
	Detail string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration failed: %s: %v", e.Detail, e.Err)
	}
	return "configuration failed: " + e.Detail
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// WriteError reports a failure of the file writer
type WriteError struct {
	Detail string
	Err    error
}

func (e *WriteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("write failed: %s: %v", e.Detail, e.Err)
	}
	return "write failed: " + e.Detail
}

func (e *WriteError) Unwrap() error { return e.Err }
