// Package capture drives the capture mechanism on behalf of the orchestrator
// and summarizes every finished session.
package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sync"
)

var (
	// ErrCaptureActive is returned when a capture is enabled twice.
	ErrCaptureActive = errors.New("capture already enabled")
	// ErrCaptureInactive is returned when no capture is enabled.
	ErrCaptureInactive = errors.New("capture not enabled")
)

// Mechanism is the primitive that records a trace to a file. It must only be
// driven by a single caller at a time.
type Mechanism interface {
	EnableCapture(path string) error
	// DisableCapture finalizes the trace and returns the id of the process
	// that owned it.
	DisableCapture() (pid int, err error)
}

// Capturing is implemented by mechanisms that can report whether a capture is
// still in progress after a failed disable.
type Capturing interface {
	Capturing() bool
}

// PprofMechanism captures CPU profiles of the current process with runtime/pprof.
type PprofMechanism struct {
	mu   sync.Mutex
	file *os.File
}

// NewPprofMechanism creates a runtime/pprof backed mechanism.
func NewPprofMechanism() *PprofMechanism {
	return &PprofMechanism{}
}

// EnableCapture starts a CPU profile written to path.
func (m *PprofMechanism) EnableCapture(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.file != nil {
		return ErrCaptureActive
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create capture directory: %w", err)
	}

	// #nosec G304 - path is built by the provider from the configured output directory.
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create capture file: %w", err)
	}

	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("failed to start CPU profile: %w", err)
	}

	m.file = f
	return nil
}

// DisableCapture stops the CPU profile and flushes it to disk.
func (m *PprofMechanism) DisableCapture() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.file == nil {
		return 0, ErrCaptureInactive
	}

	pprof.StopCPUProfile()
	err := m.file.Close()
	m.file = nil
	if err != nil {
		return 0, fmt.Errorf("failed to close capture file: %w", err)
	}
	return os.Getpid(), nil
}

// Capturing reports whether a profile is being written.
func (m *PprofMechanism) Capturing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file != nil
}
