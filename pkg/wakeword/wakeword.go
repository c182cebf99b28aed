// Package wakeword provides offline keyword spotting that gates every
// conversation. An [Engine] produces a keyword index per fixed-size frame;
// the [Detector] wraps it with length validation, logging, and idempotent
// shutdown. The engine's frame length and sample rate are authoritative —
// capture must conform to them, not the reverse.
package wakeword

import (
	"log/slog"
	"sync"
)

// Engine is the offline keyword-spotting model. Implementations must accept
// exactly FrameLength() samples per Process call.
type Engine interface {
	// FrameLength is the required number of int16 samples per frame.
	FrameLength() int

	// SampleRate is the required capture rate in Hz.
	SampleRate() int

	// Process scans one frame and returns the index of the detected keyword,
	// or -1 when none was detected.
	Process(frame []int16) (int, error)

	// Delete releases the engine's resources.
	Delete() error
}

// Detector wraps an [Engine] with the frame contract: wrong-length frames are
// rejected without reaching the engine, detection is an edge trigger on the
// frame where the keyword completes, and Close is idempotent.
type Detector struct {
	mu     sync.Mutex
	engine Engine
	closed bool
}

// NewDetector creates a Detector around a ready engine.
func NewDetector(engine Engine) *Detector {
	return &Detector{engine: engine}
}

// FrameLength returns the engine's required frame length.
func (d *Detector) FrameLength() int { return d.engine.FrameLength() }

// SampleRate returns the engine's required sample rate.
func (d *Detector) SampleRate() int { return d.engine.SampleRate() }

// ProcessFrame scans one frame and reports whether the wakeword completed on
// it. Frames of the wrong length are logged and reported as no detection;
// they never panic and never reach the engine.
func (d *Detector) ProcessFrame(frame []int16) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}

	want := d.engine.FrameLength()
	if len(frame) != want {
		slog.Warn("wakeword: wrong frame length", "got", len(frame), "want", want)
		return false
	}

	idx, err := d.engine.Process(frame)
	if err != nil {
		slog.Warn("wakeword: process failed", "err", err)
		return false
	}
	if idx >= 0 {
		slog.Info("wakeword detected", "keyword_index", idx)
		return true
	}
	return false
}

// Close releases the engine exactly once. Safe to call repeatedly.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.engine.Delete()
}
