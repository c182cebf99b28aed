// Package audio owns the real-time audio path of the assistant: microphone
// capture, speaker playback, device enumeration, sample-rate conversion, and
// short sound effects.
//
// All PCM flowing through this package is 16-bit signed little-endian mono.
// Capture delivers audio at [CaptureRate] regardless of what the device
// supports; playback accepts audio at [PlaybackRate] and converts to the
// device rate on the way out. The device callbacks never block: capture drops
// chunks into a bounded queue, playback emits silence on underrun.
package audio

import "errors"

const (
	// CaptureRate is the sample rate every captured chunk is delivered at.
	CaptureRate = 16000

	// PlaybackRate is the sample rate queued playback audio is expected in.
	PlaybackRate = 24000
)

var (
	// ErrNotStarted is returned when a stream is consumed before it was started.
	ErrNotStarted = errors.New("audio: not started")

	// ErrClosed is returned when an operation races with component shutdown.
	ErrClosed = errors.New("audio: closed")
)
