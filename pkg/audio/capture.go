package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

const (
	// queueCapacity bounds the conversation stream queue. Overflow drops the
	// newest chunk; the device callback must never wait.
	queueCapacity = 500

	// dropLogInterval throttles overflow logging to one line per N drops.
	dropLogInterval = 100

	// fallbackRate is tried when the device refuses the target rate.
	fallbackRate = 48000

	// wakewordBacklog caps the synchronous read buffer (in samples at
	// CaptureRate) so a stalled wakeword loop cannot grow it unbounded.
	wakewordBacklog = 2 * CaptureRate
)

// Capture owns the microphone. It runs in one of two modes: synchronous
// frame reads for wakeword detection ([Capture.ReadFrame]), or a bounded
// asynchronous chunk stream for a conversation ([Capture.StartStream]).
//
// Every delivered sample is mono int16 at [CaptureRate]; if the device only
// opens at another rate the callback resamples with a ratio fixed at start.
type Capture struct {
	mgr        *Manager
	deviceName string

	device      *malgo.Device
	actualRate  int
	needsResamp bool

	muted   atomic.Bool
	dropped atomic.Uint64

	mu        sync.Mutex
	cond      *sync.Cond
	started   bool
	streaming bool
	frameBuf  []int16
	chunks    chan []byte
}

// NewCapture creates a Capture bound to the input device whose name contains
// deviceName (case-insensitive); empty selects the default device.
func NewCapture(mgr *Manager, deviceName string) *Capture {
	c := &Capture{mgr: mgr, deviceName: deviceName}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Start opens the microphone, negotiating the sample rate: the target rate is
// tried first, then the device's native rate with resampling enabled.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}

	id, name, err := c.mgr.findDevice(malgo.Capture, c.deviceName)
	if err != nil {
		return err
	}

	dev, rate, err := c.openDevice(id, CaptureRate)
	if err != nil {
		slog.Warn("capture: target rate unsupported, falling back",
			"target", CaptureRate, "fallback", fallbackRate, "err", err)
		dev, rate, err = c.openDevice(id, fallbackRate)
		if err != nil {
			return fmt.Errorf("audio: open capture device: %w", err)
		}
	}

	c.device = dev
	c.actualRate = rate
	c.needsResamp = rate != CaptureRate
	c.started = true

	if err := dev.Start(); err != nil {
		dev.Uninit()
		c.device = nil
		c.started = false
		return fmt.Errorf("audio: start capture device: %w", err)
	}

	slog.Info("capture started",
		"device", name,
		"sample_rate", rate,
		"resampling", c.needsResamp,
	)
	return nil
}

func (c *Capture) openDevice(id *malgo.DeviceID, rate int) (*malgo.Device, int, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(rate)
	cfg.PeriodSizeInMilliseconds = 20
	cfg.Alsa.NoMMap = 1
	if id != nil {
		cfg.Capture.DeviceID = id.Pointer()
	}

	dev, err := malgo.InitDevice(c.mgr.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			c.pushSamples(BytesToInt16(in))
		},
	})
	if err != nil {
		return nil, 0, err
	}
	return dev, rate, nil
}

// pushSamples is the device-callback path. It must never block: streaming
// overflow drops the chunk and bumps the drop counter.
func (c *Capture) pushSamples(samples []int16) {
	if c.muted.Load() {
		return
	}
	if c.needsResamp {
		samples = ResampleInt16(samples, c.actualRate, CaptureRate)
	}
	if len(samples) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}

	if c.streaming {
		select {
		case c.chunks <- Int16ToBytes(samples):
		default:
			n := c.dropped.Add(1)
			if n%dropLogInterval == 1 {
				slog.Warn("capture: queue full, dropping audio", "dropped_total", n)
			}
		}
		return
	}

	c.frameBuf = append(c.frameBuf, samples...)
	if len(c.frameBuf) > wakewordBacklog {
		c.frameBuf = c.frameBuf[len(c.frameBuf)-wakewordBacklog:]
	}
	c.cond.Broadcast()
}

// ReadFrame blocks until exactly n samples are available and returns them.
// Used by the wakeword loop; not valid while streaming.
func (c *Capture) ReadFrame(n int) ([]int16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil, ErrNotStarted
	}
	for len(c.frameBuf) < n {
		if !c.started || c.streaming {
			return nil, ErrClosed
		}
		c.cond.Wait()
	}
	frame := make([]int16, n)
	copy(frame, c.frameBuf)
	c.frameBuf = c.frameBuf[n:]
	return frame, nil
}

// StartStream switches capture into conversation mode: chunks flow into a
// fresh bounded queue until [Capture.StopStream].
func (c *Capture) StartStream() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return ErrNotStarted
	}
	if c.streaming {
		return nil
	}
	c.chunks = make(chan []byte, queueCapacity)
	c.streaming = true
	c.frameBuf = nil
	c.cond.Broadcast() // unblock a pending ReadFrame
	return nil
}

// Stream returns the conversation chunk channel. The channel closes cleanly
// when [Capture.StopStream] is called; ErrNotStarted before StartStream.
func (c *Capture) Stream() (<-chan []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.streaming {
		return nil, ErrNotStarted
	}
	return c.chunks, nil
}

// StopStream ends conversation mode and closes the stream channel. Idempotent.
func (c *Capture) StopStream() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.streaming {
		return
	}
	c.streaming = false
	close(c.chunks)
	c.chunks = nil
}

// Mute discards captured audio before it enters any queue. Idempotent and
// callable from any goroutine.
func (c *Capture) Mute() { c.muted.Store(true) }

// Unmute re-enables capture delivery. Idempotent.
func (c *Capture) Unmute() { c.muted.Store(false) }

// Muted reports whether capture is currently muted.
func (c *Capture) Muted() bool { return c.muted.Load() }

// ActualSampleRate reports the rate the device actually opened at.
func (c *Capture) ActualSampleRate() int { return c.actualRate }

// NeedsResampling reports whether the callback resamples to the target rate.
func (c *Capture) NeedsResampling() bool { return c.needsResamp }

// DroppedChunks returns the total number of chunks dropped on queue overflow.
func (c *Capture) DroppedChunks() uint64 { return c.dropped.Load() }

// Close stops the device and releases it. Safe to call more than once.
func (c *Capture) Close() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	if c.streaming {
		c.streaming = false
		close(c.chunks)
		c.chunks = nil
	}
	dev := c.device
	c.device = nil
	c.cond.Broadcast()
	c.mu.Unlock()

	if dev != nil {
		_ = dev.Stop()
		dev.Uninit()
	}
}
