package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

const (
	// prebufferSamples is the amount of audio (100 ms at PlaybackRate) that
	// must accumulate before the first sample is emitted. Checked once per
	// playback session, never re-armed.
	prebufferSamples = 2400

	// chunkSamples is the nominal device pull size (50 ms at PlaybackRate).
	chunkSamples = 1200

	// compactThreshold triggers dropping the consumed buffer prefix once the
	// read cursor passes 2 s of audio.
	compactThreshold = 2 * PlaybackRate
)

// Playback owns the speaker. Conversation audio arrives asynchronously via
// [Playback.QueueAudio] into a single append-only buffer; the device callback
// consumes it through a read cursor under the same mutex. Short sound effects
// bypass the buffer entirely via [Playback.PlaySound].
type Playback struct {
	mgr        *Manager
	deviceName string

	device      *malgo.Device
	deviceRate  int
	needsResamp bool

	mu          sync.Mutex
	buf         []int16
	cursor      int
	prebuffered bool
	playing     bool

	soundMu sync.Mutex
}

// NewPlayback creates a Playback bound to the output device whose name
// contains deviceName (case-insensitive); empty selects the default device.
func NewPlayback(mgr *Manager, deviceName string) *Playback {
	return &Playback{mgr: mgr, deviceName: deviceName}
}

// Start resets the buffer, re-arms the pre-buffer gate, and starts the output
// device. The device is opened at [PlaybackRate] when possible; otherwise at
// its native rate with resampling on the consumer side.
func (p *Playback) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return nil
	}

	id, name, err := p.mgr.findDevice(malgo.Playback, p.deviceName)
	if err != nil {
		return err
	}

	dev, rate, err := p.openDevice(id, PlaybackRate)
	if err != nil {
		slog.Warn("playback: source rate unsupported, falling back",
			"source", PlaybackRate, "fallback", fallbackRate, "err", err)
		dev, rate, err = p.openDevice(id, fallbackRate)
		if err != nil {
			return fmt.Errorf("audio: open playback device: %w", err)
		}
	}

	p.device = dev
	p.deviceRate = rate
	p.needsResamp = rate != PlaybackRate
	p.buf = nil
	p.cursor = 0
	p.prebuffered = false
	p.playing = true

	if err := dev.Start(); err != nil {
		dev.Uninit()
		p.device = nil
		p.playing = false
		return fmt.Errorf("audio: start playback device: %w", err)
	}

	slog.Info("playback started",
		"device", name,
		"sample_rate", rate,
		"resampling", p.needsResamp,
	)
	return nil
}

func (p *Playback) openDevice(id *malgo.DeviceID, rate int) (*malgo.Device, int, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = uint32(rate)
	cfg.PeriodSizeInMilliseconds = 50
	cfg.Alsa.NoMMap = 1
	if id != nil {
		cfg.Playback.DeviceID = id.Pointer()
	}

	dev, err := malgo.InitDevice(p.mgr.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			p.fill(out, int(frameCount))
		},
	})
	if err != nil {
		return nil, 0, err
	}
	return dev, rate, nil
}

// fill writes frameCount device-rate samples into out, zero-filling whatever
// the buffer cannot supply. Device callbacks cannot sleep, so underrun after
// the pre-buffer gate becomes silence for this period.
func (p *Playback) fill(out []byte, frameCount int) {
	want := frameCount
	if p.needsResamp {
		want = frameCount * PlaybackRate / p.deviceRate
	}

	chunk := p.readSamples(want)
	if p.needsResamp && len(chunk) > 0 {
		chunk = ResampleInt16(chunk, PlaybackRate, p.deviceRate)
	}

	n := copy(out, Int16ToBytes(chunk))
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
}

// readSamples returns up to n samples from the buffer, honouring the one-shot
// pre-buffer gate and compacting the consumed prefix past the threshold.
func (p *Playback) readSamples(n int) []int16 {
	p.mu.Lock()
	defer p.mu.Unlock()

	avail := len(p.buf) - p.cursor
	if !p.prebuffered {
		if avail < prebufferSamples {
			return nil
		}
		p.prebuffered = true
	}
	if avail <= 0 {
		return nil
	}
	if n > avail {
		n = avail
	}

	chunk := make([]int16, n)
	copy(chunk, p.buf[p.cursor:p.cursor+n])
	p.cursor += n

	if p.cursor > compactThreshold {
		remaining := len(p.buf) - p.cursor
		compacted := make([]int16, remaining)
		copy(compacted, p.buf[p.cursor:])
		p.buf = compacted
		p.cursor = 0
	}
	return chunk
}

// QueueAudio appends a chunk of [PlaybackRate] PCM bytes to the buffer. It is
// a no-op when playback is not active, so audio nobody will consume is never
// buffered. Safe to call concurrently with the device callback.
func (p *Playback) QueueAudio(pcm []byte) {
	samples := BytesToInt16(pcm)
	if len(samples) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return
	}
	p.buf = append(p.buf, samples...)
}

// Buffered reports how many unconsumed samples are queued.
func (p *Playback) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf) - p.cursor
}

// Stop halts the output device and discards the buffer. Idempotent.
func (p *Playback) Stop() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	p.playing = false
	dev := p.device
	p.device = nil
	p.buf = nil
	p.cursor = 0
	p.mu.Unlock()

	if dev != nil {
		_ = dev.Stop()
		dev.Uninit()
	}
}

// PlaySound plays a short WAV file synchronously, independent of the
// streaming buffer. When the file cannot be loaded a generated beep is played
// instead so the assistant always gives audible feedback.
func (p *Playback) PlaySound(path string) error {
	samples, rate, err := LoadWAV(path)
	if err != nil {
		slog.Warn("playback: sound file unavailable, using beep", "path", path, "err", err)
		samples, rate = Beep(880, 200*time.Millisecond, PlaybackRate)
	}
	return p.playSamples(samples, rate)
}

// playSamples opens a one-shot device at the sample rate of the clip and
// blocks until the clip has drained.
func (p *Playback) playSamples(samples []int16, rate int) error {
	p.soundMu.Lock()
	defer p.soundMu.Unlock()

	id, _, err := p.mgr.findDevice(malgo.Playback, p.deviceName)
	if err != nil {
		return err
	}

	var (
		mu     sync.Mutex
		cursor int
		done   = make(chan struct{})
	)

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = uint32(rate)
	cfg.Alsa.NoMMap = 1
	if id != nil {
		cfg.Playback.DeviceID = id.Pointer()
	}

	dev, err := malgo.InitDevice(p.mgr.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			mu.Lock()
			defer mu.Unlock()
			n := int(frameCount)
			if cursor+n > len(samples) {
				n = len(samples) - cursor
			}
			if n > 0 {
				copy(out, Int16ToBytes(samples[cursor:cursor+n]))
				cursor += n
			}
			for i := n * 2; i < len(out); i++ {
				out[i] = 0
			}
			if cursor >= len(samples) {
				select {
				case <-done:
				default:
					close(done)
				}
			}
		},
	})
	if err != nil {
		return fmt.Errorf("audio: open sound device: %w", err)
	}
	defer dev.Uninit()

	if err := dev.Start(); err != nil {
		return fmt.Errorf("audio: start sound device: %w", err)
	}

	clipLen := time.Duration(len(samples)) * time.Second / time.Duration(rate)
	select {
	case <-done:
		// Small tail so the device drains its last period.
		time.Sleep(50 * time.Millisecond)
	case <-time.After(clipLen + time.Second):
	}
	_ = dev.Stop()
	return nil
}
