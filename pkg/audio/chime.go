package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"time"
)

// LoadWAV reads a 16-bit PCM WAV file and returns its samples as mono int16
// together with the sample rate. Stereo files are downmixed.
func LoadWAV(path string) ([]int16, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("audio: read wav: %w", err)
	}
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("audio: %s: not a RIFF/WAVE file", path)
	}

	var (
		rate     int
		channels int
		bits     int
		pcm      []byte
	)

	// Walk the chunk list; only fmt and data matter here.
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("audio: %s: short fmt chunk", path)
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return nil, 0, fmt.Errorf("audio: %s: unsupported wav format %d (want PCM)", path, format)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			rate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body : body+size]
		}
		pos = body + size
		if size%2 == 1 {
			pos++ // chunks are word-aligned
		}
	}

	if rate == 0 || pcm == nil {
		return nil, 0, fmt.Errorf("audio: %s: missing fmt or data chunk", path)
	}
	if bits != 16 {
		return nil, 0, fmt.Errorf("audio: %s: unsupported bit depth %d (want 16)", path, bits)
	}

	samples := BytesToInt16(pcm)
	switch channels {
	case 1:
	case 2:
		samples = StereoToMonoInt16(samples)
	default:
		return nil, 0, fmt.Errorf("audio: %s: unsupported channel count %d", path, channels)
	}
	return samples, rate, nil
}

// Beep synthesises a sine tone with a short fade in/out, used as the fallback
// chime when no sound file is available.
func Beep(freq float64, dur time.Duration, rate int) ([]int16, int) {
	n := int(float64(rate) * dur.Seconds())
	fade := rate / 100 // 10 ms ramp
	if fade > n/2 {
		fade = n / 2
	}
	out := make([]int16, n)
	for i := range out {
		amp := 0.4
		if i < fade {
			amp *= float64(i) / float64(fade)
		} else if n-i < fade {
			amp *= float64(n-i) / float64(fade)
		}
		out[i] = int16(amp * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out, rate
}
