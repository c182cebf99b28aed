package audio_test

import (
	"testing"

	"github.com/voxhaus/voxhaus/pkg/audio"
)

func TestInt16BytesRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768, 12345}
	got := audio.BytesToInt16(audio.Int16ToBytes(in))
	if len(got) != len(in) {
		t.Fatalf("length = %d, want %d", len(got), len(in))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], in[i])
		}
	}
}

func TestBytesToInt16DropsOddByte(t *testing.T) {
	got := audio.BytesToInt16([]byte{0x01, 0x02, 0x03})
	if len(got) != 1 {
		t.Fatalf("length = %d, want 1", len(got))
	}
}

func TestResampleInt16SameRate(t *testing.T) {
	in := []int16{1, 2, 3, 4}
	got := audio.ResampleInt16(in, 16000, 16000)
	if len(got) != 4 {
		t.Fatalf("length = %d, want 4", len(got))
	}
}

func TestResampleInt16Downsample(t *testing.T) {
	// 48 kHz → 16 kHz triples down: 1/3 of the samples remain.
	in := make([]int16, 480)
	for i := range in {
		in[i] = int16(i)
	}
	got := audio.ResampleInt16(in, 48000, 16000)
	if len(got) != 160 {
		t.Fatalf("length = %d, want 160", len(got))
	}
	// Linear interpolation of a ramp stays a ramp.
	if got[0] != 0 || got[159] != 477 {
		t.Errorf("endpoints = %d, %d; want 0, 477", got[0], got[159])
	}
}

func TestResampleInt16Upsample(t *testing.T) {
	in := []int16{0, 100}
	got := audio.ResampleInt16(in, 16000, 48000)
	if len(got) != 6 {
		t.Fatalf("length = %d, want 6", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i] < got[i-1] {
			t.Fatalf("interpolated ramp not monotonic: %v", got)
		}
	}
}

func TestStereoToMonoInt16Averages(t *testing.T) {
	in := []int16{100, 200, -100, -200, 32767, 32767}
	got := audio.StereoToMonoInt16(in)
	want := []int16{150, -150, 32767}
	if len(got) != len(want) {
		t.Fatalf("length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d = %d, want %d", i, got[i], want[i])
		}
	}
}
