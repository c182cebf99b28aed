package audio

import (
	"testing"
)

// testPlayback returns a Playback in the playing state without a real device.
func testPlayback() *Playback {
	p := NewPlayback(nil, "")
	p.playing = true
	p.deviceRate = PlaybackRate
	return p
}

func TestQueueAudioWhileStoppedIsNoOp(t *testing.T) {
	p := NewPlayback(nil, "")
	p.QueueAudio(Int16ToBytes(make([]int16, 100)))
	if got := p.Buffered(); got != 0 {
		t.Fatalf("Buffered = %d after queueing while stopped, want 0", got)
	}
}

func TestPrebufferGateWithholdsOutput(t *testing.T) {
	p := testPlayback()

	p.QueueAudio(Int16ToBytes(make([]int16, prebufferSamples-1)))
	if chunk := p.readSamples(chunkSamples); chunk != nil {
		t.Fatalf("got %d samples below the pre-buffer threshold, want none", len(chunk))
	}

	p.QueueAudio(Int16ToBytes(make([]int16, 1)))
	if chunk := p.readSamples(chunkSamples); len(chunk) != chunkSamples {
		t.Fatalf("got %d samples at the threshold, want %d", len(chunk), chunkSamples)
	}
}

func TestPrebufferNotReArmedWithinSession(t *testing.T) {
	p := testPlayback()
	p.QueueAudio(Int16ToBytes(make([]int16, prebufferSamples)))

	// Drain completely, then trickle in a tiny chunk: it must flow through
	// immediately because the gate is one-shot per session.
	for p.Buffered() > 0 {
		p.readSamples(chunkSamples)
	}
	p.QueueAudio(Int16ToBytes([]int16{42}))
	chunk := p.readSamples(chunkSamples)
	if len(chunk) != 1 || chunk[0] != 42 {
		t.Fatalf("post-drain read = %v, want the single queued sample", chunk)
	}
}

func TestPlaybackFIFOOrder(t *testing.T) {
	p := testPlayback()

	// Interleave producer appends and consumer reads.
	next := int16(0)
	queued := int16(0)
	for queued < 3*prebufferSamples {
		block := make([]int16, 100)
		for i := range block {
			block[i] = queued
			queued++
		}
		p.QueueAudio(Int16ToBytes(block))

		for _, s := range p.readSamples(64) {
			if s != next {
				t.Fatalf("read sample %d, want %d (order violated)", s, next)
			}
			next++
		}
	}
	for chunk := p.readSamples(64); chunk != nil; chunk = p.readSamples(64) {
		for _, s := range chunk {
			if s != next {
				t.Fatalf("read sample %d, want %d (order violated)", s, next)
			}
			next++
		}
	}
	if next != queued {
		t.Fatalf("consumed %d samples, queued %d", next, queued)
	}
}

func TestCompactionBoundsCursor(t *testing.T) {
	p := testPlayback()

	p.QueueAudio(Int16ToBytes(make([]int16, compactThreshold+2*chunkSamples)))
	total := 0
	for {
		chunk := p.readSamples(chunkSamples)
		if chunk == nil {
			break
		}
		total += len(chunk)
		if p.cursor > compactThreshold+chunkSamples {
			t.Fatalf("cursor %d grew past the compaction threshold", p.cursor)
		}
	}
	if total != compactThreshold+2*chunkSamples {
		t.Fatalf("consumed %d samples, want %d", total, compactThreshold+2*chunkSamples)
	}
}

func TestStopDiscardsBuffer(t *testing.T) {
	p := testPlayback()
	p.QueueAudio(Int16ToBytes(make([]int16, prebufferSamples)))
	p.Stop()
	p.Stop() // idempotent
	if got := p.Buffered(); got != 0 {
		t.Fatalf("Buffered = %d after Stop, want 0", got)
	}
}
