package wakeword

import (
	"fmt"
	"strings"

	porcupine "github.com/Picovoice/porcupine/binding/go/v3"
)

// Compile-time assertion that the Porcupine wrapper satisfies Engine.
var _ Engine = (*PorcupineEngine)(nil)

// PorcupineEngine runs Picovoice Porcupine with a single built-in keyword.
type PorcupineEngine struct {
	p porcupine.Porcupine
}

// NewPorcupine initialises Porcupine with a built-in keyword selected by name
// (e.g. "computer", "jarvis") and the given detection sensitivity in [0, 1].
func NewPorcupine(accessKey, keyword string, sensitivity float32) (*PorcupineEngine, error) {
	if accessKey == "" {
		return nil, fmt.Errorf("wakeword: porcupine access key must not be empty")
	}
	kw, err := builtInKeyword(keyword)
	if err != nil {
		return nil, err
	}
	if sensitivity < 0 || sensitivity > 1 {
		return nil, fmt.Errorf("wakeword: sensitivity %.2f is out of range [0, 1]", sensitivity)
	}

	e := &PorcupineEngine{
		p: porcupine.Porcupine{
			AccessKey:       accessKey,
			BuiltInKeywords: []porcupine.BuiltInKeyword{kw},
			Sensitivities:   []float32{sensitivity},
		},
	}
	if err := e.p.Init(); err != nil {
		return nil, fmt.Errorf("wakeword: init porcupine: %w", err)
	}
	return e, nil
}

// builtInKeyword resolves a keyword name to the Porcupine built-in constant.
func builtInKeyword(name string) (porcupine.BuiltInKeyword, error) {
	kw := porcupine.BuiltInKeyword(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range porcupine.BuiltInKeywords {
		if kw == known {
			return kw, nil
		}
	}
	return "", fmt.Errorf("wakeword: unknown built-in keyword %q", name)
}

// FrameLength implements [Engine]. Porcupine dictates the frame size.
func (e *PorcupineEngine) FrameLength() int { return porcupine.FrameLength }

// SampleRate implements [Engine]. Porcupine dictates the capture rate.
func (e *PorcupineEngine) SampleRate() int { return porcupine.SampleRate }

// Process implements [Engine].
func (e *PorcupineEngine) Process(frame []int16) (int, error) {
	idx, err := e.p.Process(frame)
	if err != nil {
		return -1, fmt.Errorf("wakeword: porcupine process: %w", err)
	}
	return idx, nil
}

// Delete implements [Engine].
func (e *PorcupineEngine) Delete() error {
	return e.p.Delete()
}
