// Package output provides the audio devices the engine renders into. A device
// pulls float32 little-endian stereo from its source at its own pace.
package output

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/satindergrewal/stepseq/internal/audio"
)

var (
	ErrNotAttached     = errors.New("no source attached")
	ErrAlreadyAttached = errors.New("source already attached")
	ErrUnknownDevice   = errors.New("unknown output device")
)

// FloatFrameBytes is the size of one 20ms float32 stereo frame.
const FloatFrameBytes = audio.FrameSamples * 4

// Device is an audio sink that pulls rendered frames from a source.
type Device interface {
	Attach(src io.Reader) error
	Resume() error
	Suspend() error
	Running() bool
	Close() error
}

// Open creates the device named kind: "oto" for the system audio output or
// "headless" for a real-time paced device that discards audio.
func Open(kind string, sampleRate int, latency time.Duration) (Device, error) {
	switch kind {
	case "oto":
		dev, err := NewOto(sampleRate, latency)
		if err != nil {
			return nil, err
		}
		return dev, nil
	case "headless":
		return NewHeadless(nil), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, kind)
	}
}
