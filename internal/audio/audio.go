package audio

import "time"

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Buffer is a playback-ready sample: interleaved stereo float32 at SampleRate.
type Buffer struct {
	Data []float32
}

// Frames returns the number of stereo frames in the buffer.
func (b *Buffer) Frames() int {
	if b == nil {
		return 0
	}
	return len(b.Data) / Channels
}

// Duration returns the playback length at rate 1.
func (b *Buffer) Duration() time.Duration {
	return time.Duration(b.Frames()) * time.Second / SampleRate
}

// FramesFor converts a duration to a whole number of frames at SampleRate.
func FramesFor(d time.Duration) int64 {
	return int64(d) * SampleRate / int64(time.Second)
}
