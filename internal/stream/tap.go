package stream

import (
	"math"

	"github.com/viterin/vek/vek32"

	"github.com/satindergrewal/stepseq/internal/audio"
)

// Frame is one 20ms block of master output.
type Frame struct {
	Start   int64     // absolute frame index of the first sample
	Samples []float32 // interleaved stereo, audio.FrameSamples long
}

// FrameTap is a passive listener on the master chain that regroups render
// blocks into fixed 20ms frames. It runs on the render goroutine, so it only
// copies and never blocks: frames are dropped when the consumer is behind.
type FrameTap struct {
	out   chan Frame
	acc   []float32
	start int64
}

// NewFrameTap creates a tap buffering up to buffer frames.
func NewFrameTap(buffer int) *FrameTap {
	return &FrameTap{
		out: make(chan Frame, buffer),
		acc: make([]float32, 0, audio.FrameSamples),
	}
}

// Frames returns the frame channel.
func (t *FrameTap) Frames() <-chan Frame { return t.out }

// Listen implements dsp.Listener.
func (t *FrameTap) Listen(start int64, block []float32) {
	pos := start
	for len(block) > 0 {
		if len(t.acc) == 0 {
			t.start = pos
		}
		n := copy(t.acc[len(t.acc):cap(t.acc)], block)
		t.acc = t.acc[:len(t.acc)+n]
		block = block[n:]
		pos += int64(n / audio.Channels)
		if len(t.acc) < audio.FrameSamples {
			continue
		}
		f := Frame{Start: t.start, Samples: make([]float32, audio.FrameSamples)}
		copy(f.Samples, t.acc)
		t.acc = t.acc[:0]
		select {
		case t.out <- f:
		default:
		}
	}
}

// Level is a meter reading of one frame, in dBFS.
type Level struct {
	Start  int64   `json:"start"`
	PeakDB float64 `json:"peak_db"`
	RMSDB  float64 `json:"rms_db"`
}

// MeterFloor is the level reported for digital silence.
const MeterFloor = -120.0

// Measure computes the peak and RMS level of samples.
func Measure(start int64, samples []float32) Level {
	lv := Level{Start: start, PeakDB: MeterFloor, RMSDB: MeterFloor}
	if len(samples) == 0 {
		return lv
	}
	peak := math.Max(float64(vek32.Max(samples)), -float64(vek32.Min(samples)))
	rms := math.Sqrt(float64(vek32.Dot(samples, samples)) / float64(len(samples)))
	lv.PeakDB = toDB(peak)
	lv.RMSDB = toDB(rms)
	return lv
}

func toDB(v float64) float64 {
	if v <= 0 {
		return MeterFloor
	}
	return math.Max(20*math.Log10(v), MeterFloor)
}
