package audio

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/wav"
)

// ErrDecode marks data that was read but could not be made playback-ready.
var ErrDecode = errors.New("decode error")

// Decode reads a WAV stream and returns it as a stereo Buffer at SampleRate.
// Mono input is duplicated to both channels; other rates are resampled linearly.
func Decode(r io.ReadSeeker) (*Buffer, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid WAV stream", ErrDecode)
	}
	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: read PCM: %v", ErrDecode, err)
	}
	if pcm == nil || pcm.Format == nil || len(pcm.Data) == 0 {
		return nil, fmt.Errorf("%w: no PCM data", ErrDecode)
	}

	chans := pcm.Format.NumChannels
	bitDepth := int(d.BitDepth)
	if chans < 1 || bitDepth == 0 {
		return nil, fmt.Errorf("%w: %d channels at %d bits", ErrDecode, chans, bitDepth)
	}

	scale := float32(1 / math.Pow(2, float64(bitDepth-1)))
	// 8-bit PCM is unsigned, centred on 128.
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}
	frames := len(pcm.Data) / chans
	if frames == 0 {
		return nil, fmt.Errorf("%w: no complete frames", ErrDecode)
	}
	data := make([]float32, frames*Channels)
	for i := 0; i < frames; i++ {
		l := float32(pcm.Data[i*chans]-offset) * scale
		r := l
		if chans > 1 {
			r = float32(pcm.Data[i*chans+1]-offset) * scale
		}
		data[i*2] = l
		data[i*2+1] = r
	}

	buf := &Buffer{Data: data}
	if rate := pcm.Format.SampleRate; rate > 0 && rate != SampleRate {
		buf = Resample(buf, rate)
	}
	return buf, nil
}

// Resample converts a stereo buffer recorded at fromRate to SampleRate using
// linear interpolation.
func Resample(b *Buffer, fromRate int) *Buffer {
	in := b.Frames()
	if in == 0 || fromRate <= 0 || fromRate == SampleRate {
		return b
	}
	ratio := float64(fromRate) / SampleRate
	out := int(float64(in) / ratio)
	if out < 1 {
		out = 1
	}
	data := make([]float32, out*Channels)
	for i := 0; i < out; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		next := idx + 1
		if next >= in {
			next = in - 1
		}
		for c := 0; c < Channels; c++ {
			a := b.Data[idx*Channels+c]
			z := b.Data[next*Channels+c]
			data[i*Channels+c] = a + (z-a)*frac
		}
	}
	return &Buffer{Data: data}
}
