// Package dsp implements the master signal chain every track is summed into:
//
//	input -> drive gain -> soft clipper -> output compensation -> compressor -> limiter -> output
//
// The chain owns the single input Bus and renders the only signal that
// reaches the output device. Visualisation and monitoring attach as passive
// taps and never get a second path to the device.
package dsp

import (
	"sync"
	"sync/atomic"

	"github.com/satindergrewal/stepseq/internal/audio"
)

const (
	MinDriveGain = 1.0
	MaxDriveGain = 4.0

	limiterReleaseMs = 50
)

// DefaultCompressor holds the fixed bus compressor settings.
var DefaultCompressor = CompressorParams{
	ThresholdDB: -12,
	Ratio:       8,
	AttackMs:    5,
	ReleaseMs:   70,
}

// DefaultCeilingDB is the limiter threshold.
const DefaultCeilingDB = -4.0

// Listener receives a copy of the processed block. It runs on the render
// goroutine and must return quickly; block is only valid during the call.
type Listener interface {
	Listen(start int64, block []float32)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(start int64, block []float32)

func (f ListenerFunc) Listen(start int64, block []float32) { f(start, block) }

// DriveState is the coupled drive and compensation pair.
type DriveState struct {
	Percent      float64
	Gain         float32
	Compensation float32
}

// Chain is the master bus. Process is called from the render goroutine;
// SetDrive and Tap may be called from any goroutine.
type Chain struct {
	input      *audio.Bus
	drive      atomic.Pointer[DriveState]
	compressor *Compressor
	limiter    *Limiter

	tapMu  sync.Mutex
	taps   atomic.Pointer[[]*tap]
	tapBuf []float32
}

type tap struct{ l Listener }

// NewChain builds the fixed chain around a fresh input bus.
func NewChain(sampleRate int) *Chain {
	c := &Chain{
		input:      audio.NewBus(),
		compressor: NewCompressor(DefaultCompressor, sampleRate),
		limiter:    NewLimiter(DefaultCeilingDB, limiterReleaseMs, sampleRate),
	}
	c.SetDrive(0)
	c.taps.Store(&[]*tap{})
	return c
}

// Input returns the shared input stage voices are connected to.
func (c *Chain) Input() *audio.Bus { return c.input }

// DriveGain maps a 0-100 drive control to the 1-4 gain into the clipper.
func DriveGain(percent float64) float64 {
	return MinDriveGain + (MaxDriveGain-MinDriveGain)*clampPercent(percent)/100
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// SetDrive sets the drive gain and its reciprocal compensation in one atomic
// swap, so the render goroutine never sees one without the other.
func (c *Chain) SetDrive(percent float64) {
	percent = clampPercent(percent)
	g := DriveGain(percent)
	c.drive.Store(&DriveState{
		Percent:      percent,
		Gain:         float32(g),
		Compensation: float32(1 / g),
	})
}

// Drive returns the current drive state.
func (c *Chain) Drive() DriveState { return *c.drive.Load() }

// Compressor exposes the bus compressor for metering.
func (c *Chain) Compressor() *Compressor { return c.compressor }

// Limiter exposes the output limiter.
func (c *Chain) Limiter() *Limiter { return c.limiter }

// Tap attaches a passive listener after the limiter and returns a function
// that detaches it.
func (c *Chain) Tap(l Listener) (detach func()) {
	c.tapMu.Lock()
	defer c.tapMu.Unlock()
	entry := &tap{l: l}
	cur := *c.taps.Load()
	next := append(append([]*tap(nil), cur...), entry)
	c.taps.Store(&next)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.tapMu.Lock()
			defer c.tapMu.Unlock()
			cur := *c.taps.Load()
			next := make([]*tap, 0, len(cur))
			for _, x := range cur {
				if x != entry {
					next = append(next, x)
				}
			}
			c.taps.Store(&next)
		})
	}
}

// Process renders the block starting at absolute frame start: it mixes the
// input bus into out and runs the stages in order.
func (c *Chain) Process(start int64, out []float32) {
	c.input.Mix(start, out)
	c.processStages(out)
	taps := *c.taps.Load()
	if len(taps) == 0 {
		return
	}
	if cap(c.tapBuf) < len(out) {
		c.tapBuf = make([]float32, len(out))
	}
	view := c.tapBuf[:len(out)]
	copy(view, out)
	for _, t := range taps {
		t.l.Listen(start, view)
	}
}

func (c *Chain) processStages(buf []float32) {
	d := c.drive.Load()
	gainBlock(buf, d.Gain)
	softClipBlock(buf)
	gainBlock(buf, d.Compensation)
	c.compressor.Process(buf)
	c.limiter.Process(buf)
}
