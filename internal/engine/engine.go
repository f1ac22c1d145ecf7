// Package engine ties the pattern store, the step clock and the master chain
// into a single pull-driven render loop. The output device pulls rendered
// float32 frames through Read; everything else talks to the engine through
// control calls that publish new pattern snapshots.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/satindergrewal/stepseq/internal/audio"
	"github.com/satindergrewal/stepseq/internal/dsp"
	"github.com/satindergrewal/stepseq/internal/levels"
	"github.com/satindergrewal/stepseq/internal/loader"
	"github.com/satindergrewal/stepseq/internal/pattern"
	"github.com/satindergrewal/stepseq/internal/sequencer"
)

const (
	MinTempo = pattern.MinTempo
	MaxTempo = pattern.MaxTempo

	bytesPerFrame = audio.Channels * 4
)

var (
	ErrNoDevice        = errors.New("no output device attached")
	ErrOutputAttached  = errors.New("output device already attached")
	ErrDeviceSuspended = errors.New("output device is not running")
	ErrTempoRange      = fmt.Errorf("tempo must be between %.0f and %.0f bpm", MinTempo, MaxTempo)
)

// Device is the audio output the engine renders into.
type Device interface {
	Attach(src io.Reader) error
	Running() bool
}

// Options configures an Engine.
type Options struct {
	SampleRate     int
	AccentDB       float64
	PlayheadBuffer int
}

// Engine is the sequencer's runtime. Read is called from the device's render
// goroutine; all other methods are safe from any goroutine.
type Engine struct {
	store *pattern.Store
	calc  levels.Calculator
	chain *dsp.Chain
	clock *sequencer.Clock
	gov   *sequencer.Governor

	devMu  sync.Mutex
	device Device

	// pubMu orders snapshot publishes with the chain's drive update.
	pubMu sync.Mutex

	frame atomic.Int64
	block []float32 // render goroutine only

	lastLoad atomic.Pointer[loader.LoadResult]
}

// New creates an engine around store. The chain's drive follows the
// snapshot's drive value.
func New(store *pattern.Store, opts Options) *Engine {
	if opts.SampleRate <= 0 {
		opts.SampleRate = audio.SampleRate
	}
	if opts.PlayheadBuffer <= 0 {
		opts.PlayheadBuffer = 32
	}
	gov := sequencer.NewGovernor(opts.PlayheadBuffer)
	e := &Engine{
		store: store,
		calc:  levels.NewCalculator(opts.AccentDB),
		chain: dsp.NewChain(opts.SampleRate),
		clock: sequencer.NewClock(opts.SampleRate, store, gov),
		gov:   gov,
	}
	e.chain.SetDrive(store.Load().Drive())
	return e
}

// Chain returns the master chain, for taps.
func (e *Engine) Chain() *dsp.Chain { return e.chain }

// Snapshot returns the currently published snapshot.
func (e *Engine) Snapshot() *pattern.Snapshot { return e.store.Load() }

// Load fetches and decodes samples for refs and connects them to the chain's
// input. Tracks that fail are left without a voice and stay silent.
func (e *Engine) Load(ctx context.Context, refs map[pattern.TrackID]loader.ResourceRef, opts loader.Options) loader.LoadResult {
	res := loader.New(e.chain.Input(), opts).Load(ctx, refs)
	e.lastLoad.Store(&res)
	return res
}

// Attach binds the output device. It may be called once.
func (e *Engine) Attach(dev Device) error {
	e.devMu.Lock()
	defer e.devMu.Unlock()
	if e.device != nil {
		return ErrOutputAttached
	}
	if err := dev.Attach(e); err != nil {
		return fmt.Errorf("attach output: %w", err)
	}
	e.device = dev
	return nil
}

// Start begins playback from step 0. The device must be running, since a
// suspended device would silently swallow the first steps.
func (e *Engine) Start() error {
	e.devMu.Lock()
	dev := e.device
	e.devMu.Unlock()
	if dev == nil {
		return ErrNoDevice
	}
	if !dev.Running() {
		return ErrDeviceSuspended
	}
	e.clock.Start()
	log.Printf("Transport started at %.1f bpm", e.store.Load().Tempo())
	return nil
}

// Stop halts playback and rewinds to step 0. Ringing samples decay naturally.
func (e *Engine) Stop() {
	e.clock.Stop()
	log.Printf("Transport stopped")
}

// Running reports whether the transport is running.
func (e *Engine) Running() bool { return e.clock.State() == sequencer.Running }

// Position returns the current step.
func (e *Engine) Position() int { return e.clock.Position() }

// Publish replaces the pattern wholesale.
func (e *Engine) Publish(snap *pattern.Snapshot) {
	if snap == nil {
		return
	}
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	e.store.Publish(snap)
	e.chain.SetDrive(snap.Drive())
}

// PublishPattern validates, freezes and publishes p.
func (e *Engine) PublishPattern(p pattern.Pattern) (*pattern.Snapshot, error) {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	snap, err := e.store.PublishPattern(p)
	if err != nil {
		return nil, err
	}
	e.chain.SetDrive(snap.Drive())
	return snap, nil
}

// Edit applies fn to a copy of the current pattern and publishes the result.
func (e *Engine) Edit(fn func(p *pattern.Pattern)) (*pattern.Snapshot, error) {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	snap, err := e.store.Update(fn)
	if err != nil {
		return nil, err
	}
	e.chain.SetDrive(snap.Drive())
	return snap, nil
}

// ToggleStep flips one step and returns its new state.
func (e *Engine) ToggleStep(id pattern.TrackID, step int) (bool, error) {
	if !id.Valid() || step < 0 || step >= pattern.NumSteps {
		return false, fmt.Errorf("toggle %v step %d: %w", id, step, pattern.ErrInvalidSnapshot)
	}
	snap, err := e.Edit(func(p *pattern.Pattern) {
		p.Tracks[id].Steps[step] = !p.Tracks[id].Steps[step]
	})
	if err != nil {
		return false, err
	}
	return snap.Active(id, step), nil
}

// SetDrive sets the saturation amount in percent, clamped to 0..100.
func (e *Engine) SetDrive(percent float64) error {
	_, err := e.Edit(func(p *pattern.Pattern) { p.Drive = clamp(percent, 0, 100) })
	return err
}

// SetSwing sets the swing amount in percent, clamped to 0..100.
func (e *Engine) SetSwing(percent float64) error {
	_, err := e.Edit(func(p *pattern.Pattern) { p.Swing = clamp(percent, 0, 100) })
	return err
}

// SetMasterVolume sets the master level in dB.
func (e *Engine) SetMasterVolume(db float64) error {
	_, err := e.Edit(func(p *pattern.Pattern) { p.MasterDB = db })
	return err
}

// SetTempo sets the tempo in bpm. It takes effect from the next step.
func (e *Engine) SetTempo(bpm float64) error {
	if bpm < MinTempo || bpm > MaxTempo {
		return ErrTempoRange
	}
	_, err := e.Edit(func(p *pattern.Pattern) { p.Tempo = bpm })
	return err
}

// SetHidden forwards the host's visibility to the playhead governor.
func (e *Engine) SetHidden(hidden bool) { e.gov.SetHidden(hidden) }

// Playheads returns the per-step notification channel.
func (e *Engine) Playheads() <-chan sequencer.Playhead { return e.gov.Playheads() }

// Read renders len(p)/8 frames of float32 little-endian stereo.
func (e *Engine) Read(p []byte) (int, error) {
	frames := len(p) / bytesPerFrame
	if frames == 0 {
		return 0, io.ErrShortBuffer
	}
	n := frames * audio.Channels
	if cap(e.block) < n {
		e.block = make([]float32, n)
	}
	block := e.block[:n]
	e.Render(block)
	return audio.PutFloat32LE(p, block), nil
}

// Render fills out with the next interleaved stereo frames: the clock fires
// the steps due in this block, then the chain mixes and processes it.
func (e *Engine) Render(out []float32) {
	start := e.frame.Load()
	frames := len(out) / audio.Channels
	e.clock.Advance(start, frames, e.trigger)
	e.chain.Process(start, out)
	e.frame.Store(start + int64(frames))
}

// trigger schedules every audible voice active on step at the same frame.
func (e *Engine) trigger(step int, at int64, snap *pattern.Snapshot) {
	bus := e.chain.Input()
	for _, id := range pattern.Tracks() {
		if !snap.Active(id, step) {
			continue
		}
		v := bus.Voice(id)
		if v == nil {
			continue
		}
		eff := e.calc.EffectiveVolume(snap, id, step)
		if eff.Silent {
			continue
		}
		v.Trigger(at, eff.Gain(), levels.PlaybackRate(snap.Pitch(id)))
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
