// Package sequencer drives step playback. The Clock runs inside the render
// callback: for every block it fires the steps whose sample-stamped start
// falls inside that block, so triggers land on exact frames regardless of
// when the callback itself runs.
package sequencer

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/satindergrewal/stepseq/internal/pattern"
)

// State is the transport state.
type State int32

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// FireFunc is called once per step with the step index, the frame every
// trigger of that step is scheduled at, and the snapshot read for the step.
type FireFunc func(step int, at int64, snap *pattern.Snapshot)

// Clock advances the step pointer on an audio-frame schedule.
//
// Start, Stop and the accessors are safe from any goroutine. Advance must
// only be called from the render goroutine and never blocks.
type Clock struct {
	sampleRate int
	store      *pattern.Store
	gov        *Governor

	ctl   sync.Mutex
	state atomic.Int32
	// run packs the run epoch (high 32 bits) with the number of steps fired
	// in that run (low 32 bits), so a tick is only counted for its own run.
	run   atomic.Uint64

	// render goroutine only
	runEpoch uint32
	running  bool
	nextStep int
	nextGrid float64
	lastAt   int64
}

const tickMask = 1<<32 - 1

func epochOf(v uint64) uint32 { return uint32(v >> 32) }

func ticksOf(v uint64) int64 { return int64(v & tickMask) }

// newRun starts a new epoch with no steps fired.
func (c *Clock) newRun() {
	c.run.Store(uint64(epochOf(c.run.Load())+1) << 32)
}

// NewClock creates a stopped clock reading snapshots from store and
// reporting playheads through gov.
func NewClock(sampleRate int, store *pattern.Store, gov *Governor) *Clock {
	return &Clock{sampleRate: sampleRate, store: store, gov: gov}
}

// Start moves the clock to Running. Step 0 fires at the start of the next
// rendered block. Starting a running clock is a no-op.
func (c *Clock) Start() {
	c.ctl.Lock()
	defer c.ctl.Unlock()
	if State(c.state.Load()) == Running {
		return
	}
	c.newRun()
	c.state.Store(int32(Running))
}

// Stop moves the clock to Stopped and resets the step pointer to 0.
func (c *Clock) Stop() {
	c.ctl.Lock()
	defer c.ctl.Unlock()
	c.state.Store(int32(Stopped))
	c.newRun()
}

// State returns the transport state.
func (c *Clock) State() State { return State(c.state.Load()) }

// Elapsed returns the step most recently fired and the number of steps fired
// since Start. A stopped clock reports step 0.
func (c *Clock) Elapsed() (step int, tick int64) {
	if c.State() != Running {
		return 0, 0
	}
	n := ticksOf(c.run.Load())
	if n == 0 {
		return 0, 0
	}
	return int((n - 1) % pattern.NumSteps), n - 1
}

// Position returns the current step index.
func (c *Clock) Position() int {
	step, _ := c.Elapsed()
	return step
}

// Advance fires every step scheduled in [start, start+frames). Stamps never
// precede start or the previous stamp. At most frames+1 steps fire per call.
func (c *Clock) Advance(start int64, frames int, fire FireFunc) {
	if c.State() != Running {
		c.running = false
		return
	}
	if ep := epochOf(c.run.Load()); !c.running || ep != c.runEpoch {
		c.runEpoch = ep
		c.running = true
		c.nextStep = 0
		c.nextGrid = float64(start)
		c.lastAt = start
	}

	end := start + int64(frames)
	for n := 0; n <= frames; n++ {
		snap := c.store.Load()
		stepFrames := StepFrames(snap.Tempo(), c.sampleRate)
		if !(stepFrames > 0) || math.IsInf(stepFrames, 0) {
			return
		}
		stamp := c.nextGrid
		if c.nextStep%2 == 1 {
			stamp += SwingOffset(snap.Swing(), stepFrames)
		}
		if stamp >= float64(end) {
			return
		}
		at := int64(math.Round(stamp))
		if at >= end {
			return
		}
		if at < start {
			at = start
		}
		if at < c.lastAt {
			at = c.lastAt
		}
		next := c.nextGrid + stepFrames
		if next == c.nextGrid {
			return
		}
		if c.State() != Running {
			return
		}
		tick, ok := c.claimTick()
		if !ok {
			return
		}

		step := c.nextStep
		fire(step, at, snap)
		c.lastAt = at
		if c.gov != nil {
			c.gov.notify(Playhead{Step: step, Tick: tick, At: at}, c)
		}
		c.nextStep = (step + 1) % pattern.NumSteps
		c.nextGrid = next
	}
}

// claimTick counts one fired step against the current run. It fails when a
// Stop or Start has begun a new run since this block started.
func (c *Clock) claimTick() (int64, bool) {
	for {
		v := c.run.Load()
		if epochOf(v) != c.runEpoch {
			return 0, false
		}
		if c.run.CompareAndSwap(v, v+1) {
			return ticksOf(v), true
		}
	}
}
