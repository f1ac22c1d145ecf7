package sequencer

import "sync/atomic"

// Playhead is the per-step notification sent to the visual layer.
type Playhead struct {
	Step   int   `json:"step"`
	Tick   int64 `json:"tick"`   // steps fired since start, 0-based
	At     int64 `json:"at"`     // scheduled audio frame
	Resync bool  `json:"resync"` // step re-derived from the transport after the page was hidden
}

// Transport reports the authoritative playback position.
type Transport interface {
	Elapsed() (step int, tick int64)
}

// Governor gates playhead notifications on page visibility. It never touches
// audio: while hidden, notifications are dropped and the clock keeps running.
type Governor struct {
	hidden  atomic.Bool
	resync  atomic.Bool
	out     chan Playhead
	dropped atomic.Int64
}

// NewGovernor creates a governor whose notification channel holds buffer
// entries; when full, the oldest entry is dropped.
func NewGovernor(buffer int) *Governor {
	if buffer < 1 {
		buffer = 1
	}
	return &Governor{out: make(chan Playhead, buffer)}
}

// SetHidden records the host's visibility. Becoming visible again makes the
// next notification carry a step re-derived from the transport.
func (g *Governor) SetHidden(hidden bool) {
	if was := g.hidden.Swap(hidden); was && !hidden {
		g.resync.Store(true)
	}
}

// Hidden reports the current visibility flag.
func (g *Governor) Hidden() bool { return g.hidden.Load() }

// Playheads returns the notification channel.
func (g *Governor) Playheads() <-chan Playhead { return g.out }

// Dropped returns how many notifications were discarded because the consumer
// fell behind.
func (g *Governor) Dropped() int64 { return g.dropped.Load() }

// notify delivers p unless hidden. It never blocks.
func (g *Governor) notify(p Playhead, t Transport) {
	if g.hidden.Load() {
		return
	}
	if g.resync.CompareAndSwap(true, false) {
		p.Step, p.Tick = t.Elapsed()
		p.Resync = true
	}
	select {
	case g.out <- p:
		return
	default:
	}
	// Consumer is behind: replace the oldest playhead with the newest.
	select {
	case <-g.out:
		g.dropped.Add(1)
	default:
	}
	select {
	case g.out <- p:
	default:
		g.dropped.Add(1)
	}
}
