package audio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/viterin/vek/vek32"

	"github.com/satindergrewal/stepseq/internal/pattern"
)

// ErrEmptyBuffer is returned when connecting a voice without sample data.
var ErrEmptyBuffer = errors.New("empty sample buffer")

type voiceSet [pattern.NumTracks]*Voice

// Bus is the shared input stage every voice is summed into. There is exactly
// one Bus per master chain and voices are never routed anywhere else.
//
// Connect and Disconnect may be called from any goroutine; the voice set is
// replaced copy-on-write so Mix never waits on them.
type Bus struct {
	mu     sync.Mutex
	voices atomic.Pointer[voiceSet]

	scratch []float32
}

// NewBus creates an empty input bus.
func NewBus() *Bus {
	b := &Bus{}
	b.voices.Store(&voiceSet{})
	return b
}

// Connect binds buf to a new voice for track id, replacing any previous voice.
func (b *Bus) Connect(id pattern.TrackID, buf *Buffer) (*Voice, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("connect voice: invalid track %d", int(id))
	}
	if buf.Frames() == 0 {
		return nil, fmt.Errorf("connect %s: %w", id, ErrEmptyBuffer)
	}
	v := newVoice(id, buf)

	b.mu.Lock()
	defer b.mu.Unlock()
	next := *b.voices.Load()
	next[id] = v
	b.voices.Store(&next)
	return v, nil
}

// Disconnect removes the voice for id, if any.
func (b *Bus) Disconnect(id pattern.TrackID) {
	if !id.Valid() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	next := *b.voices.Load()
	next[id] = nil
	b.voices.Store(&next)
}

// Voice returns the connected voice for id, or nil.
func (b *Bus) Voice(id pattern.TrackID) *Voice {
	if !id.Valid() {
		return nil
	}
	return b.voices.Load()[id]
}

// Connected lists the tracks that currently have a voice.
func (b *Bus) Connected() []pattern.TrackID {
	set := b.voices.Load()
	var ids []pattern.TrackID
	for i, v := range set {
		if v != nil {
			ids = append(ids, pattern.TrackID(i))
		}
	}
	return ids
}

// Mix renders every connected voice for the block starting at absolute frame
// start and writes their sum into out (interleaved stereo).
func (b *Bus) Mix(start int64, out []float32) {
	clear(out)
	if cap(b.scratch) < len(out) {
		b.scratch = make([]float32, len(out))
	}
	scratch := b.scratch[:len(out)]
	for _, v := range b.voices.Load() {
		if v == nil {
			continue
		}
		v.render(start, scratch)
		vek32.Add_Inplace(out, scratch)
	}
}
