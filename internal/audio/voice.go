package audio

import "github.com/satindergrewal/stepseq/internal/pattern"

// declickFrames is the length of the release applied to a hit cut by a retrigger.
const declickFrames = 96

var declick = fadeOutCurve(declickFrames)

type trigger struct {
	at   int64
	gain float32
	rate float64
}

type playhead struct {
	pos     float64
	rate    float64
	gain    float32
	playing bool
}

// Voice is the runtime playback handle of one track, bound to a loaded Buffer
// and owned by the Bus it was connected to. Trigger and render are only
// called from the render goroutine.
type Voice struct {
	track pattern.TrackID
	buf   *Buffer

	pending []trigger
	cur     playhead
	tail    playhead
	tailAt  int
}

func newVoice(id pattern.TrackID, buf *Buffer) *Voice {
	return &Voice{
		track:   id,
		buf:     buf,
		pending: make([]trigger, 0, 8),
		tailAt:  declickFrames,
	}
}

// Track returns the track the voice is bound to.
func (v *Voice) Track() pattern.TrackID { return v.track }

// Buffer returns the sample the voice plays.
func (v *Voice) Buffer() *Buffer { return v.buf }

// Playing reports whether the voice is sounding.
func (v *Voice) Playing() bool { return v.cur.playing }

// Trigger schedules a hit at absolute frame at. Gain and rate replace the
// previous hit's parameters when the hit starts. Triggers must be scheduled in
// non-decreasing time order.
func (v *Voice) Trigger(at int64, gain, rate float64) {
	if rate <= 0 || v.buf.Frames() == 0 {
		return
	}
	v.pending = append(v.pending, trigger{at: at, gain: float32(gain), rate: rate})
}

// render writes the voice's output for the block starting at absolute frame
// start into out, overwriting it.
func (v *Voice) render(start int64, out []float32) {
	frames := len(out) / Channels
	head := 0
	for i := 0; i < frames; i++ {
		t := start + int64(i)
		for head < len(v.pending) && v.pending[head].at <= t {
			tr := v.pending[head]
			head++
			if v.cur.playing {
				v.tail = v.cur
				v.tailAt = 0
			}
			v.cur = playhead{rate: tr.rate, gain: tr.gain, playing: true}
		}

		var l, r float32
		if v.cur.playing {
			sl, sr, ok := v.sampleAt(&v.cur)
			l, r = sl*v.cur.gain, sr*v.cur.gain
			if !ok {
				v.cur.playing = false
			}
		}
		if v.tailAt < declickFrames && v.tail.playing {
			w := declick[v.tailAt] * v.tail.gain
			sl, sr, ok := v.sampleAt(&v.tail)
			l += sl * w
			r += sr * w
			v.tailAt++
			if !ok {
				v.tail.playing = false
			}
		}
		out[i*2] = l
		out[i*2+1] = r
	}
	if head > 0 {
		n := copy(v.pending, v.pending[head:])
		v.pending = v.pending[:n]
	}
}

// sampleAt reads the interpolated frame at p.pos and advances it. ok is false
// once the playhead runs past the end of the buffer.
func (v *Voice) sampleAt(p *playhead) (l, r float32, ok bool) {
	n := v.buf.Frames()
	idx := int(p.pos)
	if idx >= n {
		return 0, 0, false
	}
	frac := float32(p.pos - float64(idx))
	next := idx + 1
	if next >= n {
		next = idx
	}
	d := v.buf.Data
	l = d[idx*2] + (d[next*2]-d[idx*2])*frac
	r = d[idx*2+1] + (d[next*2+1]-d[idx*2+1])*frac
	p.pos += p.rate
	return l, r, int(p.pos) < n
}
