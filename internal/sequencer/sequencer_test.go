package sequencer

import (
	"testing"
	"time"

	"github.com/satindergrewal/stepseq/internal/pattern"
)

const testRate = 48000

type fired struct {
	step int
	at   int64
	snap *pattern.Snapshot
}

func recorder(out *[]fired) FireFunc {
	return func(step int, at int64, snap *pattern.Snapshot) {
		*out = append(*out, fired{step, at, snap})
	}
}

// run renders blocks of size frames starting at pos and returns the new position.
func run(c *Clock, pos int64, blocks, size int, fire FireFunc) int64 {
	for i := 0; i < blocks; i++ {
		c.Advance(pos, size, fire)
		pos += int64(size)
	}
	return pos
}

func newClock(t *testing.T, edit func(p *pattern.Pattern)) (*Clock, *pattern.Store, *Governor) {
	t.Helper()
	p := pattern.New()
	if edit != nil {
		edit(&p)
	}
	store := pattern.NewStore(pattern.MustFreeze(p))
	gov := NewGovernor(64)
	return NewClock(testRate, store, gov), store, gov
}

func TestStepTiming(t *testing.T) {
	if got := StepFrames(120, testRate); got != 6000 {
		t.Errorf("StepFrames(120) = %v, want 6000", got)
	}
	if got := StepDuration(120); got != 125*time.Millisecond {
		t.Errorf("StepDuration(120) = %v, want 125ms", got)
	}
	if got := StepFrames(0, testRate); got != 0 {
		t.Errorf("StepFrames(0) = %v, want 0", got)
	}
	if got := SwingOffset(50, 6000); got != 1500 {
		t.Errorf("SwingOffset(50) = %v, want 1500", got)
	}
	if got := SwingOffset(150, 6000); got != 3000 {
		t.Errorf("SwingOffset(150) = %v, want clamp to 3000", got)
	}
	if got := SwingOffset(-5, 6000); got != 0 {
		t.Errorf("SwingOffset(-5) = %v, want 0", got)
	}
}

func TestStoppedClockFiresNothing(t *testing.T) {
	c, _, _ := newClock(t, nil)
	var got []fired
	run(c, 0, 100, 480, recorder(&got))
	if len(got) != 0 {
		t.Fatalf("stopped clock fired %d steps", len(got))
	}
	if c.State() != Stopped || c.Position() != 0 {
		t.Errorf("state = %v position = %d, want stopped at 0", c.State(), c.Position())
	}
}

func TestStepsFireOnGridAndWrap(t *testing.T) {
	c, _, _ := newClock(t, nil)
	c.Start()

	var got []fired
	run(c, 0, 201, 480, recorder(&got))

	if len(got) != pattern.NumSteps+1 {
		t.Fatalf("fired %d steps, want %d", len(got), pattern.NumSteps+1)
	}
	for i, f := range got {
		if f.step != i%pattern.NumSteps {
			t.Errorf("fire %d: step = %d, want %d", i, f.step, i%pattern.NumSteps)
		}
		if want := int64(i) * 6000; f.at != want {
			t.Errorf("fire %d: at = %d, want %d", i, f.at, want)
		}
	}
	step, tick := c.Elapsed()
	if step != 0 || tick != int64(pattern.NumSteps) {
		t.Errorf("Elapsed() = %d, %d; want 0, %d", step, tick, pattern.NumSteps)
	}
}

func TestSwingDelaysOddSteps(t *testing.T) {
	c, _, _ := newClock(t, func(p *pattern.Pattern) { p.Swing = 50 })
	c.Start()

	var got []fired
	run(c, 0, 50, 480, recorder(&got)) // [0, 24000)

	want := []int64{0, 7500, 12000, 19500}
	if len(got) != len(want) {
		t.Fatalf("fired %d steps, want %d", len(got), len(want))
	}
	for i, f := range got {
		if f.at != want[i] {
			t.Errorf("step %d at %d, want %d", f.step, f.at, want[i])
		}
	}
}

func TestStopResetsPosition(t *testing.T) {
	c, _, _ := newClock(t, nil)
	c.Start()

	var got []fired
	pos := run(c, 0, 60, 480, recorder(&got))
	if c.Position() != 4 {
		t.Fatalf("Position() = %d, want 4", c.Position())
	}

	c.Stop()
	if c.Position() != 0 || c.State() != Stopped {
		t.Fatalf("after Stop: position %d state %v", c.Position(), c.State())
	}
	got = got[:0]
	pos = run(c, pos, 20, 480, recorder(&got))
	if len(got) != 0 {
		t.Fatalf("stopped clock fired %d steps", len(got))
	}

	c.Start()
	c.Start() // no-op while running
	run(c, pos, 1, 480, recorder(&got))
	if len(got) != 1 || got[0].step != 0 || got[0].at != pos {
		t.Fatalf("restart fired %+v, want step 0 at %d", got, pos)
	}
}

func TestRestartDuringFireStartsFreshRun(t *testing.T) {
	c, _, gov := newClock(t, nil)
	c.Start()

	restarted := false
	pos := run(c, 0, 1, 480, func(step int, at int64, snap *pattern.Snapshot) {
		if !restarted {
			restarted = true
			c.Stop()
			c.Start()
		}
	})
	<-gov.Playheads()

	var got []fired
	run(c, pos, 13, 480, recorder(&got)) // steps 0 and 1 of the new run
	if len(got) != 2 || got[0].step != 0 || got[0].at != pos {
		t.Fatalf("new run fired %+v, want steps 0, 1 from %d", got, pos)
	}
	if step, tick := c.Elapsed(); step != 1 || tick != 1 {
		t.Errorf("Elapsed() = %d, %d; want 1, 1", step, tick)
	}
	for want := int64(0); want < 2; want++ {
		if p := <-gov.Playheads(); p.Tick != want {
			t.Errorf("playhead tick = %d, want %d", p.Tick, want)
		}
	}
}

func TestAdvanceBoundsStepsPerBlock(t *testing.T) {
	// One frame per second makes a step far shorter than a frame.
	c := NewClock(1, pattern.NewStore(nil), nil)
	c.Start()

	var got []fired
	c.Advance(0, 4, recorder(&got))
	if len(got) == 0 || len(got) > 5 {
		t.Fatalf("fired %d steps in a 4-frame block, want 1..5", len(got))
	}
}

func TestAdvanceStopsWhenGridCannotMove(t *testing.T) {
	c := NewClock(1, pattern.NewStore(nil), nil)
	c.Start()

	// At 2^55 a 0.125-frame step is below float64 resolution.
	var got []fired
	c.Advance(1<<55, 480, recorder(&got))
	if len(got) != 0 {
		t.Fatalf("fired %d steps with a stalled grid", len(got))
	}
}

func TestEachStepReadsCurrentSnapshot(t *testing.T) {
	c, store, _ := newClock(t, nil)
	c.Start()

	var got []fired
	pos := run(c, 0, 1, 480, recorder(&got))
	next, err := store.Update(func(p *pattern.Pattern) { p.Tracks[pattern.Kick].Steps[1] = true })
	if err != nil {
		t.Fatal(err)
	}
	run(c, pos, 20, 480, recorder(&got))

	if len(got) != 2 {
		t.Fatalf("fired %d steps, want 2", len(got))
	}
	if got[0].snap == next {
		t.Error("step 0 saw a snapshot published after it fired")
	}
	if got[1].snap != next {
		t.Error("step 1 did not see the newly published snapshot")
	}
}

func TestStampsStayMonotonic(t *testing.T) {
	c, store, _ := newClock(t, nil)
	c.Start()

	tempos := []float64{120, 300, 60, 280, 90, 240}
	swings := []float64{0, 100, 30, 100, 0, 75}

	var got []fired
	pos := int64(0)
	for i := 0; i < 400; i++ {
		k := i % len(tempos)
		if _, err := store.Update(func(p *pattern.Pattern) {
			p.Tempo = tempos[k]
			p.Swing = swings[(i/3)%len(swings)]
		}); err != nil {
			t.Fatal(err)
		}
		before := len(got)
		c.Advance(pos, 256, recorder(&got))
		for _, f := range got[before:] {
			if f.at < pos || f.at >= pos+256 {
				t.Fatalf("block %d: stamp %d outside [%d, %d)", i, f.at, pos, pos+256)
			}
		}
		pos += 256
	}
	if len(got) < 2 {
		t.Fatalf("fired only %d steps", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].at < got[i-1].at {
			t.Fatalf("stamp %d = %d precedes previous %d", i, got[i].at, got[i-1].at)
		}
	}
}

func TestHiddenPageSuppressesPlayheadsAndResyncs(t *testing.T) {
	c, _, gov := newClock(t, nil)
	gov.SetHidden(true)
	c.Start()

	var got []fired
	pos := run(c, 0, 50, 480, recorder(&got)) // steps 0..3
	if len(got) != 4 {
		t.Fatalf("audio fired %d steps while hidden, want 4", len(got))
	}
	if n := len(gov.Playheads()); n != 0 {
		t.Fatalf("%d playheads delivered while hidden", n)
	}

	gov.SetHidden(false)
	run(c, pos, 25, 480, recorder(&got)) // steps 4 and 5

	first := <-gov.Playheads()
	if !first.Resync || first.Step != 4 || first.Tick != 4 {
		t.Errorf("first playhead after show = %+v, want step 4 tick 4 resync", first)
	}
	second := <-gov.Playheads()
	if second.Resync || second.Step != 5 {
		t.Errorf("second playhead = %+v, want step 5 without resync", second)
	}
}

func TestSetHiddenWithoutTransitionDoesNotResync(t *testing.T) {
	c, _, gov := newClock(t, nil)
	gov.SetHidden(false)
	c.Start()
	run(c, 0, 1, 480, func(int, int64, *pattern.Snapshot) {})
	p := <-gov.Playheads()
	if p.Resync {
		t.Errorf("playhead %+v marked resync without a hide/show transition", p)
	}
}

type fixedTransport struct {
	step int
	tick int64
}

func (f fixedTransport) Elapsed() (int, int64) { return f.step, f.tick }

func TestGovernorDropsOldest(t *testing.T) {
	gov := NewGovernor(2)
	tr := fixedTransport{}
	for i := 0; i < 3; i++ {
		gov.notify(Playhead{Step: i, Tick: int64(i)}, tr)
	}
	if gov.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", gov.Dropped())
	}
	a, b := <-gov.Playheads(), <-gov.Playheads()
	if a.Step != 1 || b.Step != 2 {
		t.Errorf("kept steps %d, %d; want 1, 2", a.Step, b.Step)
	}
}

func TestGovernorResyncUsesTransport(t *testing.T) {
	gov := NewGovernor(4)
	gov.SetHidden(true)
	gov.notify(Playhead{Step: 1}, fixedTransport{})
	gov.SetHidden(false)
	gov.notify(Playhead{Step: 2, Tick: 2}, fixedTransport{step: 9, tick: 25})

	p := <-gov.Playheads()
	if p.Step != 9 || p.Tick != 25 || !p.Resync {
		t.Errorf("resync playhead = %+v, want step 9 tick 25 resync", p)
	}
	if len(gov.Playheads()) != 0 {
		t.Error("hidden notification was delivered")
	}
}
