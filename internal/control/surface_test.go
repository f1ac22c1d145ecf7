package control

import (
	"errors"
	"math"
	"testing"

	"gitlab.com/gomidi/midi/v2"

	"github.com/satindergrewal/stepseq/internal/pattern"
)

type fakeControls struct {
	drive, master, swing, tempo float64
	toggled                     []pattern.TrackID
	toggledAt                   []int
	position                    int
	started, stopped            int
	startErr                    error
}

func (f *fakeControls) SetDrive(p float64) error { f.drive = p; return nil }

func (f *fakeControls) SetMasterVolume(db float64) error { f.master = db; return nil }

func (f *fakeControls) SetSwing(p float64) error { f.swing = p; return nil }

func (f *fakeControls) SetTempo(bpm float64) error { f.tempo = bpm; return nil }

func (f *fakeControls) Position() int { return f.position }

func (f *fakeControls) Stop() { f.stopped++ }

func (f *fakeControls) Start() error {
	f.started++
	return f.startErr
}

func (f *fakeControls) ToggleStep(id pattern.TrackID, step int) (bool, error) {
	f.toggled = append(f.toggled, id)
	f.toggledAt = append(f.toggledAt, step)
	return true, nil
}

func TestControlChanges(t *testing.T) {
	f := &fakeControls{}
	s := NewSurface(f)

	s.Handle(midi.ControlChange(0, CCDrive, 127))
	s.Handle(midi.ControlChange(3, CCMaster, 0))
	s.Handle(midi.ControlChange(0, CCSwing, 0))
	s.Handle(midi.ControlChange(0, CCTempo, 60))

	if f.drive != 100 {
		t.Errorf("drive = %v, want 100", f.drive)
	}
	if f.master != MinMasterDB {
		t.Errorf("master = %v, want %v", f.master, MinMasterDB)
	}
	if f.swing != 0 {
		t.Errorf("swing = %v, want 0", f.swing)
	}
	if f.tempo != 120 {
		t.Errorf("tempo = %v, want 120", f.tempo)
	}

	s.Handle(midi.ControlChange(0, 74, 10)) // unmapped
	if f.drive != 100 || f.swing != 0 {
		t.Error("unmapped controller changed state")
	}
}

func TestValueMapping(t *testing.T) {
	if got := MasterDB(127); got != 0 {
		t.Errorf("MasterDB(127) = %v, want 0", got)
	}
	if got := Percent(0); got != 0 {
		t.Errorf("Percent(0) = %v, want 0", got)
	}
	if got := Percent(64); math.Abs(got-50.39) > 0.01 {
		t.Errorf("Percent(64) = %v, want ~50.39", got)
	}
}

func TestPadsToggleStepUnderPlayhead(t *testing.T) {
	f := &fakeControls{position: 5}
	s := NewSurface(f)

	s.Handle(midi.NoteOn(9, FirstPadNote, 100))
	s.Handle(midi.NoteOn(9, FirstPadNote+9, 100))
	s.Handle(midi.NoteOn(9, FirstPadNote+10, 100)) // past the last track
	s.Handle(midi.NoteOn(9, FirstPadNote-1, 100))
	s.Handle(midi.NoteOn(9, FirstPadNote+1, 0)) // note-off by velocity
	s.Handle(midi.NoteOff(9, FirstPadNote+2))

	want := []pattern.TrackID{pattern.Kick, pattern.Crash}
	if len(f.toggled) != len(want) {
		t.Fatalf("toggled %v, want %v", f.toggled, want)
	}
	for i, id := range want {
		if f.toggled[i] != id || f.toggledAt[i] != 5 {
			t.Errorf("toggle %d = %v@%d, want %v@5", i, f.toggled[i], f.toggledAt[i], id)
		}
	}
}

func TestRealtimeTransport(t *testing.T) {
	f := &fakeControls{startErr: errors.New("device suspended")}
	s := NewSurface(f)

	s.Handle(midi.Message{rtStart})
	s.Handle(midi.Message{rtContinue})
	s.Handle(midi.Message{rtStop})
	s.Handle(midi.Message{0xF8}) // clock tick, ignored

	if f.started != 2 || f.stopped != 1 {
		t.Errorf("started %d stopped %d, want 2 and 1", f.started, f.stopped)
	}
}

func TestCloseWithoutListen(t *testing.T) {
	s := NewSurface(&fakeControls{})
	s.Close()
	s.Close()
}
