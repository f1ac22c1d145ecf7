// Package control maps a MIDI controller onto engine controls.
package control

import (
	"fmt"
	"log"
	"sync"

	"gitlab.com/gomidi/midi/v2"

	"github.com/satindergrewal/stepseq/internal/pattern"
)

// Controller numbers and the note range of the step pads.
const (
	CCDrive  = 1
	CCMaster = 7
	CCSwing  = 10
	CCTempo  = 20

	FirstPadNote = 36 // kick; one note per track upwards

	MinMasterDB = -48.0
	MinCCTempo  = 60.0
)

// System realtime status bytes.
const (
	rtStart    = 0xFA
	rtContinue = 0xFB
	rtStop     = 0xFC
)

// Controls is the part of the engine a surface drives.
type Controls interface {
	SetDrive(percent float64) error
	SetMasterVolume(db float64) error
	SetSwing(percent float64) error
	SetTempo(bpm float64) error
	ToggleStep(id pattern.TrackID, step int) (bool, error)
	Position() int
	Start() error
	Stop()
}

// Surface translates MIDI messages into control calls.
type Surface struct {
	controls Controls

	mu   sync.Mutex
	stop func()
}

// NewSurface creates a surface driving c.
func NewSurface(c Controls) *Surface {
	return &Surface{controls: c}
}

// Listen opens the named input port and handles its messages until Close.
func (s *Surface) Listen(portName string) error {
	in, err := midi.FindInPort(portName)
	if err != nil {
		return fmt.Errorf("find MIDI input %q: %w", portName, err)
	}
	stop, err := midi.ListenTo(in, func(msg midi.Message, timestampms int32) {
		s.Handle(msg)
	})
	if err != nil {
		return fmt.Errorf("open MIDI input %q: %w", portName, err)
	}
	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()
	log.Printf("MIDI control surface listening on %q", portName)
	return nil
}

// Close stops listening.
func (s *Surface) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
}

// Handle applies one message. Unmapped messages are ignored.
func (s *Surface) Handle(msg midi.Message) {
	var channel, a, b uint8
	switch {
	case msg.GetControlChange(&channel, &a, &b):
		s.controlChange(a, b)
	case msg.GetNoteOn(&channel, &a, &b):
		if b > 0 {
			s.pad(a)
		}
	case len(msg) == 1 && (msg[0] == rtStart || msg[0] == rtContinue):
		if err := s.controls.Start(); err != nil {
			log.Printf("MIDI start: %v", err)
		}
	case len(msg) == 1 && msg[0] == rtStop:
		s.controls.Stop()
	}
}

func (s *Surface) controlChange(controller, value uint8) {
	var err error
	switch controller {
	case CCDrive:
		err = s.controls.SetDrive(Percent(value))
	case CCMaster:
		err = s.controls.SetMasterVolume(MasterDB(value))
	case CCSwing:
		err = s.controls.SetSwing(Percent(value))
	case CCTempo:
		err = s.controls.SetTempo(MinCCTempo + float64(value))
	default:
		return
	}
	if err != nil {
		log.Printf("MIDI CC%d=%d: %v", controller, value, err)
	}
}

func (s *Surface) pad(note uint8) {
	if note < FirstPadNote || int(note) >= FirstPadNote+pattern.NumTracks {
		return
	}
	id := pattern.TrackID(note - FirstPadNote)
	if _, err := s.controls.ToggleStep(id, s.controls.Position()); err != nil {
		log.Printf("MIDI pad %v: %v", id, err)
	}
}

// Percent maps a 7-bit controller value onto 0..100.
func Percent(v uint8) float64 {
	return float64(v) * 100 / 127
}

// MasterDB maps a 7-bit controller value onto MinMasterDB..0 dB.
func MasterDB(v uint8) float64 {
	return MinMasterDB * (1 - float64(v)/127)
}
