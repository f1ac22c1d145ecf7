package pattern

import (
	"errors"
	"fmt"
	"math"
)

const (
	MinPitch = -12
	MaxPitch = 12

	MinTempo     = 20.0
	MaxTempo     = 300.0
	DefaultTempo = 120.0
)

// ErrInvalidSnapshot is returned when a pattern violates the grid invariants.
// Such a pattern is a programming error upstream and is never published.
var ErrInvalidSnapshot = errors.New("invalid pattern snapshot")

// TrackState is the editable per-track row of a Pattern.
type TrackState struct {
	Steps    []bool  `json:"steps"`
	Accents  []bool  `json:"accents"`
	Mute     bool    `json:"mute"`
	Solo     bool    `json:"solo"`
	VolumeDB float64 `json:"volume_db"`
	Pitch    int     `json:"pitch"`
}

// Pattern is the mutable pattern owned by the editing layer. The engine never
// reads a Pattern directly; it only sees frozen Snapshots.
type Pattern struct {
	Tracks   []TrackState `json:"tracks"`
	Tempo    float64      `json:"tempo"`
	Swing    float64      `json:"swing"`
	Drive    float64      `json:"drive"`
	MasterDB float64      `json:"master_db"`
}

// New returns an empty pattern of the right dimensions.
func New() Pattern {
	p := Pattern{
		Tracks: make([]TrackState, NumTracks),
		Tempo:  DefaultTempo,
	}
	for i := range p.Tracks {
		p.Tracks[i].Steps = make([]bool, NumSteps)
		p.Tracks[i].Accents = make([]bool, NumSteps)
	}
	return p
}

type track struct {
	steps    [NumSteps]bool
	accents  [NumSteps]bool
	mute     bool
	solo     bool
	volumeDB float64
	pitch    int
}

// Snapshot is an immutable, fully resolved view of a pattern. All fields are
// unexported; once built, nothing can change it, so readers never see a torn
// update.
type Snapshot struct {
	tracks   [NumTracks]track
	anySolo  bool
	tempo    float64
	swing    float64
	drive    float64
	masterDB float64
}

// Validate checks the grid dimensions and control ranges.
func (p Pattern) Validate() error {
	if len(p.Tracks) != NumTracks {
		return fmt.Errorf("%w: %d tracks, want %d", ErrInvalidSnapshot, len(p.Tracks), NumTracks)
	}
	for i, t := range p.Tracks {
		id := TrackID(i)
		if len(t.Steps) != NumSteps {
			return fmt.Errorf("%w: %s has %d steps, want %d", ErrInvalidSnapshot, id, len(t.Steps), NumSteps)
		}
		if t.Accents != nil && len(t.Accents) != NumSteps {
			return fmt.Errorf("%w: %s has %d accents, want %d", ErrInvalidSnapshot, id, len(t.Accents), NumSteps)
		}
		if t.Pitch < MinPitch || t.Pitch > MaxPitch {
			return fmt.Errorf("%w: %s pitch %d outside [%d, %d]", ErrInvalidSnapshot, id, t.Pitch, MinPitch, MaxPitch)
		}
	}
	if !(p.Tempo >= MinTempo && p.Tempo <= MaxTempo) {
		return fmt.Errorf("%w: tempo %v outside [%v, %v]", ErrInvalidSnapshot, p.Tempo, MinTempo, MaxTempo)
	}
	if !(p.Swing >= 0 && p.Swing <= 100) {
		return fmt.Errorf("%w: swing %v outside [0, 100]", ErrInvalidSnapshot, p.Swing)
	}
	if math.IsNaN(p.MasterDB) || math.IsInf(p.MasterDB, 0) {
		return fmt.Errorf("%w: master %v dB", ErrInvalidSnapshot, p.MasterDB)
	}
	if !(p.Drive >= 0 && p.Drive <= 100) {
		return fmt.Errorf("%w: drive %v outside [0, 100]", ErrInvalidSnapshot, p.Drive)
	}
	return nil
}

// Freeze validates p and copies it into a new Snapshot. p may be modified
// afterwards without affecting the snapshot.
func Freeze(p Pattern) (*Snapshot, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s := &Snapshot{
		tempo:    p.Tempo,
		swing:    p.Swing,
		drive:    p.Drive,
		masterDB: p.MasterDB,
	}
	for i, t := range p.Tracks {
		dst := &s.tracks[i]
		copy(dst.steps[:], t.Steps)
		copy(dst.accents[:], t.Accents)
		dst.mute = t.Mute
		dst.solo = t.Solo
		dst.volumeDB = t.VolumeDB
		dst.pitch = t.Pitch
		if t.Solo {
			s.anySolo = true
		}
	}
	return s, nil
}

// MustFreeze is Freeze for patterns known to be valid, such as New().
func MustFreeze(p Pattern) *Snapshot {
	s, err := Freeze(p)
	if err != nil {
		panic(err)
	}
	return s
}

// Thaw returns an editable deep copy of the snapshot.
func (s *Snapshot) Thaw() Pattern {
	p := Pattern{
		Tracks:   make([]TrackState, NumTracks),
		Tempo:    s.tempo,
		Swing:    s.swing,
		Drive:    s.drive,
		MasterDB: s.masterDB,
	}
	for i := range s.tracks {
		t := &s.tracks[i]
		p.Tracks[i] = TrackState{
			Steps:    append([]bool(nil), t.steps[:]...),
			Accents:  append([]bool(nil), t.accents[:]...),
			Mute:     t.mute,
			Solo:     t.solo,
			VolumeDB: t.volumeDB,
			Pitch:    t.pitch,
		}
	}
	return p
}

// Has reports whether the snapshot carries a row for id.
func (s *Snapshot) Has(id TrackID) bool {
	return s != nil && id.Valid()
}

// Active reports whether step is on for track. Out-of-range arguments are off.
func (s *Snapshot) Active(id TrackID, step int) bool {
	if !s.Has(id) || step < 0 || step >= NumSteps {
		return false
	}
	return s.tracks[id].steps[step]
}

// Accented reports whether step carries an accent (ghost note) for track.
func (s *Snapshot) Accented(id TrackID, step int) bool {
	if !s.Has(id) || step < 0 || step >= NumSteps {
		return false
	}
	return s.tracks[id].accents[step]
}

func (s *Snapshot) Muted(id TrackID) bool { return s.Has(id) && s.tracks[id].mute }

func (s *Snapshot) Soloed(id TrackID) bool { return s.Has(id) && s.tracks[id].solo }

func (s *Snapshot) VolumeDB(id TrackID) float64 {
	if !s.Has(id) {
		return 0
	}
	return s.tracks[id].volumeDB
}

func (s *Snapshot) Pitch(id TrackID) int {
	if !s.Has(id) {
		return 0
	}
	return s.tracks[id].pitch
}

// AnySolo reports whether at least one track is soloed.
func (s *Snapshot) AnySolo() bool { return s.anySolo }

func (s *Snapshot) Tempo() float64 { return s.tempo }

func (s *Snapshot) Swing() float64 { return s.swing }

func (s *Snapshot) Drive() float64 { return s.drive }

func (s *Snapshot) MasterDB() float64 { return s.masterDB }
