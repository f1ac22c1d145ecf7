package pattern

import (
	"fmt"
	"strings"
)

const (
	NumTracks = 10
	NumSteps  = 16
)

// TrackID identifies one of the fixed instrument slots. Values are stable and
// are used as the join key between pattern rows, samples and UI rows.
type TrackID int

const (
	Kick TrackID = iota
	Snare
	Clap
	ClosedHat
	OpenHat
	LowTom
	HighTom
	Rimshot
	Cowbell
	Crash
)

var trackNames = [NumTracks]string{
	"kick",
	"snare",
	"clap",
	"closed_hat",
	"open_hat",
	"low_tom",
	"high_tom",
	"rimshot",
	"cowbell",
	"crash",
}

// Tracks returns every TrackID in enumeration order.
func Tracks() []TrackID {
	ids := make([]TrackID, NumTracks)
	for i := range ids {
		ids[i] = TrackID(i)
	}
	return ids
}

// Valid reports whether id is part of the enumeration.
func (id TrackID) Valid() bool {
	return id >= 0 && int(id) < NumTracks
}

func (id TrackID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("track(%d)", int(id))
	}
	return trackNames[id]
}

// ParseTrackID maps a track name (case-insensitive, "-" and " " accepted for "_") to its ID.
func ParseTrackID(name string) (TrackID, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer("-", "_", " ", "_").Replace(n)
	for i, tn := range trackNames {
		if tn == n {
			return TrackID(i), nil
		}
	}
	return 0, fmt.Errorf("unknown track %q", name)
}

// MarshalText encodes the track as its name so maps keyed by TrackID read well in JSON.
func (id TrackID) MarshalText() ([]byte, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("invalid track %d", int(id))
	}
	return []byte(id.String()), nil
}

func (id *TrackID) UnmarshalText(b []byte) error {
	v, err := ParseTrackID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}
