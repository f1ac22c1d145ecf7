// Package levels derives the per-step playback parameters of a track from a
// pattern snapshot: effective gain in dB (or silence) and playback rate.
package levels

import (
	"math"

	"github.com/satindergrewal/stepseq/internal/pattern"
)

// DefaultAccentDB is the offset applied to accented (ghost) steps.
const DefaultAccentDB = -7.0

// Effective is the result of a volume computation for one (track, step) pair.
// When Silent is set, DB is meaningless and the trigger must be skipped.
type Effective struct {
	DB     float64
	Silent bool
}

// Silence is the Effective value for a track that must not sound.
var Silence = Effective{DB: math.Inf(-1), Silent: true}

// Gain returns the linear amplitude for e, zero when silent.
func (e Effective) Gain() float64 {
	if e.Silent {
		return 0
	}
	return DBToGain(e.DB)
}

// Calculator evaluates mute > solo > level precedence.
type Calculator struct {
	AccentDB float64
}

// NewCalculator returns a calculator with the given accent offset.
func NewCalculator(accentDB float64) Calculator {
	return Calculator{AccentDB: accentDB}
}

// EffectiveVolume evaluates, in order: mute, solo exclusion, then
// volume + master + accent. dB quantities add.
func (c Calculator) EffectiveVolume(s *pattern.Snapshot, id pattern.TrackID, step int) Effective {
	if !s.Has(id) {
		return Silence
	}
	if s.Muted(id) {
		return Silence
	}
	if s.AnySolo() && !s.Soloed(id) {
		return Silence
	}
	db := s.VolumeDB(id) + s.MasterDB()
	if s.Accented(id, step) {
		db += c.AccentDB
	}
	return Effective{DB: db}
}

// PlaybackRate converts a pitch offset in semitones to a rate multiplier.
// The offset is clamped to one octave either way.
func PlaybackRate(semitones int) float64 {
	if semitones < pattern.MinPitch {
		semitones = pattern.MinPitch
	} else if semitones > pattern.MaxPitch {
		semitones = pattern.MaxPitch
	}
	return math.Exp2(float64(semitones) / 12)
}

// DBToGain converts decibels to linear amplitude.
func DBToGain(db float64) float64 {
	if math.IsInf(db, -1) {
		return 0
	}
	return math.Pow(10, db/20)
}

// GainToDB converts linear amplitude to decibels; zero maps to -Inf.
func GainToDB(g float64) float64 {
	if g <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(g)
}
