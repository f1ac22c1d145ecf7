package loader

import (
	"sort"
	"time"

	"github.com/satindergrewal/stepseq/internal/audio"
	"github.com/satindergrewal/stepseq/internal/pattern"
)

// Cause classifies why a track failed to load.
type Cause string

const (
	CauseNotFound      Cause = "resource-not-found"
	CauseTimeout       Cause = "timeout"
	CauseGlobalTimeout Cause = "global-timeout"
	CauseDecode        Cause = "decode-error"
	CauseFetch         Cause = "fetch-error"
	CauseCanceled      Cause = "canceled"
)

// Failure records one track that has no voice after loading.
type Failure struct {
	Track pattern.TrackID `json:"track"`
	Cause Cause           `json:"cause"`
	Err   string          `json:"error,omitempty"`
}

// LoadResult is the terminal state of one Load call. Every TrackID appears in
// exactly one of Voices or Failed.
type LoadResult struct {
	BatchID string
	Voices  map[pattern.TrackID]*audio.Voice
	Failed  []Failure
	Elapsed time.Duration
}

// Loaded reports whether id has a voice.
func (r LoadResult) Loaded(id pattern.TrackID) bool {
	_, ok := r.Voices[id]
	return ok
}

// LoadedTracks lists tracks with a voice in enumeration order.
func (r LoadResult) LoadedTracks() []pattern.TrackID {
	ids := make([]pattern.TrackID, 0, len(r.Voices))
	for id := range r.Voices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Cause returns the failure cause for id, if it failed.
func (r LoadResult) Cause(id pattern.TrackID) (Cause, bool) {
	for _, f := range r.Failed {
		if f.Track == id {
			return f.Cause, true
		}
	}
	return "", false
}
