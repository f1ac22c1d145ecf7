package pattern

import "sync/atomic"

// Store holds the single published snapshot shared between the editing layer
// (writer) and the playback clock (reader). Readers do one atomic load and
// never block; writers replace the whole snapshot.
type Store struct {
	cur atomic.Pointer[Snapshot]
}

// NewStore creates a store holding initial, or an empty pattern when nil.
func NewStore(initial *Snapshot) *Store {
	if initial == nil {
		initial = MustFreeze(New())
	}
	s := &Store{}
	s.cur.Store(initial)
	return s
}

// Load returns the current snapshot.
func (s *Store) Load() *Snapshot {
	return s.cur.Load()
}

// Publish replaces the current snapshot.
func (s *Store) Publish(snap *Snapshot) {
	if snap == nil {
		return
	}
	s.cur.Store(snap)
}

// PublishPattern freezes p and publishes it.
func (s *Store) PublishPattern(p Pattern) (*Snapshot, error) {
	snap, err := Freeze(p)
	if err != nil {
		return nil, err
	}
	s.cur.Store(snap)
	return snap, nil
}

// Update applies edit to a thawed copy of the current snapshot and publishes
// the result. Concurrent updates are retried, so no edit is lost.
func (s *Store) Update(edit func(p *Pattern)) (*Snapshot, error) {
	for {
		old := s.cur.Load()
		p := old.Thaw()
		edit(&p)
		next, err := Freeze(p)
		if err != nil {
			return nil, err
		}
		if s.cur.CompareAndSwap(old, next) {
			return next, nil
		}
	}
}
