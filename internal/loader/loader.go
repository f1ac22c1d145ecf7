// Package loader turns a kit's sample references into voices on the master
// input bus. Loads run concurrently under a per-resource timeout and the whole
// batch under a global one; Load never fails, it reports which tracks did.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/satindergrewal/stepseq/internal/audio"
	"github.com/satindergrewal/stepseq/internal/pattern"
)

const (
	DefaultResourceTimeout = 2 * time.Second
	DefaultGlobalTimeout   = 20 * time.Second
)

// Options configures a Loader. Zero timeouts disable the respective bound.
type Options struct {
	ResourceTimeout time.Duration
	GlobalTimeout   time.Duration
	Resolver        Resolver
	Fetcher         Fetcher
	Decode          func(io.ReadSeeker) (*audio.Buffer, error)
}

// Loader loads samples and connects them to a bus.
type Loader struct {
	bus  *audio.Bus
	opts Options
}

// New creates a loader that connects voices to bus. Nil resolver, fetcher and
// decoder fall back to DirResolver{"."}, DefaultFetcher and audio.Decode.
func New(bus *audio.Bus, opts Options) *Loader {
	if opts.Resolver == nil {
		opts.Resolver = DirResolver{Dir: "."}
	}
	if opts.Fetcher == nil {
		opts.Fetcher = DefaultFetcher()
	}
	if opts.Decode == nil {
		opts.Decode = audio.Decode
	}
	return &Loader{bus: bus, opts: opts}
}

type outcome struct {
	buf   *audio.Buffer
	cause Cause
	err   error
}

// settled collects outcomes until the batch is finalised; later arrivals from
// abandoned loads are dropped.
type settled struct {
	mu     sync.Mutex
	closed bool
	byID   map[pattern.TrackID]outcome
}

func (s *settled) record(id pattern.TrackID, o outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.byID[id] = o
	}
}

func (s *settled) finalise() map[pattern.TrackID]outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	out := make(map[pattern.TrackID]outcome, len(s.byID))
	for id, o := range s.byID {
		out[id] = o
	}
	return out
}

// Load resolves, fetches and decodes every referenced sample, connects the
// successes to the bus and returns a result covering every TrackID. Calling it
// again with the same refs reloads; tracks that fail on reload are
// disconnected so the bus always matches the latest result.
func (l *Loader) Load(ctx context.Context, refs map[pattern.TrackID]ResourceRef) LoadResult {
	start := time.Now()
	batch := uuid.NewString()
	st := &settled{byID: make(map[pattern.TrackID]outcome, pattern.NumTracks)}

	var g errgroup.Group
	for _, id := range pattern.Tracks() {
		ref, ok := refs[id]
		if !ok {
			st.record(id, outcome{cause: CauseNotFound, err: errors.New("no sample reference")})
			continue
		}
		loc, ok := l.opts.Resolver.Resolve(ref)
		if !ok {
			st.record(id, outcome{cause: CauseNotFound, err: fmt.Errorf("cannot resolve %q", ref)})
			continue
		}
		g.Go(func() error {
			st.record(id, l.loadOne(ctx, loc))
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()

	var expired <-chan time.Time
	if l.opts.GlobalTimeout > 0 {
		timer := time.NewTimer(l.opts.GlobalTimeout)
		defer timer.Stop()
		expired = timer.C
	}

	pendingCause := CauseGlobalTimeout
	select {
	case <-done:
	case <-expired:
		log.Printf("Load batch %s: global timeout after %v, abandoning pending loads", batch, l.opts.GlobalTimeout)
	case <-ctx.Done():
		pendingCause = CauseCanceled
		log.Printf("Load batch %s: canceled: %v", batch, ctx.Err())
	}

	outcomes := st.finalise()
	result := LoadResult{
		BatchID: batch,
		Voices:  make(map[pattern.TrackID]*audio.Voice),
	}
	for _, id := range pattern.Tracks() {
		o, ok := outcomes[id]
		if !ok {
			o = outcome{cause: pendingCause, err: errors.New("load still pending")}
		}
		if o.err == nil {
			v, err := l.bus.Connect(id, o.buf)
			if err == nil {
				result.Voices[id] = v
				continue
			}
			o = outcome{cause: CauseDecode, err: err}
		}
		l.bus.Disconnect(id)
		result.Failed = append(result.Failed, Failure{Track: id, Cause: o.cause, Err: o.err.Error()})
	}
	result.Elapsed = time.Since(start)

	log.Printf("Load batch %s: %d loaded, %d failed in %v", batch, len(result.Voices), len(result.Failed), result.Elapsed.Round(time.Millisecond))
	for _, f := range result.Failed {
		if _, referenced := refs[f.Track]; referenced {
			log.Printf("Load batch %s: %s failed (%s): %s", batch, f.Track, f.Cause, f.Err)
		}
	}
	return result
}

// loadOne fetches and decodes one sample under the per-resource timeout. The
// work runs in its own goroutine so a fetcher that ignores its context is
// abandoned rather than waited on.
func (l *Loader) loadOne(ctx context.Context, location string) outcome {
	lctx, cancel := ctx, context.CancelFunc(func() {})
	if l.opts.ResourceTimeout > 0 {
		lctx, cancel = context.WithTimeout(ctx, l.opts.ResourceTimeout)
	}
	defer cancel()

	res := make(chan outcome, 1)
	go func() {
		data, err := l.opts.Fetcher.Fetch(lctx, location)
		if err != nil {
			res <- outcome{cause: classify(err), err: err}
			return
		}
		buf, err := l.opts.Decode(bytes.NewReader(data))
		if err != nil {
			res <- outcome{cause: CauseDecode, err: err}
			return
		}
		res <- outcome{buf: buf}
	}()

	select {
	case o := <-res:
		return o
	case <-lctx.Done():
		if ctx.Err() != nil {
			return outcome{cause: CauseCanceled, err: ctx.Err()}
		}
		return outcome{cause: CauseTimeout, err: fmt.Errorf("%s: %w", location, lctx.Err())}
	}
}

func classify(err error) Cause {
	switch {
	case errors.Is(err, ErrNotFound):
		return CauseNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return CauseTimeout
	case errors.Is(err, context.Canceled):
		return CauseCanceled
	case errors.Is(err, audio.ErrDecode):
		return CauseDecode
	default:
		return CauseFetch
	}
}
