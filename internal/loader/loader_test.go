package loader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/satindergrewal/stepseq/internal/audio"
	"github.com/satindergrewal/stepseq/internal/pattern"
)

// writeWAV writes a short 16-bit mono click into dir/name.
func writeWAV(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	defer f.Close()
	enc := wav.NewEncoder(f, audio.SampleRate, 16, 1, 1)
	data := make([]int, 480)
	for i := range data {
		data[i] = 8000 - i*16
	}
	if err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: audio.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatalf("encode %s: %v", name, err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder %s: %v", name, err)
	}
	return path
}

func fullKit(t *testing.T) (string, map[pattern.TrackID]ResourceRef) {
	t.Helper()
	dir := t.TempDir()
	refs := make(map[pattern.TrackID]ResourceRef)
	for _, id := range pattern.Tracks() {
		name := id.String() + ".wav"
		writeWAV(t, dir, name)
		refs[id] = ResourceRef(name)
	}
	return dir, refs
}

// funcFetcher adapts a function to Fetcher and counts calls.
type funcFetcher struct {
	calls atomic.Int32
	fn    func(ctx context.Context, location string) ([]byte, error)
}

func (f *funcFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	f.calls.Add(1)
	return f.fn(ctx, location)
}

func TestLoadAllTracks(t *testing.T) {
	dir, refs := fullKit(t)
	bus := audio.NewBus()
	l := New(bus, Options{
		ResourceTimeout: DefaultResourceTimeout,
		GlobalTimeout:   DefaultGlobalTimeout,
		Resolver:        DirResolver{Dir: dir},
	})

	res := l.Load(context.Background(), refs)
	if len(res.Failed) != 0 {
		t.Fatalf("Failed = %+v, want none", res.Failed)
	}
	if len(res.Voices) != pattern.NumTracks {
		t.Fatalf("Voices = %d, want %d", len(res.Voices), pattern.NumTracks)
	}
	for id := range refs {
		if !res.Loaded(id) {
			t.Errorf("%s not loaded", id)
		}
		if bus.Voice(id) != res.Voices[id] {
			t.Errorf("%s voice not connected to the bus", id)
		}
	}
	if res.BatchID == "" {
		t.Error("BatchID is empty")
	}
	if got := res.LoadedTracks(); len(got) != pattern.NumTracks || got[0] != pattern.Kick {
		t.Errorf("LoadedTracks = %v", got)
	}
}

func TestLoadResultIsTotal(t *testing.T) {
	dir := t.TempDir()
	writeWAV(t, dir, "kick.wav")
	bus := audio.NewBus()
	l := New(bus, Options{Resolver: DirResolver{Dir: dir}})

	res := l.Load(context.Background(), map[pattern.TrackID]ResourceRef{pattern.Kick: "kick.wav"})
	if len(res.Voices)+len(res.Failed) != pattern.NumTracks {
		t.Fatalf("voices %d + failed %d != %d", len(res.Voices), len(res.Failed), pattern.NumTracks)
	}
	if !res.Loaded(pattern.Kick) {
		t.Error("kick not loaded")
	}
	if c, ok := res.Cause(pattern.Snare); !ok || c != CauseNotFound {
		t.Errorf("snare cause = %q, %v; want resource-not-found", c, ok)
	}
}

func TestUnresolvableRefSkipsIO(t *testing.T) {
	f := &funcFetcher{fn: func(context.Context, string) ([]byte, error) {
		return nil, errors.New("should not be called")
	}}
	l := New(audio.NewBus(), Options{Resolver: DirResolver{Dir: "."}, Fetcher: f})
	res := l.Load(context.Background(), map[pattern.TrackID]ResourceRef{
		pattern.Kick:  "",
		pattern.Snare: "s3://bucket/snare.wav",
	})
	if n := f.calls.Load(); n != 0 {
		t.Errorf("fetcher called %d times, want 0", n)
	}
	for _, id := range []pattern.TrackID{pattern.Kick, pattern.Snare} {
		if c, _ := res.Cause(id); c != CauseNotFound {
			t.Errorf("%s cause = %q, want resource-not-found", id, c)
		}
	}
}

func TestLoadFailureCauses(t *testing.T) {
	dir := t.TempDir()
	writeWAV(t, dir, "kick.wav")
	if err := os.WriteFile(filepath.Join(dir, "bad.wav"), []byte("not audio at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := New(audio.NewBus(), Options{Resolver: DirResolver{Dir: dir}})
	res := l.Load(context.Background(), map[pattern.TrackID]ResourceRef{
		pattern.Kick:  "kick.wav",
		pattern.Snare: "missing.wav",
		pattern.Clap:  "bad.wav",
	})
	tests := []struct {
		id   pattern.TrackID
		want Cause
	}{
		{pattern.Snare, CauseNotFound},
		{pattern.Clap, CauseDecode},
	}
	for _, tt := range tests {
		if c, _ := res.Cause(tt.id); c != tt.want {
			t.Errorf("%s cause = %q, want %q", tt.id, c, tt.want)
		}
	}
	if !res.Loaded(pattern.Kick) {
		t.Error("kick should load despite sibling failures")
	}
}

func TestPerResourceTimeout(t *testing.T) {
	dir, _ := fullKit(t)
	good, err := os.ReadFile(filepath.Join(dir, "kick.wav"))
	if err != nil {
		t.Fatal(err)
	}
	f := &funcFetcher{fn: func(ctx context.Context, loc string) ([]byte, error) {
		if filepath.Base(loc) == "slow.wav" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return good, nil
	}}
	l := New(audio.NewBus(), Options{
		ResourceTimeout: 50 * time.Millisecond,
		GlobalTimeout:   5 * time.Second,
		Resolver:        DirResolver{Dir: dir},
		Fetcher:         f,
	})

	begin := time.Now()
	res := l.Load(context.Background(), map[pattern.TrackID]ResourceRef{
		pattern.Kick:    "kick.wav",
		pattern.OpenHat: "slow.wav",
	})
	if elapsed := time.Since(begin); elapsed > time.Second {
		t.Errorf("Load took %v, want about the per-resource timeout", elapsed)
	}
	if c, _ := res.Cause(pattern.OpenHat); c != CauseTimeout {
		t.Errorf("slow track cause = %q, want timeout", c)
	}
	if !res.Loaded(pattern.Kick) {
		t.Error("kick not loaded")
	}
}

func TestGlobalTimeoutAbandonsHungLoad(t *testing.T) {
	dir, refs := fullKit(t)
	hang := make(chan struct{})
	defer close(hang)

	f := &funcFetcher{fn: func(ctx context.Context, loc string) ([]byte, error) {
		if filepath.Base(loc) == "cowbell.wav" {
			<-hang // ignores its context entirely
			return nil, errors.New("released")
		}
		return FileFetcher{}.Fetch(ctx, loc)
	}}
	global := 150 * time.Millisecond
	l := New(audio.NewBus(), Options{
		GlobalTimeout: global,
		Resolver:      DirResolver{Dir: dir},
		Fetcher:       f,
	})

	begin := time.Now()
	res := l.Load(context.Background(), refs)
	elapsed := time.Since(begin)
	if elapsed < global || elapsed > global+time.Second {
		t.Errorf("Load returned after %v, want about %v", elapsed, global)
	}
	if c, _ := res.Cause(pattern.Cowbell); c != CauseGlobalTimeout {
		t.Errorf("cowbell cause = %q, want global-timeout", c)
	}
	if len(res.Failed) != 1 {
		t.Errorf("Failed = %+v, want only cowbell", res.Failed)
	}
	if len(res.Voices) != pattern.NumTracks-1 {
		t.Errorf("Voices = %d, want %d", len(res.Voices), pattern.NumTracks-1)
	}
}

func TestLoadCanceledContext(t *testing.T) {
	hang := make(chan struct{})
	defer close(hang)
	f := &funcFetcher{fn: func(context.Context, string) ([]byte, error) {
		<-hang
		return nil, errors.New("released")
	}}
	l := New(audio.NewBus(), Options{Resolver: DirResolver{Dir: "."}, Fetcher: f})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	res := l.Load(ctx, map[pattern.TrackID]ResourceRef{pattern.Kick: "kick.wav"})
	if c, _ := res.Cause(pattern.Kick); c != CauseCanceled {
		t.Errorf("cause = %q, want canceled", c)
	}
}

func TestReloadIsIdempotent(t *testing.T) {
	dir, refs := fullKit(t)
	bus := audio.NewBus()
	l := New(bus, Options{Resolver: DirResolver{Dir: dir}})

	first := l.Load(context.Background(), refs)
	second := l.Load(context.Background(), refs)
	if len(first.Voices) != len(second.Voices) || len(second.Failed) != 0 {
		t.Fatalf("reload changed outcome: %d/%d voices, %d failed", len(first.Voices), len(second.Voices), len(second.Failed))
	}
	for id, v := range second.Voices {
		if bus.Voice(id) != v {
			t.Errorf("%s: bus holds a stale voice after reload", id)
		}
	}

	if err := os.Remove(filepath.Join(dir, "crash.wav")); err != nil {
		t.Fatal(err)
	}
	third := l.Load(context.Background(), refs)
	if third.Loaded(pattern.Crash) {
		t.Error("crash loaded after its file was removed")
	}
	if bus.Voice(pattern.Crash) != nil {
		t.Error("failed reload left the old crash voice connected")
	}
}

func TestHTTPFetch(t *testing.T) {
	dir := t.TempDir()
	good, err := os.ReadFile(writeWAV(t, dir, "kick.wav"))
	if err != nil {
		t.Fatal(err)
	}
	var mu sync.Mutex
	hits := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()
		switch r.URL.Path {
		case "/kick.wav":
			w.Write(good)
		case "/broken.wav":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	l := New(audio.NewBus(), Options{ResourceTimeout: time.Second})
	res := l.Load(context.Background(), map[pattern.TrackID]ResourceRef{
		pattern.Kick:  ResourceRef(srv.URL + "/kick.wav"),
		pattern.Snare: ResourceRef(srv.URL + "/nope.wav"),
		pattern.Clap:  ResourceRef(srv.URL + "/broken.wav"),
	})
	if !res.Loaded(pattern.Kick) {
		t.Errorf("kick not loaded over HTTP: %+v", res.Failed)
	}
	if c, _ := res.Cause(pattern.Snare); c != CauseNotFound {
		t.Errorf("404 cause = %q, want resource-not-found", c)
	}
	if c, _ := res.Cause(pattern.Clap); c != CauseFetch {
		t.Errorf("500 cause = %q, want fetch-error", c)
	}
}

func TestDirResolver(t *testing.T) {
	r := DirResolver{Dir: "/kits/808"}
	tests := []struct {
		ref  ResourceRef
		want string
		ok   bool
	}{
		{"kick.wav", "/kits/808/kick.wav", true},
		{"/abs/snare.wav", "/abs/snare.wav", true},
		{"https://cdn.example/clap.wav", "https://cdn.example/clap.wav", true},
		{"file:///tmp/hat.wav", "/tmp/hat.wav", true},
		{"", "", false},
		{"   ", "", false},
		{"ftp://host/x.wav", "", false},
	}
	for _, tt := range tests {
		got, ok := r.Resolve(tt.ref)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Resolve(%q) = %q, %v; want %q, %v", tt.ref, got, ok, tt.want, tt.ok)
		}
	}
}
