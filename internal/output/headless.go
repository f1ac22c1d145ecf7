package output

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/satindergrewal/stepseq/internal/audio"
)

// Headless pulls one 20ms frame per tick from its source, the way a sound
// card would, and hands it to an optional sink. It keeps the engine clock
// running on machines without an audio device.
type Headless struct {
	sink     func([]byte)
	interval time.Duration

	mu     sync.Mutex
	src    io.Reader
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHeadless creates a headless device. sink may be nil; it must not retain
// the frame.
func NewHeadless(sink func(frame []byte)) *Headless {
	return &Headless{sink: sink, interval: audio.FrameDuration}
}

// Attach binds the source. It may be called once.
func (h *Headless) Attach(src io.Reader) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.src != nil {
		return ErrAlreadyAttached
	}
	h.src = src
	return nil
}

// Resume starts pulling frames.
func (h *Headless) Resume() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.src == nil {
		return ErrNotAttached
	}
	if h.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})
	go h.run(ctx, h.src, h.done)
	return nil
}

// Suspend stops pulling frames and waits for the pull loop to exit.
func (h *Headless) Suspend() error {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Running reports whether frames are being pulled.
func (h *Headless) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancel != nil
}

// Close suspends the device.
func (h *Headless) Close() error { return h.Suspend() }

func (h *Headless) run(ctx context.Context, src io.Reader, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	frame := make([]byte, FloatFrameBytes)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := io.ReadFull(src, frame); err != nil {
			log.Printf("Headless output: read failed: %v", err)
			return
		}
		if h.sink != nil {
			h.sink(frame)
		}
	}
}
