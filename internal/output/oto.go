//go:build !headless

package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Oto plays through the system audio device.
type Oto struct {
	ctx *oto.Context

	mu      sync.Mutex
	player  *oto.Player
	running bool
}

// NewOto opens the system audio output for float32 stereo at sampleRate.
// latency is the device buffer size; zero uses the driver default.
func NewOto(sampleRate int, latency time.Duration) (*Oto, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
		BufferSize:   latency,
	})
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready
	return &Oto{ctx: ctx}, nil
}

// Attach creates the player pulling from src. It may be called once.
func (o *Oto) Attach(src io.Reader) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player != nil {
		return ErrAlreadyAttached
	}
	o.player = o.ctx.NewPlayer(src)
	return nil
}

// Resume starts or resumes playback.
func (o *Oto) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player == nil {
		return ErrNotAttached
	}
	if err := o.ctx.Resume(); err != nil {
		return fmt.Errorf("resume audio device: %w", err)
	}
	o.player.Play()
	o.running = true
	return nil
}

// Suspend pauses the device.
func (o *Oto) Suspend() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.ctx.Suspend(); err != nil {
		return fmt.Errorf("suspend audio device: %w", err)
	}
	o.running = false
	return nil
}

// Running reports whether the device is playing and healthy.
func (o *Oto) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running && o.ctx.Err() == nil
}

// Close stops playback and releases the player.
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running = false
	if o.player == nil {
		return nil
	}
	err := o.player.Close()
	o.player = nil
	return err
}
