package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
	"golang.org/x/time/rate"

	"github.com/satindergrewal/stepseq/internal/api"
	"github.com/satindergrewal/stepseq/internal/audio"
	"github.com/satindergrewal/stepseq/internal/config"
	"github.com/satindergrewal/stepseq/internal/control"
	"github.com/satindergrewal/stepseq/internal/engine"
	"github.com/satindergrewal/stepseq/internal/loader"
	"github.com/satindergrewal/stepseq/internal/output"
	"github.com/satindergrewal/stepseq/internal/pattern"
	"github.com/satindergrewal/stepseq/internal/sequencer"
	"github.com/satindergrewal/stepseq/internal/stream"
	"github.com/satindergrewal/stepseq/internal/tui"
)

func main() {
	cfg := config.Load()

	// The TUI owns the terminal, so logs go to a file or nowhere.
	switch {
	case cfg.TUI && cfg.LogFile != "":
		f, err := tea.LogToFile(cfg.LogFile, "stepseq")
		if err != nil {
			log.Fatalf("Open log file: %v", err)
		}
		defer f.Close()
	case cfg.TUI:
		log.SetOutput(io.Discard)
	case cfg.LogFile != "":
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("Open log file: %v", err)
		}
		defer f.Close()
		log.SetOutput(f)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("stepseq starting up...")

	kit, err := config.LoadKit(cfg.KitPath)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("No kit at %s, starting with an empty kit", cfg.KitPath)
		kit = &config.Kit{}
	} else if err != nil {
		log.Fatalf("Kit: %v", err)
	}

	start, err := kit.StartingPattern(cfg)
	if err != nil {
		log.Fatalf("Kit pattern: %v", err)
	}
	snap, err := pattern.Freeze(start)
	if err != nil {
		log.Fatalf("Kit pattern: %v", err)
	}

	eng := engine.New(pattern.NewStore(snap), engine.Options{
		SampleRate: audio.SampleRate,
		AccentDB:   cfg.AccentDB,
	})

	// Sample loading: refs are re-read from the kit file on every reload.
	loadOpts := loader.Options{
		ResourceTimeout: cfg.LoadTimeout,
		GlobalTimeout:   cfg.GlobalTimeout,
		Resolver:        loader.DirResolver{Dir: cfg.SampleDir},
	}
	var kitMu sync.Mutex
	reload := func(ctx context.Context) loader.LoadResult {
		kitMu.Lock()
		defer kitMu.Unlock()
		if k, err := config.LoadKit(cfg.KitPath); err == nil {
			kit = k
		} else if !errors.Is(err, os.ErrNotExist) {
			log.Printf("Reload kit: %v (keeping previous tracks)", err)
		}
		return eng.Load(ctx, kit.Refs(), loadOpts)
	}
	res := reload(ctx)

	// Output device
	dev, err := output.Open(cfg.Output, audio.SampleRate, cfg.Latency)
	if err != nil {
		log.Printf("Output %q unavailable (%v), falling back to headless", cfg.Output, err)
		dev = output.NewHeadless(nil)
	}
	defer dev.Close()
	if err := eng.Attach(dev); err != nil {
		log.Fatalf("Attach output: %v", err)
	}
	if err := dev.Resume(); err != nil {
		log.Fatalf("Start output: %v", err)
	}

	// Monitor taps: master frames fan out to the levels meter and WebRTC peers
	frameTap := stream.NewFrameTap(50)
	detach := eng.Chain().Tap(frameTap)
	defer detach()
	frames := stream.NewBroadcaster[stream.Frame](150) // ~3 seconds at 20ms/frame
	go frames.Run(ctx, frameTap.Frames())

	playheads := stream.NewBroadcaster[sequencer.Playhead](64)
	go playheads.Run(ctx, eng.Playheads())

	webrtcHandler := stream.NewWebRTCHandler(frames, rate.Every(time.Second), 3)
	defer webrtcHandler.Close()

	// MIDI control surface (optional)
	defer midi.CloseDriver()
	if cfg.MIDIIn != "" {
		surface := control.NewSurface(eng)
		if err := surface.Listen(cfg.MIDIIn); err != nil {
			log.Printf("MIDI disabled: %v", err)
		} else {
			defer surface.Close()
		}
	} else {
		log.Println("MIDI not configured (set STEPSEQ_MIDI_IN to enable)")
	}

	// HTTP routes
	mux := http.NewServeMux()
	api.Register(mux, api.Deps{
		Engine:    eng,
		Playheads: playheads,
		Frames:    frames,
		WebRTC:    webrtcHandler,
		Reload:    reload,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		eng.Stop()
		server.Close()
	}()

	if cfg.TUI {
		go func() {
			if err := server.ListenAndServe(); err != http.ErrServerClosed {
				log.Printf("HTTP server error: %v", err)
			}
		}()
		listener := playheads.Subscribe()
		defer playheads.Unsubscribe(listener)
		p := tea.NewProgram(tui.NewModel(eng, listener.C),
			tea.WithAltScreen(), tea.WithReportFocus(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			log.Printf("TUI: %v", err)
		}
		cancel()
		return
	}

	log.Printf("stepseq live on %s (%d/%d tracks loaded)", addr, len(res.Voices), pattern.NumTracks)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}
