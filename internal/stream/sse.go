package stream

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/satindergrewal/stepseq/internal/sequencer"
)

// DefaultLevelInterval is how often a levels client receives a reading.
const DefaultLevelInterval = 100 * time.Millisecond

func writeEvent(w http.ResponseWriter, f http.Flusher, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	f.Flush()
	return nil
}

func startSSE(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher, true
}

// PlayheadHandler streams playhead notifications as server-sent events.
type PlayheadHandler struct {
	broadcaster *Broadcaster[sequencer.Playhead]
}

// NewPlayheadHandler creates a playhead event stream handler.
func NewPlayheadHandler(b *Broadcaster[sequencer.Playhead]) *PlayheadHandler {
	return &PlayheadHandler{broadcaster: b}
}

func (h *PlayheadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := startSSE(w)
	if !ok {
		return
	}
	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	log.Printf("Playhead client connected (total: %d)", h.broadcaster.ListenerCount())
	defer log.Printf("Playhead client disconnected")

	for {
		select {
		case <-r.Context().Done():
			return
		case <-listener.Done():
			return
		case p := <-listener.C:
			if err := writeEvent(w, flusher, "playhead", p); err != nil {
				return
			}
		}
	}
}

// LevelsHandler streams master output levels as server-sent events, one
// reading per interval.
type LevelsHandler struct {
	broadcaster *Broadcaster[Frame]
	interval    time.Duration
}

// NewLevelsHandler creates a levels event stream handler.
func NewLevelsHandler(b *Broadcaster[Frame], interval time.Duration) *LevelsHandler {
	if interval <= 0 {
		interval = DefaultLevelInterval
	}
	return &LevelsHandler{broadcaster: b, interval: interval}
}

func (h *LevelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := startSSE(w)
	if !ok {
		return
	}
	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	// Peak-hold between readings so short hits are not missed.
	throttle := rate.Sometimes{Interval: h.interval}
	hold := Level{PeakDB: MeterFloor, RMSDB: MeterFloor}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-listener.Done():
			return
		case f := <-listener.C:
			lv := Measure(f.Start, f.Samples)
			if lv.PeakDB > hold.PeakDB {
				hold.PeakDB = lv.PeakDB
			}
			hold.RMSDB = lv.RMSDB
			hold.Start = lv.Start
			var err error
			throttle.Do(func() {
				err = writeEvent(w, flusher, "levels", hold)
				hold.PeakDB = MeterFloor
			})
			if err != nil {
				return
			}
		}
	}
}
