package stream

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"golang.org/x/time/rate"
	"gopkg.in/hraban/opus.v2"

	"github.com/satindergrewal/stepseq/internal/audio"
)

const opusBitrate = 128000

// WebRTCHandler serves SDP negotiation for a low-latency Opus monitor of the
// master output. Offers are rate limited since each one costs an encoder and
// an ICE gather.
type WebRTCHandler struct {
	broadcaster *Broadcaster[Frame]
	limiter     *rate.Limiter
	mu          sync.Mutex
	peers       map[*webrtc.PeerConnection]chan struct{}
}

// NewWebRTCHandler creates a WebRTC monitor handler accepting offers at up
// to limit per second with the given burst.
func NewWebRTCHandler(b *Broadcaster[Frame], limit rate.Limit, burst int) *WebRTCHandler {
	return &WebRTCHandler{
		broadcaster: b,
		limiter:     rate.NewLimiter(limit, burst),
		peers:       make(map[*webrtc.PeerConnection]chan struct{}),
	}
}

// PeerCount returns the number of active WebRTC peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	if !h.limiter.Allow() {
		http.Error(w, "too many offers", http.StatusTooManyRequests)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		http.Error(w, "create peer connection failed", http.StatusInternalServerError)
		return
	}

	audioTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: audio.SampleRate, Channels: audio.Channels},
		"audio",
		"stepseq-monitor",
	)
	if err != nil {
		pc.Close()
		http.Error(w, "create audio track failed", http.StatusInternalServerError)
		return
	}

	if _, err := pc.AddTrack(audioTrack); err != nil {
		pc.Close()
		http.Error(w, "add track failed", http.StatusInternalServerError)
		return
	}

	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		http.Error(w, "set remote description failed", http.StatusBadRequest)
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		http.Error(w, "create answer failed", http.StatusInternalServerError)
		return
	}

	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		http.Error(w, "set local description failed", http.StatusInternalServerError)
		return
	}

	// Wait for ICE gathering to complete
	select {
	case <-webrtc.GatheringCompletePromise(pc):
	case <-r.Context().Done():
		pc.Close()
		return
	}

	done := make(chan struct{})
	h.mu.Lock()
	h.peers[pc] = done
	h.mu.Unlock()

	log.Printf("WebRTC monitor connected (total: %d)", h.PeerCount())

	go h.streamToPeer(audioTrack, done)

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed ||
			s == webrtc.PeerConnectionStateDisconnected {
			if h.removePeer(pc) {
				pc.Close()
				log.Printf("WebRTC monitor disconnected (remaining: %d)", h.PeerCount())
			}
		}
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(pc.LocalDescription())
}

func (h *WebRTCHandler) streamToPeer(track *webrtc.TrackLocalStaticSample, done <-chan struct{}) {
	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		log.Printf("WebRTC: opus encoder error: %v", err)
		return
	}
	if err := enc.SetBitrate(opusBitrate); err != nil {
		log.Printf("WebRTC: set bitrate: %v", err)
	}

	pcm := make([]int16, audio.FrameSamples)
	opusBuf := make([]byte, 4000)

	for {
		select {
		case <-done:
			return
		case <-listener.Done():
			return
		case frame := <-listener.C:
			pcm = audio.FloatsToInt16(pcm, frame.Samples)
			n, err := enc.Encode(pcm, opusBuf)
			if err != nil {
				log.Printf("WebRTC: opus encode error: %v", err)
				continue
			}
			if err := track.WriteSample(media.Sample{
				Data:     opusBuf[:n],
				Duration: audio.FrameDuration,
			}); err != nil {
				return
			}
		}
	}
}

// removePeer drops pc and stops its stream. It reports whether pc was known.
func (h *WebRTCHandler) removePeer(pc *webrtc.PeerConnection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	done, ok := h.peers[pc]
	if !ok {
		return false
	}
	delete(h.peers, pc)
	close(done)
	return true
}

// Close disconnects every peer.
func (h *WebRTCHandler) Close() {
	h.mu.Lock()
	peers := make([]*webrtc.PeerConnection, 0, len(h.peers))
	for pc := range h.peers {
		peers = append(peers, pc)
	}
	h.mu.Unlock()
	for _, pc := range peers {
		if h.removePeer(pc) {
			pc.Close()
		}
	}
}
