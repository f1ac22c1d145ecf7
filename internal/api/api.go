// Package api serves the JSON control API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/satindergrewal/stepseq/internal/engine"
	"github.com/satindergrewal/stepseq/internal/loader"
	"github.com/satindergrewal/stepseq/internal/pattern"
	"github.com/satindergrewal/stepseq/internal/sequencer"
	"github.com/satindergrewal/stepseq/internal/stream"
)

// Deps are the components the routes talk to. Nil stream parts leave their
// routes unregistered.
type Deps struct {
	Engine    *engine.Engine
	Playheads *stream.Broadcaster[sequencer.Playhead]
	Frames    *stream.Broadcaster[stream.Frame]
	WebRTC    *stream.WebRTCHandler
	Reload    func(ctx context.Context) loader.LoadResult
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Register installs every route on mux.
func Register(mux *http.ServeMux, d Deps) {
	e := d.Engine

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"engine": e.Status()}
		if d.Playheads != nil {
			resp["playhead_listeners"] = d.Playheads.ListenerCount()
		}
		if d.WebRTC != nil {
			resp["webrtc_listeners"] = d.WebRTC.PeerCount()
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("/api/transport", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Action string `json:"action"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		switch req.Action {
		case "start":
			if err := e.Start(); err != nil {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
		case "stop":
			e.Stop()
		default:
			http.Error(w, "action must be start or stop", http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "running": e.Running()})
	})

	mux.HandleFunc("/api/pattern", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, e.Snapshot().Thaw())
		case http.MethodPut, http.MethodPost:
			var p pattern.Pattern
			if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
				http.Error(w, "invalid pattern", http.StatusBadRequest)
				return
			}
			snap, err := e.PublishPattern(p)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			writeJSON(w, http.StatusOK, snap.Thaw())
		default:
			http.Error(w, "GET or PUT required", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/pattern/step", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Track pattern.TrackID `json:"track"`
			Step  int             `json:"step"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		on, err := e.ToggleStep(req.Track, req.Step)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "track": req.Track, "step": req.Step, "on": on})
	})

	mux.HandleFunc("/api/controls", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Tempo    *float64 `json:"tempo"`
			Swing    *float64 `json:"swing"`
			Drive    *float64 `json:"drive"`
			MasterDB *float64 `json:"master_db"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if req.Tempo != nil {
			if err := e.SetTempo(*req.Tempo); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		var err error
		if req.Swing != nil {
			err = errors.Join(err, e.SetSwing(*req.Swing))
		}
		if req.Drive != nil {
			err = errors.Join(err, e.SetDrive(*req.Drive))
		}
		if req.MasterDB != nil {
			err = errors.Join(err, e.SetMasterVolume(*req.MasterDB))
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		snap := e.Snapshot()
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":        true,
			"tempo":     snap.Tempo(),
			"swing":     snap.Swing(),
			"drive":     snap.Drive(),
			"master_db": snap.MasterDB(),
		})
	})

	mux.HandleFunc("/api/visibility", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Hidden bool `json:"hidden"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		e.SetHidden(req.Hidden)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "hidden": req.Hidden})
	})

	if d.Reload != nil {
		mux.HandleFunc("/api/reload", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "POST required", http.StatusMethodNotAllowed)
				return
			}
			res := d.Reload(r.Context())
			writeJSON(w, http.StatusOK, map[string]any{
				"batch_id": res.BatchID,
				"loaded":   res.LoadedTracks(),
				"failed":   res.Failed,
				"elapsed":  res.Elapsed.Seconds(),
			})
		})
	}

	if d.Playheads != nil {
		mux.Handle("/api/playhead", stream.NewPlayheadHandler(d.Playheads))
	}
	if d.Frames != nil {
		mux.Handle("/api/levels", stream.NewLevelsHandler(d.Frames, stream.DefaultLevelInterval))
	}
	if d.WebRTC != nil {
		mux.Handle("/offer", d.WebRTC)
	}
}
