package engine

import (
	"github.com/satindergrewal/stepseq/internal/loader"
	"github.com/satindergrewal/stepseq/internal/pattern"
)

// Status is a point-in-time summary for the API and the TUI.
type Status struct {
	Running   bool              `json:"running"`
	Step      int               `json:"step"`
	Frame     int64             `json:"frame"`
	Tempo     float64           `json:"tempo"`
	Swing     float64           `json:"swing"`
	Drive     float64           `json:"drive"`
	MasterDB  float64           `json:"master_db"`
	Reduction float64           `json:"gain_reduction_db"`
	Hidden    bool              `json:"hidden"`
	Device    bool              `json:"device_running"`
	BatchID   string            `json:"batch_id,omitempty"`
	Loaded    []pattern.TrackID `json:"loaded"`
	Failed    []loader.Failure  `json:"failed"`
}

// Status reports the engine's current state.
func (e *Engine) Status() Status {
	snap := e.store.Load()
	st := Status{
		Running:   e.Running(),
		Step:      e.clock.Position(),
		Frame:     e.frame.Load(),
		Tempo:     snap.Tempo(),
		Swing:     snap.Swing(),
		Drive:     snap.Drive(),
		MasterDB:  snap.MasterDB(),
		Reduction: e.chain.Compressor().Reduction(),
		Hidden:    e.gov.Hidden(),
		Loaded:    e.chain.Input().Connected(),
		Failed:    []loader.Failure{},
	}
	e.devMu.Lock()
	if e.device != nil {
		st.Device = e.device.Running()
	}
	e.devMu.Unlock()
	if res := e.lastLoad.Load(); res != nil {
		st.BatchID = res.BatchID
		if res.Failed != nil {
			st.Failed = res.Failed
		}
	}
	return st
}
