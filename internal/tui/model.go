// Package tui is the terminal front end: a 10x16 step grid with a cursor,
// the playhead, and transport and mix controls.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/satindergrewal/stepseq/internal/engine"
	"github.com/satindergrewal/stepseq/internal/pattern"
	"github.com/satindergrewal/stepseq/internal/sequencer"
)

// Engine is what the TUI drives.
type Engine interface {
	Snapshot() *pattern.Snapshot
	Status() engine.Status
	Edit(fn func(p *pattern.Pattern)) (*pattern.Snapshot, error)
	ToggleStep(id pattern.TrackID, step int) (bool, error)
	Start() error
	Stop()
	SetTempo(bpm float64) error
	SetSwing(percent float64) error
	SetDrive(percent float64) error
	SetHidden(hidden bool)
}

// PlayheadMsg carries one playhead notification into the update loop.
type PlayheadMsg sequencer.Playhead

// playheadsClosedMsg ends the playhead subscription.
type playheadsClosedMsg struct{}

type Model struct {
	Engine    Engine
	playheads <-chan sequencer.Playhead

	row, col int
	step     int
	err      string
	quitting bool
}

// NewModel creates the model. playheads may be nil.
func NewModel(e Engine, playheads <-chan sequencer.Playhead) Model {
	return Model{Engine: e, playheads: playheads, step: -1}
}

// ListenForPlayheads waits for the next playhead.
func ListenForPlayheads(ch <-chan sequencer.Playhead) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		p, ok := <-ch
		if !ok {
			return playheadsClosedMsg{}
		}
		return PlayheadMsg(p)
	}
}

func (m Model) Init() tea.Cmd {
	return ListenForPlayheads(m.playheads)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case tea.FocusMsg:
		m.Engine.SetHidden(false)

	case tea.BlurMsg:
		m.Engine.SetHidden(true)

	case PlayheadMsg:
		m.step = msg.Step
		return m, ListenForPlayheads(m.playheads)
	}
	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	m.err = ""
	id := pattern.TrackID(m.row)
	var err error

	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		m.Engine.Stop()
		return m, tea.Quit

	case "up", "k":
		m.row = (m.row + pattern.NumTracks - 1) % pattern.NumTracks
	case "down", "j":
		m.row = (m.row + 1) % pattern.NumTracks
	case "left", "h":
		m.col = (m.col + pattern.NumSteps - 1) % pattern.NumSteps
	case "right", "l":
		m.col = (m.col + 1) % pattern.NumSteps

	case " ", "enter", "x":
		_, err = m.Engine.ToggleStep(id, m.col)
	case "a":
		_, err = m.Engine.Edit(func(p *pattern.Pattern) {
			p.Tracks[id].Accents[m.col] = !p.Tracks[id].Accents[m.col]
		})
	case "m":
		_, err = m.Engine.Edit(func(p *pattern.Pattern) { p.Tracks[id].Mute = !p.Tracks[id].Mute })
	case "s":
		_, err = m.Engine.Edit(func(p *pattern.Pattern) { p.Tracks[id].Solo = !p.Tracks[id].Solo })
	case ",", ".":
		delta := 1
		if key == "," {
			delta = -1
		}
		_, err = m.Engine.Edit(func(p *pattern.Pattern) {
			p.Tracks[id].Pitch = clampInt(p.Tracks[id].Pitch+delta, pattern.MinPitch, pattern.MaxPitch)
		})

	case "p":
		if m.Engine.Status().Running {
			m.Engine.Stop()
			m.step = -1
		} else {
			err = m.Engine.Start()
		}

	case "+", "=":
		err = m.Engine.SetTempo(m.Engine.Snapshot().Tempo() + 5)
	case "-", "_":
		err = m.Engine.SetTempo(m.Engine.Snapshot().Tempo() - 5)
	case "]":
		err = m.Engine.SetSwing(m.Engine.Snapshot().Swing() + 5)
	case "[":
		err = m.Engine.SetSwing(m.Engine.Snapshot().Swing() - 5)
	case "}":
		err = m.Engine.SetDrive(m.Engine.Snapshot().Drive() + 5)
	case "{":
		err = m.Engine.SetDrive(m.Engine.Snapshot().Drive() - 5)
	}

	if err != nil {
		m.err = err.Error()
	}
	return m, nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	onStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	headStyle   = lipgloss.NewStyle().Background(lipgloss.Color("237"))
	cursorStyle = lipgloss.NewStyle().Reverse(true)
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	snap := m.Engine.Snapshot()
	st := m.Engine.Status()

	playState := "STOP"
	if st.Running {
		playState = "PLAY"
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("stepseq  %s  %5.1fbpm  swing:%3.0f%%  drive:%3.0f%%  master:%+.1fdB",
		playState, snap.Tempo(), snap.Swing(), snap.Drive(), snap.MasterDB())))
	b.WriteString("\n\n")

	loaded := make(map[pattern.TrackID]bool, len(st.Loaded))
	for _, id := range st.Loaded {
		loaded[id] = true
	}

	for _, id := range pattern.Tracks() {
		flags := []byte("  ")
		if snap.Muted(id) {
			flags[0] = 'M'
		}
		if snap.Soloed(id) {
			flags[1] = 'S'
		}
		name := fmt.Sprintf("%-10s %s %+3d ", id, flags, snap.Pitch(id))
		if !loaded[id] {
			name = dimStyle.Render(name)
		}
		b.WriteString(name)

		for step := 0; step < pattern.NumSteps; step++ {
			if step%4 == 0 {
				b.WriteByte(' ')
			}
			b.WriteString(m.cell(snap, id, step))
		}
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	if m.err != "" {
		b.WriteString(errStyle.Render(m.err))
		b.WriteByte('\n')
	}
	b.WriteString(dimStyle.Render("hjkl:move  space:step  a:accent  m:mute  s:solo  ,/.:pitch  p:play  +/-:tempo  [/]:swing  {/}:drive  q:quit"))
	return b.String()
}

func (m Model) cell(snap *pattern.Snapshot, id pattern.TrackID, step int) string {
	glyph, style := "·", dimStyle
	switch {
	case snap.Active(id, step) && snap.Accented(id, step):
		glyph, style = "◆", accentStyle
	case snap.Active(id, step):
		glyph, style = "■", onStyle
	}
	if step == m.step {
		style = style.Inherit(headStyle)
	}
	if int(id) == m.row && step == m.col {
		style = style.Inherit(cursorStyle)
	}
	return style.Render(glyph)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
