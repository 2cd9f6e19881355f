package tui

import (
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/votryx/votryx/internal/engine"
)

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.ctrl.Running() {
				m.ctrl.Stop()
			}
			return m, tea.Quit
		case "s":
			if err := m.ctrl.Start(m.cfg); err != nil {
				if errors.Is(err, engine.ErrAlreadyRunning) {
					m.statusMsg = "Run already in progress"
				} else {
					m.statusMsg = "Start failed: " + err.Error()
				}
			} else {
				m.statusMsg = "Run started"
				m.summary = nil
				m.logScroll = 0
			}
		case "x":
			if err := m.ctrl.Stop(); err != nil {
				m.statusMsg = "No run in progress"
			} else {
				m.statusMsg = "Stopping..."
			}
		case "e":
			m.errorsOnly = !m.errorsOnly
			m.logs = m.ctrl.Logs(m.errorsOnly)
			m.logScroll = 0
		case "j", "down":
			if m.logScroll < maxScroll(len(m.logs), m.logWindow()) {
				m.logScroll++
			}
		case "k", "up":
			if m.logScroll > 0 {
				m.logScroll--
			}
		case "g":
			m.logScroll = 0
		case "G":
			m.logScroll = maxScroll(len(m.logs), m.logWindow())
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		m.stats = m.ctrl.Snapshot()
		m.logs = m.ctrl.Logs(m.errorsOnly)
		m.summary = m.ctrl.LastSummary()
		m.lastRefresh = time.Time(msg)
		return m, tickCmd()
	}

	return m, nil
}

func maxScroll(total, window int) int {
	if total <= window {
		return 0
	}
	return total - window
}
