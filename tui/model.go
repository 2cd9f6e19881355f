package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/votryx/votryx/internal/config"
	"github.com/votryx/votryx/internal/domain"
	"github.com/votryx/votryx/internal/engine"
	"github.com/votryx/votryx/internal/state"
)

// Model is the TUI application model
type Model struct {
	ctrl *engine.Controller
	cfg  config.RunConfiguration

	// Data
	stats   state.Statistics
	logs    []domain.LogEntry
	summary *engine.RunSummary

	// UI state
	width      int
	height     int
	errorsOnly bool
	logScroll  int
	statusMsg  string

	// Refresh
	lastRefresh time.Time
}

// NewModel creates a new TUI model around a controller
func NewModel(ctrl *engine.Controller, cfg config.RunConfiguration) Model {
	return Model{
		ctrl:  ctrl,
		cfg:   cfg,
		stats: ctrl.Snapshot(),
		logs:  ctrl.Logs(false),
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// TickMsg triggers a refresh
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
