package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/votryx/votryx/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	idleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255"))
)

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	// Header
	header := fmt.Sprintf(" Votryx │ %s │ Votes: %s │ Errors: %d │ Streak: %d ",
		statusLabel(m.stats.Status),
		humanize.Comma(int64(m.stats.VoteCount)),
		m.stats.ErrorCount, m.stats.ConsecutiveErrors)
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderRun()))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderLogs()))
	b.WriteString("\n")

	if m.statusMsg != "" {
		b.WriteString(idleStyle.Width(m.width).Render(" " + m.statusMsg + " "))
		b.WriteString("\n")
	}

	// Status bar
	var statusBar string
	if m.ctrl.Running() {
		statusBar = " [x]stop [e]rrors-only [j/k]scroll [g/G]top/bottom [q]uit "
	} else {
		statusBar = " [s]tart [e]rrors-only [j/k]scroll [g/G]top/bottom [q]uit "
	}
	b.WriteString(statusBarStyle.Width(m.width).Render(statusBar))

	return b.String()
}

func (m Model) renderRun() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("RUN"))
	b.WriteString("\n")

	target := fmt.Sprintf("%d votes", m.cfg.TargetVotes)
	if m.cfg.Unbounded {
		target = "unbounded"
	}
	b.WriteString(fmt.Sprintf("  Target:   %s\n", truncate(m.cfg.TargetURL, m.width-14)))
	b.WriteString(fmt.Sprintf("  Goal:     %s │ batch %d │ %d workers\n",
		target, m.cfg.BatchSize, m.cfg.ParallelWorkers))

	style := statusStyle(m.stats.Status)
	b.WriteString(fmt.Sprintf("  Status:   %s\n", style.Render(statusLabel(m.stats.Status))))

	if !m.stats.StartedAt.IsZero() {
		b.WriteString(fmt.Sprintf("  Started:  %s (%s)\n",
			m.stats.StartedAt.Format("15:04:05"),
			humanize.RelTime(m.stats.StartedAt, time.Now(), "ago", "from now")))
		b.WriteString(fmt.Sprintf("  Runtime:  %s\n", formatDuration(m.stats.Runtime())))
	}

	if m.stats.LastError != "" {
		b.WriteString(errorStyle.Render(fmt.Sprintf("  Last err: %s", truncate(m.stats.LastError, m.width-14))))
		b.WriteString("\n")
	}

	if m.summary != nil && !m.ctrl.Running() {
		b.WriteString(idleStyle.Render(fmt.Sprintf("  Last run: %d votes in %d batches, %s (%s)",
			m.summary.Stats.VoteCount, m.summary.Batches,
			formatDuration(m.summary.Duration), m.summary.Reason)))
		b.WriteString("\n")
	}

	return strings.TrimSuffix(b.String(), "\n")
}

func (m Model) renderLogs() string {
	var b strings.Builder
	title := "LOG"
	if m.errorsOnly {
		title = "LOG (errors only)"
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	if len(m.logs) == 0 {
		b.WriteString(idleStyle.Render("  No log entries yet. Press [s] to start a run."))
		return b.String()
	}

	window := m.logWindow()
	start := m.logScroll
	if start > maxScroll(len(m.logs), window) {
		start = maxScroll(len(m.logs), window)
	}
	end := start + window
	if end > len(m.logs) {
		end = len(m.logs)
	}

	for i := start; i < end; i++ {
		entry := m.logs[i]
		line := fmt.Sprintf("  %s %-7s %s",
			entry.Timestamp.Format("15:04:05"),
			strings.ToUpper(string(entry.Level)),
			truncate(entry.Message, m.width-22))
		b.WriteString(levelStyle(entry.Level).Render(line))
		b.WriteString("\n")
	}

	if len(m.logs) > window {
		b.WriteString(idleStyle.Render(fmt.Sprintf("  ... showing %d-%d of %d (j/k to scroll)",
			start+1, end, len(m.logs))))
		b.WriteString("\n")
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// logWindow returns how many log lines fit in the log section
func (m Model) logWindow() int {
	window := m.height - 14
	if window < 5 {
		window = 5
	}
	return window
}

func statusLabel(s domain.RunStatus) string {
	switch s {
	case domain.StatusRunning:
		return "Running"
	case domain.StatusBackingOff:
		return "Backing off"
	case domain.StatusStopped:
		return "Stopped"
	case domain.StatusCompleted:
		return "Completed"
	default:
		return "Idle"
	}
}

func statusStyle(s domain.RunStatus) lipgloss.Style {
	switch s {
	case domain.StatusRunning:
		return runningStyle
	case domain.StatusBackingOff:
		return warningStyle
	case domain.StatusCompleted:
		return successStyle
	default:
		return idleStyle
	}
}

func levelStyle(level domain.LogLevel) lipgloss.Style {
	switch level {
	case domain.LevelError:
		return errorStyle
	case domain.LevelWarn:
		return warningStyle
	case domain.LevelSuccess:
		return successStyle
	default:
		return idleStyle
	}
}

func truncate(s string, max int) string {
	if max < 4 {
		max = 4
	}
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}
