// ABOUTME: Bubbletea model for the true-time display
// ABOUTME: Defines display state, key handling and rendering
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/harperreed/truetime-go/pkg/truetime"
)

const (
	// RefreshInterval is how often local and true time are redrawn
	RefreshInterval = 100 * time.Millisecond

	timeLayout = "2006-01-02 15:04:05.000"
	boxWidth   = 54
)

// Sampler recomputes the current estimate, reporting false before the first sync
type Sampler func() (truetime.Estimate, bool)

// Model represents the TUI state
type Model struct {
	// Source
	server string

	// Sync
	syncing  bool
	status   string
	lastErr  error
	estimate truetime.Estimate
	synced   bool
	syncs    int

	// Clocks
	clock    truetime.Clock
	sample   Sampler
	localMs  int64
	location *time.Location

	// Debug
	showDebug bool

	controls *Controls

	// Dimensions
	width  int
	height int
}

// tickMsg drives the periodic redraw
type tickMsg time.Time

// SyncStartedMsg reports that an attempt is in flight
type SyncStartedMsg struct {
	Server string
}

// SyncSucceededMsg reports a successful attempt
type SyncSucceededMsg struct {
	Estimate truetime.Estimate
}

// SyncFailedMsg reports a failed attempt
type SyncFailedMsg struct {
	Err error
}

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the redraw ticker
func (m Model) Init() tea.Cmd {
	return tick()
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		m.refresh()
		return m, tick()
	case SyncStartedMsg:
		m.syncing = true
		if msg.Server != "" {
			m.server = msg.Server
		}
		m.status = fmt.Sprintf("Connecting to %s...", m.server)
	case SyncSucceededMsg:
		m.syncing = false
		m.synced = true
		m.syncs++
		m.lastErr = nil
		m.estimate = msg.Estimate
		m.localMs = msg.Estimate.WallClockMs
		m.status = fmt.Sprintf("Synced with %s", m.server)
	case SyncFailedMsg:
		m.syncing = false
		m.lastErr = msg.Err
		m.status = fmt.Sprintf("Sync failed: %v", msg.Err)
	}

	return m, nil
}

// refresh resamples local time and the current estimate
func (m *Model) refresh() {
	if m.sample != nil {
		if est, ok := m.sample(); ok {
			m.estimate = est
			m.synced = true
			m.localMs = est.WallClockMs
			return
		}
	}
	if m.clock != nil {
		m.localMs = m.clock.WallClockMs()
	}
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := m.renderHeader()
	s += m.renderTimes()
	if m.showDebug {
		s += m.renderDebug()
	}
	s += m.renderHelp()
	return s
}

// renderHeader renders server and sync status
func (m Model) renderHeader() string {
	return border("┌", "┐", "Truetime") +
		line("Server: %s", m.server) +
		line("Status: %s", m.status) +
		border("├", "┤", "")
}

// renderTimes renders local time, true time and drift
func (m Model) renderTimes() string {
	s := line("Local time: %s", m.formatTime(m.localMs))
	if !m.synced {
		s += line("True time:  %s", "not synced")
		s += line("Drift:      %s", "-")
		return s
	}

	s += line("True time:  %s", m.formatTime(m.estimate.EstimatedTrueTimeMs))
	s += line("Drift:      %s", DriftText(m.estimate.DriftMs))
	return s
}

// renderDebug renders raw anchor values
func (m Model) renderDebug() string {
	lastErr := "-"
	if m.lastErr != nil {
		lastErr = m.lastErr.Error()
	}
	return border("├", "┤", "") +
		line("DEBUG:") +
		line("  Drift:         %dms", m.estimate.DriftMs) +
		line("  Boot relative: %dms", m.estimate.BootRelative) +
		line("  Monotonic:     %dms", m.estimate.MonotonicMs) +
		line("  Syncs:         %d", m.syncs) +
		line("  Last error:    %s", lastErr)
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	syncKey := "s:Sync"
	if m.syncing {
		syncKey = "s:Syncing..."
	}
	return border("├", "┤", "") +
		line("%s  d:Debug  q:Quit", syncKey) +
		border("└", "┘", "")
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.controls != nil {
			select {
			case m.controls.Quit <- struct{}{}:
			default:
			}
		}
		return m, tea.Quit
	case "s", "enter":
		// Disabled until the current attempt resolves.
		if m.syncing || m.controls == nil {
			return m, nil
		}
		select {
		case m.controls.SyncRequests <- struct{}{}:
			m.syncing = true
			m.status = fmt.Sprintf("Connecting to %s...", m.server)
		default:
		}
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

func (m Model) formatTime(ms int64) string {
	loc := m.location
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(ms).In(loc).Format(timeLayout)
}

// DriftText describes drift in seconds and which way the local clock is off
func DriftText(driftMs int64) string {
	seconds := float64(driftMs) / 1000
	switch {
	case driftMs > 0:
		return fmt.Sprintf("%+.3fs (local lags)", seconds)
	case driftMs < 0:
		return fmt.Sprintf("%.3fs (local ahead)", seconds)
	default:
		return "0s (exact match)"
	}
}

// border renders a horizontal rule with an optional title
func border(left, right, title string) string {
	if title == "" {
		return left + strings.Repeat("─", boxWidth) + right + "\n"
	}
	title = "─ " + title + " "
	return left + title + strings.Repeat("─", boxWidth-len([]rune(title))) + right + "\n"
}

// line renders one padded row of the box
func line(format string, args ...interface{}) string {
	text := truncate(fmt.Sprintf(format, args...), boxWidth-2)
	return fmt.Sprintf("│ %s%s │\n", text, strings.Repeat(" ", boxWidth-2-len([]rune(text))))
}

func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length-3]) + "..."
}
