// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and adapts sync results into messages
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/harperreed/truetime-go/pkg/truetime"
)

// Controls carries user requests from the TUI to the app
type Controls struct {
	SyncRequests chan struct{}
	Quit         chan struct{}
}

// NewControls creates a control handler
func NewControls() *Controls {
	return &Controls{
		SyncRequests: make(chan struct{}, 1),
		Quit:         make(chan struct{}, 1),
	}
}

// Options configures a Model
type Options struct {
	Server   string
	Clock    truetime.Clock
	Sample   Sampler
	Controls *Controls
}

// NewModel creates a new TUI model
func NewModel(opts Options) Model {
	if opts.Clock == nil {
		opts.Clock = truetime.SystemClock{}
	}
	m := Model{
		server:   opts.Server,
		status:   "Press s to sync",
		clock:    opts.Clock,
		sample:   opts.Sample,
		controls: opts.Controls,
	}
	m.localMs = m.clock.WallClockMs()
	return m
}

// Run creates the TUI program; the caller runs it
func Run(opts Options) *tea.Program {
	return tea.NewProgram(NewModel(opts), tea.WithAltScreen())
}

// NewObserver forwards sync results to send, typically (*tea.Program).Send
func NewObserver(send func(tea.Msg)) truetime.Observer {
	return truetime.ObserverFuncs{
		Succeeded: func(est truetime.Estimate) { send(SyncSucceededMsg{Estimate: est}) },
		Failed:    func(err error) { send(SyncFailedMsg{Err: err}) },
	}
}
