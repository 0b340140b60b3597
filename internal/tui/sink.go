package tui

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"cmdmenu/internal/engine"
)

// engineEventMsg wraps one engine event for the update loop.
type engineEventMsg struct {
	event engine.Event
}

// programSink forwards engine events into a running Bubble Tea program.
// Deliver may fire before the program exists (the registry can launch
// before Run is called), so the pointer is bound late and events arriving
// before Bind are dropped; the viewport catches up from the retained
// history when the sink attaches.
type programSink struct {
	program atomic.Pointer[tea.Program]
}

func (s *programSink) Bind(p *tea.Program) {
	s.program.Store(p)
}

func (s *programSink) Deliver(ev engine.Event) {
	if p := s.program.Load(); p != nil {
		p.Send(engineEventMsg{event: ev})
	}
}
