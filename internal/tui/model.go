// Package tui renders the menu and the live output view in the terminal
// and drives the engine from key presses. Output reaches the update loop
// as messages via a sink; the view never talks to the pump goroutines.
package tui

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"cmdmenu/internal/config"
	"cmdmenu/internal/engine"
	"cmdmenu/internal/menu"
)

type screen int

const (
	screenMenu screen = iota
	screenOutput
	screenHelp
)

// Model is the Bubble Tea model for the whole application.
type Model struct {
	cfg    *config.Config
	reg    *engine.Registry
	logger *slog.Logger

	width  int
	height int

	screen screen
	menu   *menu.Model

	// output view
	vp         viewport.Model
	vpReady    bool
	input      textinput.Model
	session    engine.Session
	output     strings.Builder
	finished   bool
	exitStatus string

	// help view
	helpTitle string
	helpBody  string

	status string
}

// New builds the application model. The registry's sinks are wired by the
// caller; the model only issues launch, input, and kill requests.
func New(cfg *config.Config, reg *engine.Registry, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	ti := textinput.New()
	ti.Placeholder = "stdin (enter to send)"
	ti.Prompt = "> "
	ti.CharLimit = 4096

	return &Model{
		cfg:    cfg,
		reg:    reg,
		logger: logger,
		menu:   menu.New(cfg.MenuItems),
		input:  ti,
	}
}

// configReloadedMsg carries a freshly loaded config from the file watcher.
type configReloadedMsg struct {
	cfg *config.Config
}

// ConfigReloaded wraps a new config for delivery via Program.Send.
func ConfigReloaded(cfg *config.Config) tea.Msg {
	return configReloadedMsg{cfg: cfg}
}

type launchResultMsg struct {
	session engine.Session
	err     error
}

type killResultMsg struct {
	err error
}

func (m *Model) launchCmd(command string) tea.Cmd {
	return func() tea.Msg {
		sess, err := m.reg.Launch(command)
		return launchResultMsg{session: sess, err: err}
	}
}

// killCmd runs Kill off the update loop; it blocks for up to two grace
// periods when the process ignores signals.
func (m *Model) killCmd(id string) tea.Cmd {
	return func() tea.Msg {
		return killResultMsg{err: m.reg.Kill(id)}
	}
}

func (m *Model) Init() tea.Cmd { return nil }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()
		return m, nil

	case tea.KeyMsg:
		switch m.screen {
		case screenMenu:
			return m.updateMenuKeys(msg)
		case screenOutput:
			return m.updateOutputKeys(msg)
		case screenHelp:
			switch msg.String() {
			case "esc", "q", "enter":
				m.screen = screenMenu
			}
			return m, nil
		}
		return m, nil

	case launchResultMsg:
		if msg.err != nil {
			m.screen = screenMenu
			m.status = launchErrorStatus(msg.err)
			return m, nil
		}
		return m, nil

	case killResultMsg:
		if msg.err != nil {
			m.status = "kill: " + msg.err.Error()
		}
		return m, nil

	case engineEventMsg:
		return m.updateEngineEvent(msg.event)

	case configReloadedMsg:
		m.cfg = msg.cfg
		m.menu.Reset(msg.cfg.MenuItems)
		if m.screen == screenHelp {
			m.screen = screenMenu
		}
		m.status = "configuration reloaded"
		return m, nil
	}
	return m, nil
}

func (m *Model) updateMenuKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.status = ""
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		m.menu.MoveUp()
	case "down", "j":
		m.menu.MoveDown()
	case "esc", "left":
		m.menu.Back()
	case "?", "h":
		if item, ok := m.menu.SelectedItem(); ok && item.Help != "" {
			m.showHelp(item)
		}
	case "enter", "right":
		if m.menu.ExitSelected() {
			return m, tea.Quit
		}
		if m.menu.AtMain() {
			m.menu.Enter()
			return m, nil
		}
		item, ok := m.menu.SelectedItem()
		if !ok {
			return m, nil
		}
		m.beginOutput(item)
		return m, m.launchCmd(item.Command)
	}
	return m, nil
}

func (m *Model) updateOutputKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "ctrl+k":
		if !m.finished && m.session.ID != "" {
			m.status = "stopping..."
			return m, m.killCmd(m.session.ID)
		}
		return m, nil
	case "esc", "q":
		// the menu comes back only once the command is done
		if m.finished {
			m.screen = screenMenu
			m.input.Blur()
		}
		return m, nil
	case "enter":
		if m.finished || m.session.ID == "" {
			return m, nil
		}
		text := m.input.Value()
		m.input.SetValue("")
		if err := m.reg.SendInput(m.session.ID, text); err != nil {
			m.status = "input: " + err.Error()
		}
		return m, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.vp, cmd = m.vp.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) updateEngineEvent(ev engine.Event) (tea.Model, tea.Cmd) {
	// A session launched from another surface (the mirror) pulls the TUI
	// into the output view too.
	if ev.Kind == engine.EventStarted && ev.SessionID != m.session.ID {
		m.session = engine.Session{ID: ev.SessionID, Command: ev.Command, PID: ev.PID}
		m.output.Reset()
		m.finished = false
		m.exitStatus = ""
		m.status = ""
		m.screen = screenOutput
		m.input.Reset()
		m.input.Focus()
		m.refreshViewport()
		return m, nil
	}
	if ev.SessionID != m.session.ID {
		return m, nil
	}

	switch ev.Kind {
	case engine.EventChunk:
		if ev.Chunk != nil {
			text := ev.Chunk.Text
			if ev.Chunk.Stream == engine.StreamStderr {
				if trimmed, ok := strings.CutSuffix(text, "\n"); ok {
					text = stderrStyle.Render(trimmed) + "\n"
				} else {
					text = stderrStyle.Render(text)
				}
			}
			m.output.WriteString(text)
			m.refreshViewport()
		}
	case engine.EventExited:
		m.finished = true
		if ev.ExitCode == 0 {
			m.exitStatus = stateDoneStyle.Render("exited 0")
		} else {
			m.exitStatus = stateFailedStyle.Render(fmt.Sprintf("exited %d", ev.ExitCode))
		}
		m.input.Blur()
	case engine.EventKilled:
		m.finished = true
		m.exitStatus = stateFailedStyle.Render("killed")
		m.input.Blur()
	case engine.EventFailed:
		m.finished = true
		m.exitStatus = stateFailedStyle.Render("failed: " + ev.Reason)
		m.input.Blur()
	}
	return m, nil
}

func (m *Model) beginOutput(item config.Item) {
	m.session = engine.Session{Command: item.Command}
	m.output.Reset()
	m.finished = false
	m.exitStatus = ""
	m.status = ""
	m.screen = screenOutput
	m.input.Reset()
	m.input.Focus()
	m.refreshViewport()
}

func (m *Model) showHelp(item config.Item) {
	m.helpTitle = item.Name
	m.helpBody = renderHelp(item.Help, m.contentWidth())
	m.screen = screenHelp
}

// renderHelp renders markdown help text, falling back to the raw text when
// the renderer is unavailable.
func renderHelp(markdown string, width int) string {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return markdown
	}
	out, err := r.Render(markdown)
	if err != nil {
		return markdown
	}
	return out
}

func (m *Model) contentWidth() int {
	if m.width <= 0 {
		return 80
	}
	w := m.width - 4
	if w < 20 {
		w = 20
	}
	return w
}

func (m *Model) resizeViewport() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	// header + input box + status line
	h := m.height - 8
	if h < 3 {
		h = 3
	}
	w := m.contentWidth()
	if !m.vpReady {
		m.vp = viewport.New(w, h)
		m.vpReady = true
	} else {
		m.vp.Width = w
		m.vp.Height = h
	}
	m.input.Width = w - 4
	m.refreshViewport()
}

func (m *Model) refreshViewport() {
	if !m.vpReady {
		return
	}
	m.vp.SetContent(m.output.String())
	m.vp.GotoBottom()
}

func (m *Model) View() string {
	switch m.screen {
	case screenMenu:
		return m.viewMenu()
	case screenOutput:
		return m.viewOutput()
	case screenHelp:
		return m.viewHelp()
	}
	return ""
}

func (m *Model) viewMenu() string {
	var b strings.Builder
	if m.cfg.Logo != "" {
		b.WriteString(logoStyle.Render(m.cfg.Logo))
		b.WriteString("\n")
	}
	title := m.cfg.MenuTitle
	if !m.menu.AtMain() {
		title = m.cfg.MenuTitle + " / " + m.menu.Section().Name
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	if m.menu.AtMain() {
		for i, section := range m.menu.Sections() {
			b.WriteString(m.renderEntry(section.Name, i == m.menu.Cursor()))
			b.WriteString("\n")
		}
		b.WriteString(m.renderEntry("Exit", m.menu.ExitSelected()))
		b.WriteString("\n")
	} else {
		for i, item := range m.menu.Section().Items {
			line := item.Name
			if i == m.menu.Cursor() {
				line += "  " + commandStyle.Render(item.Command)
			}
			b.WriteString(m.renderEntry(line, i == m.menu.Cursor()))
			b.WriteString("\n")
		}
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	hints := "↑/↓ move · enter select · q quit"
	if !m.menu.AtMain() {
		hints = "↑/↓ move · enter run · ? help · esc back · q quit"
	}
	b.WriteString(helpStyle.Render(hints))
	return b.String()
}

func (m *Model) renderEntry(label string, selected bool) string {
	if selected {
		return entrySelectedStyle.Render("> " + label)
	}
	return entryStyle.Render(label)
}

func (m *Model) viewOutput() string {
	state := stateRunningStyle.Render("running")
	if m.finished {
		state = m.exitStatus
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		commandStyle.Render(m.session.Command),
		"  ",
		state,
	)

	body := outputBoxStyle.Render(m.vp.View())

	var footer string
	if m.finished {
		footer = helpStyle.Render("esc back to menu · ctrl+c quit")
	} else {
		footer = inputBoxStyle.Render(m.input.View()) + "\n" +
			helpStyle.Render("enter send input · ctrl+k stop · ctrl+c quit")
	}

	parts := []string{header, body, footer}
	if m.status != "" {
		parts = append(parts, errorStyle.Render(m.status))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *Model) viewHelp() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(m.helpTitle),
		m.helpBody,
		helpStyle.Render("esc back"),
	)
}

func launchErrorStatus(err error) string {
	var launchErr *engine.LaunchError
	switch {
	case errors.Is(err, engine.ErrAlreadyRunning):
		return "a command is already running"
	case errors.As(err, &launchErr):
		return "launch failed: " + launchErr.Err.Error()
	default:
		return "launch failed: " + err.Error()
	}
}

// NewProgram wires the model, the engine sink, and the terminal together.
// Sessions launched from any surface are attached to the program via the
// registry's launch hook. The caller runs the returned program; it can
// also Send messages (such as ConfigReloaded) into it.
func NewProgram(cfg *config.Config, reg *engine.Registry, logger *slog.Logger, extra ...tea.ProgramOption) *tea.Program {
	m := New(cfg, reg, logger)
	sink := &programSink{}
	reg.OnLaunch(func(sess engine.Session) {
		reg.Attach(sess.ID, sink)
	})

	opts := append([]tea.ProgramOption{tea.WithAltScreen()}, extra...)
	p := tea.NewProgram(m, opts...)
	sink.Bind(p)
	return p
}
