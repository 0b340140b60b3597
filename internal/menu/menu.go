// Package menu models the navigable menu built from a config: a main page
// of section buttons, one page per section listing its command items, and
// back navigation. It carries no rendering or execution concerns.
package menu

import "cmdmenu/internal/config"

// Model tracks which page is showing and which entry is highlighted.
type Model struct {
	sections []config.Section

	section int // index into sections, -1 on the main page
	cursor  int
}

// New builds a menu model from the configured sections.
func New(sections []config.Section) *Model {
	return &Model{sections: sections, section: -1}
}

// AtMain reports whether the main page is showing.
func (m *Model) AtMain() bool { return m.section < 0 }

// Sections returns the top-level sections.
func (m *Model) Sections() []config.Section { return m.sections }

// Section returns the currently open section. Only valid when !AtMain().
func (m *Model) Section() config.Section { return m.sections[m.section] }

// Cursor returns the highlighted entry index on the current page. On the
// main page the entry one past the last section is the exit button.
func (m *Model) Cursor() int { return m.cursor }

// Len returns the number of selectable entries on the current page.
func (m *Model) Len() int {
	if m.AtMain() {
		return len(m.sections) + 1 // trailing exit entry
	}
	return len(m.Section().Items)
}

// MoveUp moves the highlight up, stopping at the top.
func (m *Model) MoveUp() {
	if m.cursor > 0 {
		m.cursor--
	}
}

// MoveDown moves the highlight down, stopping at the bottom.
func (m *Model) MoveDown() {
	if m.cursor < m.Len()-1 {
		m.cursor++
	}
}

// ExitSelected reports whether the highlighted main-page entry is the exit
// button.
func (m *Model) ExitSelected() bool {
	return m.AtMain() && m.cursor == len(m.sections)
}

// Enter opens the highlighted section. It is a no-op on a section page or
// on the exit entry.
func (m *Model) Enter() {
	if !m.AtMain() || m.ExitSelected() {
		return
	}
	m.section = m.cursor
	m.cursor = 0
}

// Back returns to the main page, restoring the highlight to the section
// that was open.
func (m *Model) Back() {
	if m.AtMain() {
		return
	}
	m.cursor = m.section
	m.section = -1
}

// SelectedItem returns the highlighted command item on a section page.
func (m *Model) SelectedItem() (config.Item, bool) {
	if m.AtMain() {
		return config.Item{}, false
	}
	items := m.Section().Items
	if m.cursor >= len(items) {
		return config.Item{}, false
	}
	return items[m.cursor], true
}

// Reset replaces the sections (after a config reload) and returns to the
// main page.
func (m *Model) Reset(sections []config.Section) {
	m.sections = sections
	m.section = -1
	m.cursor = 0
}
