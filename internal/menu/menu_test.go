package menu

import (
	"testing"

	"cmdmenu/internal/config"
)

func testSections() []config.Section {
	return []config.Section{
		{
			Name: "System",
			Items: []config.Item{
				{Name: "Disk", Command: "df -h"},
				{Name: "Uptime", Command: "uptime"},
			},
		},
		{
			Name: "Network",
			Items: []config.Item{
				{Name: "Interfaces", Command: "ip addr"},
			},
		},
	}
}

func TestNavigation(t *testing.T) {
	m := New(testSections())

	if !m.AtMain() {
		t.Fatal("expected main page initially")
	}
	if m.Len() != 3 {
		t.Errorf("main page Len = %d, want 3 (2 sections + exit)", m.Len())
	}

	m.MoveDown()
	m.Enter()
	if m.AtMain() {
		t.Fatal("expected section page after Enter")
	}
	if m.Section().Name != "Network" {
		t.Errorf("open section = %s, want Network", m.Section().Name)
	}
	if m.Cursor() != 0 {
		t.Errorf("cursor = %d, want 0 after entering section", m.Cursor())
	}

	item, ok := m.SelectedItem()
	if !ok || item.Command != "ip addr" {
		t.Errorf("selected item = %+v ok=%v", item, ok)
	}

	m.Back()
	if !m.AtMain() {
		t.Fatal("expected main page after Back")
	}
	if m.Cursor() != 1 {
		t.Errorf("cursor = %d, want 1 (restored to Network)", m.Cursor())
	}
}

func TestCursorBounds(t *testing.T) {
	m := New(testSections())

	m.MoveUp()
	if m.Cursor() != 0 {
		t.Errorf("cursor = %d, want 0 after MoveUp at top", m.Cursor())
	}

	for i := 0; i < 10; i++ {
		m.MoveDown()
	}
	if m.Cursor() != 2 {
		t.Errorf("cursor = %d, want 2 at bottom", m.Cursor())
	}
}

func TestExitEntry(t *testing.T) {
	m := New(testSections())

	m.MoveDown()
	m.MoveDown()
	if !m.ExitSelected() {
		t.Fatal("expected exit entry selected at bottom of main page")
	}

	// Enter on exit is a no-op for navigation.
	m.Enter()
	if !m.AtMain() {
		t.Error("Enter on exit entry should not open a section")
	}

	if _, ok := m.SelectedItem(); ok {
		t.Error("SelectedItem on main page should report not ok")
	}
}

func TestBackOnMainIsNoop(t *testing.T) {
	m := New(testSections())
	m.MoveDown()
	m.Back()
	if !m.AtMain() || m.Cursor() != 1 {
		t.Errorf("Back on main page changed state: cursor=%d", m.Cursor())
	}
}

func TestReset(t *testing.T) {
	m := New(testSections())
	m.Enter()

	m.Reset([]config.Section{{Name: "Only", Items: []config.Item{{Name: "A", Command: "true"}}}})
	if !m.AtMain() {
		t.Error("expected main page after Reset")
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2 (1 section + exit)", m.Len())
	}
}
