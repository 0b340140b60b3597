package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Full(t *testing.T) {
	path := writeConfig(t, `
menu_title: Ops Menu
shell: /bin/bash
retention_lines: 200
mirror:
  enabled: true
menu_items:
  - name: System
    items:
      - name: Disk usage
        command: df -h
        help: |
          Shows disk usage per filesystem.
      - name: Uptime
        command: uptime
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.MenuTitle != "Ops Menu" {
		t.Errorf("MenuTitle = %q", cfg.MenuTitle)
	}
	if cfg.Shell != "/bin/bash" {
		t.Errorf("Shell = %q", cfg.Shell)
	}
	if cfg.RetentionLines != 200 {
		t.Errorf("RetentionLines = %d", cfg.RetentionLines)
	}
	if !cfg.Mirror.Enabled || cfg.Mirror.Listen != DefaultMirrorAddr {
		t.Errorf("Mirror = %+v, want enabled with default listen addr", cfg.Mirror)
	}
	if len(cfg.MenuItems) != 1 || len(cfg.MenuItems[0].Items) != 2 {
		t.Fatalf("unexpected menu shape: %+v", cfg.MenuItems)
	}
	if cfg.MenuItems[0].Items[0].Command != "df -h" {
		t.Errorf("command = %q", cfg.MenuItems[0].Items[0].Command)
	}
	if !strings.Contains(cfg.MenuItems[0].Items[0].Help, "disk usage") {
		t.Errorf("help not preserved: %q", cfg.MenuItems[0].Items[0].Help)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
menu_items:
  - name: Basics
    items:
      - name: Hello
        command: echo hello
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.MenuTitle != "Menu Application" {
		t.Errorf("MenuTitle default = %q", cfg.MenuTitle)
	}
	if cfg.RetentionLines != DefaultRetentionLines {
		t.Errorf("RetentionLines default = %d", cfg.RetentionLines)
	}
	if cfg.Shell == "" {
		t.Error("Shell default is empty")
	}
	if cfg.Mirror.Enabled {
		t.Error("Mirror should be disabled by default")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "menu_title: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "section without name",
			yaml: `
menu_items:
  - items:
      - name: X
        command: echo x
`,
			wantErr: "missing name",
		},
		{
			name: "section without items",
			yaml: `
menu_items:
  - name: Empty
`,
			wantErr: "no items",
		},
		{
			name: "item without command",
			yaml: `
menu_items:
  - name: S
    items:
      - name: Broken
`,
			wantErr: "missing command",
		},
		{
			name: "item without name",
			yaml: `
menu_items:
  - name: S
    items:
      - command: echo x
`,
			wantErr: "missing name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
