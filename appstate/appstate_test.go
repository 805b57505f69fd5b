package appstate

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSnapshot(t *testing.T) {
	t.Run("missing file returns empty snapshot", func(t *testing.T) {
		snap, err := LoadSnapshot(filepath.Join(t.TempDir(), "absent.yaml"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(snap.Projects) != 0 || len(snap.Workspaces) != 0 {
			t.Errorf("expected empty snapshot, got %+v", snap)
		}
	})

	t.Run("valid yaml file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.yaml")
		content := `
projects:
  - id: p1
    slug: alpha
    name: Alpha
    path: /src/alpha
workspaces:
  - id: w1
    project_slug: alpha
    name: main
    branch: main
    path: /src/alpha
settings:
  theme: dark
`
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write snapshot: %v", err)
		}

		snap, err := LoadSnapshot(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(snap.Projects) != 1 || snap.Projects[0].Slug != "alpha" {
			t.Errorf("unexpected projects: %+v", snap.Projects)
		}
		if snap.Settings["theme"] != "dark" {
			t.Errorf("Settings[theme] = %q, want dark", snap.Settings["theme"])
		}

		ws, ok := snap.FindWorkspace("alpha", "main")
		if !ok || ws.ID != "w1" {
			t.Errorf("FindWorkspace = %+v, %v", ws, ok)
		}
		if _, ok := snap.FindWorkspace("alpha", "other"); ok {
			t.Error("FindWorkspace found a workspace that does not exist")
		}
	})

	t.Run("malformed yaml is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte("projects: [broken"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadSnapshot(path); err == nil {
			t.Error("expected parse error")
		}
	})
}
