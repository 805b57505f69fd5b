// Package appstate defines the project/workspace/settings snapshot shared by
// the persistence layer and the CLI.
package appstate

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Project is a tracked repository root.
type Project struct {
	ID        string `json:"id" yaml:"id"`
	Slug      string `json:"slug" yaml:"slug"`
	Name      string `json:"name" yaml:"name"`
	Path      string `json:"path" yaml:"path"`
	CreatedAt int64  `json:"created_at" yaml:"created_at,omitempty"`
}

// Workspace is a git worktree + branch pairing hosting conversation threads.
type Workspace struct {
	ID          string `json:"id" yaml:"id"`
	ProjectSlug string `json:"project_slug" yaml:"project_slug"`
	Name        string `json:"name" yaml:"name"`
	Branch      string `json:"branch" yaml:"branch,omitempty"`
	Path        string `json:"path" yaml:"path"`
	CreatedAt   int64  `json:"created_at" yaml:"created_at,omitempty"`
}

// Snapshot is the full durable application state, replaced wholesale on save.
type Snapshot struct {
	Projects   []Project         `json:"projects" yaml:"projects"`
	Workspaces []Workspace       `json:"workspaces" yaml:"workspaces"`
	Settings   map[string]string `json:"settings" yaml:"settings,omitempty"`
}

// LoadSnapshot reads a snapshot from a YAML file. A missing file yields an
// empty snapshot.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Snapshot{}, nil
	}
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &snap, nil
}

// FindWorkspace returns the workspace with the given project slug and name.
func (s *Snapshot) FindWorkspace(projectSlug, name string) (Workspace, bool) {
	for _, ws := range s.Workspaces {
		if ws.ProjectSlug == projectSlug && ws.Name == name {
			return ws, true
		}
	}
	return Workspace{}, false
}
