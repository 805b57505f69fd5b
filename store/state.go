package store

import (
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/yyhhyyyyyy/luban-sub002/appstate"
)

// LoadAppState reads the full project/workspace/settings snapshot.
func (s *Store) LoadAppState() (*appstate.Snapshot, error) {
	return do(s, func(conn *sqlite.Conn) (*appstate.Snapshot, error) {
		snap := &appstate.Snapshot{Settings: make(map[string]string)}

		err := sqlitex.Execute(conn,
			`SELECT id, slug, name, path, created_at FROM projects ORDER BY slug`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					snap.Projects = append(snap.Projects, appstate.Project{
						ID:        stmt.ColumnText(0),
						Slug:      stmt.ColumnText(1),
						Name:      stmt.ColumnText(2),
						Path:      stmt.ColumnText(3),
						CreatedAt: stmt.ColumnInt64(4),
					})
					return nil
				},
			})
		if err != nil {
			return nil, fmt.Errorf("loading projects: %w", err)
		}

		err = sqlitex.Execute(conn,
			`SELECT id, project_slug, name, branch, path, created_at FROM workspaces ORDER BY project_slug, name`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					snap.Workspaces = append(snap.Workspaces, appstate.Workspace{
						ID:          stmt.ColumnText(0),
						ProjectSlug: stmt.ColumnText(1),
						Name:        stmt.ColumnText(2),
						Branch:      stmt.ColumnText(3),
						Path:        stmt.ColumnText(4),
						CreatedAt:   stmt.ColumnInt64(5),
					})
					return nil
				},
			})
		if err != nil {
			return nil, fmt.Errorf("loading workspaces: %w", err)
		}

		err = sqlitex.Execute(conn,
			`SELECT key, value FROM app_settings`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					snap.Settings[stmt.ColumnText(0)] = stmt.ColumnText(1)
					return nil
				},
			})
		if err != nil {
			return nil, fmt.Errorf("loading settings: %w", err)
		}

		return snap, nil
	})
}

// SaveAppState replaces the durable snapshot: every row is upserted (insert
// preserves the creation time, update leaves it untouched) and rows absent
// from the new snapshot are deleted.
func (s *Store) SaveAppState(snap *appstate.Snapshot) error {
	_, err := do(s, func(conn *sqlite.Conn) (struct{}, error) {
		var zero struct{}
		err := withSavepoint(conn, func() error {
			now := time.Now().Unix()

			projectIDs := make([]string, 0, len(snap.Projects))
			for _, p := range snap.Projects {
				createdAt := p.CreatedAt
				if createdAt == 0 {
					createdAt = now
				}
				err := sqlitex.Execute(conn,
					`INSERT INTO projects (id, slug, name, path, created_at)
					 VALUES (?, ?, ?, ?, ?)
					 ON CONFLICT (id) DO UPDATE SET
					   slug = excluded.slug, name = excluded.name, path = excluded.path`,
					&sqlitex.ExecOptions{Args: []any{p.ID, p.Slug, p.Name, p.Path, createdAt}})
				if err != nil {
					return fmt.Errorf("upserting project %s: %w", p.Slug, err)
				}
				projectIDs = append(projectIDs, p.ID)
			}
			if err := deleteAbsent(conn, "projects", "id", projectIDs); err != nil {
				return err
			}

			workspaceIDs := make([]string, 0, len(snap.Workspaces))
			for _, ws := range snap.Workspaces {
				createdAt := ws.CreatedAt
				if createdAt == 0 {
					createdAt = now
				}
				err := sqlitex.Execute(conn,
					`INSERT INTO workspaces (id, project_slug, name, branch, path, created_at)
					 VALUES (?, ?, ?, ?, ?, ?)
					 ON CONFLICT (id) DO UPDATE SET
					   project_slug = excluded.project_slug, name = excluded.name,
					   branch = excluded.branch, path = excluded.path`,
					&sqlitex.ExecOptions{Args: []any{ws.ID, ws.ProjectSlug, ws.Name, ws.Branch, ws.Path, createdAt}})
				if err != nil {
					return fmt.Errorf("upserting workspace %s/%s: %w", ws.ProjectSlug, ws.Name, err)
				}
				workspaceIDs = append(workspaceIDs, ws.ID)
			}
			if err := deleteAbsent(conn, "workspaces", "id", workspaceIDs); err != nil {
				return err
			}

			settingKeys := make([]string, 0, len(snap.Settings))
			for key, value := range snap.Settings {
				err := sqlitex.Execute(conn,
					`INSERT INTO app_settings (key, value) VALUES (?, ?)
					 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
					&sqlitex.ExecOptions{Args: []any{key, value}})
				if err != nil {
					return fmt.Errorf("upserting setting %s: %w", key, err)
				}
				settingKeys = append(settingKeys, key)
			}
			return deleteAbsent(conn, "app_settings", "key", settingKeys)
		})
		return zero, err
	})
	return err
}

// deleteAbsent removes rows whose key column is not in keep. An empty keep
// list clears the table.
func deleteAbsent(conn *sqlite.Conn, table, column string, keep []string) error {
	var query string
	args := make([]any, len(keep))
	if len(keep) == 0 {
		query = fmt.Sprintf("DELETE FROM %s", table)
	} else {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(keep)), ", ")
		query = fmt.Sprintf("DELETE FROM %s WHERE %s NOT IN (%s)", table, column, placeholders)
		for i, key := range keep {
			args[i] = key
		}
	}
	if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
		return fmt.Errorf("pruning %s: %w", table, err)
	}
	return nil
}

// withSavepoint runs fn inside a transaction, rolling back on error.
func withSavepoint(conn *sqlite.Conn, fn func() error) (err error) {
	defer sqlitex.Save(conn)(&err)
	return fn()
}
