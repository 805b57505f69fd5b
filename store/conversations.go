package store

import (
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/yyhhyyyyyy/luban-sub002/conversation"
)

// ConversationRecord is the durable state of one conversation: the vendor's
// thread binding plus the full ordered history.
type ConversationRecord struct {
	RemoteThreadID string
	Entries        []conversation.Entry
}

// EnsureConversation creates the conversation row if it does not exist yet.
func (s *Store) EnsureConversation(key Key) error {
	_, err := do(s, func(conn *sqlite.Conn) (struct{}, error) {
		var zero struct{}
		now := time.Now().Unix()
		err := sqlitex.Execute(conn,
			`INSERT INTO conversations (project_slug, workspace_name, thread_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (project_slug, workspace_name, thread_id) DO NOTHING`,
			&sqlitex.ExecOptions{Args: []any{key.ProjectSlug, key.WorkspaceName, key.ThreadID, now, now}})
		if err != nil {
			return zero, fmt.Errorf("ensuring conversation: %w", err)
		}
		return zero, nil
	})
	return err
}

// RemoteThreadID returns the vendor-assigned thread id bound to the
// conversation, or empty if none has been recorded.
func (s *Store) RemoteThreadID(key Key) (string, error) {
	return do(s, func(conn *sqlite.Conn) (string, error) {
		return remoteThreadID(conn, key)
	})
}

// SetRemoteThreadID records the vendor-assigned thread id for resume.
func (s *Store) SetRemoteThreadID(key Key, remoteThreadID string) error {
	_, err := do(s, func(conn *sqlite.Conn) (struct{}, error) {
		var zero struct{}
		err := sqlitex.Execute(conn,
			`UPDATE conversations SET remote_thread_id = ?, updated_at = ?
			 WHERE project_slug = ? AND workspace_name = ? AND thread_id = ?`,
			&sqlitex.ExecOptions{Args: []any{
				remoteThreadID, time.Now().Unix(),
				key.ProjectSlug, key.WorkspaceName, key.ThreadID,
			}})
		if err != nil {
			return zero, fmt.Errorf("recording remote thread id: %w", err)
		}
		return zero, nil
	})
	return err
}

// AppendEntries persists a batch of entries in one transaction. Appending is
// idempotent for deduplicated kinds: an entry whose (kind, item id) pair is
// already stored for the conversation is silently skipped, and sequence
// numbers stay contiguous because the skipped insert never claims one.
func (s *Store) AppendEntries(key Key, entries []conversation.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := do(s, func(conn *sqlite.Conn) (struct{}, error) {
		var zero struct{}
		err := withSavepoint(conn, func() error {
			now := time.Now().Unix()
			for _, entry := range entries {
				if err := insertEntry(conn, key, entry, now); err != nil {
					return err
				}
			}
			err := sqlitex.Execute(conn,
				`UPDATE conversations SET updated_at = ?
				 WHERE project_slug = ? AND workspace_name = ? AND thread_id = ?`,
				&sqlitex.ExecOptions{Args: []any{now, key.ProjectSlug, key.WorkspaceName, key.ThreadID}})
			if err != nil {
				return fmt.Errorf("touching conversation: %w", err)
			}
			return nil
		})
		return zero, err
	})
	return err
}

func insertEntry(conn *sqlite.Conn, key Key, entry conversation.Entry, now int64) error {
	payload, err := conversation.MarshalEntry(entry)
	if err != nil {
		return fmt.Errorf("encoding %s entry: %w", entry.Kind(), err)
	}

	// NULL item ids are never duplicates of each other under the dedup
	// index, so only deduplicated kinds carry a non-NULL value.
	var dedupID any
	if id := entry.DedupID(); id != "" {
		dedupID = id
	}

	err = sqlitex.Execute(conn,
		`INSERT OR IGNORE INTO conversation_entries
		   (project_slug, workspace_name, thread_id, seq, kind, codex_item_id, payload, created_at)
		 VALUES (?, ?, ?,
		   (SELECT COALESCE(MAX(seq), 0) + 1 FROM conversation_entries
		    WHERE project_slug = ? AND workspace_name = ? AND thread_id = ?),
		   ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			key.ProjectSlug, key.WorkspaceName, key.ThreadID,
			key.ProjectSlug, key.WorkspaceName, key.ThreadID,
			string(entry.Kind()), dedupID, string(payload), now,
		}})
	if err != nil {
		return fmt.Errorf("appending %s entry: %w", entry.Kind(), err)
	}
	return nil
}

// LoadConversation reads the remote thread binding and the full entry history
// in sequence order. A conversation with no rows loads as an empty record.
// Entries whose payload no longer parses are skipped rather than failing the
// whole load.
func (s *Store) LoadConversation(key Key) (*ConversationRecord, error) {
	return do(s, func(conn *sqlite.Conn) (*ConversationRecord, error) {
		record := &ConversationRecord{}

		remote, err := remoteThreadID(conn, key)
		if err != nil {
			return nil, err
		}
		record.RemoteThreadID = remote

		err = sqlitex.Execute(conn,
			`SELECT kind, payload FROM conversation_entries
			 WHERE project_slug = ? AND workspace_name = ? AND thread_id = ?
			 ORDER BY seq`,
			&sqlitex.ExecOptions{
				Args: []any{key.ProjectSlug, key.WorkspaceName, key.ThreadID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					kind := conversation.EntryKind(stmt.ColumnText(0))
					entry, err := conversation.UnmarshalEntry(kind, []byte(stmt.ColumnText(1)))
					if err != nil {
						s.logger.Warn("skipping undecodable entry",
							"thread", key.ThreadID, "kind", kind, "error", err)
						return nil
					}
					record.Entries = append(record.Entries, entry)
					return nil
				},
			})
		if err != nil {
			return nil, fmt.Errorf("reading conversation entries: %w", err)
		}

		return record, nil
	})
}

// entryCount returns the number of stored entries for a conversation. Used by
// the legacy importer to decide whether history already exists.
func entryCount(conn *sqlite.Conn, key Key) (int, error) {
	var count int
	err := sqlitex.Execute(conn,
		`SELECT COUNT(*) FROM conversation_entries
		 WHERE project_slug = ? AND workspace_name = ? AND thread_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{key.ProjectSlug, key.WorkspaceName, key.ThreadID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt(0)
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return count, nil
}
