package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/yyhhyyyyyy/luban-sub002/agentstream"
	"github.com/yyhhyyyyyy/luban-sub002/conversation"
)

// legacyScopePrefix marks item ids rewritten by the importer. Its presence in
// stored history means a scoped import already ran.
const legacyScopePrefix = "legacy-"

// legacyLine is one record of the old JSON-lines event log.
type legacyLine struct {
	Type        string                    `json:"type"`
	Text        string                    `json:"text,omitempty"`
	Attachments []conversation.Attachment `json:"attachments,omitempty"`
	Item        json.RawMessage           `json:"item,omitempty"`
	Usage       *agentstream.TurnUsage    `json:"usage,omitempty"`
	DurationMs  int64                     `json:"duration_ms,omitempty"`
	Message     string                    `json:"message,omitempty"`
}

// legacyLog is a parsed legacy event log plus the statistics the repair
// heuristics need.
type legacyLog struct {
	entries      []conversation.Entry
	userMessages int
	duplicateIDs bool
	skippedLines int
}

// ImportLegacyIfEmpty imports an old JSON-lines event log into a conversation
// that has no stored entries and no remote thread binding. Bare item ids from
// the legacy format are rewritten into turn-scoped ids so that ids reused
// across turns (which the legacy format never guarded against) cannot collide
// under the dedup index. Returns the number of entries imported; zero with a
// nil error means the conversation was not empty or the log had nothing to
// import.
func (s *Store) ImportLegacyIfEmpty(key Key, logPath string) (int, error) {
	log, err := parseLegacyLog(logPath)
	if err != nil {
		return 0, err
	}
	if log.skippedLines > 0 {
		s.logger.Warn("legacy log contained undecodable lines",
			"path", logPath, "skipped", log.skippedLines)
	}

	return do(s, func(conn *sqlite.Conn) (int, error) {
		count, err := entryCount(conn, key)
		if err != nil {
			return 0, err
		}
		remote, err := remoteThreadID(conn, key)
		if err != nil {
			return 0, err
		}
		if count > 0 || remote != "" {
			return 0, nil
		}
		return importLegacyEntries(conn, key, log.entries)
	})
}

// RepairLegacyImport replaces a conversation's entries with a fresh scoped
// import when the stored history looks like the output of the earlier,
// unscoped importer. The heuristics all have to agree: the legacy source
// reuses bare item ids across turns, no stored id carries a scope prefix, and
// re-importing would recover at least as many user messages as are currently
// stored. Returns the number of entries after repair, or zero if no repair
// was warranted.
func (s *Store) RepairLegacyImport(key Key, logPath string) (int, error) {
	log, err := parseLegacyLog(logPath)
	if err != nil {
		return 0, err
	}
	if !log.duplicateIDs {
		return 0, nil
	}

	return do(s, func(conn *sqlite.Conn) (int, error) {
		scoped, storedUserMessages, err := storedImportShape(conn, key)
		if err != nil {
			return 0, err
		}
		if scoped || log.userMessages < storedUserMessages {
			return 0, nil
		}

		var imported int
		err = withSavepoint(conn, func() error {
			err := sqlitex.Execute(conn,
				`DELETE FROM conversation_entries
				 WHERE project_slug = ? AND workspace_name = ? AND thread_id = ?`,
				&sqlitex.ExecOptions{Args: []any{key.ProjectSlug, key.WorkspaceName, key.ThreadID}})
			if err != nil {
				return fmt.Errorf("clearing entries for repair: %w", err)
			}
			imported, err = importLegacyEntriesTx(conn, key, log.entries)
			return err
		})
		if err != nil {
			return 0, err
		}
		s.logger.Info("repaired legacy import",
			"thread", key.ThreadID, "entries", imported)
		return imported, nil
	})
}

func importLegacyEntries(conn *sqlite.Conn, key Key, entries []conversation.Entry) (int, error) {
	var imported int
	err := withSavepoint(conn, func() error {
		var err error
		imported, err = importLegacyEntriesTx(conn, key, entries)
		return err
	})
	if err != nil {
		return 0, err
	}
	return imported, nil
}

func importLegacyEntriesTx(conn *sqlite.Conn, key Key, entries []conversation.Entry) (int, error) {
	now := time.Now().Unix()
	err := sqlitex.Execute(conn,
		`INSERT INTO conversations (project_slug, workspace_name, thread_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (project_slug, workspace_name, thread_id) DO NOTHING`,
		&sqlitex.ExecOptions{Args: []any{key.ProjectSlug, key.WorkspaceName, key.ThreadID, now, now}})
	if err != nil {
		return 0, fmt.Errorf("ensuring conversation: %w", err)
	}
	for _, entry := range entries {
		if err := insertEntry(conn, key, entry, now); err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}

// parseLegacyLog reads a legacy JSON-lines log, rewriting item ids into
// turn-scoped ids. Items emitted before the first user message get the
// "legacy-preamble/" scope; items after the Nth user message get
// "legacy-turn-N/". Undecodable lines are counted and skipped.
func parseLegacyLog(path string) (*legacyLog, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening legacy log: %w", err)
	}
	defer file.Close()

	log := &legacyLog{}
	seenIDs := make(map[string]struct{})
	scope := legacyScopePrefix + "preamble/"
	turn := 0

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var line legacyLine
		if err := json.Unmarshal([]byte(text), &line); err != nil {
			log.skippedLines++
			continue
		}

		switch line.Type {
		case "user_message":
			turn++
			scope = fmt.Sprintf("%sturn-%d/", legacyScopePrefix, turn)
			log.userMessages++
			log.entries = append(log.entries, conversation.UserMessageEntry{
				Text:        line.Text,
				Attachments: line.Attachments,
			})

		case "item":
			item, err := rescopeLegacyItem(line.Item, scope, seenIDs, log)
			if err != nil {
				log.skippedLines++
				continue
			}
			log.entries = append(log.entries, conversation.ItemEntry{Item: item})

		case "turn_completed":
			log.entries = append(log.entries, conversation.TurnUsageEntry{Usage: line.Usage})

		case "turn_duration":
			log.entries = append(log.entries, conversation.TurnDurationEntry{DurationMs: line.DurationMs})

		case "turn_error":
			log.entries = append(log.entries, conversation.TurnErrorEntry{Message: line.Message})

		default:
			log.skippedLines++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading legacy log: %w", err)
	}
	return log, nil
}

// rescopeLegacyItem prefixes the item's bare id with the current turn scope
// and records whether the bare id was already seen in an earlier turn.
func rescopeLegacyItem(raw json.RawMessage, scope string, seenIDs map[string]struct{}, log *legacyLog) (agentstream.ThreadItem, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}

	id, _ := fields["id"].(string)
	if id != "" {
		if _, dup := seenIDs[id]; dup {
			log.duplicateIDs = true
		}
		seenIDs[id] = struct{}{}
	}
	fields["id"] = scope + id

	rescoped, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return agentstream.UnmarshalItem(rescoped)
}

// storedImportShape reports whether any stored item id carries a legacy scope
// prefix and how many user messages are stored.
func storedImportShape(conn *sqlite.Conn, key Key) (scoped bool, userMessages int, err error) {
	err = sqlitex.Execute(conn,
		`SELECT kind, codex_item_id FROM conversation_entries
		 WHERE project_slug = ? AND workspace_name = ? AND thread_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{key.ProjectSlug, key.WorkspaceName, key.ThreadID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				switch conversation.EntryKind(stmt.ColumnText(0)) {
				case conversation.EntryKindUserMessage:
					userMessages++
				case conversation.EntryKindItem:
					if strings.HasPrefix(stmt.ColumnText(1), legacyScopePrefix) {
						scoped = true
					}
				}
				return nil
			},
		})
	if err != nil {
		return false, 0, fmt.Errorf("inspecting stored entries: %w", err)
	}
	return scoped, userMessages, nil
}

func remoteThreadID(conn *sqlite.Conn, key Key) (string, error) {
	var remote string
	err := sqlitex.Execute(conn,
		`SELECT remote_thread_id FROM conversations
		 WHERE project_slug = ? AND workspace_name = ? AND thread_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{key.ProjectSlug, key.WorkspaceName, key.ThreadID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				remote = stmt.ColumnText(0)
				return nil
			},
		})
	if err != nil {
		return "", fmt.Errorf("reading remote thread id: %w", err)
	}
	return remote, nil
}
