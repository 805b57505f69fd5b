package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yyhhyyyyyy/luban-sub002/agentstream"
	"github.com/yyhhyyyyyy/luban-sub002/conversation"
)

// legacyFixture reuses item_0 across two turns, the collision the scoped
// importer exists to handle.
const legacyFixture = `{"type":"user_message","text":"first prompt"}
{"type":"item","item":{"type":"agent_message","id":"item_0","text":"first answer"}}
{"type":"turn_completed","usage":{"input_tokens":3,"output_tokens":5}}
{"type":"turn_duration","duration_ms":900}
{"type":"user_message","text":"second prompt"}
{"type":"item","item":{"type":"agent_message","id":"item_0","text":"second answer"}}
{"type":"turn_completed"}
`

func writeLegacyLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestImportLegacyIfEmpty(t *testing.T) {
	s := openTestStore(t)
	key := testKey()
	logPath := writeLegacyLog(t, legacyFixture)

	imported, err := s.ImportLegacyIfEmpty(key, logPath)
	require.NoError(t, err)
	require.Equal(t, 7, imported)

	record, err := s.LoadConversation(key)
	require.NoError(t, err)
	require.Len(t, record.Entries, 7)

	// Both answers survive: scoping keeps the reused bare id from
	// colliding under the dedup index.
	var items []conversation.ItemEntry
	for _, entry := range record.Entries {
		if item, ok := entry.(conversation.ItemEntry); ok {
			items = append(items, item)
		}
	}
	require.Len(t, items, 2)
	require.Equal(t, "legacy-turn-1/item_0", items[0].Item.ItemID())
	require.Equal(t, "legacy-turn-2/item_0", items[1].Item.ItemID())
}

func TestImportLegacySkipsNonEmptyConversation(t *testing.T) {
	s := openTestStore(t)
	key := testKey()
	require.NoError(t, s.EnsureConversation(key))
	require.NoError(t, s.AppendEntries(key, []conversation.Entry{
		conversation.UserMessageEntry{Text: "existing"},
	}))

	imported, err := s.ImportLegacyIfEmpty(key, writeLegacyLog(t, legacyFixture))
	require.NoError(t, err)
	require.Zero(t, imported)

	record, err := s.LoadConversation(key)
	require.NoError(t, err)
	require.Len(t, record.Entries, 1)
}

func TestImportLegacySkipsBoundConversation(t *testing.T) {
	s := openTestStore(t)
	key := testKey()
	require.NoError(t, s.EnsureConversation(key))
	require.NoError(t, s.SetRemoteThreadID(key, "th_1"))

	imported, err := s.ImportLegacyIfEmpty(key, writeLegacyLog(t, legacyFixture))
	require.NoError(t, err)
	require.Zero(t, imported)
}

func TestImportLegacyPreambleScope(t *testing.T) {
	s := openTestStore(t)
	key := testKey()
	log := `{"type":"item","item":{"type":"agent_message","id":"item_0","text":"before any prompt"}}
{"type":"user_message","text":"first"}
`
	imported, err := s.ImportLegacyIfEmpty(key, writeLegacyLog(t, log))
	require.NoError(t, err)
	require.Equal(t, 2, imported)

	record, err := s.LoadConversation(key)
	require.NoError(t, err)
	item := record.Entries[0].(conversation.ItemEntry)
	require.Equal(t, "legacy-preamble/item_0", item.Item.ItemID())
}

func TestRepairLegacyImport(t *testing.T) {
	s := openTestStore(t)
	key := testKey()
	logPath := writeLegacyLog(t, legacyFixture)

	// Simulate the earlier buggy importer: unscoped ids, so the second
	// item_0 was silently dropped by the dedup index.
	require.NoError(t, s.EnsureConversation(key))
	require.NoError(t, s.AppendEntries(key, []conversation.Entry{
		conversation.UserMessageEntry{Text: "first prompt"},
		conversation.ItemEntry{Item: agentstream.AgentMessageItem{ID: "item_0", Text: "first answer"}},
		conversation.UserMessageEntry{Text: "second prompt"},
		conversation.ItemEntry{Item: agentstream.AgentMessageItem{ID: "item_0", Text: "second answer"}},
	}))

	record, err := s.LoadConversation(key)
	require.NoError(t, err)
	require.Len(t, record.Entries, 3) // the duplicate was dropped

	repaired, err := s.RepairLegacyImport(key, logPath)
	require.NoError(t, err)
	require.Equal(t, 7, repaired)

	record, err = s.LoadConversation(key)
	require.NoError(t, err)
	require.Len(t, record.Entries, 7)
	for _, entry := range record.Entries {
		if item, ok := entry.(conversation.ItemEntry); ok {
			require.True(t, strings.HasPrefix(item.Item.ItemID(), "legacy-"),
				"item id %q not scoped", item.Item.ItemID())
		}
	}
}

func TestRepairSkipsScopedImport(t *testing.T) {
	s := openTestStore(t)
	key := testKey()
	logPath := writeLegacyLog(t, legacyFixture)

	imported, err := s.ImportLegacyIfEmpty(key, logPath)
	require.NoError(t, err)
	require.Equal(t, 7, imported)

	// A scoped import is already correct; repair must not touch it.
	repaired, err := s.RepairLegacyImport(key, logPath)
	require.NoError(t, err)
	require.Zero(t, repaired)
}

func TestRepairSkipsWhenSourceRecoversFewerMessages(t *testing.T) {
	s := openTestStore(t)
	key := testKey()

	require.NoError(t, s.EnsureConversation(key))
	require.NoError(t, s.AppendEntries(key, []conversation.Entry{
		conversation.UserMessageEntry{Text: "one"},
		conversation.UserMessageEntry{Text: "two"},
		conversation.UserMessageEntry{Text: "three"},
	}))

	// The source reuses an id (repair trigger) but would recover fewer
	// user messages than are stored.
	log := `{"type":"user_message","text":"only one"}
{"type":"item","item":{"type":"agent_message","id":"x","text":"a"}}
{"type":"user_message","text":"two"}
{"type":"item","item":{"type":"agent_message","id":"x","text":"b"}}
`
	shortLog := writeLegacyLog(t, log)

	repaired, err := s.RepairLegacyImport(key, shortLog)
	require.NoError(t, err)
	require.Zero(t, repaired)

	record, err := s.LoadConversation(key)
	require.NoError(t, err)
	require.Len(t, record.Entries, 3)
}

func TestParseLegacyLogSkipsMalformedLines(t *testing.T) {
	log := `not json
{"type":"user_message","text":"ok"}
{"type":"mystery"}
`
	parsed, err := parseLegacyLog(writeLegacyLog(t, log))
	require.NoError(t, err)
	require.Len(t, parsed.entries, 1)
	require.Equal(t, 2, parsed.skippedLines)
	require.Equal(t, 1, parsed.userMessages)
	require.False(t, parsed.duplicateIDs)
}
