package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/yyhhyyyyyy/luban-sub002/agentstream"
	"github.com/yyhhyyyyyy/luban-sub002/appstate"
	"github.com/yyhhyyyyyy/luban-sub002/conversation"
)

func testKey() Key {
	return Key{ProjectSlug: "proj", WorkspaceName: "ws", ThreadID: "thread-1"}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func tableNames(t *testing.T, path string) []string {
	t.Helper()
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadOnly)
	require.NoError(t, err)
	defer conn.Close()

	var names []string
	err = sqlitex.ExecuteTransient(conn,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				names = append(names, stmt.ColumnText(0))
				return nil
			},
		})
	require.NoError(t, err)
	return names
}

func TestOpenCreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	require.Equal(t, []string{
		"app_settings",
		"conversation_entries",
		"conversations",
		"projects",
		"workspaces",
	}, tableNames(t, path))
}

func TestOpenRefusesFutureSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.db")

	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate)
	require.NoError(t, err)
	require.NoError(t, sqlitex.ExecuteTransient(conn, "PRAGMA user_version = 99", nil))
	require.NoError(t, conn.Close())

	s, err := Open(path, nil)
	require.ErrorIs(t, err, ErrFutureSchema)
	defer s.Close()

	// The fatal error is reproduced for every subsequent operation.
	require.ErrorIs(t, s.EnsureConversation(testKey()), ErrFutureSchema)

	// And the refused open performed no writes.
	require.Empty(t, tableNames(t, path))
}

func TestAppendEntriesDedup(t *testing.T) {
	s := openTestStore(t)
	key := testKey()
	require.NoError(t, s.EnsureConversation(key))

	item := conversation.ItemEntry{Item: agentstream.AgentMessageItem{ID: "item_0", Text: "hi"}}
	require.NoError(t, s.AppendEntries(key, []conversation.Entry{item}))
	require.NoError(t, s.AppendEntries(key, []conversation.Entry{item}))

	record, err := s.LoadConversation(key)
	require.NoError(t, err)
	require.Len(t, record.Entries, 1)

	// Ids differing only by turn-scope prefix are distinct and both persist.
	scoped := []conversation.Entry{
		conversation.ItemEntry{Item: agentstream.AgentMessageItem{ID: "turn-a/item_0", Text: "a"}},
		conversation.ItemEntry{Item: agentstream.AgentMessageItem{ID: "turn-b/item_0", Text: "b"}},
	}
	require.NoError(t, s.AppendEntries(key, scoped))

	record, err = s.LoadConversation(key)
	require.NoError(t, err)
	require.Len(t, record.Entries, 3)
}

func TestAppendEntriesNonDedupKindsNeverCollide(t *testing.T) {
	s := openTestStore(t)
	key := testKey()
	require.NoError(t, s.EnsureConversation(key))

	// Two entries of the same non-deduplicated kind both persist.
	entries := []conversation.Entry{
		conversation.TurnDurationEntry{DurationMs: 100},
		conversation.TurnDurationEntry{DurationMs: 100},
	}
	require.NoError(t, s.AppendEntries(key, entries))

	record, err := s.LoadConversation(key)
	require.NoError(t, err)
	require.Len(t, record.Entries, 2)
}

func TestAppendEntriesPreservesOrder(t *testing.T) {
	s := openTestStore(t)
	key := testKey()
	require.NoError(t, s.EnsureConversation(key))

	entries := []conversation.Entry{
		conversation.UserMessageEntry{Text: "prompt"},
		conversation.ItemEntry{Item: agentstream.AgentMessageItem{ID: "item_0", Text: "answer"}},
		conversation.TurnUsageEntry{Usage: &agentstream.TurnUsage{InputTokens: 3, OutputTokens: 7}},
		conversation.TurnDurationEntry{DurationMs: 1200},
	}
	require.NoError(t, s.AppendEntries(key, entries))

	record, err := s.LoadConversation(key)
	require.NoError(t, err)
	require.Len(t, record.Entries, 4)

	user, ok := record.Entries[0].(conversation.UserMessageEntry)
	require.True(t, ok)
	require.Equal(t, "prompt", user.Text)

	itemEntry, ok := record.Entries[1].(conversation.ItemEntry)
	require.True(t, ok)
	require.Equal(t, "item_0", itemEntry.Item.ItemID())

	usage, ok := record.Entries[2].(conversation.TurnUsageEntry)
	require.True(t, ok)
	require.EqualValues(t, 7, usage.Usage.OutputTokens)

	duration, ok := record.Entries[3].(conversation.TurnDurationEntry)
	require.True(t, ok)
	require.EqualValues(t, 1200, duration.DurationMs)
}

func TestRemoteThreadID(t *testing.T) {
	s := openTestStore(t)
	key := testKey()
	require.NoError(t, s.EnsureConversation(key))

	remote, err := s.RemoteThreadID(key)
	require.NoError(t, err)
	require.Empty(t, remote)

	require.NoError(t, s.SetRemoteThreadID(key, "th_42"))

	remote, err = s.RemoteThreadID(key)
	require.NoError(t, err)
	require.Equal(t, "th_42", remote)

	record, err := s.LoadConversation(key)
	require.NoError(t, err)
	require.Equal(t, "th_42", record.RemoteThreadID)
}

func TestAppStateRoundTrip(t *testing.T) {
	s := openTestStore(t)

	snap := &appstate.Snapshot{
		Projects: []appstate.Project{
			{ID: "p1", Slug: "alpha", Name: "Alpha", Path: "/src/alpha"},
			{ID: "p2", Slug: "beta", Name: "Beta", Path: "/src/beta"},
		},
		Workspaces: []appstate.Workspace{
			{ID: "w1", ProjectSlug: "alpha", Name: "main", Branch: "main", Path: "/src/alpha"},
		},
		Settings: map[string]string{"theme": "dark"},
	}
	require.NoError(t, s.SaveAppState(snap))

	loaded, err := s.LoadAppState()
	require.NoError(t, err)
	require.Len(t, loaded.Projects, 2)
	require.Len(t, loaded.Workspaces, 1)
	require.Equal(t, "dark", loaded.Settings["theme"])
	require.NotZero(t, loaded.Projects[0].CreatedAt)

	// Rows absent from the next snapshot are deleted; surviving rows keep
	// their creation time.
	originalCreated := loaded.Projects[0].CreatedAt
	next := &appstate.Snapshot{
		Projects: []appstate.Project{
			{ID: "p1", Slug: "alpha", Name: "Alpha renamed", Path: "/src/alpha", CreatedAt: originalCreated},
		},
		Settings: map[string]string{"theme": "light"},
	}
	require.NoError(t, s.SaveAppState(next))

	loaded, err = s.LoadAppState()
	require.NoError(t, err)
	require.Len(t, loaded.Projects, 1)
	require.Equal(t, "Alpha renamed", loaded.Projects[0].Name)
	require.Equal(t, originalCreated, loaded.Projects[0].CreatedAt)
	require.Empty(t, loaded.Workspaces)
	require.Equal(t, "light", loaded.Settings["theme"])
}

func TestClosedStoreReturnsErrClosed(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())
	require.ErrorIs(t, s.EnsureConversation(testKey()), ErrClosed)
}
