package dbmanager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querypilot/internal/constants"
)

func TestSessionLifecycle(t *testing.T) {
	store := NewSessionStore()

	session := store.CreateSession("conn-1", constants.ReadOnlyStatusReadOnly)
	require.NotEmpty(t, session.Token)
	assert.Equal(t, "conn-1", session.ConnectionID)

	connectionID, ok := store.Resolve(session.Token, false)
	require.True(t, ok)
	assert.Equal(t, "conn-1", connectionID)

	// Same connection can back multiple sessions with distinct tokens.
	second := store.CreateSession("conn-1", constants.ReadOnlyStatusReadOnly)
	assert.NotEqual(t, session.Token, second.Token)
	assert.Equal(t, 2, store.SessionCount())

	deletedID, existed := store.DeleteSession(session.Token)
	require.True(t, existed)
	assert.Equal(t, "conn-1", deletedID)

	_, ok = store.Resolve(session.Token, false)
	assert.False(t, ok)

	_, existed = store.DeleteSession(session.Token)
	assert.False(t, existed)
}

func TestResolveTouchSemantics(t *testing.T) {
	store := NewSessionStore()
	session := store.CreateSession("conn-1", constants.ReadOnlyStatusUnknown)

	before := session.LastActivityAt
	time.Sleep(5 * time.Millisecond)

	// A passive resolve must not extend the idle clock.
	_, ok := store.Resolve(session.Token, false)
	require.True(t, ok)
	assert.Equal(t, before, session.LastActivityAt)

	_, ok = store.Resolve(session.Token, true)
	require.True(t, ok)
	assert.True(t, session.LastActivityAt.After(before))
}

func TestIdleSessions(t *testing.T) {
	store := NewSessionStore()
	stale := store.CreateSession("conn-stale", constants.ReadOnlyStatusReadOnly)
	fresh := store.CreateSession("conn-fresh", constants.ReadOnlyStatusReadOnly)

	time.Sleep(20 * time.Millisecond)
	store.Touch(fresh.Token)

	idle := store.IdleSessions(10 * time.Millisecond)
	assert.Contains(t, idle, stale.Token)
	assert.NotContains(t, idle, fresh.Token)
}

func TestSchemaCacheSetOnce(t *testing.T) {
	store := NewSessionStore()
	session := store.CreateSession("conn-1", constants.ReadOnlyStatusReadOnly)

	_, ok := store.CachedSchema(session.Token)
	assert.False(t, ok)

	first := &SchemaInfo{EngineKind: constants.DatabaseTypeSQLite}
	store.CacheSchema(session.Token, first)

	// Second write is ignored.
	store.CacheSchema(session.Token, &SchemaInfo{EngineKind: constants.DatabaseTypeMySQL})

	cached, ok := store.CachedSchema(session.Token)
	require.True(t, ok)
	assert.Equal(t, constants.DatabaseTypeSQLite, cached.EngineKind)

	// An explicit replace bypasses the set-once rule.
	store.ReplaceCachedSchema(session.Token, &SchemaInfo{EngineKind: constants.DatabaseTypeMySQL})
	cached, ok = store.CachedSchema(session.Token)
	require.True(t, ok)
	assert.Equal(t, constants.DatabaseTypeMySQL, cached.EngineKind)
}

func TestSessionsForConnection(t *testing.T) {
	store := NewSessionStore()
	first := store.CreateSession("conn-1", constants.ReadOnlyStatusReadOnly)
	store.CreateSession("conn-1", constants.ReadOnlyStatusReadOnly)
	store.CreateSession("conn-2", constants.ReadOnlyStatusReadOnly)

	assert.Equal(t, 2, store.SessionsForConnection("conn-1"))
	assert.Equal(t, 1, store.SessionsForConnection("conn-2"))
	assert.Equal(t, 0, store.SessionsForConnection("conn-3"))

	store.DeleteSession(first.Token)
	assert.Equal(t, 1, store.SessionsForConnection("conn-1"))
}

func TestChatLifecycle(t *testing.T) {
	store := NewSessionStore()
	session := store.CreateSession("conn-1", constants.ReadOnlyStatusReadOnly)

	chat, err := store.CreateChat(session.Token)
	require.NoError(t, err)
	assert.False(t, chat.IsFollowUp)

	_, err = store.CreateChat("no-such-session")
	assert.Error(t, err)

	require.NoError(t, store.AppendMessage(chat.Token, "user", "show revenue by month"))
	require.NoError(t, store.AppendMessage(chat.Token, "assistant", "SELECT ..."))

	history, err := store.History(chat.Token)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "show revenue by month", history[0].Content)

	require.NoError(t, store.ClearHistory(chat.Token))
	history, err = store.History(chat.Token)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestResetChatMintsNewToken(t *testing.T) {
	store := NewSessionStore()
	session := store.CreateSession("conn-1", constants.ReadOnlyStatusReadOnly)

	chat, err := store.CreateChat(session.Token)
	require.NoError(t, err)
	require.NoError(t, store.AppendMessage(chat.Token, "user", "hello"))

	fresh, err := store.ResetChat(chat.Token)
	require.NoError(t, err)
	assert.NotEqual(t, chat.Token, fresh.Token)
	assert.Equal(t, session.Token, fresh.ParentToken)
	assert.Empty(t, fresh.History)

	// The old token is gone.
	_, err = store.History(chat.Token)
	assert.Error(t, err)
}

func TestDeleteSessionCascadesChats(t *testing.T) {
	store := NewSessionStore()
	session := store.CreateSession("conn-1", constants.ReadOnlyStatusReadOnly)

	chat, err := store.CreateChat(session.Token)
	require.NoError(t, err)
	other := store.CreateSession("conn-2", constants.ReadOnlyStatusReadOnly)
	otherChat, err := store.CreateChat(other.Token)
	require.NoError(t, err)

	_, existed := store.DeleteSession(session.Token)
	require.True(t, existed)

	_, err = store.History(chat.Token)
	assert.Error(t, err)

	// Chats of unrelated sessions survive.
	_, err = store.History(otherChat.Token)
	assert.NoError(t, err)
}
