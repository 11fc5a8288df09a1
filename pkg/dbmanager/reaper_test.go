package dbmanager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querypilot/internal/constants"
)

type disconnectRecorder struct {
	mu     sync.Mutex
	tokens []string
}

func (d *disconnectRecorder) disconnect(token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens = append(d.tokens, token)
	return nil
}

func (d *disconnectRecorder) seen() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.tokens...)
}

func TestSweepIdleSessionsEvictsStaleOnly(t *testing.T) {
	store := NewSessionStore()
	recorder := &disconnectRecorder{}

	stale := store.CreateSession("conn-stale", constants.ReadOnlyStatusReadOnly)
	fresh := store.CreateSession("conn-fresh", constants.ReadOnlyStatusReadOnly)

	time.Sleep(20 * time.Millisecond)
	store.Touch(fresh.Token)

	reaper := NewReaper(store, NewRegistry(), 10*time.Millisecond, time.Minute, recorder.disconnect)
	reaper.SweepIdleSessions()

	seen := recorder.seen()
	assert.Contains(t, seen, stale.Token)
	assert.NotContains(t, seen, fresh.Token)
}

func TestSweepIdleSessionsTouchedSessionSurvives(t *testing.T) {
	store := NewSessionStore()
	recorder := &disconnectRecorder{}
	session := store.CreateSession("conn-1", constants.ReadOnlyStatusReadOnly)

	reaper := NewReaper(store, NewRegistry(), 50*time.Millisecond, time.Minute, recorder.disconnect)

	// Keep touching below the timeout; the session must never be evicted.
	for i := 0; i < 3; i++ {
		time.Sleep(20 * time.Millisecond)
		store.Touch(session.Token)
		reaper.SweepIdleSessions()
	}
	assert.Empty(t, recorder.seen())

	time.Sleep(60 * time.Millisecond)
	reaper.SweepIdleSessions()
	assert.Contains(t, recorder.seen(), session.Token)
}

func TestEvictionInterval(t *testing.T) {
	store := NewSessionStore()
	registry := NewRegistry()
	noop := func(string) error { return nil }

	// One fifth of the idle timeout, capped at a minute.
	short := NewReaper(store, registry, 100*time.Second, time.Minute, noop)
	assert.Equal(t, 20*time.Second, short.evictionInterval())

	long := NewReaper(store, registry, time.Hour, time.Minute, noop)
	assert.Equal(t, time.Minute, long.evictionInterval())
}

func TestReaperStartStopIdempotent(t *testing.T) {
	store := NewSessionStore()
	reaper := NewReaper(store, NewRegistry(), time.Minute, time.Minute, func(string) error { return nil })

	reaper.Start()
	reaper.Start()
	reaper.Stop()
	reaper.Stop()
}

func TestSweepKeepAlivePingsRegisteredPools(t *testing.T) {
	path := seedSQLite(t)
	registry := NewRegistry()
	t.Cleanup(registry.Close)

	pool, err := registry.Acquire(context.Background(), sqliteDescriptor("c1", path))
	require.NoError(t, err)

	reaper := NewReaper(NewSessionStore(), registry, time.Minute, time.Minute, func(string) error { return nil })
	reaper.SweepKeepAlive()

	// The pool is still usable after the sweep.
	var one int
	require.NoError(t, pool.DB.QueryRow("SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)
}

func TestSweepKeepAliveFailureIsSwallowed(t *testing.T) {
	path := seedSQLite(t)
	registry := NewRegistry()
	t.Cleanup(registry.Close)

	pool, err := registry.Acquire(context.Background(), sqliteDescriptor("c1", path))
	require.NoError(t, err)

	// Kill the pool underneath the registry so the ping fails.
	require.NoError(t, pool.DB.Close())

	reaper := NewReaper(NewSessionStore(), registry, time.Minute, time.Minute, func(string) error { return nil })
	require.NotPanics(t, func() { reaper.SweepKeepAlive() })
}

func TestSweepIdleSessionsDisconnectFailureIsSwallowed(t *testing.T) {
	store := NewSessionStore()
	session := store.CreateSession("conn-1", constants.ReadOnlyStatusReadOnly)
	time.Sleep(20 * time.Millisecond)

	calls := 0
	reaper := NewReaper(store, NewRegistry(), 10*time.Millisecond, time.Minute, func(token string) error {
		calls++
		return assert.AnError
	})

	require.NotPanics(t, func() { reaper.SweepIdleSessions() })
	assert.Equal(t, 1, calls)
	_ = session
}
