package dbmanager

import (
	"context"
	"fmt"
	"log"
	"sync"

	"querypilot/internal/constants"
)

// Registry is the single owner of engine pools: exactly one live Pool per
// connection id, created, probed and recycled only here. No other component
// may hold a long-lived pool reference.
type Registry struct {
	drivers map[string]Driver

	mu    sync.Mutex
	pools map[string]*registryEntry

	statsMu    sync.Mutex
	reuseCount int
}

type registryEntry struct {
	pool   *Pool
	driver Driver
}

// NewRegistry creates a registry with the three default engine drivers
// registered.
func NewRegistry() *Registry {
	r := &Registry{
		drivers: make(map[string]Driver),
		pools:   make(map[string]*registryEntry),
	}
	r.RegisterDriver(constants.DatabaseTypeSQLite, NewSQLiteDriver())
	r.RegisterDriver(constants.DatabaseTypeMySQL, NewMySQLDriver())
	r.RegisterDriver(constants.DatabaseTypePostgreSQL, NewPostgresDriver())
	return r
}

// RegisterDriver registers an engine driver for a kind.
func (r *Registry) RegisterDriver(engineKind string, driver Driver) {
	r.drivers[engineKind] = driver
	log.Printf("Registry -> RegisterDriver -> Registered driver for kind: %s", engineKind)
}

// Acquire resolves the pool for a descriptor, opening one when needed.
// Restartable engines are always closed and reopened so the latest on-disk
// state is honored; connection-oriented engines are probed and reused while
// alive. Holding the registry lock across the open preserves the
// one-pool-per-id invariant.
func (r *Registry) Acquire(ctx context.Context, desc ConnectionDescriptor) (*Pool, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	driver, exists := r.drivers[desc.EngineKind]
	if !exists {
		return nil, fmt.Errorf("no driver registered for engine kind: %s", desc.EngineKind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, exists := r.pools[desc.ID]; exists {
		if driver.Restartable() {
			log.Printf("Registry -> Acquire -> Recreating restartable pool for connection %s", desc.ID)
			if err := entry.driver.Close(entry.pool); err != nil {
				log.Printf("Registry -> Acquire -> Failed to close stale pool for %s: %v", desc.ID, err)
			}
			delete(r.pools, desc.ID)
		} else if entry.driver.IsAlive(ctx, entry.pool) {
			r.statsMu.Lock()
			r.reuseCount++
			r.statsMu.Unlock()
			return entry.pool, nil
		} else {
			log.Printf("Registry -> Acquire -> Pool for connection %s is dead, reopening", desc.ID)
			if err := entry.driver.Close(entry.pool); err != nil {
				log.Printf("Registry -> Acquire -> Failed to close dead pool for %s: %v", desc.ID, err)
			}
			delete(r.pools, desc.ID)
		}
	}

	pool, status, err := driver.OpenReadOnly(ctx, desc)
	if err != nil {
		return nil, err
	}
	log.Printf("Registry -> Acquire -> Opened pool for connection %s (%s, posture: %s)",
		desc.ID, desc.EngineKind, status)

	r.pools[desc.ID] = &registryEntry{pool: pool, driver: driver}
	return pool, nil
}

// AcquireExisting resolves an already-registered connection id, applying the
// same recreate/reuse policy with the stored descriptor. Callers that only
// know an id (the query path) go through here.
func (r *Registry) AcquireExisting(ctx context.Context, connectionID string) (*Pool, error) {
	r.mu.Lock()
	entry, exists := r.pools[connectionID]
	r.mu.Unlock()

	if !exists {
		return nil, fmt.Errorf("connection not found: %s", connectionID)
	}
	return r.Acquire(ctx, entry.pool.Descriptor)
}

// Driver returns the driver serving a registered connection id.
func (r *Registry) Driver(connectionID string) (Driver, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.pools[connectionID]
	if !exists {
		return nil, false
	}
	return entry.driver, true
}

// Has reports whether a pool is registered for the connection id.
func (r *Registry) Has(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.pools[connectionID]
	return exists
}

// Release closes and forgets the pool for a connection id.
func (r *Registry) Release(connectionID string) error {
	r.mu.Lock()
	entry, exists := r.pools[connectionID]
	delete(r.pools, connectionID)
	r.mu.Unlock()

	if !exists {
		return nil
	}
	if err := entry.driver.Close(entry.pool); err != nil {
		return fmt.Errorf("failed to close pool for %s: %v", connectionID, err)
	}
	log.Printf("Registry -> Release -> Closed pool for connection %s", connectionID)
	return nil
}

// ForEach calls fn for every live pool, against a snapshot so a concurrent
// disconnect never hands fn a stale reference mid-iteration.
func (r *Registry) ForEach(fn func(connectionID string, pool *Pool, driver Driver)) {
	r.mu.Lock()
	snapshot := make(map[string]*registryEntry, len(r.pools))
	for id, entry := range r.pools {
		snapshot[id] = entry
	}
	r.mu.Unlock()

	for id, entry := range snapshot {
		fn(id, entry.pool, entry.driver)
	}
}

// Stats reports pool counts for the health endpoint.
func (r *Registry) Stats() map[string]interface{} {
	r.mu.Lock()
	livePools := len(r.pools)
	r.mu.Unlock()

	r.statsMu.Lock()
	reuse := r.reuseCount
	r.statsMu.Unlock()

	return map[string]interface{}{
		"live_pools":  livePools,
		"reuse_count": reuse,
	}
}

// Close releases every registered pool. Used on process shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.pools
	r.pools = make(map[string]*registryEntry)
	r.mu.Unlock()

	for id, entry := range entries {
		if err := entry.driver.Close(entry.pool); err != nil {
			log.Printf("Registry -> Close -> Error closing pool for %s: %v", id, err)
		}
	}
}

// TestConnection opens, pings and closes a throwaway pool without ever
// registering it. Used for credential checks.
func (r *Registry) TestConnection(ctx context.Context, desc ConnectionDescriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}

	driver, exists := r.drivers[desc.EngineKind]
	if !exists {
		return fmt.Errorf("no driver registered for engine kind: %s", desc.EngineKind)
	}

	pool, _, err := driver.OpenReadOnly(ctx, desc)
	if err != nil {
		return err
	}
	defer func() {
		if err := driver.Close(pool); err != nil {
			log.Printf("Registry -> TestConnection -> Error closing test pool: %v", err)
		}
	}()

	return driver.Ping(ctx, pool)
}
