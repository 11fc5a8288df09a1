package dbmanager

import (
	"context"
	"log"
	"sync"
	"time"
)

const maxEvictionInterval = time.Minute

// Reaper runs the two background sweeps of the gateway: idle-session
// eviction and pool keep-alive. Each timer has its own lifecycle so tests
// can start and stop them deterministically. The reaper only reads
// timestamps and calls the public disconnect path; it never touches pool
// internals.
type Reaper struct {
	store             *SessionStore
	registry          *Registry
	idleTimeout       time.Duration
	keepAliveInterval time.Duration
	disconnect        func(sessionToken string) error

	mu            sync.Mutex
	evictionStop  chan struct{}
	keepAliveStop chan struct{}
}

func NewReaper(store *SessionStore, registry *Registry, idleTimeout, keepAliveInterval time.Duration, disconnect func(string) error) *Reaper {
	return &Reaper{
		store:             store,
		registry:          registry,
		idleTimeout:       idleTimeout,
		keepAliveInterval: keepAliveInterval,
		disconnect:        disconnect,
	}
}

// evictionInterval keeps sweeps frequent enough that a session never
// overstays its timeout by much: a fifth of the timeout, capped at a minute.
func (r *Reaper) evictionInterval() time.Duration {
	interval := r.idleTimeout / 5
	if interval > maxEvictionInterval {
		interval = maxEvictionInterval
	}
	return interval
}

// Start launches both sweeps.
func (r *Reaper) Start() {
	r.StartEviction()
	r.StartKeepAlive()
}

// Stop halts both sweeps.
func (r *Reaper) Stop() {
	r.StopEviction()
	r.StopKeepAlive()
}

// StartEviction launches the idle-eviction sweep. Starting twice is a no-op.
func (r *Reaper) StartEviction() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.evictionStop != nil {
		return
	}
	stop := make(chan struct{})
	r.evictionStop = stop

	interval := r.evictionInterval()
	log.Printf("Reaper -> StartEviction -> Sweeping every %v (idle timeout %v)", interval, r.idleTimeout)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				log.Printf("Reaper -> StartEviction -> Eviction sweep stopped")
				return
			case <-ticker.C:
				r.SweepIdleSessions()
			}
		}
	}()
}

// StopEviction halts the idle-eviction sweep. Stopping twice is a no-op.
func (r *Reaper) StopEviction() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.evictionStop != nil {
		close(r.evictionStop)
		r.evictionStop = nil
	}
}

// StartKeepAlive launches the pool keep-alive sweep.
func (r *Reaper) StartKeepAlive() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.keepAliveStop != nil {
		return
	}
	stop := make(chan struct{})
	r.keepAliveStop = stop

	log.Printf("Reaper -> StartKeepAlive -> Pinging pools every %v", r.keepAliveInterval)

	go func() {
		ticker := time.NewTicker(r.keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				log.Printf("Reaper -> StartKeepAlive -> Keep-alive sweep stopped")
				return
			case <-ticker.C:
				r.SweepKeepAlive()
			}
		}
	}()
}

// StopKeepAlive halts the keep-alive sweep.
func (r *Reaper) StopKeepAlive() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.keepAliveStop != nil {
		close(r.keepAliveStop)
		r.keepAliveStop = nil
	}
}

// SweepIdleSessions disconnects every session past the idle timeout. A
// session touched since the last sweep survives regardless of its age.
// Exported so tests can trigger a sweep without waiting on the ticker.
func (r *Reaper) SweepIdleSessions() {
	idle := r.store.IdleSessions(r.idleTimeout)
	for _, token := range idle {
		log.Printf("Reaper -> SweepIdleSessions -> Evicting idle session %s", token)
		if err := r.disconnect(token); err != nil {
			// Background sweep has no caller to report to; log and move on.
			log.Printf("Reaper -> SweepIdleSessions -> Failed to disconnect %s: %v", token, err)
		}
	}
	if len(idle) > 0 {
		log.Printf("Reaper -> SweepIdleSessions -> Evicted %d idle sessions", len(idle))
	}
}

// SweepKeepAlive issues a trivial read against every live pool so engines
// with server-side idle timeouts keep the connection open. Failures are
// swallowed: the next real query surfaces them through the normal execution
// error path.
func (r *Reaper) SweepKeepAlive() {
	r.registry.ForEach(func(connectionID string, pool *Pool, driver Driver) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := driver.Ping(ctx, pool); err != nil {
			log.Printf("Reaper -> SweepKeepAlive -> Ping failed for connection %s: %v", connectionID, err)
		}
	})
}
