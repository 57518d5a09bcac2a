// Package cache holds the bounded in-process caches and their periodic
// expiry sweep.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"locagest/internal/log"
)

// Cleaner is a cache whose expired entries can be swept.
type Cleaner interface {
	CleanExpired() int
}

var _ Cleaner = (*LRUCache[int])(nil)

// Manager sweeps registered caches on an interval.
type Manager struct {
	mu     sync.Mutex
	caches map[string]Cleaner
}

func NewManager() *Manager {
	return &Manager{caches: make(map[string]Cleaner)}
}

// Register adds c under name, replacing any cache already registered
// under that name.
func (m *Manager) Register(name string, c Cleaner) {
	m.mu.Lock()
	m.caches[name] = c
	m.mu.Unlock()
}

// CleanNow sweeps every cache once and returns the removed count per name.
// Caches with nothing removed are omitted.
func (m *Manager) CleanNow() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := make(map[string]int)
	for name, c := range m.caches {
		if n := c.CleanExpired(); n > 0 {
			removed[name] = n
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done. A non-positive interval
// returns immediately.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, n := range m.CleanNow() {
				slog.DebugContext(ctx, "Expired cache entries removed",
					log.FieldComponent, log.ComponentCache, "cache", name, "count", n)
			}
		}
	}
}
