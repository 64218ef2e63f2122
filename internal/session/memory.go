package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/aviya/internal/domain"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore keeps sessions in process, bounded by capacity (least recently
// used first) and by idle TTL.
type MemoryStore struct {
	cache *expirable.LRU[string, domain.Session]
}

// NewMemoryStore creates an in-process store holding at most maxEntries
// sessions, each dropped after ttl without an update.
func NewMemoryStore(maxEntries int, ttl time.Duration) *MemoryStore {
	onEvict := func(id string, _ domain.Session) {
		slog.Debug("Session evicted", "session_id", id)
	}
	return &MemoryStore{
		cache: expirable.NewLRU[string, domain.Session](maxEntries, onEvict, ttl),
	}
}

// GetOrCreate implements Store.
func (m *MemoryStore) GetOrCreate(_ context.Context, id string) (domain.Session, error) {
	if s, ok := m.cache.Get(id); ok {
		return clone(s), nil
	}
	return domain.NewSession(clock()), nil
}

// Update implements Store.
func (m *MemoryStore) Update(_ context.Context, id string, s domain.Session) error {
	m.cache.Add(id, clone(s))
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.cache.Remove(id)
	return nil
}

// Len returns the number of sessions currently held, expired ones included
// until the background sweep removes them.
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}

// Ping implements Store.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.cache.Purge()
	return nil
}
