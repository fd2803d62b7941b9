package ratelimit

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// State is the rate limit state of one key.
type State struct {
	// Emissions are the times alerts were allowed, oldest first.
	Emissions []time.Time `json:"emissions"`

	// CooldownUntil is the end of the current cooldown, zero when none.
	CooldownUntil time.Time `json:"cooldown_until"`
}

// Store persists per-key State. Get returns the zero State for an unknown key.
type Store interface {
	Get(ctx context.Context, key string) (State, error)
	Put(ctx context.Context, key string, state State) error
	Close() error
}

// MemoryStore keeps state in process. Entries that have not been written for
// the configured TTL are dropped, which is safe once the TTL covers the
// window plus the cooldown.
type MemoryStore struct {
	cache *gocache.Cache
}

// NewMemoryStore creates a MemoryStore. A ttl <= 0 keeps entries forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		return &MemoryStore{cache: gocache.New(gocache.NoExpiration, 0)}
	}
	return &MemoryStore{cache: gocache.New(ttl, ttl)}
}

// Get returns a copy of the state stored for key.
func (m *MemoryStore) Get(_ context.Context, key string) (State, error) {
	v, ok := m.cache.Get(key)
	if !ok {
		return State{}, nil
	}
	return v.(State).clone(), nil //nolint:forcetypeassert // only Put writes
}

// Put stores a copy of state.
func (m *MemoryStore) Put(_ context.Context, key string, state State) error {
	m.cache.Set(key, state.clone(), gocache.DefaultExpiration)
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

func (s State) clone() State {
	out := State{CooldownUntil: s.CooldownUntil}
	if s.Emissions != nil {
		out.Emissions = append([]time.Time(nil), s.Emissions...)
	}
	return out
}
