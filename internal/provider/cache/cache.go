package cache

import (
    "sync"
    "time"
)

const (
    // DefaultTTL applies to price and history entries.
    DefaultTTL = 900 * time.Second
    // DefaultCheckPeriod is how often expired entries are swept.
    DefaultCheckPeriod = 120 * time.Second
)

// entry stores a cached value with its expiry.
type entry[V any] struct {
    value     V
    expiresAt time.Time
}

// Store is a TTL key/value cache. Get always re-checks expiry, so correctness
// does not depend on the background sweep, which only reclaims memory.
// There is no size bound.
type Store[V any] struct {
    TTL time.Duration

    mu    sync.RWMutex
    items map[string]entry[V]
    now   func() time.Time

    stop     chan struct{}
    stopOnce sync.Once
}

// Option customizes a Store.
type Option func(*config)

type config struct {
    checkPeriod time.Duration
    now         func() time.Time
}

// WithCheckPeriod sets the sweep interval. Zero or negative disables the sweeper.
func WithCheckPeriod(d time.Duration) Option {
    return func(c *config) { c.checkPeriod = d }
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
    return func(c *config) { c.now = now }
}

// New creates a store with the given default TTL (DefaultTTL when <= 0) and
// starts its sweeper. Call Close to stop it.
func New[V any](ttl time.Duration, opts ...Option) *Store[V] {
    cfg := config{checkPeriod: DefaultCheckPeriod, now: time.Now}
    for _, o := range opts { o(&cfg) }
    if ttl <= 0 { ttl = DefaultTTL }
    s := &Store[V]{
        TTL:   ttl,
        items: make(map[string]entry[V]),
        now:   cfg.now,
        stop:  make(chan struct{}),
    }
    if cfg.checkPeriod > 0 {
        go s.sweepEvery(cfg.checkPeriod)
    }
    return s
}

// Get returns the value for key unless it is missing or expired.
func (s *Store[V]) Get(key string) (V, bool) {
    s.mu.RLock()
    e, ok := s.items[key]
    s.mu.RUnlock()
    if !ok || s.now().After(e.expiresAt) {
        var zero V
        return zero, false
    }
    return e.value, true
}

// Set stores value under key with the default TTL, overwriting any previous entry.
func (s *Store[V]) Set(key string, value V) { s.SetTTL(key, value, s.TTL) }

// SetTTL stores value under key for ttl.
func (s *Store[V]) SetTTL(key string, value V, ttl time.Duration) {
    s.mu.Lock()
    s.items[key] = entry[V]{value: value, expiresAt: s.now().Add(ttl)}
    s.mu.Unlock()
}

// Delete drops key.
func (s *Store[V]) Delete(key string) {
    s.mu.Lock()
    delete(s.items, key)
    s.mu.Unlock()
}

// Len counts stored entries, including expired ones not yet swept.
func (s *Store[V]) Len() int {
    s.mu.RLock()
    defer s.mu.RUnlock()
    return len(s.items)
}

// Sweep evicts expired entries and returns how many were removed.
func (s *Store[V]) Sweep() int {
    now := s.now()
    s.mu.Lock()
    defer s.mu.Unlock()
    n := 0
    for k, e := range s.items {
        if now.After(e.expiresAt) {
            delete(s.items, k)
            n++
        }
    }
    return n
}

// Close stops the sweeper. The store stays usable.
func (s *Store[V]) Close() {
    s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Store[V]) sweepEvery(d time.Duration) {
    t := time.NewTicker(d)
    defer t.Stop()
    for {
        select {
        case <-s.stop:
            return
        case <-t.C:
            s.Sweep()
        }
    }
}
