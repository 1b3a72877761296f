package ratelimit

import (
    "sync"
    "time"

    "marketdata/internal/provider"
)

// Window is the length of one counting window.
const Window = time.Minute

// DefaultLimits are the per-minute ceilings of the free tiers.
var DefaultLimits = map[provider.Name]int{
    provider.Yahoo:        100,
    provider.AlphaVantage: 5,
    provider.IEX:          100,
    provider.Finnhub:      60,
    provider.Polygon:      5,
}

type counter struct {
    count   int
    resetAt time.Time
    max     int
}

// Limiter keeps one fixed-window request counter per provider.
// Denied calls are reported immediately; there is no queuing.
type Limiter struct {
    mu       sync.Mutex
    counters map[provider.Name]*counter
    now      func() time.Time
}

// New builds a limiter from per-minute ceilings. A nil map uses DefaultLimits.
func New(limits map[provider.Name]int) *Limiter {
    if limits == nil { limits = DefaultLimits }
    l := &Limiter{counters: make(map[provider.Name]*counter, len(limits)), now: time.Now}
    for name, max := range limits {
        if max < 0 { max = 0 }
        l.counters[name] = &counter{max: max}
    }
    return l
}

// WithClock replaces the time source, for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
    l.now = now
    return l
}

// Allow consumes one slot for p if its window still has room.
// Providers without a configured ceiling always pass.
func (l *Limiter) Allow(p provider.Name) bool {
    l.mu.Lock()
    defer l.mu.Unlock()
    c, ok := l.counters[p]
    if !ok { return true }
    now := l.now()
    if now.After(c.resetAt) {
        c.count = 0
        c.resetAt = now.Add(Window)
    }
    if c.count >= c.max {
        return false
    }
    c.count++
    return true
}

// State is a point-in-time view of one provider's counter.
type State struct {
    Count        int       `json:"count"`
    MaxPerMinute int       `json:"maxPerMinute"`
    ResetAt      time.Time `json:"windowResetAt"`
}

// Snapshot copies all counters. Windows that already ended report a zero count.
func (l *Limiter) Snapshot() map[provider.Name]State {
    l.mu.Lock()
    defer l.mu.Unlock()
    now := l.now()
    out := make(map[provider.Name]State, len(l.counters))
    for name, c := range l.counters {
        st := State{Count: c.count, MaxPerMinute: c.max, ResetAt: c.resetAt}
        if now.After(c.resetAt) { st.Count = 0 }
        out[name] = st
    }
    return out
}
