// Package symbol maps ISINs to the identifiers each provider expects.
package symbol

import (
    "strings"
    "time"

    "go.uber.org/zap"

    "marketdata/internal/provider"
    "marketdata/internal/provider/cache"
)

// DefaultTTL keeps mappings for 30 days; they almost never change.
const DefaultTTL = 30 * 24 * time.Hour

// Resolver turns an ISIN into a provider symbol and remembers the answer.
type Resolver struct {
    cache *cache.Store[string]
    // simplified lists providers that take the 9 character CUSIP segment of a
    // US ISIN instead of the full ISIN.
    simplified map[provider.Name]bool
    log        *zap.Logger
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithCache replaces the mapping store.
func WithCache(c *cache.Store[string]) Option { return func(r *Resolver) { r.cache = c } }

// WithSimplified sets the providers that want simplified US identifiers.
func WithSimplified(names ...provider.Name) Option {
    return func(r *Resolver) {
        r.simplified = make(map[provider.Name]bool, len(names))
        for _, n := range names { r.simplified[n] = true }
    }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(r *Resolver) { r.log = l } }

// New builds a resolver. By default only IEX receives simplified US identifiers.
func New(opts ...Option) *Resolver {
    r := &Resolver{simplified: map[provider.Name]bool{provider.IEX: true}, log: zap.NewNop()}
    for _, o := range opts { o(r) }
    if r.cache == nil {
        r.cache = cache.New[string](DefaultTTL)
    }
    return r
}

// Key is the cache key of a mapping.
func Key(isin string, p provider.Name) string { return "symbol_" + isin + "_" + string(p) }

// Resolve never fails: malformed input and internal errors fall back to isin itself.
func (r *Resolver) Resolve(isin string, p provider.Name) (sym string) {
    defer func() {
        if rec := recover(); rec != nil {
            r.log.Warn("symbol resolution failed", zap.String("isin", isin), zap.String("provider", string(p)), zap.Any("panic", rec))
            sym = isin
        }
    }()
    key := Key(isin, p)
    if v, ok := r.cache.Get(key); ok {
        return v
    }
    sym = isin
    if r.simplified[p] && isUS(isin) {
        sym = isin[2:11]
    }
    r.cache.Set(key, sym)
    return sym
}

// Close stops the mapping store's sweeper.
func (r *Resolver) Close() { r.cache.Close() }

func isUS(isin string) bool {
    return len(isin) == 12 && strings.HasPrefix(isin, "US")
}
