// Package market answers current and historical price requests for ISINs by
// walking a primary/fallback chain of providers behind a rate limiter and a
// TTL cache.
//
// Current prices never fail because of providers: when the whole chain fails a
// synthesized quote tagged mock is returned. Historical requests report an
// *ExhaustedError instead.
package market

import (
    "context"
    "errors"
    "math"
    "math/rand/v2"
    "slices"
    "strings"
    "sync/atomic"
    "time"

    "go.uber.org/zap"
    "golang.org/x/sync/singleflight"

    "marketdata/internal/metrics"
    "marketdata/internal/provider"
    "marketdata/internal/provider/cache"
    "marketdata/internal/provider/ratelimit"
    "marketdata/internal/symbol"
)

// PriceOptions tune a current price request.
type PriceOptions struct {
    // Provider, when set, is the only provider tried and the cache is not read.
    Provider     string
    ForceRefresh bool
}

// HistoryOptions tune a historical request. Empty Period and Interval use the defaults.
type HistoryOptions struct {
    Period       provider.Period
    Interval     provider.Interval
    Provider     string
    ForceRefresh bool
}

// PriceKey is the cache key of a current price.
func PriceKey(isin string) string { return "price_" + isin }

// HistoryKey is the cache key of a series.
func HistoryKey(isin string, p provider.Period, i provider.Interval) string {
    return "history_" + isin + "_" + string(p) + "_" + string(i)
}

// Aggregator serves prices for ISINs from a fallback chain of registered adapters.
type Aggregator struct {
    adapters map[provider.Name]provider.Adapter
    cfg      atomic.Pointer[Config]

    limiter  *ratelimit.Limiter
    resolver *symbol.Resolver
    prices   *cache.Store[provider.Quote]
    history  *cache.Store[provider.Series]
    sf       singleflight.Group

    log     *zap.Logger
    metrics *metrics.Metrics
    now     func() time.Time
    rand    func() float64
}

// Option configures an Aggregator built by New.
type Option func(*Aggregator)

// WithConfig sets the initial provider selection. Invalid configs are ignored.
func WithConfig(c Config) Option {
    return func(a *Aggregator) {
        if c.Validate() == nil { a.cfg.Store(&c) }
    }
}

func WithLimiter(l *ratelimit.Limiter) Option { return func(a *Aggregator) { a.limiter = l } }

func WithResolver(r *symbol.Resolver) Option { return func(a *Aggregator) { a.resolver = r } }

func WithPriceCache(c *cache.Store[provider.Quote]) Option { return func(a *Aggregator) { a.prices = c } }

func WithHistoryCache(c *cache.Store[provider.Series]) Option { return func(a *Aggregator) { a.history = c } }

func WithLogger(l *zap.Logger) Option { return func(a *Aggregator) { a.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(a *Aggregator) { a.metrics = m } }

// WithClock sets the time source of mock quotes.
func WithClock(now func() time.Time) Option { return func(a *Aggregator) { a.now = now } }

// WithRand sets the [0,1) source used to synthesize mock prices.
func WithRand(f func() float64) Option { return func(a *Aggregator) { a.rand = f } }

// New registers adapters by name. Later adapters with the same name win.
func New(adapters []provider.Adapter, opts ...Option) *Aggregator {
    a := &Aggregator{
        adapters: make(map[provider.Name]provider.Adapter, len(adapters)),
        log:      zap.NewNop(),
        now:      time.Now,
        rand:     rand.Float64,
    }
    for _, ad := range adapters { a.adapters[ad.Name()] = ad }
    for _, o := range opts { o(a) }
    if a.cfg.Load() == nil {
        c := DefaultConfig()
        a.cfg.Store(&c)
    }
    if a.limiter == nil { a.limiter = ratelimit.New(nil) }
    if a.resolver == nil { a.resolver = symbol.New(symbol.WithLogger(a.log)) }
    if a.prices == nil { a.prices = cache.New[provider.Quote](cache.DefaultTTL) }
    if a.history == nil { a.history = cache.New[provider.Series](cache.DefaultTTL) }
    return a
}

// Close stops the cache sweepers.
func (a *Aggregator) Close() {
    a.prices.Close()
    a.history.Close()
    a.resolver.Close()
}

// Config returns the current provider selection.
func (a *Aggregator) Config() Config {
    c := *a.cfg.Load()
    c.FallbackProviders = slices.Clone(c.FallbackProviders)
    return c
}

// ConfigureProviders replaces the provider selection in one step. Nothing
// changes when any name is invalid.
func (a *Aggregator) ConfigureProviders(primary string, fallbacks []string) error {
    c, err := ParseConfig(primary, fallbacks)
    if err != nil { return err }
    a.cfg.Store(&c)
    a.log.Info("providers configured", zap.Stringer("selection", c))
    return nil
}

func (a *Aggregator) chain(explicit provider.Name) []provider.Name {
    if explicit != "" { return []provider.Name{explicit} }
    return a.cfg.Load().Chain()
}

func parseExplicit(s string) (provider.Name, error) {
    if strings.TrimSpace(s) == "" { return "", nil }
    n, ok := provider.ParseName(s)
    if !ok || !n.Configurable() {
        return "", &ConfigurationError{Field: "provider", Value: s}
    }
    return n, nil
}

// GetCurrentPrice returns a quote for isin. Provider failures are absorbed:
// when every provider fails the quote is synthesized and tagged mock. The
// only errors are invalid requests (*ConfigurationError) and ctx ending
// before the answer is ready.
func (a *Aggregator) GetCurrentPrice(ctx context.Context, isin string, opts PriceOptions) (provider.Quote, error) {
    isin = strings.TrimSpace(isin)
    if isin == "" { return provider.Quote{}, &ConfigurationError{Field: "isin", Value: isin} }
    explicit, err := parseExplicit(opts.Provider)
    if err != nil { return provider.Quote{}, err }

    key := PriceKey(isin)
    if explicit == "" && !opts.ForceRefresh {
        if q, ok := a.prices.Get(key); ok {
            a.metrics.CacheHit("price")
            if q.Status == provider.StatusReal { q.Status = provider.StatusStaleCache }
            return q, nil
        }
        a.metrics.CacheMiss("price")
    }

    // The shared fetch outlives any single caller; provider HTTP timeouts bound it.
    detached := context.WithoutCancel(ctx)
    ch := a.sf.DoChan(key+"|"+string(explicit), func() (any, error) {
        q := a.fetchQuote(detached, isin, a.chain(explicit))
        a.prices.Set(key, q)
        return q, nil
    })
    select {
    case <-ctx.Done():
        return provider.Quote{}, ctx.Err()
    case res := <-ch:
        return res.Val.(provider.Quote), nil
    }
}

func (a *Aggregator) fetchQuote(ctx context.Context, isin string, chain []provider.Name) provider.Quote {
    errs := make([]error, 0, len(chain))
    for _, name := range chain {
        q, err := a.tryQuote(ctx, isin, name)
        if err == nil { return q }
        errs = append(errs, err)
    }
    return a.mockQuote(isin, errs)
}

// gate checks registration, credentials and the rate limit, in that order, so
// unusable providers never consume a slot.
func (a *Aggregator) gate(name provider.Name, op string, needHistory bool) (provider.Adapter, error) {
    ad, ok := a.adapters[name]
    if !ok { return nil, a.unavailable(name, op, "not registered", metrics.OutcomeUnavailable) }
    if !ad.Available() { return nil, a.unavailable(name, op, "missing credentials", metrics.OutcomeUnavailable) }
    if needHistory {
        if _, ok := ad.(provider.Historian); !ok {
            return nil, a.unavailable(name, op, "history unsupported", metrics.OutcomeUnavailable)
        }
    }
    if !a.limiter.Allow(name) { return nil, a.unavailable(name, op, "rate limited", metrics.OutcomeRateLimited) }
    return ad, nil
}

func (a *Aggregator) unavailable(name provider.Name, op, reason, outcome string) error {
    a.metrics.Attempt(string(name), op, outcome, 0)
    a.log.Debug("provider skipped", zap.String("provider", string(name)), zap.String("op", op), zap.String("reason", reason))
    return provider.Unavailable(name, reason)
}

func (a *Aggregator) tryQuote(ctx context.Context, isin string, name provider.Name) (provider.Quote, error) {
    ad, err := a.gate(name, "quote", false)
    if err != nil { return provider.Quote{}, err }

    sym := a.resolver.Resolve(isin, name)
    start := time.Now()
    q, err := ad.FetchCurrentPrice(ctx, sym)
    if err == nil { err = q.Validate() }
    if err != nil {
        err = provider.Fail(name, "quote", err)
        a.metrics.Attempt(string(name), "quote", metrics.OutcomeError, time.Since(start).Seconds())
        a.log.Warn("provider fetch failed", zap.String("isin", isin), zap.String("provider", string(name)), zap.Error(err))
        return provider.Quote{}, err
    }
    a.metrics.Attempt(string(name), "quote", metrics.OutcomeSuccess, time.Since(start).Seconds())
    q.Provider = name
    q.Status = provider.StatusReal
    q.IsMockData = false
    q.Error = ""
    return q, nil
}

// mockQuote synthesizes a plausible quote: price in [10, 510), a move of at
// most 5% either way.
func (a *Aggregator) mockQuote(isin string, errs []error) provider.Quote {
    price := math.Floor((10+a.rand()*500)*100) / 100
    pct := round2((a.rand() - 0.5) * 10)
    change := round2(price * pct / (100 + pct))
    reason := "no providers configured"
    if len(errs) > 0 { reason = summarize(errs) }

    a.metrics.MockServed()
    a.log.Warn("all providers failed, serving mock quote", zap.String("isin", isin), zap.String("error", reason))
    return provider.Quote{
        Symbol:        isin,
        Price:         price,
        Change:        change,
        ChangePercent: pct,
        Currency:      "USD",
        TimestampMs:   a.now().UnixMilli(),
        Provider:      provider.Mock,
        IsMockData:    true,
        Status:        provider.StatusMock,
        Error:         reason,
    }
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }

// GetHistoricalPrices returns a series for isin. Unlike GetCurrentPrice it
// reports total failure as an *ExhaustedError and never synthesizes data.
func (a *Aggregator) GetHistoricalPrices(ctx context.Context, isin string, opts HistoryOptions) (provider.Series, error) {
    isin = strings.TrimSpace(isin)
    if isin == "" { return provider.Series{}, &ConfigurationError{Field: "isin", Value: isin} }
    if opts.Period == "" { opts.Period = provider.DefaultPeriod }
    if opts.Interval == "" { opts.Interval = provider.DefaultInterval }
    if !opts.Period.Valid() { return provider.Series{}, &ConfigurationError{Field: "period", Value: string(opts.Period)} }
    if !opts.Interval.Valid() { return provider.Series{}, &ConfigurationError{Field: "interval", Value: string(opts.Interval)} }
    explicit, err := parseExplicit(opts.Provider)
    if err != nil { return provider.Series{}, err }

    key := HistoryKey(isin, opts.Period, opts.Interval)
    if explicit == "" && !opts.ForceRefresh {
        if s, ok := a.history.Get(key); ok {
            a.metrics.CacheHit("history")
            s.HistoricalData = slices.Clone(s.HistoricalData)
            s.Status = provider.StatusStaleCache
            return s, nil
        }
        a.metrics.CacheMiss("history")
    }

    detached := context.WithoutCancel(ctx)
    ch := a.sf.DoChan(key+"|"+string(explicit), func() (any, error) {
        s, err := a.fetchSeries(detached, isin, opts.Period, opts.Interval, a.chain(explicit))
        if err != nil { return nil, err }
        a.history.Set(key, s)
        return s, nil
    })
    select {
    case <-ctx.Done():
        return provider.Series{}, ctx.Err()
    case res := <-ch:
        if res.Err != nil { return provider.Series{}, res.Err }
        s := res.Val.(provider.Series)
        s.HistoricalData = slices.Clone(s.HistoricalData)
        return s, nil
    }
}

func (a *Aggregator) fetchSeries(ctx context.Context, isin string, p provider.Period, i provider.Interval, chain []provider.Name) (provider.Series, error) {
    errs := make([]error, 0, len(chain))
    for _, name := range chain {
        ad, err := a.gate(name, "history", true)
        if err != nil {
            errs = append(errs, err)
            continue
        }
        sym := a.resolver.Resolve(isin, name)
        start := time.Now()
        s, err := ad.(provider.Historian).FetchHistorical(ctx, sym, p, i)
        if err == nil && len(s.HistoricalData) == 0 { err = provider.ErrNoData }
        if err != nil {
            err = provider.Fail(name, "history", err)
            a.metrics.Attempt(string(name), "history", metrics.OutcomeError, time.Since(start).Seconds())
            a.log.Warn("provider history failed", zap.String("isin", isin), zap.String("provider", string(name)), zap.Error(err))
            errs = append(errs, err)
            continue
        }
        a.metrics.Attempt(string(name), "history", metrics.OutcomeSuccess, time.Since(start).Seconds())
        s.Provider = name
        s.Status = provider.StatusReal
        return s, nil
    }
    err := &ExhaustedError{ISIN: isin, Errs: errs}
    a.log.Error("historical lookup exhausted", zap.String("isin", isin), zap.Error(err))
    return provider.Series{}, err
}

// ProviderStatus describes one configurable provider.
type ProviderStatus struct {
    Name       provider.Name   `json:"name"`
    Registered bool            `json:"registered"`
    Available  bool            `json:"available"`
    Historical bool            `json:"historical"`
    RateLimit  ratelimit.State `json:"rateLimit"`
}

// Status is the selection plus per-provider health.
type Status struct {
    Config
    Providers []ProviderStatus `json:"providers"`
}

func (a *Aggregator) Status() Status {
    snap := a.limiter.Snapshot()
    st := Status{Config: a.Config(), Providers: make([]ProviderStatus, 0, len(provider.Known))}
    for _, name := range provider.Known {
        ps := ProviderStatus{Name: name, RateLimit: snap[name]}
        if ad, ok := a.adapters[name]; ok {
            ps.Registered = true
            ps.Available = ad.Available()
            _, ps.Historical = ad.(provider.Historian)
        }
        st.Providers = append(st.Providers, ps)
    }
    return st
}

// IsConfigurationError reports whether err is a request validation error.
func IsConfigurationError(err error) bool {
    var ce *ConfigurationError
    return errors.As(err, &ce)
}
