// Package bootstrap wires configuration into a ready aggregation engine.
package bootstrap

import (
    "fmt"

    "go.uber.org/zap"

    "marketdata/internal/batch"
    "marketdata/internal/config"
    "marketdata/internal/httpx"
    "marketdata/internal/market"
    "marketdata/internal/metrics"
    "marketdata/internal/provider"
    "marketdata/internal/provider/alphavantage"
    "marketdata/internal/provider/cache"
    "marketdata/internal/provider/finnhub"
    "marketdata/internal/provider/iex"
    "marketdata/internal/provider/polygon"
    "marketdata/internal/provider/ratelimit"
    "marketdata/internal/provider/yahoo"
    "marketdata/internal/symbol"
)

type App struct {
    Config  config.Config
    Log     *zap.Logger
    Metrics *metrics.Metrics
    Market  *market.Aggregator
    Batch   *batch.Updater
}

// Adapters builds one adapter per provider. Keys are read from keys on every
// call, so a provider without a key is registered but unavailable.
func Adapters(cfg config.Config, doer httpx.Doer, keys provider.KeyStore) []provider.Adapter {
    p := cfg.Providers
    y := []yahoo.Option{yahoo.WithHTTPClient(doer)}
    if p.Yahoo.Endpoint != "" { y = append(y, yahoo.WithBaseURL(p.Yahoo.Endpoint)) }
    av := []alphavantage.Option{alphavantage.WithHTTPClient(doer)}
    if p.AlphaVantage.Endpoint != "" { av = append(av, alphavantage.WithBaseURL(p.AlphaVantage.Endpoint)) }
    ix := []iex.Option{iex.WithHTTPClient(doer)}
    if p.IEX.Endpoint != "" { ix = append(ix, iex.WithBaseURL(p.IEX.Endpoint)) }
    fh := []finnhub.Option{finnhub.WithHTTPClient(doer)}
    if p.Finnhub.Endpoint != "" { fh = append(fh, finnhub.WithBaseURL(p.Finnhub.Endpoint)) }
    pg := []polygon.Option{polygon.WithHTTPClient(doer)}
    if p.Polygon.Endpoint != "" { pg = append(pg, polygon.WithBaseURL(p.Polygon.Endpoint)) }

    return []provider.Adapter{
        yahoo.New(y...),
        alphavantage.New(keys, av...),
        iex.New(keys, ix...),
        finnhub.New(keys, fh...),
        polygon.New(keys, pg...),
    }
}

// New builds the engine from cfg. doer may be nil to use the default HTTP client.
func New(cfg config.Config, log *zap.Logger, doer httpx.Doer) (*App, error) {
    if log == nil { log = zap.NewNop() }
    selection, err := market.ParseConfig(cfg.Providers.Primary, cfg.Providers.Fallbacks)
    if err != nil { return nil, fmt.Errorf("providers: %w", err) }
    if doer == nil { doer = httpx.New(cfg.RequestTimeout()) }

    keys := cfg.Keys()
    for _, n := range provider.Known {
        if n == provider.Yahoo { continue }
        if _, ok := keys.APIKey(n); !ok {
            log.Warn("no API key configured, provider disabled", zap.String("provider", string(n)))
        }
    }

    m := metrics.New()
    period := cache.WithCheckPeriod(cfg.CacheCheckPeriod())
    resolver := symbol.New(
        symbol.WithCache(cache.New[string](cfg.SymbolTTL(), period)),
        symbol.WithSimplified(cfg.Simplified()...),
        symbol.WithLogger(log.Named("symbol")),
    )
    agg := market.New(Adapters(cfg, doer, keys),
        market.WithConfig(selection),
        market.WithLimiter(ratelimit.New(cfg.RateLimits())),
        market.WithResolver(resolver),
        market.WithPriceCache(cache.New[provider.Quote](cfg.CacheTTL(), period)),
        market.WithHistoryCache(cache.New[provider.Series](cfg.CacheTTL(), period)),
        market.WithLogger(log.Named("market")),
        market.WithMetrics(m),
    )
    upd := batch.New(agg,
        batch.WithChunkSize(cfg.Batch.ChunkSize),
        batch.WithDelay(cfg.BatchDelay()),
        batch.WithLogger(log.Named("batch")),
        batch.WithMetrics(m),
    )
    log.Info("market data engine ready", zap.Stringer("providers", selection))
    return &App{Config: cfg, Log: log, Metrics: m, Market: agg, Batch: upd}, nil
}

func (a *App) Close() { a.Market.Close() }
