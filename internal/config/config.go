package config

import (
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "strings"
    "time"

    "github.com/joho/godotenv"

    "marketdata/internal/provider"
    "marketdata/internal/provider/ratelimit"
)

type Server struct {
    Port              string `json:"port"`
    RequestTimeoutSec int    `json:"request_timeout_sec"`
}

// Provider holds the settings of one upstream API.
type Provider struct {
    APIKey               string `json:"api_key"`
    Endpoint             string `json:"endpoint"`
    MaxRequestsPerMinute int    `json:"max_requests_per_minute"`
}

type Providers struct {
    Primary   string   `json:"primary"`
    Fallbacks []string `json:"fallbacks"`
    // SimplifiedSymbols lists providers that take the CUSIP part of US ISINs.
    SimplifiedSymbols []string `json:"simplified_symbols"`

    Yahoo        Provider `json:"yahoo"`
    AlphaVantage Provider `json:"alphavantage"`
    IEX          Provider `json:"iex"`
    Finnhub      Provider `json:"finnhub"`
    Polygon      Provider `json:"polygon"`
}

type Cache struct {
    TTLSec         int `json:"ttl_sec"`
    CheckPeriodSec int `json:"check_period_sec"`
    SymbolTTLSec   int `json:"symbol_ttl_sec"`
}

type Batch struct {
    ChunkSize int `json:"chunk_size"`
    DelayMs   int `json:"delay_ms"`
}

type Log struct {
    Level string `json:"level"`
    // File, when set, receives a rotated copy of the log.
    File       string `json:"file"`
    Production bool   `json:"production"`
}

type Config struct {
    Server    Server    `json:"server"`
    Providers Providers `json:"providers"`
    Cache     Cache     `json:"cache"`
    Batch     Batch     `json:"batch"`
    Log       Log       `json:"log"`
}

func Default() Config {
    rpm := ratelimit.DefaultLimits
    return Config{
        Server: Server{Port: "8080", RequestTimeoutSec: 10},
        Providers: Providers{
            Primary:           string(provider.Yahoo),
            Fallbacks:         []string{string(provider.AlphaVantage), string(provider.IEX), string(provider.Finnhub), string(provider.Polygon)},
            SimplifiedSymbols: []string{string(provider.IEX)},
            Yahoo:             Provider{Endpoint: "https://query1.finance.yahoo.com", MaxRequestsPerMinute: rpm[provider.Yahoo]},
            AlphaVantage:      Provider{Endpoint: "https://www.alphavantage.co", MaxRequestsPerMinute: rpm[provider.AlphaVantage]},
            IEX:               Provider{Endpoint: "https://cloud.iexapis.com", MaxRequestsPerMinute: rpm[provider.IEX]},
            Finnhub:           Provider{Endpoint: "https://finnhub.io", MaxRequestsPerMinute: rpm[provider.Finnhub]},
            Polygon:           Provider{Endpoint: "https://api.polygon.io", MaxRequestsPerMinute: rpm[provider.Polygon]},
        },
        Cache: Cache{TTLSec: 900, CheckPeriodSec: 120, SymbolTTLSec: 30 * 24 * 3600},
        Batch: Batch{ChunkSize: 10, DelayMs: 1000},
        Log:   Log{Level: "info"},
    }
}

// Load reads JSON config from path. If path is empty or file does not exist,
// it returns defaults. A .env file in the working directory is loaded next
// (existing variables win), then environment variables override select fields.
func Load(path string) (Config, error) {
    cfg := Default()
    if path == "" {
        if _, err := os.Stat("config.json"); err == nil {
            path = "config.json"
        }
    }
    if path != "" {
        b, err := os.ReadFile(path)
        if err != nil && !errors.Is(err, os.ErrNotExist) {
            return cfg, fmt.Errorf("read config: %w", err)
        }
        if err == nil {
            if err := json.Unmarshal(b, &cfg); err != nil {
                return cfg, fmt.Errorf("parse config: %w", err)
            }
        }
    }
    if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
        return cfg, fmt.Errorf("load .env: %w", err)
    }
    applyEnv(&cfg)
    return cfg, nil
}

func applyEnv(cfg *Config) {
    if v := os.Getenv("PORT"); v != "" { cfg.Server.Port = v }
    if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
        var x int; if n, _ := fmt.Sscanf(v, "%d", &x); n == 1 && x > 0 { cfg.Server.RequestTimeoutSec = x }
    }
    if v := os.Getenv("PRIMARY_PROVIDER"); v != "" { cfg.Providers.Primary = strings.TrimSpace(v) }
    if v := os.Getenv("FALLBACK_PROVIDERS"); v != "" { cfg.Providers.Fallbacks = splitCSV(v) }
    if v := os.Getenv("SIMPLIFIED_SYMBOL_PROVIDERS"); v != "" { cfg.Providers.SimplifiedSymbols = splitCSV(v) }

    for prefix, p := range map[string]*Provider{
        "YAHOO":        &cfg.Providers.Yahoo,
        "ALPHAVANTAGE": &cfg.Providers.AlphaVantage,
        "IEX":          &cfg.Providers.IEX,
        "FINNHUB":      &cfg.Providers.Finnhub,
        "POLYGON":      &cfg.Providers.Polygon,
    } {
        if v := os.Getenv(prefix + "_API_KEY"); v != "" { p.APIKey = v }
        if v := os.Getenv(prefix + "_ENDPOINT"); v != "" { p.Endpoint = v }
        if v := os.Getenv(prefix + "_MAX_RPM"); v != "" {
            var x int; if n, _ := fmt.Sscanf(v, "%d", &x); n == 1 && x >= 0 { p.MaxRequestsPerMinute = x }
        }
    }

    if v := os.Getenv("CACHE_TTL_SEC"); v != "" {
        var x int; if n, _ := fmt.Sscanf(v, "%d", &x); n == 1 && x > 0 { cfg.Cache.TTLSec = x }
    }
    if v := os.Getenv("CACHE_CHECK_PERIOD_SEC"); v != "" {
        var x int; if n, _ := fmt.Sscanf(v, "%d", &x); n == 1 && x >= 0 { cfg.Cache.CheckPeriodSec = x }
    }
    if v := os.Getenv("SYMBOL_CACHE_TTL_SEC"); v != "" {
        var x int; if n, _ := fmt.Sscanf(v, "%d", &x); n == 1 && x > 0 { cfg.Cache.SymbolTTLSec = x }
    }
    if v := os.Getenv("BATCH_CHUNK_SIZE"); v != "" {
        var x int; if n, _ := fmt.Sscanf(v, "%d", &x); n == 1 && x > 0 { cfg.Batch.ChunkSize = x }
    }
    if v := os.Getenv("BATCH_DELAY_MS"); v != "" {
        var x int; if n, _ := fmt.Sscanf(v, "%d", &x); n == 1 && x >= 0 { cfg.Batch.DelayMs = x }
    }
    if v := os.Getenv("LOG_LEVEL"); v != "" { cfg.Log.Level = v }
    if v := os.Getenv("LOG_FILE"); v != "" { cfg.Log.File = v }
    if v := os.Getenv("LOG_PRODUCTION"); v != "" {
        switch strings.ToLower(v) {
        case "1","true","yes","y": cfg.Log.Production = true
        case "0","false","no","n": cfg.Log.Production = false
        }
    }
}

func splitCSV(s string) []string {
    parts := strings.Split(s, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        p = strings.TrimSpace(p)
        if p != "" { out = append(out, p) }
    }
    return out
}

// ByName returns the settings of one provider.
func (p *Providers) ByName(n provider.Name) (Provider, bool) {
    switch n {
    case provider.Yahoo:
        return p.Yahoo, true
    case provider.AlphaVantage:
        return p.AlphaVantage, true
    case provider.IEX:
        return p.IEX, true
    case provider.Finnhub:
        return p.Finnhub, true
    case provider.Polygon:
        return p.Polygon, true
    }
    return Provider{}, false
}

// Keys exposes the configured API keys as a provider.KeyStore.
func (c Config) Keys() provider.StaticKeys {
    keys := provider.StaticKeys{}
    for _, n := range provider.Known {
        if p, ok := c.Providers.ByName(n); ok && p.APIKey != "" { keys[n] = p.APIKey }
    }
    return keys
}

// RateLimits returns the per-minute ceilings keyed by provider.
func (c Config) RateLimits() map[provider.Name]int {
    out := make(map[provider.Name]int, len(provider.Known))
    for _, n := range provider.Known {
        if p, ok := c.Providers.ByName(n); ok { out[n] = p.MaxRequestsPerMinute }
    }
    return out
}

// Simplified parses SimplifiedSymbols, dropping unknown names.
func (c Config) Simplified() []provider.Name {
    out := make([]provider.Name, 0, len(c.Providers.SimplifiedSymbols))
    for _, s := range c.Providers.SimplifiedSymbols {
        if n, ok := provider.ParseName(s); ok && n.Configurable() { out = append(out, n) }
    }
    return out
}

func (c Config) RequestTimeout() time.Duration { return time.Duration(c.Server.RequestTimeoutSec) * time.Second }

func (c Config) CacheTTL() time.Duration { return time.Duration(c.Cache.TTLSec) * time.Second }

func (c Config) CacheCheckPeriod() time.Duration { return time.Duration(c.Cache.CheckPeriodSec) * time.Second }

func (c Config) SymbolTTL() time.Duration { return time.Duration(c.Cache.SymbolTTLSec) * time.Second }

func (c Config) BatchDelay() time.Duration { return time.Duration(c.Batch.DelayMs) * time.Millisecond }
