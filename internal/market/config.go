package market

import (
    "fmt"
    "slices"
    "strings"

    "marketdata/internal/provider"
)

// Config selects the providers consulted when a request names none.
type Config struct {
    PrimaryProvider   provider.Name   `json:"primaryProvider"`
    FallbackProviders []provider.Name `json:"fallbackProviders"`
}

// DefaultConfig tries Yahoo first, then every keyed provider.
func DefaultConfig() Config {
    return Config{
        PrimaryProvider:   provider.Yahoo,
        FallbackProviders: []provider.Name{provider.AlphaVantage, provider.IEX, provider.Finnhub, provider.Polygon},
    }
}

// ConfigurationError reports an invalid provider name, period or interval.
type ConfigurationError struct {
    Field string
    Value string
}

func (e *ConfigurationError) Error() string {
    return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

// ParseConfig validates raw provider names (aliases allowed) into a Config.
// Mock is rejected: it only tags synthesized quotes.
func ParseConfig(primary string, fallbacks []string) (Config, error) {
    p, ok := provider.ParseName(primary)
    if !ok || !p.Configurable() {
        return Config{}, &ConfigurationError{Field: "primaryProvider", Value: primary}
    }
    cfg := Config{PrimaryProvider: p, FallbackProviders: make([]provider.Name, 0, len(fallbacks))}
    for _, f := range fallbacks {
        n, ok := provider.ParseName(f)
        if !ok || !n.Configurable() {
            return Config{}, &ConfigurationError{Field: "fallbackProviders", Value: f}
        }
        cfg.FallbackProviders = append(cfg.FallbackProviders, n)
    }
    return cfg, nil
}

func (c Config) Validate() error {
    names := make([]string, 0, len(c.FallbackProviders))
    for _, f := range c.FallbackProviders { names = append(names, string(f)) }
    _, err := ParseConfig(string(c.PrimaryProvider), names)
    return err
}

// Chain is the attempt order: primary, then fallbacks, each name once.
func (c Config) Chain() []provider.Name {
    out := make([]provider.Name, 0, 1+len(c.FallbackProviders))
    for _, n := range append([]provider.Name{c.PrimaryProvider}, c.FallbackProviders...) {
        if n == "" || slices.Contains(out, n) { continue }
        out = append(out, n)
    }
    return out
}

func (c Config) String() string {
    parts := make([]string, 0, len(c.FallbackProviders))
    for _, f := range c.FallbackProviders { parts = append(parts, string(f)) }
    return fmt.Sprintf("%s -> [%s]", c.PrimaryProvider, strings.Join(parts, ","))
}
