package main

import (
    "context"
    "encoding/json"
    "flag"
    "fmt"
    "io"
    "os"
    "time"

    "github.com/google/subcommands"
    "go.uber.org/zap"

    "marketdata/internal/batch"
    "marketdata/internal/bootstrap"
    "marketdata/internal/config"
    "marketdata/internal/logging"
    "marketdata/internal/market"
    "marketdata/internal/provider"
)

// opener builds the engine from a config path.
type opener func(configPath string) (*bootstrap.App, error)

func openApp(configPath string) (*bootstrap.App, error) {
    cfg, err := config.Load(configPath)
    if err != nil { return nil, err }
    // keep stdout clean for JSON
    cfg.Log.Production = false
    if cfg.Log.Level == "info" { cfg.Log.Level = "warn" }
    log, err := logging.New(cfg.Log)
    if err != nil { return nil, err }
    return bootstrap.New(cfg, log, nil)
}

func commands(out io.Writer, open opener) []subcommands.Command {
    return []subcommands.Command{
        &priceCmd{common: common{out: out, open: open}},
        &historyCmd{common: common{out: out, open: open}},
        &batchCmd{common: common{out: out, open: open}},
    }
}

// common carries the flags and plumbing every command shares.
type common struct {
    out        io.Writer
    open       opener
    configPath string
    provider   string
    force      bool
}

func (c *common) setFlags(f *flag.FlagSet) {
    f.StringVar(&c.configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json (optional)")
    f.StringVar(&c.provider, "provider", "", "query only this provider")
    f.BoolVar(&c.force, "force", false, "bypass the cache")
}

func (c *common) app() (*bootstrap.App, subcommands.ExitStatus) {
    app, err := c.open(c.configPath)
    if err != nil {
        fmt.Fprintf(os.Stderr, "Error: %v\n", err)
        return nil, subcommands.ExitFailure
    }
    return app, subcommands.ExitSuccess
}

func (c *common) print(v any) subcommands.ExitStatus {
    enc := json.NewEncoder(c.out)
    enc.SetIndent("", "  ")
    enc.SetEscapeHTML(false)
    if err := enc.Encode(v); err != nil {
        fmt.Fprintf(os.Stderr, "Error: %v\n", err)
        return subcommands.ExitFailure
    }
    return subcommands.ExitSuccess
}

type priceCmd struct{ common }

func (*priceCmd) Name() string     { return "price" }
func (*priceCmd) Synopsis() string { return "prints the current price of one or more ISINs" }
func (*priceCmd) Usage() string {
    return `price [-provider name] [-force] <isin>...

Prints one quote per ISIN. Quotes that no provider could serve are tagged mock.
`
}

func (c *priceCmd) SetFlags(f *flag.FlagSet) { c.setFlags(f) }

func (c *priceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
    if f.NArg() == 0 {
        f.Usage()
        return subcommands.ExitUsageError
    }
    app, status := c.app()
    if app == nil { return status }
    defer app.Close()

    quotes := make([]provider.Quote, 0, f.NArg())
    for _, isin := range f.Args() {
        q, err := app.Market.GetCurrentPrice(ctx, isin, market.PriceOptions{Provider: c.provider, ForceRefresh: c.force})
        if err != nil {
            fmt.Fprintf(os.Stderr, "Error: %s: %v\n", isin, err)
            return subcommands.ExitFailure
        }
        quotes = append(quotes, q)
    }
    return c.print(quotes)
}

type historyCmd struct {
    common
    period   string
    interval string
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "prints the historical series of an ISIN" }
func (*historyCmd) Usage() string {
    return `history [-period 1y] [-interval 1d] [-provider name] <isin>

Periods: 1d 1w 1m 3m 6m 1y 5y. Intervals: 1m 5m 15m 30m 1h 1d 1wk 1mo.
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
    c.setFlags(f)
    f.StringVar(&c.period, "period", string(provider.DefaultPeriod), "lookback period")
    f.StringVar(&c.interval, "interval", string(provider.DefaultInterval), "bar interval")
}

func (c *historyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
    if f.NArg() != 1 {
        f.Usage()
        return subcommands.ExitUsageError
    }
    app, status := c.app()
    if app == nil { return status }
    defer app.Close()

    s, err := app.Market.GetHistoricalPrices(ctx, f.Arg(0), market.HistoryOptions{
        Period:       provider.Period(c.period),
        Interval:     provider.Interval(c.interval),
        Provider:     c.provider,
        ForceRefresh: c.force,
    })
    if err != nil {
        fmt.Fprintf(os.Stderr, "Error: %v\n", err)
        if market.IsConfigurationError(err) { return subcommands.ExitUsageError }
        return subcommands.ExitFailure
    }
    return c.print(s)
}

type batchCmd struct {
    common
    delay time.Duration
}

func (*batchCmd) Name() string     { return "batch" }
func (*batchCmd) Synopsis() string { return "enriches a JSON array of securities with market prices" }
func (*batchCmd) Usage() string {
    return `batch [-provider name] [-delay 1s] <file.json>

Reads an array of securities (objects with "isin" and optional "quantity"),
use - for stdin, and prints the enriched array with the number of prices added.
`
}

func (c *batchCmd) SetFlags(f *flag.FlagSet) {
    c.setFlags(f)
    f.DurationVar(&c.delay, "delay", -1, "pause between chunks; negative keeps the configured value")
}

func (c *batchCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
    if f.NArg() != 1 {
        f.Usage()
        return subcommands.ExitUsageError
    }
    securities, err := readSecurities(f.Arg(0))
    if err != nil {
        fmt.Fprintf(os.Stderr, "Error: could not read securities: %v\n", err)
        return subcommands.ExitFailure
    }
    app, status := c.app()
    if app == nil { return status }
    defer app.Close()

    upd := app.Batch
    if c.delay >= 0 {
        upd = batch.New(app.Market,
            batch.WithChunkSize(app.Config.Batch.ChunkSize),
            batch.WithDelay(c.delay),
            batch.WithLogger(app.Log.Named("batch")),
            batch.WithMetrics(app.Metrics),
        )
    }
    res := upd.Update(ctx, securities, batch.Options{Provider: c.provider, ForceRefresh: c.force})
    app.Log.Info("batch finished", zap.Int("securities", len(res.Securities)), zap.Int("added", res.MarketPricesAdded))
    return c.print(res)
}

func readSecurities(name string) ([]batch.Security, error) {
    var r io.Reader = os.Stdin
    if name != "-" {
        f, err := os.Open(name)
        if err != nil { return nil, err }
        defer f.Close()
        r = f
    }
    dec := json.NewDecoder(r)
    dec.UseNumber()
    var out []batch.Security
    if err := dec.Decode(&out); err != nil { return nil, err }
    return out, nil
}
