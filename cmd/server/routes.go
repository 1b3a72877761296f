package main

import (
    "context"
    "errors"
    "net/http"
    "strconv"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/google/uuid"
    "go.uber.org/zap"

    "marketdata/internal/batch"
    "marketdata/internal/market"
    "marketdata/internal/metrics"
    "marketdata/internal/provider"
)

const requestIDHeader = "X-Request-ID"

// maxBody caps JSON request bodies.
const maxBody = 4 << 20

type handler struct {
    market  *market.Aggregator
    batch   *batch.Updater
    metrics *metrics.Metrics
    log     *zap.Logger
    // timeout bounds single price and history lookups.
    timeout time.Duration
}

func newRouter(h *handler) *gin.Engine {
    r := gin.New()
    r.Use(h.recovery(), h.requestID(), h.accessLog())

    r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
    r.GET("/status", h.status)
    r.GET("/metrics", gin.WrapH(h.metrics.Handler()))

    r.GET("/price/:isin", h.price)
    r.GET("/historical/:isin", h.historical)
    r.PUT("/update-securities", h.updateSecurities)
    r.POST("/configure", h.configure)
    return r
}

func (h *handler) recovery() gin.HandlerFunc {
    return gin.CustomRecovery(func(c *gin.Context, rec any) {
        h.log.Error("panic serving request", zap.Any("panic", rec), zap.String("path", c.Request.URL.Path), zap.String("request_id", c.GetString("request_id")))
        c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
    })
}

// requestID propagates an incoming X-Request-ID or assigns a new one.
func (h *handler) requestID() gin.HandlerFunc {
    return func(c *gin.Context) {
        id := c.GetHeader(requestIDHeader)
        if id == "" { id = uuid.NewString() }
        c.Set("request_id", id)
        c.Header(requestIDHeader, id)
        c.Next()
    }
}

func (h *handler) accessLog() gin.HandlerFunc {
    return func(c *gin.Context) {
        start := time.Now()
        if c.Request.Body != nil {
            c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
        }
        c.Next()

        route := c.FullPath()
        if route == "" { route = "unmatched" }
        code := c.Writer.Status()
        h.metrics.Request(route, strconv.Itoa(code))
        h.log.Info("request",
            zap.String("method", c.Request.Method),
            zap.String("route", route),
            zap.String("path", c.Request.URL.Path),
            zap.Int("status", code),
            zap.Duration("elapsed", time.Since(start)),
            zap.String("request_id", c.GetString("request_id")),
        )
    }
}

func (h *handler) lookupContext(c *gin.Context) (context.Context, context.CancelFunc) {
    if h.timeout <= 0 { return context.WithCancel(c.Request.Context()) }
    return context.WithTimeout(c.Request.Context(), h.timeout)
}

type priceQuery struct {
    Provider     string `form:"provider"`
    ForceRefresh bool   `form:"forceRefresh"`
}

func (h *handler) price(c *gin.Context) {
    var q priceQuery
    if err := c.ShouldBindQuery(&q); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    ctx, cancel := h.lookupContext(c)
    defer cancel()

    quote, err := h.market.GetCurrentPrice(ctx, c.Param("isin"), market.PriceOptions{Provider: q.Provider, ForceRefresh: q.ForceRefresh})
    if err != nil {
        h.fail(c, err)
        return
    }
    c.JSON(http.StatusOK, gin.H{"data": quote})
}

type historyQuery struct {
    Period       string `form:"period"`
    Interval     string `form:"interval"`
    Provider     string `form:"provider"`
    ForceRefresh bool   `form:"forceRefresh"`
}

func (h *handler) historical(c *gin.Context) {
    var q historyQuery
    if err := c.ShouldBindQuery(&q); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    ctx, cancel := h.lookupContext(c)
    defer cancel()

    series, err := h.market.GetHistoricalPrices(ctx, c.Param("isin"), market.HistoryOptions{
        Period:       provider.Period(q.Period),
        Interval:     provider.Interval(q.Interval),
        Provider:     q.Provider,
        ForceRefresh: q.ForceRefresh,
    })
    if err != nil {
        h.fail(c, err)
        return
    }
    c.JSON(http.StatusOK, gin.H{"data": series})
}

type updateBody struct {
    Securities []batch.Security `json:"securities"`
    Options    batch.Options    `json:"options"`
}

func (h *handler) updateSecurities(c *gin.Context) {
    var b updateBody
    if err := c.ShouldBindJSON(&b); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    if b.Securities == nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "securities must be an array"})
        return
    }
    if b.Options.Provider != "" {
        if n, ok := provider.ParseName(b.Options.Provider); !ok || !n.Configurable() {
            h.fail(c, &market.ConfigurationError{Field: "provider", Value: b.Options.Provider})
            return
        }
    }
    c.JSON(http.StatusOK, h.batch.Update(c.Request.Context(), b.Securities, b.Options))
}

type configureBody struct {
    PrimaryProvider   string   `json:"primaryProvider"`
    FallbackProviders []string `json:"fallbackProviders"`
}

func (h *handler) configure(c *gin.Context) {
    var b configureBody
    if err := c.ShouldBindJSON(&b); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    if err := h.market.ConfigureProviders(b.PrimaryProvider, b.FallbackProviders); err != nil {
        h.fail(c, err)
        return
    }
    c.JSON(http.StatusOK, gin.H{"data": h.market.Config()})
}

func (h *handler) status(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"data": h.market.Status()})
}

func (h *handler) fail(c *gin.Context, err error) {
    var ce *market.ConfigurationError
    var ee *market.ExhaustedError
    switch {
    case errors.As(err, &ce):
        c.JSON(http.StatusBadRequest, gin.H{"error": ce.Error(), "field": ce.Field})
    case errors.As(err, &ee):
        msgs := make([]string, 0, len(ee.Errs))
        for _, e := range ee.Errs { msgs = append(msgs, e.Error()) }
        c.JSON(http.StatusBadGateway, gin.H{"error": ee.Error(), "errors": msgs})
    case errors.Is(err, context.DeadlineExceeded):
        c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
    default:
        h.log.Error("request failed", zap.Error(err), zap.String("request_id", c.GetString("request_id")))
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
    }
}
