package main

import (
    "context"
    "errors"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/gin-gonic/gin"
    "go.uber.org/zap"

    "marketdata/internal/bootstrap"
    "marketdata/internal/config"
    "marketdata/internal/logging"
)

func main() {
    cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
    if err != nil { log.Fatalf("config: %v", err) }
    logger, err := logging.New(cfg.Log)
    if err != nil { log.Fatalf("logging: %v", err) }
    defer func() { _ = logger.Sync() }()

    app, err := bootstrap.New(cfg, logger, nil)
    if err != nil { logger.Fatal("bootstrap", zap.Error(err)) }
    defer app.Close()

    if cfg.Log.Production { gin.SetMode(gin.ReleaseMode) }
    h := &handler{
        market:  app.Market,
        batch:   app.Batch,
        metrics: app.Metrics,
        log:     logger.Named("http"),
        timeout: 2 * cfg.RequestTimeout(),
    }
    srv := &http.Server{
        Addr:              ":" + cfg.Server.Port,
        Handler:           newRouter(h),
        ReadHeaderTimeout: 5 * time.Second,
        ReadTimeout:       15 * time.Second,
        IdleTimeout:       60 * time.Second,
    }

    go func() {
        logger.Info("server listening", zap.String("addr", srv.Addr))
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            logger.Fatal("server", zap.Error(err))
        }
    }()

    // graceful shutdown
    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()
    <-ctx.Done()
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := srv.Shutdown(shutdownCtx); err != nil {
        logger.Warn("shutdown", zap.Error(err))
    }
}
