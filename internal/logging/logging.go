// Package logging builds the zap logger shared by the binaries.
package logging

import (
    "fmt"
    "os"

    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
    "gopkg.in/natefinch/lumberjack.v2"

    "marketdata/internal/config"
)

// FileWriter rotates the log file at 20 MB, keeping 5 backups for 28 days.
func FileWriter(name string) zapcore.WriteSyncer {
    return zapcore.AddSync(&lumberjack.Logger{
        Filename:   name,
        MaxSize:    20, // MB
        MaxBackups: 5,
        MaxAge:     28, // days
        LocalTime:  true,
    })
}

// New returns a console logger in development and a JSON one in production.
// When cfg.File is set every entry is also written, as JSON, to that file.
func New(cfg config.Log) (*zap.Logger, error) {
    level := zap.InfoLevel
    if cfg.Level != "" {
        l, err := zapcore.ParseLevel(cfg.Level)
        if err != nil { return nil, fmt.Errorf("log level: %w", err) }
        level = l
    }

    var enc zapcore.EncoderConfig
    if cfg.Production {
        enc = zap.NewProductionEncoderConfig()
    } else {
        enc = zap.NewDevelopmentEncoderConfig()
        enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
    }
    enc.EncodeTime = zapcore.ISO8601TimeEncoder

    var console zapcore.Encoder
    if cfg.Production {
        console = zapcore.NewJSONEncoder(enc)
    } else {
        console = zapcore.NewConsoleEncoder(enc)
    }
    cores := []zapcore.Core{zapcore.NewCore(console, zapcore.Lock(os.Stderr), level)}
    if cfg.File != "" {
        fileEnc := zap.NewProductionEncoderConfig()
        fileEnc.EncodeTime = zapcore.ISO8601TimeEncoder
        cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEnc), FileWriter(cfg.File), level))
    }
    return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)), nil
}
