// Package logger is the process-wide structured logger. Call sites log with
// key/value pairs: logger.Info("[payments] order created", "order_id", id).
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is what fasthttp and the other components accept.
type Logger interface {
	Info(msg string, values ...any)
	Warn(msg string, values ...any)
	Error(msg string, values ...any)
	Debug(msg string, values ...any)
	Panic(message string, values ...any)
	Fatal(error error, values ...any)
	Printf(format string, args ...interface{})
}

// configFromEnv picks the JSON production preset when LOG_ENV=production and
// the console development preset otherwise. LOG_LEVEL overrides the level.
func configFromEnv() zap.Config {
	cfg := zap.NewDevelopmentConfig()
	if os.Getenv("LOG_ENV") == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if lvl := strings.TrimSpace(os.Getenv("LOG_LEVEL")); lvl != "" {
		var level zapcore.Level
		if level.UnmarshalText([]byte(strings.ToLower(lvl))) == nil {
			cfg.Level = zap.NewAtomicLevelAt(level)
		}
	}
	if app := os.Getenv("APP_NAME"); app != "" {
		cfg.InitialFields = map[string]interface{}{"app": app}
	}
	return cfg
}

func init() {
	if _, err := NewLogger(configFromEnv()); err != nil {
		panic(err)
	}
}

func Info(msg string, values ...any)  { std.log.Infow(msg, values...) }
func Warn(msg string, values ...any)  { std.log.Warnw(msg, values...) }
func Error(msg string, values ...any) { std.log.Errorw(msg, values...) }
func Debug(msg string, values ...any) { std.log.Debugw(msg, values...) }
func Panic(msg string, values ...any) { std.log.Panicw(msg, values...) }

func Fatal(err error, values ...any) {
	std.log.Fatalw(err.Error(), values...)
}

// Sync flushes buffered entries, call it before the process exits.
func Sync() {
	_ = std.log.Sync()
}
