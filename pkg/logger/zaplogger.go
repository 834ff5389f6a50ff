package logger

import "go.uber.org/zap"

// ZapLogger adapts a sugared zap logger to Logger.
type ZapLogger struct {
	log *zap.SugaredLogger
}

var std *ZapLogger

// NewLogger builds a logger from config and installs it as the package
// default. The package helpers add one frame, hence the caller skip.
func NewLogger(config zap.Config) (*ZapLogger, error) {
	base, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	std = &ZapLogger{log: base.Sugar()}
	return std, nil
}

// Default returns the package default logger.
func Default() *ZapLogger {
	return std
}

// With returns a child logger that always carries the given key/value pairs.
func (l *ZapLogger) With(values ...any) *ZapLogger {
	return &ZapLogger{log: l.log.With(values...)}
}

func (l *ZapLogger) Info(message string, values ...any)  { l.log.Infow(message, values...) }
func (l *ZapLogger) Warn(message string, values ...any)  { l.log.Warnw(message, values...) }
func (l *ZapLogger) Error(message string, values ...any) { l.log.Errorw(message, values...) }
func (l *ZapLogger) Debug(message string, values ...any) { l.log.Debugw(message, values...) }
func (l *ZapLogger) Panic(message string, values ...any) { l.log.Panicw(message, values...) }

func (l *ZapLogger) Fatal(err error, values ...any) {
	l.log.Fatalw(err.Error(), values...)
}

// Printf lets fasthttp log through zap.
func (l *ZapLogger) Printf(format string, args ...interface{}) {
	l.log.Infof(format, args...)
}
