package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu    sync.Mutex
	sugar *zap.SugaredLogger
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// initLogger builds the process-wide zap logger lazily so that packages
// can log before main has decided on verbosity.
func initLogger() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	if sugar == nil {
		cfg := zap.NewDevelopmentConfig()
		cfg.Encoding = "console"
		cfg.Level = level
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		l, err := cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			// Building a console logger from a static config cannot
			// realistically fail; fall back to a no-op logger if it does.
			l = zap.NewNop()
		}
		sugar = l.Sugar()
	}
	return sugar
}

func logger() *zap.SugaredLogger {
	mu.Lock()
	s := sugar
	mu.Unlock()
	if s != nil {
		return s
	}
	return initLogger()
}

// SetDebug toggles debug-level output.
func SetDebug(debug bool) {
	if debug {
		level.SetLevel(zapcore.DebugLevel)
	} else {
		level.SetLevel(zapcore.InfoLevel)
	}
}

func Debug(msg string, kv ...any) {
	logger().Debugw(msg, kv...)
}

func Info(msg string, kv ...any) {
	logger().Infow(msg, kv...)
}

func Warn(msg string, kv ...any) {
	logger().Warnw(msg, kv...)
}

// Error logs msg with the error prepended to the key-value list.
func Error(msg string, err error, kv ...any) {
	logger().Errorw(msg, append([]any{"err", err}, kv...)...)
}

// Sync flushes buffered log entries; call on shutdown.
func Sync() {
	_ = logger().Sync()
}
