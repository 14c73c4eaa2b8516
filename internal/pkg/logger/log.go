package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var level = zap.NewAtomicLevelAt(zap.InfoLevel)

// EnableDebug lowers the global log level so that debug entries
// (resync timings, dropped-batch notices) become visible.
func EnableDebug() {
	level.SetLevel(zap.DebugLevel)
}

func GetLogger() *zap.Logger {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encoder := zapcore.NewConsoleEncoder(cfg)

	return zap.New(
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
		zap.AddCaller(),
	)
}
