package zap

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging surface the rest of the service depends on.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Sync() error
}

type logger struct {
	*zap.SugaredLogger
}

// NewLogger builds a JSON logger writing to stdout. Level defaults to info;
// pass "debug" to see per-frame socket logging.
func NewLogger(level string) Logger {
	lvl := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(level); err == nil {
		lvl = parsed
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(os.Stdout),
		lvl,
	)

	return &logger{zap.New(core, zap.AddCaller()).Sugar()}
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() Logger {
	return &logger{zap.NewNop().Sugar()}
}
