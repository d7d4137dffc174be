// Package glog builds the structured logger shared by every goal, scenario
// and broker adapter in the engine.
package glog

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/robotics-4-all/goalee/internal/config"
)

// Sink receives every log record emitted through a New() logger, in
// addition to it being written to stdout. The scenario package wires an
// RTMonitor in as a Sink so goal/scenario logs are mirrored to the log
// topic, matching RemoteLogHandler in the original implementation.
type Sink interface {
	SendLog(msg string, level string)
}

// sinkCore is a zapcore.Core that forwards every entry to a Sink, wrapping
// whatever core actually writes the log (console/JSON to stdout).
type sinkCore struct {
	zapcore.Core
	sink Sink
}

func (c *sinkCore) With(fields []zapcore.Field) zapcore.Core {
	return &sinkCore{Core: c.Core.With(fields), sink: c.sink}
}

func (c *sinkCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *sinkCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	if c.sink != nil {
		c.sink.SendLog(ent.Message, strings.ToUpper(ent.Level.String()))
	}
	return c.Core.Write(ent, fields)
}

func levelFromName(name string) zapcore.Level {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "INFO":
		return zapcore.InfoLevel
	case "WARNING", "WARN":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds a *zap.SugaredLogger honoring GOALDSL_LOG_LEVEL and
// GOALDSL_ZERO_LOGS. namespace is attached as a "component" field (goals
// pass "goal.<type>" as their namespace).
func New(namespace string) *zap.SugaredLogger {
	defaults := config.Load()
	if defaults.ZeroLogs {
		return zap.NewNop().Sugar()
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(os.Stdout)),
		levelFromName(defaults.LogLevel),
	)

	logger := zap.New(core)
	if namespace != "" {
		logger = logger.With(zap.String("component", namespace))
	}
	return logger.Sugar()
}

// WithSink returns a copy of logger that additionally forwards every
// record to sink. Used by Scenario once an RTMonitor is attached.
func WithSink(logger *zap.SugaredLogger, sink Sink) *zap.SugaredLogger {
	desugared := logger.Desugar()
	wrapped := desugared.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &sinkCore{Core: core, sink: sink}
	}))
	return wrapped.Sugar()
}
