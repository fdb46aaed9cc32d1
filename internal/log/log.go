// Package log builds the process logger and adapts it to pipeline events.
package log

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"logexport/internal/event"
)

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "severity",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// InitLog returns a console logger writing to stdout.
func InitLog(lvl zap.AtomicLevel) *zap.Logger {
	loggerCfg := &zap.Config{
		Level:            lvl,
		Encoding:         "console",
		EncoderConfig:    encoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	plain, err := loggerCfg.Build(zap.AddStacktrace(zap.DPanicLevel))
	if err != nil {
		panic(err)
	}
	return plain
}

// New returns a console logger writing to ws.
func New(lvl zap.AtomicLevel, ws zapcore.WriteSyncer) *zap.Logger {
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), ws, lvl)
	return zap.New(core, zap.AddStacktrace(zap.DPanicLevel))
}

// ParseLevel maps a config level name onto an AtomicLevel. Unknown names
// fall back to info.
func ParseLevel(name string) zap.AtomicLevel {
	lvl, err := zap.ParseAtomicLevel(name)
	if err != nil {
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return lvl
}

// Observer forwards pipeline events to a zap logger.
type Observer struct {
	L *zap.Logger
}

// NewObserver wraps l.
func NewObserver(l *zap.Logger) Observer { return Observer{L: l} }

func (o Observer) OnEvent(level event.Level, msg string, kv ...any) {
	if o.L == nil {
		return
	}
	var lvl zapcore.Level
	switch level {
	case event.LevelDebug:
		lvl = zapcore.DebugLevel
	case event.LevelWarn:
		lvl = zapcore.WarnLevel
	case event.LevelError:
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.InfoLevel
	}
	ce := o.L.Check(lvl, msg)
	if ce == nil {
		return
	}
	ce.Write(fields(kv)...)
}

func fields(kv []any) []zap.Field {
	out := make([]zap.Field, 0, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		if i+1 >= len(kv) {
			out = append(out, zap.Any(key, "(missing)"))
			break
		}
		if err, ok := kv[i+1].(error); ok {
			out = append(out, zap.NamedError(key, err))
			continue
		}
		out = append(out, zap.Any(key, kv[i+1]))
	}
	return out
}
