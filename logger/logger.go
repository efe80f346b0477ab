// Package logger provides the structured logging sink used throughout
// drpc: transports, connections, and the server accept loop log
// through it rather than the standard log package.
package logger

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level names accepted by Options.Level.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func toZapLevel(l string) zapcore.Level {
	levels := map[Level]zapcore.Level{
		LevelDebug: zapcore.DebugLevel,
		LevelInfo:  zapcore.InfoLevel,
		LevelWarn:  zapcore.WarnLevel,
		LevelError: zapcore.ErrorLevel,
	}
	if level, ok := levels[Level(strings.ToLower(l))]; ok {
		return level
	}
	return zapcore.InfoLevel
}

// Options configures a Logger. Zero value logs at info level to stdout.
type Options struct {
	Stdout     bool   `config:"stdout"`
	Level      string `config:"level"`
	Filename   string `config:"filename"`
	MaxSize    int    `config:"maxSize"` // unit: MB
	MaxAge     int    `config:"maxAge"`  // unit: days
	MaxBackups int    `config:"maxBackups"`
}

// Logger wraps a zap.SugaredLogger with the small, structured surface
// the drpc packages use: one call per event plus free-form key/value
// fields, never raw printf-style concatenation of connection state.
type Logger struct {
	sugared *zap.SugaredLogger
}

// Nop is a Logger that discards everything. Every drpc type that
// accepts a Logger treats the zero value the same as Nop, so Nop mainly
// exists for callers that want an explicit, named no-op.
var Nop = Logger{sugared: zap.NewNop().Sugar()}

// New builds a Logger from opt. A non-Stdout Options with a Filename
// rotates through lumberjack.
func New(opt Options) Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format("2006-01-02T15:04:05.000Z"))
	}
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoder := zapcore.NewConsoleEncoder(encoderConfig)

	var w zapcore.WriteSyncer
	switch {
	case opt.Stdout || opt.Filename == "":
		w = zapcore.AddSync(os.Stdout)
	default:
		if err := os.MkdirAll(filepath.Dir(opt.Filename), 0o755); err != nil {
			panic(err)
		}
		w = zapcore.AddSync(&lumberjack.Logger{
			Filename:   opt.Filename,
			MaxSize:    opt.MaxSize,
			MaxBackups: opt.MaxBackups,
			MaxAge:     opt.MaxAge,
			LocalTime:  true,
		})
	}

	core := zapcore.NewCore(encoder, w, toZapLevel(opt.Level))
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return Logger{sugared: base.Sugar()}
}

func (l Logger) sugar() *zap.SugaredLogger {
	if l.sugared == nil {
		return Nop.sugared
	}
	return l.sugared
}

// With returns a Logger with the given key/value pairs attached to
// every subsequent call — used to scope a Logger to one connection id
// or stream id.
func (l Logger) With(kv ...any) Logger {
	return Logger{sugared: l.sugar().With(kv...)}
}

func (l Logger) Debugw(msg string, kv ...any) { l.sugar().Debugw(msg, kv...) }
func (l Logger) Infow(msg string, kv ...any)  { l.sugar().Infow(msg, kv...) }
func (l Logger) Warnw(msg string, kv ...any)  { l.sugar().Warnw(msg, kv...) }
func (l Logger) Errorw(msg string, kv ...any) { l.sugar().Errorw(msg, kv...) }
