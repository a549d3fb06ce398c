// Copyright 2020 Anapaya Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log is the logging facility of the switch daemon. It wraps zap and
// exposes a small key-value based Logger interface.
package log

import (
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/netfab/switchd/pkg/private/serrors"
)

const (
	// DefaultConsoleLevel is the default log level for the console.
	DefaultConsoleLevel = "info"
	// DefaultStacktraceLevel is the default log level for which stack traces are included.
	DefaultStacktraceLevel = "none"
)

// Level is a log level.
type Level zapcore.Level

const (
	DebugLevel = Level(zapcore.DebugLevel)
	InfoLevel  = Level(zapcore.InfoLevel)
	ErrorLevel = Level(zapcore.ErrorLevel)
)

// Logger describes the logger interface.
type Logger interface {
	New(ctx ...any) Logger
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Enabled(lvl Level) bool
}

// FromZap wraps a zap logger.
func FromZap(l *zap.Logger) Logger {
	return &logger{logger: l}
}

// Discard is a logger that drops all messages.
func Discard() Logger {
	return &logger{logger: zap.NewNop()}
}

// Debug logs at debug level.
func Debug(msg string, ctx ...any) {
	if ce := zap.L().Check(zapcore.DebugLevel, msg); ce != nil {
		ce.Write(convertCtx(ctx)...)
	}
}

// Info logs at info level.
func Info(msg string, ctx ...any) {
	if ce := zap.L().Check(zapcore.InfoLevel, msg); ce != nil {
		ce.Write(convertCtx(ctx)...)
	}
}

// Error logs at error level.
func Error(msg string, ctx ...any) {
	if ce := zap.L().Check(zapcore.ErrorLevel, msg); ce != nil {
		ce.Write(convertCtx(ctx)...)
	}
}

// New creates a logger with the given context.
func New(ctx ...any) Logger {
	return &logger{logger: zap.L().With(convertCtx(ctx)...)}
}

// Root returns the root logger. It's a logger without any context.
func Root() Logger {
	return &logger{logger: zap.L()}
}

type logger struct {
	logger *zap.Logger
}

func (l *logger) New(ctx ...any) Logger {
	return &logger{logger: l.logger.With(convertCtx(ctx)...)}
}

func (l *logger) Debug(msg string, ctx ...any) {
	l.logger.Debug(msg, convertCtx(ctx)...)
}

func (l *logger) Info(msg string, ctx ...any) {
	l.logger.Info(msg, convertCtx(ctx)...)
}

func (l *logger) Error(msg string, ctx ...any) {
	l.logger.Error(msg, convertCtx(ctx)...)
}

func (l *logger) Enabled(lvl Level) bool {
	return l.logger.Core().Enabled(zapcore.Level(lvl))
}

func (l *logger) WithOptions(opts ...zap.Option) Logger {
	return &logger{logger: l.logger.WithOptions(opts...)}
}

func convertCtx(ctx []any) []zap.Field {
	fields := make([]zap.Field, 0, len(ctx)/2)
	for i := 0; i+1 < len(ctx); i += 2 {
		key := fmt.Sprint(ctx[i])
		if err, ok := ctx[i+1].(error); ok {
			if m, ok := err.(zapcore.ObjectMarshaler); ok {
				fields = append(fields, zap.Object(key, m))
				continue
			}
			fields = append(fields, zap.String(key, err.Error()))
			continue
		}
		fields = append(fields, zap.Any(key, ctx[i+1]))
	}
	return fields
}

// EntriesCounter counts the emitted log entries per level.
type EntriesCounter struct {
	Debug interface{ Inc() }
	Info  interface{ Inc() }
	Error interface{ Inc() }
}

type options struct {
	entriesCounter EntriesCounter
}

// Option is a functional option for the log setup.
type Option func(o *options)

// WithEntriesCounter configures a metric counter that is incremented with
// every emitted log entry.
func WithEntriesCounter(m EntriesCounter) Option {
	return func(o *options) {
		o.entriesCounter = m
	}
}

var setupCalled atomic.Bool

// Setup configures the logging library with the given config. It replaces the
// global zap logger.
func Setup(cfg Config, opts ...Option) error {
	cfg.InitDefaults()
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	lvl, err := parseLevel(cfg.Console.Level)
	if err != nil {
		return serrors.Wrap("parsing console level", err, "level", cfg.Console.Level)
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	switch strings.ToLower(cfg.Console.Format) {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	case "human", "":
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	default:
		return serrors.New("unknown console format", "format", cfg.Console.Format)
	}
	zopts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(1)}
	if cfg.Console.DisableCaller {
		zopts = []zap.Option{}
	}
	if cfg.Console.StacktraceLevel != "none" {
		st, err := parseLevel(cfg.Console.StacktraceLevel)
		if err != nil {
			return serrors.Wrap("parsing stacktrace level", err,
				"level", cfg.Console.StacktraceLevel)
		}
		zopts = append(zopts, zap.AddStacktrace(st))
	}
	if c := o.entriesCounter; c.Debug != nil || c.Info != nil || c.Error != nil {
		zopts = append(zopts, zap.Hooks(func(e zapcore.Entry) error {
			var m interface{ Inc() }
			switch e.Level {
			case zapcore.DebugLevel:
				m = c.Debug
			case zapcore.InfoLevel:
				m = c.Info
			case zapcore.ErrorLevel:
				m = c.Error
			}
			if m != nil {
				m.Inc()
			}
			return nil
		}))
	}
	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), zap.NewAtomicLevelAt(lvl))
	zap.ReplaceGlobals(zap.New(core, zopts...))
	setupCalled.Store(true)
	return nil
}

func parseLevel(s string) (zapcore.Level, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return lvl, nil
}

// Flush writes the logs to the underlying buffer.
func Flush() {
	_ = zap.L().Sync()
}

// HandlePanic catches panics and logs them. The panic is re-raised after
// logging. It should be deferred at the top of every goroutine.
func HandlePanic() {
	if msg := recover(); msg != nil {
		if !setupCalled.Load() {
			panic(msg)
		}
		zap.L().Error("Panic", zap.Any("msg", msg), zap.ByteString("stack", debug.Stack()))
		zap.L().Error("=====================> Service panicked!")
		Flush()
		panic(msg)
	}
}
