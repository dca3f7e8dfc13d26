package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where and how verbosely the logger writes.
type Options struct {
	Level      string // debug, info, warn, error
	JSON       bool
	Path       string // empty means stderr
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Logger is a thin wrapper over a zap sugared logger.
type Logger struct {
	l *zap.SugaredLogger
}

// NewLogger creates a console logger on stderr. Stdout stays free for
// event output.
func NewLogger() *Logger {
	l, _ := New(Options{Level: "info"})
	return l
}

// New builds a logger from opts. A non-empty Path writes to a rotated file.
func New(opts Options) (*Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(opts.Level))
	if opts.Level == "" {
		level, err = zapcore.InfoLevel, nil
	}
	if err != nil {
		return nil, fmt.Errorf("logging level: %w", err)
	}

	ws := zapcore.Lock(zapcore.AddSync(os.Stderr))
	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		})
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(encCfg)
	if opts.JSON {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, ws, level)
	return &Logger{l: zap.New(core).Sugar().Named("edge-events")}, nil
}

// FromZap wraps an existing zap logger.
func FromZap(z *zap.Logger) *Logger {
	return &Logger{l: z.Sugar()}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{l: zap.NewNop().Sugar()}
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{l: l.l.With(args...)}
}

func (l *Logger) Info(msg string) {
	l.l.Info(msg)
}

func (l *Logger) Infof(format string, args ...any) {
	l.l.Infof(format, args...)
}

func (l *Logger) Debugf(format string, args ...any) {
	l.l.Debugf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.l.Warnf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.l.Errorf(format, args...)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.l.Sync()
}
