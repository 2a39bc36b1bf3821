package log

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hatlonely/orm/cfg"
	"github.com/hatlonely/orm/log/writer"
	"github.com/hatlonely/orm/ref"
)

// Options 日志配置
type Options struct {
	Level  string `cfg:"level" def:"info" validate:"oneof=debug info warn warning error"`
	Format string `cfg:"format" def:"text" validate:"oneof=text json"`

	// Output 输出器，Type 为空时输出到标准输出
	Output ref.TypeOptions `cfg:"output"`

	TimeFormat string `cfg:"timeFormat" def:"2006-01-02T15:04:05Z07:00"`
	AddSource  bool   `cfg:"addSource"`

	// Fields 每条日志都带上的字段
	Fields map[string]any `cfg:"fields"`
}

// SLog 基于 log/slog 的 Logger 实现
type SLog struct {
	slogger *slog.Logger
	closer  io.Closer
}

func NewLogWithOptions(options *Options) (*SLog, error) {
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "set log defaults failed")
	}
	if err := cfg.Validate(options); err != nil {
		return nil, errors.WithMessage(err, "invalid log options")
	}

	level, err := parseLevel(options.Level)
	if err != nil {
		return nil, err
	}

	w, err := writer.NewWriterWithOptions(&options.Output)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create writer")
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: options.AddSource,
	}
	if options.TimeFormat != time.RFC3339 {
		handlerOpts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(a.Key, a.Value.Time().Format(options.TimeFormat))
			}
			return a
		}
	}

	var handler slog.Handler
	switch strings.ToLower(options.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, handlerOpts)
	default:
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	slogger := slog.New(handler)
	if len(options.Fields) > 0 {
		args := make([]any, 0, len(options.Fields)*2)
		for k, v := range options.Fields {
			args = append(args, k, v)
		}
		slogger = slogger.With(args...)
	}

	return &SLog{slogger: slogger, closer: w}, nil
}

// NewLogWithWriter 输出到任意 io.Writer，主要用于测试
func NewLogWithWriter(w io.Writer, level string) (*SLog, error) {
	lv, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	return &SLog{slogger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv}))}, nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.Errorf("unknown level: %s", level)
	}
}

func (l *SLog) Debug(msg string, args ...any) { l.slogger.Debug(msg, args...) }
func (l *SLog) Info(msg string, args ...any)  { l.slogger.Info(msg, args...) }
func (l *SLog) Warn(msg string, args ...any)  { l.slogger.Warn(msg, args...) }
func (l *SLog) Error(msg string, args ...any) { l.slogger.Error(msg, args...) }

func (l *SLog) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slogger.DebugContext(ctx, msg, args...)
}

func (l *SLog) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slogger.InfoContext(ctx, msg, args...)
}

func (l *SLog) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slogger.WarnContext(ctx, msg, args...)
}

func (l *SLog) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slogger.ErrorContext(ctx, msg, args...)
}

func (l *SLog) With(args ...any) Logger {
	return &SLog{slogger: l.slogger.With(args...)}
}

func (l *SLog) WithGroup(name string) Logger {
	return &SLog{slogger: l.slogger.WithGroup(name)}
}

// Close 关闭底层输出器，派生出的 Logger 不负责关闭
func (l *SLog) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
