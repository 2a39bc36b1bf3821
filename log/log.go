package log

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Logger 日志接口
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)

	With(args ...any) Logger
	WithGroup(name string) Logger
}

var defaultLogger atomic.Pointer[Logger]

func init() {
	// 默认向终端输出 text 格式日志
	l, err := NewLogWithOptions(&Options{Level: "info", Format: "text"})
	if err != nil {
		panic("failed to initialize default logger: " + err.Error())
	}
	SetDefault(l)
}

func Default() Logger {
	return *defaultLogger.Load()
}

// SetDefault 替换全局默认日志器，nil 忽略
func SetDefault(l Logger) {
	if l != nil {
		defaultLogger.Store(&l)
	}
}

var discard Logger = &SLog{slogger: slog.New(slog.DiscardHandler)}

// Discard 丢弃所有日志
func Discard() Logger {
	return discard
}
