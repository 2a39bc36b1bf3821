package log

import (
	"sort"

	"github.com/pkg/errors"
)

// ManagerOptions 按名称配置多个日志器，名为 default 的日志器作为缺省
type ManagerOptions map[string]*Options

// Manager 管理按名称区分的日志器，例如应用日志与语句日志分开输出
type Manager struct {
	loggers       map[string]*SLog
	defaultLogger Logger
}

func NewManagerWithOptions(options ManagerOptions) (*Manager, error) {
	m := &Manager{loggers: make(map[string]*SLog, len(options))}

	for name, opts := range options {
		if opts == nil {
			continue
		}
		l, err := NewLogWithOptions(opts)
		if err != nil {
			_ = m.Close()
			return nil, errors.WithMessagef(err, "failed to create logger '%s'", name)
		}
		m.loggers[name] = l
	}

	if l, ok := m.loggers["default"]; ok {
		m.defaultLogger = l
	} else {
		m.defaultLogger = Default()
	}
	return m, nil
}

// GetLogger 获取指定名称的日志器，找不到时返回缺省日志器
func (m *Manager) GetLogger(name string) Logger {
	if l, ok := m.loggers[name]; ok {
		return l
	}
	return m.defaultLogger
}

func (m *Manager) GetDefault() Logger {
	return m.defaultLogger
}

func (m *Manager) ListLoggers() []string {
	names := make([]string, 0, len(m.loggers))
	for name := range m.loggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) Close() error {
	var lastErr error
	for name, l := range m.loggers {
		if err := l.Close(); err != nil {
			lastErr = errors.WithMessagef(err, "close logger '%s'", name)
		}
	}
	return lastErr
}
