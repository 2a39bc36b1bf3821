package writer

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const backupTimeFormat = "20060102T150405.000"

// FileWriterOptions 文件输出配置
type FileWriterOptions struct {
	Path string `cfg:"path" validate:"required"`
	// 单个文件最大字节数，超过后轮转，0 表示不轮转
	MaxSize int64 `cfg:"maxSize"`
	// 保留的备份文件数，0 表示不限制
	MaxBackups int `cfg:"maxBackups"`
	// 备份文件最长保留时间，0 表示不限制
	MaxAge time.Duration `cfg:"maxAge"`
}

// FileWriter 文件输出器，按大小轮转
type FileWriter struct {
	options *FileWriterOptions

	mu   sync.Mutex
	file *os.File
	size int64
}

func NewFileWriterWithOptions(options *FileWriterOptions) (*FileWriter, error) {
	if options == nil || options.Path == "" {
		return nil, errors.New("file path is required")
	}

	dir := filepath.Dir(options.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create directory %s", dir)
	}

	w := &FileWriter{options: options}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (f *FileWriter) open() error {
	file, err := os.OpenFile(f.options.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return errors.Wrapf(err, "failed to open file %s", f.options.Path)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return errors.Wrapf(err, "failed to stat file %s", f.options.Path)
	}
	f.file = file
	f.size = info.Size()
	return nil
}

func (f *FileWriter) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return 0, errors.New("file is closed")
	}
	if f.options.MaxSize > 0 && f.size > 0 && f.size+int64(len(p)) > f.options.MaxSize {
		if err := f.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := f.file.Write(p)
	f.size += int64(n)
	return n, err
}

// rotate 将当前文件改名为 <path>.<时间戳> 后重新打开
func (f *FileWriter) rotate() error {
	if err := f.file.Close(); err != nil {
		return errors.Wrap(err, "failed to close file before rotate")
	}
	f.file = nil

	backup := f.options.Path + "." + time.Now().Format(backupTimeFormat)
	if err := os.Rename(f.options.Path, backup); err != nil {
		return errors.Wrapf(err, "failed to rename %s", f.options.Path)
	}
	if err := f.open(); err != nil {
		return err
	}
	return f.prune()
}

// prune 清理超出数量或超过保留时间的备份
func (f *FileWriter) prune() error {
	backups, err := filepath.Glob(f.options.Path + ".*")
	if err != nil {
		return errors.Wrap(err, "failed to list backups")
	}
	// 时间戳格式保证字典序即时间序
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))

	now := time.Now()
	for i, backup := range backups {
		expired := f.options.MaxBackups > 0 && i >= f.options.MaxBackups
		if !expired && f.options.MaxAge > 0 {
			if info, err := os.Stat(backup); err == nil && now.Sub(info.ModTime()) > f.options.MaxAge {
				expired = true
			}
		}
		if expired {
			if err := os.Remove(backup); err != nil && !os.IsNotExist(err) {
				return errors.Wrapf(err, "failed to remove backup %s", backup)
			}
		}
	}
	return nil
}

func (f *FileWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}
