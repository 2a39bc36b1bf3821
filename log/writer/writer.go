package writer

import (
	"io"

	"github.com/pkg/errors"

	"github.com/hatlonely/orm/ref"
)

// Writer 日志输出器接口
type Writer interface {
	io.Writer
	io.Closer
}

const namespace = "github.com/hatlonely/orm/log/writer"

func init() {
	ref.MustRegister(namespace, "ConsoleWriter", NewConsoleWriterWithOptions)
	ref.MustRegister(namespace, "FileWriter", NewFileWriterWithOptions)
	ref.MustRegister(namespace, "MultiWriter", NewMultiWriterWithOptions)
}

// NewWriterWithOptions 按 TypeOptions 创建输出器，Type 为空时输出到标准输出
func NewWriterWithOptions(options *ref.TypeOptions) (Writer, error) {
	if options == nil || options.Type == "" {
		return NewConsoleWriterWithOptions(nil)
	}
	if options.Namespace == "" {
		options = &ref.TypeOptions{Namespace: namespace, Type: options.Type, Options: options.Options}
	}
	obj, err := ref.NewWithOptions(options)
	if err != nil {
		return nil, err
	}
	w, ok := obj.(Writer)
	if !ok {
		return nil, errors.Errorf("%s does not implement Writer interface", options.Type)
	}
	return w, nil
}
