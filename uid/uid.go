package uid

import (
	"github.com/pkg/errors"

	"github.com/hatlonely/orm/ref"
)

func init() {
	ref.MustRegisterT[UUIDGenerator](NewUUIDGeneratorWithOptions)
	ref.MustRegisterT[TimestampUUIDGenerator](NewTimestampUUIDGenerator)
}

// StrGenerator 生成字符串 ID
type StrGenerator interface {
	Generate() string
}

// NewStrGeneratorWithOptions 按类型名创建生成器，Type 为空时使用 TimestampUUIDGenerator
func NewStrGeneratorWithOptions(options *ref.TypeOptions) (StrGenerator, error) {
	if options == nil || options.Type == "" {
		return NewTimestampUUIDGenerator(), nil
	}
	generator, err := ref.NewWithOptions(options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.New failed")
	}
	g, ok := generator.(StrGenerator)
	if !ok {
		return nil, errors.Errorf("%s is not a StrGenerator", options.Type)
	}
	return g, nil
}

var defaultGenerator StrGenerator = NewTimestampUUIDGenerator()

// NextID 生成按时间排序的 50 位字符串 ID
func NextID() string {
	return defaultGenerator.Generate()
}
