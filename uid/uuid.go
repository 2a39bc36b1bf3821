package uid

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hatlonely/orm/cfg"
)

type UUIDOptions struct {
	Version string `cfg:"version" def:"v4" validate:"oneof=v1 v4 v6 v7"`
	// 是否包含连字符，默认不包含
	WithHyphens bool `cfg:"withHyphens"`
}

type UUIDGenerator struct {
	version     string
	withHyphens bool
}

// NewUUIDGeneratorWithOptions Version 缺省为 v4，不支持的版本返回错误
func NewUUIDGeneratorWithOptions(options *UUIDOptions) (*UUIDGenerator, error) {
	o := UUIDOptions{}
	if options != nil {
		o = *options
	}
	if err := cfg.SetDefaults(&o); err != nil {
		return nil, errors.WithMessage(err, "set uuid defaults failed")
	}
	if err := cfg.Validate(&o); err != nil {
		return nil, errors.WithMessage(err, "invalid uuid options")
	}
	return &UUIDGenerator{
		version:     o.Version,
		withHyphens: o.WithHyphens,
	}, nil
}

func (g *UUIDGenerator) Generate() string {
	var u uuid.UUID
	switch g.version {
	case "v1":
		u = uuid.Must(uuid.NewUUID())
	case "v6":
		u = uuid.Must(uuid.NewV6())
	case "v7":
		u = uuid.Must(uuid.NewV7())
	default:
		u = uuid.New()
	}

	if g.withHyphens {
		return u.String()
	}
	return hex.EncodeToString(u[:])
}

// TimestampUUIDGenerator 15 位毫秒时间戳 + 32 位 uuid4 十六进制 + "000"
// 定长且字典序与生成时间一致，适合做字符串主键
type TimestampUUIDGenerator struct {
	now func() time.Time
}

func NewTimestampUUIDGenerator() *TimestampUUIDGenerator {
	return &TimestampUUIDGenerator{now: time.Now}
}

func (g *TimestampUUIDGenerator) Generate() string {
	u := uuid.New()
	return fmt.Sprintf("%015d%s000", g.now().UnixMilli(), hex.EncodeToString(u[:]))
}
