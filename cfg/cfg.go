package cfg

import (
	"os"
	"reflect"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// LoadOptions 配置加载选项
type LoadOptions struct {
	// Files 按顺序加载，后面的文件深度合并覆盖前面的，.env 文件只作为环境变量来源
	Files []string `cfg:"files"`
	// EnvPrefix 环境变量前缀，如 BLOG 对应 BLOG_DATABASE_HOST
	EnvPrefix string `cfg:"envPrefix"`
	// DisableEnv 不读取环境变量
	DisableEnv bool `cfg:"disableEnv"`
	// Optional 文件不存在时跳过
	Optional bool `cfg:"optional"`
}

// Load 加载配置文件并叠加环境变量，转换后设置默认值并校验
func Load(object any, filenames ...string) error {
	return LoadWithOptions(object, &LoadOptions{Files: filenames})
}

func LoadWithOptions(object any, options *LoadOptions) error {
	if options == nil {
		options = &LoadOptions{}
	}
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("object must be a non-nil pointer")
	}

	tree := map[string]any{}
	dotenv := map[string]string{}
	for _, filename := range options.Files {
		format, err := FormatOf(filename)
		if err != nil {
			return err
		}
		if format == FormatDotEnv {
			env, err := godotenv.Read(filename)
			if err != nil {
				if options.Optional && os.IsNotExist(errors.Cause(err)) {
					continue
				}
				return errors.Wrapf(err, "read %s failed", filename)
			}
			for k, v := range env {
				dotenv[k] = v
			}
			continue
		}

		data, err := os.ReadFile(filename)
		if err != nil {
			if options.Optional && os.IsNotExist(err) {
				continue
			}
			return errors.Wrapf(err, "read %s failed", filename)
		}
		decoded, err := Decode(format, data)
		if err != nil {
			return errors.WithMessagef(err, "decode %s failed", filename)
		}
		tree = merge(tree, decoded)
	}

	if !options.DisableEnv {
		// 进程环境变量优先于 .env 文件
		lookup := func(key string) (string, bool) {
			if v, ok := os.LookupEnv(key); ok {
				return v, true
			}
			v, ok := dotenv[key]
			return v, ok
		}
		overlayEnv(tree, rv.Type(), options.EnvPrefix, lookup)
	}

	if err := ConvertTo(tree, object); err != nil {
		return errors.WithMessage(err, "convert config failed")
	}
	if err := SetDefaults(object); err != nil {
		return errors.WithMessage(err, "set defaults failed")
	}
	if err := Validate(object); err != nil {
		return errors.Wrap(err, "validate config failed")
	}
	return nil
}
