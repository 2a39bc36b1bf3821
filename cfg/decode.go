package cfg

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Format 配置文件格式
type Format string

const (
	FormatYAML   Format = "yaml"
	FormatJSON   Format = "json"
	FormatTOML   Format = "toml"
	FormatINI    Format = "ini"
	FormatDotEnv Format = "env"
)

// FormatOf 根据扩展名判断格式
func FormatOf(filename string) (Format, error) {
	base := filepath.Base(filename)
	if base == ".env" || strings.HasSuffix(base, ".env") {
		return FormatDotEnv, nil
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	case ".ini":
		return FormatINI, nil
	}
	return "", errors.Errorf("unsupported config format: %s", filename)
}

// Decode 解码为配置树，dotenv 格式返回扁平的键值
func Decode(format Format, data []byte) (map[string]any, error) {
	result := map[string]any{}
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &result); err != nil {
			return nil, errors.Wrap(err, "decode yaml failed")
		}
	case FormatJSON:
		if len(strings.TrimSpace(string(data))) == 0 {
			return result, nil
		}
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, errors.Wrap(err, "decode json failed")
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &result); err != nil {
			return nil, errors.Wrap(err, "decode toml failed")
		}
	case FormatINI:
		return decodeINI(data)
	case FormatDotEnv:
		env, err := godotenv.UnmarshalBytes(data)
		if err != nil {
			return nil, errors.Wrap(err, "decode dotenv failed")
		}
		for k, v := range env {
			result[k] = v
		}
	default:
		return nil, errors.Errorf("unsupported config format: %s", format)
	}
	if result == nil {
		result = map[string]any{}
	}
	return result, nil
}

// decodeINI 默认 section 的键放在顶层，section 名中的 . 表示嵌套
func decodeINI(data []byte) (map[string]any, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		AllowPythonMultilineValues: true,
		SpaceBeforeInlineComment:   true,
	}, data)
	if err != nil {
		return nil, errors.Wrap(err, "decode ini failed")
	}

	result := map[string]any{}
	for _, section := range file.Sections() {
		node := result
		if name := section.Name(); name != ini.DefaultSection {
			for _, part := range strings.Split(name, ".") {
				child, ok := node[part].(map[string]any)
				if !ok {
					child = map[string]any{}
					node[part] = child
				}
				node = child
			}
		}
		for _, key := range section.Keys() {
			node[key.Name()] = key.String()
		}
	}
	return result, nil
}

// merge 将 src 深度合并到 dst，同名子树递归合并，其余以 src 为准
func merge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for k, v := range src {
		srcMap, srcOK := v.(map[string]any)
		dstMap, dstOK := dst[k].(map[string]any)
		if srcOK && dstOK {
			dst[k] = merge(dstMap, srcMap)
			continue
		}
		dst[k] = v
	}
	return dst
}
