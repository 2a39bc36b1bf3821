package cfg

import (
	"reflect"
	"strings"
	"unicode"
)

// EnvName 配置路径对应的环境变量名，database.maxPoolSize -> PREFIX_DATABASE_MAX_POOL_SIZE
func EnvName(prefix string, path ...string) string {
	parts := make([]string, 0, len(path)+1)
	if prefix != "" {
		parts = append(parts, strings.ToUpper(strings.TrimSuffix(prefix, "_")))
	}
	for _, p := range path {
		parts = append(parts, upperSnake(p))
	}
	return strings.Join(parts, "_")
}

func upperSnake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if r == '-' || r == '.' {
			b.WriteByte('_')
			continue
		}
		if unicode.IsUpper(r) && i > 0 && (unicode.IsLower(runes[i-1]) ||
			(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// overlayEnv 按目标结构体的叶子字段查找环境变量，命中的写入配置树
func overlayEnv(tree map[string]any, typ reflect.Type, prefix string, lookup func(string) (string, bool)) {
	walkLeaves(typ, nil, func(path []string) {
		value, ok := lookup(EnvName(prefix, path...))
		if !ok {
			return
		}
		node := tree
		for _, p := range path[:len(path)-1] {
			child, ok := node[p].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[p] = child
			}
			node = child
		}
		node[path[len(path)-1]] = value
	})
}

func walkLeaves(typ reflect.Type, path []string, fn func(path []string)) {
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct || typ == timeType {
		if len(path) > 0 {
			fn(path)
		}
		return
	}
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		switch field.Type.Kind() {
		case reflect.Interface, reflect.Map, reflect.Func, reflect.Chan:
			continue
		}
		next := append(append([]string(nil), path...), fieldName(field))
		walkLeaves(field.Type, next, fn)
	}
}
