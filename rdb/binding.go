package rdb

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/jmoiron/sqlx/reflectx"
	"github.com/pkg/errors"
)

// fieldMapper 按 rdb 标签映射字段，未打标签的字段使用字段名，嵌入结构体的字段会提升到外层
var fieldMapper = reflectx.NewMapperFunc("rdb", func(name string) string { return name })

// columnMapper 结果集列名到字段的映射
// postgres 会把未加引号的列名转成小写，映射时同样转成小写
func columnMapper(driver string) *reflectx.Mapper {
	switch driver {
	case "pgx", "postgres", "postgresql":
		return reflectx.NewMapperTagFunc("rdb", strings.ToLower, strings.ToLower)
	default:
		return fieldMapper
	}
}

// binding 声明字段到结构体字段下标的映射，注册时解析一次
type binding struct {
	typ   reflect.Type
	index map[string][]int
}

func newBinding(typ reflect.Type, s *Schema) (*binding, error) {
	if typ.Kind() != reflect.Struct {
		return nil, newSchemaError(s.table, "", fmt.Sprintf("entity must be a struct, got %s", typ.Kind()))
	}

	declared := map[string]struct{}{}
	for _, f := range s.allFields() {
		declared[f.Name] = struct{}{}
	}

	index := map[string][]int{}
	for _, fi := range fieldMapper.TypeMap(typ).Index {
		// 非嵌入的结构体字段的子字段带路径前缀，不参与映射
		if fi.Embedded || strings.Contains(fi.Path, ".") {
			continue
		}
		name := fi.Path
		if name == "" {
			name = fi.Field.Name
		}
		if _, ok := declared[name]; !ok {
			if _, tagged := fi.Field.Tag.Lookup("rdb"); tagged {
				return nil, newSchemaError(s.table, name, MsgUnmappedField)
			}
			continue
		}
		if prev, ok := index[name]; ok {
			// 外层字段遮蔽嵌入结构体中的同名字段
			if len(prev) < len(fi.Index) {
				continue
			}
			return nil, newSchemaError(s.table, name, MsgDuplicateField)
		}
		index[name] = fi.Index
	}

	for name := range declared {
		if _, ok := index[name]; !ok {
			return nil, newSchemaError(s.table, name, MsgUnmappedField)
		}
	}
	return &binding{typ: typ, index: index}, nil
}

func (b *binding) field(v reflect.Value, name string) reflect.Value {
	return reflectx.FieldByIndexes(v, b.index[name])
}

func (b *binding) values(v reflect.Value, names []string) []any {
	args := make([]any, len(names))
	for i, name := range names {
		args[i] = b.field(v, name).Interface()
	}
	return args
}

func (b *binding) isZero(v reflect.Value, name string) bool {
	return b.field(v, name).IsZero()
}

// set 写入缺省值，类型不同时按 Go 的类型转换规则转换
func (b *binding) set(v reflect.Value, name string, value any) error {
	dst := b.field(v, name)
	if value == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	rv := reflect.ValueOf(value)
	switch {
	case rv.Type().AssignableTo(dst.Type()):
		dst.Set(rv)
	case rv.Type().ConvertibleTo(dst.Type()) && (dst.Kind() != reflect.String || rv.Kind() == reflect.String):
		dst.Set(rv.Convert(dst.Type()))
	default:
		return errors.Errorf("set field %s: cannot assign %T to %s", name, value, dst.Type())
	}
	return nil
}
