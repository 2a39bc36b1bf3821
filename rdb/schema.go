package rdb

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Schema 实体声明的校验结果与预渲染语句，构建后不可变
type Schema struct {
	table      string
	primaryKey Field
	fields     []Field

	selectSQL string
	insertSQL string
	updateSQL string
	deleteSQL string

	signature string
	binding   *binding
}

// BuildSchema 校验字段声明并渲染 select/insert/update/delete 模板
func BuildSchema(table string, fields ...Field) (*Schema, error) {
	if strings.TrimSpace(table) == "" {
		return nil, newSchemaError(table, "", MsgEmptyName)
	}

	var primaryKey *Field
	names := make(map[string]struct{}, len(fields))
	others := make([]Field, 0, len(fields))
	for i := range fields {
		field := fields[i]
		if strings.TrimSpace(field.Name) == "" {
			return nil, newSchemaError(table, "", MsgEmptyName)
		}
		if _, ok := names[field.Name]; ok {
			return nil, newSchemaError(table, field.Name, MsgDuplicateField)
		}
		names[field.Name] = struct{}{}

		if !field.PrimaryKey {
			others = append(others, field)
			continue
		}
		if primaryKey != nil {
			return nil, newSchemaError(table, field.Name, MsgDuplicatePrimaryKey)
		}
		if !field.canBeKey() {
			return nil, newSchemaError(table, field.Name, MsgInvalidPrimaryKey)
		}
		primaryKey = &field
	}
	if primaryKey == nil {
		return nil, newSchemaError(table, "", MsgMissingPrimaryKey)
	}

	s := &Schema{
		table:      table,
		primaryKey: *primaryKey,
		fields:     others,
	}
	s.render()
	return s, nil
}

func (s *Schema) render() {
	pk := s.primaryKey.Name
	names := s.Fields()
	columns := append([]string{pk}, names...)

	s.selectSQL = fmt.Sprintf("select %s from %s", strings.Join(columns, ","), s.table)
	s.insertSQL = fmt.Sprintf("insert into %s(%s) values (%s)",
		s.table, strings.Join(columns, ","), strings.TrimSuffix(strings.Repeat("?,", len(columns)), ","))
	if len(names) > 0 {
		sets := make([]string, len(names))
		for i, name := range names {
			sets[i] = name + "=?"
		}
		s.updateSQL = fmt.Sprintf("update %s set %s where %s=?", s.table, strings.Join(sets, ","), pk)
	}
	s.deleteSQL = fmt.Sprintf("delete from %s where %s=?", s.table, pk)

	sigs := make([]string, 0, len(columns))
	sigs = append(sigs, s.primaryKey.signature())
	for _, f := range s.fields {
		sigs = append(sigs, f.signature())
	}
	s.signature = s.table + "|" + strings.Join(sigs, "|")
}

func (s *Schema) Table() string { return s.table }

// PrimaryKey 主键字段名
func (s *Schema) PrimaryKey() string { return s.primaryKey.Name }

// Fields 非主键字段名，保持声明顺序
func (s *Schema) Fields() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Columns 主键在前的全部字段名
func (s *Schema) Columns() []string {
	return append([]string{s.primaryKey.Name}, s.Fields()...)
}

func (s *Schema) SelectSQL() string { return s.selectSQL }
func (s *Schema) InsertSQL() string { return s.insertSQL }

// UpdateSQL 没有非主键字段时为空
func (s *Schema) UpdateSQL() string { return s.updateSQL }
func (s *Schema) DeleteSQL() string { return s.deleteSQL }

// CreateTableSQL 由存储类型生成建表语句，供测试和命令行初始化使用
func (s *Schema) CreateTableSQL() string {
	defs := make([]string, 0, len(s.fields)+1)
	defs = append(defs, fmt.Sprintf("%s %s not null primary key", s.primaryKey.Name, s.primaryKey.Column))
	for _, f := range s.fields {
		defs = append(defs, fmt.Sprintf("%s %s", f.Name, f.Column))
	}
	return fmt.Sprintf("create table if not exists %s (%s)", s.table, strings.Join(defs, ", "))
}

// allFields 主键在前的全部字段声明
func (s *Schema) allFields() []Field {
	return append([]Field{s.primaryKey}, s.fields...)
}

// Registry 实体类型到 Schema 的缓存
// 同一类型以相同声明重复注册返回已缓存的 Schema，声明不同则返回 SchemaError
type Registry struct {
	mu      sync.Mutex
	schemas map[reflect.Type]*Schema
}

func NewRegistry() *Registry {
	return &Registry{schemas: map[reflect.Type]*Schema{}}
}

// Lookup 返回已注册类型的 Schema
func (r *Registry) Lookup(typ reflect.Type) (*Schema, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schemas[typ]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.schemas)
}

// RegisterEntity 校验声明并绑定到结构体 T，结构体字段通过 `rdb:"name"` 标签与声明对应
func RegisterEntity[T any](r *Registry, table string, fields ...Field) (*Schema, error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()

	s, err := BuildSchema(table, fields...)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.schemas[typ]; ok {
		if cached.signature != s.signature {
			return nil, newSchemaError(table, "", MsgConflictingRegistration)
		}
		return cached, nil
	}

	b, err := newBinding(typ, s)
	if err != nil {
		return nil, err
	}
	s.binding = b
	r.schemas[typ] = s
	return s, nil
}

// MustRegisterEntity 注册失败时 panic，用于启动阶段
func MustRegisterEntity[T any](r *Registry, table string, fields ...Field) *Schema {
	s, err := RegisterEntity[T](r, table, fields...)
	if err != nil {
		panic(err)
	}
	return s
}
