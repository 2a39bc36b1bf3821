package rdb

import "fmt"

// FieldKind 字段种类，决定缺省存储类型以及能否作为主键
type FieldKind string

const (
	FieldKindString  FieldKind = "string"
	FieldKindInteger FieldKind = "integer"
	FieldKindFloat   FieldKind = "float"
	FieldKindBoolean FieldKind = "boolean"
	FieldKindText    FieldKind = "text"
)

type defaultKind int

const (
	defaultNone defaultKind = iota
	defaultStatic
	defaultGenerator
)

// DefaultRule 字段缺省值规则：无、静态值、或生成函数
// 只在 save 时对未设置的字段求值
type DefaultRule struct {
	kind  defaultKind
	value any
	gen   func() any
}

// NoDefault 没有缺省值
var NoDefault = DefaultRule{}

// Static 静态缺省值，原样复制到实例
func Static(value any) DefaultRule {
	return DefaultRule{kind: defaultStatic, value: value}
}

// Generator 生成型缺省值，每次 save 对每个未设置字段调用一次
func Generator[V any](fn func() V) DefaultRule {
	if fn == nil {
		return NoDefault
	}
	return DefaultRule{kind: defaultGenerator, gen: func() any { return fn() }}
}

func (r DefaultRule) IsSet() bool {
	return r.kind != defaultNone
}

func (r DefaultRule) IsGenerator() bool {
	return r.kind == defaultGenerator
}

// Resolve 求出缺省值，未设置规则时返回 nil
func (r DefaultRule) Resolve() any {
	switch r.kind {
	case defaultStatic:
		return r.value
	case defaultGenerator:
		return r.gen()
	default:
		return nil
	}
}

func (r DefaultRule) String() string {
	switch r.kind {
	case defaultStatic:
		return fmt.Sprintf("static(%v)", r.value)
	case defaultGenerator:
		return "generator"
	default:
		return "none"
	}
}

// Field 字段描述，声明后不可变，所有修饰方法返回副本
type Field struct {
	Name       string
	Column     string // 存储类型，如 varchar(100)
	Kind       FieldKind
	PrimaryKey bool
	Default    DefaultRule
}

func StringField(name string) Field {
	return Field{Name: name, Column: "varchar(100)", Kind: FieldKindString}
}

func IntegerField(name string) Field {
	return Field{Name: name, Column: "bigint", Kind: FieldKindInteger, Default: Static(int64(0))}
}

func FloatField(name string) Field {
	return Field{Name: name, Column: "real", Kind: FieldKindFloat, Default: Static(0.0)}
}

// BooleanField 布尔字段，缺省 false，不能作为主键
func BooleanField(name string) Field {
	return Field{Name: name, Column: "boolean", Kind: FieldKindBoolean, Default: Static(false)}
}

// TextField 长文本字段，不能作为主键
func TextField(name string) Field {
	return Field{Name: name, Column: "text", Kind: FieldKindText}
}

func (f Field) Key() Field {
	f.PrimaryKey = true
	return f
}

func (f Field) Type(column string) Field {
	f.Column = column
	return f
}

func (f Field) DefaultValue(value any) Field {
	f.Default = Static(value)
	return f
}

func (f Field) DefaultRule(rule DefaultRule) Field {
	f.Default = rule
	return f
}

func (f Field) canBeKey() bool {
	return f.Kind != FieldKindBoolean && f.Kind != FieldKindText
}

// signature 用于判断两次注册的声明是否一致，生成函数无法比较，只比较是否存在
func (f Field) signature() string {
	return fmt.Sprintf("%s:%s:%s:%t:%s", f.Name, f.Column, f.Kind, f.PrimaryKey, f.Default)
}
