package ref

import (
	"reflect"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Convertable 可以转换为构造函数参数类型的配置数据，cfg.Section 实现了该接口
type Convertable interface {
	// ConvertTo object 为指向目标对象的指针
	ConvertTo(object any) error
}

// TypeOptions 按类型名创建对象的配置
type TypeOptions struct {
	Namespace string `cfg:"namespace"`
	Type      string `cfg:"type"`
	Options   any    `cfg:"options"`
}

type constructor struct {
	originalFunc any
	newFunc      reflect.Value
	hasOptions   bool
	returnsError bool
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// newConstructor 构造函数签名为 func() T、func(O) T、func() (T, error) 或 func(O) (T, error)
func newConstructor(newFunc any) (*constructor, error) {
	fv := reflect.ValueOf(newFunc)
	if fv.Kind() != reflect.Func {
		return nil, errors.New("newFunc must be a function")
	}
	ft := fv.Type()
	if ft.NumIn() > 1 {
		return nil, errors.Errorf("newFunc must have 0 or 1 input parameters, got %d", ft.NumIn())
	}
	if ft.NumOut() != 1 && ft.NumOut() != 2 {
		return nil, errors.Errorf("newFunc must have 1 or 2 return values, got %d", ft.NumOut())
	}
	if ft.NumOut() == 2 && !ft.Out(1).Implements(errorType) {
		return nil, errors.New("second return value must be error type")
	}
	return &constructor{
		originalFunc: newFunc,
		newFunc:      fv,
		hasOptions:   ft.NumIn() == 1,
		returnsError: ft.NumOut() == 2,
	}, nil
}

func (c *constructor) new(options any) (any, error) {
	var args []reflect.Value
	if c.hasOptions {
		arg, err := c.convertOptions(options)
		if err != nil {
			return nil, err
		}
		args = []reflect.Value{arg}
	}

	results := c.newFunc.Call(args)
	if c.returnsError && !results[1].IsNil() {
		return nil, results[1].Interface().(error)
	}
	return results[0].Interface(), nil
}

// convertOptions 将 options 转换为构造函数的参数类型，nil 传入参数类型的零值
func (c *constructor) convertOptions(options any) (reflect.Value, error) {
	paramType := c.newFunc.Type().In(0)
	if options == nil {
		return reflect.Zero(paramType), nil
	}

	if convertable, ok := options.(Convertable); ok {
		elemType := paramType
		if paramType.Kind() == reflect.Ptr {
			elemType = paramType.Elem()
		}
		target := reflect.New(elemType)
		if err := convertable.ConvertTo(target.Interface()); err != nil {
			return reflect.Value{}, errors.WithMessagef(err, "convert options to %v", paramType)
		}
		if paramType.Kind() == reflect.Ptr {
			return target, nil
		}
		return target.Elem(), nil
	}

	v := reflect.ValueOf(options)
	if !v.Type().AssignableTo(paramType) {
		return reflect.Value{}, errors.Errorf("options type %v is not assignable to %v", v.Type(), paramType)
	}
	return v, nil
}

var nameConstructorMap sync.Map

func isSameFunc(func1, func2 any) bool {
	if func1 == nil || func2 == nil {
		return func1 == func2
	}
	return reflect.ValueOf(func1).Pointer() == reflect.ValueOf(func2).Pointer()
}

// Register 注册构造函数，同一函数重复注册忽略，不同函数注册同一名称返回错误
func Register(namespace string, type_ string, newFunc any) error {
	key := namespace + ":" + type_
	if existing, ok := nameConstructorMap.Load(key); ok {
		if isSameFunc(existing.(*constructor).originalFunc, newFunc) {
			return nil
		}
		return errors.Errorf("constructor for %s already registered with different function", key)
	}

	c, err := newConstructor(newFunc)
	if err != nil {
		return errors.WithMessage(err, "failed to create constructor")
	}
	nameConstructorMap.Store(key, c)
	return nil
}

func typeKey[T any]() (string, string, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.PkgPath() == "" || t.Name() == "" {
		return "", "", errors.Errorf("cannot determine package path or type name for type %v", t)
	}
	return t.PkgPath(), t.Name(), nil
}

// RegisterT 以类型的包路径和类型名注册
func RegisterT[T any](newFunc any) error {
	namespace, type_, err := typeKey[T]()
	if err != nil {
		return err
	}
	return Register(namespace, type_, newFunc)
}

func MustRegister(namespace string, type_ string, newFunc any) {
	if err := Register(namespace, type_, newFunc); err != nil {
		panic(err)
	}
}

func MustRegisterT[T any](newFunc any) {
	if err := RegisterT[T](newFunc); err != nil {
		panic(err)
	}
}

func lookup(namespace, type_ string) (*constructor, error) {
	if v, ok := nameConstructorMap.Load(namespace + ":" + type_); ok {
		return v.(*constructor), nil
	}
	if namespace != "" {
		return nil, errors.Errorf("constructor not found for %s:%s", namespace, type_)
	}

	// 未指定 namespace 时按类型名查找，必须唯一
	var found *constructor
	var matches int
	nameConstructorMap.Range(func(key, value any) bool {
		if strings.HasSuffix(key.(string), ":"+type_) {
			found = value.(*constructor)
			matches++
		}
		return true
	})
	switch matches {
	case 0:
		return nil, errors.Errorf("constructor not found for %s", type_)
	case 1:
		return found, nil
	default:
		return nil, errors.Errorf("constructor for %s is ambiguous, namespace required", type_)
	}
}

// New 按名称创建对象
func New(namespace string, type_ string, options any) (any, error) {
	c, err := lookup(namespace, type_)
	if err != nil {
		return nil, err
	}
	return c.new(options)
}

// NewWithOptions 按 TypeOptions 创建对象
func NewWithOptions(options *TypeOptions) (any, error) {
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}
	return New(options.Namespace, options.Type, options.Options)
}

func NewT[T any](options any) (T, error) {
	var zero T
	namespace, type_, err := typeKey[T]()
	if err != nil {
		return zero, err
	}
	obj, err := New(namespace, type_, options)
	if err != nil {
		return zero, err
	}
	result, ok := obj.(T)
	if !ok {
		return zero, errors.Errorf("created object is not of type %T", zero)
	}
	return result, nil
}
