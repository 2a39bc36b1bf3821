package cfg

import (
	"reflect"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Section 配置子树，延迟到构造函数确定目标类型时再转换
// 实现了 ref.Convertable，可以直接作为 ref.TypeOptions.Options 传给 ref.New
type Section struct {
	data any
}

func NewSection(data any) *Section {
	return &Section{data: data}
}

func (s *Section) Data() any { return s.data }

func (s *Section) ConvertTo(object any) error {
	return ConvertTo(s.data, object)
}

// ConvertTo 将解码得到的配置树转换为结构体，字段名取 cfg tag，缺省为字段名
func ConvertTo(data any, object any) error {
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("object must be a non-nil pointer")
	}
	return convertValue(data, rv.Elem())
}

func fieldName(field reflect.StructField) string {
	if tag := field.Tag.Get("cfg"); tag != "" {
		if name := strings.Split(tag, ",")[0]; name != "" {
			return name
		}
	}
	return field.Name
}

func convertValue(src any, dst reflect.Value) error {
	srcValue := reflect.ValueOf(src)
	if !srcValue.IsValid() {
		return nil
	}
	for srcValue.Kind() == reflect.Ptr {
		if srcValue.IsNil() {
			return nil
		}
		srcValue = srcValue.Elem()
	}

	if dst.Kind() == reflect.Ptr {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return convertValue(srcValue.Interface(), dst.Elem())
	}

	// 接口类型的子树保留为 Section，由使用方决定目标类型
	if dst.Kind() == reflect.Interface {
		if srcValue.Kind() == reflect.Map {
			dst.Set(reflect.ValueOf(NewSection(srcValue.Interface())))
			return nil
		}
		if srcValue.Type().AssignableTo(dst.Type()) {
			dst.Set(srcValue)
			return nil
		}
		return errors.Errorf("cannot convert %v to %v", srcValue.Type(), dst.Type())
	}

	if srcValue.Type().AssignableTo(dst.Type()) {
		dst.Set(srcValue)
		return nil
	}

	// 字符串来自 ini、环境变量等无类型来源，按目标类型解析
	if srcValue.Kind() == reflect.String && dst.Kind() != reflect.Struct && dst.Kind() != reflect.Map {
		return setValueFromString(dst, srcValue.String())
	}

	switch {
	case dst.Type() == durationType:
		return convertToDuration(srcValue, dst)
	case dst.Type() == timeType:
		return convertToTime(srcValue, dst)
	}

	switch dst.Kind() {
	case reflect.Map:
		return convertToMap(srcValue, dst)
	case reflect.Slice:
		return convertToSlice(srcValue, dst)
	case reflect.Struct:
		return convertToStruct(srcValue, dst)
	}

	if srcValue.Type().ConvertibleTo(dst.Type()) {
		dst.Set(srcValue.Convert(dst.Type()))
		return nil
	}
	return errors.Errorf("cannot convert %v to %v", srcValue.Type(), dst.Type())
}

// convertToDuration 整数按纳秒，浮点数按秒
func convertToDuration(src, dst reflect.Value) error {
	switch src.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst.SetInt(src.Int())
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		dst.SetInt(int64(src.Uint()))
		return nil
	case reflect.Float32, reflect.Float64:
		dst.SetInt(int64(src.Float() * float64(time.Second)))
		return nil
	}
	return errors.Errorf("cannot convert %v to time.Duration", src.Type())
}

// convertToTime 数字按 unix 秒
func convertToTime(src, dst reflect.Value) error {
	switch src.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst.Set(reflect.ValueOf(time.Unix(src.Int(), 0)))
		return nil
	case reflect.Float32, reflect.Float64:
		ts := src.Float()
		sec := int64(ts)
		dst.Set(reflect.ValueOf(time.Unix(sec, int64((ts-float64(sec))*1e9))))
		return nil
	}
	return errors.Errorf("cannot convert %v to time.Time", src.Type())
}

func convertToMap(src, dst reflect.Value) error {
	if src.Kind() != reflect.Map {
		return errors.Errorf("cannot convert %v to %v", src.Type(), dst.Type())
	}
	if dst.IsNil() {
		dst.Set(reflect.MakeMap(dst.Type()))
	}
	for _, key := range src.MapKeys() {
		value := reflect.New(dst.Type().Elem()).Elem()
		if err := convertValue(src.MapIndex(key).Interface(), value); err != nil {
			return errors.WithMessagef(err, "key %v", key.Interface())
		}
		k := key
		if !k.Type().AssignableTo(dst.Type().Key()) {
			if !k.Type().ConvertibleTo(dst.Type().Key()) {
				return errors.Errorf("cannot convert key %v to %v", k.Type(), dst.Type().Key())
			}
			k = k.Convert(dst.Type().Key())
		}
		dst.SetMapIndex(k, value)
	}
	return nil
}

func convertToSlice(src, dst reflect.Value) error {
	if src.Kind() != reflect.Slice && src.Kind() != reflect.Array {
		return errors.Errorf("cannot convert %v to %v", src.Type(), dst.Type())
	}
	n := src.Len()
	dst.Set(reflect.MakeSlice(dst.Type(), n, n))
	for i := 0; i < n; i++ {
		if err := convertValue(src.Index(i).Interface(), dst.Index(i)); err != nil {
			return errors.WithMessagef(err, "index %d", i)
		}
	}
	return nil
}

func convertToStruct(src, dst reflect.Value) error {
	if src.Kind() != reflect.Map {
		return errors.Errorf("cannot convert %v to %v", src.Type(), dst.Type())
	}
	values := make(map[string]reflect.Value, src.Len())
	for _, key := range src.MapKeys() {
		value := src.MapIndex(key)
		if key.Kind() == reflect.Interface {
			key = key.Elem()
		}
		if key.Kind() == reflect.String {
			values[key.String()] = value
		}
	}

	dstType := dst.Type()
	for i := 0; i < dstType.NumField(); i++ {
		field := dstType.Field(i)
		fieldValue := dst.Field(i)
		if !fieldValue.CanSet() {
			continue
		}
		value, ok := values[fieldName(field)]
		if !ok {
			continue
		}
		if err := convertValue(value.Interface(), fieldValue); err != nil {
			return errors.WithMessagef(err, "field %s", fieldName(field))
		}
	}
	return nil
}
