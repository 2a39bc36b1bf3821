package cfg

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
)

// SetDefaults 为结构体设置默认值，基于 def tag，只覆盖零值字段
func SetDefaults(object any) error {
	if object == nil {
		return errors.New("object cannot be nil")
	}
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr {
		return errors.New("object must be a pointer")
	}
	if rv.IsNil() {
		return errors.New("object cannot be nil")
	}
	return setDefaults(rv.Elem())
}

func setDefaults(rv reflect.Value) error {
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}
		return setDefaults(rv.Elem())
	}
	if rv.Kind() != reflect.Struct || rv.Type() == timeType {
		return nil
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		fieldValue := rv.Field(i)
		if !fieldValue.CanSet() {
			continue
		}

		// 嵌套结构体
		if fieldValue.Kind() == reflect.Struct ||
			(fieldValue.Kind() == reflect.Ptr && fieldValue.Type().Elem().Kind() == reflect.Struct) {
			if err := setDefaults(fieldValue); err != nil {
				return errors.WithMessagef(err, "set defaults for field %s", field.Name)
			}
		}

		defTag := field.Tag.Get("def")
		if defTag == "" || !fieldValue.IsZero() {
			continue
		}

		if fieldValue.Kind() == reflect.Ptr {
			fieldValue.Set(reflect.New(fieldValue.Type().Elem()))
			fieldValue = fieldValue.Elem()
		}
		if err := setValueFromString(fieldValue, defTag); err != nil {
			return errors.WithMessagef(err, "set default value for field %s", field.Name)
		}
	}
	return nil
}

// setValueFromString 将字符串解析为字段类型，默认值和环境变量共用
func setValueFromString(rv reflect.Value, value string) error {
	switch {
	case rv.Type() == durationType:
		d, err := time.ParseDuration(value)
		if err != nil {
			n, numErr := strconv.ParseInt(value, 10, 64)
			if numErr != nil {
				return errors.Wrapf(err, "invalid duration value %q", value)
			}
			d = time.Duration(n)
		}
		rv.SetInt(int64(d))
		return nil
	case rv.Type() == timeType:
		return setTimeFromString(rv, value)
	}

	switch rv.Kind() {
	case reflect.String:
		rv.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errors.Wrapf(err, "invalid bool value %q", value)
		}
		rv.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 0, rv.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "invalid int value %q", value)
		}
		rv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 0, rv.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "invalid uint value %q", value)
		}
		rv.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, rv.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "invalid float value %q", value)
		}
		rv.SetFloat(f)
	case reflect.Slice:
		// 逗号分隔
		parts := strings.Split(value, ",")
		slice := reflect.MakeSlice(rv.Type(), len(parts), len(parts))
		for i, part := range parts {
			if err := setValueFromString(slice.Index(i), strings.TrimSpace(part)); err != nil {
				return errors.WithMessagef(err, "slice element %d", i)
			}
		}
		rv.Set(slice)
	case reflect.Ptr:
		elem := reflect.New(rv.Type().Elem())
		if err := setValueFromString(elem.Elem(), value); err != nil {
			return err
		}
		rv.Set(elem)
	default:
		return errors.Errorf("unsupported type %v", rv.Type())
	}
	return nil
}

func setTimeFromString(rv reflect.Value, value string) error {
	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, value); err == nil {
			rv.Set(reflect.ValueOf(t))
			return nil
		}
	}
	if ts, err := strconv.ParseFloat(value, 64); err == nil {
		sec := int64(ts)
		rv.Set(reflect.ValueOf(time.Unix(sec, int64((ts-float64(sec))*1e9))))
		return nil
	}
	return errors.Errorf("invalid time value %q", value)
}
