// Package fields 提供常用的 FieldHandler。
//
// 除 Required 与 Default 外，所有 handler 在收到 Missing 哨兵时原样返回，
// 从而使该字段不出现在输出中；收到 nil 时输出 nil。
// 所有 handler 同时实现 marshal.Deserializer，可用于 marshal.Unmarshaller。
package fields

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/lk2023060901/zeus-marshal/pkg/marshal"
)

const (
	msgInvalidString  = "not a valid string."
	msgInvalidInteger = "not a valid integer."
	msgInvalidNumber  = "not a valid number."
	msgInvalidBoolean = "not a valid boolean."
	msgInvalidTime    = "not a valid datetime."
)

// step 为 codec 单个方向的处理函数，obj 在序列化时为源对象，在反序列化时为输入对象。
type step func(ctx context.Context, value any, name string, obj any) (any, error)

// codec 同时实现 FieldHandler、marshal.ContextSerializer 与 marshal.ContextDeserializer。
// load 为 nil 时反序列化原样返回输入值。
type codec struct {
	dump step
	load step
}

func (c codec) Serialize(value any, name string, obj any) (any, error) {
	return c.dump(context.Background(), value, name, obj)
}

func (c codec) SerializeContext(ctx context.Context, value any, name string, obj any) (any, error) {
	return c.dump(ctx, value, name, obj)
}

func (c codec) Deserialize(value any, name string, data any) (any, error) {
	return c.DeserializeContext(context.Background(), value, name, data)
}

func (c codec) DeserializeContext(ctx context.Context, value any, name string, data any) (any, error) {
	if c.load == nil {
		return value, nil
	}
	return c.load(ctx, value, name, data)
}

// passMissing 让 Missing 哨兵与 nil 原样通过，其余值交给 convert。
func passMissing(convert func(ctx context.Context, value any) (any, error)) step {
	return func(ctx context.Context, value any, _ string, _ any) (any, error) {
		if marshal.IsMissing(value) || value == nil {
			return value, nil
		}
		return convert(ctx, value)
	}
}

// scalar 包装一个只关心取值结果、两个方向相同的转换函数。
func scalar(convert func(value any) (any, error)) marshal.FieldHandler {
	s := passMissing(func(_ context.Context, value any) (any, error) {
		return convert(value)
	})
	return codec{dump: s, load: s}
}

// Raw 原样输出取到的值。
func Raw() marshal.FieldHandler {
	return scalar(func(value any) (any, error) {
		return value, nil
	})
}

// String 将值转换为字符串。
func String() marshal.FieldHandler {
	return scalar(toString)
}

func toString(value any) (any, error) {
	s, err := cast.ToStringE(value)
	if err != nil {
		return nil, marshal.NewValidationError(msgInvalidString)
	}
	return s, nil
}

// Int 将值转换为 int64。
func Int() marshal.FieldHandler {
	return scalar(func(value any) (any, error) {
		i, err := cast.ToInt64E(value)
		if err != nil {
			return nil, marshal.NewValidationError(msgInvalidInteger)
		}
		return i, nil
	})
}

// Float 将值转换为 float64。
func Float() marshal.FieldHandler {
	return scalar(func(value any) (any, error) {
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return nil, marshal.NewValidationError(msgInvalidNumber)
		}
		return f, nil
	})
}

// Bool 将值转换为 bool。
func Bool() marshal.FieldHandler {
	return scalar(func(value any) (any, error) {
		b, err := cast.ToBoolE(value)
		if err != nil {
			return nil, marshal.NewValidationError(msgInvalidBoolean)
		}
		return b, nil
	})
}

// Time 将 time.Time、时间字符串或 unix 时间戳按 layout 格式化，layout 为空时使用 RFC3339。
// 反序列化时按 layout 解析字符串，失败后再按 cast 支持的格式解析，结果为 time.Time。
func Time(layout string) marshal.FieldHandler {
	if layout == "" {
		layout = time.RFC3339
	}
	return codec{
		dump: passMissing(func(_ context.Context, value any) (any, error) {
			t, err := cast.ToTimeE(value)
			if err != nil {
				return nil, marshal.NewValidationError(msgInvalidTime)
			}
			return t.Format(layout), nil
		}),
		load: passMissing(func(_ context.Context, value any) (any, error) {
			if s, ok := value.(string); ok {
				if t, err := time.Parse(layout, s); err == nil {
					return t, nil
				}
			}
			t, err := cast.ToTimeE(value)
			if err != nil {
				return nil, marshal.NewValidationError(msgInvalidTime)
			}
			return t, nil
		}),
	}
}

// Upper 转换为字符串后转为大写。
func Upper() marshal.FieldHandler {
	return scalar(func(value any) (any, error) {
		s, err := toString(value)
		if err != nil {
			return nil, err
		}
		return strings.ToUpper(s.(string)), nil
	})
}

// Lower 转换为字符串后转为小写。
func Lower() marshal.FieldHandler {
	return scalar(func(value any) (any, error) {
		s, err := toString(value)
		if err != nil {
			return nil, err
		}
		return strings.ToLower(s.(string)), nil
	})
}
