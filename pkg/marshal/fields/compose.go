package fields

import (
	"context"
	"reflect"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/zeus-marshal/pkg/marshal"
)

// MsgRequired 为 Required 在取不到值时使用的校验消息。
const MsgRequired = marshal.MsgRequired

var errorType = reflect.TypeFor[error]()

// wrap 用 around 包装 h 的两个方向，around 通过 next 调用 h 对应方向的处理。
func wrap(h marshal.FieldHandler, around func(ctx context.Context, value any, next func(any) (any, error)) (any, error)) marshal.FieldHandler {
	return codec{
		dump: func(ctx context.Context, value any, name string, obj any) (any, error) {
			return around(ctx, value, func(v any) (any, error) {
				return marshal.SerializeWith(ctx, h, v, name, obj)
			})
		},
		load: func(ctx context.Context, value any, name string, data any) (any, error) {
			return around(ctx, value, func(v any) (any, error) {
				return marshal.DeserializeWith(ctx, h, v, name, data)
			})
		},
	}
}

// Required 在取不到值时返回校验错误，否则交给 h 处理。
func Required(h marshal.FieldHandler) marshal.FieldHandler {
	return wrap(h, func(_ context.Context, value any, next func(any) (any, error)) (any, error) {
		if marshal.IsMissing(value) {
			return nil, marshal.NewValidationError(MsgRequired)
		}
		return next(value)
	})
}

// Default 在取不到值时使用 def 代替，再交给 h 处理。
func Default(def any, h marshal.FieldHandler) marshal.FieldHandler {
	return wrap(h, func(_ context.Context, value any, next func(any) (any, error)) (any, error) {
		if marshal.IsMissing(value) {
			value = def
		}
		return next(value)
	})
}

// Nullable 让 nil 直接输出为 nil，不经过 h。
func Nullable(h marshal.FieldHandler) marshal.FieldHandler {
	return wrap(h, func(_ context.Context, value any, next func(any) (any, error)) (any, error) {
		if value == nil {
			return nil, nil
		}
		return next(value)
	})
}

// Func 忽略取到的值，使用 fn(obj) 的结果作为输出。反序列化时原样保留输入值。
func Func(fn func(obj any) (any, error)) marshal.FieldHandler {
	return codec{dump: func(_ context.Context, _ any, _ string, obj any) (any, error) {
		return fn(obj)
	}}
}

// Constant 在两个方向上总是输出 v。
func Constant(v any) marshal.FieldHandler {
	constant := func(context.Context, any, string, any) (any, error) {
		return v, nil
	}
	return codec{dump: constant, load: constant}
}

// Method 调用源对象上名为 name 的导出方法，方法签名须为 func() T 或 func() (T, error)。
// 方法不存在属于使用错误，返回的错误会终止整个 marshal 调用；
// 方法返回的 error 原样透传，因此方法可以通过 *marshal.ValidationError 报告校验失败。
// 反序列化时原样保留输入值。
func Method(name string) marshal.FieldHandler {
	return codec{dump: func(_ context.Context, _ any, _ string, obj any) (any, error) {
		v := reflect.ValueOf(obj)
		if !v.IsValid() {
			return nil, errors.Newf("method %s called on nil object", name)
		}
		m := v.MethodByName(name)
		if !m.IsValid() {
			return nil, errors.Newf("method %s not found on %T", name, obj)
		}
		mt := m.Type()
		switch {
		case mt.NumIn() != 0:
			return nil, errors.Newf("method %s on %T must not take arguments", name, obj)
		case mt.NumOut() == 1:
			return m.Call(nil)[0].Interface(), nil
		case mt.NumOut() == 2 && mt.Out(1) == errorType:
			out := m.Call(nil)
			if !out[1].IsNil() {
				return nil, out[1].Interface().(error)
			}
			return out[0].Interface(), nil
		default:
			return nil, errors.Newf("method %s on %T has unsupported signature %s", name, obj, mt)
		}
	}}
}
