package fields

import (
	"context"
	"reflect"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/zeus-marshal/pkg/marshal"
	"github.com/lk2023060901/zeus-marshal/pkg/util/merr"
)

const msgInvalidList = "not a valid list."

// Nested 按 spec 序列化嵌套对象。嵌套对象的字段错误作为该字段的校验错误返回，
// 此时嵌套对象的输出被丢弃；嵌套调用的致命错误原样透传。
//
// 嵌套调用使用 m.Nested()：顶层的 only/exclude/prefix/strict 等选项不会传递到嵌套对象，
// 只共享 m 绑定的 Logger；调用沿用父调用的 ctx，且不单独记录指标。m 为 nil 时使用缺省 Marshaller。
// 反序列化方向使用同样规则的 Unmarshaller。
func Nested(m *marshal.Marshaller, spec *marshal.FieldSpec) marshal.FieldHandler {
	dumper, loader := nestedPair(m)
	return codec{
		dump: passMissing(func(ctx context.Context, value any) (any, error) {
			out, errs, err := dumper.MarshalNested(ctx, value, spec)
			return nestedResult(out, len(errs) > 0, errs, err)
		}),
		load: passMissing(func(ctx context.Context, value any) (any, error) {
			out, errs, err := loader.UnmarshalNested(ctx, value, spec)
			return nestedResult(out, len(errs) > 0, errs, err)
		}),
	}
}

// NestedList 与 Nested 相同，但值为对象序列，输出 []*marshal.Mapping。
func NestedList(m *marshal.Marshaller, spec *marshal.FieldSpec) marshal.FieldHandler {
	dumper, loader := nestedPair(m)
	return codec{
		dump: passMissing(func(ctx context.Context, value any) (any, error) {
			if !isSequence(value) {
				return nil, marshal.NewValidationError(msgInvalidList)
			}
			outs, errs, err := dumper.MarshalNestedMany(ctx, value, spec)
			return nestedResult(outs, !errs.Empty(), errs, err)
		}),
		load: passMissing(func(ctx context.Context, value any) (any, error) {
			if !isSequence(value) {
				return nil, marshal.NewValidationError(msgInvalidList)
			}
			outs, errs, err := loader.UnmarshalNestedMany(ctx, value, spec)
			return nestedResult(outs, !errs.Empty(), errs, err)
		}),
	}
}

func nestedPair(m *marshal.Marshaller) (*marshal.Marshaller, *marshal.Unmarshaller) {
	if m == nil {
		m = marshal.New()
	}
	dumper := m.Nested()
	loader := marshal.NewUnmarshaller()
	loader.Inherit(&m.Binder)
	return dumper, loader
}

// nestedResult 把嵌套调用的校验错误转换为父字段的校验错误。
func nestedResult(out any, failed bool, errs any, err error) (any, error) {
	if failed {
		return nil, marshal.NewNestedValidationError(errs)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List 对序列中的每个元素调用 h，输出 []any。
// 元素的校验错误按下标汇总后作为该字段的校验错误返回。
func List(h marshal.FieldHandler) marshal.FieldHandler {
	each := func(apply func(ctx context.Context, item any, name string, obj any) (any, error)) step {
		return func(ctx context.Context, value any, name string, obj any) (any, error) {
			if marshal.IsMissing(value) || value == nil {
				return value, nil
			}
			if !isSequence(value) {
				return nil, marshal.NewValidationError(msgInvalidList)
			}
			rv := reflect.ValueOf(value)
			out := make([]any, 0, rv.Len())
			itemErrs := map[int]*marshal.ValidationError{}
			for i := 0; i < rv.Len(); i++ {
				item, err := apply(ctx, rv.Index(i).Interface(), name, obj)
				if err != nil {
					var verr *marshal.ValidationError
					switch {
					case errors.As(err, &verr):
					case merr.IsValidation(err):
						verr = marshal.NewValidationError(err.Error())
					default:
						return nil, err
					}
					itemErrs[i] = verr
					continue
				}
				out = append(out, item)
			}
			if len(itemErrs) > 0 {
				return nil, marshal.NewNestedValidationError(itemErrs)
			}
			return out, nil
		}
	}
	return codec{
		dump: each(func(ctx context.Context, item any, name string, obj any) (any, error) {
			return marshal.SerializeWith(ctx, h, item, name, obj)
		}),
		load: each(func(ctx context.Context, item any, name string, data any) (any, error) {
			return marshal.DeserializeWith(ctx, h, item, name, data)
		}),
	}
}

func isSequence(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return true
	default:
		return false
	}
}
