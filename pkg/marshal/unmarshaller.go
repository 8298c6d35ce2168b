package marshal

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/lk2023060901/zeus-marshal/pkg/log"
	"github.com/lk2023060901/zeus-marshal/pkg/metrics"
	"github.com/lk2023060901/zeus-marshal/pkg/util/merr"
	"github.com/lk2023060901/zeus-marshal/pkg/util/typeutil"
)

const (
	// SchemaErrorKey 为对象级错误使用的 key：输入不是映射，或对象级校验失败。
	SchemaErrorKey = "_schema"

	// MsgRequired 为必填字段缺失时的校验消息。
	MsgRequired = "missing data for required field."
)

// Validator 为对象级校验，在所有字段反序列化之后执行，raw 为原始输入。
// 返回 *ValidationError（或匹配 merr.ErrFieldValidation 的错误）时记录在 SchemaErrorKey 下，
// 返回其它错误会终止整个调用。
type Validator func(out *Mapping, raw any) error

// Processor 改写一个对象的反序列化结果，返回的错误会终止整个调用。
type Processor func(out *Mapping) (*Mapping, error)

// Unmarshaller 按 FieldSpec 把映射形式的输入反序列化为有序 Mapping，是 Marshaller 的反方向。
//
// 输入按字段名取值（缺失时再尝试 LoadFrom），结果使用字段的路径 key（没有时为字段名）。
// DumpOnly 字段被跳过；只有 strict、index-errors、only/exclude 与对象级校验、处理函数生效。
type Unmarshaller struct {
	log.Binder

	opts options
}

// NewUnmarshaller 创建 Unmarshaller，接受与 Marshaller 相同的 Option。
func NewUnmarshaller(opts ...Option) *Unmarshaller {
	u := &Unmarshaller{opts: defaultOptions()}
	for _, opt := range opts {
		opt(&u.opts)
	}
	if u.opts.logger != nil {
		u.SetLogger(u.opts.logger)
	}
	return u
}

// loadField 是一次反序列化调用中实际参与的字段。
type loadField struct {
	Field
	key string
}

// Unmarshal 根据 many 分发到 UnmarshalOne 或 UnmarshalMany，返回值的约定与 Marshal 相同。
func (u *Unmarshaller) Unmarshal(ctx context.Context, data any, spec *FieldSpec, many bool) (*Result, error) {
	mode := metrics.ModeLoadOne
	if many {
		mode = metrics.ModeLoadMany
	}
	ctx, span := log.NewIntentContext(ctx, tracerName, "unmarshal_"+mode)
	defer span.End()
	span.SetAttributes(
		attribute.String("mode", mode),
		attribute.Int("fields", spec.Len()),
	)

	var (
		result *Result
		err    error
	)
	if many {
		var items []*Mapping
		var errs *Errors
		items, errs, err = u.UnmarshalMany(ctx, data, spec)
		if items != nil {
			result = &Result{Data: items, Errors: errs}
			span.SetAttributes(attribute.Int("items", len(items)))
		}
	} else {
		var out *Mapping
		var fieldErrs FieldErrors
		out, fieldErrs, err = u.UnmarshalOne(ctx, data, spec)
		if err == nil || !merr.IsFatal(err) {
			result = &Result{Data: out, Errors: &Errors{Fields: fieldErrs}}
		}
	}

	if err != nil && merr.IsFatal(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

// UnmarshalOne 反序列化单个输入对象。data 为 nil 时结果为 nil；
// data 不是映射时在 SchemaErrorKey 下记录校验错误。
func (u *Unmarshaller) UnmarshalOne(ctx context.Context, data any, spec *FieldSpec) (*Mapping, FieldErrors, error) {
	start := time.Now()
	fields, err := u.bind(spec)
	if err != nil {
		observe(metrics.ModeLoadOne, start, 0, 0, err)
		return nil, nil, err
	}

	out, errs, err := u.loadOne(ctx, data, fields)
	if err != nil {
		u.CtxLogger(ctx).RatedWarn(1, "unmarshal aborted by unexpected field failure", zap.Error(err))
		observe(metrics.ModeLoadOne, start, 1, 0, err)
		return nil, nil, err
	}

	if len(errs) > 0 {
		u.CtxLogger(ctx).Debug("unmarshal finished with validation errors",
			zap.Int("failed", len(errs)))
		if u.opts.strict {
			err = newStrictError(&Errors{Fields: errs})
			observe(metrics.ModeLoadOne, start, 1, len(errs), err)
			return out, errs, err
		}
	}
	if out, err = u.postprocess(out); err != nil {
		observe(metrics.ModeLoadOne, start, 1, len(errs), err)
		return nil, nil, err
	}
	observe(metrics.ModeLoadOne, start, 1, len(errs), nil)
	return out, errs, nil
}

// UnmarshalMany 反序列化一个输入序列，结果与输入一一对应且顺序一致。
func (u *Unmarshaller) UnmarshalMany(ctx context.Context, data any, spec *FieldSpec) ([]*Mapping, *Errors, error) {
	start := time.Now()
	fields, err := u.bind(spec)
	if err != nil {
		observe(metrics.ModeLoadMany, start, 0, 0, err)
		return nil, nil, err
	}
	items, err := sequence(data)
	if err != nil {
		observe(metrics.ModeLoadMany, start, 0, 0, err)
		return nil, nil, err
	}

	outs, errs, err := u.loadMany(ctx, items, fields)
	if err != nil {
		u.CtxLogger(ctx).RatedWarn(1, "unmarshal many aborted by unexpected field failure",
			zap.Int("items", len(items)), zap.Error(err))
		observe(metrics.ModeLoadMany, start, len(items), 0, err)
		return nil, nil, err
	}

	failed := errs.Count()
	if failed > 0 {
		u.CtxLogger(ctx).Debug("unmarshal many finished with validation errors",
			zap.Int("items", len(items)), zap.Int("failed", failed))
		if u.opts.strict {
			err = newStrictError(errs)
			observe(metrics.ModeLoadMany, start, len(items), failed, err)
			return outs, errs, err
		}
	}
	for i := range outs {
		if outs[i], err = u.postprocess(outs[i]); err != nil {
			err = errors.Wrapf(err, "postprocess item %d", i)
			observe(metrics.ModeLoadMany, start, len(items), failed, err)
			return nil, nil, err
		}
	}
	observe(metrics.ModeLoadMany, start, len(items), failed, nil)
	return outs, errs, nil
}

// Nested 返回嵌套字段使用的 Unmarshaller，与 Marshaller.Nested 相同，不继承任何选项。
func (u *Unmarshaller) Nested() *Unmarshaller {
	n := NewUnmarshaller()
	n.Inherit(&u.Binder)
	return n
}

// UnmarshalNested 在父调用的 ctx 中反序列化一个嵌套对象，不开启 span，也不记录指标。
func (u *Unmarshaller) UnmarshalNested(ctx context.Context, data any, spec *FieldSpec) (*Mapping, FieldErrors, error) {
	fields, err := u.bind(spec)
	if err != nil {
		return nil, nil, err
	}
	out, errs, err := u.loadOne(ctx, data, fields)
	if err != nil || len(errs) > 0 {
		return out, errs, err
	}
	out, err = u.postprocess(out)
	return out, errs, err
}

// UnmarshalNestedMany 是 UnmarshalNested 的批量版本。
func (u *Unmarshaller) UnmarshalNestedMany(ctx context.Context, data any, spec *FieldSpec) ([]*Mapping, *Errors, error) {
	fields, err := u.bind(spec)
	if err != nil {
		return nil, nil, err
	}
	items, err := sequence(data)
	if err != nil {
		return nil, nil, err
	}
	outs, errs, err := u.loadMany(ctx, items, fields)
	if err != nil || !errs.Empty() {
		return outs, errs, err
	}
	for i := range outs {
		if outs[i], err = u.postprocess(outs[i]); err != nil {
			return nil, nil, errors.Wrapf(err, "postprocess item %d", i)
		}
	}
	return outs, errs, nil
}

func (u *Unmarshaller) bind(spec *FieldSpec) ([]loadField, error) {
	if spec == nil {
		return nil, merr.WrapErrInvalidFieldSpec("nil field spec")
	}
	if u.opts.only.Len() > 0 {
		unknown := u.opts.only.Complement(typeutil.NewSet(spec.Names()...))
		if unknown.Len() > 0 {
			return nil, merr.WrapErrInvalidFieldSpec(fmt.Sprintf("unknown fields %v in only", typeutil.Sorted(unknown)))
		}
	}

	fields := make([]loadField, 0, spec.Len())
	for _, f := range spec.fields {
		if u.opts.only.Len() > 0 && !u.opts.only.Contain(f.Name) {
			continue
		}
		if u.opts.exclude.Contain(f.Name) || f.DumpOnly {
			continue
		}
		fields = append(fields, loadField{Field: f, key: f.loadKey()})
	}
	return fields, nil
}

func (u *Unmarshaller) loadMany(ctx context.Context, items []any, fields []loadField) ([]*Mapping, *Errors, error) {
	outs := make([]*Mapping, len(items))
	perItem := make([]FieldErrors, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, nil, errors.Wrapf(err, "unmarshal item %d", i)
		}
		out, errs, err := u.loadOne(ctx, item, fields)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "unmarshal item %d", i)
		}
		outs[i] = out
		perItem[i] = errs
	}
	return outs, collectErrors(perItem, u.opts.indexErrors), nil
}

// loadOne 反序列化各字段，然后依次执行预处理函数与对象级校验。
// 出现校验错误的字段不会写入结果。
func (u *Unmarshaller) loadOne(ctx context.Context, data any, fields []loadField) (*Mapping, FieldErrors, error) {
	errs := FieldErrors{}
	if data == nil {
		return nil, errs, nil
	}
	if !isMappingLike(data) {
		errs.Add(SchemaErrorKey, ValidationErrorf("invalid input type: %T.", data))
		return nil, errs, nil
	}

	out := NewMapping(len(fields))
	for _, f := range fields {
		raw, ok := getItem(data, f.Name)
		if !ok && f.LoadFrom != "" {
			raw, ok = getItem(data, f.LoadFrom)
		}
		if !ok {
			raw, ok = f.loadDefault()
		}
		if !ok {
			if f.Required {
				errs.Add(f.key, NewValidationError(MsgRequired))
			}
			continue
		}

		value, err := deserializeField(ctx, f, raw, data)
		if err != nil {
			if verr, ok := asValidationError(err); ok {
				errs.Add(f.key, verr)
				continue
			}
			return nil, nil, merr.WrapErrFieldUnexpected(f.key, err)
		}
		if IsMissing(value) {
			continue
		}
		out.Set(f.key, value)
	}

	for _, fn := range u.opts.preprocessors {
		var err error
		if out, err = fn(out); err != nil {
			return nil, nil, errors.Wrap(err, "preprocess")
		}
	}
	for _, validate := range u.opts.validators {
		err := validate(out, data)
		if err == nil {
			continue
		}
		if verr, ok := asValidationError(err); ok {
			errs.Add(SchemaErrorKey, verr)
			continue
		}
		return nil, nil, merr.WrapErrFieldUnexpected(SchemaErrorKey, err)
	}
	return out, errs, nil
}

func (u *Unmarshaller) postprocess(out *Mapping) (*Mapping, error) {
	if out == nil {
		return nil, nil
	}
	for _, fn := range u.opts.postprocessors {
		var err error
		if out, err = fn(out); err != nil {
			return nil, errors.Wrap(err, "postprocess")
		}
	}
	return out, nil
}

// deserializeField 调用 handler 的反序列化，handler 内的 panic 被视为致命错误。
func deserializeField(ctx context.Context, f loadField, value any, data any) (result any, err error) {
	defer func() {
		if x := recover(); x != nil {
			result = nil
			err = errors.Newf("handler panicked: %v", x)
		}
	}()
	return DeserializeWith(ctx, f.Handler, value, f.Name, data)
}

// isMappingLike 判断 data 能否按字段名取值：Indexer 或 map。
func isMappingLike(data any) bool {
	if _, ok := data.(Indexer); ok {
		return true
	}
	v := indirect(reflect.ValueOf(data))
	return v.IsValid() && v.Kind() == reflect.Map
}
