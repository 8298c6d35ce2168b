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

const tracerName = "zeus-marshal"

// Marshaller 按 FieldSpec 将源对象序列化为有序 Mapping。
// Marshaller 本身不保存调用状态，可在多个 goroutine 中并发使用。
type Marshaller struct {
	log.Binder

	opts options
}

// New 创建 Marshaller。
func New(opts ...Option) *Marshaller {
	m := &Marshaller{opts: defaultOptions()}
	for _, opt := range opts {
		opt(&m.opts)
	}
	if m.opts.logger != nil {
		m.SetLogger(m.opts.logger)
	}
	return m
}

// Result 为 Marshal 的返回值。
// 单对象模式下 Data 为 *Mapping，批量模式下为 []*Mapping。
type Result struct {
	Data   any
	Errors *Errors
}

// One 返回单对象模式的结果。
func (r *Result) One() *Mapping {
	if r == nil {
		return nil
	}
	m, _ := r.Data.(*Mapping)
	return m
}

// Many 返回批量模式的结果。
func (r *Result) Many() []*Mapping {
	if r == nil {
		return nil
	}
	items, _ := r.Data.([]*Mapping)
	return items
}

// boundField 是一次调用中实际参与序列化的字段。
type boundField struct {
	name    string
	outKey  string
	key     LookupKey
	handler FieldHandler
}

// Marshal 根据 many 分发到 MarshalOne 或 MarshalMany。
// 致命错误时 Result 为 nil；严格模式下存在校验错误时同时返回 Result 与 *StrictError。
func (m *Marshaller) Marshal(ctx context.Context, obj any, spec *FieldSpec, many bool) (*Result, error) {
	mode := metrics.ModeOne
	if many {
		mode = metrics.ModeMany
	}
	ctx, span := log.NewIntentContext(ctx, tracerName, "marshal_"+mode)
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
		items, errs, err = m.MarshalMany(ctx, obj, spec)
		if items != nil {
			result = &Result{Data: items, Errors: errs}
			span.SetAttributes(attribute.Int("items", len(items)))
		}
	} else {
		var out *Mapping
		var fieldErrs FieldErrors
		out, fieldErrs, err = m.MarshalOne(ctx, obj, spec)
		if out != nil {
			result = &Result{Data: out, Errors: &Errors{Fields: fieldErrs}}
		}
	}

	if err != nil && merr.IsFatal(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

// MarshalOne 序列化单个对象。
// 校验错误按字段名记录在 FieldErrors 中；其他错误会中止整个调用并且不返回结果。
func (m *Marshaller) MarshalOne(ctx context.Context, obj any, spec *FieldSpec) (*Mapping, FieldErrors, error) {
	start := time.Now()
	fields, err := m.bind(spec)
	if err != nil {
		observe(metrics.ModeOne, start, 0, 0, err)
		return nil, nil, err
	}

	out, errs, err := m.marshalOne(ctx, obj, fields)
	if err != nil {
		m.CtxLogger(ctx).RatedWarn(1, "marshal aborted by unexpected field failure", zap.Error(err))
		observe(metrics.ModeOne, start, 1, 0, err)
		return nil, nil, err
	}

	if len(errs) > 0 {
		m.CtxLogger(ctx).Debug("marshal finished with validation errors",
			zap.Int("failed", len(errs)))
	}
	if m.opts.strict && len(errs) > 0 {
		err = newStrictError(&Errors{Fields: errs})
	}
	observe(metrics.ModeOne, start, 1, len(errs), err)
	return out, errs, err
}

// MarshalMany 序列化一个切片或数组中的所有对象，输出与输入一一对应且顺序一致。
// objs 为 nil 时视为空序列；非序列类型返回 merr.ErrNotSequence。
func (m *Marshaller) MarshalMany(ctx context.Context, objs any, spec *FieldSpec) ([]*Mapping, *Errors, error) {
	start := time.Now()
	fields, err := m.bind(spec)
	if err != nil {
		observe(metrics.ModeMany, start, 0, 0, err)
		return nil, nil, err
	}
	items, err := sequence(objs)
	if err != nil {
		observe(metrics.ModeMany, start, 0, 0, err)
		return nil, nil, err
	}

	var (
		outs    []*Mapping
		perItem []FieldErrors
	)
	if m.opts.parallelism > 1 && len(items) > 1 {
		outs, perItem, err = m.marshalParallel(ctx, items, fields)
	} else {
		outs, perItem, err = m.marshalSerial(ctx, items, fields)
	}
	if err != nil {
		m.CtxLogger(ctx).RatedWarn(1, "marshal many aborted by unexpected field failure",
			zap.Int("items", len(items)), zap.Error(err))
		observe(metrics.ModeMany, start, len(items), 0, err)
		return nil, nil, err
	}

	errs := collectErrors(perItem, m.opts.indexErrors)
	failed := errs.Count()
	if failed > 0 {
		m.CtxLogger(ctx).Debug("marshal many finished with validation errors",
			zap.Int("items", len(items)), zap.Int("failed", failed))
	}
	if m.opts.strict && failed > 0 {
		err = newStrictError(errs)
	}
	observe(metrics.ModeMany, start, len(items), failed, err)
	return outs, errs, err
}

// Nested 返回嵌套字段使用的 Marshaller。only/exclude/prefix/skip-missing/strict 与并发度
// 只作用于顶层调用，嵌套 Marshaller 使用缺省选项，只共享绑定的 Logger。
func (m *Marshaller) Nested() *Marshaller {
	n := New()
	n.Inherit(&m.Binder)
	return n
}

// MarshalNested 在父调用的 ctx 中序列化一个嵌套对象。
// 与 MarshalOne 不同，它不开启 span、不记录指标，也不返回 *StrictError。
func (m *Marshaller) MarshalNested(ctx context.Context, obj any, spec *FieldSpec) (*Mapping, FieldErrors, error) {
	fields, err := m.bind(spec)
	if err != nil {
		return nil, nil, err
	}
	return m.marshalOne(ctx, obj, fields)
}

// MarshalNestedMany 是 MarshalNested 的批量版本，元素在当前 goroutine 中串行处理。
func (m *Marshaller) MarshalNestedMany(ctx context.Context, objs any, spec *FieldSpec) ([]*Mapping, *Errors, error) {
	fields, err := m.bind(spec)
	if err != nil {
		return nil, nil, err
	}
	items, err := sequence(objs)
	if err != nil {
		return nil, nil, err
	}
	outs, perItem, err := m.marshalSerial(ctx, items, fields)
	if err != nil {
		return nil, nil, err
	}
	return outs, collectErrors(perItem, m.opts.indexErrors), nil
}

// bind 根据 only/exclude 与前缀计算本次调用使用的字段，LoadOnly 的字段不参与序列化。
func (m *Marshaller) bind(spec *FieldSpec) ([]boundField, error) {
	if spec == nil {
		return nil, merr.WrapErrInvalidFieldSpec("nil field spec")
	}
	if m.opts.only.Len() > 0 {
		unknown := m.opts.only.Complement(typeutil.NewSet(spec.Names()...))
		if unknown.Len() > 0 {
			return nil, merr.WrapErrInvalidFieldSpec(fmt.Sprintf("unknown fields %v in only", typeutil.Sorted(unknown)))
		}
	}

	fields := make([]boundField, 0, spec.Len())
	for _, f := range spec.fields {
		if m.opts.only.Len() > 0 && !m.opts.only.Contain(f.Name) {
			continue
		}
		if m.opts.exclude.Contain(f.Name) || f.LoadOnly {
			continue
		}
		key, err := f.LookupKey()
		if err != nil {
			return nil, err
		}
		fields = append(fields, boundField{
			name:    f.Name,
			outKey:  m.opts.prefix + f.Name,
			key:     key,
			handler: f.Handler,
		})
	}
	return fields, nil
}

func (m *Marshaller) marshalOne(ctx context.Context, obj any, fields []boundField) (*Mapping, FieldErrors, error) {
	missing := NewMissing()
	out := NewMapping(len(fields))
	errs := FieldErrors{}
	for _, f := range fields {
		var value any = missing
		if res := Resolve(f.key, obj); res.Found {
			value = res.Value
		}

		serialized, err := serializeField(ctx, f, value, obj)
		if err != nil {
			if verr, ok := asValidationError(err); ok {
				errs.Add(f.outKey, verr)
				continue
			}
			return nil, nil, merr.WrapErrFieldUnexpected(f.outKey, err)
		}
		if IsMissing(serialized) {
			continue
		}
		if m.opts.skipMissing && isEmptyValue(serialized) {
			continue
		}
		out.Set(f.outKey, serialized)
	}
	return out, errs, nil
}

// serializeField 调用 handler，handler 内的 panic 被视为致命错误。
func serializeField(ctx context.Context, f boundField, value any, obj any) (result any, err error) {
	defer func() {
		if x := recover(); x != nil {
			result = nil
			err = errors.Newf("handler panicked: %v", x)
		}
	}()
	return SerializeWith(ctx, f.handler, value, f.name, obj)
}

func (m *Marshaller) marshalSerial(ctx context.Context, items []any, fields []boundField) ([]*Mapping, []FieldErrors, error) {
	outs := make([]*Mapping, len(items))
	perItem := make([]FieldErrors, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, nil, errors.Wrapf(err, "marshal item %d", i)
		}
		out, errs, err := m.marshalOne(ctx, item, fields)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "marshal item %d", i)
		}
		outs[i] = out
		perItem[i] = errs
	}
	return outs, perItem, nil
}

// collectErrors 汇总批量模式的字段错误：indexed 为 true 时按元素下标分组，否则合并。
func collectErrors(perItem []FieldErrors, indexed bool) *Errors {
	errs := &Errors{}
	if indexed {
		errs.Items = IndexedErrors{}
		for i, fe := range perItem {
			if len(fe) > 0 {
				errs.Items[i] = fe
			}
		}
		return errs
	}
	errs.Fields = FieldErrors{}
	for _, fe := range perItem {
		for name, verr := range fe {
			errs.Fields.Add(name, verr)
		}
	}
	return errs
}

func observe(mode string, start time.Time, items, failed int, err error) {
	status := metrics.StatusSuccess
	switch {
	case err != nil && merr.IsFatal(err):
		status = metrics.StatusFailed
	case failed > 0:
		status = metrics.StatusInvalid
	}
	metrics.MarshalCallsTotal.WithLabelValues(mode, status).Inc()
	metrics.MarshalLatency.WithLabelValues(mode).Observe(float64(time.Since(start).Microseconds()) / 1000)
	if items > 0 {
		metrics.MarshalItemsTotal.WithLabelValues(mode).Add(float64(items))
	}
	if failed > 0 {
		metrics.MarshalFieldErrorsTotal.WithLabelValues(mode).Add(float64(failed))
	}
}

// sequence 将切片或数组展开为 []any。
func sequence(objs any) ([]any, error) {
	if objs == nil {
		return []any{}, nil
	}
	if items, ok := objs.([]any); ok {
		return items, nil
	}
	v := reflect.ValueOf(objs)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
	default:
		return nil, merr.WrapErrNotSequence(objs)
	}
	items := make([]any, v.Len())
	for i := range items {
		items[i] = v.Index(i).Interface()
	}
	return items, nil
}

// isEmptyValue 判断序列化结果是否属于 skip missing 时跳过的值。
func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
