package marshal

import (
	"context"

	"github.com/lk2023060901/zeus-marshal/pkg/util/merr"
)

// FieldHandler 把解析到的原始值转换为输出值。
//
// value 为解析结果，取值失败时为本次调用的 *Missing 哨兵；fieldName 为字段名（不含前缀）；
// obj 为当前正在序列化的源对象。
//
// 返回 *ValidationError（或任何匹配 merr.ErrFieldValidation 的错误）表示可恢复的校验失败，
// 返回其它错误会终止整个 marshal 调用。返回 *Missing 表示省略该字段且不记录错误。
type FieldHandler interface {
	Serialize(value any, fieldName string, obj any) (any, error)
}

// HandlerFunc 是 FieldHandler 的函数适配器。
type HandlerFunc func(value any, fieldName string, obj any) (any, error)

func (f HandlerFunc) Serialize(value any, fieldName string, obj any) (any, error) {
	return f(value, fieldName, obj)
}

// ContextSerializer 由需要调用方 ctx 的 handler 实现，例如嵌套序列化。
// Marshaller 优先调用 SerializeContext，使嵌套调用沿用父调用的 trace 与 Logger。
type ContextSerializer interface {
	SerializeContext(ctx context.Context, value any, fieldName string, obj any) (any, error)
}

// Deserializer 由支持反序列化的 handler 实现。
// value 为输入中取到的值，data 为当前正在反序列化的输入对象。
// 未实现该接口的 handler 在 Unmarshal 时原样保留输入值。
type Deserializer interface {
	Deserialize(value any, fieldName string, data any) (any, error)
}

// ContextDeserializer 与 ContextSerializer 对应，用于反序列化方向。
type ContextDeserializer interface {
	DeserializeContext(ctx context.Context, value any, fieldName string, data any) (any, error)
}

// SerializeWith 使用 h 序列化 value，h 实现 ContextSerializer 时传入 ctx。
// 包装其它 handler 的 handler 应通过它调用内层 handler。
func SerializeWith(ctx context.Context, h FieldHandler, value any, fieldName string, obj any) (any, error) {
	if cs, ok := h.(ContextSerializer); ok {
		return cs.SerializeContext(ctx, value, fieldName, obj)
	}
	return h.Serialize(value, fieldName, obj)
}

// DeserializeWith 使用 h 反序列化 value；h 不支持反序列化时原样返回 value。
func DeserializeWith(ctx context.Context, h FieldHandler, value any, fieldName string, data any) (any, error) {
	switch d := h.(type) {
	case ContextDeserializer:
		return d.DeserializeContext(ctx, value, fieldName, data)
	case Deserializer:
		return d.Deserialize(value, fieldName, data)
	default:
		return value, nil
	}
}

// Field 描述一个输出字段。
type Field struct {
	// Name 为输出 key，同时也是缺省的 LookupKey。反序列化时从输入的同名 key 取值。
	Name string
	// Key 覆盖取值位置；零值表示使用 Name 作为路径。
	// 反序列化时，路径 key 决定结果中使用的 key。
	Key LookupKey
	// Handler 负责序列化取到的值。
	Handler FieldHandler

	// LoadOnly 的字段只参与反序列化，Marshal 时跳过。
	LoadOnly bool
	// DumpOnly 的字段只参与序列化，Unmarshal 时跳过。
	DumpOnly bool
	// Required 表示反序列化时输入中必须存在该字段。
	Required bool
	// LoadFrom 为输入中缺少 Name 时再尝试的 key。
	LoadFrom string
	// LoadDefault 为输入中缺少该字段时使用的值，类型为 func() any 时每次调用取值。
	LoadDefault any
}

// LookupKey 返回该字段实际使用的 key。
func (f Field) LookupKey() (LookupKey, error) {
	if f.Key.IsValid() {
		return f.Key, nil
	}
	return PathKey(f.Name)
}

// loadKey 返回反序列化结果中该字段使用的 key。
func (f Field) loadKey() string {
	if f.Key.IsValid() && f.Key.Kind() == KeyPath {
		return f.Key.String()
	}
	return f.Name
}

// loadDefault 返回 LoadDefault 的取值，没有设置时第二个返回值为 false。
func (f Field) loadDefault() (any, bool) {
	switch d := f.LoadDefault.(type) {
	case nil:
		return nil, false
	case func() any:
		return d(), true
	default:
		return d, true
	}
}

// FieldSpec 是有序且字段名唯一的字段列表。
// 构建完成后在 marshal 调用期间只读，可在多个 goroutine 间共享。
type FieldSpec struct {
	fields []Field
	index  map[string]int
}

// NewFieldSpec 使用给定字段构建 FieldSpec。
func NewFieldSpec(fields ...Field) (*FieldSpec, error) {
	spec := &FieldSpec{}
	for _, f := range fields {
		if err := spec.Add(f); err != nil {
			return nil, err
		}
	}
	return spec, nil
}

// MustFieldSpec 与 NewFieldSpec 相同，出错时 panic。
func MustFieldSpec(fields ...Field) *FieldSpec {
	spec, err := NewFieldSpec(fields...)
	if err != nil {
		panic(err)
	}
	return spec
}

// Add 追加一个字段。字段名为空、重复、handler 为 nil、key 非法，
// 或同时设置了 LoadOnly 与 DumpOnly 时返回错误。
func (s *FieldSpec) Add(f Field) error {
	if f.Name == "" {
		return merr.WrapErrInvalidFieldSpec("empty field name")
	}
	if f.Handler == nil {
		return merr.WrapErrHandlerMissing(f.Name)
	}
	if _, ok := s.index[f.Name]; ok {
		return merr.WrapErrFieldDuplicated(f.Name)
	}
	if _, err := f.LookupKey(); err != nil {
		return err
	}
	if f.LoadOnly && f.DumpOnly {
		return merr.WrapErrInvalidFieldSpec("field " + f.Name + " is both load-only and dump-only")
	}
	if s.index == nil {
		s.index = make(map[string]int)
	}
	s.index[f.Name] = len(s.fields)
	s.fields = append(s.fields, f)
	return nil
}

// Field 按名字查找字段。
func (s *FieldSpec) Field(name string) (Field, bool) {
	if s == nil {
		return Field{}, false
	}
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Fields 返回字段列表的副本，顺序即输出顺序。
func (s *FieldSpec) Fields() []Field {
	if s == nil {
		return nil
	}
	return append([]Field(nil), s.fields...)
}

// Names 返回按顺序排列的字段名。
func (s *FieldSpec) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Len 返回字段个数。
func (s *FieldSpec) Len() int {
	if s == nil {
		return 0
	}
	return len(s.fields)
}
