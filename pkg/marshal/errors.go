package marshal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	jsoniter "github.com/json-iterator/go"

	"github.com/lk2023060901/zeus-marshal/pkg/util/merr"
)

// ValidationError 是 handler 返回的可恢复错误，只影响所在字段。
// Nested 用于嵌套对象的错误（FieldErrors 或 IndexedErrors），此时 JSON 编码为嵌套结构。
type ValidationError struct {
	Messages []string
	Nested   any
}

// NewValidationError 使用一条或多条消息创建 ValidationError。
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Messages: messages}
}

// ValidationErrorf 使用格式化消息创建 ValidationError。
func ValidationErrorf(format string, args ...any) *ValidationError {
	return NewValidationError(fmt.Sprintf(format, args...))
}

// NewNestedValidationError 包装嵌套对象的错误集合。
func NewNestedValidationError(nested any) *ValidationError {
	return &ValidationError{Nested: nested}
}

func (e *ValidationError) Error() string {
	if len(e.Messages) > 0 {
		return strings.Join(e.Messages, "; ")
	}
	if e.Nested != nil {
		return fmt.Sprintf("nested validation failed: %v", e.Nested)
	}
	return merr.ErrFieldValidation.Error()
}

// Is 使 errors.Is(err, merr.ErrFieldValidation) 对 ValidationError 成立。
func (e *ValidationError) Is(target error) bool {
	return merr.Code(target) == merr.Code(merr.ErrFieldValidation)
}

func (e *ValidationError) MarshalJSON() ([]byte, error) {
	if e.Nested != nil {
		return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(e.Nested)
	}
	messages := e.Messages
	if messages == nil {
		messages = []string{}
	}
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(messages)
}

func (e *ValidationError) merge(other *ValidationError) {
	e.Messages = append(e.Messages, other.Messages...)
	if other.Nested != nil {
		e.Nested = other.Nested
	}
}

// asValidationError 识别 handler 返回的可恢复错误。
func asValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	if merr.IsValidation(err) {
		return NewValidationError(err.Error()), true
	}
	return nil, false
}

// FieldErrors 为单个对象的错误集合：字段名 -> 错误。
type FieldErrors map[string]*ValidationError

// Add 记录字段错误，同名字段的消息会被合并。
func (fe FieldErrors) Add(field string, err *ValidationError) {
	if existing, ok := fe[field]; ok {
		existing.merge(err)
		return
	}
	copied := *err
	copied.Messages = append([]string(nil), err.Messages...)
	fe[field] = &copied
}

// Names 返回排好序的出错字段名。
func (fe FieldErrors) Names() []string {
	names := make([]string, 0, len(fe))
	for name := range fe {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IndexedErrors 为批量模式的错误集合：元素下标 -> 该元素的字段错误。
type IndexedErrors map[int]FieldErrors

// Indexes 返回排好序的出错元素下标。
func (ie IndexedErrors) Indexes() []int {
	indexes := make([]int, 0, len(ie))
	for i := range ie {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	return indexes
}

// Errors 为 Marshal 返回的错误集合。单对象模式（或关闭了 IndexErrors 的批量模式）
// 使用 Fields，批量模式使用 Items。
type Errors struct {
	Fields FieldErrors
	Items  IndexedErrors
}

// Empty 判断是否没有任何错误。
func (e *Errors) Empty() bool {
	return e == nil || (len(e.Fields) == 0 && len(e.Items) == 0)
}

// Count 返回出错字段的总数。
func (e *Errors) Count() int {
	if e == nil {
		return 0
	}
	n := len(e.Fields)
	for _, fe := range e.Items {
		n += len(fe)
	}
	return n
}

// MarshalJSON 编码为 {"field": [...]} 或 {"0": {"field": [...]}}。
func (e *Errors) MarshalJSON() ([]byte, error) {
	cfg := jsoniter.ConfigCompatibleWithStandardLibrary
	switch {
	case e == nil:
		return []byte("{}"), nil
	case len(e.Items) > 0:
		return cfg.Marshal(e.Items)
	case len(e.Fields) > 0:
		return cfg.Marshal(e.Fields)
	default:
		return []byte("{}"), nil
	}
}

// StrictError 为严格模式下返回的汇总错误，结果仍然随错误一起返回。
type StrictError struct {
	Errors *Errors
	cause  error
}

func newStrictError(errs *Errors) *StrictError {
	return &StrictError{
		Errors: errs,
		cause:  merr.WrapErrStrictValidation(errs.Count()),
	}
}

func (e *StrictError) Error() string {
	return e.cause.Error()
}

func (e *StrictError) Unwrap() error {
	return e.cause
}
