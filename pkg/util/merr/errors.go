// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// ErrorType 区分错误来源：调用方输入问题或系统自身问题。
type ErrorType int32

const (
	SystemError ErrorType = 0
	InputError  ErrorType = 1
)

var ErrorTypeName = map[ErrorType]string{
	SystemError: "system_error",
	InputError:  "input_error",
}

func (err ErrorType) String() string {
	return ErrorTypeName[err]
}

// 错误码按分组分段，新增错误前先确认下面已有的错误是否可以复用。
// 命名规则：Err + 分组前缀 + 错误名。
var (
	// Lookup key
	ErrInvalidKeyType   = newZeusError("invalid lookup key type", 100, asInput())
	ErrInvalidLookupKey = newZeusError("invalid lookup key", 101, asInput())

	// Field spec
	ErrInvalidFieldSpec = newZeusError("invalid field spec", 200)
	ErrFieldDuplicated  = newZeusError("field duplicated", 201)
	ErrHandlerMissing   = newZeusError("field handler missing", 202)

	// Serialization
	// ErrFieldValidation 只记录在对应字段下，不影响其它字段与对象。
	ErrFieldValidation = newZeusError("field validation failed", 300, asInput(), recoverable())
	// ErrFieldUnexpected 表示 handler 返回了无法识别的错误，整个调用立即终止。
	ErrFieldUnexpected = newZeusError("unexpected field serialization failure", 301)
	// ErrStrictValidation 伴随完整结果返回，调用方仍可使用输出。
	ErrStrictValidation = newZeusError("validation failed in strict mode", 302, asInput(), recoverable())
	ErrNotSequence      = newZeusError("object is not a sequence", 303, asInput())

	// Schema
	ErrSchemaInvalid     = newZeusError("invalid schema", 400)
	ErrSchemaUnknownType = newZeusError("unknown schema field type", 401)
	ErrSchemaNotFound    = newZeusError("schema not found", 402)

	// Encoding
	ErrEncodeFailed       = newZeusError("encode failed", 500)
	ErrSerializerNotFound = newZeusError("serializer not found", 501)

	// Parameter
	ErrParameterInvalid = newZeusError("invalid parameter", 1100)

	// 仅用于把未知错误映射到错误码，不要导出。
	errUnexpected = newZeusError("unexpected error", (1<<16)-1)
)

type errorOption func(*zeusError)

// WithErrorType 覆盖错误的来源分类。
func WithErrorType(etype ErrorType) errorOption {
	return func(err *zeusError) {
		err.errType = etype
	}
}

func asInput() errorOption {
	return WithErrorType(InputError)
}

func recoverable() errorOption {
	return func(err *zeusError) {
		err.recoverable = true
	}
}

type zeusError struct {
	msg         string
	errCode     int32
	errType     ErrorType
	recoverable bool
}

func newZeusError(msg string, code int32, options ...errorOption) zeusError {
	err := zeusError{msg: msg, errCode: code}
	for _, option := range options {
		option(&err)
	}
	return err
}

func (e zeusError) code() int32 {
	return e.errCode
}

func (e zeusError) Error() string {
	return e.msg
}

// Is 按错误码比较，包装过的同码错误视为同一错误。
func (e zeusError) Is(err error) bool {
	if cause, ok := errors.Cause(err).(zeusError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

// multiErrors 串联多个错误，最后一个错误作为 cause，决定 Code 的结果。
type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	switch len(e.errs) {
	case 0, 1:
		return nil
	case 2:
		return e.errs[1]
	}
	return multiErrors{errs: e.errs[1:]}
}

func (e multiErrors) Error() string {
	msgs := lo.Map(e.errs, func(err error, _ int) string { return err.Error() })
	return strings.Join(msgs, ": ")
}

func (e multiErrors) Is(err error) bool {
	return lo.ContainsBy(e.errs, func(item error) bool { return errors.Is(item, err) })
}

// Combine 合并多个错误并忽略其中的 nil，全部为 nil 时返回 nil。
func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{errs: errs}
}
