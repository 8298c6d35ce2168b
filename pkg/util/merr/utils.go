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
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

// Code 返回给定错误对应的错误码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case zeusError:
		return specificErr.code()

	default:
		if errors.Is(specificErr, context.Canceled) {
			return CanceledCode
		} else if errors.Is(specificErr, context.DeadlineExceeded) {
			return TimeoutCode
		} else {
			return errUnexpected.code()
		}
	}
}

// IsRecoverable 判断 err 是否允许调用方继续使用已产生的输出。
// 上下文取消、超时以及非 zeusError 的错误都不可恢复。
func IsRecoverable(err error) bool {
	var zerr zeusError
	return errors.As(err, &zerr) && zerr.recoverable
}

// IsValidation 判断 err 是否为字段级的可恢复校验错误。
func IsValidation(err error) bool {
	return err != nil && errors.Is(err, ErrFieldValidation)
}

// IsFatal 判断 err 是否会终止整个 marshal 调用。
// 严格模式下汇总的校验错误不算致命错误，调用方仍然拿到了结果。
func IsFatal(err error) bool {
	return err != nil && !IsRecoverable(err)
}

func WrapErrAsInputError(err error) error {
	if merr, ok := err.(zeusError); ok {
		WithErrorType(InputError)(&merr)
		return merr
	}
	return err
}

func GetErrorType(err error) ErrorType {
	if merr, ok := errors.Cause(err).(zeusError); ok {
		return merr.errType
	}

	return SystemError
}

// Lookup key 相关错误封装。
func WrapErrInvalidKeyType(key any, msg ...string) error {
	err := wrapFields(ErrInvalidKeyType, value("type", fmt.Sprintf("%T", key)))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrInvalidLookupKey(key string, msg ...string) error {
	err := wrapFields(ErrInvalidLookupKey, value("key", key))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Field spec 相关错误封装。
func WrapErrInvalidFieldSpec(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrInvalidFieldSpec, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrFieldDuplicated(field string, msg ...string) error {
	err := wrapFields(ErrFieldDuplicated, value("field", field))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrHandlerMissing(field string, msg ...string) error {
	err := wrapFields(ErrHandlerMissing, value("field", field))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Serialization 相关错误封装。
func WrapErrFieldValidation(field string, msg ...string) error {
	err := wrapFields(ErrFieldValidation, value("field", field))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// WrapErrFieldUnexpected 将 handler 返回的未知错误包装为致命错误。
// 原始错误仍然可以通过 errors.Is 识别，Code 返回 ErrFieldUnexpected 的错误码。
func WrapErrFieldUnexpected(field string, cause error) error {
	if cause == nil {
		return nil
	}
	return Combine(cause, wrapFields(ErrFieldUnexpected, value("field", field)))
}

func WrapErrStrictValidation(failed int, msg ...string) error {
	err := wrapFields(ErrStrictValidation, value("failed", failed))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrNotSequence(obj any, msg ...string) error {
	err := wrapFields(ErrNotSequence, value("type", fmt.Sprintf("%T", obj)))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Schema 相关错误封装。
func WrapErrSchemaInvalid(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrSchemaInvalid, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSchemaUnknownType(field, typ string, msg ...string) error {
	err := wrapFields(ErrSchemaUnknownType,
		value("field", field),
		value("type", typ),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSchemaNotFound(source string, msg ...string) error {
	err := wrapFields(ErrSchemaNotFound, value("source", source))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Encoding 相关错误封装。
func WrapErrEncodeFailed(format string, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrEncodeFailed, err.Error(), value("format", format))
}

func WrapErrSerializerNotFound(name string, msg ...string) error {
	err := wrapFields(ErrSerializerNotFound, value("name", name))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Parameter related
func WrapErrParameterInvalid[T any](expected, actual T, msg ...string) error {
	err := wrapFields(ErrParameterInvalid,
		value("expected", expected),
		value("actual", actual),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterInvalidRange[T any](lower, upper, actual T, msg ...string) error {
	err := wrapFields(ErrParameterInvalid,
		bound("value", actual, lower, upper),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterInvalidMsg(fmt string, args ...any) error {
	return errors.Wrapf(ErrParameterInvalid, fmt, args...)
}

func wrapFields(err zeusError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	return err
}

func wrapFieldsWithDesc(err zeusError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}

type boundField struct {
	name  string
	value any
	lower any
	upper any
}

func bound(name string, value, lower, upper any) boundField {
	return boundField{
		name,
		value,
		lower,
		upper,
	}
}

func (f boundField) String() string {
	return fmt.Sprintf("%v out of range %v <= %s <= %v", f.value, f.lower, f.name, f.upper)
}
