/*
Roster - BIND配置集中管理系统

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// core/common/errors.go
// 带类型标签的错误，RPC 层据此返回 error_type

package common

import (
	"errors"
	"fmt"
)

// ErrorKind 错误类型标签
type ErrorKind string

const (
	KindInvalidInput          ErrorKind = "InvalidInput"
	KindUnexpectedData        ErrorKind = "UnexpectedData"
	KindReservedWord          ErrorKind = "ReservedWord"
	KindTransaction           ErrorKind = "Transaction"
	KindAuthError             ErrorKind = "AuthError"
	KindCoreError             ErrorKind = "CoreError"
	KindExporterFileError     ErrorKind = "ExporterFileError"
	KindExporterNoFileError   ErrorKind = "ExporterNoFileError"
	KindExporterFileNameError ErrorKind = "ExporterFileNameError"
	KindExporterAuditIDError  ErrorKind = "ExporterAuditIdError"
	KindExporterListFileError ErrorKind = "ExporterListFileError"
	KindServerCheckError      ErrorKind = "ServerCheckError"
	KindSchemaError           ErrorKind = "SchemaError"
)

// Error 带类型的错误
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// 哨兵错误，errors.Is 按 Kind 比较
var (
	ErrInvalidInput     = &Error{Kind: KindInvalidInput}
	ErrUnexpectedData   = &Error{Kind: KindUnexpectedData}
	ErrReservedWord     = &Error{Kind: KindReservedWord}
	ErrTransaction      = &Error{Kind: KindTransaction}
	ErrAuth             = &Error{Kind: KindAuthError}
	ErrCore             = &Error{Kind: KindCoreError}
	ErrExporterFile     = &Error{Kind: KindExporterFileError}
	ErrNoFile           = &Error{Kind: KindExporterNoFileError}
	ErrExporterFileName = &Error{Kind: KindExporterFileNameError}
	ErrExporterAuditID  = &Error{Kind: KindExporterAuditIDError}
	ErrExporterListFile = &Error{Kind: KindExporterListFileError}
	ErrServerCheck      = &Error{Kind: KindServerCheckError}
	ErrSchema           = &Error{Kind: KindSchemaError}
)

// NewError 创建指定类型的错误
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError 创建指定类型的错误并保留底层错误
func WrapError(kind ErrorKind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Message == "" {
			return e.Err.Error()
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 同类型的错误视为相等
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf 返回错误链中第一个带类型错误的类型，没有则为空
func KindOf(err error) ErrorKind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return ""
}
