package apperr

import (
	"errors"
	"fmt"
)

// Code 表示错误类别
type Code int

const (
	// CodeNotFound 资源不存在
	CodeNotFound Code = iota + 1
	// CodeAlreadyExists 资源已存在
	CodeAlreadyExists
	// CodeInvalidArgument 参数无效
	CodeInvalidArgument
	// CodeUnavailable 服务暂时不可用（服务存在但没有健康实例）
	CodeUnavailable
	// CodeUpstream 下游调用失败
	CodeUpstream
	// CodeTimeout 操作超时
	CodeTimeout
	// CodeInternal 内部错误
	CodeInternal
)

// Error 携带错误类别的错误类型，各组件统一使用
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error 实现error接口
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error {
	return e.Err
}

// NewNotFound 创建资源不存在错误
func NewNotFound(format string, args ...interface{}) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewAlreadyExists 创建资源已存在错误
func NewAlreadyExists(format string, args ...interface{}) *Error {
	return &Error{Code: CodeAlreadyExists, Message: fmt.Sprintf(format, args...)}
}

// NewInvalidArgument 创建参数无效错误
func NewInvalidArgument(format string, args ...interface{}) *Error {
	return &Error{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// NewUnavailable 创建服务不可用错误
func NewUnavailable(format string, args ...interface{}) *Error {
	return &Error{Code: CodeUnavailable, Message: fmt.Sprintf(format, args...)}
}

// NewUpstream 创建下游调用失败错误，保留底层错误
func NewUpstream(message string, err error) *Error {
	return &Error{Code: CodeUpstream, Message: message, Err: err}
}

// NewTimeout 创建超时错误
func NewTimeout(format string, args ...interface{}) *Error {
	return &Error{Code: CodeTimeout, Message: fmt.Sprintf(format, args...)}
}

// NewInternal 创建内部错误，保留底层错误
func NewInternal(message string, err error) *Error {
	return &Error{Code: CodeInternal, Message: message, Err: err}
}

// CodeOf 提取错误的类别，非本包错误返回CodeInternal
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsNotFound 判断是否为资源不存在错误
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}

// IsInvalidArgument 判断是否为参数无效错误
func IsInvalidArgument(err error) bool {
	return CodeOf(err) == CodeInvalidArgument
}

// IsUnavailable 判断是否为服务不可用错误
func IsUnavailable(err error) bool {
	return CodeOf(err) == CodeUnavailable
}

// IsTimeout 判断是否为超时错误
func IsTimeout(err error) bool {
	return CodeOf(err) == CodeTimeout
}
