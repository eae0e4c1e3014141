// Package apperr はAPI全体で使うエラー分類と HTTP レスポンスへの変換を提供します。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind はエラーの分類です。
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindAuth
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Status は分類に対応する HTTP ステータスを返します。
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error はクライアントに返すメッセージを持つエラーです。
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	CodeValidation = "INVALID_INPUT"
	CodeConflict   = "CONFLICT"
	CodeNotFound   = "NOT_FOUND"
	CodeAuth       = "UNAUTHORIZED"
	CodeForbidden  = "FORBIDDEN"
	CodeInternal   = "INTERNAL_ERROR"
)

// Validation は入力不備のエラーを生成します。
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: message}
}

// Validationf は書式付きの入力不備エラーを生成します。
func Validationf(format string, args ...any) *Error {
	return Validation(fmt.Sprintf(format, args...))
}

// Conflict は一意キー重複のエラーを生成します。
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Code: CodeConflict, Message: message}
}

// NotFound はレコード未検出のエラーを生成します。
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: message}
}

// Auth は認証失敗のエラーを生成します。
func Auth(message string) *Error {
	return &Error{Kind: KindAuth, Code: CodeAuth, Message: message}
}

// Forbidden は権限不足のエラーを生成します。
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Code: CodeForbidden, Message: message}
}

// Internal は内部エラーを生成します。err は原因として保持され、クライアントには返しません。
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: message, Err: err}
}

// Is は err が指定分類の *Error かどうかを返します。
func Is(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}
