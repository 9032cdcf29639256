// Package apperr は API 境界で扱うエラー型と HTTP レスポンスへの変換を提供します。
package apperr

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// エラーコード
const (
	CodeInvalidInput  = "INVALID_INPUT"
	CodeNotFound      = "NOT_FOUND"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeConflict      = "CONFLICT"
	CodeLimitExceeded = "LIMIT_EXCEEDED"
	CodeInternal      = "INTERNAL_ERROR"
)

// Error は呼び出し元にそのまま見せてよいエラーです。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New は Error を作成します。
func New(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Validation は入力検証エラーを返します。
func Validation(message string) *Error {
	return New(CodeInvalidInput, message, nil)
}

// NotFound は参照先が存在しないことを表すエラーを返します。
func NotFound(what string) *Error {
	return New(CodeNotFound, what+" not found", nil)
}

// Unauthorized は所有者以外の操作を拒否するエラーを返します。
func Unauthorized() *Error {
	return New(CodeUnauthorized, "Unauthorized", nil)
}

// IsCode は err が指定コードの Error かどうかを返します。
func IsCode(err error, code string) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}

// StatusOf はエラーコードに対応する HTTP ステータスを返します。
func StatusOf(code string) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	case CodeLimitExceeded:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// Respond は err を {"code","message"} 形式の JSON で返します。
func Respond(c *gin.Context, err error) {
	var appErr *Error
	switch {
	case errors.As(err, &appErr):
		c.JSON(StatusOf(appErr.Code), gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "request was canceled",
		})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    CodeInternal,
			"message": "internal server error",
		})
	}
}
