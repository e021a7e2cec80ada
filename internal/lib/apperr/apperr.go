// Package apperr описывает таксономию ошибок сервиса.
//
// Каждая ошибка несёт вид (Kind), HTTP-статус, машиночитаемый код и
// сообщение для клиента. Причина (Err) никогда не попадает в ответ клиенту,
// она нужна только для логов.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind — категория ошибки.
type Kind int

const (
	// KindInternal — ошибка хранилища или непредвиденный сбой (500).
	KindInternal Kind = iota
	// KindValidation — некорректный ввод (400).
	KindValidation
	// KindAuthentication — отсутствующие, неверные или истёкшие учётные данные (401).
	KindAuthentication
	// KindAuthorization — пользователь аутентифицирован, но прав недостаточно (403).
	KindAuthorization
	// KindConflict — дубликат username или email (409).
	KindConflict
	// KindRateLimit — превышена квота или аккаунт заблокирован (429).
	KindRateLimit
	// KindServiceUnavailable — внешний AI-сервис недоступен или открыт предохранитель (503).
	KindServiceUnavailable
)

// Машиночитаемые коды ошибок.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeInternal           = "INTERNAL_ERROR"
	CodeMissingToken       = "MISSING_TOKEN"
	CodeExpired            = "EXPIRED"
	CodeInvalid            = "INVALID"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountDisabled    = "ACCOUNT_DISABLED"
	CodeAccountLocked      = "ACCOUNT_LOCKED"
	CodeForbidden          = "FORBIDDEN"
	CodeConflict           = "CONFLICT"
	CodeInvalidInvite      = "INVALID_INVITE"
	CodeRestricted         = "RESTRICTED"
	CodeDailyLimit         = "DAILY_LIMIT"
	CodeMonthlyLimit       = "MONTHLY_LIMIT"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodePasswordReset      = "PASSWORD_RESET_REQUIRED"
)

// Error — типизированная ошибка сервиса.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status возвращает HTTP-статус, соответствующий виду ошибки.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Validation создаёт ошибку валидации.
func Validation(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

// Unauthenticated создаёт ошибку аутентификации.
func Unauthenticated(code, msg string) *Error {
	return &Error{Kind: KindAuthentication, Code: code, Message: msg}
}

// Forbidden создаёт ошибку авторизации.
func Forbidden(code, msg string) *Error {
	return &Error{Kind: KindAuthorization, Code: code, Message: msg}
}

// Conflict создаёт ошибку конфликта уникальности.
func Conflict(code, msg string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg}
}

// RateLimited создаёт ошибку превышения лимита.
func RateLimited(code, msg string) *Error {
	return &Error{Kind: KindRateLimit, Code: code, Message: msg}
}

// Unavailable создаёт ошибку недоступности внешнего сервиса.
func Unavailable(msg string, err error) *Error {
	return &Error{Kind: KindServiceUnavailable, Code: CodeServiceUnavailable, Message: msg, Err: err}
}

// Internal оборачивает непредвиденную ошибку.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal server error", Err: err}
}

// From приводит произвольную ошибку к *Error. Неизвестные ошибки считаются внутренними.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// Is сообщает, является ли err ошибкой сервиса заданного вида.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// HasCode сообщает, несёт ли err заданный машиночитаемый код.
func HasCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
