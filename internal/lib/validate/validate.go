// Package validate настраивает валидатор входных данных HTTP-обработчиков.
package validate

import (
	"regexp"
	"unicode"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/manuscript-editor/internal/lib/password"
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// New возвращает валидатор с правилами username и password.
//
// username: латинские буквы, цифры, дефис и подчёркивание.
// password: есть хотя бы одна заглавная, одна строчная буква и цифра, длина
// не больше password.MaxBytes байт.
func New() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		pw := fl.Field().String()
		return len(pw) <= password.MaxBytes && StrongPassword(pw)
	})
	return v
}

// StrongPassword сообщает, содержит ли пароль заглавную и строчную букву и цифру.
func StrongPassword(s string) bool {
	var upper, lower, digit bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}
