// Package password реализует хеширование и проверку паролей.
//
// Поддерживаются два формата хранимого значения:
//   - FormatBcrypt — соль + bcrypt, основной формат;
//   - FormatLegacyPlaintext — маркер "plain:<значение>" для ещё не мигрированных
//     seed-аккаунтов. Такой пароль сравнивается напрямую и после успешного входа
//     должен быть немедленно перехеширован в bcrypt.
package password

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Format — формат хранимого хеша пароля.
type Format int

const (
	// FormatBcrypt — bcrypt-хеш.
	FormatBcrypt Format = iota
	// FormatLegacyPlaintext — устаревший формат "plain:<значение>".
	FormatLegacyPlaintext
)

// LegacyPrefix — маркер устаревшего формата.
const LegacyPrefix = "plain:"

// MaxBytes — предел bcrypt на длину пароля в байтах.
const MaxBytes = 72

// ErrTooLong возвращается Hash для пароля длиннее MaxBytes байт.
var ErrTooLong = errors.New("password exceeds 72 bytes")

// DefaultCost подобран так, чтобы одна операция занимала порядка 100мс.
const DefaultCost = bcrypt.DefaultCost

func (f Format) String() string {
	switch f {
	case FormatLegacyPlaintext:
		return "legacy_plaintext"
	default:
		return "bcrypt"
	}
}

// DetectFormat определяет формат хранимого значения.
func DetectFormat(hash string) Format {
	if strings.HasPrefix(hash, LegacyPrefix) {
		return FormatLegacyPlaintext
	}
	return FormatBcrypt
}

// NeedsRehash сообщает, нужно ли перевести пароль в основной формат.
func NeedsRehash(f Format) bool {
	return f != FormatBcrypt
}

// Hasher хеширует и проверяет пароли с заданной стоимостью bcrypt.
type Hasher struct {
	cost int
}

// NewHasher создаёт Hasher. Значения вне допустимого диапазона bcrypt заменяются на DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash возвращает bcrypt-хеш пароля. Пароль длиннее MaxBytes байт даёт ErrTooLong.
func (h *Hasher) Hash(password string) (string, error) {
	const op = "password.Hash"
	if len(password) > MaxBytes {
		return "", fmt.Errorf("%s: %w", op, ErrTooLong)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", fmt.Errorf("%s: %w", op, ErrTooLong)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashed), nil
}

// Verify сравнивает пароль с хранимым значением и возвращает его формат.
func (h *Hasher) Verify(hash, password string) (Format, bool) {
	format := DetectFormat(hash)
	switch format {
	case FormatLegacyPlaintext:
		stored := strings.TrimPrefix(hash, LegacyPrefix)
		return format, subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
	default:
		err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
		if err != nil && !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			// битый хеш считается несовпадением
			return format, false
		}
		return format, err == nil
	}
}
