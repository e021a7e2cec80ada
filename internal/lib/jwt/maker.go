// Package jwt реализует выпуск и проверку токенов доступа и обновления.
//
// Токен доступа — короткоживущий JWT (HS256) с идентификатором, именем и ролью
// пользователя; проверяется без обращения к базе. Токен обновления — непрозрачная
// случайная строка, валидность которой определяется только записью сессии на сервере.
package jwt

import (
	"errors"
	"time"
)

// AccessTokenTTL — время жизни токена доступа по умолчанию.
const AccessTokenTTL = 15 * time.Minute

// RefreshTokenTTL — время жизни токена обновления по умолчанию.
const RefreshTokenTTL = 7 * 24 * time.Hour

var (
	// ErrTokenExpired — подпись корректна, но срок действия токена истёк.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid — токен повреждён, подписан чужим ключом или имеет неверный формат.
	ErrTokenInvalid = errors.New("token invalid")
)

// Maker описывает интерфейс для генерации и парсинга токенов доступа.
type Maker interface {
	// GenerateToken выпускает токен с идентификатором, именем и ролью пользователя.
	GenerateToken(userID, username, role string) (string, error)
	// ParseToken возвращает claims или ErrTokenExpired / ErrTokenInvalid.
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// MakerImpl реализует Maker с использованием общего секрета процесса
// и времени жизни токена (TTL).
type MakerImpl struct {
	secretKey []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

// Option настраивает MakerImpl.
type Option func(*MakerImpl)

// WithClock подменяет источник времени (используется в тестах).
func WithClock(now func() time.Time) Option {
	return func(m *MakerImpl) {
		m.now = now
	}
}

// NewJWTMaker создаёт новый экземпляр MakerImpl на основе секретного ключа и TTL.
func NewJWTMaker(secretKey string, ttl time.Duration, opts ...Option) *MakerImpl {
	if ttl == 0 {
		ttl = AccessTokenTTL
	}
	m := &MakerImpl{
		secretKey: []byte(secretKey),
		tokenTTL:  ttl,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}
