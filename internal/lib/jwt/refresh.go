package jwt

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// refreshTokenBytes — энтропия токена обновления.
const refreshTokenBytes = 48

// NewRefreshToken возвращает криптографически случайный токен обновления в hex.
func NewRefreshToken() (string, error) {
	const op = "jwt.NewRefreshToken"
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return hex.EncodeToString(b), nil
}

// HashRefreshToken возвращает SHA-256 токена обновления. В базе хранится только хеш.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
