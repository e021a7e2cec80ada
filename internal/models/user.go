// Package models содержит доменные сущности шлюза: пользователей, инвайт-коды,
// сессии обновления и записи расхода токенов.
package models

import (
	"time"

	"github.com/magabrotheeeer/manuscript-editor/internal/lib/password"
)

// Role — роль пользователя.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Семантика лимитов токенов.
const (
	// LimitUnlimited — лимит не ограничен.
	LimitUnlimited int64 = -1
	// LimitRestricted — доступ к квотируемым операциям полностью закрыт.
	LimitRestricted int64 = 0
)

// User — учётная запись.
type User struct {
	ID                  string     `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	Role                Role       `json:"role"`
	IsActive            bool       `json:"is_active"`
	DailyTokenLimit     int64      `json:"daily_token_limit"`
	MonthlyTokenLimit   int64      `json:"monthly_token_limit"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// PasswordFormat возвращает формат хранимого пароля.
func (u *User) PasswordFormat() password.Format {
	return password.DetectFormat(u.PasswordHash)
}

// IsAdmin сообщает, является ли пользователь администратором.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// PublicUser — представление пользователя, которое покидает сервис:
// без хеша пароля и полей блокировки.
type PublicUser struct {
	ID                string     `json:"id"`
	Username          string     `json:"username"`
	Email             string     `json:"email"`
	Role              Role       `json:"role"`
	IsActive          bool       `json:"isActive"`
	DailyTokenLimit   int64      `json:"dailyTokenLimit"`
	MonthlyTokenLimit int64      `json:"monthlyTokenLimit"`
	LastLoginAt       *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// Public возвращает санитизированное представление пользователя.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:                u.ID,
		Username:          u.Username,
		Email:             u.Email,
		Role:              u.Role,
		IsActive:          u.IsActive,
		DailyTokenLimit:   u.DailyTokenLimit,
		MonthlyTokenLimit: u.MonthlyTokenLimit,
		LastLoginAt:       u.LastLoginAt,
		CreatedAt:         u.CreatedAt,
	}
}

// InviteCode — одноразовый код регистрации.
type InviteCode struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	Used      bool       `json:"used"`
	CreatedBy *string    `json:"created_by,omitempty"`
	UsedBy    *string    `json:"used_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// Session — серверная запись токена обновления. Хранится только хеш токена.
type Session struct {
	TokenHash string    `json:"-"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired сообщает, истёк ли срок действия сессии к моменту now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
