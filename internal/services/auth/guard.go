package auth

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/magabrotheeeer/manuscript-editor/internal/lib/apperr"
	"github.com/magabrotheeeer/manuscript-editor/internal/models"
)

// Значения защиты от перебора по умолчанию.
const (
	DefaultMaxFailedLogins = 5
	DefaultLockoutDuration = 15 * time.Minute
)

// GuardStore — хранилище счётчика неудачных входов.
type GuardStore interface {
	IncrementFailedLogins(ctx context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error)
	ResetFailedLogins(ctx context.Context, id string) error
}

// Guard — автомат блокировки учётной записи после серии неудачных входов.
//
// Состояние хранится в строке пользователя (счётчик и locked_until), поэтому
// Guard сам по себе не имеет состояния и безопасен для конкурентного использования.
type Guard struct {
	store     GuardStore
	threshold int
	lockout   time.Duration
	now       func() time.Time
}

// NewGuard создаёт Guard. Неположительные параметры заменяются значениями по умолчанию.
func NewGuard(store GuardStore, threshold int, lockout time.Duration, now func() time.Time) *Guard {
	if threshold <= 0 {
		threshold = DefaultMaxFailedLogins
	}
	if lockout <= 0 {
		lockout = DefaultLockoutDuration
	}
	if now == nil {
		now = time.Now
	}
	return &Guard{store: store, threshold: threshold, lockout: lockout, now: now}
}

// Admit решает, можно ли проверять пароль пользователя.
//
// При действующей блокировке возвращает ACCOUNT_LOCKED с оставшимися минутами,
// не трогая счётчик. Истёкшая блокировка сбрасывается до проверки пароля,
// и u обновляется на месте.
func (g *Guard) Admit(ctx context.Context, u *models.User) error {
	if u.LockedUntil == nil {
		return nil
	}

	now := g.now()
	if now.Before(*u.LockedUntil) {
		return apperr.RateLimited(apperr.CodeAccountLocked,
			fmt.Sprintf("account is temporarily locked, try again in %d minute(s)", remainingMinutes(*u.LockedUntil, now)))
	}

	if err := g.store.ResetFailedLogins(ctx, u.ID); err != nil {
		return apperr.Internal(err)
	}
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	return nil
}

// RecordFailure учитывает неудачную проверку пароля. Возвращает true, если
// эта попытка заблокировала учётную запись.
func (g *Guard) RecordFailure(ctx context.Context, u *models.User) (bool, error) {
	attempts, lockedUntil, err := g.store.IncrementFailedLogins(ctx, u.ID, g.threshold, g.now().Add(g.lockout))
	if err != nil {
		return false, apperr.Internal(err)
	}
	u.FailedLoginAttempts = attempts
	u.LockedUntil = lockedUntil
	return lockedUntil != nil && attempts >= g.threshold, nil
}

func remainingMinutes(until, now time.Time) int {
	m := int(math.Ceil(until.Sub(now).Minutes()))
	return max(m, 1)
}
