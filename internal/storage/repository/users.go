package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/manuscript-editor/internal/models"
	"github.com/magabrotheeeer/manuscript-editor/internal/storage/dbx"
)

const userColumns = `id, username, email, password_hash, role, is_active,
	daily_token_limit, monthly_token_limit, failed_login_attempts,
	locked_until, last_login_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u                      models.User
		role                   string
		lockedUntil, lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.IsActive,
		&u.DailyTokenLimit, &u.MonthlyTokenLimit, &u.FailedLoginAttempts,
		&lockedUntil, &lastLogin, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	if lockedUntil.Valid {
		t := lockedUntil.Time.UTC()
		u.LockedUntil = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		u.LastLoginAt = &t
	}
	return &u, nil
}

// CreateUserWithInvite атомарно расходует инвайт-код и создаёт пользователя.
//
// Порядок внутри транзакции: условный UPDATE кода (used = FALSE) блокирует строку,
// поэтому из конкурирующих регистраций с одним кодом зафиксироваться может только одна.
// Любая ошибка откатывает и пользователя, и расход кода.
func (s *Storage) CreateUserWithInvite(ctx context.Context, user models.User, inviteCode string, now time.Time) (*models.User, error) {
	const op = "storage.CreateUserWithInvite"

	var created *models.User
	err := dbx.WithTx(ctx, s.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var inviteID string
		err := tx.QueryRowContext(ctx, `UPDATE invite_codes
			SET used = TRUE, used_at = $2
			WHERE code = $1 AND used = FALSE
			RETURNING id`, inviteCode, now).Scan(&inviteID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInviteUnavailable
		}
		if err != nil {
			return err
		}

		var taken bool
		if err = tx.QueryRowContext(ctx, `SELECT EXISTS (
			SELECT 1 FROM users WHERE lower(username) = lower($1) OR lower(email) = lower($2)
		)`, user.Username, user.Email).Scan(&taken); err != nil {
			return err
		}
		if taken {
			return ErrConflict
		}

		row := tx.QueryRowContext(ctx, `INSERT INTO users
			(id, username, email, password_hash, role, is_active, daily_token_limit, monthly_token_limit, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING `+userColumns,
			user.ID, user.Username, user.Email, user.PasswordHash, string(user.Role), user.IsActive,
			user.DailyTokenLimit, user.MonthlyTokenLimit, now)
		created, err = scanUser(row)
		if err != nil {
			return mapPgErr(err)
		}

		_, err = tx.ExecContext(ctx, `UPDATE invite_codes SET used_by = $1 WHERE id = $2`, created.ID, inviteID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

// GetUser возвращает пользователя по идентификатору.
func (s *Storage) GetUser(ctx context.Context, id string) (*models.User, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	u, err := scanUser(s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapPgErr(err))
	}
	return u, nil
}

// GetUserByIdentifier ищет пользователя по email или username без учёта регистра.
func (s *Storage) GetUserByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	const op = "storage.GetUserByIdentifier"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	u, err := scanUser(s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users
		WHERE lower(email) = lower($1) OR lower(username) = lower($1)
		LIMIT 1`, identifier))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapPgErr(err))
	}
	return u, nil
}

// IncrementFailedLogins атомарно увеличивает счётчик неудачных входов и,
// если он достиг threshold, выставляет блокировку до lockUntil.
func (s *Storage) IncrementFailedLogins(ctx context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	const op = "storage.IncrementFailedLogins"

	var (
		attempts int
		locked   sql.NullTime
	)
	err := s.DB.QueryRowContext(ctx, `UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE WHEN failed_login_attempts + 1 >= $2 THEN $3 ELSE locked_until END
		WHERE id = $1
		RETURNING failed_login_attempts, locked_until`, id, threshold, lockUntil).Scan(&attempts, &locked)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: %w", op, mapPgErr(err))
	}
	if !locked.Valid {
		return attempts, nil, nil
	}
	t := locked.Time.UTC()
	return attempts, &t, nil
}

// ResetFailedLogins сбрасывает счётчик и истёкшую блокировку.
func (s *Storage) ResetFailedLogins(ctx context.Context, id string) error {
	const op = "storage.ResetFailedLogins"

	_, err := s.DB.ExecContext(ctx, `UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CompleteLogin фиксирует успешный вход: сбрасывает состояние блокировки, обновляет
// last_login_at и, если передан newHash, заменяет хеш пароля. Возвращает свежую строку.
func (s *Storage) CompleteLogin(ctx context.Context, id string, newHash *string, at time.Time) (*models.User, error) {
	const op = "storage.CompleteLogin"

	var hash sql.NullString
	if newHash != nil {
		hash = sql.NullString{String: *newHash, Valid: true}
	}
	u, err := scanUser(s.DB.QueryRowContext(ctx, `UPDATE users
		SET failed_login_attempts = 0,
		    locked_until = NULL,
		    last_login_at = $2,
		    password_hash = COALESCE($3, password_hash)
		WHERE id = $1
		RETURNING `+userColumns, id, at, hash))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapPgErr(err))
	}
	return u, nil
}

// CountLegacyPasswords возвращает число учётных записей, ещё не переведённых на bcrypt.
func (s *Storage) CountLegacyPasswords(ctx context.Context) (int64, error) {
	const op = "storage.CountLegacyPasswords"

	var n int64
	if err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE password_hash LIKE 'plain:%'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
