package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/manuscript-editor/internal/models"
	"github.com/magabrotheeeer/manuscript-editor/internal/storage/dbx"
)

// CreateSession сохраняет сессию обновления.
func (s *Storage) CreateSession(ctx context.Context, session models.Session) error {
	const op = "storage.CreateSession"

	_, err := s.DB.ExecContext(ctx, `INSERT INTO sessions (token_hash, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)`, session.TokenHash, session.UserID, session.ExpiresAt, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapPgErr(err))
	}
	return nil
}

// GetSession возвращает сессию по хешу токена.
func (s *Storage) GetSession(ctx context.Context, tokenHash string) (*models.Session, error) {
	const op = "storage.GetSession"

	var sess models.Session
	err := s.DB.QueryRowContext(ctx, `SELECT token_hash, user_id, expires_at, created_at
		FROM sessions WHERE token_hash = $1`, tokenHash).
		Scan(&sess.TokenHash, &sess.UserID, &sess.ExpiresAt, &sess.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapPgErr(err))
	}
	return &sess, nil
}

// DeleteSession удаляет сессию. Отсутствие записи ошибкой не считается.
func (s *Storage) DeleteSession(ctx context.Context, tokenHash string) error {
	const op = "storage.DeleteSession"

	if _, err := s.DB.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RotateSession в одной транзакции удаляет предъявленную сессию и создаёт замену.
// Если старая сессия уже удалена конкурирующим запросом, возвращается ErrNotFound
// и новая сессия не создаётся.
func (s *Storage) RotateSession(ctx context.Context, oldHash string, next models.Session) error {
	const op = "storage.RotateSession"

	err := dbx.WithTx(ctx, s.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, oldHash)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO sessions (token_hash, user_id, expires_at, created_at)
			VALUES ($1, $2, $3, $4)`, next.TokenHash, next.UserID, next.ExpiresAt, next.CreatedAt)
		return mapPgErr(err)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeleteExpiredSessions удаляет просроченные сессии и возвращает их число.
func (s *Storage) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.DeleteExpiredSessions"

	res, err := s.DB.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
