package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/magabrotheeeer/manuscript-editor/internal/models"
)

// InsertUsage добавляет запись в журнал расхода.
func (s *Storage) InsertUsage(ctx context.Context, entry models.UsageLogEntry) error {
	const op = "storage.InsertUsage"

	_, err := s.DB.ExecContext(ctx, `INSERT INTO usage_logs
		(id, user_id, endpoint, input_tokens, output_tokens, model, project_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.UserID, entry.Endpoint, entry.InputTokens, entry.OutputTokens,
		nullString(entry.Model), nullString(entry.ProjectID), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SumUsage возвращает сумму расхода пользователя в полуинтервале [from, to).
func (s *Storage) SumUsage(ctx context.Context, userID string, from, to time.Time) (models.UsageTotals, error) {
	const op = "storage.SumUsage"

	var t models.UsageTotals
	err := s.DB.QueryRowContext(ctx, `SELECT
			COALESCE(SUM(input_tokens), 0),
			COALESCE(SUM(output_tokens), 0)
		FROM usage_logs
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3`, userID, from, to).
		Scan(&t.Input, &t.Output)
	if err != nil {
		return models.UsageTotals{}, fmt.Errorf("%s: %w", op, err)
	}
	t.Total = t.Input + t.Output
	return t, nil
}

// ListUsage возвращает последние записи пользователя, новые первыми.
func (s *Storage) ListUsage(ctx context.Context, userID string, limit int) ([]models.UsageLogEntry, error) {
	const op = "storage.ListUsage"

	rows, err := s.DB.QueryContext(ctx, `SELECT id, user_id, endpoint, input_tokens, output_tokens, model, project_id, created_at
		FROM usage_logs
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]models.UsageLogEntry, 0, limit)
	for rows.Next() {
		var (
			e                models.UsageLogEntry
			model, projectID sql.NullString
		)
		if err = rows.Scan(&e.ID, &e.UserID, &e.Endpoint, &e.InputTokens, &e.OutputTokens,
			&model, &projectID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if model.Valid {
			e.Model = &model.String
		}
		if projectID.Valid {
			e.ProjectID = &projectID.String
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return entries, nil
}

// SystemUsage агрегирует расход всех пользователей начиная с from.
func (s *Storage) SystemUsage(ctx context.Context, from time.Time) (models.SystemUsage, error) {
	const op = "storage.SystemUsage"

	var u models.SystemUsage
	err := s.DB.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COALESCE(SUM(input_tokens + output_tokens), 0),
			COUNT(DISTINCT user_id)
		FROM usage_logs
		WHERE created_at >= $1`, from).Scan(&u.TotalCalls, &u.TotalTokens, &u.UniqueUsers)
	if err != nil {
		return models.SystemUsage{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// UsageByUser возвращает построчный отчёт по всем пользователям с расходом начиная с from,
// упорядоченный по убыванию суммарного расхода.
func (s *Storage) UsageByUser(ctx context.Context, from time.Time) ([]models.UserUsage, error) {
	const op = "storage.UsageByUser"

	rows, err := s.DB.QueryContext(ctx, `SELECT
			u.id, u.username,
			COUNT(l.id),
			COALESCE(SUM(l.input_tokens), 0),
			COALESCE(SUM(l.output_tokens), 0),
			u.daily_token_limit, u.monthly_token_limit
		FROM usage_logs l
		JOIN users u ON u.id = l.user_id
		WHERE l.created_at >= $1
		GROUP BY u.id, u.username, u.daily_token_limit, u.monthly_token_limit
		ORDER BY COALESCE(SUM(l.input_tokens + l.output_tokens), 0) DESC, u.username`, from)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var report []models.UserUsage
	for rows.Next() {
		var r models.UserUsage
		if err = rows.Scan(&r.UserID, &r.Username, &r.Calls, &r.InputTokens, &r.OutputTokens,
			&r.DailyLimit, &r.MonthlyLimit); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		r.TotalTokens = r.InputTokens + r.OutputTokens
		report = append(report, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return report, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
