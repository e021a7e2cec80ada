package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/manuscript-editor/internal/models"
)

// CreateInviteCode сохраняет новый инвайт-код.
func (s *Storage) CreateInviteCode(ctx context.Context, invite models.InviteCode) error {
	const op = "storage.CreateInviteCode"

	var createdBy sql.NullString
	if invite.CreatedBy != nil {
		createdBy = sql.NullString{String: *invite.CreatedBy, Valid: true}
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO invite_codes (id, code, used, created_by, created_at)
		VALUES ($1, $2, FALSE, $3, $4)`, invite.ID, invite.Code, createdBy, invite.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapPgErr(err))
	}
	return nil
}

// GetInviteCode возвращает инвайт-код по значению.
func (s *Storage) GetInviteCode(ctx context.Context, code string) (*models.InviteCode, error) {
	const op = "storage.GetInviteCode"

	var (
		inv               models.InviteCode
		createdBy, usedBy sql.NullString
		usedAt            sql.NullTime
	)
	err := s.DB.QueryRowContext(ctx, `SELECT id, code, used, created_by, used_by, created_at, used_at
		FROM invite_codes WHERE code = $1`, code).
		Scan(&inv.ID, &inv.Code, &inv.Used, &createdBy, &usedBy, &inv.CreatedAt, &usedAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapPgErr(err))
	}
	if createdBy.Valid {
		inv.CreatedBy = &createdBy.String
	}
	if usedBy.Valid {
		inv.UsedBy = &usedBy.String
	}
	if usedAt.Valid {
		t := usedAt.Time.UTC()
		inv.UsedAt = &t
	}
	return &inv, nil
}
