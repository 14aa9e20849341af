package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/festivo/internal/models"
)

type InviteStore struct {
	db DBTX
}

func NewInviteStore(db DBTX) *InviteStore {
	return &InviteStore{db: db}
}

const inviteColumns = `code, tenant_id, module_id, role, max_uses, uses, expires_at, created_by, created_at`

func scanInvite(row pgx.Row) (*models.InviteCode, error) {
	var c models.InviteCode
	err := row.Scan(
		&c.Code,
		&c.TenantID,
		&c.ModuleID,
		&c.Role,
		&c.MaxUses,
		&c.Uses,
		&c.ExpiresAt,
		&c.CreatedBy,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *InviteStore) Create(ctx context.Context, code models.InviteCode) (*models.InviteCode, error) {
	query := `
		INSERT INTO invite_codes (code, tenant_id, module_id, role, max_uses, uses, expires_at, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, now())
		RETURNING ` + inviteColumns

	c, err := scanInvite(s.db.QueryRow(ctx, query,
		code.Code,
		code.TenantID,
		code.ModuleID,
		code.Role,
		code.MaxUses,
		code.ExpiresAt,
		code.CreatedBy,
	))
	if err != nil {
		return nil, mapErr("insert invite code", err)
	}
	return c, nil
}

func (s *InviteStore) GetByCode(ctx context.Context, code string) (*models.InviteCode, error) {
	query := `SELECT ` + inviteColumns + ` FROM invite_codes WHERE code = $1`
	c, err := scanInvite(s.db.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get invite code: %w", err)
	}
	return c, nil
}

func (s *InviteStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.InviteCode, error) {
	query := `
		SELECT ` + inviteColumns + `
		FROM invite_codes
		WHERE tenant_id = $1
		ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list invite codes: %w", err)
	}
	defer rows.Close()

	codes := make([]models.InviteCode, 0)
	for rows.Next() {
		c, err := scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invite code: %w", err)
		}
		codes = append(codes, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invite codes: %w", err)
	}
	return codes, nil
}

func (s *InviteStore) CountUsable(ctx context.Context, tenantID uuid.UUID, now time.Time) (int, error) {
	query := `
		SELECT count(*)
		FROM invite_codes
		WHERE tenant_id = $1
		  AND uses < max_uses
		  AND (expires_at IS NULL OR expires_at >= $2)`

	var n int
	if err := s.db.QueryRow(ctx, query, tenantID, now).Scan(&n); err != nil {
		return 0, fmt.Errorf("count usable invite codes: %w", err)
	}
	return n, nil
}

// ConsumeUse is the whole race-safety story for invite codes.
//
// Why a conditional UPDATE and not SELECT-then-UPDATE?
//   - Two people redeeming the last use at the same moment would both
//     read uses=0 and both write uses=1. Both would join.
//   - With "WHERE uses < max_uses" in the UPDATE itself, Postgres takes
//     the row lock, re-evaluates the predicate for the second caller
//     after the first commits, and the second UPDATE matches zero rows.
func (s *InviteStore) ConsumeUse(ctx context.Context, code string, now time.Time) (*models.InviteCode, error) {
	query := `
		UPDATE invite_codes
		SET uses = uses + 1
		WHERE code = $1
		  AND uses < max_uses
		  AND (expires_at IS NULL OR expires_at >= $2)
		RETURNING ` + inviteColumns

	c, err := scanInvite(s.db.QueryRow(ctx, query, code, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("consume invite code: %w", err)
	}
	return c, nil
}
