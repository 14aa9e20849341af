package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/festivo/internal/clearance"
	"github.com/lalith-99/festivo/internal/models"
)

// MembershipStore persists tenant memberships (tenant_members). Channel
// membership lives in ChannelMemberStore.
type MembershipStore struct {
	db DBTX
}

func NewMembershipStore(db DBTX) *MembershipStore {
	return &MembershipStore{db: db}
}

const membershipColumns = `id, tenant_id, user_id, role, clearance_level, joined_at`

func scanMembership(row pgx.Row) (*models.Membership, error) {
	var m models.Membership
	var level int16
	if err := row.Scan(&m.ID, &m.TenantID, &m.UserID, &m.Role, &level, &m.JoinedAt); err != nil {
		return nil, err
	}
	m.ClearanceLevel = clearance.Level(level)
	return &m, nil
}

// Create relies on UNIQUE (tenant_id, user_id): a second membership for
// the same pair fails with ErrConflict instead of silently succeeding,
// so invite redemption can roll back the use it just consumed.
func (s *MembershipStore) Create(ctx context.Context, m models.Membership) (*models.Membership, error) {
	query := `
		INSERT INTO tenant_members (tenant_id, user_id, role, clearance_level, joined_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING ` + membershipColumns

	out, err := scanMembership(s.db.QueryRow(ctx, query, m.TenantID, m.UserID, m.Role, int16(m.ClearanceLevel)))
	if err != nil {
		return nil, mapErr("insert membership", err)
	}
	return out, nil
}

func (s *MembershipStore) Get(ctx context.Context, tenantID, userID uuid.UUID) (*models.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM tenant_members WHERE tenant_id = $1 AND user_id = $2`
	m, err := scanMembership(s.db.QueryRow(ctx, query, tenantID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

func (s *MembershipStore) GetByID(ctx context.Context, memberID uuid.UUID) (*models.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM tenant_members WHERE id = $1`
	m, err := scanMembership(s.db.QueryRow(ctx, query, memberID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get membership by id: %w", err)
	}
	return m, nil
}

func (s *MembershipStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Membership, error) {
	query := `
		SELECT ` + membershipColumns + `
		FROM tenant_members
		WHERE tenant_id = $1
		ORDER BY joined_at`

	rows, err := s.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	members := make([]models.Membership, 0)
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}
	return members, nil
}

func (s *MembershipStore) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM tenant_members WHERE tenant_id = $1`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count memberships: %w", err)
	}
	return n, nil
}

func (s *MembershipStore) SetClearance(ctx context.Context, memberID uuid.UUID, level clearance.Level) (*models.Membership, error) {
	query := `
		UPDATE tenant_members
		SET clearance_level = $2
		WHERE id = $1
		RETURNING ` + membershipColumns

	m, err := scanMembership(s.db.QueryRow(ctx, query, memberID, int16(level)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("set clearance: %w", err)
	}
	return m, nil
}

func (s *MembershipStore) Delete(ctx context.Context, tenantID, memberID uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM tenant_members WHERE tenant_id = $1 AND id = $2`, tenantID, memberID)
	if err != nil {
		return false, fmt.Errorf("delete membership: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
