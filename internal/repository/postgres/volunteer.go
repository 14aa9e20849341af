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

type VolunteerStore struct {
	db DBTX
}

func NewVolunteerStore(db DBTX) *VolunteerStore {
	return &VolunteerStore{db: db}
}

const volunteerColumns = `tenant_id, user_id, status, created_at, reviewed_by, reviewed_at`

func scanVolunteer(row pgx.Row) (*models.Volunteer, error) {
	var v models.Volunteer
	if err := row.Scan(&v.TenantID, &v.UserID, &v.Status, &v.CreatedAt, &v.ReviewedBy, &v.ReviewedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

// CreatePending is idempotent. The no-op DO UPDATE makes RETURNING
// yield the existing row on conflict, so callers always get a record.
func (s *VolunteerStore) CreatePending(ctx context.Context, tenantID, userID uuid.UUID, at time.Time) (*models.Volunteer, error) {
	query := `
		INSERT INTO volunteers (tenant_id, user_id, status, created_at)
		VALUES ($1, $2, 'pending', $3)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET tenant_id = EXCLUDED.tenant_id
		RETURNING ` + volunteerColumns

	v, err := scanVolunteer(s.db.QueryRow(ctx, query, tenantID, userID, at))
	if err != nil {
		return nil, fmt.Errorf("insert volunteer: %w", err)
	}
	return v, nil
}

func (s *VolunteerStore) Get(ctx context.Context, tenantID, userID uuid.UUID) (*models.Volunteer, error) {
	query := `SELECT ` + volunteerColumns + ` FROM volunteers WHERE tenant_id = $1 AND user_id = $2`
	v, err := scanVolunteer(s.db.QueryRow(ctx, query, tenantID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get volunteer: %w", err)
	}
	return v, nil
}

func (s *VolunteerStore) ListByTenant(ctx context.Context, tenantID uuid.UUID, status string) ([]models.Volunteer, error) {
	query := `
		SELECT ` + volunteerColumns + `
		FROM volunteers
		WHERE tenant_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at`

	rows, err := s.db.Query(ctx, query, tenantID, status)
	if err != nil {
		return nil, fmt.Errorf("list volunteers: %w", err)
	}
	defer rows.Close()

	volunteers := make([]models.Volunteer, 0)
	for rows.Next() {
		v, err := scanVolunteer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan volunteer: %w", err)
		}
		volunteers = append(volunteers, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate volunteers: %w", err)
	}
	return volunteers, nil
}

func (s *VolunteerStore) SetStatus(ctx context.Context, tenantID, userID uuid.UUID, status string, reviewer uuid.UUID, at time.Time) (*models.Volunteer, error) {
	query := `
		UPDATE volunteers
		SET status = $3, reviewed_by = $4, reviewed_at = $5
		WHERE tenant_id = $1 AND user_id = $2
		RETURNING ` + volunteerColumns

	v, err := scanVolunteer(s.db.QueryRow(ctx, query, tenantID, userID, status, reviewer, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("set volunteer status: %w", err)
	}
	return v, nil
}
