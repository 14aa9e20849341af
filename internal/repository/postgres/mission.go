package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/festivo/internal/models"
)

type MissionStore struct {
	db DBTX
}

func NewMissionStore(db DBTX) *MissionStore {
	return &MissionStore{db: db}
}

const missionColumns = `id, tenant_id, title, description, location, starts_at, ends_at, capacity, status, created_by, created_at, updated_at`

func scanMission(row pgx.Row) (*models.Mission, error) {
	var m models.Mission
	err := row.Scan(
		&m.ID,
		&m.TenantID,
		&m.Title,
		&m.Description,
		&m.Location,
		&m.StartsAt,
		&m.EndsAt,
		&m.Capacity,
		&m.Status,
		&m.CreatedBy,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MissionStore) Create(ctx context.Context, m models.Mission) (*models.Mission, error) {
	query := `
		INSERT INTO missions (tenant_id, title, description, location, starts_at, ends_at, capacity, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING ` + missionColumns

	out, err := scanMission(s.db.QueryRow(ctx, query,
		m.TenantID, m.Title, m.Description, m.Location, m.StartsAt, m.EndsAt, m.Capacity, m.Status, m.CreatedBy))
	if err != nil {
		return nil, fmt.Errorf("insert mission: %w", err)
	}
	return out, nil
}

func (s *MissionStore) get(ctx context.Context, query, op string, tenantID, missionID uuid.UUID) (*models.Mission, error) {
	m, err := scanMission(s.db.QueryRow(ctx, query, missionID, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return m, nil
}

func (s *MissionStore) GetByID(ctx context.Context, tenantID, missionID uuid.UUID) (*models.Mission, error) {
	query := `SELECT ` + missionColumns + ` FROM missions WHERE id = $1 AND tenant_id = $2`
	return s.get(ctx, query, "get mission", tenantID, missionID)
}

// GetForUpdate takes a row lock. Two coordinators assigning the last
// slot of a mission queue up behind each other here, so the capacity
// check that follows sees the other's committed assignment.
func (s *MissionStore) GetForUpdate(ctx context.Context, tenantID, missionID uuid.UUID) (*models.Mission, error) {
	query := `SELECT ` + missionColumns + ` FROM missions WHERE id = $1 AND tenant_id = $2 FOR UPDATE`
	return s.get(ctx, query, "lock mission", tenantID, missionID)
}

func (s *MissionStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Mission, error) {
	query := `
		SELECT ` + missionColumns + `
		FROM missions
		WHERE tenant_id = $1
		ORDER BY starts_at, title`

	rows, err := s.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	defer rows.Close()

	missions := make([]models.Mission, 0)
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mission: %w", err)
		}
		missions = append(missions, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate missions: %w", err)
	}
	return missions, nil
}

func (s *MissionStore) Update(ctx context.Context, m models.Mission) (*models.Mission, error) {
	query := `
		UPDATE missions
		SET title = $3, description = $4, location = $5, starts_at = $6, ends_at = $7,
		    capacity = $8, status = $9, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING ` + missionColumns

	out, err := scanMission(s.db.QueryRow(ctx, query,
		m.ID, m.TenantID, m.Title, m.Description, m.Location, m.StartsAt, m.EndsAt, m.Capacity, m.Status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update mission: %w", err)
	}
	return out, nil
}

// DeleteIfUnassigned folds the "no active assignments" check into the
// DELETE itself. A separate SELECT-then-DELETE would let an assignment
// slip in between the two.
func (s *MissionStore) DeleteIfUnassigned(ctx context.Context, tenantID, missionID uuid.UUID) (bool, error) {
	query := `
		DELETE FROM missions m
		WHERE m.id = $1 AND m.tenant_id = $2
		  AND NOT EXISTS (
		      SELECT 1 FROM assignments a
		      WHERE a.mission_id = m.id AND a.status <> 'cancelled'
		  )`

	tag, err := s.db.Exec(ctx, query, missionID, tenantID)
	if err != nil {
		return false, fmt.Errorf("delete mission: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
