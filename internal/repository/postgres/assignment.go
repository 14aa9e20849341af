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

type AssignmentStore struct {
	db DBTX
}

func NewAssignmentStore(db DBTX) *AssignmentStore {
	return &AssignmentStore{db: db}
}

const assignmentColumns = `id, tenant_id, mission_id, user_id, status, assigned_by, created_at, updated_at`

func scanAssignment(row pgx.Row) (*models.Assignment, error) {
	var a models.Assignment
	err := row.Scan(&a.ID, &a.TenantID, &a.MissionID, &a.UserID, &a.Status, &a.AssignedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create relies on the partial unique index assignments_active_idx: a
// second non-cancelled row for the same (mission, user) is a 23505.
func (s *AssignmentStore) Create(ctx context.Context, a models.Assignment) (*models.Assignment, error) {
	query := `
		INSERT INTO assignments (tenant_id, mission_id, user_id, status, assigned_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING ` + assignmentColumns

	out, err := scanAssignment(s.db.QueryRow(ctx, query, a.TenantID, a.MissionID, a.UserID, a.Status, a.AssignedBy))
	if err != nil {
		return nil, mapErr("insert assignment", err)
	}
	return out, nil
}

func (s *AssignmentStore) GetByID(ctx context.Context, tenantID, assignmentID uuid.UUID) (*models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = $1 AND tenant_id = $2`
	a, err := scanAssignment(s.db.QueryRow(ctx, query, assignmentID, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

func (s *AssignmentStore) ListByMission(ctx context.Context, tenantID, missionID uuid.UUID) ([]models.Assignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM assignments
		WHERE tenant_id = $1 AND mission_id = $2
		ORDER BY created_at`

	rows, err := s.db.Query(ctx, query, tenantID, missionID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	assignments := make([]models.Assignment, 0)
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return assignments, nil
}

func (s *AssignmentStore) CountActive(ctx context.Context, missionID uuid.UUID) (int, error) {
	query := `SELECT count(*) FROM assignments WHERE mission_id = $1 AND status <> 'cancelled'`

	var n int
	if err := s.db.QueryRow(ctx, query, missionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count assignments: %w", err)
	}
	return n, nil
}

func (s *AssignmentStore) SetStatus(ctx context.Context, tenantID, assignmentID uuid.UUID, status string, at time.Time) (*models.Assignment, error) {
	query := `
		UPDATE assignments
		SET status = $3, updated_at = $4
		WHERE id = $1 AND tenant_id = $2
		RETURNING ` + assignmentColumns

	a, err := scanAssignment(s.db.QueryRow(ctx, query, assignmentID, tenantID, status, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapErr("set assignment status", err)
	}
	return a, nil
}
