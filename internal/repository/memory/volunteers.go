package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/lalith-99/festivo/internal/models"
	"github.com/lalith-99/festivo/internal/repository"
)

type volunteerRow struct {
	TenantID  string
	UserID    string
	Volunteer models.Volunteer
}

type volunteerStore struct{ c *conn }

func (s *volunteerStore) CreatePending(ctx context.Context, tenantID, userID uuid.UUID, at time.Time) (*models.Volunteer, error) {
	var out models.Volunteer
	err := s.c.write(func(txn *memdb.Txn) error {
		row, err := first[volunteerRow](txn, tableVolunteers, idIndex, tenantID.String(), userID.String())
		if err != nil {
			return err
		}
		if row != nil {
			out = row.Volunteer
			return nil
		}
		out = models.Volunteer{
			TenantID:  tenantID,
			UserID:    userID,
			Status:    models.VolunteerPending,
			CreatedAt: at,
		}
		return insert(txn, tableVolunteers, &volunteerRow{TenantID: tenantID.String(), UserID: userID.String(), Volunteer: out})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *volunteerStore) Get(ctx context.Context, tenantID, userID uuid.UUID) (*models.Volunteer, error) {
	var out *models.Volunteer
	err := s.c.read(func(txn *memdb.Txn) error {
		row, err := first[volunteerRow](txn, tableVolunteers, idIndex, tenantID.String(), userID.String())
		if err != nil || row == nil {
			return err
		}
		v := row.Volunteer
		out = &v
		return nil
	})
	return out, err
}

func (s *volunteerStore) ListByTenant(ctx context.Context, tenantID uuid.UUID, status string) ([]models.Volunteer, error) {
	volunteers := make([]models.Volunteer, 0)
	err := s.c.read(func(txn *memdb.Txn) error {
		rows, err := all[volunteerRow](txn, tableVolunteers, "tenant", tenantID.String())
		if err != nil {
			return err
		}
		for _, r := range rows {
			if status == "" || r.Volunteer.Status == status {
				volunteers = append(volunteers, r.Volunteer)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(volunteers, func(a, b models.Volunteer) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return volunteers, nil
}

func (s *volunteerStore) SetStatus(ctx context.Context, tenantID, userID uuid.UUID, status string, reviewer uuid.UUID, at time.Time) (*models.Volunteer, error) {
	var out *models.Volunteer
	err := s.c.write(func(txn *memdb.Txn) error {
		row, err := first[volunteerRow](txn, tableVolunteers, idIndex, tenantID.String(), userID.String())
		if err != nil || row == nil {
			return err
		}
		v := row.Volunteer
		v.Status = status
		v.ReviewedBy = &reviewer
		v.ReviewedAt = &at
		out = &v
		return insert(txn, tableVolunteers, &volunteerRow{TenantID: row.TenantID, UserID: row.UserID, Volunteer: v})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type missionRow struct {
	ID       string
	TenantID string
	Mission  models.Mission
}

type missionStore struct{ c *conn }

func (s *missionStore) Create(ctx context.Context, m models.Mission) (*models.Mission, error) {
	out := m
	out.ID = uuid.New()
	out.CreatedAt = time.Now().UTC()
	out.UpdatedAt = out.CreatedAt
	err := s.c.write(func(txn *memdb.Txn) error {
		return insert(txn, tableMissions, &missionRow{ID: out.ID.String(), TenantID: out.TenantID.String(), Mission: out})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *missionStore) GetByID(ctx context.Context, tenantID, missionID uuid.UUID) (*models.Mission, error) {
	var out *models.Mission
	err := s.c.read(func(txn *memdb.Txn) error {
		row, err := first[missionRow](txn, tableMissions, idIndex, missionID.String())
		if err != nil || row == nil || row.TenantID != tenantID.String() {
			return err
		}
		m := row.Mission
		out = &m
		return nil
	})
	return out, err
}

// GetForUpdate is a plain read: inside InTx the write lock is already
// held for the whole transaction.
func (s *missionStore) GetForUpdate(ctx context.Context, tenantID, missionID uuid.UUID) (*models.Mission, error) {
	return s.GetByID(ctx, tenantID, missionID)
}

func (s *missionStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Mission, error) {
	missions := make([]models.Mission, 0)
	err := s.c.read(func(txn *memdb.Txn) error {
		rows, err := all[missionRow](txn, tableMissions, "tenant", tenantID.String())
		if err != nil {
			return err
		}
		for _, r := range rows {
			missions = append(missions, r.Mission)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(missions, func(a, b models.Mission) int {
		if c := a.StartsAt.Compare(b.StartsAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Title, b.Title)
	})
	return missions, nil
}

func (s *missionStore) Update(ctx context.Context, m models.Mission) (*models.Mission, error) {
	var out *models.Mission
	err := s.c.write(func(txn *memdb.Txn) error {
		row, err := first[missionRow](txn, tableMissions, idIndex, m.ID.String())
		if err != nil || row == nil || row.TenantID != m.TenantID.String() {
			return err
		}
		updated := row.Mission
		updated.Title = m.Title
		updated.Description = m.Description
		updated.Location = m.Location
		updated.StartsAt = m.StartsAt
		updated.EndsAt = m.EndsAt
		updated.Capacity = m.Capacity
		updated.Status = m.Status
		updated.UpdatedAt = time.Now().UTC()
		out = &updated
		return insert(txn, tableMissions, &missionRow{ID: row.ID, TenantID: row.TenantID, Mission: updated})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteIfUnassigned also drops the mission's cancelled assignments, as
// the ON DELETE CASCADE foreign key does in Postgres.
func (s *missionStore) DeleteIfUnassigned(ctx context.Context, tenantID, missionID uuid.UUID) (bool, error) {
	var deleted bool
	err := s.c.write(func(txn *memdb.Txn) error {
		row, err := first[missionRow](txn, tableMissions, idIndex, missionID.String())
		if err != nil || row == nil || row.TenantID != tenantID.String() {
			return err
		}
		assignments, err := all[assignmentRow](txn, tableAssignments, "mission", row.ID)
		if err != nil {
			return err
		}
		for _, a := range assignments {
			if a.Assignment.Active() {
				return nil
			}
		}
		for _, a := range assignments {
			if err := txn.Delete(tableAssignments, a); err != nil {
				return fmt.Errorf("delete assignment: %w", err)
			}
		}
		if err := txn.Delete(tableMissions, row); err != nil {
			return fmt.Errorf("delete mission: %w", err)
		}
		deleted = true
		return nil
	})
	return deleted, err
}

type assignmentRow struct {
	ID         string
	MissionID  string
	Assignment models.Assignment
}

func newAssignmentRow(a models.Assignment) *assignmentRow {
	return &assignmentRow{ID: a.ID.String(), MissionID: a.MissionID.String(), Assignment: a}
}

type assignmentStore struct{ c *conn }

// hasActive mirrors the partial unique index on (mission_id, user_id)
// WHERE status <> 'cancelled'. skip excludes the row being updated.
func hasActive(txn *memdb.Txn, missionID, userID uuid.UUID, skip uuid.UUID) (bool, error) {
	rows, err := all[assignmentRow](txn, tableAssignments, "mission", missionID.String())
	if err != nil {
		return false, err
	}
	for _, r := range rows {
		if r.Assignment.ID != skip && r.Assignment.UserID == userID && r.Assignment.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (s *assignmentStore) Create(ctx context.Context, a models.Assignment) (*models.Assignment, error) {
	var out models.Assignment
	err := s.c.write(func(txn *memdb.Txn) error {
		if a.Active() {
			dup, err := hasActive(txn, a.MissionID, a.UserID, uuid.Nil)
			if err != nil {
				return err
			}
			if dup {
				return fmt.Errorf("insert assignment: %w", repository.ErrConflict)
			}
		}
		out = a
		out.ID = uuid.New()
		out.CreatedAt = time.Now().UTC()
		out.UpdatedAt = out.CreatedAt
		return insert(txn, tableAssignments, newAssignmentRow(out))
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *assignmentStore) GetByID(ctx context.Context, tenantID, assignmentID uuid.UUID) (*models.Assignment, error) {
	var out *models.Assignment
	err := s.c.read(func(txn *memdb.Txn) error {
		row, err := first[assignmentRow](txn, tableAssignments, idIndex, assignmentID.String())
		if err != nil || row == nil || row.Assignment.TenantID != tenantID {
			return err
		}
		a := row.Assignment
		out = &a
		return nil
	})
	return out, err
}

func (s *assignmentStore) ListByMission(ctx context.Context, tenantID, missionID uuid.UUID) ([]models.Assignment, error) {
	assignments := make([]models.Assignment, 0)
	err := s.c.read(func(txn *memdb.Txn) error {
		rows, err := all[assignmentRow](txn, tableAssignments, "mission", missionID.String())
		if err != nil {
			return err
		}
		for _, r := range rows {
			if r.Assignment.TenantID == tenantID {
				assignments = append(assignments, r.Assignment)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(assignments, func(a, b models.Assignment) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return assignments, nil
}

func (s *assignmentStore) CountActive(ctx context.Context, missionID uuid.UUID) (int, error) {
	var n int
	err := s.c.read(func(txn *memdb.Txn) error {
		rows, err := all[assignmentRow](txn, tableAssignments, "mission", missionID.String())
		if err != nil {
			return err
		}
		for _, r := range rows {
			if r.Assignment.Active() {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *assignmentStore) SetStatus(ctx context.Context, tenantID, assignmentID uuid.UUID, status string, at time.Time) (*models.Assignment, error) {
	var out *models.Assignment
	err := s.c.write(func(txn *memdb.Txn) error {
		row, err := first[assignmentRow](txn, tableAssignments, idIndex, assignmentID.String())
		if err != nil || row == nil || row.Assignment.TenantID != tenantID {
			return err
		}
		a := row.Assignment
		if !a.Active() && status != models.AssignmentCancelled {
			dup, err := hasActive(txn, a.MissionID, a.UserID, a.ID)
			if err != nil {
				return err
			}
			if dup {
				return fmt.Errorf("set assignment status: %w", repository.ErrConflict)
			}
		}
		a.Status = status
		a.UpdatedAt = at
		out = &a
		return insert(txn, tableAssignments, newAssignmentRow(a))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
