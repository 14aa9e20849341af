// Package volunteers is the optional volunteers module: the volunteer
// roster, missions (shifts and tasks) and who is assigned to what.
package volunteers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lalith-99/festivo/internal/apperr"
	"github.com/lalith-99/festivo/internal/clearance"
	"github.com/lalith-99/festivo/internal/membership"
	"github.com/lalith-99/festivo/internal/models"
	"github.com/lalith-99/festivo/internal/modules"
	"github.com/lalith-99/festivo/internal/repository"
	"go.uber.org/zap"
)

// Guard minimums.
const (
	ViewLevel       = clearance.Red
	CoordinateLevel = clearance.Yellow
	DeleteLevel     = clearance.Green
)

const maxTitleLength = 200

type Service struct {
	store     repository.Store
	authority *membership.Authority
	modules   *modules.Manager
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store repository.Store, authority *membership.Authority, mods *modules.Manager, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		authority: authority,
		modules:   mods,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// guard resolves the caller, checks clearance and permission, then
// checks the module is on for the tenant. perm may be empty.
func (s *Service) guard(ctx context.Context, actorID, tenantID uuid.UUID, minimum clearance.Level, perm membership.Permission) (*membership.Actor, error) {
	actor, err := s.authority.RequireMember(ctx, actorID, tenantID, minimum)
	if err != nil {
		return nil, err
	}
	if perm != "" && !actor.Can(perm) {
		return nil, apperr.ErrPermissionDenied
	}
	if err := s.modules.RequireActive(ctx, tenantID, modules.Volunteers); err != nil {
		return nil, err
	}
	return actor, nil
}

// MissionParams are the writable mission fields. Capacity 0 means
// unlimited. An empty Status means open.
type MissionParams struct {
	Title       string
	Description string
	Location    string
	StartsAt    time.Time
	EndsAt      time.Time
	Capacity    int
	Status      string
}

func (p *MissionParams) normalize() error {
	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(p.Description)
	p.Location = strings.TrimSpace(p.Location)
	if p.Status == "" {
		p.Status = models.MissionOpen
	}

	switch {
	case p.Title == "":
		return apperr.Validationf("title is required")
	case utf8.RuneCountInString(p.Title) > maxTitleLength:
		return apperr.Validationf("title exceeds %d characters", maxTitleLength)
	case p.StartsAt.IsZero() || p.EndsAt.IsZero():
		return apperr.Validationf("starts_at and ends_at are required")
	case !p.EndsAt.After(p.StartsAt):
		return apperr.Validationf("ends_at must be after starts_at")
	case p.Capacity < 0:
		return apperr.Validationf("capacity cannot be negative")
	}
	switch p.Status {
	case models.MissionOpen, models.MissionClosed, models.MissionCancelled:
	default:
		return apperr.Validationf("unknown mission status %q", p.Status)
	}
	return nil
}

func (s *Service) CreateMission(ctx context.Context, actorID, tenantID uuid.UUID, p MissionParams) (*models.Mission, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}
	actor, err := s.guard(ctx, actorID, tenantID, CoordinateLevel, membership.PermManageMissions)
	if err != nil {
		return nil, err
	}

	m, err := s.store.Repos().Missions.Create(ctx, models.Mission{
		TenantID:    tenantID,
		Title:       p.Title,
		Description: p.Description,
		Location:    p.Location,
		StartsAt:    p.StartsAt,
		EndsAt:      p.EndsAt,
		Capacity:    p.Capacity,
		Status:      p.Status,
		CreatedBy:   actor.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("create mission: %w", err)
	}
	s.logger.Info("mission created",
		zap.String("tenant_id", tenantID.String()),
		zap.String("mission_id", m.ID.String()),
	)
	return m, nil
}

// UpdateMission replaces a mission's writable fields. Capacity cannot
// drop below the number of active assignments.
func (s *Service) UpdateMission(ctx context.Context, actorID, tenantID, missionID uuid.UUID, p MissionParams) (*models.Mission, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}
	if _, err := s.guard(ctx, actorID, tenantID, CoordinateLevel, membership.PermManageMissions); err != nil {
		return nil, err
	}

	var updated *models.Mission
	err := s.store.InTx(ctx, func(r repository.Repositories) error {
		m, err := r.Missions.GetForUpdate(ctx, tenantID, missionID)
		if err != nil {
			return fmt.Errorf("lock mission: %w", err)
		}
		if m == nil {
			return apperr.NotFoundf("mission not found")
		}
		if p.Capacity > 0 {
			active, err := r.Assignments.CountActive(ctx, m.ID)
			if err != nil {
				return fmt.Errorf("count assignments: %w", err)
			}
			if active > p.Capacity {
				return apperr.Conflictf("mission already has %d active assignments", active)
			}
		}

		m.Title = p.Title
		m.Description = p.Description
		m.Location = p.Location
		m.StartsAt = p.StartsAt
		m.EndsAt = p.EndsAt
		m.Capacity = p.Capacity
		m.Status = p.Status
		updated, err = r.Missions.Update(ctx, *m)
		if err != nil {
			return fmt.Errorf("update mission: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteMission removes a mission with no active assignments. Cancel the
// assignments first; cancelled ones are deleted with the mission.
func (s *Service) DeleteMission(ctx context.Context, actorID, tenantID, missionID uuid.UUID) error {
	if _, err := s.guard(ctx, actorID, tenantID, DeleteLevel, membership.PermManageMissions); err != nil {
		return err
	}
	// Lock the mission first, the way Assign does, so an assignment
	// committed while we wait is visible to the count below.
	err := s.store.InTx(ctx, func(r repository.Repositories) error {
		m, err := r.Missions.GetForUpdate(ctx, tenantID, missionID)
		if err != nil {
			return fmt.Errorf("lock mission: %w", err)
		}
		if m == nil {
			return apperr.NotFoundf("mission not found")
		}
		active, err := r.Assignments.CountActive(ctx, missionID)
		if err != nil {
			return fmt.Errorf("count assignments: %w", err)
		}
		if active > 0 {
			return apperr.Conflictf("mission has active assignments")
		}
		deleted, err := r.Missions.DeleteIfUnassigned(ctx, tenantID, missionID)
		if err != nil {
			return fmt.Errorf("delete mission: %w", err)
		}
		if !deleted {
			return apperr.Conflictf("mission has active assignments")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("mission deleted",
		zap.String("tenant_id", tenantID.String()),
		zap.String("mission_id", missionID.String()),
	)
	return nil
}

func (s *Service) ListMissions(ctx context.Context, actorID, tenantID uuid.UUID) ([]models.Mission, error) {
	if _, err := s.guard(ctx, actorID, tenantID, ViewLevel, ""); err != nil {
		return nil, err
	}
	missions, err := s.store.Repos().Missions.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	return missions, nil
}

func (s *Service) GetMission(ctx context.Context, actorID, tenantID, missionID uuid.UUID) (*models.Mission, error) {
	if _, err := s.guard(ctx, actorID, tenantID, ViewLevel, ""); err != nil {
		return nil, err
	}
	m, err := s.store.Repos().Missions.GetByID(ctx, tenantID, missionID)
	if err != nil {
		return nil, fmt.Errorf("get mission: %w", err)
	}
	if m == nil {
		return nil, apperr.NotFoundf("mission not found")
	}
	return m, nil
}

// Apply registers the caller as a pending volunteer. Applying again
// returns the existing record unchanged.
func (s *Service) Apply(ctx context.Context, actorID, tenantID uuid.UUID) (*models.Volunteer, error) {
	if _, err := s.guard(ctx, actorID, tenantID, ViewLevel, membership.PermApplyVolunteer); err != nil {
		return nil, err
	}
	v, err := s.store.Repos().Volunteers.CreatePending(ctx, tenantID, actorID, s.now())
	if err != nil {
		return nil, fmt.Errorf("register volunteer: %w", err)
	}
	return v, nil
}

// ListVolunteers filters by status unless status is empty.
func (s *Service) ListVolunteers(ctx context.Context, actorID, tenantID uuid.UUID, status string) ([]models.Volunteer, error) {
	switch status {
	case "", models.VolunteerPending, models.VolunteerApproved, models.VolunteerRejected:
	default:
		return nil, apperr.Validationf("unknown volunteer status %q", status)
	}
	if _, err := s.guard(ctx, actorID, tenantID, CoordinateLevel, membership.PermReviewVolunteers); err != nil {
		return nil, err
	}
	vs, err := s.store.Repos().Volunteers.ListByTenant(ctx, tenantID, status)
	if err != nil {
		return nil, fmt.Errorf("list volunteers: %w", err)
	}
	return vs, nil
}

// ReviewVolunteer approves or rejects a volunteer. A decision can be
// revised later.
func (s *Service) ReviewVolunteer(ctx context.Context, actorID, tenantID, userID uuid.UUID, approve bool) (*models.Volunteer, error) {
	actor, err := s.guard(ctx, actorID, tenantID, CoordinateLevel, membership.PermReviewVolunteers)
	if err != nil {
		return nil, err
	}
	status := models.VolunteerRejected
	if approve {
		status = models.VolunteerApproved
	}
	v, err := s.store.Repos().Volunteers.SetStatus(ctx, tenantID, userID, status, actor.UserID, s.now())
	if err != nil {
		return nil, fmt.Errorf("review volunteer: %w", err)
	}
	if v == nil {
		return nil, apperr.NotFoundf("volunteer not found")
	}
	s.logger.Info("volunteer reviewed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("user_id", userID.String()),
		zap.String("status", status),
	)
	return v, nil
}

// Assign puts an approved volunteer on an open mission. The mission row
// is locked for the check-then-insert so concurrent assigns cannot
// overfill it.
func (s *Service) Assign(ctx context.Context, actorID, tenantID, missionID, userID uuid.UUID) (*models.Assignment, error) {
	actor, err := s.guard(ctx, actorID, tenantID, CoordinateLevel, membership.PermManageMissions)
	if err != nil {
		return nil, err
	}

	var created *models.Assignment
	err = s.store.InTx(ctx, func(r repository.Repositories) error {
		m, err := r.Missions.GetForUpdate(ctx, tenantID, missionID)
		if err != nil {
			return fmt.Errorf("lock mission: %w", err)
		}
		if m == nil {
			return apperr.NotFoundf("mission not found")
		}
		if err := checkAssignable(ctx, r, m, userID); err != nil {
			return err
		}

		created, err = r.Assignments.Create(ctx, models.Assignment{
			TenantID:   tenantID,
			MissionID:  m.ID,
			UserID:     userID,
			Status:     models.AssignmentPending,
			AssignedBy: actor.UserID,
		})
		if errors.Is(err, repository.ErrConflict) {
			return apperr.Conflictf("volunteer is already assigned to this mission")
		}
		if err != nil {
			return fmt.Errorf("create assignment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// checkAssignable guards every assignment that takes a seat. The mission
// must already be locked.
func checkAssignable(ctx context.Context, r repository.Repositories, m *models.Mission, userID uuid.UUID) error {
	if m.Status != models.MissionOpen {
		return apperr.Conflictf("mission is %s", m.Status)
	}
	v, err := r.Volunteers.Get(ctx, m.TenantID, userID)
	if err != nil {
		return fmt.Errorf("get volunteer: %w", err)
	}
	if v == nil || v.Status != models.VolunteerApproved {
		return apperr.Validationf("user is not an approved volunteer")
	}
	return checkCapacity(ctx, r, m)
}

func checkCapacity(ctx context.Context, r repository.Repositories, m *models.Mission) error {
	if m.Capacity == 0 {
		return nil
	}
	active, err := r.Assignments.CountActive(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("count assignments: %w", err)
	}
	if active >= m.Capacity {
		return apperr.Conflictf("mission is full")
	}
	return nil
}

func validAssignmentStatus(status string) bool {
	switch status {
	case models.AssignmentPending, models.AssignmentConfirmed, models.AssignmentCompleted, models.AssignmentCancelled:
		return true
	}
	return false
}

// UpdateAssignmentStatus moves an assignment through its lifecycle.
// Reviving a cancelled assignment is subject to the same capacity and
// duplicate checks as a new one.
func (s *Service) UpdateAssignmentStatus(ctx context.Context, actorID, tenantID, assignmentID uuid.UUID, status string) (*models.Assignment, error) {
	if !validAssignmentStatus(status) {
		return nil, apperr.Validationf("unknown assignment status %q", status)
	}
	if _, err := s.guard(ctx, actorID, tenantID, CoordinateLevel, membership.PermManageMissions); err != nil {
		return nil, err
	}

	var updated *models.Assignment
	err := s.store.InTx(ctx, func(r repository.Repositories) error {
		a, err := r.Assignments.GetByID(ctx, tenantID, assignmentID)
		if err != nil {
			return fmt.Errorf("get assignment: %w", err)
		}
		if a == nil {
			return apperr.NotFoundf("assignment not found")
		}
		if !a.Active() && status != models.AssignmentCancelled {
			m, err := r.Missions.GetForUpdate(ctx, tenantID, a.MissionID)
			if err != nil {
				return fmt.Errorf("lock mission: %w", err)
			}
			if m == nil {
				return apperr.NotFoundf("mission not found")
			}
			// Reviving a cancelled assignment is a new assignment.
			if err := checkAssignable(ctx, r, m, a.UserID); err != nil {
				return err
			}
		}

		updated, err = r.Assignments.SetStatus(ctx, tenantID, assignmentID, status, s.now())
		if errors.Is(err, repository.ErrConflict) {
			return apperr.Conflictf("volunteer is already assigned to this mission")
		}
		if err != nil {
			return fmt.Errorf("update assignment: %w", err)
		}
		if updated == nil {
			return apperr.NotFoundf("assignment not found")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListAssignments returns a mission's assignments. Callers below
// coordinator clearance only see their own.
func (s *Service) ListAssignments(ctx context.Context, actorID, tenantID, missionID uuid.UUID) ([]models.Assignment, error) {
	actor, err := s.guard(ctx, actorID, tenantID, ViewLevel, "")
	if err != nil {
		return nil, err
	}
	r := s.store.Repos()
	m, err := r.Missions.GetByID(ctx, tenantID, missionID)
	if err != nil {
		return nil, fmt.Errorf("get mission: %w", err)
	}
	if m == nil {
		return nil, apperr.NotFoundf("mission not found")
	}
	all, err := r.Assignments.ListByMission(ctx, tenantID, missionID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	if clearance.HasAccess(actor.Level, CoordinateLevel) {
		return all, nil
	}
	own := make([]models.Assignment, 0)
	for _, a := range all {
		if a.UserID == actor.UserID {
			own = append(own, a)
		}
	}
	return own, nil
}
