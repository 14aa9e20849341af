package membership

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/festivo/internal/apperr"
	"github.com/lalith-99/festivo/internal/clearance"
	"github.com/lalith-99/festivo/internal/models"
	"github.com/lalith-99/festivo/internal/modules"
	"github.com/lalith-99/festivo/internal/repository"
	"go.uber.org/zap"
)

// Actor is a user resolved against one tenant.
type Actor struct {
	UserID     uuid.UUID
	TenantID   uuid.UUID
	Level      clearance.Level
	SuperAdmin bool
	// Membership is nil for super-admins who are not members.
	Membership *models.Membership
}

func (a *Actor) Role() Role {
	if a.Membership == nil {
		return RoleGuest
	}
	return ParseRole(a.Membership.Role)
}

// Authority answers "who may see and do what" inside a tenant.
type Authority struct {
	store   repository.Store
	modules *modules.Manager
	logger  *zap.Logger
}

func NewAuthority(store repository.Store, mods *modules.Manager, logger *zap.Logger) *Authority {
	return &Authority{store: store, modules: mods, logger: logger}
}

// Resolve reads the caller's user row and membership.
func (a *Authority) Resolve(ctx context.Context, userID, tenantID uuid.UUID) (*Actor, error) {
	return resolve(ctx, a.store.Repos(), userID, tenantID)
}

func resolve(ctx context.Context, r repository.Repositories, userID, tenantID uuid.UUID) (*Actor, error) {
	actor := &Actor{UserID: userID, TenantID: tenantID, Level: clearance.Infrared}

	user, err := r.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	m, err := r.Memberships.Get(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	actor.Membership = m

	// Super-admins bypass tenant state entirely, membership or not.
	if user.IsSuperAdmin() {
		actor.SuperAdmin = true
		actor.Level = clearance.Ultraviolet
		return actor, nil
	}
	if m != nil {
		actor.Level = m.ClearanceLevel
	}
	return actor, nil
}

// EffectiveClearance is ULTRAVIOLET for super-admins, the stored level
// for members and INFRARED for everyone else.
func (a *Authority) EffectiveClearance(ctx context.Context, userID, tenantID uuid.UUID) (clearance.Level, error) {
	actor, err := a.Resolve(ctx, userID, tenantID)
	if err != nil {
		return clearance.Infrared, err
	}
	return actor.Level, nil
}

// AccessibleModules returns core modules then the tenant's active
// optional modules, keeping only those level can see.
func (a *Authority) AccessibleModules(ctx context.Context, tenantID uuid.UUID, level clearance.Level) ([]modules.Definition, error) {
	active, err := a.modules.ListActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	out := make([]modules.Definition, 0)
	for _, def := range append(modules.Core(), active...) {
		if clearance.HasAccess(level, def.RequiredClearance) {
			out = append(out, def)
		}
	}
	return out, nil
}

// CheckPermission reports whether the user's role in the tenant grants p.
func (a *Authority) CheckPermission(ctx context.Context, userID, tenantID uuid.UUID, p Permission) (bool, error) {
	actor, err := a.Resolve(ctx, userID, tenantID)
	if err != nil {
		return false, err
	}
	return actor.Can(p), nil
}

func (a *Actor) Can(p Permission) bool {
	if a.SuperAdmin {
		return true
	}
	if a.Membership == nil {
		return false
	}
	return a.Role().Has(p)
}

// RequireMember is the guard every tenant-scoped operation starts with.
// Non-members get ErrNotMember; members below minimum get
// ErrInsufficientClearance.
func (a *Authority) RequireMember(ctx context.Context, userID, tenantID uuid.UUID, minimum clearance.Level) (*Actor, error) {
	actor, err := a.Resolve(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	if err := actor.require(minimum); err != nil {
		return nil, err
	}
	return actor, nil
}

func (a *Actor) require(minimum clearance.Level) error {
	if !a.SuperAdmin && a.Membership == nil {
		return apperr.ErrNotMember
	}
	if !clearance.HasAccess(a.Level, minimum) {
		return apperr.ErrInsufficientClearance
	}
	return nil
}

// Require returns the caller's level if it meets minimum.
func (a *Authority) Require(ctx context.Context, userID, tenantID uuid.UUID, minimum clearance.Level) (clearance.Level, error) {
	actor, err := a.RequireMember(ctx, userID, tenantID, minimum)
	if err != nil {
		return clearance.Infrared, err
	}
	return actor.Level, nil
}

// RequirePermission combines the membership guard with a role check.
func (a *Authority) RequirePermission(ctx context.Context, userID, tenantID uuid.UUID, minimum clearance.Level, p Permission) (*Actor, error) {
	actor, err := a.RequireMember(ctx, userID, tenantID, minimum)
	if err != nil {
		return nil, err
	}
	if !actor.Can(p) {
		return nil, apperr.ErrPermissionDenied
	}
	return actor, nil
}

// SetClearance writes a member's level. It validates the level only;
// GrantClearance is the caller-checked entry point.
func (a *Authority) SetClearance(ctx context.Context, memberID uuid.UUID, level int) (*models.Membership, error) {
	if !clearance.IsValid(level) {
		return nil, apperr.ErrInvalidClearance
	}
	m, err := a.store.Repos().Memberships.SetClearance(ctx, memberID, clearance.Level(level))
	if err != nil {
		return nil, fmt.Errorf("set clearance: %w", err)
	}
	if m == nil {
		return nil, apperr.NotFoundf("member not found")
	}
	return m, nil
}

// GrantClearance changes another member's level on behalf of granterID.
//
// The granter needs BLUE. Unless they are a super-admin they can only
// hand out levels below their own, and only to members who sit below
// them, so nobody can raise a peer or themselves.
func (a *Authority) GrantClearance(ctx context.Context, granterID, tenantID, memberID uuid.UUID, level int) (*models.Membership, error) {
	if !clearance.IsValid(level) {
		return nil, apperr.ErrInvalidClearance
	}
	granter, err := a.RequireMember(ctx, granterID, tenantID, clearance.Blue)
	if err != nil {
		return nil, err
	}

	target, err := a.store.Repos().Memberships.GetByID(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	if target == nil || target.TenantID != tenantID {
		return nil, apperr.NotFoundf("member not found")
	}

	if !granter.SuperAdmin {
		if clearance.Level(level) >= granter.Level {
			return nil, apperr.Wrap(apperr.ErrInsufficientClearance,
				fmt.Errorf("cannot grant %s with %s", clearance.Level(level), granter.Level))
		}
		if target.ClearanceLevel >= granter.Level {
			return nil, apperr.Wrap(apperr.ErrInsufficientClearance,
				errors.New("cannot modify a member at or above your own level"))
		}
	}

	m, err := a.SetClearance(ctx, memberID, level)
	if err != nil {
		return nil, err
	}
	a.logger.Info("clearance granted",
		zap.String("tenant_id", tenantID.String()),
		zap.String("member_id", memberID.String()),
		zap.String("granted_by", granterID.String()),
		zap.Stringer("level", clearance.Level(level)),
	)
	return m, nil
}

// Member is a membership with the profile fields a roster shows.
type Member struct {
	models.Membership
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// ListMembers returns the tenant roster. Seeing it takes ORANGE, the
// level of the members module.
func (a *Authority) ListMembers(ctx context.Context, actorID, tenantID uuid.UUID) ([]Member, error) {
	if _, err := a.RequireMember(ctx, actorID, tenantID, membersModuleClearance()); err != nil {
		return nil, err
	}

	r := a.store.Repos()
	memberships, err := r.Memberships.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	out := make([]Member, 0, len(memberships))
	for _, m := range memberships {
		entry := Member{Membership: m}
		u, err := r.Users.GetByID(ctx, m.UserID)
		if err != nil {
			return nil, fmt.Errorf("get user: %w", err)
		}
		if u != nil {
			entry.Handle = u.Handle
			entry.DisplayName = u.DisplayName
			entry.AvatarURL = u.AvatarURL
		}
		out = append(out, entry)
	}
	return out, nil
}

func membersModuleClearance() clearance.Level {
	if def, ok := modules.Lookup(modules.Members); ok {
		return def.RequiredClearance
	}
	return clearance.Orange
}

// RemoveMember drops a member and their channel memberships together.
func (a *Authority) RemoveMember(ctx context.Context, actorID, tenantID, memberID uuid.UUID) error {
	actor, err := a.RequireMember(ctx, actorID, tenantID, clearance.Blue)
	if err != nil {
		return err
	}

	err = a.store.InTx(ctx, func(r repository.Repositories) error {
		target, err := r.Memberships.GetByID(ctx, memberID)
		if err != nil {
			return fmt.Errorf("get member: %w", err)
		}
		if target == nil || target.TenantID != tenantID {
			return apperr.NotFoundf("member not found")
		}
		if target.UserID == actorID {
			return apperr.Validationf("you cannot remove yourself")
		}
		if !actor.SuperAdmin && target.ClearanceLevel >= actor.Level {
			return apperr.ErrInsufficientClearance
		}

		if _, err := r.Memberships.Delete(ctx, tenantID, memberID); err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
		if err := r.ChannelMembers.RemoveFromTenant(ctx, tenantID, target.UserID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	a.logger.Info("member removed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("member_id", memberID.String()),
		zap.String("removed_by", actorID.String()),
	)
	return nil
}

// TenantsForUser lists every tenant the user belongs to.
func (a *Authority) TenantsForUser(ctx context.Context, userID uuid.UUID) ([]models.Tenant, error) {
	tenants, err := a.store.Repos().Tenants.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}
