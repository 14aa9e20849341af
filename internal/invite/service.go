package invite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/festivo/internal/apperr"
	"github.com/lalith-99/festivo/internal/clearance"
	"github.com/lalith-99/festivo/internal/membership"
	"github.com/lalith-99/festivo/internal/metrics"
	"github.com/lalith-99/festivo/internal/models"
	"github.com/lalith-99/festivo/internal/modules"
	"github.com/lalith-99/festivo/internal/realtime"
	"github.com/lalith-99/festivo/internal/repository"
	"go.uber.org/zap"
)

// maxGenerateAttempts bounds the collision retry loop. At a billion
// codes a collision is rare; ten in a row means something else is wrong.
const maxGenerateAttempts = 10

// Config carries the deployment knobs. Zero limits mean unlimited.
type Config struct {
	PublicBaseURL       string
	MaxCodesPerTenant   int
	MaxMembersPerTenant int
}

type Service struct {
	store     repository.Store
	authority *membership.Authority
	cfg       Config
	metrics   *metrics.Metrics
	logger    *zap.Logger
	publisher realtime.Publisher

	now    func() time.Time
	random io.Reader
}

type Option func(*Service)

// WithClock replaces time.Now, for expiry tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPublisher announces redemptions to connected clients.
func WithPublisher(p realtime.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithRandom replaces crypto/rand as the code source, for collision tests.
func WithRandom(r io.Reader) Option {
	return func(s *Service) { s.random = r }
}

func NewService(store repository.Store, authority *membership.Authority, cfg Config, m *metrics.Metrics, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		authority: authority,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
		publisher: realtime.NopPublisher{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) generate() (string, error) {
	if s.random != nil {
		return generateFrom(s.random)
	}
	return Generate()
}

type CreateParams struct {
	ActorID   uuid.UUID
	TenantID  uuid.UUID
	Role      string
	MaxUses   int
	ModuleID  *string
	ExpiresAt *time.Time
}

func (s *Service) validateParams(p *CreateParams, now time.Time) error {
	if p.Role == "" {
		p.Role = string(membership.RoleMember)
	}
	if !membership.Known(p.Role) || p.Role == string(membership.RoleOwner) {
		return apperr.Validationf("role %q cannot be granted by invite", p.Role)
	}
	if p.MaxUses < 1 {
		return apperr.Validationf("max_uses must be at least 1")
	}
	if p.ModuleID != nil {
		if _, ok := modules.LookupOptional(*p.ModuleID); !ok {
			return apperr.Validationf("unknown module %q", *p.ModuleID)
		}
	}
	if p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
		return apperr.Validationf("expires_at must be in the future")
	}
	return nil
}

// Create mints a new code for a tenant.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.InviteCode, error) {
	now := s.now()
	if err := s.validateParams(&p, now); err != nil {
		return nil, err
	}

	actor, err := s.authority.RequirePermission(ctx, p.ActorID, p.TenantID, clearance.Blue, membership.PermCreateInvites)
	if err != nil {
		return nil, err
	}
	// Nobody hands out a starting clearance above their own.
	if !actor.SuperAdmin && membership.Role(p.Role).DefaultClearance() > actor.Level {
		return nil, apperr.ErrInsufficientClearance
	}

	r := s.store.Repos()
	if s.cfg.MaxCodesPerTenant > 0 {
		n, err := r.Invites.CountUsable(ctx, p.TenantID, now)
		if err != nil {
			return nil, fmt.Errorf("count invite codes: %w", err)
		}
		if n >= s.cfg.MaxCodesPerTenant {
			return nil, apperr.Conflictf("tenant already has %d usable invite codes", n)
		}
	}

	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		code, err := s.generate()
		if err != nil {
			return nil, err
		}

		// The existence check keeps the common collision off the error
		// path; the unique key still catches a concurrent insert.
		existing, err := r.Invites.GetByCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("check invite code: %w", err)
		}
		if existing != nil {
			continue
		}

		created, err := r.Invites.Create(ctx, models.InviteCode{
			Code:      code,
			TenantID:  p.TenantID,
			ModuleID:  p.ModuleID,
			Role:      p.Role,
			MaxUses:   p.MaxUses,
			ExpiresAt: p.ExpiresAt,
			CreatedBy: p.ActorID,
		})
		if errors.Is(err, repository.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create invite code: %w", err)
		}

		s.metrics.InviteCreated()
		s.logger.Info("invite code created",
			zap.String("tenant_id", p.TenantID.String()),
			zap.String("role", p.Role),
			zap.Int("max_uses", p.MaxUses),
			zap.String("created_by", p.ActorID.String()),
		)
		return created, nil
	}
	return nil, fmt.Errorf("create invite code: no free code after %d attempts", maxGenerateAttempts)
}

// Validation is the public preview of a code.
type Validation struct {
	Valid  bool               `json:"valid"`
	Reason string             `json:"reason,omitempty"`
	Code   *models.InviteCode `json:"invite,omitempty"`
	Tenant *models.Tenant     `json:"tenant,omitempty"`
}

// Reasons a code is not valid.
const (
	ReasonNotFound  = "not_found"
	ReasonExhausted = "exhausted"
	ReasonExpired   = "expired"
)

// Validate checks a code without consuming it. The answer can be stale
// by the time the user redeems; Redeem re-checks atomically.
func (s *Service) Validate(ctx context.Context, code string) (*Validation, error) {
	normalized := Normalize(code)
	if !WellFormed(normalized) {
		return &Validation{Reason: ReasonNotFound}, nil
	}

	r := s.store.Repos()
	ic, err := r.Invites.GetByCode(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("get invite code: %w", err)
	}
	if ic == nil {
		return &Validation{Reason: ReasonNotFound}, nil
	}
	now := s.now()
	if ic.ExpiresAt != nil && now.After(*ic.ExpiresAt) {
		return &Validation{Reason: ReasonExpired}, nil
	}
	if ic.Uses >= ic.MaxUses {
		return &Validation{Reason: ReasonExhausted}, nil
	}

	tenant, err := r.Tenants.GetByID(ctx, ic.TenantID)
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &Validation{Valid: true, Code: ic, Tenant: tenant}, nil
}

// Redeem admits userID to the code's tenant.
//
// Everything runs in one transaction:
//  1. consume one use with a conditional increment,
//  2. insert the membership at the role's default clearance,
//  3. register a pending volunteer for volunteers-module codes,
//  4. join the public channels the new clearance can see.
//
// Any failure rolls back step 1 too, so a rejected redemption never
// burns a use.
func (s *Service) Redeem(ctx context.Context, code string, userID uuid.UUID) (*models.Membership, error) {
	normalized := Normalize(code)
	if !WellFormed(normalized) {
		s.metrics.InviteRedeemed(metrics.RedeemInvalid)
		return nil, apperr.ErrInvalidOrExpiredCode
	}
	now := s.now()

	var joined *models.Membership
	var tenantID uuid.UUID
	err := s.store.InTx(ctx, func(r repository.Repositories) error {
		ic, err := r.Invites.ConsumeUse(ctx, normalized, now)
		if err != nil {
			return err
		}
		if ic == nil {
			return apperr.ErrInvalidOrExpiredCode
		}
		tenantID = ic.TenantID

		if s.cfg.MaxMembersPerTenant > 0 {
			// Concurrent redemptions into one tenant serialize on the
			// tenant row, so each count sees the others' inserts.
			if _, err := r.Tenants.GetForUpdate(ctx, ic.TenantID); err != nil {
				return fmt.Errorf("lock tenant: %w", err)
			}
			n, err := r.Memberships.CountByTenant(ctx, ic.TenantID)
			if err != nil {
				return fmt.Errorf("count members: %w", err)
			}
			if n >= s.cfg.MaxMembersPerTenant {
				return errMemberLimit
			}
		}

		role := membership.ParseRole(ic.Role)
		level := role.DefaultClearance()
		m, err := r.Memberships.Create(ctx, models.Membership{
			TenantID:       ic.TenantID,
			UserID:         userID,
			Role:           string(role),
			ClearanceLevel: level,
		})
		if errors.Is(err, repository.ErrConflict) {
			return apperr.ErrAlreadyMember
		}
		if err != nil {
			return fmt.Errorf("create membership: %w", err)
		}

		if ic.ModuleID != nil && *ic.ModuleID == modules.Volunteers {
			if _, err := r.Volunteers.CreatePending(ctx, ic.TenantID, userID, now); err != nil {
				return fmt.Errorf("register volunteer: %w", err)
			}
		}

		channels, err := r.Channels.ListByTenant(ctx, ic.TenantID)
		if err != nil {
			return fmt.Errorf("list channels: %w", err)
		}
		for _, ch := range channels {
			if ch.IsPrivate || !clearance.HasAccess(level, ch.MinClearance) {
				continue
			}
			if err := r.ChannelMembers.AddMember(ctx, ch.ID, userID, "member"); err != nil {
				return fmt.Errorf("join channel %s: %w", ch.Name, err)
			}
		}

		joined = m
		return nil
	})
	if err != nil {
		s.metrics.InviteRedeemed(redeemResult(err))
		return nil, err
	}

	s.metrics.InviteRedeemed(metrics.RedeemOK)
	if ev, err := realtime.NewEvent(realtime.EventMemberJoined, tenantID, clearance.Infrared, nil, joined); err == nil {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.logger.Warn("publish member joined failed", zap.Error(err))
		}
	}
	s.logger.Info("invite redeemed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("user_id", userID.String()),
		zap.String("role", joined.Role),
	)
	return joined, nil
}

var errMemberLimit = apperr.Conflictf("tenant has reached its member limit")

func redeemResult(err error) string {
	switch {
	case errors.Is(err, apperr.ErrInvalidOrExpiredCode):
		return metrics.RedeemInvalid
	case errors.Is(err, apperr.ErrAlreadyMember):
		return metrics.RedeemAlreadyMember
	case errors.Is(err, errMemberLimit):
		return metrics.RedeemLimit
	default:
		return metrics.RedeemError
	}
}

// List returns every code of the tenant, usable or not.
func (s *Service) List(ctx context.Context, actorID, tenantID uuid.UUID) ([]models.InviteCode, error) {
	if _, err := s.authority.RequirePermission(ctx, actorID, tenantID, clearance.Blue, membership.PermCreateInvites); err != nil {
		return nil, err
	}
	codes, err := s.store.Repos().Invites.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list invite codes: %w", err)
	}
	return codes, nil
}

// JoinURL is the shareable link for a code.
func (s *Service) JoinURL(code string) string {
	return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/join/" + code
}
