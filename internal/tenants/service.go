// Package tenants creates events and answers which events a user is in.
package tenants

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lalith-99/festivo/internal/apperr"
	"github.com/lalith-99/festivo/internal/clearance"
	"github.com/lalith-99/festivo/internal/membership"
	"github.com/lalith-99/festivo/internal/models"
	"github.com/lalith-99/festivo/internal/repository"
	"go.uber.org/zap"
)

const (
	minNameLength = 2
	maxNameLength = 100
	maxSlugLength = 48

	// DefaultChannel is created with every tenant.
	DefaultChannel = "general"

	// OwnerClearance is the level a tenant's creator starts at.
	OwnerClearance = clearance.Blue

	maxSlugAttempts = 20
	maxCreateTries  = 3
)

type Service struct {
	store     repository.Store
	authority *membership.Authority
	logger    *zap.Logger
}

func NewService(store repository.Store, authority *membership.Authority, logger *zap.Logger) *Service {
	return &Service{store: store, authority: authority, logger: logger}
}

// Slugify lower-cases name and joins its letter and digit runs with '-'.
// Non-ASCII letters are dropped. An empty result becomes "event".
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			if b.Len() >= maxSlugLength {
				return b.String()
			}
		default:
			dash = true
		}
	}
	if b.Len() == 0 {
		return "event"
	}
	return b.String()
}

// freeSlug returns base, or base-2, base-3 ... whichever is not taken yet.
func freeSlug(ctx context.Context, r repository.Repositories, base string) (string, error) {
	candidate := base
	for i := 2; i < maxSlugAttempts+2; i++ {
		existing, err := r.Tenants.GetBySlug(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if existing == nil {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(i)
	}
	return "", apperr.Conflictf("too many events are named like %q", base)
}

// Create makes a tenant with the creator as its BLUE owner and a public
// general channel the creator is already in.
func (s *Service) Create(ctx context.Context, creatorID uuid.UUID, name string) (*models.Tenant, *models.Membership, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < minNameLength || n > maxNameLength {
		return nil, nil, apperr.Validationf("event name must be %d-%d characters", minNameLength, maxNameLength)
	}

	creator, err := s.store.Repos().Users.GetByID(ctx, creatorID)
	if err != nil {
		return nil, nil, fmt.Errorf("get user: %w", err)
	}
	if creator == nil {
		return nil, nil, apperr.NotFoundf("user not found")
	}

	base := Slugify(name)
	for try := 1; ; try++ {
		tenant, owner, err := s.create(ctx, creator.ID, name, base)
		if errors.Is(err, repository.ErrConflict) && try < maxCreateTries {
			// Another request took the slug between the check and the insert.
			continue
		}
		if errors.Is(err, repository.ErrConflict) {
			return nil, nil, apperr.Conflictf("could not reserve a unique slug for %q", name)
		}
		if err != nil {
			return nil, nil, err
		}
		s.logger.Info("tenant created",
			zap.String("tenant_id", tenant.ID.String()),
			zap.String("slug", tenant.Slug),
			zap.String("creator_id", creator.ID.String()),
		)
		return tenant, owner, nil
	}
}

func (s *Service) create(ctx context.Context, creatorID uuid.UUID, name, base string) (*models.Tenant, *models.Membership, error) {
	var tenant *models.Tenant
	var owner *models.Membership
	err := s.store.InTx(ctx, func(r repository.Repositories) error {
		slug, err := freeSlug(ctx, r, base)
		if err != nil {
			return err
		}
		tenant, err = r.Tenants.Create(ctx, name, slug, creatorID)
		if err != nil {
			return err
		}

		owner, err = r.Memberships.Create(ctx, models.Membership{
			TenantID:       tenant.ID,
			UserID:         creatorID,
			Role:           string(membership.RoleOwner),
			ClearanceLevel: OwnerClearance,
		})
		if err != nil {
			return fmt.Errorf("create owner membership: %w", err)
		}

		ch, err := r.Channels.Create(ctx, models.Channel{
			TenantID:     tenant.ID,
			Name:         DefaultChannel,
			MinClearance: clearance.Infrared,
			CreatedBy:    &creatorID,
		})
		if err != nil {
			return fmt.Errorf("create default channel: %w", err)
		}
		if err := r.ChannelMembers.AddMember(ctx, ch.ID, creatorID, "owner"); err != nil {
			return fmt.Errorf("join default channel: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return tenant, owner, nil
}

// Get returns a tenant the caller belongs to.
func (s *Service) Get(ctx context.Context, actorID, tenantID uuid.UUID) (*models.Tenant, error) {
	if _, err := s.authority.RequireMember(ctx, actorID, tenantID, clearance.Infrared); err != nil {
		return nil, err
	}
	tenant, err := s.store.Repos().Tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	if tenant == nil {
		return nil, apperr.NotFoundf("event not found")
	}
	return tenant, nil
}

// ListForUser returns the tenants the user holds a membership in.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Tenant, error) {
	return s.authority.TenantsForUser(ctx, userID)
}
