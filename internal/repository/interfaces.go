package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/festivo/internal/clearance"
	"github.com/lalith-99/festivo/internal/models"
)

// Conventions shared by every implementation:
//
//   - context.Context first on every method. Anything that touches the
//     datastore takes ctx so a cancelled request cancels its queries.
//   - Single-row lookups return (nil, nil) when the row does not exist.
//     "Not found" is a normal answer, not a failure; the service layer
//     decides whether it becomes a 404.
//   - List methods return an empty slice, never nil, so JSON encodes [].
//   - Unique-constraint violations come back as ErrConflict.
//   - Counter-like columns (invite uses, unread counts) are only ever
//     changed by a single atomic statement inside the store. No method
//     here hands a caller a value to increment and write back.

// ErrConflict reports a unique-constraint violation.
var ErrConflict = errors.New("unique constraint violation")

type TenantRepository interface {
	Create(ctx context.Context, name, slug string, createdBy uuid.UUID) (*models.Tenant, error)
	GetByID(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*models.Tenant, error)

	// GetForUpdate reads a tenant and locks its row until the enclosing
	// transaction ends. Writers that check a tenant-wide count before
	// inserting take it first, so they queue up instead of racing.
	GetForUpdate(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error)

	// ListForUser returns the tenants the user holds a membership in.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Tenant, error)
}

type UserRepository interface {
	// Create inserts a user. ExternalID and Handle are unique.
	Create(ctx context.Context, user models.User) (*models.User, error)
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.User, error)
	GetByHandle(ctx context.Context, handle string) (*models.User, error)

	// IDsByHandles resolves handles case-insensitively. The map is keyed
	// by lower-cased handle; unknown handles are absent.
	IDsByHandles(ctx context.Context, handles []string) (map[string]uuid.UUID, error)
}

type MembershipRepository interface {
	// Create inserts a membership. A second row for the same
	// (tenant, user) pair returns ErrConflict.
	Create(ctx context.Context, m models.Membership) (*models.Membership, error)
	Get(ctx context.Context, tenantID, userID uuid.UUID) (*models.Membership, error)
	GetByID(ctx context.Context, memberID uuid.UUID) (*models.Membership, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Membership, error)
	CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error)

	// SetClearance updates one member's clearance. Returns nil, nil if the
	// member does not exist.
	SetClearance(ctx context.Context, memberID uuid.UUID, level clearance.Level) (*models.Membership, error)

	// Delete removes a membership. Reports whether a row was removed.
	Delete(ctx context.Context, tenantID, memberID uuid.UUID) (bool, error)
}

type TenantModuleRepository interface {
	// Enable upserts (tenant, module) with enabled=true. wasEnabled is
	// the state before the call (false when the row did not exist).
	Enable(ctx context.Context, tenantID uuid.UUID, moduleID, billingStatus string) (state *models.TenantModule, wasEnabled bool, err error)

	// Disable upserts (tenant, module) with enabled=false.
	Disable(ctx context.Context, tenantID uuid.UUID, moduleID string) (*models.TenantModule, error)

	Get(ctx context.Context, tenantID uuid.UUID, moduleID string) (*models.TenantModule, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.TenantModule, error)
}

type InviteRepository interface {
	// Create inserts a code. A duplicate code returns ErrConflict.
	Create(ctx context.Context, code models.InviteCode) (*models.InviteCode, error)

	// GetByCode looks a code up exactly; callers normalize case first.
	GetByCode(ctx context.Context, code string) (*models.InviteCode, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.InviteCode, error)

	// CountUsable counts the tenant's codes that could still be redeemed at now.
	CountUsable(ctx context.Context, tenantID uuid.UUID, now time.Time) (int, error)

	// ConsumeUse increments uses by one if, and only if, the code exists,
	// uses < max_uses and it has not expired at now. It is a single
	// conditional update: two concurrent callers racing for the last use
	// cannot both win. Returns nil, nil when nothing was consumed.
	ConsumeUse(ctx context.Context, code string, now time.Time) (*models.InviteCode, error)
}

type ChannelRepository interface {
	// Create inserts a channel. Names are unique per tenant (ErrConflict).
	Create(ctx context.Context, ch models.Channel) (*models.Channel, error)

	// CreateIfAbsent returns the existing channel with the same
	// (tenant, name) instead of failing.
	CreateIfAbsent(ctx context.Context, ch models.Channel) (*models.Channel, error)

	GetByID(ctx context.Context, tenantID, channelID uuid.UUID) (*models.Channel, error)

	// ListByTenant returns the tenant's channels, oldest first.
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Channel, error)
}

type ChannelMemberRepository interface {
	// AddMember is idempotent: joining twice is not an error.
	AddMember(ctx context.Context, channelID, userID uuid.UUID, role string) error

	// AddMembers enrolls many users in one statement, skipping existing ones.
	AddMembers(ctx context.Context, channelID uuid.UUID, userIDs []uuid.UUID, role string) error

	RemoveMember(ctx context.Context, channelID, userID uuid.UUID) error

	// RemoveFromTenant drops the user from every channel of the tenant.
	RemoveFromTenant(ctx context.Context, tenantID, userID uuid.UUID) error

	ListMembers(ctx context.Context, channelID uuid.UUID) ([]models.ChannelMember, error)
	IsMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error)
}

type MessageRepository interface {
	Create(ctx context.Context, msg models.Message) (*models.Message, error)

	// ListByChannel returns messages newest first. before=0 starts from
	// the latest message.
	ListByChannel(ctx context.Context, tenantID, channelID uuid.UUID, before int64, limit int) ([]models.Message, error)
}

// CounterDelta is one recipient of a message fan-out.
type CounterDelta struct {
	UserID    uuid.UUID
	Mentioned bool
}

type UnreadRepository interface {
	// Increment upserts one counter per delta: count+1, mention_count+1
	// for mentioned recipients, last_message_at=at. Missing rows are
	// created with count=1.
	Increment(ctx context.Context, tenantID, channelID uuid.UUID, deltas []CounterDelta, at time.Time) error

	// Reset zeroes a user's counter for a channel.
	Reset(ctx context.Context, userID, channelID uuid.UUID) error

	Get(ctx context.Context, userID, channelID uuid.UUID) (*models.UnreadCounter, error)
	ListForUser(ctx context.Context, tenantID, userID uuid.UUID) ([]models.UnreadCounter, error)
}

type VolunteerRepository interface {
	// CreatePending inserts a pending record, or returns the existing one.
	CreatePending(ctx context.Context, tenantID, userID uuid.UUID, at time.Time) (*models.Volunteer, error)
	Get(ctx context.Context, tenantID, userID uuid.UUID) (*models.Volunteer, error)

	// ListByTenant filters by status unless status is empty.
	ListByTenant(ctx context.Context, tenantID uuid.UUID, status string) ([]models.Volunteer, error)

	// SetStatus returns nil, nil if the record does not exist.
	SetStatus(ctx context.Context, tenantID, userID uuid.UUID, status string, reviewer uuid.UUID, at time.Time) (*models.Volunteer, error)
}

type MissionRepository interface {
	Create(ctx context.Context, m models.Mission) (*models.Mission, error)
	GetByID(ctx context.Context, tenantID, missionID uuid.UUID) (*models.Mission, error)

	// GetForUpdate reads a mission and locks it until the enclosing
	// transaction ends. Only meaningful inside Store.InTx.
	GetForUpdate(ctx context.Context, tenantID, missionID uuid.UUID) (*models.Mission, error)

	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Mission, error)

	// Update writes the mutable fields. Returns nil, nil if not found.
	Update(ctx context.Context, m models.Mission) (*models.Mission, error)

	// DeleteIfUnassigned deletes the mission only when it has no
	// non-cancelled assignment, as one statement. Reports whether a row
	// was deleted.
	DeleteIfUnassigned(ctx context.Context, tenantID, missionID uuid.UUID) (bool, error)
}

type AssignmentRepository interface {
	// Create inserts an assignment. A second active assignment for the
	// same (mission, user) returns ErrConflict.
	Create(ctx context.Context, a models.Assignment) (*models.Assignment, error)
	GetByID(ctx context.Context, tenantID, assignmentID uuid.UUID) (*models.Assignment, error)
	ListByMission(ctx context.Context, tenantID, missionID uuid.UUID) ([]models.Assignment, error)
	CountActive(ctx context.Context, missionID uuid.UUID) (int, error)

	// SetStatus returns nil, nil if not found.
	SetStatus(ctx context.Context, tenantID, assignmentID uuid.UUID, status string, at time.Time) (*models.Assignment, error)
}

// Repositories bundles every repository bound to one connection or
// one transaction.
type Repositories struct {
	Tenants        TenantRepository
	Users          UserRepository
	Memberships    MembershipRepository
	TenantModules  TenantModuleRepository
	Invites        InviteRepository
	Channels       ChannelRepository
	ChannelMembers ChannelMemberRepository
	Messages       MessageRepository
	Unread         UnreadRepository
	Volunteers     VolunteerRepository
	Missions       MissionRepository
	Assignments    AssignmentRepository
}

// Store is the datastore handle a process constructs once at boot and
// injects into every service.
type Store interface {
	// Repos returns repositories that run each call in its own implicit
	// transaction.
	Repos() Repositories

	// InTx runs fn inside one transaction. fn's error (or a panic) rolls
	// everything back; a nil return commits. InTx calls do not nest.
	InTx(ctx context.Context, fn func(r Repositories) error) error

	// Health checks the datastore is reachable.
	Health(ctx context.Context) error
}
