package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/festivo/internal/clearance"
)

// Tenant is the top-level isolation boundary: one event or festival.
// Every membership, channel, mission and invite code belongs to exactly
// one tenant, and every query is scoped by tenant_id.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// GlobalRoleSuperAdmin is the platform-owner sentinel. Users carrying it
// bypass tenant-level state entirely.
const GlobalRoleSuperAdmin = "superadmin"

// User is a person known to the platform.
//
// Why no TenantID here (unlike a single-workspace chat app)?
//   - One person can staff many events. Tenant binding lives in
//     Membership, not on the user row.
//
// ExternalID is the stable subject issued by the identity provider.
// We never authenticate anyone ourselves; we only map that id to a row.
type User struct {
	ID          uuid.UUID `json:"id"`
	ExternalID  string    `json:"-"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Handle      string    `json:"handle"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	GlobalRole  string    `json:"global_role,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (u *User) IsSuperAdmin() bool {
	return u != nil && u.GlobalRole == GlobalRoleSuperAdmin
}

// Membership binds a user to a tenant.
//
// Role is descriptive ("coordinator"), ClearanceLevel is authoritative
// for gating. They are set independently.
type Membership struct {
	ID             uuid.UUID       `json:"id"`
	TenantID       uuid.UUID       `json:"tenant_id"`
	UserID         uuid.UUID       `json:"user_id"`
	Role           string          `json:"role"`
	ClearanceLevel clearance.Level `json:"clearance_level"`
	JoinedAt       time.Time       `json:"joined_at"`
}

// Billing statuses for TenantModule. Payments are not implemented.
const (
	BillingFree     = "free"
	BillingUnbilled = "unbilled"
)

// TenantModule is the persisted enable/disable state of one optional
// module for one tenant. Rows are never deleted; disabling flips Enabled.
type TenantModule struct {
	TenantID      uuid.UUID `json:"tenant_id"`
	ModuleID      string    `json:"module_id"`
	Enabled       bool      `json:"enabled"`
	BillingStatus string    `json:"billing_status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// InviteCode grants tenant membership when redeemed.
//
// Codes are retained after they stop being usable so there is an audit
// trail of who invited whom.
type InviteCode struct {
	Code      string     `json:"code"`
	TenantID  uuid.UUID  `json:"tenant_id"`
	ModuleID  *string    `json:"module_id,omitempty"`
	Role      string     `json:"role"`
	MaxUses   int        `json:"max_uses"`
	Uses      int        `json:"uses"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedBy uuid.UUID  `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
}

// Usable reports whether the code can still be redeemed at now.
func (c *InviteCode) Usable(now time.Time) bool {
	if c.Uses >= c.MaxUses {
		return false
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return false
	}
	return true
}

// UnreadCounter is a per-user, per-channel tally of unseen messages.
type UnreadCounter struct {
	UserID        uuid.UUID `json:"user_id"`
	ChannelID     uuid.UUID `json:"channel_id"`
	TenantID      uuid.UUID `json:"tenant_id"`
	Count         int       `json:"count"`
	MentionCount  int       `json:"mention_count"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// Channel is a chat room within a tenant.
//
// ModuleID is set for channels created by module provisioning so they
// can be found again on re-activation. MinClearance hides the channel
// from members below that level.
type Channel struct {
	ID           uuid.UUID       `json:"id"`
	TenantID     uuid.UUID       `json:"tenant_id"`
	ModuleID     *string         `json:"module_id,omitempty"`
	Name         string          `json:"name"`
	IsPrivate    bool            `json:"is_private"`
	MinClearance clearance.Level `json:"min_clearance"`
	CreatedBy    *uuid.UUID      `json:"created_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ChannelMember is the join table between channels and users.
type ChannelMember struct {
	ChannelID uuid.UUID `json:"channel_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
	JoinedAt  time.Time `json:"joined_at"`
}

// Message is a single chat message in a channel.
//
// int64 IDs: messages are the highest-volume table and a bigserial is
// naturally ordered, which is what cursor pagination needs.
type Message struct {
	ID        int64     `json:"id"`
	ChannelID uuid.UUID `json:"channel_id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Body      string    `json:"body"`
	Mentions  []string  `json:"mentions"`
	CreatedAt time.Time `json:"created_at"`
}

// Volunteer statuses.
const (
	VolunteerPending  = "pending"
	VolunteerApproved = "approved"
	VolunteerRejected = "rejected"
)

// Volunteer is a member's standing in the volunteers module of a tenant.
type Volunteer struct {
	TenantID   uuid.UUID  `json:"tenant_id"`
	UserID     uuid.UUID  `json:"user_id"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ReviewedBy *uuid.UUID `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
}

// Mission statuses.
const (
	MissionOpen      = "open"
	MissionClosed    = "closed"
	MissionCancelled = "cancelled"
)

// Mission is a unit of volunteer work (a shift, a task).
type Mission struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Capacity    int       `json:"capacity"`
	Status      string    `json:"status"`
	CreatedBy   uuid.UUID `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Assignment statuses. Every status except cancelled counts as active.
const (
	AssignmentPending   = "pending"
	AssignmentConfirmed = "confirmed"
	AssignmentCompleted = "completed"
	AssignmentCancelled = "cancelled"
)

// Assignment puts a volunteer on a mission.
type Assignment struct {
	ID         uuid.UUID `json:"id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	MissionID  uuid.UUID `json:"mission_id"`
	UserID     uuid.UUID `json:"user_id"`
	Status     string    `json:"status"`
	AssignedBy uuid.UUID `json:"assigned_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (a *Assignment) Active() bool {
	return a.Status != AssignmentCancelled
}
