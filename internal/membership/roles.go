package membership

import (
	"strings"

	"github.com/lalith-99/festivo/internal/clearance"
)

// Role is the descriptive job a member holds in a tenant. It decides
// which actions the member may take; clearance decides what they may see.
type Role string

const (
	RoleOwner       Role = "owner"
	RoleAdmin       Role = "admin"
	RoleCoordinator Role = "coordinator"
	RoleVolunteer   Role = "volunteer"
	RoleMember      Role = "member"
	RoleGuest       Role = "guest"
)

// Permission is a single capability checked by CheckPermission.
type Permission string

const (
	// AllPermissions is held only by owners. It satisfies every check.
	AllPermissions Permission = "*"

	PermViewMembers      Permission = "members:read"
	PermManageMembers    Permission = "members:manage"
	PermManageModules    Permission = "modules:manage"
	PermCreateInvites    Permission = "invites:create"
	PermManageChannels   Permission = "channels:manage"
	PermSendMessages     Permission = "messages:send"
	PermManageMissions   Permission = "missions:manage"
	PermReviewVolunteers Permission = "volunteers:review"
	PermApplyVolunteer   Permission = "volunteers:apply"
)

type permissionSet map[Permission]struct{}

func setOf(perms ...Permission) permissionSet {
	s := make(permissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Built once at init and never written again.
var rolePermissions = map[Role]permissionSet{
	RoleOwner: setOf(AllPermissions),
	RoleAdmin: setOf(
		PermViewMembers, PermManageMembers, PermManageModules, PermCreateInvites,
		PermManageChannels, PermSendMessages, PermManageMissions, PermReviewVolunteers,
		PermApplyVolunteer,
	),
	RoleCoordinator: setOf(
		PermViewMembers, PermCreateInvites, PermManageChannels, PermSendMessages,
		PermManageMissions, PermReviewVolunteers, PermApplyVolunteer,
	),
	RoleVolunteer: setOf(PermViewMembers, PermSendMessages, PermApplyVolunteer),
	RoleMember:    setOf(PermViewMembers, PermSendMessages, PermApplyVolunteer),
	RoleGuest:     setOf(),
}

var defaultClearance = map[Role]clearance.Level{
	RoleOwner:       clearance.Blue,
	RoleAdmin:       clearance.Blue,
	RoleCoordinator: clearance.Yellow,
	RoleVolunteer:   clearance.Red,
	RoleMember:      clearance.Red,
	RoleGuest:       clearance.Infrared,
}

// ParseRole maps a stored role string to a Role. Anything unrecognised
// becomes RoleGuest, which holds no permissions.
func ParseRole(s string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := rolePermissions[r]; ok {
		return r
	}
	return RoleGuest
}

// Known reports whether s names a role exactly.
func Known(s string) bool {
	_, ok := rolePermissions[Role(s)]
	return ok
}

func (r Role) Has(p Permission) bool {
	perms := rolePermissions[r]
	if _, ok := perms[AllPermissions]; ok {
		return true
	}
	_, ok := perms[p]
	return ok
}

// DefaultClearance is the level a member starts at when an invite
// admits them with this role.
func (r Role) DefaultClearance() clearance.Level {
	return defaultClearance[r]
}
