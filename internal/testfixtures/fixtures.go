// Package testfixtures seeds an in-memory store for service and handler
// tests.
package testfixtures

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/festivo/internal/clearance"
	"github.com/lalith-99/festivo/internal/models"
	"github.com/lalith-99/festivo/internal/repository/memory"
	"github.com/stretchr/testify/require"
)

func Store(t testing.TB) *memory.Store {
	t.Helper()
	s, err := memory.NewStore()
	require.NoError(t, err)
	return s
}

// User creates a user whose handle is the given name.
func User(t testing.TB, s *memory.Store, handle string) *models.User {
	t.Helper()
	u, err := s.Repos().Users.Create(context.Background(), models.User{
		ExternalID:  "ext|" + handle,
		Email:       strings.ToLower(handle) + "@example.com",
		DisplayName: handle,
		Handle:      handle,
	})
	require.NoError(t, err)
	return u
}

func SuperAdmin(t testing.TB, s *memory.Store, handle string) *models.User {
	t.Helper()
	u, err := s.Repos().Users.Create(context.Background(), models.User{
		ExternalID:  "ext|" + handle,
		DisplayName: handle,
		Handle:      handle,
		GlobalRole:  models.GlobalRoleSuperAdmin,
	})
	require.NoError(t, err)
	return u
}

func Tenant(t testing.TB, s *memory.Store, slug string, creator *models.User) *models.Tenant {
	t.Helper()
	tenant, err := s.Repos().Tenants.Create(context.Background(), slug, slug, creator.ID)
	require.NoError(t, err)
	return tenant
}

func Member(t testing.TB, s *memory.Store, tenant *models.Tenant, user *models.User, role string, level clearance.Level) *models.Membership {
	t.Helper()
	m, err := s.Repos().Memberships.Create(context.Background(), models.Membership{
		TenantID:       tenant.ID,
		UserID:         user.ID,
		Role:           role,
		ClearanceLevel: level,
	})
	require.NoError(t, err)
	return m
}

// Channel creates a channel and enrolls members.
func Channel(t testing.TB, s *memory.Store, tenant *models.Tenant, name string, minLevel clearance.Level, members ...*models.User) *models.Channel {
	t.Helper()
	ctx := context.Background()
	ch, err := s.Repos().Channels.Create(ctx, models.Channel{
		TenantID:     tenant.ID,
		Name:         name,
		MinClearance: minLevel,
	})
	require.NoError(t, err)

	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	require.NoError(t, s.Repos().ChannelMembers.AddMembers(ctx, ch.ID, ids, "member"))
	return ch
}
