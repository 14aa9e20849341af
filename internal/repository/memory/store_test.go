package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/festivo/internal/models"
	"github.com/lalith-99/festivo/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore()
	require.NoError(t, err)
	return s
}

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	boom := errors.New("boom")

	err := s.InTx(ctx, func(r repository.Repositories) error {
		_, err := r.Tenants.Create(ctx, "Lowlands", "lowlands", uuid.New())
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Repos().Tenants.GetBySlug(ctx, "lowlands")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInTxSeesOwnWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.InTx(ctx, func(r repository.Repositories) error {
		tenant, err := r.Tenants.Create(ctx, "Lowlands", "lowlands", uuid.New())
		if err != nil {
			return err
		}
		got, err := r.Tenants.GetByID(ctx, tenant.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, tenant.Slug, got.Slug)
		return nil
	})
	require.NoError(t, err)
}

func TestUniqueConstraints(t *testing.T) {
	ctx := context.Background()
	r := newTestStore(t).Repos()

	_, err := r.Tenants.Create(ctx, "A", "same", uuid.New())
	require.NoError(t, err)
	_, err = r.Tenants.Create(ctx, "B", "same", uuid.New())
	assert.ErrorIs(t, err, repository.ErrConflict)

	_, err = r.Users.Create(ctx, models.User{ExternalID: "ext-1", Handle: "Alice"})
	require.NoError(t, err)
	_, err = r.Users.Create(ctx, models.User{ExternalID: "ext-2", Handle: "alice"})
	assert.ErrorIs(t, err, repository.ErrConflict)

	tenantID, userID := uuid.New(), uuid.New()
	_, err = r.Memberships.Create(ctx, models.Membership{TenantID: tenantID, UserID: userID, Role: "member"})
	require.NoError(t, err)
	_, err = r.Memberships.Create(ctx, models.Membership{TenantID: tenantID, UserID: userID, Role: "member"})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestIDsByHandlesIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	r := newTestStore(t).Repos()

	u, err := r.Users.Create(ctx, models.User{ExternalID: "ext-1", Handle: "DJ_Kim"})
	require.NoError(t, err)

	ids, err := r.Users.IDsByHandles(ctx, []string{"dj_kim", "nobody"})
	require.NoError(t, err)
	assert.Equal(t, map[string]uuid.UUID{"dj_kim": u.ID}, ids)
}

func TestEnableReportsPreviousState(t *testing.T) {
	ctx := context.Background()
	r := newTestStore(t).Repos()
	tenantID := uuid.New()

	_, was, err := r.TenantModules.Enable(ctx, tenantID, "volunteers", models.BillingFree)
	require.NoError(t, err)
	assert.False(t, was)

	_, was, err = r.TenantModules.Enable(ctx, tenantID, "volunteers", models.BillingFree)
	require.NoError(t, err)
	assert.True(t, was)

	state, err := r.TenantModules.Disable(ctx, tenantID, "volunteers")
	require.NoError(t, err)
	assert.False(t, state.Enabled)
	assert.Equal(t, models.BillingFree, state.BillingStatus)

	list, err := r.TenantModules.ListByTenant(ctx, tenantID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestConsumeUseNeverExceedsMaxUses(t *testing.T) {
	ctx := context.Background()
	r := newTestStore(t).Repos()

	_, err := r.Invites.Create(ctx, models.InviteCode{Code: "ABCD2345", TenantID: uuid.New(), Role: "member", MaxUses: 3})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var won atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := r.Invites.ConsumeUse(ctx, "ABCD2345", time.Now())
			assert.NoError(t, err)
			if c != nil {
				won.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), won.Load())
	got, err := r.Invites.GetByCode(ctx, "ABCD2345")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Uses)
}

func TestConsumeUseRejectsExpired(t *testing.T) {
	ctx := context.Background()
	r := newTestStore(t).Repos()
	expires := time.Now().Add(-time.Minute)

	_, err := r.Invites.Create(ctx, models.InviteCode{Code: "OLDC0DE2", TenantID: uuid.New(), MaxUses: 5, ExpiresAt: &expires})
	require.NoError(t, err)

	c, err := r.Invites.ConsumeUse(ctx, "OLDC0DE2", time.Now())
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestUnreadIncrementIsAdditive(t *testing.T) {
	ctx := context.Background()
	r := newTestStore(t).Repos()
	tenantID, channelID := uuid.New(), uuid.New()
	alice, bob := uuid.New(), uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := r.Unread.Increment(ctx, tenantID, channelID, []repository.CounterDelta{
				{UserID: alice, Mentioned: i%2 == 0},
				{UserID: bob},
			}, time.Now())
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	a, err := r.Unread.Get(ctx, alice, channelID)
	require.NoError(t, err)
	assert.Equal(t, 20, a.Count)
	assert.Equal(t, 10, a.MentionCount)

	b, err := r.Unread.Get(ctx, bob, channelID)
	require.NoError(t, err)
	assert.Equal(t, 20, b.Count)
	assert.Equal(t, 0, b.MentionCount)

	require.NoError(t, r.Unread.Reset(ctx, alice, channelID))
	a, err = r.Unread.Get(ctx, alice, channelID)
	require.NoError(t, err)
	assert.Equal(t, 0, a.Count)

	list, err := r.Unread.ListForUser(ctx, tenantID, bob)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMessagesPaginateNewestFirst(t *testing.T) {
	ctx := context.Background()
	r := newTestStore(t).Repos()
	tenantID, channelID := uuid.New(), uuid.New()

	var ids []int64
	for i := 0; i < 5; i++ {
		m, err := r.Messages.Create(ctx, models.Message{TenantID: tenantID, ChannelID: channelID, Body: "hi"})
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}

	page, err := r.Messages.ListByChannel(ctx, tenantID, channelID, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[4], page[0].ID)
	assert.Equal(t, ids[3], page[1].ID)

	page, err = r.Messages.ListByChannel(ctx, tenantID, channelID, ids[3], 10)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, ids[2], page[0].ID)

	other, err := r.Messages.ListByChannel(ctx, uuid.New(), channelID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestDeleteMissionOnlyWithoutActiveAssignments(t *testing.T) {
	ctx := context.Background()
	r := newTestStore(t).Repos()
	tenantID := uuid.New()

	m, err := r.Missions.Create(ctx, models.Mission{
		TenantID: tenantID,
		Title:    "Gate A",
		StartsAt: time.Now(),
		EndsAt:   time.Now().Add(time.Hour),
		Capacity: 2,
		Status:   models.MissionOpen,
	})
	require.NoError(t, err)

	a, err := r.Assignments.Create(ctx, models.Assignment{TenantID: tenantID, MissionID: m.ID, UserID: uuid.New(), Status: models.AssignmentPending})
	require.NoError(t, err)

	deleted, err := r.Missions.DeleteIfUnassigned(ctx, tenantID, m.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = r.Assignments.SetStatus(ctx, tenantID, a.ID, models.AssignmentCancelled, time.Now())
	require.NoError(t, err)

	deleted, err = r.Missions.DeleteIfUnassigned(ctx, tenantID, m.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err := r.Assignments.GetByID(ctx, tenantID, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDuplicateActiveAssignmentConflicts(t *testing.T) {
	ctx := context.Background()
	r := newTestStore(t).Repos()
	tenantID, missionID, userID := uuid.New(), uuid.New(), uuid.New()

	first, err := r.Assignments.Create(ctx, models.Assignment{TenantID: tenantID, MissionID: missionID, UserID: userID, Status: models.AssignmentPending})
	require.NoError(t, err)

	_, err = r.Assignments.Create(ctx, models.Assignment{TenantID: tenantID, MissionID: missionID, UserID: userID, Status: models.AssignmentPending})
	assert.ErrorIs(t, err, repository.ErrConflict)

	_, err = r.Assignments.SetStatus(ctx, tenantID, first.ID, models.AssignmentCancelled, time.Now())
	require.NoError(t, err)

	_, err = r.Assignments.Create(ctx, models.Assignment{TenantID: tenantID, MissionID: missionID, UserID: userID, Status: models.AssignmentPending})
	require.NoError(t, err)

	n, err := r.Assignments.CountActive(ctx, missionID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRemoveFromTenantOnlyTouchesThatTenant(t *testing.T) {
	ctx := context.Background()
	r := newTestStore(t).Repos()
	userID := uuid.New()
	t1, t2 := uuid.New(), uuid.New()

	c1, err := r.Channels.Create(ctx, models.Channel{TenantID: t1, Name: "general"})
	require.NoError(t, err)
	c2, err := r.Channels.Create(ctx, models.Channel{TenantID: t2, Name: "general"})
	require.NoError(t, err)

	require.NoError(t, r.ChannelMembers.AddMember(ctx, c1.ID, userID, "member"))
	require.NoError(t, r.ChannelMembers.AddMembers(ctx, c2.ID, []uuid.UUID{userID}, "member"))

	require.NoError(t, r.ChannelMembers.RemoveFromTenant(ctx, t1, userID))

	in1, err := r.ChannelMembers.IsMember(ctx, c1.ID, userID)
	require.NoError(t, err)
	assert.False(t, in1)
	in2, err := r.ChannelMembers.IsMember(ctx, c2.ID, userID)
	require.NoError(t, err)
	assert.True(t, in2)
}

func TestCreateIfAbsentReturnsExisting(t *testing.T) {
	ctx := context.Background()
	r := newTestStore(t).Repos()
	tenantID := uuid.New()

	a, err := r.Channels.CreateIfAbsent(ctx, models.Channel{TenantID: tenantID, Name: "volunteers"})
	require.NoError(t, err)
	b, err := r.Channels.CreateIfAbsent(ctx, models.Channel{TenantID: tenantID, Name: "volunteers"})
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	_, err = r.Channels.Create(ctx, models.Channel{TenantID: tenantID, Name: "volunteers"})
	assert.ErrorIs(t, err, repository.ErrConflict)
}
