package volunteers

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/festivo/internal/apperr"
	"github.com/lalith-99/festivo/internal/clearance"
	"github.com/lalith-99/festivo/internal/membership"
	"github.com/lalith-99/festivo/internal/models"
	"github.com/lalith-99/festivo/internal/modules"
	"github.com/lalith-99/festivo/internal/repository/memory"
	"github.com/lalith-99/festivo/internal/testfixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	store  *memory.Store
	svc    *Service
	mods   *modules.Manager
	tenant *models.Tenant
	owner  *models.User
	coord  *models.User
	vol    *models.User
	now    time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := testfixtures.Store(t)
	mods := modules.NewManager(store, nil, nil, zap.NewNop())
	auth := membership.NewAuthority(store, mods, zap.NewNop())

	f := &fixture{store: store, mods: mods, now: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)}
	f.owner = testfixtures.User(t, store, "owner")
	f.coord = testfixtures.User(t, store, "coord")
	f.vol = testfixtures.User(t, store, "vol")
	f.tenant = testfixtures.Tenant(t, store, "lowlands", f.owner)
	testfixtures.Member(t, store, f.tenant, f.owner, "owner", clearance.Blue)
	testfixtures.Member(t, store, f.tenant, f.coord, "coordinator", clearance.Yellow)
	testfixtures.Member(t, store, f.tenant, f.vol, "volunteer", clearance.Red)

	_, err := mods.Activate(context.Background(), f.tenant.ID, modules.Volunteers)
	require.NoError(t, err)

	f.svc = NewService(store, auth, mods, zap.NewNop(), WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) params(capacity int) MissionParams {
	return MissionParams{
		Title:    "Bar shift",
		Location: "Main stage",
		StartsAt: f.now.Add(24 * time.Hour),
		EndsAt:   f.now.Add(28 * time.Hour),
		Capacity: capacity,
	}
}

func (f *fixture) mission(t *testing.T, capacity int) *models.Mission {
	t.Helper()
	m, err := f.svc.CreateMission(context.Background(), f.coord.ID, f.tenant.ID, f.params(capacity))
	require.NoError(t, err)
	return m
}

func (f *fixture) approved(t *testing.T, u *models.User) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.Apply(ctx, u.ID, f.tenant.ID)
	require.NoError(t, err)
	_, err = f.svc.ReviewVolunteer(ctx, f.coord.ID, f.tenant.ID, u.ID, true)
	require.NoError(t, err)
}

func TestModuleMustBeActive(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.mods.Deactivate(ctx, f.tenant.ID, modules.Volunteers)
	require.NoError(t, err)

	_, err = f.svc.ListMissions(ctx, f.vol.ID, f.tenant.ID)
	assert.ErrorIs(t, err, apperr.ErrModuleInactive)
}

func TestCreateMissionValidatesAndGuards(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	m := f.mission(t, 2)
	assert.Equal(t, models.MissionOpen, m.Status)
	assert.Equal(t, f.coord.ID, m.CreatedBy)

	bad := f.params(1)
	bad.EndsAt = bad.StartsAt
	_, err := f.svc.CreateMission(ctx, f.coord.ID, f.tenant.ID, bad)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	bad = f.params(-1)
	_, err = f.svc.CreateMission(ctx, f.coord.ID, f.tenant.ID, bad)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	bad = f.params(1)
	bad.Status = "postponed"
	_, err = f.svc.CreateMission(ctx, f.coord.ID, f.tenant.ID, bad)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	_, err = f.svc.CreateMission(ctx, f.vol.ID, f.tenant.ID, f.params(1))
	assert.ErrorIs(t, err, apperr.ErrInsufficientClearance)
}

func TestListAndGetMission(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m := f.mission(t, 0)

	list, err := f.svc.ListMissions(ctx, f.vol.ID, f.tenant.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	got, err := f.svc.GetMission(ctx, f.vol.ID, f.tenant.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bar shift", got.Title)

	_, err = f.svc.GetMission(ctx, f.vol.ID, f.tenant.ID, uuid.New())
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestVolunteerReview(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	v, err := f.svc.Apply(ctx, f.vol.ID, f.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VolunteerPending, v.Status)
	again, err := f.svc.Apply(ctx, f.vol.ID, f.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, v.CreatedAt, again.CreatedAt)

	pending, err := f.svc.ListVolunteers(ctx, f.coord.ID, f.tenant.ID, models.VolunteerPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = f.svc.ListVolunteers(ctx, f.vol.ID, f.tenant.ID, "")
	assert.ErrorIs(t, err, apperr.ErrInsufficientClearance)
	_, err = f.svc.ListVolunteers(ctx, f.coord.ID, f.tenant.ID, "maybe")
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	v, err = f.svc.ReviewVolunteer(ctx, f.coord.ID, f.tenant.ID, f.vol.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.VolunteerApproved, v.Status)
	require.NotNil(t, v.ReviewedBy)
	assert.Equal(t, f.coord.ID, *v.ReviewedBy)

	_, err = f.svc.ReviewVolunteer(ctx, f.coord.ID, f.tenant.ID, uuid.New(), true)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestAssign(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m := f.mission(t, 1)

	_, err := f.svc.Assign(ctx, f.coord.ID, f.tenant.ID, m.ID, f.vol.ID)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err), "unapproved volunteer")

	f.approved(t, f.vol)
	a, err := f.svc.Assign(ctx, f.coord.ID, f.tenant.ID, m.ID, f.vol.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentPending, a.Status)
	assert.Equal(t, f.coord.ID, a.AssignedBy)

	_, err = f.svc.Assign(ctx, f.coord.ID, f.tenant.ID, m.ID, f.vol.ID)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err), "capacity reached")

	other := testfixtures.User(t, f.store, "other")
	testfixtures.Member(t, f.store, f.tenant, other, "volunteer", clearance.Red)
	f.approved(t, other)
	_, err = f.svc.Assign(ctx, f.coord.ID, f.tenant.ID, m.ID, other.ID)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	_, err = f.svc.Assign(ctx, f.coord.ID, f.tenant.ID, uuid.New(), other.ID)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestAssignTwiceWithoutCapacityLimitConflicts(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m := f.mission(t, 0)
	f.approved(t, f.vol)

	_, err := f.svc.Assign(ctx, f.coord.ID, f.tenant.ID, m.ID, f.vol.ID)
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, f.coord.ID, f.tenant.ID, m.ID, f.vol.ID)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
}

func TestAssignRejectsClosedMission(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m := f.mission(t, 0)
	f.approved(t, f.vol)

	p := f.params(0)
	p.Status = models.MissionClosed
	_, err := f.svc.UpdateMission(ctx, f.coord.ID, f.tenant.ID, m.ID, p)
	require.NoError(t, err)

	_, err = f.svc.Assign(ctx, f.coord.ID, f.tenant.ID, m.ID, f.vol.ID)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
}

func TestConcurrentAssignsRespectCapacity(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m := f.mission(t, 3)

	var users []*models.User
	for _, h := range []string{"v1", "v2", "v3", "v4", "v5", "v6", "v7", "v8"} {
		u := testfixtures.User(t, f.store, h)
		testfixtures.Member(t, f.store, f.tenant, u, "volunteer", clearance.Red)
		f.approved(t, u)
		users = append(users, u)
	}

	var ok atomic.Int32
	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u *models.User) {
			defer wg.Done()
			if _, err := f.svc.Assign(ctx, f.coord.ID, f.tenant.ID, m.ID, u.ID); err == nil {
				ok.Add(1)
			}
		}(u)
	}
	wg.Wait()

	assert.Equal(t, int32(3), ok.Load())
	n, err := f.store.Repos().Assignments.CountActive(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestUpdateAssignmentStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m := f.mission(t, 1)
	f.approved(t, f.vol)
	a, err := f.svc.Assign(ctx, f.coord.ID, f.tenant.ID, m.ID, f.vol.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdateAssignmentStatus(ctx, f.coord.ID, f.tenant.ID, a.ID, "done")
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	got, err := f.svc.UpdateAssignmentStatus(ctx, f.coord.ID, f.tenant.ID, a.ID, models.AssignmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentConfirmed, got.Status)

	_, err = f.svc.UpdateAssignmentStatus(ctx, f.coord.ID, f.tenant.ID, a.ID, models.AssignmentCancelled)
	require.NoError(t, err)

	// The freed seat goes to someone else; reviving the old one no longer fits.
	other := testfixtures.User(t, f.store, "other")
	testfixtures.Member(t, f.store, f.tenant, other, "volunteer", clearance.Red)
	f.approved(t, other)
	_, err = f.svc.Assign(ctx, f.coord.ID, f.tenant.ID, m.ID, other.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdateAssignmentStatus(ctx, f.coord.ID, f.tenant.ID, a.ID, models.AssignmentPending)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	_, err = f.svc.UpdateAssignmentStatus(ctx, f.coord.ID, f.tenant.ID, uuid.New(), models.AssignmentPending)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestRevivingAssignmentRechecksMissionAndVolunteer(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m := f.mission(t, 0)
	f.approved(t, f.vol)
	a, err := f.svc.Assign(ctx, f.coord.ID, f.tenant.ID, m.ID, f.vol.ID)
	require.NoError(t, err)
	_, err = f.svc.UpdateAssignmentStatus(ctx, f.coord.ID, f.tenant.ID, a.ID, models.AssignmentCancelled)
	require.NoError(t, err)

	p := f.params(0)
	p.Status = models.MissionClosed
	_, err = f.svc.UpdateMission(ctx, f.coord.ID, f.tenant.ID, m.ID, p)
	require.NoError(t, err)
	_, err = f.svc.UpdateAssignmentStatus(ctx, f.coord.ID, f.tenant.ID, a.ID, models.AssignmentConfirmed)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err), "mission closed")

	_, err = f.svc.UpdateMission(ctx, f.coord.ID, f.tenant.ID, m.ID, f.params(0))
	require.NoError(t, err)
	_, err = f.svc.ReviewVolunteer(ctx, f.coord.ID, f.tenant.ID, f.vol.ID, false)
	require.NoError(t, err)
	_, err = f.svc.UpdateAssignmentStatus(ctx, f.coord.ID, f.tenant.ID, a.ID, models.AssignmentConfirmed)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err), "volunteer rejected")

	_, err = f.svc.ReviewVolunteer(ctx, f.coord.ID, f.tenant.ID, f.vol.ID, true)
	require.NoError(t, err)
	got, err := f.svc.UpdateAssignmentStatus(ctx, f.coord.ID, f.tenant.ID, a.ID, models.AssignmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentConfirmed, got.Status)
}

func TestUpdateMissionCannotShrinkBelowAssignments(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m := f.mission(t, 5)
	f.approved(t, f.vol)
	other := testfixtures.User(t, f.store, "other")
	testfixtures.Member(t, f.store, f.tenant, other, "volunteer", clearance.Red)
	f.approved(t, other)
	for _, u := range []*models.User{f.vol, other} {
		_, err := f.svc.Assign(ctx, f.coord.ID, f.tenant.ID, m.ID, u.ID)
		require.NoError(t, err)
	}

	_, err := f.svc.UpdateMission(ctx, f.coord.ID, f.tenant.ID, m.ID, f.params(1))
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	updated, err := f.svc.UpdateMission(ctx, f.coord.ID, f.tenant.ID, m.ID, f.params(2))
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Capacity)

	_, err = f.svc.UpdateMission(ctx, f.coord.ID, f.tenant.ID, uuid.New(), f.params(2))
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestDeleteMissionSafety(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m := f.mission(t, 0)
	f.approved(t, f.vol)
	a, err := f.svc.Assign(ctx, f.coord.ID, f.tenant.ID, m.ID, f.vol.ID)
	require.NoError(t, err)

	err = f.svc.DeleteMission(ctx, f.coord.ID, f.tenant.ID, m.ID)
	assert.ErrorIs(t, err, apperr.ErrInsufficientClearance, "coordinators cannot delete")

	err = f.svc.DeleteMission(ctx, f.owner.ID, f.tenant.ID, m.ID)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
	still, err := f.store.Repos().Missions.GetByID(ctx, f.tenant.ID, m.ID)
	require.NoError(t, err)
	assert.NotNil(t, still)

	_, err = f.svc.UpdateAssignmentStatus(ctx, f.coord.ID, f.tenant.ID, a.ID, models.AssignmentCancelled)
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteMission(ctx, f.owner.ID, f.tenant.ID, m.ID))

	err = f.svc.DeleteMission(ctx, f.owner.ID, f.tenant.ID, m.ID)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestDeleteMissionRacingAssign(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.approved(t, f.vol)

	for i := 0; i < 20; i++ {
		m := f.mission(t, 0)
		var wg sync.WaitGroup
		var assignErr, deleteErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, assignErr = f.svc.Assign(ctx, f.coord.ID, f.tenant.ID, m.ID, f.vol.ID)
		}()
		go func() {
			defer wg.Done()
			deleteErr = f.svc.DeleteMission(ctx, f.owner.ID, f.tenant.ID, m.ID)
		}()
		wg.Wait()

		// Exactly one side wins. A committed assignment is never lost.
		if assignErr == nil {
			assert.Equal(t, apperr.Conflict, apperr.KindOf(deleteErr))
			n, err := f.store.Repos().Assignments.CountActive(ctx, m.ID)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		} else {
			assert.NoError(t, deleteErr)
			assert.Equal(t, apperr.NotFound, apperr.KindOf(assignErr))
		}
	}
}

func TestListAssignmentsScopesVolunteersToThemselves(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m := f.mission(t, 0)
	other := testfixtures.User(t, f.store, "other")
	testfixtures.Member(t, f.store, f.tenant, other, "volunteer", clearance.Red)
	for _, u := range []*models.User{f.vol, other} {
		f.approved(t, u)
		_, err := f.svc.Assign(ctx, f.coord.ID, f.tenant.ID, m.ID, u.ID)
		require.NoError(t, err)
	}

	all, err := f.svc.ListAssignments(ctx, f.coord.ID, f.tenant.ID, m.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := f.svc.ListAssignments(ctx, f.vol.ID, f.tenant.ID, m.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, f.vol.ID, mine[0].UserID)
}
