package provisioning

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/lalith-99/festivo/internal/apperr"
	"github.com/lalith-99/festivo/internal/clearance"
	"github.com/lalith-99/festivo/internal/models"
	"github.com/lalith-99/festivo/internal/modules"
	"github.com/lalith-99/festivo/internal/realtime"
	"github.com/lalith-99/festivo/internal/repository"
	"github.com/lalith-99/festivo/internal/repository/memory"
	"github.com/lalith-99/festivo/internal/testfixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type fixture struct {
	store    *memory.Store
	tenant   *models.Tenant
	owner    *models.User
	coord    *models.User
	member   *models.User
	guest    *models.User
	outsider *models.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	s := testfixtures.Store(t)
	f := &fixture{store: s}
	f.owner = testfixtures.User(t, s, "owner")
	f.coord = testfixtures.User(t, s, "coord")
	f.member = testfixtures.User(t, s, "member")
	f.guest = testfixtures.User(t, s, "guest")
	f.outsider = testfixtures.User(t, s, "outsider")
	f.tenant = testfixtures.Tenant(t, s, "lowlands", f.owner)
	testfixtures.Member(t, s, f.tenant, f.owner, "owner", clearance.Blue)
	testfixtures.Member(t, s, f.tenant, f.coord, "coordinator", clearance.Yellow)
	testfixtures.Member(t, s, f.tenant, f.member, "member", clearance.Red)
	testfixtures.Member(t, s, f.tenant, f.guest, "guest", clearance.Infrared)
	return f
}

func (f *fixture) channelMembers(t *testing.T, name string) []uuid.UUID {
	t.Helper()
	ctx := context.Background()
	channels, err := f.store.Repos().Channels.ListByTenant(ctx, f.tenant.ID)
	require.NoError(t, err)
	for _, ch := range channels {
		if ch.Name != name {
			continue
		}
		members, err := f.store.Repos().ChannelMembers.ListMembers(ctx, ch.ID)
		require.NoError(t, err)
		ids := make([]uuid.UUID, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.UserID)
		}
		return ids
	}
	t.Fatalf("channel %q not found", name)
	return nil
}

func TestProvisionVolunteers(t *testing.T) {
	f := setup(t)
	pub := &recordingPublisher{}
	svc := NewService(f.store, pub, zap.NewNop())

	require.NoError(t, svc.ProvisionModule(context.Background(), f.tenant.ID, modules.Volunteers))

	assert.ElementsMatch(t, []uuid.UUID{f.owner.ID, f.coord.ID, f.member.ID}, f.channelMembers(t, "volunteers"))
	assert.ElementsMatch(t, []uuid.UUID{f.owner.ID, f.coord.ID}, f.channelMembers(t, "volunteer-coordination"))

	channels, err := f.store.Repos().Channels.ListByTenant(context.Background(), f.tenant.ID)
	require.NoError(t, err)
	for _, ch := range channels {
		require.NotNil(t, ch.ModuleID)
		assert.Equal(t, modules.Volunteers, *ch.ModuleID)
	}

	require.Len(t, pub.events, 1)
	assert.Equal(t, realtime.EventModuleActivated, pub.events[0].Type)
}

func TestProvisionIsIdempotent(t *testing.T) {
	f := setup(t)
	svc := NewService(f.store, nil, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, svc.ProvisionModule(ctx, f.tenant.ID, modules.Volunteers))

	late := testfixtures.User(t, f.store, "late")
	testfixtures.Member(t, f.store, f.tenant, late, "member", clearance.Red)
	require.NoError(t, svc.ProvisionModule(ctx, f.tenant.ID, modules.Volunteers))

	channels, err := f.store.Repos().Channels.ListByTenant(ctx, f.tenant.ID)
	require.NoError(t, err)
	assert.Len(t, channels, 2)
	assert.Contains(t, f.channelMembers(t, "volunteers"), late.ID)
	assert.Len(t, f.channelMembers(t, "volunteers"), 4)
}

func TestProvisionModuleWithoutChannels(t *testing.T) {
	f := setup(t)
	svc := NewService(f.store, nil, zap.NewNop())
	require.NoError(t, svc.ProvisionModule(context.Background(), f.tenant.ID, "scheduling"))

	channels, err := f.store.Repos().Channels.ListByTenant(context.Background(), f.tenant.ID)
	require.NoError(t, err)
	assert.Empty(t, channels)
}

func TestProvisionUnknownModule(t *testing.T) {
	f := setup(t)
	svc := NewService(f.store, nil, zap.NewNop())
	err := svc.ProvisionModule(context.Background(), f.tenant.ID, "karaoke")
	assert.ErrorIs(t, err, apperr.ErrUnknownModule)
}

func TestProvisionLeavesForeignChannelAlone(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	// A member-created public channel squatting on a baseline name.
	squatter, err := f.store.Repos().Channels.Create(ctx, models.Channel{
		TenantID:     f.tenant.ID,
		Name:         "volunteer-coordination",
		MinClearance: clearance.Infrared,
		CreatedBy:    &f.guest.ID,
	})
	require.NoError(t, err)

	pub := &recordingPublisher{}
	svc := NewService(f.store, pub, zap.NewNop())
	err = svc.ProvisionModule(ctx, f.tenant.ID, modules.Volunteers)
	require.Error(t, err)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	members, err := f.store.Repos().ChannelMembers.ListMembers(ctx, squatter.ID)
	require.NoError(t, err)
	assert.Empty(t, members)

	// The channel the module does own is still provisioned and announced.
	assert.ElementsMatch(t, []uuid.UUID{f.owner.ID, f.coord.ID, f.member.ID}, f.channelMembers(t, "volunteers"))
	require.Len(t, pub.events, 1)
}

type brokenStore struct {
	repository.Store
}

var errBroken = errors.New("datastore unavailable")

func (brokenStore) InTx(ctx context.Context, fn func(repository.Repositories) error) error {
	return errBroken
}

func TestProvisionAggregatesChannelErrors(t *testing.T) {
	f := setup(t)
	pub := &recordingPublisher{}
	svc := NewService(brokenStore{f.store}, pub, zap.NewNop())

	err := svc.ProvisionModule(context.Background(), f.tenant.ID, modules.Volunteers)
	require.Error(t, err)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 2)
	assert.ErrorIs(t, merr.Errors[0], errBroken)
	assert.Empty(t, pub.events)
}

func TestActivationProvisionsThroughManager(t *testing.T) {
	f := setup(t)
	svc := NewService(f.store, nil, zap.NewNop())
	mgr := modules.NewManager(f.store, svc, nil, zap.NewNop())

	_, err := mgr.Activate(context.Background(), f.tenant.ID, modules.Ticketing)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{f.owner.ID, f.coord.ID}, f.channelMembers(t, "box-office"))
}
