package invite

import (
	"bytes"
	"context"
	"strings"
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
	"github.com/lalith-99/festivo/internal/realtime"
	"github.com/lalith-99/festivo/internal/repository/memory"
	"github.com/lalith-99/festivo/internal/testfixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	store  *memory.Store
	svc    *Service
	tenant *models.Tenant
	owner  *models.User
	now    time.Time
}

func setup(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()
	store := testfixtures.Store(t)
	mods := modules.NewManager(store, nil, nil, zap.NewNop())
	auth := membership.NewAuthority(store, mods, zap.NewNop())
	owner := testfixtures.User(t, store, "owner")
	tenant := testfixtures.Tenant(t, store, "lowlands", owner)
	testfixtures.Member(t, store, tenant, owner, "owner", clearance.Blue)

	f := &fixture{store: store, tenant: tenant, owner: owner, now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(func() time.Time { return f.now })}, opts...)
	f.svc = NewService(store, auth, cfg, nil, zap.NewNop(), opts...)
	return f
}

func (f *fixture) create(t *testing.T, p CreateParams) *models.InviteCode {
	t.Helper()
	p.ActorID = f.owner.ID
	p.TenantID = f.tenant.ID
	if p.MaxUses == 0 {
		p.MaxUses = 1
	}
	ic, err := f.svc.Create(context.Background(), p)
	require.NoError(t, err)
	return ic
}

func ptr[T any](v T) *T { return &v }

func TestGenerate(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := Generate()
		require.NoError(t, err)
		require.Len(t, code, CodeLength)
		assert.True(t, WellFormed(code), code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 190)

	code, err := generateFrom(bytes.NewReader([]byte{0, 1, 31, 32, 255, 8}))
	require.NoError(t, err)
	assert.Equal(t, "23Z2ZA", code)

	_, err = generateFrom(bytes.NewReader([]byte{1, 2}))
	assert.Error(t, err)
}

func TestAlphabetHasNoConfusables(t *testing.T) {
	assert.Len(t, Alphabet, 32)
	for _, c := range "01ILO" {
		assert.NotContains(t, Alphabet, string(c))
	}
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	f := setup(t, Config{})
	base := CreateParams{ActorID: f.owner.ID, TenantID: f.tenant.ID, Role: "member", MaxUses: 1}

	cases := map[string]func(p *CreateParams){
		"owner role":     func(p *CreateParams) { p.Role = "owner" },
		"unknown role":   func(p *CreateParams) { p.Role = "wizard" },
		"zero uses":      func(p *CreateParams) { p.MaxUses = 0 },
		"unknown module": func(p *CreateParams) { p.ModuleID = ptr("teleportation") },
		"core module":    func(p *CreateParams) { p.ModuleID = ptr(modules.Dashboard) },
		"past expiry":    func(p *CreateParams) { p.ExpiresAt = ptr(f.now.Add(-time.Minute)) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := base
			mutate(&p)
			_, err := f.svc.Create(ctx, p)
			assert.Equal(t, apperr.Validation, apperr.KindOf(err))
		})
	}

	ic, err := f.svc.Create(ctx, CreateParams{ActorID: f.owner.ID, TenantID: f.tenant.ID, MaxUses: 5})
	require.NoError(t, err)
	assert.Equal(t, "member", ic.Role)
	assert.Equal(t, 0, ic.Uses)
}

func TestCreateRequiresClearance(t *testing.T) {
	ctx := context.Background()
	f := setup(t, Config{})
	coord := testfixtures.User(t, f.store, "coord")
	testfixtures.Member(t, f.store, f.tenant, coord, "coordinator", clearance.Yellow)

	_, err := f.svc.Create(ctx, CreateParams{ActorID: coord.ID, TenantID: f.tenant.ID, MaxUses: 1})
	assert.ErrorIs(t, err, apperr.ErrInsufficientClearance)

	outsider := testfixtures.User(t, f.store, "outsider")
	_, err = f.svc.Create(ctx, CreateParams{ActorID: outsider.ID, TenantID: f.tenant.ID, MaxUses: 1})
	assert.ErrorIs(t, err, apperr.ErrNotMember)
}

func TestCreateRetriesOnCollision(t *testing.T) {
	a := []byte{0, 0, 0, 0, 0, 0}
	b := []byte{1, 1, 1, 1, 1, 1}
	random := bytes.NewReader(append(append(append([]byte{}, a...), a...), b...))
	f := setup(t, Config{}, WithRandom(random))

	first := f.create(t, CreateParams{})
	second := f.create(t, CreateParams{})
	assert.Equal(t, "222222", first.Code)
	assert.Equal(t, "333333", second.Code)
}

func TestCreateEnforcesCodeLimit(t *testing.T) {
	ctx := context.Background()
	f := setup(t, Config{MaxCodesPerTenant: 2})
	f.create(t, CreateParams{})
	f.create(t, CreateParams{})

	_, err := f.svc.Create(ctx, CreateParams{ActorID: f.owner.ID, TenantID: f.tenant.ID, MaxUses: 1})
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	f := setup(t, Config{})
	ic := f.create(t, CreateParams{MaxUses: 2, ExpiresAt: ptr(f.now.Add(time.Hour))})

	v, err := f.svc.Validate(ctx, strings.ToLower(ic.Code)+" ")
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, f.tenant.ID, v.Tenant.ID)

	v, err = f.svc.Validate(ctx, "ZZZZZZ")
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, ReasonNotFound, v.Reason)

	v, err = f.svc.Validate(ctx, "not a code")
	require.NoError(t, err)
	assert.False(t, v.Valid)

	f.now = f.now.Add(2 * time.Hour)
	v, err = f.svc.Validate(ctx, ic.Code)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, ReasonExpired, v.Reason)

	// Validate never consumes.
	got, err := f.store.Repos().Invites.GetByCode(ctx, ic.Code)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Uses)
}

func TestRedeemAdmitsWithRoleDefaults(t *testing.T) {
	ctx := context.Background()
	f := setup(t, Config{})
	general := testfixtures.Channel(t, f.store, f.tenant, "general", clearance.Infrared, f.owner)
	backstage := testfixtures.Channel(t, f.store, f.tenant, "backstage", clearance.Green, f.owner)
	ic := f.create(t, CreateParams{Role: "coordinator"})
	guest := testfixtures.User(t, f.store, "guest")

	m, err := f.svc.Redeem(ctx, strings.ToLower(ic.Code), guest.ID)
	require.NoError(t, err)
	assert.Equal(t, "coordinator", m.Role)
	assert.Equal(t, clearance.Yellow, m.ClearanceLevel)

	in, err := f.store.Repos().ChannelMembers.IsMember(ctx, general.ID, guest.ID)
	require.NoError(t, err)
	assert.True(t, in)
	in, err = f.store.Repos().ChannelMembers.IsMember(ctx, backstage.ID, guest.ID)
	require.NoError(t, err)
	assert.False(t, in, "channel above the new member's clearance")
}

func TestRedeemSingleUseUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	f := setup(t, Config{})
	ic := f.create(t, CreateParams{MaxUses: 1})

	const racers = 20
	users := make([]*models.User, racers)
	for i := range users {
		users[i] = testfixtures.User(t, f.store, "racer"+string(rune('a'+i)))
	}

	var wg sync.WaitGroup
	var ok, rejected atomic.Int32
	for _, u := range users {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := f.svc.Redeem(ctx, ic.Code, id)
			switch {
			case err == nil:
				ok.Add(1)
			case apperr.KindOf(err) == apperr.Validation:
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(u.ID)
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(racers-1), rejected.Load())

	got, err := f.store.Repos().Invites.GetByCode(ctx, ic.Code)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Uses)

	n, err := f.store.Repos().Memberships.CountByTenant(ctx, f.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRedeemMultiUse(t *testing.T) {
	ctx := context.Background()
	f := setup(t, Config{})
	ic := f.create(t, CreateParams{MaxUses: 3})

	for _, name := range []string{"a", "b", "c"} {
		u := testfixtures.User(t, f.store, name)
		_, err := f.svc.Redeem(ctx, ic.Code, u.ID)
		require.NoError(t, err, name)
	}

	fourth := testfixtures.User(t, f.store, "d")
	_, err := f.svc.Redeem(ctx, ic.Code, fourth.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidOrExpiredCode)
}

func TestRedeemExpired(t *testing.T) {
	ctx := context.Background()
	f := setup(t, Config{})
	ic := f.create(t, CreateParams{MaxUses: 10, ExpiresAt: ptr(f.now.Add(time.Hour))})
	u := testfixtures.User(t, f.store, "late")

	f.now = f.now.Add(time.Hour + time.Second)
	_, err := f.svc.Redeem(ctx, ic.Code, u.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidOrExpiredCode)

	got, err := f.store.Repos().Invites.GetByCode(ctx, ic.Code)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Uses)
}

func TestRedeemByExistingMemberDoesNotBurnAUse(t *testing.T) {
	ctx := context.Background()
	f := setup(t, Config{})
	ic := f.create(t, CreateParams{MaxUses: 2})

	_, err := f.svc.Redeem(ctx, ic.Code, f.owner.ID)
	assert.ErrorIs(t, err, apperr.ErrAlreadyMember)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	got, err := f.store.Repos().Invites.GetByCode(ctx, ic.Code)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Uses)
}

func TestRedeemVolunteerCodeRegistersVolunteer(t *testing.T) {
	ctx := context.Background()
	f := setup(t, Config{})
	ic := f.create(t, CreateParams{Role: "volunteer", ModuleID: ptr(modules.Volunteers)})
	u := testfixtures.User(t, f.store, "helper")

	_, err := f.svc.Redeem(ctx, ic.Code, u.ID)
	require.NoError(t, err)

	v, err := f.store.Repos().Volunteers.Get(ctx, f.tenant.ID, u.ID)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, models.VolunteerPending, v.Status)
}

func TestRedeemEnforcesMemberLimit(t *testing.T) {
	ctx := context.Background()
	f := setup(t, Config{MaxMembersPerTenant: 1})
	ic := f.create(t, CreateParams{MaxUses: 5})
	u := testfixtures.User(t, f.store, "extra")

	_, err := f.svc.Redeem(ctx, ic.Code, u.ID)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	got, err := f.store.Repos().Invites.GetByCode(ctx, ic.Code)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Uses)
}

func TestConcurrentRedemptionsRespectMemberLimit(t *testing.T) {
	ctx := context.Background()
	f := setup(t, Config{MaxMembersPerTenant: 3})

	// Separate codes, so only the member limit stands between them.
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		ic := f.create(t, CreateParams{})
		u := testfixtures.User(t, f.store, "guest-"+string(rune('a'+i)))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Redeem(ctx, ic.Code, u.ID); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), wins.Load())
	n, err := f.store.Repos().Memberships.CountByTenant(ctx, f.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestListAndJoinURL(t *testing.T) {
	ctx := context.Background()
	f := setup(t, Config{PublicBaseURL: "https://festivo.example/"})
	ic := f.create(t, CreateParams{})

	codes, err := f.svc.List(ctx, f.owner.ID, f.tenant.ID)
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.Equal(t, "https://festivo.example/join/"+ic.Code, f.svc.JoinURL(ic.Code))
}

func TestRedeemAnnouncesNewMember(t *testing.T) {
	ctx := context.Background()
	bus := realtime.NewLocalBus()
	f := setup(t, Config{}, WithPublisher(bus))

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := bus.Subscribe(subCtx, f.tenant.ID)
	require.NoError(t, err)

	ic := f.create(t, CreateParams{})
	newcomer := testfixtures.User(t, f.store, "newcomer")
	_, err = f.svc.Redeem(ctx, ic.Code, newcomer.ID)
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, realtime.EventMemberJoined, ev.Type)
		assert.Contains(t, string(ev.Data), newcomer.ID.String())
	case <-time.After(time.Second):
		t.Fatal("no member.joined event")
	}
}
