package messaging

import (
	"context"
	"fmt"
	"sync"
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
	store  *memory.Store
	svc    *Service
	pub    *recordingPublisher
	tenant *models.Tenant
	owner  *models.User
	alice  *models.User
	bob    *models.User
	guest  *models.User
	ch     *models.Channel
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := testfixtures.Store(t)
	mods := modules.NewManager(store, nil, nil, zap.NewNop())
	auth := membership.NewAuthority(store, mods, zap.NewNop())
	pub := &recordingPublisher{}

	f := &fixture{store: store, pub: pub}
	f.owner = testfixtures.User(t, store, "owner")
	f.alice = testfixtures.User(t, store, "alice")
	f.bob = testfixtures.User(t, store, "bob")
	f.guest = testfixtures.User(t, store, "guest")
	f.tenant = testfixtures.Tenant(t, store, "lowlands", f.owner)
	testfixtures.Member(t, store, f.tenant, f.owner, "owner", clearance.Blue)
	testfixtures.Member(t, store, f.tenant, f.alice, "member", clearance.Red)
	testfixtures.Member(t, store, f.tenant, f.bob, "member", clearance.Red)
	testfixtures.Member(t, store, f.tenant, f.guest, "guest", clearance.Infrared)
	f.ch = testfixtures.Channel(t, store, f.tenant, "general", clearance.Infrared, f.owner, f.alice, f.bob)
	f.svc = NewService(store, auth, pub, nil, zap.NewNop())
	return f
}

func (f *fixture) send(t *testing.T, sender *models.User, body string) *models.Message {
	t.Helper()
	msg, err := f.svc.Send(context.Background(), SendParams{
		ActorID: sender.ID, TenantID: f.tenant.ID, ChannelID: f.ch.ID, Body: body,
	})
	require.NoError(t, err)
	return msg
}

func (f *fixture) unread(t *testing.T, user *models.User) models.UnreadCounter {
	t.Helper()
	c, err := f.store.Repos().Unread.Get(context.Background(), user.ID, f.ch.ID)
	require.NoError(t, err)
	if c == nil {
		return models.UnreadCounter{}
	}
	return *c
}

func TestSendBumpsOtherMembersOnly(t *testing.T) {
	f := setup(t)

	msg := f.send(t, f.owner, "hello @alice")
	assert.Equal(t, []string{"alice"}, msg.Mentions)

	assert.Equal(t, 0, f.unread(t, f.owner).Count)
	a := f.unread(t, f.alice)
	assert.Equal(t, 1, a.Count)
	assert.Equal(t, 1, a.MentionCount)
	b := f.unread(t, f.bob)
	assert.Equal(t, 1, b.Count)
	assert.Equal(t, 0, b.MentionCount)

	f.send(t, f.bob, "thanks @ALICE and @nobody")
	a = f.unread(t, f.alice)
	assert.Equal(t, 2, a.Count)
	assert.Equal(t, 2, a.MentionCount)
	assert.Equal(t, 1, f.unread(t, f.owner).Count)
	assert.Equal(t, 1, f.unread(t, f.bob).Count)
}

func TestSendMentioningSelfDoesNotCount(t *testing.T) {
	f := setup(t)
	f.send(t, f.alice, "note to @alice")
	assert.Equal(t, 0, f.unread(t, f.alice).Count)
}

func TestConcurrentSendsCountEveryMessage(t *testing.T) {
	f := setup(t)
	const senders = 10

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := f.owner
			if i%2 == 1 {
				sender = f.bob
			}
			_, err := f.svc.Send(context.Background(), SendParams{
				ActorID: sender.ID, TenantID: f.tenant.ID, ChannelID: f.ch.ID,
				Body: fmt.Sprintf("msg %d for @alice", i),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	a := f.unread(t, f.alice)
	assert.Equal(t, senders, a.Count)
	assert.Equal(t, senders, a.MentionCount)
}

func TestSendPublishesToChannelMembers(t *testing.T) {
	f := setup(t)
	f.send(t, f.alice, "hi")

	require.Len(t, f.pub.events, 1)
	ev := f.pub.events[0]
	assert.Equal(t, realtime.EventMessageCreated, ev.Type)
	assert.Equal(t, f.tenant.ID, ev.TenantID)
	assert.ElementsMatch(t, []uuid.UUID{f.owner.ID, f.alice.ID, f.bob.ID}, ev.Recipients)
}

func TestSendGuards(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	outsider := testfixtures.User(t, f.store, "outsider")
	carol := testfixtures.User(t, f.store, "carol")
	testfixtures.Member(t, f.store, f.tenant, carol, "member", clearance.Red)

	tests := []struct {
		name  string
		actor uuid.UUID
		body  string
		kind  apperr.Kind
	}{
		{"empty body", f.alice.ID, "   ", apperr.Validation},
		{"not a tenant member", outsider.ID, "hi", apperr.AuthorizationDenied},
		{"guest below messaging clearance", f.guest.ID, "hi", apperr.AuthorizationDenied},
		{"not in channel", carol.ID, "hi", apperr.AuthorizationDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Send(ctx, SendParams{ActorID: tt.actor, TenantID: f.tenant.ID, ChannelID: f.ch.ID, Body: tt.body})
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}

	_, err := f.svc.Send(ctx, SendParams{ActorID: f.alice.ID, TenantID: f.tenant.ID, ChannelID: uuid.New(), Body: "hi"})
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestListMessagesPaginates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, f.send(t, f.owner, fmt.Sprintf("m%d", i)).ID)
	}

	page, err := f.svc.ListMessages(ctx, f.alice.ID, f.tenant.ID, f.ch.ID, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[4], page[0].ID)
	assert.Equal(t, ids[3], page[1].ID)

	page, err = f.svc.ListMessages(ctx, f.alice.ID, f.tenant.ID, f.ch.ID, page[1].ID, 0)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, ids[0], page[2].ID)

	_, err = f.svc.ListMessages(ctx, f.alice.ID, f.tenant.ID, f.ch.ID, 0, -1)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestCreateChannel(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	level := int(clearance.Yellow)

	ch, err := f.svc.CreateChannel(ctx, CreateChannelParams{
		ActorID: f.owner.ID, TenantID: f.tenant.ID, Name: "  Stage-Crew ", IsPrivate: true, MinClearance: &level,
	})
	require.NoError(t, err)
	assert.Equal(t, "stage-crew", ch.Name)
	assert.Equal(t, clearance.Yellow, ch.MinClearance)

	joined, err := f.store.Repos().ChannelMembers.IsMember(ctx, ch.ID, f.owner.ID)
	require.NoError(t, err)
	assert.True(t, joined)

	_, err = f.svc.CreateChannel(ctx, CreateChannelParams{ActorID: f.owner.ID, TenantID: f.tenant.ID, Name: "stage-crew"})
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	_, err = f.svc.CreateChannel(ctx, CreateChannelParams{ActorID: f.owner.ID, TenantID: f.tenant.ID, Name: "bad name!"})
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	_, err = f.svc.CreateChannel(ctx, CreateChannelParams{ActorID: f.alice.ID, TenantID: f.tenant.ID, Name: "alice-room"})
	assert.ErrorIs(t, err, apperr.ErrInsufficientClearance)

	coord := testfixtures.User(t, f.store, "coord")
	testfixtures.Member(t, f.store, f.tenant, coord, "coordinator", clearance.Yellow)
	tooHigh := int(clearance.Green)
	_, err = f.svc.CreateChannel(ctx, CreateChannelParams{ActorID: coord.ID, TenantID: f.tenant.ID, Name: "finance-talk", MinClearance: &tooHigh})
	assert.ErrorIs(t, err, apperr.ErrInsufficientClearance)
}

func TestListChannelsFiltersByClearanceAndPrivacy(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	yellow := int(clearance.Yellow)
	_, err := f.svc.CreateChannel(ctx, CreateChannelParams{ActorID: f.owner.ID, TenantID: f.tenant.ID, Name: "crew", MinClearance: &yellow})
	require.NoError(t, err)
	_, err = f.svc.CreateChannel(ctx, CreateChannelParams{ActorID: f.owner.ID, TenantID: f.tenant.ID, Name: "secret", IsPrivate: true})
	require.NoError(t, err)

	names := func(views []ChannelView) []string {
		out := make([]string, 0, len(views))
		for _, v := range views {
			out = append(out, v.Name)
		}
		return out
	}

	ownerView, err := f.svc.ListChannels(ctx, f.owner.ID, f.tenant.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"general", "crew", "secret"}, names(ownerView))

	aliceView, err := f.svc.ListChannels(ctx, f.alice.ID, f.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"general"}, names(aliceView))
	assert.True(t, aliceView[0].Joined)
}

func TestJoinLeaveAndPrivateChannels(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	carol := testfixtures.User(t, f.store, "carol")
	testfixtures.Member(t, f.store, f.tenant, carol, "member", clearance.Red)

	require.NoError(t, f.svc.Join(ctx, carol.ID, f.tenant.ID, f.ch.ID))
	require.NoError(t, f.svc.Join(ctx, carol.ID, f.tenant.ID, f.ch.ID))
	in, err := f.store.Repos().ChannelMembers.IsMember(ctx, f.ch.ID, carol.ID)
	require.NoError(t, err)
	assert.True(t, in)

	require.NoError(t, f.svc.Leave(ctx, carol.ID, f.tenant.ID, f.ch.ID))
	in, err = f.store.Repos().ChannelMembers.IsMember(ctx, f.ch.ID, carol.ID)
	require.NoError(t, err)
	assert.False(t, in)

	secret, err := f.svc.CreateChannel(ctx, CreateChannelParams{ActorID: f.owner.ID, TenantID: f.tenant.ID, Name: "secret", IsPrivate: true})
	require.NoError(t, err)
	err = f.svc.Join(ctx, carol.ID, f.tenant.ID, secret.ID)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	require.NoError(t, f.svc.AddMember(ctx, f.owner.ID, f.tenant.ID, secret.ID, carol.ID))
	_, err = f.svc.Send(ctx, SendParams{ActorID: carol.ID, TenantID: f.tenant.ID, ChannelID: secret.ID, Body: "in!"})
	assert.NoError(t, err)

	err = f.svc.AddMember(ctx, f.owner.ID, f.tenant.ID, secret.ID, f.guest.ID)
	assert.NoError(t, err)
	yellow := int(clearance.Yellow)
	crew, err := f.svc.CreateChannel(ctx, CreateChannelParams{ActorID: f.owner.ID, TenantID: f.tenant.ID, Name: "crew", MinClearance: &yellow})
	require.NoError(t, err)
	err = f.svc.AddMember(ctx, f.owner.ID, f.tenant.ID, crew.ID, carol.ID)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestMarkReadAndUnread(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.send(t, f.owner, "one @alice")
	f.send(t, f.owner, "two")

	counters, err := f.svc.Unread(ctx, f.alice.ID, f.tenant.ID)
	require.NoError(t, err)
	require.Len(t, counters, 1)
	assert.Equal(t, 2, counters[0].Count)
	assert.Equal(t, 1, counters[0].MentionCount)

	require.NoError(t, f.svc.MarkRead(ctx, f.alice.ID, f.tenant.ID, f.ch.ID))
	c := f.unread(t, f.alice)
	assert.Equal(t, 0, c.Count)
	assert.Equal(t, 0, c.MentionCount)

	f.send(t, f.owner, "three")
	assert.Equal(t, 1, f.unread(t, f.alice).Count)
}

func TestOnMessageSentWithNoOtherMembers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	solo := testfixtures.Channel(t, f.store, f.tenant, "solo", clearance.Infrared, f.alice)

	out, err := OnMessageSent(ctx, f.store.Repos(), f.alice.ID, solo.ID, f.tenant.ID, []string{"alice"}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, out.Recipients)
	assert.Zero(t, out.Mentioned)
}
