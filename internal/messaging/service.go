package messaging

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lalith-99/festivo/internal/apperr"
	"github.com/lalith-99/festivo/internal/clearance"
	"github.com/lalith-99/festivo/internal/membership"
	"github.com/lalith-99/festivo/internal/metrics"
	"github.com/lalith-99/festivo/internal/models"
	"github.com/lalith-99/festivo/internal/realtime"
	"github.com/lalith-99/festivo/internal/repository"
	"go.uber.org/zap"
)

// Pagination bounds for ListMessages.
const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// MaxBodyLength caps a message body, counted in runes.
const MaxBodyLength = 4000

var channelNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,79}$`)

// Service is the channel and message API on top of the repositories.
//
// Every call starts with the membership guard. The messaging module is
// core, so its RED minimum applies to every tenant.
type Service struct {
	store     repository.Store
	authority *membership.Authority
	publisher realtime.Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(store repository.Store, authority *membership.Authority, publisher realtime.Publisher, m *metrics.Metrics, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = realtime.NopPublisher{}
	}
	return &Service{
		store:     store,
		authority: authority,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// visibleChannel loads a channel the actor is allowed to see. Channels
// above the actor's clearance and private channels the actor is not in
// look the same as missing ones.
func (s *Service) visibleChannel(ctx context.Context, actor *membership.Actor, channelID uuid.UUID) (*models.Channel, bool, error) {
	r := s.store.Repos()
	ch, err := r.Channels.GetByID(ctx, actor.TenantID, channelID)
	if err != nil {
		return nil, false, fmt.Errorf("get channel: %w", err)
	}
	if ch == nil || !clearance.HasAccess(actor.Level, ch.MinClearance) {
		return nil, false, apperr.NotFoundf("channel not found")
	}
	isMember, err := r.ChannelMembers.IsMember(ctx, ch.ID, actor.UserID)
	if err != nil {
		return nil, false, fmt.Errorf("check channel membership: %w", err)
	}
	if ch.IsPrivate && !isMember && !actor.SuperAdmin {
		return nil, false, apperr.NotFoundf("channel not found")
	}
	return ch, isMember, nil
}

type SendParams struct {
	ActorID   uuid.UUID
	TenantID  uuid.UUID
	ChannelID uuid.UUID
	Body      string
}

// Send stores a message and bumps every other member's unread counter
// in the same transaction, then publishes it to connected clients.
func (s *Service) Send(ctx context.Context, p SendParams) (*models.Message, error) {
	body := strings.TrimSpace(p.Body)
	if body == "" {
		return nil, apperr.Validationf("message body is required")
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return nil, apperr.Validationf("message body exceeds %d characters", MaxBodyLength)
	}

	actor, err := s.authority.RequirePermission(ctx, p.ActorID, p.TenantID, clearance.Red, membership.PermSendMessages)
	if err != nil {
		return nil, err
	}
	ch, isMember, err := s.visibleChannel(ctx, actor, p.ChannelID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, apperr.Deniedf("join the channel before posting")
	}

	handles := ExtractMentions(body)
	now := s.now()

	var msg *models.Message
	var fanOut FanOut
	err = s.store.InTx(ctx, func(r repository.Repositories) error {
		created, err := r.Messages.Create(ctx, models.Message{
			ChannelID: ch.ID,
			TenantID:  ch.TenantID,
			SenderID:  actor.UserID,
			Body:      body,
			Mentions:  handles,
			CreatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		fanOut, err = OnMessageSent(ctx, r, actor.UserID, ch.ID, ch.TenantID, handles, now)
		if err != nil {
			return err
		}
		msg = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MessageSent(fanOut.Mentioned)
	recipients := append(fanOut.Recipients, actor.UserID)
	s.publish(ctx, realtime.EventMessageCreated, ch.TenantID, ch.MinClearance, recipients, msg)
	return msg, nil
}

func (s *Service) publish(ctx context.Context, eventType string, tenantID uuid.UUID, minLevel clearance.Level, recipients []uuid.UUID, data any) {
	ev, err := realtime.NewEvent(eventType, tenantID, minLevel, recipients, data)
	if err == nil {
		err = s.publisher.Publish(ctx, ev)
	}
	if err != nil {
		s.logger.Warn("publish event failed",
			zap.String("type", eventType),
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
	}
}

// ListMessages pages backwards through a channel: newest first, starting
// below the before cursor (0 = latest). limit 0 means DefaultPageSize.
func (s *Service) ListMessages(ctx context.Context, actorID, tenantID, channelID uuid.UUID, before int64, limit int) ([]models.Message, error) {
	if before < 0 {
		return nil, apperr.Validationf("before must be a positive message id")
	}
	switch {
	case limit == 0:
		limit = DefaultPageSize
	case limit < 0:
		return nil, apperr.Validationf("limit must be positive")
	case limit > MaxPageSize:
		limit = MaxPageSize
	}

	actor, err := s.authority.RequireMember(ctx, actorID, tenantID, clearance.Red)
	if err != nil {
		return nil, err
	}
	ch, _, err := s.visibleChannel(ctx, actor, channelID)
	if err != nil {
		return nil, err
	}

	msgs, err := s.store.Repos().Messages.ListByChannel(ctx, tenantID, ch.ID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

type CreateChannelParams struct {
	ActorID   uuid.UUID
	TenantID  uuid.UUID
	Name      string
	IsPrivate bool
	// MinClearance defaults to INFRARED.
	MinClearance *int
}

// NormalizeChannelName lower-cases and trims a channel name.
func NormalizeChannelName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// CreateChannel creates a channel with the creator as its first member.
// A channel cannot require more clearance than its creator holds.
func (s *Service) CreateChannel(ctx context.Context, p CreateChannelParams) (*models.Channel, error) {
	name := NormalizeChannelName(p.Name)
	if !channelNamePattern.MatchString(name) {
		return nil, apperr.Validationf("channel name must be 1-80 lowercase letters, digits, '-' or '_'")
	}
	minLevel := clearance.Infrared
	if p.MinClearance != nil {
		if !clearance.IsValid(*p.MinClearance) {
			return nil, apperr.ErrInvalidClearance
		}
		minLevel = clearance.Level(*p.MinClearance)
	}

	actor, err := s.authority.RequirePermission(ctx, p.ActorID, p.TenantID, clearance.Yellow, membership.PermManageChannels)
	if err != nil {
		return nil, err
	}
	if !actor.SuperAdmin && minLevel > actor.Level {
		return nil, apperr.ErrInsufficientClearance
	}

	var created *models.Channel
	err = s.store.InTx(ctx, func(r repository.Repositories) error {
		creator := actor.UserID
		ch, err := r.Channels.Create(ctx, models.Channel{
			TenantID:     p.TenantID,
			Name:         name,
			IsPrivate:    p.IsPrivate,
			MinClearance: minLevel,
			CreatedBy:    &creator,
		})
		if errors.Is(err, repository.ErrConflict) {
			return apperr.Conflictf("channel %q already exists", name)
		}
		if err != nil {
			return fmt.Errorf("create channel: %w", err)
		}
		if err := r.ChannelMembers.AddMember(ctx, ch.ID, actor.UserID, "owner"); err != nil {
			return fmt.Errorf("add creator: %w", err)
		}
		created = ch
		return nil
	})
	if err != nil {
		return nil, err
	}

	var recipients []uuid.UUID
	if created.IsPrivate {
		recipients = []uuid.UUID{actor.UserID}
	}
	s.publish(ctx, realtime.EventChannelCreated, created.TenantID, created.MinClearance, recipients, created)
	s.logger.Info("channel created",
		zap.String("tenant_id", created.TenantID.String()),
		zap.String("channel", created.Name),
	)
	return created, nil
}

// ChannelView is a channel as one member sees it.
type ChannelView struct {
	models.Channel
	Joined bool `json:"joined"`
}

// ListChannels returns the channels the caller can see: public channels
// within their clearance and private channels they belong to.
func (s *Service) ListChannels(ctx context.Context, actorID, tenantID uuid.UUID) ([]ChannelView, error) {
	actor, err := s.authority.RequireMember(ctx, actorID, tenantID, clearance.Red)
	if err != nil {
		return nil, err
	}
	r := s.store.Repos()
	channels, err := r.Channels.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}

	out := make([]ChannelView, 0, len(channels))
	for _, ch := range channels {
		if !clearance.HasAccess(actor.Level, ch.MinClearance) {
			continue
		}
		joined, err := r.ChannelMembers.IsMember(ctx, ch.ID, actorID)
		if err != nil {
			return nil, fmt.Errorf("check channel membership: %w", err)
		}
		if ch.IsPrivate && !joined && !actor.SuperAdmin {
			continue
		}
		out = append(out, ChannelView{Channel: ch, Joined: joined})
	}
	return out, nil
}

// Join adds the caller to a public channel. Joining twice is a no-op.
func (s *Service) Join(ctx context.Context, actorID, tenantID, channelID uuid.UUID) error {
	actor, err := s.authority.RequireMember(ctx, actorID, tenantID, clearance.Red)
	if err != nil {
		return err
	}
	ch, isMember, err := s.visibleChannel(ctx, actor, channelID)
	if err != nil {
		return err
	}
	if isMember {
		return nil
	}
	if ch.IsPrivate {
		return apperr.Deniedf("private channels are invite-only")
	}
	if err := s.store.Repos().ChannelMembers.AddMember(ctx, ch.ID, actorID, "member"); err != nil {
		return fmt.Errorf("join channel: %w", err)
	}
	return nil
}

// Leave removes the caller from a channel.
func (s *Service) Leave(ctx context.Context, actorID, tenantID, channelID uuid.UUID) error {
	actor, err := s.authority.RequireMember(ctx, actorID, tenantID, clearance.Infrared)
	if err != nil {
		return err
	}
	ch, err := s.store.Repos().Channels.GetByID(ctx, actor.TenantID, channelID)
	if err != nil {
		return fmt.Errorf("get channel: %w", err)
	}
	if ch == nil {
		return apperr.NotFoundf("channel not found")
	}
	if err := s.store.Repos().ChannelMembers.RemoveMember(ctx, ch.ID, actorID); err != nil {
		return fmt.Errorf("leave channel: %w", err)
	}
	return nil
}

// AddMember puts another tenant member into a channel, which is how
// people get into private channels.
func (s *Service) AddMember(ctx context.Context, actorID, tenantID, channelID, userID uuid.UUID) error {
	actor, err := s.authority.RequirePermission(ctx, actorID, tenantID, clearance.Yellow, membership.PermManageChannels)
	if err != nil {
		return err
	}
	ch, _, err := s.visibleChannel(ctx, actor, channelID)
	if err != nil {
		return err
	}
	target, err := s.authority.Resolve(ctx, userID, tenantID)
	if err != nil {
		return err
	}
	if target.Membership == nil && !target.SuperAdmin {
		return apperr.NotFoundf("member not found")
	}
	if !clearance.HasAccess(target.Level, ch.MinClearance) {
		return apperr.Validationf("member's clearance is below the channel's minimum")
	}
	if err := s.store.Repos().ChannelMembers.AddMember(ctx, ch.ID, userID, "member"); err != nil {
		return fmt.Errorf("add channel member: %w", err)
	}
	return nil
}

// MarkRead zeroes the caller's counters for a channel.
func (s *Service) MarkRead(ctx context.Context, actorID, tenantID, channelID uuid.UUID) error {
	if _, err := s.authority.RequireMember(ctx, actorID, tenantID, clearance.Infrared); err != nil {
		return err
	}
	r := s.store.Repos()
	ch, err := r.Channels.GetByID(ctx, tenantID, channelID)
	if err != nil {
		return fmt.Errorf("get channel: %w", err)
	}
	if ch == nil {
		return apperr.NotFoundf("channel not found")
	}
	if err := r.Unread.Reset(ctx, actorID, ch.ID); err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}
	return nil
}

// Unread returns the caller's counters in a tenant, most recent first.
func (s *Service) Unread(ctx context.Context, actorID, tenantID uuid.UUID) ([]models.UnreadCounter, error) {
	if _, err := s.authority.RequireMember(ctx, actorID, tenantID, clearance.Infrared); err != nil {
		return nil, err
	}
	counters, err := s.store.Repos().Unread.ListForUser(ctx, tenantID, actorID)
	if err != nil {
		return nil, fmt.Errorf("list unread: %w", err)
	}
	return counters, nil
}
