package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/lalith-99/festivo/internal/models"
	"github.com/lalith-99/festivo/internal/repository"
)

type channelRow struct {
	ID       string
	TenantID string
	Name     string
	Channel  models.Channel
}

type channelStore struct{ c *conn }

func (s *channelStore) insertNew(txn *memdb.Txn, ch models.Channel) (models.Channel, error) {
	ch.ID = uuid.New()
	ch.CreatedAt = time.Now().UTC()
	err := insert(txn, tableChannels, &channelRow{
		ID:       ch.ID.String(),
		TenantID: ch.TenantID.String(),
		Name:     ch.Name,
		Channel:  ch,
	})
	return ch, err
}

func (s *channelStore) Create(ctx context.Context, ch models.Channel) (*models.Channel, error) {
	var out models.Channel
	err := s.c.write(func(txn *memdb.Txn) error {
		existing, err := first[channelRow](txn, tableChannels, "tenant_name", ch.TenantID.String(), ch.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("insert channel: %w", repository.ErrConflict)
		}
		out, err = s.insertNew(txn, ch)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *channelStore) CreateIfAbsent(ctx context.Context, ch models.Channel) (*models.Channel, error) {
	var out models.Channel
	err := s.c.write(func(txn *memdb.Txn) error {
		existing, err := first[channelRow](txn, tableChannels, "tenant_name", ch.TenantID.String(), ch.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			out = existing.Channel
			return nil
		}
		out, err = s.insertNew(txn, ch)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *channelStore) GetByID(ctx context.Context, tenantID, channelID uuid.UUID) (*models.Channel, error) {
	var out *models.Channel
	err := s.c.read(func(txn *memdb.Txn) error {
		row, err := first[channelRow](txn, tableChannels, idIndex, channelID.String())
		if err != nil || row == nil || row.TenantID != tenantID.String() {
			return err
		}
		ch := row.Channel
		out = &ch
		return nil
	})
	return out, err
}

func (s *channelStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Channel, error) {
	channels := make([]models.Channel, 0)
	err := s.c.read(func(txn *memdb.Txn) error {
		rows, err := all[channelRow](txn, tableChannels, "tenant", tenantID.String())
		if err != nil {
			return err
		}
		for _, r := range rows {
			channels = append(channels, r.Channel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(channels, func(a, b models.Channel) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return channels, nil
}

type channelMemberRow struct {
	ChannelID string
	UserID    string
	Member    models.ChannelMember
}

type channelMemberStore struct{ c *conn }

func addMember(txn *memdb.Txn, channelID, userID uuid.UUID, role string, at time.Time) error {
	existing, err := first[channelMemberRow](txn, tableChannelMembers, idIndex, channelID.String(), userID.String())
	if err != nil || existing != nil {
		return err
	}
	return insert(txn, tableChannelMembers, &channelMemberRow{
		ChannelID: channelID.String(),
		UserID:    userID.String(),
		Member: models.ChannelMember{
			ChannelID: channelID,
			UserID:    userID,
			Role:      role,
			JoinedAt:  at,
		},
	})
}

func (s *channelMemberStore) AddMember(ctx context.Context, channelID, userID uuid.UUID, role string) error {
	return s.c.write(func(txn *memdb.Txn) error {
		return addMember(txn, channelID, userID, role, time.Now().UTC())
	})
}

func (s *channelMemberStore) AddMembers(ctx context.Context, channelID uuid.UUID, userIDs []uuid.UUID, role string) error {
	if len(userIDs) == 0 {
		return nil
	}
	return s.c.write(func(txn *memdb.Txn) error {
		now := time.Now().UTC()
		for _, id := range userIDs {
			if err := addMember(txn, channelID, id, role, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *channelMemberStore) RemoveMember(ctx context.Context, channelID, userID uuid.UUID) error {
	return s.c.write(func(txn *memdb.Txn) error {
		row, err := first[channelMemberRow](txn, tableChannelMembers, idIndex, channelID.String(), userID.String())
		if err != nil || row == nil {
			return err
		}
		if err := txn.Delete(tableChannelMembers, row); err != nil {
			return fmt.Errorf("remove member: %w", err)
		}
		return nil
	})
}

func (s *channelMemberStore) RemoveFromTenant(ctx context.Context, tenantID, userID uuid.UUID) error {
	return s.c.write(func(txn *memdb.Txn) error {
		rows, err := all[channelMemberRow](txn, tableChannelMembers, "user", userID.String())
		if err != nil {
			return err
		}
		for _, r := range rows {
			ch, err := first[channelRow](txn, tableChannels, idIndex, r.ChannelID)
			if err != nil {
				return err
			}
			if ch == nil || ch.TenantID != tenantID.String() {
				continue
			}
			if err := txn.Delete(tableChannelMembers, r); err != nil {
				return fmt.Errorf("remove member from tenant channels: %w", err)
			}
		}
		return nil
	})
}

func (s *channelMemberStore) ListMembers(ctx context.Context, channelID uuid.UUID) ([]models.ChannelMember, error) {
	members := make([]models.ChannelMember, 0)
	err := s.c.read(func(txn *memdb.Txn) error {
		rows, err := all[channelMemberRow](txn, tableChannelMembers, "channel", channelID.String())
		if err != nil {
			return err
		}
		for _, r := range rows {
			members = append(members, r.Member)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(members, func(a, b models.ChannelMember) int {
		return a.JoinedAt.Compare(b.JoinedAt)
	})
	return members, nil
}

func (s *channelMemberStore) IsMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := s.c.read(func(txn *memdb.Txn) error {
		row, err := first[channelMemberRow](txn, tableChannelMembers, idIndex, channelID.String(), userID.String())
		ok = row != nil
		return err
	})
	return ok, err
}

type messageRow struct {
	ID        string
	ChannelID string
	Message   models.Message
}

type messageStore struct{ c *conn }

func (s *messageStore) Create(ctx context.Context, msg models.Message) (*models.Message, error) {
	out := msg
	out.ID = s.c.store.messageSeq.Add(1)
	if out.Mentions == nil {
		out.Mentions = []string{}
	}
	err := s.c.write(func(txn *memdb.Txn) error {
		return insert(txn, tableMessages, &messageRow{
			ID:        strconv.FormatInt(out.ID, 10),
			ChannelID: out.ChannelID.String(),
			Message:   out,
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *messageStore) ListByChannel(ctx context.Context, tenantID, channelID uuid.UUID, before int64, limit int) ([]models.Message, error) {
	messages := make([]models.Message, 0)
	err := s.c.read(func(txn *memdb.Txn) error {
		rows, err := all[messageRow](txn, tableMessages, "channel", channelID.String())
		if err != nil {
			return err
		}
		for _, r := range rows {
			if r.Message.TenantID != tenantID {
				continue
			}
			if before > 0 && r.Message.ID >= before {
				continue
			}
			messages = append(messages, r.Message)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(messages, func(a, b models.Message) int {
		return cmp.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

type unreadRow struct {
	UserID    string
	ChannelID string
	TenantID  string
	Counter   models.UnreadCounter
}

type unreadStore struct{ c *conn }

func (s *unreadStore) Increment(ctx context.Context, tenantID, channelID uuid.UUID, deltas []repository.CounterDelta, at time.Time) error {
	if len(deltas) == 0 {
		return nil
	}
	return s.c.write(func(txn *memdb.Txn) error {
		for _, d := range deltas {
			row, err := first[unreadRow](txn, tableUnread, idIndex, d.UserID.String(), channelID.String())
			if err != nil {
				return err
			}
			c := models.UnreadCounter{UserID: d.UserID, ChannelID: channelID, TenantID: tenantID}
			if row != nil {
				c = row.Counter
			}
			c.Count++
			if d.Mentioned {
				c.MentionCount++
			}
			if at.After(c.LastMessageAt) {
				c.LastMessageAt = at
			}
			err = insert(txn, tableUnread, &unreadRow{
				UserID:    d.UserID.String(),
				ChannelID: channelID.String(),
				TenantID:  c.TenantID.String(),
				Counter:   c,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *unreadStore) Reset(ctx context.Context, userID, channelID uuid.UUID) error {
	return s.c.write(func(txn *memdb.Txn) error {
		row, err := first[unreadRow](txn, tableUnread, idIndex, userID.String(), channelID.String())
		if err != nil || row == nil {
			return err
		}
		c := row.Counter
		c.Count = 0
		c.MentionCount = 0
		return insert(txn, tableUnread, &unreadRow{
			UserID:    row.UserID,
			ChannelID: row.ChannelID,
			TenantID:  row.TenantID,
			Counter:   c,
		})
	})
}

func (s *unreadStore) Get(ctx context.Context, userID, channelID uuid.UUID) (*models.UnreadCounter, error) {
	var out *models.UnreadCounter
	err := s.c.read(func(txn *memdb.Txn) error {
		row, err := first[unreadRow](txn, tableUnread, idIndex, userID.String(), channelID.String())
		if err != nil || row == nil {
			return err
		}
		c := row.Counter
		out = &c
		return nil
	})
	return out, err
}

func (s *unreadStore) ListForUser(ctx context.Context, tenantID, userID uuid.UUID) ([]models.UnreadCounter, error) {
	counters := make([]models.UnreadCounter, 0)
	err := s.c.read(func(txn *memdb.Txn) error {
		rows, err := all[unreadRow](txn, tableUnread, "tenant_user", tenantID.String(), userID.String())
		if err != nil {
			return err
		}
		for _, r := range rows {
			counters = append(counters, r.Counter)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(counters, func(a, b models.UnreadCounter) int {
		return b.LastMessageAt.Compare(a.LastMessageAt)
	})
	return counters, nil
}
