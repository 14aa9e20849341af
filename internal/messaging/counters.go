package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/festivo/internal/repository"
)

// FanOut describes who a message was counted for.
type FanOut struct {
	Recipients []uuid.UUID
	Mentioned  int
}

// OnMessageSent bumps the unread counter of every channel member except
// the sender, and the mention counter of those whose handle is in
// handles. The bump itself is a single upsert for the whole channel.
//
// Pass the Repositories of the transaction that inserted the message so
// the message and its counters commit together.
func OnMessageSent(ctx context.Context, r repository.Repositories, senderID, channelID, tenantID uuid.UUID, handles []string, sentAt time.Time) (FanOut, error) {
	members, err := r.ChannelMembers.ListMembers(ctx, channelID)
	if err != nil {
		return FanOut{}, fmt.Errorf("list channel members: %w", err)
	}

	mentioned := make(map[uuid.UUID]bool)
	if len(handles) > 0 {
		ids, err := r.Users.IDsByHandles(ctx, handles)
		if err != nil {
			return FanOut{}, fmt.Errorf("resolve mentions: %w", err)
		}
		for _, id := range ids {
			mentioned[id] = true
		}
	}

	out := FanOut{Recipients: make([]uuid.UUID, 0, len(members))}
	deltas := make([]repository.CounterDelta, 0, len(members))
	for _, m := range members {
		if m.UserID == senderID {
			continue
		}
		d := repository.CounterDelta{UserID: m.UserID, Mentioned: mentioned[m.UserID]}
		if d.Mentioned {
			out.Mentioned++
		}
		deltas = append(deltas, d)
		out.Recipients = append(out.Recipients, m.UserID)
	}

	if err := r.Unread.Increment(ctx, tenantID, channelID, deltas, sentAt); err != nil {
		return FanOut{}, err
	}
	return out, nil
}
