package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/festivo/internal/models"
	"github.com/lalith-99/festivo/internal/repository"
)

type UnreadStore struct {
	db DBTX
}

func NewUnreadStore(db DBTX) *UnreadStore {
	return &UnreadStore{db: db}
}

const unreadColumns = `user_id, channel_id, tenant_id, count, mention_count, last_message_at`

func scanUnread(row pgx.Row) (*models.UnreadCounter, error) {
	var c models.UnreadCounter
	if err := row.Scan(&c.UserID, &c.ChannelID, &c.TenantID, &c.Count, &c.MentionCount, &c.LastMessageAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// Increment fans one message out to every recipient in one statement.
//
// Why ON CONFLICT DO UPDATE with "count + 1" instead of reading the
// counter and writing it back?
//   - Two messages sent to the same channel at the same instant would
//     both read count=4 and both write 5. One unread is lost.
//   - "count = unread_counters.count + 1" is evaluated under the row
//     lock, so concurrent sends serialize per (user, channel) and every
//     increment lands.
//
// lastMessageAt uses GREATEST so a late-committing older message cannot
// move it backwards. The numeric counters never depend on ordering.
//
// deltas must not repeat a user: Postgres refuses to update the same
// row twice in one INSERT ... ON CONFLICT.
func (s *UnreadStore) Increment(ctx context.Context, tenantID, channelID uuid.UUID, deltas []repository.CounterDelta, at time.Time) error {
	if len(deltas) == 0 {
		return nil
	}
	userIDs := make([]uuid.UUID, len(deltas))
	mentioned := make([]bool, len(deltas))
	for i, d := range deltas {
		userIDs[i] = d.UserID
		mentioned[i] = d.Mentioned
	}

	query := `
		INSERT INTO unread_counters (user_id, channel_id, tenant_id, count, mention_count, last_message_at)
		SELECT r.user_id, $1, $2, 1, CASE WHEN r.mentioned THEN 1 ELSE 0 END, $5
		FROM unnest($3::uuid[], $4::boolean[]) AS r(user_id, mentioned)
		ON CONFLICT (user_id, channel_id) DO UPDATE
		SET count = unread_counters.count + 1,
		    mention_count = unread_counters.mention_count + EXCLUDED.mention_count,
		    last_message_at = GREATEST(unread_counters.last_message_at, EXCLUDED.last_message_at)`

	if _, err := s.db.Exec(ctx, query, channelID, tenantID, userIDs, mentioned, at); err != nil {
		return fmt.Errorf("increment unread counters: %w", err)
	}
	return nil
}

func (s *UnreadStore) Reset(ctx context.Context, userID, channelID uuid.UUID) error {
	query := `
		UPDATE unread_counters
		SET count = 0, mention_count = 0
		WHERE user_id = $1 AND channel_id = $2`

	if _, err := s.db.Exec(ctx, query, userID, channelID); err != nil {
		return fmt.Errorf("reset unread counter: %w", err)
	}
	return nil
}

func (s *UnreadStore) Get(ctx context.Context, userID, channelID uuid.UUID) (*models.UnreadCounter, error) {
	query := `SELECT ` + unreadColumns + ` FROM unread_counters WHERE user_id = $1 AND channel_id = $2`
	c, err := scanUnread(s.db.QueryRow(ctx, query, userID, channelID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get unread counter: %w", err)
	}
	return c, nil
}

func (s *UnreadStore) ListForUser(ctx context.Context, tenantID, userID uuid.UUID) ([]models.UnreadCounter, error) {
	query := `
		SELECT ` + unreadColumns + `
		FROM unread_counters
		WHERE tenant_id = $1 AND user_id = $2
		ORDER BY last_message_at DESC`

	rows, err := s.db.Query(ctx, query, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("list unread counters: %w", err)
	}
	defer rows.Close()

	counters := make([]models.UnreadCounter, 0)
	for rows.Next() {
		c, err := scanUnread(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unread counter: %w", err)
		}
		counters = append(counters, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unread counters: %w", err)
	}
	return counters, nil
}
