package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/festivo/internal/models"
)

type MessageStore struct {
	db DBTX
}

func NewMessageStore(db DBTX) *MessageStore {
	return &MessageStore{db: db}
}

const messageColumns = `id, channel_id, tenant_id, sender_id, body, mentions, created_at`

func (s *MessageStore) Create(ctx context.Context, msg models.Message) (*models.Message, error) {
	// bigserial id: Postgres generates it, RETURNING hands it back.
	query := `
		INSERT INTO messages (channel_id, tenant_id, sender_id, body, mentions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + messageColumns

	mentions := msg.Mentions
	if mentions == nil {
		mentions = []string{}
	}

	var out models.Message
	err := s.db.QueryRow(ctx, query, msg.ChannelID, msg.TenantID, msg.SenderID, msg.Body, mentions, msg.CreatedAt).Scan(
		&out.ID,
		&out.ChannelID,
		&out.TenantID,
		&out.SenderID,
		&out.Body,
		&out.Mentions,
		&out.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &out, nil
}

func (s *MessageStore) ListByChannel(ctx context.Context, tenantID uuid.UUID, channelID uuid.UUID, before int64, limit int) ([]models.Message, error) {
	// Cursor-based pagination:
	//   before=0  → first page (newest messages).
	//   before=42 → messages older than ID 42.
	// Both paths ORDER BY id DESC; id is monotonic so it matches time order.
	var query string
	var args []any

	if before > 0 {
		query = `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE channel_id = $1 AND tenant_id = $2 AND id < $3
			ORDER BY id DESC
			LIMIT $4`
		args = []any{channelID, tenantID, before, limit}
	} else {
		query = `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE channel_id = $1 AND tenant_id = $2
			ORDER BY id DESC
			LIMIT $3`
		args = []any{channelID, tenantID, limit}
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.ChannelID,
			&msg.TenantID,
			&msg.SenderID,
			&msg.Body,
			&msg.Mentions,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}
