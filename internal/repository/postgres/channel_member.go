package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/festivo/internal/models"
)

type ChannelMemberStore struct {
	db DBTX
}

func NewChannelMemberStore(db DBTX) *ChannelMemberStore {
	return &ChannelMemberStore{db: db}
}

func (s *ChannelMemberStore) AddMember(ctx context.Context, channelID uuid.UUID, userID uuid.UUID, role string) error {
	// ON CONFLICT DO NOTHING: joining a channel is idempotent. Calling it
	// twice succeeds silently instead of tripping the primary key.
	query := `
		INSERT INTO channel_members (channel_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (channel_id, user_id) DO NOTHING`

	_, err := s.db.Exec(ctx, query, channelID, userID, role)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// AddMembers enrolls a batch in a single round trip. unnest turns the
// uuid array into rows, so enrolling a 2,000-person festival crew into
// a new module channel is one statement, not 2,000.
func (s *ChannelMemberStore) AddMembers(ctx context.Context, channelID uuid.UUID, userIDs []uuid.UUID, role string) error {
	if len(userIDs) == 0 {
		return nil
	}
	query := `
		INSERT INTO channel_members (channel_id, user_id, role, joined_at)
		SELECT $1, u, $3, now()
		FROM unnest($2::uuid[]) AS u
		ON CONFLICT (channel_id, user_id) DO NOTHING`

	_, err := s.db.Exec(ctx, query, channelID, userIDs, role)
	if err != nil {
		return fmt.Errorf("add members: %w", err)
	}
	return nil
}

func (s *ChannelMemberStore) RemoveMember(ctx context.Context, channelID uuid.UUID, userID uuid.UUID) error {
	// DELETE is naturally idempotent: zero rows deleted is not an error.
	query := `
		DELETE FROM channel_members
		WHERE channel_id = $1 AND user_id = $2`

	_, err := s.db.Exec(ctx, query, channelID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

func (s *ChannelMemberStore) RemoveFromTenant(ctx context.Context, tenantID, userID uuid.UUID) error {
	query := `
		DELETE FROM channel_members cm
		USING channels c
		WHERE cm.channel_id = c.id AND c.tenant_id = $1 AND cm.user_id = $2`

	_, err := s.db.Exec(ctx, query, tenantID, userID)
	if err != nil {
		return fmt.Errorf("remove member from tenant channels: %w", err)
	}
	return nil
}

func (s *ChannelMemberStore) ListMembers(ctx context.Context, channelID uuid.UUID) ([]models.ChannelMember, error) {
	query := `
		SELECT channel_id, user_id, role, joined_at
		FROM channel_members
		WHERE channel_id = $1
		ORDER BY joined_at`

	rows, err := s.db.Query(ctx, query, channelID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := make([]models.ChannelMember, 0)
	for rows.Next() {
		var m models.ChannelMember
		if err := rows.Scan(&m.ChannelID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}

	return members, nil
}

func (s *ChannelMemberStore) IsMember(ctx context.Context, channelID uuid.UUID, userID uuid.UUID) (bool, error) {
	// EXISTS stops at the first match; this runs before every send.
	query := `
		SELECT EXISTS (
			SELECT 1 FROM channel_members
			WHERE channel_id = $1 AND user_id = $2
		)`

	var exists bool
	err := s.db.QueryRow(ctx, query, channelID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}
