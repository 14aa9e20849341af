package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/festivo/internal/clearance"
	"github.com/lalith-99/festivo/internal/models"
)

type ChannelStore struct {
	db DBTX
}

func NewChannelStore(db DBTX) *ChannelStore {
	return &ChannelStore{db: db}
}

const channelColumns = `id, tenant_id, module_id, name, is_private, min_clearance, created_by, created_at`

func scanChannel(row pgx.Row) (*models.Channel, error) {
	var ch models.Channel
	var level int16
	err := row.Scan(
		&ch.ID,
		&ch.TenantID,
		&ch.ModuleID,
		&ch.Name,
		&ch.IsPrivate,
		&level,
		&ch.CreatedBy,
		&ch.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	ch.MinClearance = clearance.Level(level)
	return &ch, nil
}

func (s *ChannelStore) Create(ctx context.Context, ch models.Channel) (*models.Channel, error) {
	query := `
		INSERT INTO channels (id, tenant_id, module_id, name, is_private, min_clearance, created_by, created_at)
		VALUES (uuid_generate_v4(), $1, $2, $3, $4, $5, $6, now())
		RETURNING ` + channelColumns

	out, err := scanChannel(s.db.QueryRow(ctx, query,
		ch.TenantID, ch.ModuleID, ch.Name, ch.IsPrivate, int16(ch.MinClearance), ch.CreatedBy))
	if err != nil {
		return nil, mapErr("insert channel", err)
	}
	return out, nil
}

// CreateIfAbsent makes module provisioning re-runnable: activating a
// module a second time finds the channels the first run created.
//
// ON CONFLICT DO NOTHING returns no row on conflict, so we fall back to
// reading the existing one. Both statements run in the caller's
// transaction when called from Store.InTx.
func (s *ChannelStore) CreateIfAbsent(ctx context.Context, ch models.Channel) (*models.Channel, error) {
	query := `
		INSERT INTO channels (id, tenant_id, module_id, name, is_private, min_clearance, created_by, created_at)
		VALUES (uuid_generate_v4(), $1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (tenant_id, name) DO NOTHING
		RETURNING ` + channelColumns

	out, err := scanChannel(s.db.QueryRow(ctx, query,
		ch.TenantID, ch.ModuleID, ch.Name, ch.IsPrivate, int16(ch.MinClearance), ch.CreatedBy))
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("insert channel: %w", err)
	}

	existing := `SELECT ` + channelColumns + ` FROM channels WHERE tenant_id = $1 AND name = $2`
	out, err = scanChannel(s.db.QueryRow(ctx, existing, ch.TenantID, ch.Name))
	if err != nil {
		return nil, fmt.Errorf("get existing channel: %w", err)
	}
	return out, nil
}

func (s *ChannelStore) GetByID(ctx context.Context, tenantID uuid.UUID, channelID uuid.UUID) (*models.Channel, error) {
	query := `
		SELECT ` + channelColumns + `
		FROM channels
		WHERE id = $1 AND tenant_id = $2`

	ch, err := scanChannel(s.db.QueryRow(ctx, query, channelID, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return ch, nil
}

func (s *ChannelStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Channel, error) {
	query := `
		SELECT ` + channelColumns + `
		FROM channels
		WHERE tenant_id = $1
		ORDER BY created_at, name`

	rows, err := s.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	channels := make([]models.Channel, 0)
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, *ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}

	return channels, nil
}
