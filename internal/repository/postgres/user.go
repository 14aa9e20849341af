package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/festivo/internal/models"
)

type UserStore struct {
	db DBTX
}

func NewUserStore(db DBTX) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, external_id, email, display_name, handle, avatar_url, global_role, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID,
		&u.ExternalID,
		&u.Email,
		&u.DisplayName,
		&u.Handle,
		&u.AvatarURL,
		&u.GlobalRole,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user row. Postgres generates the UUID and timestamp.
func (s *UserStore) Create(ctx context.Context, user models.User) (*models.User, error) {
	query := `
		INSERT INTO users (external_id, email, display_name, handle, avatar_url, global_role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING ` + userColumns

	u, err := scanUser(s.db.QueryRow(ctx, query,
		user.ExternalID,
		user.Email,
		user.DisplayName,
		user.Handle,
		user.AvatarURL,
		user.GlobalRole,
	))
	if err != nil {
		return nil, mapErr("insert user", err)
	}
	return u, nil
}

func (s *UserStore) get(ctx context.Context, op, where string, arg any) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where
	u, err := scanUser(s.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (s *UserStore) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.get(ctx, "get user", "id = $1", userID)
}

// GetByExternalID is the identity-provider lookup: every authenticated
// request goes through it once.
func (s *UserStore) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return s.get(ctx, "get user by external id", "external_id = $1", externalID)
}

func (s *UserStore) GetByHandle(ctx context.Context, handle string) (*models.User, error) {
	return s.get(ctx, "get user by handle", "lower(handle) = lower($1)", handle)
}

func (s *UserStore) IDsByHandles(ctx context.Context, handles []string) (map[string]uuid.UUID, error) {
	out := make(map[string]uuid.UUID, len(handles))
	if len(handles) == 0 {
		return out, nil
	}
	lowered := make([]string, len(handles))
	for i, h := range handles {
		lowered[i] = strings.ToLower(h)
	}

	query := `
		SELECT lower(handle), id
		FROM users
		WHERE lower(handle) = ANY($1)`

	rows, err := s.db.Query(ctx, query, lowered)
	if err != nil {
		return nil, fmt.Errorf("resolve handles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var handle string
		var id uuid.UUID
		if err := rows.Scan(&handle, &id); err != nil {
			return nil, fmt.Errorf("scan handle: %w", err)
		}
		out[handle] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate handles: %w", err)
	}
	return out, nil
}
