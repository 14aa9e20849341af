package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/festivo/internal/models"
)

type TenantStore struct {
	db DBTX
}

func NewTenantStore(db DBTX) *TenantStore {
	return &TenantStore{db: db}
}

const tenantColumns = `id, name, slug, created_by, created_at`

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	var t models.Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedBy, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *TenantStore) Create(ctx context.Context, name, slug string, createdBy uuid.UUID) (*models.Tenant, error) {
	query := `
		INSERT INTO tenants (name, slug, created_by, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING ` + tenantColumns

	t, err := scanTenant(s.db.QueryRow(ctx, query, name, slug, createdBy))
	if err != nil {
		return nil, mapErr("insert tenant", err)
	}
	return t, nil
}

func (s *TenantStore) GetByID(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	t, err := scanTenant(s.db.QueryRow(ctx, query, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

func (s *TenantStore) GetForUpdate(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1 FOR UPDATE`
	t, err := scanTenant(s.db.QueryRow(ctx, query, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock tenant: %w", err)
	}
	return t, nil
}

func (s *TenantStore) GetBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE slug = $1`
	t, err := scanTenant(s.db.QueryRow(ctx, query, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tenant by slug: %w", err)
	}
	return t, nil
}

func (s *TenantStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Tenant, error) {
	query := `
		SELECT t.id, t.name, t.slug, t.created_by, t.created_at
		FROM tenants t
		JOIN tenant_members m ON m.tenant_id = t.id
		WHERE m.user_id = $1
		ORDER BY t.created_at DESC`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	tenants := make([]models.Tenant, 0)
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenants: %w", err)
	}
	return tenants, nil
}
