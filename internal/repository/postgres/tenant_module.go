package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/festivo/internal/models"
)

type TenantModuleStore struct {
	db DBTX
}

func NewTenantModuleStore(db DBTX) *TenantModuleStore {
	return &TenantModuleStore{db: db}
}

const tenantModuleColumns = `tenant_id, module_id, enabled, billing_status, created_at, updated_at`

func scanTenantModule(row pgx.Row, extra ...any) (*models.TenantModule, error) {
	var tm models.TenantModule
	dest := append([]any{
		&tm.TenantID,
		&tm.ModuleID,
		&tm.Enabled,
		&tm.BillingStatus,
		&tm.CreatedAt,
		&tm.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &tm, nil
}

// Enable is one upsert, so activating twice leaves exactly one row.
//
// The prev CTE reads the row as it was before this statement (CTEs see
// the pre-statement snapshot), which tells the caller whether this call
// actually turned the module on.
func (s *TenantModuleStore) Enable(ctx context.Context, tenantID uuid.UUID, moduleID, billingStatus string) (*models.TenantModule, bool, error) {
	query := `
		WITH prev AS (
			SELECT enabled FROM tenant_modules
			WHERE tenant_id = $1 AND module_id = $2
		)
		INSERT INTO tenant_modules (tenant_id, module_id, enabled, billing_status, created_at, updated_at)
		VALUES ($1, $2, true, $3, now(), now())
		ON CONFLICT (tenant_id, module_id) DO UPDATE
		SET enabled = true, updated_at = now()
		RETURNING ` + tenantModuleColumns + `, COALESCE((SELECT enabled FROM prev), false)`

	var wasEnabled bool
	tm, err := scanTenantModule(s.db.QueryRow(ctx, query, tenantID, moduleID, billingStatus), &wasEnabled)
	if err != nil {
		return nil, false, fmt.Errorf("enable module: %w", err)
	}
	return tm, wasEnabled, nil
}

// Disable never deletes: the row keeps its history (created_at, billing).
func (s *TenantModuleStore) Disable(ctx context.Context, tenantID uuid.UUID, moduleID string) (*models.TenantModule, error) {
	query := `
		INSERT INTO tenant_modules (tenant_id, module_id, enabled, billing_status, created_at, updated_at)
		VALUES ($1, $2, false, $3, now(), now())
		ON CONFLICT (tenant_id, module_id) DO UPDATE
		SET enabled = false, updated_at = now()
		RETURNING ` + tenantModuleColumns

	tm, err := scanTenantModule(s.db.QueryRow(ctx, query, tenantID, moduleID, models.BillingUnbilled))
	if err != nil {
		return nil, fmt.Errorf("disable module: %w", err)
	}
	return tm, nil
}

func (s *TenantModuleStore) Get(ctx context.Context, tenantID uuid.UUID, moduleID string) (*models.TenantModule, error) {
	query := `SELECT ` + tenantModuleColumns + ` FROM tenant_modules WHERE tenant_id = $1 AND module_id = $2`
	tm, err := scanTenantModule(s.db.QueryRow(ctx, query, tenantID, moduleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tenant module: %w", err)
	}
	return tm, nil
}

func (s *TenantModuleStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.TenantModule, error) {
	query := `SELECT ` + tenantModuleColumns + ` FROM tenant_modules WHERE tenant_id = $1 ORDER BY module_id`

	rows, err := s.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tenant modules: %w", err)
	}
	defer rows.Close()

	states := make([]models.TenantModule, 0)
	for rows.Next() {
		tm, err := scanTenantModule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant module: %w", err)
		}
		states = append(states, *tm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenant modules: %w", err)
	}
	return states, nil
}
