package modules

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/festivo/internal/apperr"
	"github.com/lalith-99/festivo/internal/metrics"
	"github.com/lalith-99/festivo/internal/models"
	"github.com/lalith-99/festivo/internal/repository"
	"go.uber.org/zap"
)

// Provisioner sets up the resources a module needs when a tenant turns
// it on. It must be safe to run more than once for the same module.
type Provisioner interface {
	ProvisionModule(ctx context.Context, tenantID uuid.UUID, moduleID string) error
}

// ModuleStatus is an optional module joined with one tenant's state.
type ModuleStatus struct {
	Definition
	Enabled       bool   `json:"enabled"`
	BillingStatus string `json:"billing_status,omitempty"`
}

// Manager persists which optional modules each tenant has enabled.
type Manager struct {
	store       repository.Store
	provisioner Provisioner
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewManager wires a Manager. provisioner may be nil.
func NewManager(store repository.Store, provisioner Provisioner, m *metrics.Metrics, logger *zap.Logger) *Manager {
	return &Manager{store: store, provisioner: provisioner, metrics: m, logger: logger}
}

func billingFor(def Definition) string {
	if def.Free {
		return models.BillingFree
	}
	return models.BillingUnbilled
}

// Activate enables an optional module for a tenant.
//
// The upsert is the source of truth. Provisioning is best-effort: a
// failure is logged and counted and the module stays enabled. It runs on
// every call, not only on the off->on flip, so activating an already
// active module repairs whatever an earlier failed run left missing.
// The provisioner is idempotent, so a healthy module is left as is.
func (m *Manager) Activate(ctx context.Context, tenantID uuid.UUID, moduleID string) (*models.TenantModule, error) {
	def, ok := LookupOptional(moduleID)
	if !ok {
		return nil, apperr.ErrUnknownModule
	}

	state, wasEnabled, err := m.store.Repos().TenantModules.Enable(ctx, tenantID, moduleID, billingFor(def))
	if err != nil {
		return nil, fmt.Errorf("activate module: %w", err)
	}
	if !wasEnabled {
		m.metrics.ModuleChanged(moduleID, "activate")
		m.logger.Info("module activated",
			zap.String("tenant_id", tenantID.String()),
			zap.String("module_id", moduleID),
		)
	}

	if m.provisioner != nil {
		if err := m.provisioner.ProvisionModule(ctx, tenantID, moduleID); err != nil {
			m.metrics.ProvisioningFailed(moduleID)
			m.logger.Error("module provisioning failed",
				zap.String("tenant_id", tenantID.String()),
				zap.String("module_id", moduleID),
				zap.Bool("retry", wasEnabled),
				zap.Error(err),
			)
		}
	}
	return state, nil
}

// Deactivate disables a module. Provisioned channels are left in place.
func (m *Manager) Deactivate(ctx context.Context, tenantID uuid.UUID, moduleID string) (*models.TenantModule, error) {
	if _, ok := LookupOptional(moduleID); !ok {
		return nil, apperr.ErrUnknownModule
	}

	state, err := m.store.Repos().TenantModules.Disable(ctx, tenantID, moduleID)
	if err != nil {
		return nil, fmt.Errorf("deactivate module: %w", err)
	}
	m.metrics.ModuleChanged(moduleID, "deactivate")
	m.logger.Info("module deactivated",
		zap.String("tenant_id", tenantID.String()),
		zap.String("module_id", moduleID),
	)
	return state, nil
}

// ListActive returns the tenant's enabled optional modules in catalog
// order. Rows for ids that are no longer in the catalog are skipped.
func (m *Manager) ListActive(ctx context.Context, tenantID uuid.UUID) ([]Definition, error) {
	enabled, err := m.enabledSet(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	active := make([]Definition, 0, len(enabled))
	for _, def := range optionalCatalog {
		if enabled[def.ID] {
			active = append(active, def)
		}
	}
	return active, nil
}

// ListAllWithStatus returns every optional module with the tenant's
// enabled flag, for the settings screen.
func (m *Manager) ListAllWithStatus(ctx context.Context, tenantID uuid.UUID) ([]ModuleStatus, error) {
	states, err := m.store.Repos().TenantModules.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list module states: %w", err)
	}
	byID := make(map[string]models.TenantModule, len(states))
	for _, s := range states {
		byID[s.ModuleID] = s
	}

	out := make([]ModuleStatus, 0, len(optionalCatalog))
	for _, def := range optionalCatalog {
		st := ModuleStatus{Definition: def}
		if s, ok := byID[def.ID]; ok {
			st.Enabled = s.Enabled
			st.BillingStatus = s.BillingStatus
		}
		out = append(out, st)
	}
	return out, nil
}

// IsActive reports whether a module is usable by the tenant. Core
// modules are always active.
func (m *Manager) IsActive(ctx context.Context, tenantID uuid.UUID, moduleID string) (bool, error) {
	if IsCore(moduleID) {
		return true, nil
	}
	if _, ok := LookupOptional(moduleID); !ok {
		return false, nil
	}
	state, err := m.store.Repos().TenantModules.Get(ctx, tenantID, moduleID)
	if err != nil {
		return false, fmt.Errorf("get module state: %w", err)
	}
	return state != nil && state.Enabled, nil
}

// RequireActive is IsActive as a guard.
func (m *Manager) RequireActive(ctx context.Context, tenantID uuid.UUID, moduleID string) error {
	ok, err := m.IsActive(ctx, tenantID, moduleID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrModuleInactive
	}
	return nil
}

func (m *Manager) enabledSet(ctx context.Context, tenantID uuid.UUID) (map[string]bool, error) {
	states, err := m.store.Repos().TenantModules.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list module states: %w", err)
	}
	enabled := make(map[string]bool, len(states))
	for _, s := range states {
		if s.Enabled {
			enabled[s.ModuleID] = true
		}
	}
	return enabled, nil
}
