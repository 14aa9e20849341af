package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/lalith-99/festivo/internal/models"
	"github.com/lalith-99/festivo/internal/repository"
)

type tenantModuleRow struct {
	TenantID string
	ModuleID string
	State    models.TenantModule
}

type tenantModuleStore struct{ c *conn }

// upsert flips enabled and reports the previous value. Billing status is
// fixed at first insert, matching the Postgres upsert.
func (s *tenantModuleStore) upsert(tenantID uuid.UUID, moduleID, billingStatus string, enabled bool) (*models.TenantModule, bool, error) {
	var out models.TenantModule
	var was bool
	err := s.c.write(func(txn *memdb.Txn) error {
		row, err := first[tenantModuleRow](txn, tableTenantModules, idIndex, tenantID.String(), moduleID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if row == nil {
			out = models.TenantModule{
				TenantID:      tenantID,
				ModuleID:      moduleID,
				BillingStatus: billingStatus,
				CreatedAt:     now,
			}
		} else {
			out = row.State
			was = row.State.Enabled
		}
		out.Enabled = enabled
		out.UpdatedAt = now
		return insert(txn, tableTenantModules, &tenantModuleRow{
			TenantID: tenantID.String(),
			ModuleID: moduleID,
			State:    out,
		})
	})
	if err != nil {
		return nil, false, err
	}
	return &out, was, nil
}

func (s *tenantModuleStore) Enable(ctx context.Context, tenantID uuid.UUID, moduleID, billingStatus string) (*models.TenantModule, bool, error) {
	return s.upsert(tenantID, moduleID, billingStatus, true)
}

func (s *tenantModuleStore) Disable(ctx context.Context, tenantID uuid.UUID, moduleID string) (*models.TenantModule, error) {
	tm, _, err := s.upsert(tenantID, moduleID, models.BillingUnbilled, false)
	return tm, err
}

func (s *tenantModuleStore) Get(ctx context.Context, tenantID uuid.UUID, moduleID string) (*models.TenantModule, error) {
	var out *models.TenantModule
	err := s.c.read(func(txn *memdb.Txn) error {
		row, err := first[tenantModuleRow](txn, tableTenantModules, idIndex, tenantID.String(), moduleID)
		if err != nil || row == nil {
			return err
		}
		tm := row.State
		out = &tm
		return nil
	})
	return out, err
}

func (s *tenantModuleStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.TenantModule, error) {
	states := make([]models.TenantModule, 0)
	err := s.c.read(func(txn *memdb.Txn) error {
		rows, err := all[tenantModuleRow](txn, tableTenantModules, "tenant", tenantID.String())
		if err != nil {
			return err
		}
		for _, r := range rows {
			states = append(states, r.State)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(states, func(a, b models.TenantModule) int {
		return cmp.Compare(a.ModuleID, b.ModuleID)
	})
	return states, nil
}

type inviteRow struct {
	Code     string
	TenantID string
	Invite   models.InviteCode
}

type inviteStore struct{ c *conn }

func (s *inviteStore) Create(ctx context.Context, code models.InviteCode) (*models.InviteCode, error) {
	var out models.InviteCode
	err := s.c.write(func(txn *memdb.Txn) error {
		existing, err := first[inviteRow](txn, tableInvites, idIndex, code.Code)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("insert invite code: %w", repository.ErrConflict)
		}
		out = code
		out.Uses = 0
		out.CreatedAt = time.Now().UTC()
		return insert(txn, tableInvites, &inviteRow{Code: out.Code, TenantID: out.TenantID.String(), Invite: out})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *inviteStore) GetByCode(ctx context.Context, code string) (*models.InviteCode, error) {
	var out *models.InviteCode
	err := s.c.read(func(txn *memdb.Txn) error {
		row, err := first[inviteRow](txn, tableInvites, idIndex, code)
		if err != nil || row == nil {
			return err
		}
		ic := row.Invite
		out = &ic
		return nil
	})
	return out, err
}

func (s *inviteStore) listByTenant(txn *memdb.Txn, tenantID uuid.UUID) ([]models.InviteCode, error) {
	rows, err := all[inviteRow](txn, tableInvites, "tenant", tenantID.String())
	if err != nil {
		return nil, err
	}
	codes := make([]models.InviteCode, 0, len(rows))
	for _, r := range rows {
		codes = append(codes, r.Invite)
	}
	return codes, nil
}

func (s *inviteStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.InviteCode, error) {
	var codes []models.InviteCode
	err := s.c.read(func(txn *memdb.Txn) error {
		var err error
		codes, err = s.listByTenant(txn, tenantID)
		return err
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(codes, func(a, b models.InviteCode) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return codes, nil
}

func (s *inviteStore) CountUsable(ctx context.Context, tenantID uuid.UUID, now time.Time) (int, error) {
	var n int
	err := s.c.read(func(txn *memdb.Txn) error {
		codes, err := s.listByTenant(txn, tenantID)
		if err != nil {
			return err
		}
		for i := range codes {
			if codes[i].Usable(now) {
				n++
			}
		}
		return nil
	})
	return n, err
}

// ConsumeUse runs the usability check and the increment under one write
// lock, so no other redeemer can observe the pre-increment value.
func (s *inviteStore) ConsumeUse(ctx context.Context, code string, now time.Time) (*models.InviteCode, error) {
	var out *models.InviteCode
	err := s.c.write(func(txn *memdb.Txn) error {
		row, err := first[inviteRow](txn, tableInvites, idIndex, code)
		if err != nil || row == nil {
			return err
		}
		if !row.Invite.Usable(now) {
			return nil
		}
		ic := row.Invite
		ic.Uses++
		out = &ic
		return insert(txn, tableInvites, &inviteRow{Code: ic.Code, TenantID: row.TenantID, Invite: ic})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
