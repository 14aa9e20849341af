package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/lalith-99/festivo/internal/clearance"
	"github.com/lalith-99/festivo/internal/models"
	"github.com/lalith-99/festivo/internal/repository"
)

type tenantRow struct {
	ID     string
	Slug   string
	Tenant models.Tenant
}

type tenantStore struct{ c *conn }

func (s *tenantStore) Create(ctx context.Context, name, slug string, createdBy uuid.UUID) (*models.Tenant, error) {
	var out models.Tenant
	err := s.c.write(func(txn *memdb.Txn) error {
		existing, err := first[tenantRow](txn, tableTenants, "slug", slug)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("insert tenant: %w", repository.ErrConflict)
		}
		out = models.Tenant{
			ID:        uuid.New(),
			Name:      name,
			Slug:      slug,
			CreatedBy: createdBy,
			CreatedAt: time.Now().UTC(),
		}
		return insert(txn, tableTenants, &tenantRow{ID: out.ID.String(), Slug: slug, Tenant: out})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *tenantStore) get(index string, arg string) (*models.Tenant, error) {
	var out *models.Tenant
	err := s.c.read(func(txn *memdb.Txn) error {
		row, err := first[tenantRow](txn, tableTenants, index, arg)
		if err != nil || row == nil {
			return err
		}
		t := row.Tenant
		out = &t
		return nil
	})
	return out, err
}

func (s *tenantStore) GetByID(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	return s.get(idIndex, tenantID.String())
}

// GetForUpdate is a plain read; InTx already holds the writer.
func (s *tenantStore) GetForUpdate(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	return s.GetByID(ctx, tenantID)
}

func (s *tenantStore) GetBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	return s.get("slug", slug)
}

func (s *tenantStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Tenant, error) {
	tenants := make([]models.Tenant, 0)
	err := s.c.read(func(txn *memdb.Txn) error {
		members, err := all[membershipRow](txn, tableMemberships, "user", userID.String())
		if err != nil {
			return err
		}
		for _, m := range members {
			row, err := first[tenantRow](txn, tableTenants, idIndex, m.TenantID)
			if err != nil {
				return err
			}
			if row != nil {
				tenants = append(tenants, row.Tenant)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(tenants, func(a, b models.Tenant) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return tenants, nil
}

type userRow struct {
	ID         string
	ExternalID string
	Handle     string
	User       models.User
}

type userStore struct{ c *conn }

func (s *userStore) Create(ctx context.Context, user models.User) (*models.User, error) {
	var out models.User
	err := s.c.write(func(txn *memdb.Txn) error {
		byExternal, err := first[userRow](txn, tableUsers, "external_id", user.ExternalID)
		if err != nil {
			return err
		}
		if byExternal != nil {
			return fmt.Errorf("insert user: %w", repository.ErrConflict)
		}
		if user.Handle != "" {
			byHandle, err := first[userRow](txn, tableUsers, "handle", user.Handle)
			if err != nil {
				return err
			}
			if byHandle != nil {
				return fmt.Errorf("insert user: %w", repository.ErrConflict)
			}
		}
		out = user
		out.ID = uuid.New()
		out.CreatedAt = time.Now().UTC()
		return insert(txn, tableUsers, &userRow{
			ID:         out.ID.String(),
			ExternalID: out.ExternalID,
			Handle:     out.Handle,
			User:       out,
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *userStore) get(index, arg string) (*models.User, error) {
	var out *models.User
	err := s.c.read(func(txn *memdb.Txn) error {
		row, err := first[userRow](txn, tableUsers, index, arg)
		if err != nil || row == nil {
			return err
		}
		u := row.User
		out = &u
		return nil
	})
	return out, err
}

func (s *userStore) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.get(idIndex, userID.String())
}

func (s *userStore) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return s.get("external_id", externalID)
}

func (s *userStore) GetByHandle(ctx context.Context, handle string) (*models.User, error) {
	return s.get("handle", handle)
}

func (s *userStore) IDsByHandles(ctx context.Context, handles []string) (map[string]uuid.UUID, error) {
	out := make(map[string]uuid.UUID, len(handles))
	err := s.c.read(func(txn *memdb.Txn) error {
		for _, h := range handles {
			row, err := first[userRow](txn, tableUsers, "handle", h)
			if err != nil {
				return err
			}
			if row != nil {
				out[strings.ToLower(h)] = row.User.ID
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type membershipRow struct {
	ID         string
	TenantID   string
	UserID     string
	Membership models.Membership
}

func newMembershipRow(m models.Membership) *membershipRow {
	return &membershipRow{
		ID:         m.ID.String(),
		TenantID:   m.TenantID.String(),
		UserID:     m.UserID.String(),
		Membership: m,
	}
}

type membershipStore struct{ c *conn }

func (s *membershipStore) Create(ctx context.Context, m models.Membership) (*models.Membership, error) {
	var out models.Membership
	err := s.c.write(func(txn *memdb.Txn) error {
		existing, err := first[membershipRow](txn, tableMemberships, "tenant_user", m.TenantID.String(), m.UserID.String())
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("insert membership: %w", repository.ErrConflict)
		}
		out = m
		out.ID = uuid.New()
		out.JoinedAt = time.Now().UTC()
		return insert(txn, tableMemberships, newMembershipRow(out))
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *membershipStore) get(index string, args ...any) (*models.Membership, error) {
	var out *models.Membership
	err := s.c.read(func(txn *memdb.Txn) error {
		row, err := first[membershipRow](txn, tableMemberships, index, args...)
		if err != nil || row == nil {
			return err
		}
		m := row.Membership
		out = &m
		return nil
	})
	return out, err
}

func (s *membershipStore) Get(ctx context.Context, tenantID, userID uuid.UUID) (*models.Membership, error) {
	return s.get("tenant_user", tenantID.String(), userID.String())
}

func (s *membershipStore) GetByID(ctx context.Context, memberID uuid.UUID) (*models.Membership, error) {
	return s.get(idIndex, memberID.String())
}

func (s *membershipStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Membership, error) {
	members := make([]models.Membership, 0)
	err := s.c.read(func(txn *memdb.Txn) error {
		rows, err := all[membershipRow](txn, tableMemberships, "tenant", tenantID.String())
		if err != nil {
			return err
		}
		for _, r := range rows {
			members = append(members, r.Membership)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(members, func(a, b models.Membership) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return members, nil
}

func (s *membershipStore) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	err := s.c.read(func(txn *memdb.Txn) error {
		rows, err := all[membershipRow](txn, tableMemberships, "tenant", tenantID.String())
		n = len(rows)
		return err
	})
	return n, err
}

func (s *membershipStore) SetClearance(ctx context.Context, memberID uuid.UUID, level clearance.Level) (*models.Membership, error) {
	var out *models.Membership
	err := s.c.write(func(txn *memdb.Txn) error {
		row, err := first[membershipRow](txn, tableMemberships, idIndex, memberID.String())
		if err != nil || row == nil {
			return err
		}
		m := row.Membership
		m.ClearanceLevel = level
		out = &m
		return insert(txn, tableMemberships, newMembershipRow(m))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *membershipStore) Delete(ctx context.Context, tenantID, memberID uuid.UUID) (bool, error) {
	var deleted bool
	err := s.c.write(func(txn *memdb.Txn) error {
		row, err := first[membershipRow](txn, tableMemberships, idIndex, memberID.String())
		if err != nil || row == nil || row.TenantID != tenantID.String() {
			return err
		}
		if err := txn.Delete(tableMemberships, row); err != nil {
			return fmt.Errorf("delete membership: %w", err)
		}
		deleted = true
		return nil
	})
	return deleted, err
}
