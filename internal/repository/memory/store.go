// Package memory is an in-process repository.Store backed by go-memdb.
//
// It backs STORE=memory deployments (single replica demos, local dev)
// and every service test. memdb allows one write transaction at a time,
// so each write below is atomic with respect to every other write, which
// is the same guarantee the Postgres store gets from conditional
// statements and row locks.
//
// Rows are immutable once inserted. Every update builds a new row and
// re-inserts it; readers holding an older snapshot never see a
// half-written value.
package memory

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hashicorp/go-memdb"
	"github.com/lalith-99/festivo/internal/repository"
)

const (
	tableTenants        = "tenants"
	tableUsers          = "users"
	tableMemberships    = "memberships"
	tableTenantModules  = "tenant_modules"
	tableInvites        = "invite_codes"
	tableChannels       = "channels"
	tableChannelMembers = "channel_members"
	tableMessages       = "messages"
	tableUnread         = "unread_counters"
	tableVolunteers     = "volunteers"
	tableMissions       = "missions"
	tableAssignments    = "assignments"

	idIndex = "id"
)

func stringIndex(name, field string) *memdb.IndexSchema {
	return &memdb.IndexSchema{
		Name:    name,
		Unique:  name == idIndex,
		Indexer: &memdb.StringFieldIndex{Field: field},
	}
}

func compoundIndex(name string, fields ...string) *memdb.IndexSchema {
	indexes := make([]memdb.Indexer, 0, len(fields))
	for _, f := range fields {
		indexes = append(indexes, &memdb.StringFieldIndex{Field: f})
	}
	return &memdb.IndexSchema{
		Name:    name,
		Unique:  name == idIndex,
		Indexer: &memdb.CompoundIndex{Indexes: indexes},
	}
}

func table(name string, indexes ...*memdb.IndexSchema) *memdb.TableSchema {
	t := &memdb.TableSchema{Name: name, Indexes: map[string]*memdb.IndexSchema{}}
	for _, idx := range indexes {
		t.Indexes[idx.Name] = idx
	}
	return t
}

// Only the "id" index is unique. memdb does not reject duplicates on
// secondary indexes, so the stores check (tenant, slug)-style
// uniqueness themselves before inserting.
func schema() *memdb.DBSchema {
	tables := []*memdb.TableSchema{
		table(tableTenants,
			stringIndex(idIndex, "ID"),
			stringIndex("slug", "Slug")),
		table(tableUsers,
			stringIndex(idIndex, "ID"),
			stringIndex("external_id", "ExternalID"),
			&memdb.IndexSchema{
				Name:         "handle",
				AllowMissing: true,
				Indexer:      &memdb.StringFieldIndex{Field: "Handle", Lowercase: true},
			}),
		table(tableMemberships,
			stringIndex(idIndex, "ID"),
			stringIndex("tenant", "TenantID"),
			stringIndex("user", "UserID"),
			compoundIndex("tenant_user", "TenantID", "UserID")),
		table(tableTenantModules,
			compoundIndex(idIndex, "TenantID", "ModuleID"),
			stringIndex("tenant", "TenantID")),
		table(tableInvites,
			stringIndex(idIndex, "Code"),
			stringIndex("tenant", "TenantID")),
		table(tableChannels,
			stringIndex(idIndex, "ID"),
			stringIndex("tenant", "TenantID"),
			compoundIndex("tenant_name", "TenantID", "Name")),
		table(tableChannelMembers,
			compoundIndex(idIndex, "ChannelID", "UserID"),
			stringIndex("channel", "ChannelID"),
			stringIndex("user", "UserID")),
		table(tableMessages,
			stringIndex(idIndex, "ID"),
			stringIndex("channel", "ChannelID")),
		table(tableUnread,
			compoundIndex(idIndex, "UserID", "ChannelID"),
			compoundIndex("tenant_user", "TenantID", "UserID")),
		table(tableVolunteers,
			compoundIndex(idIndex, "TenantID", "UserID"),
			stringIndex("tenant", "TenantID")),
		table(tableMissions,
			stringIndex(idIndex, "ID"),
			stringIndex("tenant", "TenantID")),
		table(tableAssignments,
			stringIndex(idIndex, "ID"),
			stringIndex("mission", "MissionID")),
	}

	s := &memdb.DBSchema{Tables: map[string]*memdb.TableSchema{}}
	for _, t := range tables {
		s.Tables[t.Name] = t
	}
	return s
}

// Store implements repository.Store on go-memdb.
type Store struct {
	db *memdb.MemDB

	// messageSeq hands out message ids the way a bigserial would. Gaps
	// after an aborted transaction are fine; order is what matters.
	messageSeq atomic.Int64
}

var _ repository.Store = (*Store)(nil)

func NewStore() (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("create memdb: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Repos() repository.Repositories {
	return bind(&conn{store: s})
}

// InTx holds memdb's single write lock for the whole of fn. Every
// repository call inside fn sees fn's own writes; nothing is visible to
// other readers until Commit.
//
// fn must only use the Repositories it is handed. Calling s.Repos()
// for a write from inside fn would wait on the lock fn itself holds.
func (s *Store) InTx(ctx context.Context, fn func(r repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := s.db.Txn(true)
	// Abort after Commit is a no-op; this also releases the lock on panic.
	defer txn.Abort()

	if err := fn(bind(&conn{store: s, txn: txn})); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) Health(ctx context.Context) error {
	return ctx.Err()
}

// conn is either bound to an InTx transaction or opens one per call.
type conn struct {
	store *Store
	txn   *memdb.Txn
}

func (c *conn) write(fn func(txn *memdb.Txn) error) error {
	if c.txn != nil {
		return fn(c.txn)
	}
	txn := c.store.db.Txn(true)
	defer txn.Abort()
	if err := fn(txn); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (c *conn) read(fn func(txn *memdb.Txn) error) error {
	if c.txn != nil {
		return fn(c.txn)
	}
	txn := c.store.db.Txn(false)
	defer txn.Abort()
	return fn(txn)
}

func bind(c *conn) repository.Repositories {
	return repository.Repositories{
		Tenants:        &tenantStore{c},
		Users:          &userStore{c},
		Memberships:    &membershipStore{c},
		TenantModules:  &tenantModuleStore{c},
		Invites:        &inviteStore{c},
		Channels:       &channelStore{c},
		ChannelMembers: &channelMemberStore{c},
		Messages:       &messageStore{c},
		Unread:         &unreadStore{c},
		Volunteers:     &volunteerStore{c},
		Missions:       &missionStore{c},
		Assignments:    &assignmentStore{c},
	}
}

func first[T any](txn *memdb.Txn, tbl, index string, args ...any) (*T, error) {
	raw, err := txn.First(tbl, index, args...)
	if err != nil {
		return nil, fmt.Errorf("lookup %s.%s: %w", tbl, index, err)
	}
	if raw == nil {
		return nil, nil
	}
	return raw.(*T), nil
}

func all[T any](txn *memdb.Txn, tbl, index string, args ...any) ([]*T, error) {
	it, err := txn.Get(tbl, index, args...)
	if err != nil {
		return nil, fmt.Errorf("scan %s.%s: %w", tbl, index, err)
	}
	out := make([]*T, 0)
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(*T))
	}
	return out, nil
}

func insert(txn *memdb.Txn, tbl string, row any) error {
	if err := txn.Insert(tbl, row); err != nil {
		return fmt.Errorf("insert %s: %w", tbl, err)
	}
	return nil
}
