package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/festivo/internal/repository"
)

// DBTX is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
//
// Every XxxStore takes a DBTX instead of a *pgxpool.Pool. Outside a
// transaction we hand it the pool; inside Store.InTx we hand it the
// transaction. Same SQL, same code path, different atomicity.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const uniqueViolation = "23505"

// mapErr turns a unique-constraint violation into repository.ErrConflict
// and wraps everything else with context.
func mapErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, repository.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Store is the Postgres implementation of repository.Store.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Repos() repository.Repositories {
	return bind(s.pool)
}

// InTx runs fn in a READ COMMITTED transaction.
//
// Why not SERIALIZABLE?
//   - The invariants we care about are enforced by single statements
//     (conditional UPDATE, INSERT ... ON CONFLICT) and unique indexes,
//     which are atomic at any isolation level.
//   - SERIALIZABLE would add retryable serialization failures that every
//     caller would have to handle, for no extra guarantee here.
func (s *Store) InTx(ctx context.Context, fn func(r repository.Repositories) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// Rollback after Commit is a no-op, so this is safe on every path,
	// including a panic inside fn.
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(bind(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func bind(db DBTX) repository.Repositories {
	return repository.Repositories{
		Tenants:        NewTenantStore(db),
		Users:          NewUserStore(db),
		Memberships:    NewMembershipStore(db),
		TenantModules:  NewTenantModuleStore(db),
		Invites:        NewInviteStore(db),
		Channels:       NewChannelStore(db),
		ChannelMembers: NewChannelMemberStore(db),
		Messages:       NewMessageStore(db),
		Unread:         NewUnreadStore(db),
		Volunteers:     NewVolunteerStore(db),
		Missions:       NewMissionStore(db),
		Assignments:    NewAssignmentStore(db),
	}
}
