package db

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type DB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New creates a database connection pool from a Postgres connection URL.
//
// Why take a URL string instead of individual host/port/user fields?
//   - pgxpool.ParseConfig() natively understands Postgres URLs.
//   - The same DATABASE_URL feeds golang-migrate, so there is one
//     source of truth for where the database lives.
//
// connectTimeout bounds how long we keep retrying the first Ping. In
// docker-compose the app routinely starts before Postgres accepts
// connections; retrying with backoff beats crash-looping.
func New(ctx context.Context, databaseURL string, connectTimeout time.Duration, logger *zap.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	// MaxConns (25): every request holds a connection only briefly, and
	// invite redemption / message fan-out transactions are short.
	// MinConns (5): keep a few warm connections for bursty joins.
	// MaxConnLifetime / MaxConnIdleTime: recycle connections so failovers
	// and DNS changes are picked up.
	// HealthCheckPeriod: detect dead idle connections before a query does.
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 20 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = connectTimeout
	ping := func() error {
		if err := pool.Ping(ctx); err != nil {
			logger.Warn("database not ready", zap.Error(err))
			return err
		}
		return nil
	}
	if err := backoff.Retry(ping, backoff.WithContext(policy, ctx)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping DB: %w", err)
	}

	logger.Info("DB connection established",
		zap.String("host", poolConfig.ConnConfig.Host),
		zap.String("database", poolConfig.ConnConfig.Database),
		zap.Int32("max_conns", poolConfig.MaxConns),
	)
	return &DB{
		pool:   pool,
		logger: logger,
	}, nil
}

func (db *DB) Close() {
	db.logger.Info("closing database connection pool")
	db.pool.Close()
}

func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

func (db *DB) Health(ctx context.Context) error {
	return db.pool.Ping(ctx)
}
