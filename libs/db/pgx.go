package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/md-rashed-zaman/apptbook/libs/config"
)

// Pool is the shared pgx pool. Repositories embed its query methods.
type Pool struct {
	*pgxpool.Pool
}

type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// PoolConfigFromEnv reads DB_MAX_CONNS, DB_MIN_CONNS, DB_MAX_CONN_LIFETIME and
// DB_MAX_CONN_IDLE_TIME. Unset values keep the pool defaults.
func PoolConfigFromEnv() PoolConfig {
	return PoolConfig{
		MaxConns:        int32(config.Int("DB_MAX_CONNS", 10)),
		MinConns:        int32(config.Int("DB_MIN_CONNS", 1)),
		MaxConnLifetime: config.Duration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
		MaxConnIdleTime: config.Duration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
	}
}

// Open connects and pings before returning, so a bad DATABASE_URL fails startup.
func Open(ctx context.Context, databaseURL string, pc PoolConfig) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 && pc.MinConns <= cfg.MaxConns {
		cfg.MinConns = pc.MinConns
	}
	if pc.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = pc.MaxConnLifetime
	}
	if pc.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = pc.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Pool{Pool: pool}, nil
}

func (p *Pool) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}

// InTx runs fn in a transaction that commits when fn returns nil and rolls back
// otherwise.
func (p *Pool) InTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := p.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func ReadyCheck(pool *Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		if pool == nil || pool.Pool == nil {
			return errors.New("postgres pool not open")
		}
		return pool.Ping(ctx)
	}
}
