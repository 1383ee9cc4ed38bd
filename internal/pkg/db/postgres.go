// Package db manages the PostgreSQL pool that backs the escrow store.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"fundraising-escrow/internal/config"
	"fundraising-escrow/internal/metrics"
)

// ApplicationName tags escrow sessions in pg_stat_activity.
const ApplicationName = "escrowd"

const (
	defaultConnectTimeout  = 10 * time.Second
	defaultMaxConnLifetime = time.Hour
	defaultMaxConnIdleTime = 30 * time.Minute
	healthCheckPeriod      = 30 * time.Second
)

// Pool wraps pgxpool.Pool. Every escrow operation holds one connection for
// the length of its transaction.
type Pool struct {
	*pgxpool.Pool
}

// poolConfig maps the database section onto a pgx pool configuration.
// MinConns is clamped to [0, PoolSize].
func poolConfig(cfg *config.DatabaseConfig) (*pgxpool.Config, error) {
	if cfg.PoolSize < 1 {
		return nil, fmt.Errorf("database.pool_size must be positive, got %d", cfg.PoolSize)
	}
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pc.MaxConns = int32(cfg.PoolSize)
	pc.MinConns = int32(min(max(cfg.MinConns, 0), cfg.PoolSize))
	pc.ConnConfig.ConnectTimeout = orDefault(cfg.ConnectTimeout, defaultConnectTimeout)
	pc.MaxConnLifetime = orDefault(cfg.MaxConnLifetime, defaultMaxConnLifetime)
	pc.MaxConnIdleTime = orDefault(cfg.MaxConnIdleTime, defaultMaxConnIdleTime)
	pc.HealthCheckPeriod = healthCheckPeriod
	pc.ConnConfig.RuntimeParams["application_name"] = ApplicationName
	return pc, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// NewPool connects to PostgreSQL and verifies the connection.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Name).
		Int32("max_conns", pc.MaxConns).
		Int32("min_conns", pc.MinConns).
		Msg("Connecting to PostgreSQL")

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to PostgreSQL")
	return &Pool{Pool: pool}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	if p.Pool != nil {
		p.Pool.Close()
		log.Info().Msg("PostgreSQL connection pool closed")
	}
}

// Snapshot reports the pool counters exported on /metrics.
func (p *Pool) Snapshot() metrics.PoolStats {
	s := p.Pool.Stat()
	return metrics.PoolStats{
		Acquired:      s.AcquiredConns(),
		Idle:          s.IdleConns(),
		Total:         s.TotalConns(),
		Max:           s.MaxConns(),
		EmptyAcquires: s.EmptyAcquireCount(),
		AcquireWait:   s.AcquireDuration(),
	}
}

// HealthCheck pings the database.
func (p *Pool) HealthCheck(ctx context.Context) error {
	return p.Pool.Ping(ctx)
}
