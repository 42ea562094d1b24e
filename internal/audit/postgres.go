package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists ScalingEvents to a `scaling_events` table.
// Grounded in control_plane/store/postgres.go's pgxpool usage, repurposed
// from mutable agent/job/state rows to an append-only journal: every
// Record call is a plain INSERT, there is no UPSERT or read path back into
// this package at all.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger connects to connString and verifies connectivity.
// Expected schema:
//
//	CREATE TABLE scaling_events (
//	  id             BIGSERIAL PRIMARY KEY,
//	  tenant         TEXT NOT NULL,
//	  app_id         TEXT NOT NULL,
//	  occurred_at    TIMESTAMPTZ NOT NULL,
//	  kind           TEXT NOT NULL,
//	  detail         TEXT NOT NULL,
//	  from_instances INT NOT NULL,
//	  to_instances   INT NOT NULL
//	);
func NewPostgresLedger(ctx context.Context, connString string) (*PostgresLedger, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("audit: parsing connection string: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("audit: creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("audit: pinging postgres: %w", err)
	}
	return &PostgresLedger{pool: pool}, nil
}

// Close releases the connection pool.
func (l *PostgresLedger) Close() {
	l.pool.Close()
}

func (l *PostgresLedger) Record(ctx context.Context, ev Event) error {
	const query = `
		INSERT INTO scaling_events (tenant, app_id, occurred_at, kind, detail, from_instances, to_instances)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := l.pool.Exec(ctx, query,
		ev.Tenant, ev.AppID, ev.OccurredAt, ev.Kind, ev.Detail, ev.FromInstances, ev.ToInstances,
	)
	if err != nil {
		return fmt.Errorf("audit: inserting scaling event: %w", err)
	}
	return nil
}
