package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a SQL-backed Store for operators who already run
// Postgres for everything else and would rather not stand up a second
// storage system just for this pipeline's durable state. It keeps a
// single table of (key text primary key, value text); the table is
// expected to exist already — the pipeline does not run migrations.
type Postgres struct {
	pool  *pgxpool.Pool
	table string
}

// OpenPostgres connects to Postgres at dsn, using table (default
// "errwebhook_store" when empty) for the key-value rows.
func OpenPostgres(ctx context.Context, dsn, table string) (*Postgres, error) {
	if table == "" {
		table = "errwebhook_store"
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("errwebhook: parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 5

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("errwebhook: postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("errwebhook: postgres ping: %w", err)
	}

	return &Postgres{pool: pool, table: table}, nil
}

func (p *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	query := fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, p.table)
	err := p.pool.QueryRow(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("errwebhook: postgres get %q: %w", key, err)
	}
	return value, true, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, p.table)
	if _, err := p.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("errwebhook: postgres set %q: %w", key, err)
	}
	return nil
}

func (p *Postgres) Remove(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, p.table)
	if _, err := p.pool.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("errwebhook: postgres remove %q: %w", key, err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
