// Package db opens the action journal database.
package db

import (
	"context"
	"fmt"
	"time"

	"roamlotto/internal/config"
	"roamlotto/internal/dbinit"

	"github.com/jackc/pgx/v5/pgxpool"
)

func NewPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse pg url: %w", err)
	}
	// one daemon serves one wallet; the journal sees a write per action
	cfg.MinConns = 1
	cfg.MaxConns = 4
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// Open creates and migrates the journal database when needed, then
// returns a pool on it.
func Open(ctx context.Context, d config.DatabaseConfig) (*pgxpool.Pool, error) {
	adminURL, err := d.AdminURL()
	if err != nil {
		return nil, err
	}
	if err := dbinit.EnsureDatabaseAndMigrate(ctx, adminURL, d.DBName(), d.User); err != nil {
		return nil, fmt.Errorf("db init: %w", err)
	}
	appURL, err := d.AppURL()
	if err != nil {
		return nil, err
	}
	return NewPool(ctx, appURL)
}
