package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CockroachConfig holds CockroachDB connection configuration
type CockroachConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// CockroachDB wraps the pgx connection pool used for durable call history
type CockroachDB struct {
	Pool *pgxpool.Pool
}

// NewCockroachDB creates a connection pool and verifies connectivity
func NewCockroachDB(ctx context.Context, cfg *CockroachConfig) (*CockroachDB, error) {
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping CockroachDB: %w", err)
	}

	return &CockroachDB{Pool: pool}, nil
}

// Close closes the connection pool
func (db *CockroachDB) Close() {
	if db != nil && db.Pool != nil {
		db.Pool.Close()
	}
}
