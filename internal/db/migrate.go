package db

import (
	"context"
	_ "embed"
	"fmt"

	"bloodlink/pkg/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// Migrate creates the configured schema and applies schema.sql to it. Every
// statement in schema.sql is idempotent, so Migrate is safe to rerun.
func Migrate(ctx context.Context, pool *pgxpool.Pool, config *types.Config) error {
	schema := pgx.Identifier{schemaName(config)}.Sanitize()

	_, err := pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, "SET search_path TO "+schema)
	if err != nil {
		return fmt.Errorf("set search path: %w", err)
	}

	// No arguments, so pgx sends this over the simple protocol, which
	// accepts several statements at once.
	_, err = conn.Exec(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	return nil
}
