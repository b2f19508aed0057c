// Package migrations embeds the PostgreSQL schema of the circulation store and applies it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"
)

const (
	dialectPostgres = "postgres"
	migrationsDir   = "sql"
)

//go:embed sql/*.sql
var embedded embed.FS

// ErrUnknownCommand is returned by Run for commands other than up, down, status, version and reset.
var ErrUnknownCommand = errors.New("unknown migration command")

func init() {
	goose.SetBaseFS(embedded)
}

// Up applies all pending migrations.
func Up(ctx context.Context, db *sql.DB) error {
	return Run(ctx, db, "up")
}

// Run executes a goose command against the embedded migrations.
func Run(ctx context.Context, db *sql.DB, command string) error {
	if err := goose.SetDialect(dialectPostgres); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	switch command {
	case "up":
		return goose.UpContext(ctx, db, migrationsDir)
	case "down":
		return goose.DownContext(ctx, db, migrationsDir)
	case "status":
		return goose.StatusContext(ctx, db, migrationsDir)
	case "reset":
		return goose.ResetContext(ctx, db, migrationsDir)
	case "version":
		_, err := goose.GetDBVersionContext(ctx, db)
		return err
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

// Version returns the current schema version.
func Version(ctx context.Context, db *sql.DB) (int64, error) {
	if err := goose.SetDialect(dialectPostgres); err != nil {
		return 0, fmt.Errorf("setting goose dialect: %w", err)
	}

	return goose.GetDBVersionContext(ctx, db)
}
