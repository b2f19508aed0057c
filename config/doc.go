// Package config loads the circulation configuration from the environment and builds
// the PostgreSQL connections for the supported adapters (pgx.Pool, sql.DB, sqlx.DB).
//
// A .env file in the working directory is loaded first if it exists; variables that are
// already set in the environment win.
package config
