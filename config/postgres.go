package config

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresengine"
)

const (
	driverPostgres = "postgres"

	defaultMaxConnections    = 20
	defaultMinConnections    = 2
	defaultMaxIdleConns      = 2
	defaultMaxConnLifetime   = time.Hour
	defaultMaxConnIdleTime   = time.Minute * 5
	defaultHealthCheckPeriod = time.Minute
	defaultConnectTimeout    = time.Second * 5
)

// PGXPoolConfig creates a pgxpool.Config for the given DSN.
func PGXPoolConfig(dsn string) (*pgxpool.Config, error) {
	dbConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}

	dbConfig.MaxConns = defaultMaxConnections
	dbConfig.MinConns = defaultMinConnections
	dbConfig.MaxConnLifetime = defaultMaxConnLifetime
	dbConfig.MaxConnIdleTime = defaultMaxConnIdleTime
	dbConfig.HealthCheckPeriod = defaultHealthCheckPeriod
	dbConfig.ConnConfig.ConnectTimeout = defaultConnectTimeout

	return dbConfig, nil
}

// OpenPGXPool creates and pings a pgxpool.Pool.
func OpenPGXPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	dbConfig, err := PGXPoolConfig(dsn)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		return nil, fmt.Errorf("creating pgx pool: %w", err)
	}

	if pingErr := pool.Ping(ctx); pingErr != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", pingErr)
	}

	return pool, nil
}

// OpenSQLDB opens and pings a *sql.DB using lib/pq.
func OpenSQLDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	configureSQLDB(db)

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", pingErr)
	}

	return db, nil
}

// OpenSQLX opens and pings a *sqlx.DB using lib/pq.
func OpenSQLX(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	configureSQLDB(db.DB)

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", pingErr)
	}

	return db, nil
}

func configureSQLDB(db *sql.DB) {
	db.SetMaxOpenConns(defaultMaxConnections)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultMaxConnLifetime)
	db.SetConnMaxIdleTime(defaultMaxConnIdleTime)
}

// OpenPostgresStore connects with the configured adapter and builds the Postgres store.
// The returned close function releases all connections.
func OpenPostgresStore(
	ctx context.Context,
	cfg Config,
	options ...postgresengine.Option,
) (*postgresengine.Store, func(), error) {

	switch cfg.AdapterType {
	case AdapterPGXPool, "":
		return openPGXStore(ctx, cfg, options)
	case AdapterSQLDB:
		return openSQLDBStore(ctx, cfg, options)
	case AdapterSQLXDB:
		return openSQLXStore(ctx, cfg, options)
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedAdapterType, cfg.AdapterType)
	}
}

func openPGXStore(ctx context.Context, cfg Config, options []postgresengine.Option) (*postgresengine.Store, func(), error) {
	pool, err := OpenPGXPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}

	if cfg.PostgresReplicaDSN == "" {
		store, storeErr := postgresengine.NewStoreFromPGXPool(pool, options...)
		if storeErr != nil {
			pool.Close()
			return nil, nil, storeErr
		}

		return store, pool.Close, nil
	}

	replica, err := OpenPGXPool(ctx, cfg.PostgresReplicaDSN)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	closeAll := func() {
		replica.Close()
		pool.Close()
	}

	store, err := postgresengine.NewStoreFromPGXPoolAndReplica(pool, replica, options...)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	return store, closeAll, nil
}

func openSQLDBStore(ctx context.Context, cfg Config, options []postgresengine.Option) (*postgresengine.Store, func(), error) {
	db, err := OpenSQLDB(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}

	var replica *sql.DB
	if cfg.PostgresReplicaDSN != "" {
		if replica, err = OpenSQLDB(ctx, cfg.PostgresReplicaDSN); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}

	closeAll := func() {
		if replica != nil {
			_ = replica.Close()
		}
		_ = db.Close()
	}

	var store *postgresengine.Store
	if replica != nil {
		store, err = postgresengine.NewStoreFromSQLDBAndReplica(db, replica, options...)
	} else {
		store, err = postgresengine.NewStoreFromSQLDB(db, options...)
	}

	if err != nil {
		closeAll()
		return nil, nil, err
	}

	return store, closeAll, nil
}

func openSQLXStore(ctx context.Context, cfg Config, options []postgresengine.Option) (*postgresengine.Store, func(), error) {
	db, err := OpenSQLX(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}

	var replica *sqlx.DB
	if cfg.PostgresReplicaDSN != "" {
		if replica, err = OpenSQLX(ctx, cfg.PostgresReplicaDSN); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}

	closeAll := func() {
		if replica != nil {
			_ = replica.Close()
		}
		_ = db.Close()
	}

	var store *postgresengine.Store
	if replica != nil {
		store, err = postgresengine.NewStoreFromSQLXAndReplica(db, replica, options...)
	} else {
		store, err = postgresengine.NewStoreFromSQLX(db, options...)
	}

	if err != nil {
		closeAll()
		return nil, nil, err
	}

	return store, closeAll, nil
}
