// Package postgreswrapper provides the PostgreSQL circulation store to integration tests.
//
// Tests run only with CIRCULATION_INTEGRATION=1. The database is POSTGRES_TEST_DSN if set,
// otherwise a throwaway container started with testcontainers. ADAPTER_TYPE selects the
// adapter (pgx.pool, sql.db, sqlx.db). Migrations are applied once per process.
package postgreswrapper

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresengine"
	"github.com/AntonStoeckl/library-circulation-go/config"
	"github.com/AntonStoeckl/library-circulation-go/migrations"
)

const (
	envIntegration = "CIRCULATION_INTEGRATION"
	envTestDSN     = "POSTGRES_TEST_DSN"
	envAdapterType = "ADAPTER_TYPE"

	postgresImage = "postgres:17-alpine"
	testDatabase  = "circulation"
	testUser      = "test"
	testPassword  = "test"
)

var (
	dsnOnce sync.Once
	dsn     string
	dsnErr  error
)

// Wrapper owns a Postgres store and its connections.
type Wrapper struct {
	store   *postgresengine.Store
	closeDB func()
	cfg     config.Config
}

// GetStore returns the wrapped store.
func (w *Wrapper) GetStore() *postgresengine.Store {
	return w.store
}

// AdapterType returns the adapter the store was built with.
func (w *Wrapper) AdapterType() string {
	return w.cfg.AdapterType
}

// Close releases all connections.
func (w *Wrapper) Close() {
	w.closeDB()
}

// SkipUnlessIntegration skips the test unless integration tests are enabled.
func SkipUnlessIntegration(t testing.TB) {
	t.Helper()

	if os.Getenv(envIntegration) != "1" {
		t.Skipf("set %s=1 to run PostgreSQL integration tests", envIntegration)
	}
}

// CreateWrapperWithTestConfig creates a migrated store for the adapter selected by ADAPTER_TYPE.
// It skips the test unless integration tests are enabled.
func CreateWrapperWithTestConfig(t testing.TB, options ...postgresengine.Option) *Wrapper {
	t.Helper()
	SkipUnlessIntegration(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	testDSN, err := migratedDSN(ctx)
	require.NoError(t, err, "error preparing the test database")

	adapterType := strings.ToLower(os.Getenv(envAdapterType))
	if adapterType == "" {
		adapterType = config.AdapterPGXPool
	}

	cfg := config.Config{AdapterType: adapterType, PostgresDSN: testDSN}

	store, closeDB, err := config.OpenPostgresStore(ctx, cfg, options...)
	require.NoError(t, err, "error creating the postgres store")

	w := &Wrapper{store: store, closeDB: closeDB, cfg: cfg}
	t.Cleanup(w.Close)

	return w
}

// TryCreateStore builds a store with the given options for the configured adapter and returns the construction error.
func TryCreateStore(t testing.TB, options ...postgresengine.Option) error {
	t.Helper()
	SkipUnlessIntegration(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	testDSN, err := migratedDSN(ctx)
	require.NoError(t, err, "error preparing the test database")

	_, closeDB, err := config.OpenPostgresStore(ctx, config.Config{AdapterType: os.Getenv(envAdapterType), PostgresDSN: testDSN}, options...)
	if err == nil {
		closeDB()
	}

	return err
}

func migratedDSN(ctx context.Context) (string, error) {
	dsnOnce.Do(func() {
		dsn, dsnErr = resolveDSN(ctx)
		if dsnErr != nil {
			return
		}

		db, err := config.OpenSQLDB(ctx, dsn)
		if err != nil {
			dsnErr = err
			return
		}
		defer func() { _ = db.Close() }()

		dsnErr = migrations.Up(ctx, db)
	})

	return dsn, dsnErr
}

// resolveDSN uses POSTGRES_TEST_DSN or starts a container that lives until the test process exits.
func resolveDSN(ctx context.Context) (string, error) {
	if fromEnv := os.Getenv(envTestDSN); fromEnv != "" {
		return fromEnv, nil
	}

	container, err := postgres.Run(context.WithoutCancel(ctx),
		postgresImage,
		postgres.WithDatabase(testDatabase),
		postgres.WithUsername(testUser),
		postgres.WithPassword(testPassword),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return "", fmt.Errorf("starting postgres container: %w", err)
	}

	return container.ConnectionString(ctx, "sslmode=disable")
}
