// Package postgresengine provides a PostgreSQL implementation of circulation.Store.
//
// Every Transact runs in one database transaction that first locks the book's row in
// book_inventory with SELECT ... FOR UPDATE. That row lock is the per-book serialization token:
// concurrent transactions of the same book queue up on it, different books never touch each other.
// The caller's context governs only the wait for the lock. Once it is held, reads, writes and commit
// run on a detached context bounded by the write timeout, so a cancelled request never leaves
// half a decision behind.
//
// Partial unique indexes on open loans and waiting reservations are a second line of defence;
// their violations are reported as circulation.ErrDuplicateLoan and circulation.ErrAlreadyReserved.
//
// Supported database adapters: pgxpool.Pool, sql.DB (lib/pq) and sqlx.DB, each optionally with a
// read replica that serves reads made with circulation.WithEventualConsistency.
//
// Usage examples:
//
//	pool, _ := pgxpool.New(ctx, dsn)
//	store, _ := postgresengine.NewStoreFromPGXPool(pool, postgresengine.WithLogger(logger))
//
//	coordinator, _ := circulation.NewCoordinator(store, circulation.WithCatalog(store.Catalog()))
package postgresengine
