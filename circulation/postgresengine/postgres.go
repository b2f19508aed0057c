package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresengine/internal/adapters"
)

// DefaultWriteTimeout bounds the work of a transaction after the book lock is acquired.
const DefaultWriteTimeout = 5 * time.Second

// Store is a circulation.Store backed by PostgreSQL.
type Store struct {
	db               adapters.DBAdapter
	logger           circulation.Logger
	metricsCollector circulation.MetricsCollector
	writeTimeout     time.Duration
	clock            func() time.Time
}

// NewStoreFromPGXPool creates a new Store using a pgx Pool with optional configuration.
func NewStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGXAdapter(db), options)
}

// NewStoreFromPGXPoolAndReplica creates a new Store using a pgx Pool for writes and strongly consistent reads,
// and a replica pool for reads made with circulation.WithEventualConsistency.
func NewStoreFromPGXPoolAndReplica(db *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*Store, error) {
	if db == nil || replica == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGXAdapterWithReplica(db, replica), options)
}

// NewStoreFromSQLDB creates a new Store using a sql.DB with optional configuration.
func NewStoreFromSQLDB(db *sql.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLAdapter(db), options)
}

// NewStoreFromSQLDBAndReplica creates a new Store using a primary and a replica sql.DB.
func NewStoreFromSQLDBAndReplica(db *sql.DB, replica *sql.DB, options ...Option) (*Store, error) {
	if db == nil || replica == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLAdapterWithReplica(db, replica), options)
}

// NewStoreFromSQLX creates a new Store using a sqlx.DB with optional configuration.
func NewStoreFromSQLX(db *sqlx.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLXAdapter(db), options)
}

// NewStoreFromSQLXAndReplica creates a new Store using a primary and a replica sqlx.DB.
func NewStoreFromSQLXAndReplica(db *sqlx.DB, replica *sqlx.DB, options ...Option) (*Store, error) {
	if db == nil || replica == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLXAdapterWithReplica(db, replica), options)
}

func newStore(db adapters.DBAdapter, options []Option) (*Store, error) {
	s := &Store{
		db:           db,
		writeTimeout: DefaultWriteTimeout,
		clock:        time.Now,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Catalog returns a circulation.Catalog on the catalog_books table of the same database.
func (s *Store) Catalog() *Catalog {
	return &Catalog{store: s}
}

// CreateBook inserts an empty book_inventory row unless one exists.
func (s *Store) CreateBook(ctx context.Context, bookID circulation.BookID) error {
	query, args, err := buildCreateBookQuery(bookID, circulation.ToTimestamp(s.clock()))
	if err != nil {
		return err
	}

	start := time.Now()
	_, execErr := s.db.Exec(ctx, query, args...)
	s.logQueryWithDuration(query, logActionCreateBook, time.Since(start))

	if execErr != nil {
		s.logError(logMsgDBExecFailed, logAttrError, execErr.Error(), logAttrQuery, query)
		return errors.Join(ErrWritingFailed, execErr)
	}

	return nil
}

// Transact locks the book's inventory row, loads the book state, runs fn and applies its changes
// in the same database transaction.
//
// Cancelling ctx aborts the wait for the row lock and rolls back. Once the lock is held,
// cancellation is ignored and the transaction finishes within the write timeout.
func (s *Store) Transact(ctx context.Context, bookID circulation.BookID, fn circulation.TransactFunc) error {
	return s.transact(ctx, bookID, false, fn)
}

// TransactOrCreate is Transact for a book that may have no book_inventory row yet. A missing row is
// inserted in the same database transaction before the lock is taken, so a rollback removes it again.
func (s *Store) TransactOrCreate(ctx context.Context, bookID circulation.BookID, fn circulation.TransactFunc) error {
	return s.transact(ctx, bookID, true, fn)
}

func (s *Store) transact(
	ctx context.Context,
	bookID circulation.BookID,
	create bool,
	fn circulation.TransactFunc,
) error {

	if err := ctx.Err(); err != nil {
		return err
	}

	tx, beginErr := s.db.BeginTx(ctx)
	if beginErr != nil {
		s.logError(logMsgBeginTxFailed, logAttrError, beginErr.Error(), logAttrBookID, bookID)
		s.countTransaction(outcomeFailed)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		return errors.Join(ErrBeginTxFailed, beginErr)
	}

	lockStart := time.Now()
	inv, lockErr := s.lockInventory(ctx, tx, bookID, create)
	s.recordLockWait(time.Since(lockStart), lockErr)

	if lockErr != nil {
		s.rollback(ctx, tx, bookID)

		if ctxErr := ctx.Err(); ctxErr != nil {
			s.countTransaction(outcomeAbandoned)
			return ctxErr
		}

		if errors.Is(lockErr, circulation.ErrBookNotFound) {
			s.countTransaction(outcomeRolledBack)
		} else {
			s.countTransaction(outcomeFailed)
		}

		return lockErr
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
	defer cancel()

	if err := s.decideAndApply(writeCtx, tx, inv, fn); err != nil {
		s.rollback(writeCtx, tx, bookID)

		if circulation.IsBusinessRejection(err) {
			s.countTransaction(outcomeRolledBack)
		} else {
			s.countTransaction(outcomeFailed)
		}

		return err
	}

	if commitErr := tx.Commit(writeCtx); commitErr != nil {
		s.logError(logMsgCommitFailed, logAttrError, commitErr.Error(), logAttrBookID, bookID)
		s.countTransaction(outcomeFailed)

		return errors.Join(ErrCommitFailed, mapConstraintViolation(commitErr))
	}

	s.countTransaction(outcomeCommitted)

	return nil
}

func (s *Store) decideAndApply(
	ctx context.Context,
	tx adapters.DBTx,
	inv circulation.BookInventory,
	fn circulation.TransactFunc,
) error {

	state, loadErr := s.loadState(ctx, tx, inv)
	if loadErr != nil {
		return loadErr
	}

	changes, decideErr := fn(state)
	if decideErr != nil {
		return decideErr
	}

	if changes.IsEmpty() {
		return nil
	}

	return s.applyChanges(ctx, tx, inv.BookID, changes)
}

func (s *Store) lockInventory(
	ctx context.Context,
	tx adapters.DBTx,
	bookID circulation.BookID,
	create bool,
) (circulation.BookInventory, error) {

	if create {
		if err := s.insertMissingBook(ctx, tx, bookID); err != nil {
			return circulation.BookInventory{}, err
		}
	}

	query, args, err := buildLockInventoryQuery(bookID)
	if err != nil {
		return circulation.BookInventory{}, err
	}

	start := time.Now()
	rows, queryErr := tx.Query(ctx, query, args...)
	if queryErr != nil {
		s.logQueryWithDuration(query, logActionLock, time.Since(start))
		return circulation.BookInventory{}, errors.Join(ErrLockingBookFailed, queryErr)
	}
	defer s.closeRows(rows)

	inventories, scanErr := scanInventories(rows)
	s.logQueryWithDuration(query, logActionLock, time.Since(start))

	if scanErr != nil {
		return circulation.BookInventory{}, errors.Join(ErrLockingBookFailed, scanErr)
	}

	if len(inventories) == 0 {
		return circulation.BookInventory{}, circulation.ErrBookNotFound
	}

	return inventories[0], nil
}

// insertMissingBook waits for a concurrent insert of the same row to commit or roll back.
func (s *Store) insertMissingBook(ctx context.Context, tx adapters.DBTx, bookID circulation.BookID) error {
	query, args, err := buildCreateBookQuery(bookID, circulation.ToTimestamp(s.clock()))
	if err != nil {
		return err
	}

	start := time.Now()
	_, execErr := tx.Exec(ctx, query, args...)
	s.logQueryWithDuration(query, logActionCreateBook, time.Since(start))

	if execErr != nil {
		return errors.Join(ErrLockingBookFailed, execErr)
	}

	return nil
}

func (s *Store) loadState(
	ctx context.Context,
	tx adapters.DBTx,
	inv circulation.BookInventory,
) (circulation.BookState, error) {

	loansQuery, loansArgs, err := buildSelectOpenLoansQuery(inv.BookID)
	if err != nil {
		return circulation.BookState{}, err
	}

	openLoans, err := queryRows(ctx, s, tx.Query, logActionLoadLoans, loansQuery, loansArgs, scanLoans)
	if err != nil {
		return circulation.BookState{}, err
	}

	waitingQuery, waitingArgs, err := buildSelectWaitingReservationsQuery(inv.BookID)
	if err != nil {
		return circulation.BookState{}, err
	}

	waiting, err := queryRows(ctx, s, tx.Query, logActionLoadReservations, waitingQuery, waitingArgs, scanReservations)
	if err != nil {
		return circulation.BookState{}, err
	}

	return circulation.BookState{Inventory: inv, OpenLoans: openLoans, Waiting: waiting}, nil
}

// applyChanges writes the upserts in order: inventory, loans, reservations.
func (s *Store) applyChanges(
	ctx context.Context,
	tx adapters.DBTx,
	bookID circulation.BookID,
	changes circulation.Changes,
) error {

	if changes.Inventory != nil {
		inv := *changes.Inventory
		inv.BookID = bookID

		query, args, err := buildUpdateInventoryQuery(inv)
		if err != nil {
			return err
		}

		rowsAffected, err := s.exec(ctx, tx, logActionWriteInventory, query, args)
		if err != nil {
			return err
		}

		if rowsAffected != 1 {
			return ErrInventoryRowNotLocked
		}
	}

	for _, loan := range changes.Loans {
		query, args, err := buildUpsertLoanQuery(loan)
		if err != nil {
			return err
		}

		if _, err = s.exec(ctx, tx, logActionWriteLoan, query, args); err != nil {
			return err
		}
	}

	for _, reservation := range changes.Reservations {
		query, args, err := buildUpsertReservationQuery(reservation)
		if err != nil {
			return err
		}

		if _, err = s.exec(ctx, tx, logActionWriteReservation, query, args); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) exec(ctx context.Context, tx adapters.DBTx, action string, query string, args []any) (int64, error) {
	start := time.Now()
	result, execErr := tx.Exec(ctx, query, args...)
	s.logQueryWithDuration(query, action, time.Since(start))

	if execErr != nil {
		mapped := mapConstraintViolation(execErr)
		if !circulation.IsBusinessRejection(mapped) {
			s.logError(logMsgDBExecFailed, logAttrError, execErr.Error(), logAttrQuery, query)
			return 0, errors.Join(ErrWritingFailed, execErr)
		}

		return 0, mapped
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Join(ErrWritingFailed, err)
	}

	return rowsAffected, nil
}

func (s *Store) rollback(ctx context.Context, tx adapters.DBTx, bookID circulation.BookID) {
	rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
	defer cancel()

	if err := tx.Rollback(rollbackCtx); err != nil {
		s.logWarn(logMsgRollbackFailed, logAttrError, err.Error(), logAttrBookID, bookID)
	}
}

// closeRows safely closes database rows and logs any errors.
func (s *Store) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		s.logWarn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}
