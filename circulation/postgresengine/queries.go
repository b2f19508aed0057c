package postgresengine

import (
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

const (
	dialectPostgres = "postgres"

	tableInventory    = "book_inventory"
	tableLoans        = "loans"
	tableReservations = "reservations"
	tableCatalog      = "catalog_books"

	colID              = "id"
	colBookID          = "book_id"
	colTotalCopies     = "total_copies"
	colAvailableCopies = "available_copies"
	colShortfall       = "shortfall"
	colReservationSeq  = "reservation_seq"
	colUpdatedAt       = "updated_at"
	colBorrowerID      = "borrower_id"
	colStatus          = "status"
	colBorrowedAt      = "borrowed_at"
	colDueAt           = "due_at"
	colReturnedAt      = "returned_at"
	colMemberID        = "member_id"
	colQueuePosition   = "queue_position"
	colCreatedAt       = "created_at"
	colResolvedAt      = "resolved_at"
	colTitle           = "title"

	excludedPrefix = "EXCLUDED."
)

type (
	sqlQueryString = string
	sqlArgs        = []any
)

var builder = goqu.Dialect(dialectPostgres)

var inventoryColumns = []any{colBookID, colTotalCopies, colAvailableCopies, colShortfall, colReservationSeq, colUpdatedAt}

var loanColumns = []any{colID, colBookID, colBorrowerID, colStatus, colBorrowedAt, colDueAt, colReturnedAt}

var reservationColumns = []any{colID, colBookID, colMemberID, colQueuePosition, colCreatedAt, colStatus, colResolvedAt}

var openLoanStatuses = []string{string(circulation.LoanRequested), string(circulation.LoanActive)}

func toSQL(ds interface {
	ToSQL() (string, []any, error)
}) (sqlQueryString, sqlArgs, error) {

	query, args, err := ds.ToSQL()
	if err != nil {
		return "", nil, errors.Join(ErrBuildingQueryFailed, err)
	}

	return query, args, nil
}

func buildCreateBookQuery(bookID circulation.BookID, now time.Time) (sqlQueryString, sqlArgs, error) {
	return toSQL(builder.
		Insert(tableInventory).
		Prepared(true).
		Rows(goqu.Record{
			colBookID:          bookID,
			colTotalCopies:     0,
			colAvailableCopies: 0,
			colShortfall:       0,
			colReservationSeq:  0,
			colUpdatedAt:       now,
		}).
		OnConflict(goqu.DoNothing()))
}

func buildLockInventoryQuery(bookID circulation.BookID) (sqlQueryString, sqlArgs, error) {
	return toSQL(builder.
		From(tableInventory).
		Prepared(true).
		Select(inventoryColumns...).
		Where(goqu.C(colBookID).Eq(bookID)).
		ForUpdate(exp.Wait))
}

func buildSelectInventoryQuery(bookID circulation.BookID) (sqlQueryString, sqlArgs, error) {
	return toSQL(builder.
		From(tableInventory).
		Prepared(true).
		Select(inventoryColumns...).
		Where(goqu.C(colBookID).Eq(bookID)))
}

func buildUpdateInventoryQuery(inv circulation.BookInventory) (sqlQueryString, sqlArgs, error) {
	return toSQL(builder.
		Update(tableInventory).
		Prepared(true).
		Set(goqu.Record{
			colTotalCopies:     inv.TotalCopies,
			colAvailableCopies: inv.AvailableCopies,
			colShortfall:       inv.Shortfall,
			colReservationSeq:  inv.ReservationSeq,
			colUpdatedAt:       circulation.ToTimestamp(inv.UpdatedAt),
		}).
		Where(goqu.C(colBookID).Eq(inv.BookID)))
}

func buildSelectOpenLoansQuery(bookID circulation.BookID) (sqlQueryString, sqlArgs, error) {
	return toSQL(builder.
		From(tableLoans).
		Prepared(true).
		Select(loanColumns...).
		Where(
			goqu.C(colBookID).Eq(bookID),
			goqu.C(colStatus).In(openLoanStatuses),
		).
		Order(goqu.I(colBorrowedAt).Asc(), goqu.I(colID).Asc()))
}

func buildSelectLoanQuery(loanID circulation.LoanID) (sqlQueryString, sqlArgs, error) {
	return toSQL(builder.
		From(tableLoans).
		Prepared(true).
		Select(loanColumns...).
		Where(goqu.C(colID).Eq(loanID.String())))
}

func buildSelectLoansForMemberQuery(memberID circulation.MemberID) (sqlQueryString, sqlArgs, error) {
	return toSQL(builder.
		From(tableLoans).
		Prepared(true).
		Select(loanColumns...).
		Where(goqu.C(colBorrowerID).Eq(memberID)).
		Order(goqu.I(colBorrowedAt).Asc(), goqu.I(colID).Asc()))
}

func buildUpsertLoanQuery(loan circulation.Loan) (sqlQueryString, sqlArgs, error) {
	return toSQL(builder.
		Insert(tableLoans).
		Prepared(true).
		Rows(goqu.Record{
			colID:         loan.ID.String(),
			colBookID:     loan.BookID,
			colBorrowerID: loan.BorrowerID,
			colStatus:     string(loan.Status),
			colBorrowedAt: circulation.ToTimestamp(loan.BorrowedAt),
			colDueAt:      circulation.ToTimestamp(loan.DueAt),
			colReturnedAt: nullableTime(loan.ReturnedAt),
		}).
		OnConflict(goqu.DoUpdate(colID, excluded(colStatus, colBorrowedAt, colDueAt, colReturnedAt))))
}

func buildSelectWaitingReservationsQuery(bookID circulation.BookID) (sqlQueryString, sqlArgs, error) {
	return toSQL(builder.
		From(tableReservations).
		Prepared(true).
		Select(reservationColumns...).
		Where(
			goqu.C(colBookID).Eq(bookID),
			goqu.C(colStatus).Eq(string(circulation.ReservationWaiting)),
		).
		Order(goqu.I(colQueuePosition).Asc()))
}

func buildSelectReservationQuery(reservationID circulation.ReservationID) (sqlQueryString, sqlArgs, error) {
	return toSQL(builder.
		From(tableReservations).
		Prepared(true).
		Select(reservationColumns...).
		Where(goqu.C(colID).Eq(reservationID.String())))
}

func buildSelectReservationsQuery(bookID circulation.BookID) (sqlQueryString, sqlArgs, error) {
	return toSQL(builder.
		From(tableReservations).
		Prepared(true).
		Select(reservationColumns...).
		Where(goqu.C(colBookID).Eq(bookID)).
		Order(goqu.I(colQueuePosition).Asc()))
}

func buildUpsertReservationQuery(r circulation.Reservation) (sqlQueryString, sqlArgs, error) {
	return toSQL(builder.
		Insert(tableReservations).
		Prepared(true).
		Rows(goqu.Record{
			colID:            r.ID.String(),
			colBookID:        r.BookID,
			colMemberID:      r.MemberID,
			colQueuePosition: r.QueuePosition,
			colCreatedAt:     circulation.ToTimestamp(r.CreatedAt),
			colStatus:        string(r.Status),
			colResolvedAt:    nullableTime(r.ResolvedAt),
		}).
		OnConflict(goqu.DoUpdate(colID, excluded(colStatus, colResolvedAt))))
}

func buildSelectCatalogEntryQuery(bookID circulation.BookID) (sqlQueryString, sqlArgs, error) {
	return toSQL(builder.
		From(tableCatalog).
		Prepared(true).
		Select(colBookID, colTitle, colTotalCopies).
		Where(goqu.C(colBookID).Eq(bookID)))
}

func buildUpsertCatalogEntryQuery(entry circulation.CatalogEntry) (sqlQueryString, sqlArgs, error) {
	return toSQL(builder.
		Insert(tableCatalog).
		Prepared(true).
		Rows(goqu.Record{
			colBookID:      entry.BookID,
			colTitle:       entry.Title,
			colTotalCopies: entry.TotalCopies,
		}).
		OnConflict(goqu.DoUpdate(colBookID, excluded(colTitle, colTotalCopies))))
}

// excluded builds the SET clause of an upsert that takes the given columns from the proposed row.
func excluded(columns ...string) goqu.Record {
	record := make(goqu.Record, len(columns))
	for _, column := range columns {
		record[column] = goqu.L(excludedPrefix + column)
	}

	return record
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}

	return circulation.ToTimestamp(*t)
}
