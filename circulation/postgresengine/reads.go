package postgresengine

import (
	"context"
	"errors"
	"time"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresengine/internal/adapters"
)

type queryFunc func(ctx context.Context, query string, args ...any) (adapters.DBRows, error)

type scanFunc[T any] func(rows adapters.DBRows) ([]T, error)

// readFunc routes reads with circulation.EventualConsistency to the replica.
func (s *Store) readFunc(ctx context.Context) queryFunc {
	if circulation.GetConsistencyLevel(ctx) == circulation.EventualConsistency {
		return s.db.QueryReplica
	}

	return s.db.Query
}

func queryRows[T any](
	ctx context.Context,
	s *Store,
	query queryFunc,
	action string,
	sqlQuery string,
	args []any,
	scan scanFunc[T],
) ([]T, error) {

	start := time.Now()
	rows, queryErr := query(ctx, sqlQuery, args...)
	if queryErr != nil {
		s.logQueryWithDuration(sqlQuery, action, time.Since(start))
		s.logError(logMsgDBQueryFailed, logAttrError, queryErr.Error(), logAttrQuery, sqlQuery)

		return nil, errors.Join(ErrQueryingFailed, queryErr)
	}
	defer s.closeRows(rows)

	result, scanErr := scan(rows)
	s.logQueryWithDuration(sqlQuery, action, time.Since(start))

	if scanErr != nil {
		s.logError(logMsgScanRowFailed, logAttrError, scanErr.Error())
		return nil, scanErr
	}

	return result, nil
}

// Inventory returns the ledger counters of the book.
func (s *Store) Inventory(ctx context.Context, bookID circulation.BookID) (circulation.BookInventory, error) {
	query, args, err := buildSelectInventoryQuery(bookID)
	if err != nil {
		return circulation.BookInventory{}, err
	}

	inventories, err := queryRows(ctx, s, s.readFunc(ctx), logActionReadInventory, query, args, scanInventories)
	if err != nil {
		return circulation.BookInventory{}, err
	}

	if len(inventories) == 0 {
		return circulation.BookInventory{}, circulation.ErrBookNotFound
	}

	return inventories[0], nil
}

// Loan returns the stored loan.
func (s *Store) Loan(ctx context.Context, loanID circulation.LoanID) (circulation.Loan, error) {
	query, args, err := buildSelectLoanQuery(loanID)
	if err != nil {
		return circulation.Loan{}, err
	}

	loans, err := queryRows(ctx, s, s.readFunc(ctx), logActionReadLoans, query, args, scanLoans)
	if err != nil {
		return circulation.Loan{}, err
	}

	if len(loans) == 0 {
		return circulation.Loan{}, circulation.ErrLoanNotFound
	}

	return loans[0], nil
}

// LoansForMember returns all loans of the member, oldest first.
func (s *Store) LoansForMember(ctx context.Context, memberID circulation.MemberID) ([]circulation.Loan, error) {
	query, args, err := buildSelectLoansForMemberQuery(memberID)
	if err != nil {
		return nil, err
	}

	return queryRows(ctx, s, s.readFunc(ctx), logActionReadLoans, query, args, scanLoans)
}

// Reservation returns the stored reservation.
func (s *Store) Reservation(
	ctx context.Context,
	reservationID circulation.ReservationID,
) (circulation.Reservation, error) {

	query, args, err := buildSelectReservationQuery(reservationID)
	if err != nil {
		return circulation.Reservation{}, err
	}

	reservations, err := queryRows(ctx, s, s.readFunc(ctx), logActionReadReservations, query, args, scanReservations)
	if err != nil {
		return circulation.Reservation{}, err
	}

	if len(reservations) == 0 {
		return circulation.Reservation{}, circulation.ErrReservationNotFound
	}

	return reservations[0], nil
}

// Reservations returns all reservations of the book ordered by queue position.
func (s *Store) Reservations(ctx context.Context, bookID circulation.BookID) ([]circulation.Reservation, error) {
	query, args, err := buildSelectReservationsQuery(bookID)
	if err != nil {
		return nil, err
	}

	return queryRows(ctx, s, s.readFunc(ctx), logActionReadReservations, query, args, scanReservations)
}

func scanInventories(rows adapters.DBRows) ([]circulation.BookInventory, error) {
	inventories := make([]circulation.BookInventory, 0, 1)

	for rows.Next() {
		var inv circulation.BookInventory

		if err := rows.Scan(
			&inv.BookID,
			&inv.TotalCopies,
			&inv.AvailableCopies,
			&inv.Shortfall,
			&inv.ReservationSeq,
			&inv.UpdatedAt,
		); err != nil {
			return nil, errors.Join(ErrScanningDBRowFailed, err)
		}

		inv.UpdatedAt = circulation.ToTimestamp(inv.UpdatedAt)
		inventories = append(inventories, inv)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrScanningDBRowFailed, err)
	}

	return inventories, nil
}

func scanLoans(rows adapters.DBRows) ([]circulation.Loan, error) {
	loans := make([]circulation.Loan, 0)

	for rows.Next() {
		var loan circulation.Loan
		var status string

		if err := rows.Scan(
			&loan.ID,
			&loan.BookID,
			&loan.BorrowerID,
			&status,
			&loan.BorrowedAt,
			&loan.DueAt,
			&loan.ReturnedAt,
		); err != nil {
			return nil, errors.Join(ErrScanningDBRowFailed, err)
		}

		loan.Status = circulation.LoanStatus(status)
		loan.BorrowedAt = circulation.ToTimestamp(loan.BorrowedAt)
		loan.DueAt = circulation.ToTimestamp(loan.DueAt)
		loan.ReturnedAt = normalizedTime(loan.ReturnedAt)
		loans = append(loans, loan)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrScanningDBRowFailed, err)
	}

	return loans, nil
}

func scanReservations(rows adapters.DBRows) ([]circulation.Reservation, error) {
	reservations := make([]circulation.Reservation, 0)

	for rows.Next() {
		var r circulation.Reservation
		var status string

		if err := rows.Scan(
			&r.ID,
			&r.BookID,
			&r.MemberID,
			&r.QueuePosition,
			&r.CreatedAt,
			&status,
			&r.ResolvedAt,
		); err != nil {
			return nil, errors.Join(ErrScanningDBRowFailed, err)
		}

		r.Status = circulation.ReservationStatus(status)
		r.CreatedAt = circulation.ToTimestamp(r.CreatedAt)
		r.ResolvedAt = normalizedTime(r.ResolvedAt)
		reservations = append(reservations, r)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrScanningDBRowFailed, err)
	}

	return reservations, nil
}

func normalizedTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	normalized := circulation.ToTimestamp(*t)

	return &normalized
}
