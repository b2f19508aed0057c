package postgresengine

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

const (
	constraintOpenLoan           = "loans_open_book_borrower_key"
	constraintWaitingReservation = "reservations_waiting_book_member_key"
)

// mapConstraintViolation translates violations of the partial unique indexes into business rejections.
// Any other error is returned unchanged.
func mapConstraintViolation(err error) error {
	constraint, ok := uniqueViolation(err)
	if !ok {
		return err
	}

	switch constraint {
	case constraintOpenLoan:
		return errors.Join(circulation.ErrDuplicateLoan, err)
	case constraintWaitingReservation:
		return errors.Join(circulation.ErrAlreadyReserved, err)
	default:
		return err
	}
}

func uniqueViolation(err error) (constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName, pgErr.Code == pgerrcode.UniqueViolation
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint, string(pqErr.Code) == pgerrcode.UniqueViolation
	}

	return "", false
}
