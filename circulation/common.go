package circulation

import (
	"context"
	"errors"
)

// Business-rule rejections. They are reported to the caller, never retried, and the attempted
// transaction is always rolled back completely.
var (
	// ErrOutOfStock is returned when no copy of the book is available for lending.
	ErrOutOfStock = errors.New("no copy of the book is available")

	// ErrDuplicateLoan is returned when the borrower already holds an open loan for the book.
	ErrDuplicateLoan = errors.New("borrower already holds an open loan for this book")

	// ErrAlreadyReserved is returned when the member already holds a waiting reservation for the book.
	ErrAlreadyReserved = errors.New("member already holds a waiting reservation for this book")

	// ErrNotActive is returned when a loan that is not active (or overdue) is asked to change state.
	ErrNotActive = errors.New("loan is not active")

	// ErrReservationNotWaiting is returned when a reservation that is no longer waiting is cancelled.
	ErrReservationNotWaiting = errors.New("reservation is not waiting")

	// ErrBookNotFound is returned when the book is unknown to the ledger or the catalog.
	ErrBookNotFound = errors.New("book not found")

	// ErrLoanNotFound is returned when no loan exists for the given id.
	ErrLoanNotFound = errors.New("loan not found")

	// ErrReservationNotFound is returned when no reservation exists for the given id.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrInvalidLoanPeriod is returned for a non-positive loan period.
	ErrInvalidLoanPeriod = errors.New("loan period must be positive")

	// ErrInvalidCopyCount is returned for a negative total copy count.
	ErrInvalidCopyCount = errors.New("total copies must not be negative")
)

// ErrInventoryCorruption signals that the ledger invariant was already violated before the call.
// It is not a user error: the operation detecting it aborts and operators must look into it.
var ErrInventoryCorruption = errors.New("inventory ledger invariant violated")

// Construction errors.
var (
	// ErrNilStore is returned when a Coordinator is built without a Store.
	ErrNilStore = errors.New("store must not be nil")

	// ErrNilIDGenerator is returned when a nil id generator is supplied.
	ErrNilIDGenerator = errors.New("id generator must not be nil")

	// ErrNilClock is returned when a nil clock is supplied.
	ErrNilClock = errors.New("clock must not be nil")

	// ErrNegativeHoldWindow is returned when a negative reservation hold window is supplied.
	ErrNegativeHoldWindow = errors.New("hold window must not be negative")

	// ErrInvalidFinePolicy is returned for a fine policy with a negative rate or ceiling.
	ErrInvalidFinePolicy = errors.New("fine rate and ceiling must not be negative")
)

var businessRejections = []error{
	ErrOutOfStock,
	ErrDuplicateLoan,
	ErrAlreadyReserved,
	ErrNotActive,
	ErrReservationNotWaiting,
	ErrBookNotFound,
	ErrLoanNotFound,
	ErrReservationNotFound,
	ErrInvalidLoanPeriod,
	ErrInvalidCopyCount,
}

// IsBusinessRejection reports whether err is an expected business outcome ("you can't do that")
// as opposed to an invariant violation or an infrastructure failure ("the system is broken").
func IsBusinessRejection(err error) bool {
	for _, rejection := range businessRejections {
		if errors.Is(err, rejection) {
			return true
		}
	}

	return false
}

// errorType maps an error to a low-cardinality label for metrics and spans.
func errorType(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, ErrDuplicateLoan):
		return "duplicate_loan"
	case errors.Is(err, ErrAlreadyReserved):
		return "already_reserved"
	case errors.Is(err, ErrNotActive):
		return "not_active"
	case errors.Is(err, ErrReservationNotWaiting):
		return "reservation_not_waiting"
	case errors.Is(err, ErrBookNotFound), errors.Is(err, ErrLoanNotFound), errors.Is(err, ErrReservationNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidLoanPeriod), errors.Is(err, ErrInvalidCopyCount):
		return "invalid_argument"
	case errors.Is(err, ErrInventoryCorruption):
		return "inventory_corruption"
	case errors.Is(err, context.Canceled):
		return "context_canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "context_deadline_exceeded"
	default:
		return "infrastructure"
	}
}
