package circulation

import (
	"context"
)

// Store persists inventories, loans and reservations and provides the per-book serialization token.
//
// Transact is the only way to change a book. Implementations must guarantee that:
//   - at most one Transact per book id runs at any time, while different books proceed in parallel
//   - ctx only governs the wait for the token; once it is held, fn runs and its Changes are
//     committed completely, or nothing is (full rollback)
//   - ErrBookNotFound is returned, without calling fn, if the book has no ledger row
type Store interface {
	Transact(ctx context.Context, bookID BookID, fn TransactFunc) error

	// TransactOrCreate is Transact for a book that may not have a ledger row yet. A missing row is
	// created empty inside the same unit of work, so it exists afterwards only if fn's changes commit.
	TransactOrCreate(ctx context.Context, bookID BookID, fn TransactFunc) error

	// Inventory returns ErrBookNotFound if the book has no ledger row.
	Inventory(ctx context.Context, bookID BookID) (BookInventory, error)

	// Loan returns ErrLoanNotFound if there is no such loan.
	Loan(ctx context.Context, loanID LoanID) (Loan, error)

	// LoansForMember returns all loans of the member, oldest first.
	LoansForMember(ctx context.Context, memberID MemberID) ([]Loan, error)

	// Reservation returns ErrReservationNotFound if there is no such reservation.
	Reservation(ctx context.Context, reservationID ReservationID) (Reservation, error)

	// Reservations returns all reservations of the book ordered by queue position.
	Reservations(ctx context.Context, bookID BookID) ([]Reservation, error)
}

// Catalog is the external book catalog.
type Catalog interface {
	// LookupBook returns ErrBookNotFound if the catalog does not know the book.
	LookupBook(ctx context.Context, bookID BookID) (CatalogEntry, error)
}

// Identity resolves the authenticated member of a request. The core trusts the returned id.
type Identity interface {
	AuthenticatedMember(ctx context.Context) (MemberID, error)
}

// IdentityFunc adapts a function to the Identity interface.
type IdentityFunc func(ctx context.Context) (MemberID, error)

// AuthenticatedMember calls f.
func (f IdentityFunc) AuthenticatedMember(ctx context.Context) (MemberID, error) {
	return f(ctx)
}
